//go:build !windows

package osadapter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
	sysconf "github.com/tklauser/go-sysconf"
)

// IsAlive reports whether the OS still holds an entry for pid. A zero-signal
// send that returns EPERM still counts as alive — it means the process
// exists but is owned by another user.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// SignalGraceful sends SIGTERM. It does not wait for the process to exit.
func SignalGraceful(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("osadapter: invalid pid %d", pid)
	}
	return syscall.Kill(pid, syscall.SIGTERM)
}

// SignalForceful sends SIGKILL, then waits up to ForcefulWaitBudget for the
// OS to reclaim the pid before returning.
func SignalForceful(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("osadapter: invalid pid %d", pid)
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	deadline := time.Now().Add(ForcefulWaitBudget)
	for time.Now().Before(deadline) {
		if !IsAlive(pid) {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// PidsOnPort enumerates pids with an open TCP listening socket on port. It
// shells out to lsof and falls back to parsing /proc/net/tcp{,6} on Linux
// whenever the lsof call fails, whether lsof is missing from $PATH or exits
// non-zero (as it does when nothing listens on the port).
func PidsOnPort(port uint16) ([]int, error) {
	if pids, err := pidsOnPortLsof(port); err == nil {
		return pids, nil
	}
	if runtime.GOOS == "linux" {
		return pidsOnPortProcNet(port)
	}
	return nil, errors.New("osadapter: no port enumeration method available")
}

func pidsOnPortLsof(port uint16) ([]int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "lsof", "-t", "-i", fmt.Sprintf("TCP:%d", port), "-sTCP:LISTEN").Output()
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if pid, err := strconv.Atoi(line); err == nil {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// pidsOnPortProcNet is a best-effort fallback: it maps the port's inode from
// /proc/net/tcp to a pid by scanning /proc/*/fd for a symlink to that socket
// inode. It only sees pids owned by the current user (or root).
func pidsOnPortProcNet(port uint16) ([]int, error) {
	inodes := map[string]bool{}
	for _, p := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		scanInodesForPort(f, port, inodes)
		_ = f.Close()
	}
	if len(inodes) == 0 {
		return nil, nil
	}
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		fdDir := "/proc/" + e.Name() + "/fd"
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			target, err := os.Readlink(fdDir + "/" + fd.Name())
			if err != nil {
				continue
			}
			if strings.HasPrefix(target, "socket:[") {
				inode := strings.TrimSuffix(strings.TrimPrefix(target, "socket:["), "]")
				if inodes[inode] {
					pids = append(pids, pid)
					break
				}
			}
		}
	}
	return pids, nil
}

func scanInodesForPort(f *os.File, port uint16, out map[string]bool) {
	scanner := bufio.NewScanner(f)
	wantHex := fmt.Sprintf("%04X", port)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue // header line
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}
		// fields[1] is "local_address:port" in hex, fields[3] is state (0A = LISTEN)
		parts := strings.Split(fields[1], ":")
		if len(parts) != 2 || parts[1] != wantHex {
			continue
		}
		if fields[3] != "0A" {
			continue
		}
		out[fields[9]] = true
	}
}

// SampleUsage returns best-effort resource usage for pid via gopsutil.
func SampleUsage(pid int) Usage {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return Usage{}
	}
	var u Usage
	if createMS, err := p.CreateTime(); err == nil && createMS > 0 {
		u.UptimeSec = time.Since(time.UnixMilli(createMS)).Seconds()
		u.Known = true
	}
	if cpu, err := p.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		u.RSSBytes = mem.RSS
	}
	return u
}

// StartUnixTime returns pid's start time as Unix seconds, used to detect pid
// reuse between invocations. Returns 0 when unavailable.
func StartUnixTime(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	if runtime.GOOS == "linux" {
		if t := startUnixTimeLinux(pid); t > 0 {
			return t
		}
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}

func startUnixTimeLinux(pid int) int64 {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0
	}
	line := string(b)
	end := strings.LastIndex(line, ") ")
	if end == -1 {
		return 0
	}
	parts := strings.Fields(strings.TrimSpace(line[end+2:]))
	if len(parts) < 20 {
		return 0
	}
	startTicks, err := strconv.ParseInt(parts[19], 10, 64)
	if err != nil || startTicks <= 0 {
		return 0
	}

	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()
	var btime int64
	s := bufio.NewScanner(f)
	for s.Scan() {
		text := s.Text()
		if strings.HasPrefix(text, "btime ") {
			if bt, err := strconv.ParseInt(strings.TrimPrefix(text, "btime "), 10, 64); err == nil {
				btime = bt
				break
			}
		}
	}
	if btime == 0 {
		return 0
	}

	clk, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
	if err != nil || clk <= 0 {
		clk = 100
	}
	return btime + (startTicks / int64(clk))
}

// SpawnDetached starts the child in its own session via SysProcAttr.Setsid,
// giving it no controlling terminal, then releases it so the OS reparents
// and reaps it rather than this process. cwd is spec.WorkingDir and all
// three standard streams are redirected to /dev/null. The returned pid is
// the direct child's; there is no intermediate process to wait on.
func SpawnDetached(spec SpawnSpec) (int, error) {
	if len(spec.Argv) == 0 {
		return 0, errors.New("osadapter: empty argv")
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, err
	}
	defer func() { _ = devNull.Close() }()

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.WorkingDir
	cmd.Env = spec.Env
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Release so the OS, not this process, reparents and reaps the detached
	// child; the monitor re-execs itself as argv[0] and will be found
	// again via its own pid, recorded by the caller.
	if err := cmd.Process.Release(); err != nil {
		return pid, err
	}
	return pid, nil
}
