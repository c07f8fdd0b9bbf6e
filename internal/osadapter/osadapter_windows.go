//go:build windows

package osadapter

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/windows"
)

func openProcess(access uint32, pid uint32) (windows.Handle, error) {
	h, err := windows.OpenProcess(access, false, pid)
	if err != nil {
		return 0, err
	}
	return h, nil
}

func closeHandle(h windows.Handle) {
	_ = windows.CloseHandle(h)
}

// IsAlive reports whether pid can still be opened for query. A process that
// has exited and been reaped can no longer be opened.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := openProcess(windows.PROCESS_QUERY_INFORMATION, uint32(pid))
	if err != nil {
		return false
	}
	closeHandle(h)
	return true
}

// SignalGraceful requests termination without the force flag, via
// `taskkill /PID <pid>`. It does not wait. Windows has no SIGTERM
// equivalent, so this is best-effort: a console process without a window
// may refuse it, and SignalForceful is then what ends the process.
func SignalGraceful(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("osadapter: invalid pid %d", pid)
	}
	return exec.Command("taskkill", "/PID", strconv.Itoa(pid)).Run()
}

// SignalForceful terminates pid and waits up to ForcefulWaitBudget for the
// OS to reclaim it.
func SignalForceful(pid int) error {
	if err := terminate(pid); err != nil {
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

func terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("osadapter: invalid pid %d", pid)
	}
	h, err := openProcess(windows.PROCESS_TERMINATE, uint32(pid))
	if err != nil {
		// Already gone is not an error from the caller's point of view.
		return nil
	}
	defer closeHandle(h)
	return windows.TerminateProcess(h, 1)
}

// PidsOnPort shells out to netstat to enumerate listening TCP pids, since
// Windows exposes no simple syscall for this.
func PidsOnPort(port uint16) ([]int, error) {
	out, err := exec.Command("netstat", "-ano", "-p", "TCP").Output()
	if err != nil {
		return nil, err
	}
	return parseNetstatPids(string(out), port), nil
}

func parseNetstatPids(out string, port uint16) []int {
	want := fmt.Sprintf(":%d", port)
	var pids []int
	lines := splitLines(out)
	for _, line := range lines {
		fields := splitFields(line)
		if len(fields) < 5 {
			continue
		}
		if fields[0] != "TCP" {
			continue
		}
		local := fields[1]
		state := fields[3]
		if state != "LISTENING" {
			continue
		}
		if !hasSuffix(local, want) {
			continue
		}
		var pid int
		if _, err := fmt.Sscanf(fields[4], "%d", &pid); err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func splitFields(s string) []string {
	var out []string
	var cur []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\r' {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, c)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

func hasSuffix(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	return s[len(s)-len(suffix):] == suffix
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

// StartUnixTime returns pid's creation time as Unix seconds via
// GetProcessTimes, used to detect pid reuse between invocations.
func StartUnixTime(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	h, err := openProcess(windows.PROCESS_QUERY_INFORMATION, uint32(pid))
	if err != nil {
		return 0
	}
	defer closeHandle(h)

	var creation, exit, kernelT, userT windows.Filetime
	if err := windows.GetProcessTimes(h, &creation, &exit, &kernelT, &userT); err != nil {
		return 0
	}
	const ticksPerSecond = 10000000
	const epochDiff = 11644473600
	ft := (uint64(creation.HighDateTime) << 32) | uint64(creation.LowDateTime)
	return int64(ft/ticksPerSecond) - epochDiff
}

// SpawnDetached spawns spec.Argv with CREATE_NEW_PROCESS_GROUP|DETACHED_PROCESS
// so the child survives the caller's exit and inherits no console.
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
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
	}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, err
	}
	return pid, nil
}
