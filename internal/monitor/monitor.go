// Package monitor implements the C6 detached-monitor discipline: the
// control front-end never runs the supervisor state machine (C5) directly,
// it always re-execs the same binary as a `monitor` subcommand invocation
// that survives the caller's death, per spec.md §4.5.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nolan-k/warden/internal/config"
	"github.com/nolan-k/warden/internal/health"
	"github.com/nolan-k/warden/internal/osadapter"
	"github.com/nolan-k/warden/internal/statestore"
)

// Context carries everything the control front-end hands to a monitor
// invocation via argv — the pass-through contract spec.md §4.5 defines. The
// monitor reloads its own configuration from ConfigPath; only these fields
// cross the process boundary as literal argv values.
type Context struct {
	ProcessName string
	Program     string
	ConfigPath  string
	WorkingDir  string
	Workspace   string
	Args        []string
	Env         map[string]string
	AutoRestart bool
}

// Argv renders the argv contract: `monitor --process-name N --program P
// --config C --working-dir W --workspace S [--arg A]* [--env K=V]*
// [--auto-restart]`, prefixed with selfExe so it can be passed directly to
// SpawnDetached. --workspace is not named in spec.md's pass-through list but
// must still cross the process boundary literally: the monitor's cwd is
// WorkingDir, not the workspace root, so without it the monitor would
// resolve a different <workspace>/.state than the control invocation used.
func (c Context) Argv(selfExe string) []string {
	argv := []string{
		selfExe, "monitor",
		"--process-name", c.ProcessName,
		"--program", c.Program,
		"--config", c.ConfigPath,
		"--working-dir", c.WorkingDir,
		"--workspace", c.Workspace,
	}
	for _, a := range c.Args {
		argv = append(argv, "--arg", a)
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		argv = append(argv, "--env", k+"="+c.Env[k])
	}
	if c.AutoRestart {
		argv = append(argv, "--auto-restart")
	}
	return argv
}

// Spawn launches selfExe as a detached monitor per the platform's spawn
// discipline (osadapter.SpawnDetached: POSIX setsid-based detach, Windows
// detached creation flags) and returns its pid.
func Spawn(selfExe string, ctx Context) (int, error) {
	argv := ctx.Argv(selfExe)
	return osadapter.SpawnDetached(osadapter.SpawnSpec{
		Argv:       argv,
		WorkingDir: ctx.WorkingDir,
	})
}

// SetMonitorPID records this invocation's own pid as monitor_pid before the
// user process is spawned, per spec.md §4.5's "Lifecycle of monitor_pid".
// It tolerates a NotFound predecessor record.
func SetMonitorPID(store *statestore.Store, name string, pid int) error {
	rec, err := store.Load(name)
	if err != nil && !errors.Is(err, statestore.ErrNotFound) {
		return fmt.Errorf("monitor: load record: %w", err)
	}
	rec.MonitorPID = pid
	return store.Save(name, rec)
}

// ErrMonitorNeverAppeared is returned by WaitForReady when the monitor pid
// never shows up in the state record within the init wait window.
var ErrMonitorNeverAppeared = errors.New("monitor: monitor process did not report ready in time")

// WaitForReady implements the control front-end's half of the §4.5
// handshake: poll the record until a monitor_pid appears and is alive
// (bounded by tuning.InitWaitSecs), then, if healthCheckURL is set, run an
// independent health wait with the same retry budget the monitor itself
// uses. The two waits intentionally overlap so the control command's exit
// code reflects end-to-end readiness, not just "monitor process exists".
func WaitForReady(ctx context.Context, store *statestore.Store, name string, tuning config.Tuning, healthCheckURL string) error {
	deadline := time.Now().Add(time.Duration(tuning.InitWaitSecs) * time.Second)
	if tuning.InitWaitSecs <= 0 {
		deadline = time.Now().Add(5 * time.Second)
	}
	for {
		rec, err := store.Load(name)
		if err == nil && rec.MonitorPID != 0 && osadapter.IsAlive(rec.MonitorPID) {
			break
		}
		if time.Now().After(deadline) {
			return ErrMonitorNeverAppeared
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	if healthCheckURL == "" {
		return nil
	}
	prober := health.New(time.Duration(tuning.HealthCheckTimeoutSecs) * time.Second)
	interval := time.Duration(tuning.RetryIntervalSecs) * time.Second
	retries := tuning.HealthCheckRetries
	if retries <= 0 {
		retries = 10
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		ok, err := prober.Probe(ctx, healthCheckURL)
		if ok && err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("health check did not pass within retry budget")
	}
	return fmt.Errorf("monitor: handshake health wait failed: %w", lastErr)
}
