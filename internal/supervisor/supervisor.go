// Package supervisor implements the C5 state machine spec.md §4.4 draws:
// one goroutine per managed process cycling through spawn, init wait,
// health gate, run, and exit classification, restarting on crash per the
// configured policy. It is always run inside a monitor invocation (C6); the
// control front-end never drives this state machine directly.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nolan-k/warden/internal/config"
	"github.com/nolan-k/warden/internal/env"
	"github.com/nolan-k/warden/internal/health"
	"github.com/nolan-k/warden/internal/history"
	"github.com/nolan-k/warden/internal/logsink"
	"github.com/nolan-k/warden/internal/metrics"
	"github.com/nolan-k/warden/internal/osadapter"
	"github.com/nolan-k/warden/internal/statestore"
	"github.com/nolan-k/warden/internal/workspace"
)

// Supervisor drives one named process through its full lifetime, including
// every restart, until an orderly stop or an unrecoverable failure.
type Supervisor struct {
	Name   string
	Proc   config.Process
	Tuning config.Tuning
	WS     *workspace.Layout
	Store  *statestore.Store
	Prober *health.Prober
	// History is optional; a nil Sink means run-history is disabled for
	// this process (config's history_enabled / global history.enabled).
	History history.Sink
	Log     *slog.Logger

	currentPID atomic.Int32
}

// CurrentPID returns the pid of the currently spawned child, or 0 when no
// child is running. Safe to call from another goroutine, e.g. a
// metrics.ProcessMetricsCollector sampling loop.
func (s *Supervisor) CurrentPID() int32 { return s.currentPID.Load() }

// New builds a Supervisor whose health prober uses
// tuning.HealthCheckTimeoutSecs as its per-probe timeout (health.New falls
// back to 5s when that is not positive).
func New(name string, proc config.Process, tuning config.Tuning, ws *workspace.Layout, store *statestore.Store, sink history.Sink, log *slog.Logger) *Supervisor {
	return &Supervisor{
		Name:    name,
		Proc:    proc,
		Tuning:  tuning,
		WS:      ws,
		Store:   store,
		Prober:  health.New(time.Duration(tuning.HealthCheckTimeoutSecs) * time.Second),
		History: sink,
		Log:     log,
	}
}

type childExit struct {
	exitCode int
	waitErr  error
}

// Run executes the state machine until the process reaches a terminal state
// (orderly stop or unrecoverable failure) or ctx is cancelled. It returns
// nil for an orderly stop and a non-nil error for FAILED terminal states.
func (s *Supervisor) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	rec, err := s.Store.Load(s.Name)
	if err != nil && !errors.Is(err, statestore.ErrNotFound) {
		return fmt.Errorf("supervisor: load initial record: %w", err)
	}
	restartCount := rec.RestartCount

	if err := workspace.EnsureDir(s.Proc.WorkingDir); err != nil && s.Proc.WorkingDir != "" {
		s.Log.Warn("could not create working directory", "name", s.Name, "dir", s.Proc.WorkingDir, "err", err)
	}

	state := Spawning
	var cmd *exec.Cmd
	var exitCh chan childExit
	var lastExit childExit
	cancelled := false
	// isRestart is false only for the very first spawn. spec.md §4.4: a
	// restart respawn carries no init wait gate of its own; the supervisor
	// only re-gates health if a health_check_url is configured.
	isRestart := false

	for {
		switch state {
		case Spawning:
			if err := runHook(ctx, s.Proc.Hooks.PreStart, s.Proc.WorkingDir, hooksEnv(s.Proc.Env), s.Proc.Hooks.FailureMode); err != nil {
				return s.terminal(Failed, &rec, 0, err)
			}
			c, stdout, stderr, spawnErr := s.spawnChild()
			if spawnErr != nil {
				return s.terminal(Failed, &rec, 0, fmt.Errorf("%w: %v", ErrSpawnFailed, spawnErr))
			}
			cmd = c
			s.currentPID.Store(int32(cmd.Process.Pid))
			exitCh = s.waitChild(cmd)
			s.startLogPumps(stdout, stderr)

			metrics.IncStart(s.Name)
			rec.Touch(cmd.Process.Pid, s.Proc.Program, s.Proc.Args, s.Proc.WorkingDir, s.Proc.Port, s.Proc.HealthCheckURL, time.Now())
			rec.RestartCount = restartCount
			s.persist(&rec, Spawning, 0, "")
			s.sendHistory(ctx, history.EventStart, rec, "")

			if isRestart {
				// A restart respawn skips the init wait gate entirely; it
				// only re-gates health if a health_check_url is configured.
				if s.Proc.HealthCheckURL == "" {
					state = Running
				} else {
					state = Probing
				}
				s.persist(&rec, state, 0, "")
			} else {
				state = InitWait
			}

		case InitWait:
			wait := time.Duration(s.Tuning.InitWaitSecs) * time.Second
			diedDuringInit := false
			select {
			case ev := <-exitCh:
				if !s.Proc.AutoRestart {
					return s.terminal(Failed, &rec, ev.exitCode, ErrChildDiedDuringInit)
				}
				// auto_restart governs even an immediate crash inside the
				// init window: fall into exit classification instead of
				// short-circuiting to a non-restart terminal, so the
				// restart budget still applies.
				lastExit = ev
				diedDuringInit = true
			case sig := <-sigCh:
				s.Log.Info("interrupted during init wait", "name", s.Name, "signal", sig)
				cancelled = true
				s.gracefulThenForceful(cmd)
				return s.stoppedAfterCancel(&rec)
			case <-ctx.Done():
				cancelled = true
				s.gracefulThenForceful(cmd)
				return s.stoppedAfterCancel(&rec)
			case <-time.After(wait):
			}
			if diedDuringInit {
				state = ExitClassify
				continue
			}
			if s.Proc.HealthCheckURL == "" {
				state = Running
			} else {
				state = Probing
			}
			s.persist(&rec, state, 0, "")

		case Probing:
			ok, ev, interrupted := s.probeLoop(ctx, cmd, exitCh, sigCh)
			if interrupted {
				cancelled = true
				return s.stoppedAfterCancel(&rec)
			}
			if ev != nil {
				return s.terminal(Failed, &rec, ev.exitCode, ErrChildDiedDuringHealthCheck)
			}
			if !ok {
				_ = osadapter.SignalForceful(cmd.Process.Pid)
				return s.terminal(Failed, &rec, 0, ErrHealthCheckFailed)
			}
			if err := runHook(ctx, s.Proc.Hooks.PostStart, s.Proc.WorkingDir, hooksEnv(s.Proc.Env), s.Proc.Hooks.FailureMode); err != nil {
				_ = osadapter.SignalForceful(cmd.Process.Pid)
				return s.terminal(Failed, &rec, 0, err)
			}
			state = Running
			s.persist(&rec, state, 0, "")

		case Running:
			select {
			case ev := <-exitCh:
				lastExit = ev
				state = ExitClassify
			case sig := <-sigCh:
				s.Log.Info("interrupted while running", "name", s.Name, "signal", sig)
				cancelled = true
				s.gracefulThenForceful(cmd)
				return s.stoppedAfterCancel(&rec)
			case <-ctx.Done():
				cancelled = true
				s.gracefulThenForceful(cmd)
				return s.stoppedAfterCancel(&rec)
			}

		case ExitClassify:
			if err := runHook(ctx, s.Proc.Hooks.PreStop, s.Proc.WorkingDir, hooksEnv(s.Proc.Env), s.Proc.Hooks.FailureMode); err != nil {
				s.Log.Warn("pre_stop hook failed", "name", s.Name, "err", err)
			}
			switch {
			case lastExit.exitCode == 0:
				return s.terminal(Stopped, &rec, 0, nil)
			case !cancelled && s.Proc.AutoRestart && restartCount < uint64(s.Proc.MaxRestarts):
				restartCount++
				metrics.IncRestart(s.Name)
				rec.RestartCount = restartCount
				s.persist(&rec, RestartBackoff, lastExit.exitCode, exitErrString(lastExit.waitErr))
				isRestart = true
				state = RestartBackoff
			case !cancelled && s.Proc.AutoRestart:
				return s.terminal(Failed, &rec, lastExit.exitCode, ErrRestartBudgetExhausted)
			default:
				return s.terminal(Failed, &rec, lastExit.exitCode, fmt.Errorf("process exited with code %d", lastExit.exitCode))
			}

		case RestartBackoff:
			wait := time.Duration(s.Tuning.RetryIntervalSecs) * time.Second
			if wait < 3*time.Second {
				wait = 3 * time.Second
			}
			select {
			case sig := <-sigCh:
				s.Log.Info("interrupted during restart backoff", "name", s.Name, "signal", sig)
				cancelled = true
				return s.stoppedAfterCancel(&rec)
			case <-ctx.Done():
				cancelled = true
				return s.stoppedAfterCancel(&rec)
			case <-time.After(wait):
			}
			state = Spawning
		}
	}
}

// spawnChild starts the configured program with merged environment and
// pipes attached to stdout/stderr, stdin bound to /dev/null per spec.md
// §4.4's spawn contract.
func (s *Supervisor) spawnChild() (*exec.Cmd, io.ReadCloser, io.ReadCloser, error) {
	cmd := exec.Command(s.Proc.Program, s.Proc.Args...)
	cmd.Dir = s.Proc.WorkingDir
	cmd.Env = env.New().Merge(config.EnvSlice(s.Proc.Env))

	devNull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
	if err != nil {
		return nil, nil, nil, err
	}
	cmd.Stdin = devNull

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}
	return cmd, stdout, stderr, nil
}

// waitChild runs cmd.Wait in a background goroutine and reports the result
// on the returned channel exactly once, per spec.md §5's single-producer
// child-waiter task.
func (s *Supervisor) waitChild(cmd *exec.Cmd) chan childExit {
	ch := make(chan childExit, 1)
	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		ch <- childExit{exitCode: code, waitErr: err}
	}()
	return ch
}

// startLogPumps launches the two background readers spec.md §4.7 requires,
// writing to this day's stdout.log/stderr.log. Their exit does not imply the
// child has exited.
func (s *Supervisor) startLogPumps(stdout, stderr io.ReadCloser) {
	pump := func(r io.ReadCloser, stream logsink.Stream) {
		w, err := logsink.Open(s.WS, s.Name, time.Now(), stream)
		if err != nil {
			s.Log.Warn("could not open log sink", "name", s.Name, "stream", stream, "err", err)
			return
		}
		defer func() { _ = w.Close() }()
		if err := logsink.Pump(r, w); err != nil {
			s.Log.Warn("log pump ended with error", "name", s.Name, "stream", stream, "err", err)
		}
	}
	go pump(stdout, logsink.Stdout)
	go pump(stderr, logsink.Stderr)
}

// probeLoop runs up to HealthCheckRetries probes, sleeping RetryIntervalSecs
// between attempts. It returns (healthy, childExitEvent, interrupted); at
// most one of the latter two is non-zero/true.
func (s *Supervisor) probeLoop(ctx context.Context, cmd *exec.Cmd, exitCh chan childExit, sigCh chan os.Signal) (bool, *childExit, bool) {
	retries := s.Tuning.HealthCheckRetries
	interval := time.Duration(s.Tuning.RetryIntervalSecs) * time.Second
	for attempt := 0; attempt < retries; attempt++ {
		start := time.Now()
		ok, err := s.Prober.Probe(ctx, s.Proc.HealthCheckURL)
		outcome := "fail"
		if ok {
			outcome = "pass"
		}
		metrics.ObserveHealthCheck(s.Name, outcome, time.Since(start).Seconds())
		if err == nil && ok {
			return true, nil, false
		}

		select {
		case ev := <-exitCh:
			return false, &ev, false
		case <-sigCh:
			return false, nil, true
		case <-ctx.Done():
			return false, nil, true
		case <-time.After(interval):
		}
	}
	return false, nil, false
}

// gracefulThenForceful implements spec.md §4.4's cancellation escalation:
// signal_graceful, wait up to graceful_shutdown_timeout_secs, then
// signal_forceful.
func (s *Supervisor) gracefulThenForceful(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if !osadapter.IsAlive(pid) {
		return
	}
	_ = osadapter.SignalGraceful(pid)
	deadline := time.Now().Add(time.Duration(s.Tuning.GracefulShutdownTimeoutSecs) * time.Second)
	for time.Now().Before(deadline) {
		if !osadapter.IsAlive(pid) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	_ = osadapter.SignalForceful(pid)
}

// terminal persists the final record state and returns the Run error (nil
// for Stopped).
func (s *Supervisor) terminal(state State, rec *statestore.Record, exitCode int, runErr error) error {
	errStr := ""
	if runErr != nil {
		errStr = runErr.Error()
	}
	s.currentPID.Store(0)
	rec.ClearRunning()
	s.persist(rec, state, exitCode, errStr)

	if err := runHook(context.Background(), s.Proc.Hooks.PostStop, s.Proc.WorkingDir, hooksEnv(s.Proc.Env), s.Proc.Hooks.FailureMode); err != nil {
		s.Log.Warn("post_stop hook failed", "name", s.Name, "err", err)
	}
	metrics.IncStop(s.Name)
	evType := history.EventStop
	if state == Failed {
		evType = history.EventFailed
	}
	s.sendHistory(context.Background(), evType, *rec, errStr)

	if state == Stopped {
		return nil
	}
	return runErr
}

// stoppedAfterCancel is the orderly-shutdown path triggered by an OS
// interrupt: the child has already been signalled by the caller.
func (s *Supervisor) stoppedAfterCancel(rec *statestore.Record) error {
	return s.terminal(Stopped, rec, 0, nil)
}

func (s *Supervisor) persist(rec *statestore.Record, state State, exitCode int, lastErr string) {
	prev := rec.Status
	rec.SetStatus(string(state), exitCode, lastErr)
	metrics.RecordStateTransition(s.Name, prev, string(state))
	metrics.SetCurrentState(s.Name, string(state), true)
	if err := s.Store.Save(s.Name, *rec); err != nil {
		s.Log.Warn("could not persist record", "name", s.Name, "state", state, "err", err)
	}
}

func (s *Supervisor) sendHistory(ctx context.Context, evType history.EventType, rec statestore.Record, errStr string) {
	if s.History == nil {
		return
	}
	ev := history.Event{
		Type:       evType,
		OccurredAt: time.Now(),
		Record: history.Record{
			Name:   s.Name,
			PID:    rec.PID,
			Status: rec.Status,
			Error:  errStr,
		},
	}
	if err := s.History.Send(ctx, ev); err != nil {
		s.Log.Warn("history sink send failed", "name", s.Name, "err", err)
	}
}

func exitErrString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
