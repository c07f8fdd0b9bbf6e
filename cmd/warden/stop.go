package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/nolan-k/warden/internal/config"
	"github.com/nolan-k/warden/internal/osadapter"
	"github.com/nolan-k/warden/internal/statestore"
	"github.com/spf13/cobra"
)

func newStopCmd(a *app) *cobra.Command {
	f := stopFlags{}
	cmd := &cobra.Command{
		Use:   "stop [name]",
		Short: "Stop a managed process",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.Name = args[0]
			}
			if err := a.requireConfig(); err != nil {
				return err
			}
			return runStop(a, f)
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "process name (required unless config declares exactly one)")
	return cmd
}

// runStop implements the shutdown sequence spec.md §4.6 orders: user
// process first, then monitor, then port reclamation, each step tolerating
// NotFound and an already-dead pid, finishing with an unconditional clear
// of pid/monitor_pid so step 4 heals a monitor that crashed without
// clearing state itself.
func runStop(a *app, f stopFlags) error {
	name, proc, err := resolveProcess(a.cfg, f.Name)
	if err != nil {
		return err
	}

	for _, instName := range instanceNames(name, proc) {
		if err := stopOne(a, instName, proc); err != nil {
			return err
		}
	}
	return nil
}

func stopOne(a *app, name string, proc config.Process) error {
	statusLine("STOPPING", name)

	graceWait := time.Duration(a.cfg.Tuning.GracefulShutdownTimeoutSecs) * time.Second
	if graceWait <= 0 {
		graceWait = 3 * time.Second
	}

	rec, err := a.store.Load(name)
	if err != nil && !errors.Is(err, statestore.ErrNotFound) {
		return fmt.Errorf("stop: load record: %w", err)
	}

	handled := map[int]bool{}

	if rec.PID != 0 && osadapter.IsAlive(rec.PID) {
		gracefulThenForceful(rec.PID, graceWait)
		handled[rec.PID] = true
	}
	if rec.MonitorPID != 0 && osadapter.IsAlive(rec.MonitorPID) {
		gracefulThenForceful(rec.MonitorPID, graceWait)
		handled[rec.MonitorPID] = true
	}

	port := proc.Port
	if port == 0 {
		port = rec.Port
	}
	if port > 0 {
		squatters, err := osadapter.PidsOnPort(port)
		if err == nil {
			for _, pid := range squatters {
				if handled[pid] {
					continue
				}
				_ = osadapter.SignalForceful(pid)
			}
		}
	}

	if err := a.store.ClearRunning(name); err != nil {
		return fmt.Errorf("stop: clear record: %w", err)
	}

	statusLine("STOPPED", name)
	return nil
}

func gracefulThenForceful(pid int, wait time.Duration) {
	_ = osadapter.SignalGraceful(pid)
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !osadapter.IsAlive(pid) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	_ = osadapter.SignalForceful(pid)
}
