package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/nolan-k/warden/internal/config"
	"github.com/nolan-k/warden/internal/monitor"
	"github.com/nolan-k/warden/internal/osadapter"
	"github.com/nolan-k/warden/internal/statestore"
	"github.com/nolan-k/warden/internal/supervisor"
	"github.com/spf13/cobra"
)

// ErrAlreadyRunning is returned by start when the named process's record
// already points at a live pid, per spec.md §7's AlreadyRunning error kind.
var ErrAlreadyRunning = errors.New("start: process is already running")

func newStartCmd(a *app) *cobra.Command {
	f := startFlags{Daemon: true}
	cmd := &cobra.Command{
		Use:   "start [name]",
		Short: "Start a managed process",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.Name = args[0]
			}
			if err := a.requireConfig(); err != nil {
				return err
			}
			return runStart(a, f)
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "process name (required unless config declares exactly one)")
	cmd.Flags().BoolVar(&f.Daemon, "daemon", true, "run the supervised process under a detached monitor")
	cmd.Flags().BoolVar(&f.Daemon, "detach", true, "alias of --daemon")
	cmd.Flags().BoolVar(&f.AutoRestart, "auto-restart", false, "override the config's auto_restart for this invocation")
	cmd.Flags().Uint16Var(&f.Port, "port", 0, "override the config's port for this invocation")
	return cmd
}

func runStart(a *app, f startFlags) error {
	name, proc, err := resolveProcess(a.cfg, f.Name)
	if err != nil {
		return err
	}
	if f.AutoRestart {
		proc.AutoRestart = true
	}
	if f.Port != 0 {
		proc.Port = f.Port
	}

	// Multiple instances (SPEC_FULL.md §4) fan a single declaration out into
	// name-1..name-N independent records; each gets its own statestore entry
	// and monitor, started in the same sequence a single instance would be.
	for _, instName := range instanceNames(name, proc) {
		if err := startOne(a, instName, proc, f); err != nil {
			return err
		}
	}
	return nil
}

func startOne(a *app, name string, proc config.Process, f startFlags) error {
	statusLine("STARTING", name)

	rec, err := a.store.Load(name)
	if err != nil && !errors.Is(err, statestore.ErrNotFound) {
		return fmt.Errorf("start: load record: %w", err)
	}
	if rec.PID != 0 && osadapter.IsAlive(rec.PID) {
		return fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, name, rec.PID)
	}

	ctx := context.Background()

	if !f.Daemon {
		log := slog.New(slog.NewTextHandler(os.Stderr, nil))
		if err := monitor.SetMonitorPID(a.store, name, os.Getpid()); err != nil {
			return fmt.Errorf("start: record monitor pid: %w", err)
		}
		sink, err := a.historySink()
		if err != nil {
			log.Warn("history sink unavailable, continuing without it", "err", err)
		}
		sv := supervisor.New(name, proc, a.cfg.Tuning, a.ws, a.store, sink, log)
		runErr := sv.Run(ctx)
		if runErr != nil {
			return runErr
		}
		statusLine("STOPPED", name)
		return nil
	}

	selfExe, err := a.selfExecutable()
	if err != nil {
		return fmt.Errorf("start: resolve self executable: %w", err)
	}
	mctx := monitor.Context{
		ProcessName: name,
		Program:     proc.Program,
		ConfigPath:  a.configPath,
		WorkingDir:  proc.WorkingDir,
		Workspace:   a.ws.Root(),
		Args:        proc.Args,
		Env:         proc.Env,
		AutoRestart: proc.AutoRestart,
	}
	if _, err := monitor.Spawn(selfExe, mctx); err != nil {
		return fmt.Errorf("start: spawn monitor: %w", err)
	}

	if err := monitor.WaitForReady(ctx, a.store, name, a.cfg.Tuning, proc.HealthCheckURL); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	rec, err = a.store.Load(name)
	if err != nil {
		return fmt.Errorf("start: reload record after ready: %w", err)
	}
	statusLine("STARTED", name, fmt.Sprintf("%d", rec.PID))
	fmt.Printf("started %s (pid %d)\n", name, rec.PID)
	return nil
}
