package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nolan-k/warden/internal/config"
	"github.com/nolan-k/warden/internal/logger"
	"github.com/nolan-k/warden/internal/metrics"
	"github.com/nolan-k/warden/internal/monitor"
	"github.com/nolan-k/warden/internal/statestore"
	"github.com/nolan-k/warden/internal/supervisor"
	"github.com/nolan-k/warden/internal/workspace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// newMonitorCmd builds the internal `monitor` subcommand spec.md §4.6
// reserves for C6: it is never invoked directly by a user, only re-exec'd by
// the control front-end's start handler, and is hidden from --help.
func newMonitorCmd() *cobra.Command {
	f := monitorFlags{}
	cmd := &cobra.Command{
		Use:    "monitor",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(f)
		},
	}
	cmd.Flags().StringVar(&f.ProcessName, "process-name", "", "")
	cmd.Flags().StringVar(&f.Program, "program", "", "")
	cmd.Flags().StringVar(&f.ConfigPath, "config", "", "")
	cmd.Flags().StringVar(&f.WorkingDir, "working-dir", "", "")
	cmd.Flags().StringVar(&f.Workspace, "workspace", ".", "")
	cmd.Flags().StringArrayVar(&f.Args, "arg", nil, "")
	cmd.Flags().StringArrayVar(&f.Env, "env", nil, "")
	cmd.Flags().BoolVar(&f.AutoRestart, "auto-restart", false, "")
	return cmd
}

// runMonitor is the C6 monitor's own entry point: it sets monitor_pid before
// touching the child, reloads full tuning/health/hooks/port/history
// settings from the config file (the single source of truth per §4.5 — only
// process-name/program/config/working-dir/args/env/auto-restart are trusted
// pass-throughs from the control invocation's argv), then runs the C5 state
// machine until a terminal state.
func runMonitor(f monitorFlags) error {
	ws, err := workspace.New(f.Workspace)
	if err != nil {
		return fmt.Errorf("monitor: resolve workspace: %w", err)
	}
	store := statestore.New(ws)

	if err := monitor.SetMonitorPID(store, f.ProcessName, os.Getpid()); err != nil {
		return fmt.Errorf("monitor: record monitor pid: %w", err)
	}

	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("monitor: reload config: %w", err)
	}
	proc, ok := cfg.Processes[f.ProcessName]
	if !ok {
		return fmt.Errorf("monitor: process %q no longer declared in config", f.ProcessName)
	}

	// The control invocation's resolved spawn context wins over the config
	// file's for program/args/working-dir/auto-restart/env — these are the
	// named pass-throughs in spec.md §4.5 — everything else (tuning, health
	// URL, port, hooks, max restarts) comes from the reloaded config.
	proc.Program = f.Program
	proc.WorkingDir = f.WorkingDir
	proc.AutoRestart = f.AutoRestart
	if len(f.Args) > 0 {
		proc.Args = f.Args
	}
	if env := parseEnvPairs(f.Env); len(env) > 0 {
		merged := make(map[string]string, len(proc.Env)+len(env))
		for k, v := range proc.Env {
			merged[k] = v
		}
		for k, v := range env {
			merged[k] = v
		}
		proc.Env = merged
	}

	logPath := ws.MonitorLogDir(f.ProcessName)
	if err := workspace.EnsureDir(logPath); err != nil {
		return fmt.Errorf("monitor: create monitor log dir: %w", err)
	}
	logFile := filepath.Join(logPath, time.Now().UTC().Format("2006-01-02")+".log")
	log, closer, err := logger.NewFile(logger.Config{
		JSON:       true,
		Level:      slogLevel(cfg.Global.Log.Level),
		MaxSizeMB:  cfg.Global.Log.MaxSizeMB,
		MaxBackups: cfg.Global.Log.MaxFiles,
	}, logFile)
	if err != nil {
		log = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	} else {
		defer func() { _ = closer.Close() }()
	}

	serveMetrics(cfg.Metrics, func(format string, args ...any) { log.Warn(fmt.Sprintf(format, args...)) })

	historyCfg := cfg
	if proc.HistoryEnabled != nil {
		c := *cfg
		c.History.Enabled = *proc.HistoryEnabled
		historyCfg = &c
	}
	sink, err := (&app{cfg: historyCfg}).historySink()
	if err != nil {
		log.Warn("history sink unavailable, continuing without it", "err", err)
		sink = nil
	}
	if sink != nil {
		defer func() { _ = sink.Close() }()
	}

	sv := supervisor.New(f.ProcessName, proc, cfg.Tuning, ws, store, sink, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		collector := metrics.NewProcessMetricsCollector(metrics.ProcessMetricsConfig{Enabled: true})
		if err := collector.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			log.Warn("process metrics: register failed", "err", err)
		}
		getProcesses := func() map[string]int32 {
			pid := sv.CurrentPID()
			if pid == 0 {
				return nil
			}
			return map[string]int32{f.ProcessName: pid}
		}
		if err := collector.Start(ctx, getProcesses); err != nil {
			log.Warn("process metrics: start failed", "err", err)
		}
		defer collector.Stop()
	}

	return sv.Run(ctx)
}

func parseEnvPairs(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if i := strings.IndexByte(p, '='); i >= 0 {
			out[p[:i]] = p[i+1:]
		}
	}
	return out
}

func slogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
