// Command warden is a cross-platform process supervisor: it spawns,
// health-gates, restarts, and tears down long-running programs, keeping a
// per-process JSON record on disk as the rendezvous point between the short
// control invocation a user runs and the detached monitor that outlives it.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/nolan-k/warden/internal/config"
	"github.com/nolan-k/warden/internal/history"
	"github.com/nolan-k/warden/internal/history/factory"
	"github.com/nolan-k/warden/internal/metrics"
	"github.com/nolan-k/warden/internal/statestore"
	"github.com/nolan-k/warden/internal/workspace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// app bundles the pieces every subcommand (except the internal monitor
// command, which reloads its own) needs: the resolved workspace layout, the
// decoded config, and the state store built on top of it.
type app struct {
	workspaceDir string
	configPath   string

	ws    *workspace.Layout
	cfg   *config.Config
	store *statestore.Store
}

// load resolves the workspace and, when a --config path was given, decodes
// it. Commands that can run without a config (list, logs, system-logs,
// status by name only) tolerate cfg == nil.
func (a *app) load() error {
	ws, err := workspace.New(a.workspaceDir)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	a.ws = ws
	a.store = statestore.New(ws)

	if a.configPath != "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	return nil
}

// requireConfig fails loudly when no config was decoded by the shared
// PersistentPreRunE load — start/stop cannot run without process
// definitions. It does not load a config itself.
func (a *app) requireConfig() error {
	if a.cfg == nil {
		return fmt.Errorf("--config is required")
	}
	return nil
}

// historySink builds the optional run-history sink (SPEC_FULL.md §3.4) from
// the decoded config, or returns (nil, nil) when history is disabled or no
// config was loaded.
func (a *app) historySink() (history.Sink, error) {
	if a.cfg == nil || !a.cfg.History.Enabled {
		return nil, nil
	}
	return factory.NewSinkFromDSN(a.cfg.History.DSN)
}

func (a *app) selfExecutable() (string, error) {
	return os.Executable()
}

func Execute() {
	a := &app{}

	root := &cobra.Command{
		Use:           "warden",
		Short:         "Cross-platform process supervisor and daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.workspaceDir, "workspace", ".", "workspace directory root")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to JSON or YAML config file")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "monitor" {
			// monitor reloads its own config/workspace from its own
			// argv flags; skip the shared app.load() path.
			return nil
		}
		return a.load()
	}

	root.AddCommand(
		newStartCmd(a),
		newStopCmd(a),
		newStatusCmd(a),
		newListCmd(a),
		newLogsCmd(a),
		newSystemLogsCmd(a),
		newMonitorCmd(),
	)

	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serveMetrics starts the optional Prometheus /metrics HTTP endpoint in the
// background, mirroring the teacher's --metrics-listen PersistentPreRun
// wiring in cmd/provisr/main.go but driven by config.MetricsConfig instead
// of a flag.
func serveMetrics(mc config.MetricsConfig, log func(string, ...any)) {
	if !mc.Enabled || mc.Listen == "" {
		return
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log("metrics: register failed: %v", err)
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: mc.Listen, Handler: mux} //nolint:gosec // internal ops endpoint, short-lived per monitor invocation
		if err := srv.ListenAndServe(); err != nil {
			log("metrics: server exited: %v", err)
		}
	}()
}
