package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nolan-k/warden/internal/health"
	"github.com/nolan-k/warden/internal/osadapter"
	"github.com/nolan-k/warden/internal/statestore"
	"github.com/spf13/cobra"
)

// snapshot is the Live Process Snapshot spec.md §3.2 defines: computed on
// demand, sourced from the record plus a fresh C3 liveness/usage query,
// never persisted.
type snapshot struct {
	Name         string  `json:"name"`
	PID          int     `json:"pid,omitempty"`
	MonitorPID   int     `json:"monitor_pid,omitempty"`
	Status       string  `json:"status"`
	RestartCount uint64  `json:"restart_count"`
	UptimeSec    float64 `json:"uptime_seconds"`
	Uptime       string  `json:"uptime"`
	CPUPercent   float64 `json:"cpu_percent"`
	MemBytes     uint64  `json:"mem_bytes"`
	LastStart    string  `json:"last_start,omitempty"`
	PortLive     bool    `json:"port_live,omitempty"`
}

func buildSnapshot(store *statestore.Store, name string) (snapshot, error) {
	rec, err := store.Load(name)
	if err != nil && !errors.Is(err, statestore.ErrNotFound) {
		return snapshot{}, err
	}
	sn := snapshot{Name: name, PID: rec.PID, MonitorPID: rec.MonitorPID, RestartCount: rec.RestartCount}
	if rec.LastStartEpochMS > 0 {
		sn.LastStart = time.UnixMilli(rec.LastStartEpochMS).UTC().Format(time.RFC3339)
	}
	running := rec.PID != 0 && osadapter.IsAlive(rec.PID)
	if running {
		sn.Status = "running"
		usage := osadapter.SampleUsage(rec.PID)
		if usage.Known {
			sn.UptimeSec = usage.UptimeSec
			sn.Uptime = formatUptime(time.Duration(usage.UptimeSec * float64(time.Second)))
		}
		sn.CPUPercent = usage.CPUPercent
		sn.MemBytes = usage.RSSBytes
	} else {
		sn.Status = "stopped"
	}
	return sn, nil
}

func newStatusCmd(a *app) *cobra.Command {
	f := statusFlags{}
	cmd := &cobra.Command{
		Use:   "status [name]",
		Short: "Report whether a managed process is running",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.Name = args[0]
			}
			// Unlike start/stop, status works off the record alone (spec.md
			// §4.7 — "Load record..."): no requireConfig call here, so an
			// unconfigured workspace still answers status for a name that
			// has a record.
			return runStatus(a, f)
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "process name (required unless config declares exactly one)")
	cmd.Flags().BoolVar(&f.Port, "port", false, "also report whether the record's port still has a live listener")
	return cmd
}

// runStatus reports running iff pid is alive per C3, per spec.md §4.8's
// liveness heuristic, and exits 1 (not an error) when stopped. It works off
// the record alone: health_check_url, like everything else status reports,
// comes from what the record persisted on the last start, not from a
// currently-loaded config (spec.md §4.7 — "Load record...").
func runStatus(a *app, f statusFlags) error {
	name := f.Name
	if name == "" && a.cfg != nil {
		resolved, _, err := resolveProcess(a.cfg, "")
		if err != nil {
			return err
		}
		name = resolved
	}
	if name == "" {
		return fmt.Errorf("status: --name is required")
	}

	sn, err := buildSnapshot(a.store, name)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	rec, err := a.store.Load(name)
	if err != nil && !errors.Is(err, statestore.ErrNotFound) {
		return fmt.Errorf("status: %w", err)
	}

	if f.Port && rec.Port != 0 {
		pids, _ := osadapter.PidsOnPort(rec.Port)
		sn.PortLive = len(pids) > 0
	}

	if rec.HealthCheckURL != "" && sn.Status == "running" {
		timeout := 5 * time.Second
		if a.cfg != nil {
			timeout = time.Duration(a.cfg.Tuning.HealthCheckTimeoutSecs) * time.Second
		}
		prober := health.New(timeout)
		ok, _ := prober.Probe(context.Background(), rec.HealthCheckURL)
		healthStr := "unhealthy"
		if ok {
			healthStr = "healthy"
		}
		printJSON(struct {
			snapshot
			Health string `json:"health"`
		}{sn, healthStr})
	} else {
		printJSON(sn)
	}

	if sn.Status == "running" {
		statusLine("RUNNING", name, fmt.Sprintf("%d", sn.PID))
		return nil
	}
	os.Exit(1)
	return nil
}
