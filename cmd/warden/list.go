package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	f := listFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every known process and its live status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(a, f)
		},
	}
	cmd.Flags().StringVar(&f.NameFilter, "name", "", "substring filter on process name")
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status: running|stopped")
	cmd.Flags().DurationVar(&f.MinUptime, "min-uptime", 0, "minimum uptime")
	cmd.Flags().DurationVar(&f.MaxUptime, "max-uptime", 0, "maximum uptime (0 = no max)")
	cmd.Flags().Float64Var(&f.MinCPU, "min-cpu", 0, "minimum cpu percent")
	cmd.Flags().Float64Var(&f.MaxCPU, "max-cpu", 0, "maximum cpu percent (0 = no max)")
	cmd.Flags().Float64Var(&f.MinMemMB, "min-mem", 0, "minimum resident memory in MB")
	cmd.Flags().Float64Var(&f.MaxMemMB, "max-mem", 0, "maximum resident memory in MB (0 = no max)")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "render as JSON instead of a table")
	cmd.Flags().BoolVar(&f.Watch, "watch", false, "clear and redraw at 1 Hz until interrupted")
	return cmd
}

func runList(a *app, f listFlags) error {
	if !f.Watch {
		return renderList(a, f)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		fmt.Print("\033[2J\033[H")
		if err := renderList(a, f); err != nil {
			return err
		}
		select {
		case <-sigCh:
			return nil
		case <-ticker.C:
		}
	}
}

func renderList(a *app, f listFlags) error {
	names, err := a.store.Names()
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	snapshots := make([]snapshot, 0, len(names))
	for _, name := range names {
		sn, err := buildSnapshot(a.store, name)
		if err != nil {
			continue
		}
		if !matchesFilters(sn, f) {
			continue
		}
		snapshots = append(snapshots, sn)
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Name < snapshots[j].Name })

	if f.JSON {
		printJSON(snapshots)
		return nil
	}
	printTable(snapshots)
	return nil
}

func matchesFilters(sn snapshot, f listFlags) bool {
	if f.NameFilter != "" && !strings.Contains(sn.Name, f.NameFilter) {
		return false
	}
	if f.Status != "" && sn.Status != f.Status {
		return false
	}
	if f.MinUptime > 0 && time.Duration(sn.UptimeSec*float64(time.Second)) < f.MinUptime {
		return false
	}
	if f.MaxUptime > 0 && time.Duration(sn.UptimeSec*float64(time.Second)) > f.MaxUptime {
		return false
	}
	if f.MinCPU > 0 && sn.CPUPercent < f.MinCPU {
		return false
	}
	if f.MaxCPU > 0 && sn.CPUPercent > f.MaxCPU {
		return false
	}
	memMB := float64(sn.MemBytes) / (1024 * 1024)
	if f.MinMemMB > 0 && memMB < f.MinMemMB {
		return false
	}
	if f.MaxMemMB > 0 && memMB > f.MaxMemMB {
		return false
	}
	return true
}

// printTable renders the same fixed-width column layout the teacher's
// printDetailedStatus uses in cmd/provisr/util.go, adapted to warden's
// snapshot fields.
func printTable(snapshots []snapshot) {
	if len(snapshots) == 0 {
		fmt.Println("No processes found")
		return
	}
	fmt.Printf("%-20s %-8s %-8s %-10s %-8s %-8s %-10s\n",
		"NAME", "PID", "STATUS", "RESTARTS", "UPTIME", "CPU%", "MEM")
	fmt.Println(strings.Repeat("-", 80))
	for _, sn := range snapshots {
		uptime := sn.Uptime
		if uptime == "" {
			uptime = "N/A"
		}
		fmt.Printf("%-20s %-8d %-8s %-10d %-8s %-8.1f %-10s\n",
			sn.Name, sn.PID, sn.Status, sn.RestartCount, uptime, sn.CPUPercent, formatBytes(sn.MemBytes))
	}
}

func formatBytes(b uint64) string {
	const mb = 1024 * 1024
	if b == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1fMB", float64(b)/mb)
}
