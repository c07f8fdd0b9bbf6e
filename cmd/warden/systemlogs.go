package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newSystemLogsCmd(a *app) *cobra.Command {
	f := systemLogsFlags{}
	cmd := &cobra.Command{
		Use:   "system-logs",
		Short: "Print or follow the workspace's day-bucketed system log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystemLogs(a, f)
		},
	}
	cmd.Flags().BoolVar(&f.Follow, "follow", false, "follow the log as it grows, like tail -f")
	cmd.Flags().StringVar(&f.Date, "date", "", "day to read, YYYY-MM-DD (default: today, UTC)")
	return cmd
}

func runSystemLogs(a *app, f systemLogsFlags) error {
	day := time.Now().UTC()
	if f.Date != "" {
		d, err := time.Parse("2006-01-02", f.Date)
		if err != nil {
			return fmt.Errorf("system-logs: invalid --date %q: %w", f.Date, err)
		}
		day = d
	}
	path := a.ws.SystemLogFile(day)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("no system log for %s\n", day.Format("2006-01-02"))
			return nil
		}
		return fmt.Errorf("system-logs: open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(os.Stdout, bufio.NewReader(file)); err != nil {
		return fmt.Errorf("system-logs: read %s: %w", path, err)
	}
	if !f.Follow {
		return nil
	}
	return followFile(file)
}
