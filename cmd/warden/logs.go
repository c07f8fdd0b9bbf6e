package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nolan-k/warden/internal/logsink"
	"github.com/spf13/cobra"
)

func newLogsCmd(a *app) *cobra.Command {
	f := logsFlags{Stream: "stdout"}
	cmd := &cobra.Command{
		Use:   "logs [name]",
		Short: "Print or follow a managed process's stdout/stderr log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.Name = args[0]
			}
			if f.Name == "" {
				if err := a.requireConfig(); err != nil {
					return fmt.Errorf("logs: --name or a single-process --config is required")
				}
				name, _, err := resolveProcess(a.cfg, "")
				if err != nil {
					return err
				}
				f.Name = name
			}
			return runLogs(a, f)
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "process name")
	cmd.Flags().BoolVar(&f.Follow, "follow", false, "follow the log as it grows, like tail -f")
	cmd.Flags().StringVar(&f.Stream, "log-type", "stdout", "stdout|stderr")
	cmd.Flags().StringVar(&f.Date, "date", "", "day to read, YYYY-MM-DD (default: today, UTC)")
	return cmd
}

func runLogs(a *app, f logsFlags) error {
	day := time.Now().UTC()
	if f.Date != "" {
		d, err := time.Parse("2006-01-02", f.Date)
		if err != nil {
			return fmt.Errorf("logs: invalid --date %q: %w", f.Date, err)
		}
		day = d
	}
	stream := logsink.Stdout
	if f.Stream == "stderr" {
		stream = logsink.Stderr
	}
	path := a.ws.ProcessLogDir(f.Name, day)
	filename := "stdout.log"
	if stream == logsink.Stderr {
		filename = "stderr.log"
	}
	fullPath := filepath.Join(path, filename)

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("no log file for %s on %s\n", f.Name, day.Format("2006-01-02"))
			return nil
		}
		return fmt.Errorf("logs: open %s: %w", fullPath, err)
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(os.Stdout, bufio.NewReader(file)); err != nil {
		return fmt.Errorf("logs: read %s: %w", fullPath, err)
	}
	if !f.Follow {
		return nil
	}
	return followFile(file)
}

// followFile implements a tail -f loop: poll for new bytes at the current
// offset until interrupted. It does not handle log rotation across a day
// boundary — callers re-invoke `logs --date` for the new day.
func followFile(file *os.File) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigCh:
			return nil
		case <-ticker.C:
			if _, err := io.Copy(os.Stdout, reader); err != nil && err != io.EOF {
				return err
			}
		}
	}
}
