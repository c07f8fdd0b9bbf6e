package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nolan-k/warden/internal/config"
)

// printJSON renders v as indented JSON to stdout, the same helper the
// teacher's cmd/provisr/util.go uses for every --json / config-driven path.
func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// formatUptime renders a duration the way the teacher's getUptime does:
// seconds under a minute, minutes under an hour, otherwise hours+minutes.
func formatUptime(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
}

// resolveProcess finds the named process in cfg, or, when name is empty and
// cfg declares exactly one, defaults to it — mirroring the teacher's
// --name default="demo" single-process convenience but scoped to what the
// loaded config actually declares.
func resolveProcess(cfg *config.Config, name string) (string, config.Process, error) {
	if name == "" {
		if len(cfg.Processes) == 1 {
			for n, p := range cfg.Processes {
				return n, p, nil
			}
		}
		return "", config.Process{}, fmt.Errorf("process name is required (config declares %d processes)", len(cfg.Processes))
	}
	proc, ok := cfg.Processes[name]
	if !ok {
		return "", config.Process{}, fmt.Errorf("process %q is not declared in config", name)
	}
	return name, proc, nil
}

// instanceNames expands a process declaration's instance count into the
// concrete record names the supervisor addresses, adapted from the teacher's
// Manager.StartN/StopAll naming convention ("name-1".."name-N"). A process
// with Instances<=1 (the config default) expands to its own bare name.
func instanceNames(name string, proc config.Process) []string {
	if proc.Instances <= 1 {
		return []string{name}
	}
	names := make([]string, proc.Instances)
	for i := 0; i < proc.Instances; i++ {
		names[i] = fmt.Sprintf("%s-%d", name, i+1)
	}
	return names
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func statusLine(parts ...string) {
	fmt.Println("STATUS:" + strings.Join(parts, ":"))
}
