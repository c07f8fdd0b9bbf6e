// Package config loads the JSON or YAML configuration file described by
// spec.md §6.4: a global section, a map of named process definitions, and a
// tuning section of timing knobs. It is built on viper + mapstructure, the
// same pair the teacher's internal/config uses, scoped down to exactly the
// three option groups the supervisor needs (the teacher's groups/store/
// server/cronjob/detector-conversion machinery has no SPEC_FULL.md
// counterpart and is not carried over).
package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Global holds workspace-wide defaults, applied to every process unless a
// Process entry overrides them.
type Global struct {
	WorkingDir string            `mapstructure:"working_dir"`
	Env        map[string]string `mapstructure:"env"`
	Log        LogConfig         `mapstructure:"log"`
}

// LogConfig configures the level and rotation of each monitor's own
// diagnostic log (internal/logger).
type LogConfig struct {
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxFiles   int    `mapstructure:"max_files"`
}

// Process is one named program entry from the "processes" map.
type Process struct {
	Program        string            `mapstructure:"program"`
	Args           []string          `mapstructure:"args"`
	WorkingDir     string            `mapstructure:"working_dir"`
	Env            map[string]string `mapstructure:"env"`
	AutoRestart    bool              `mapstructure:"auto_restart"`
	StartDelaySec  int               `mapstructure:"start_delay_sec"`
	MaxRestarts    int               `mapstructure:"max_restarts"`
	DependsOn      []string          `mapstructure:"depends_on"`
	HealthCheckURL string            `mapstructure:"health_check_url"`
	Port           uint16            `mapstructure:"port"`

	// Hooks and Instances are supplemental features (SPEC_FULL.md §4),
	// adapted from the teacher's process.Spec lifecycle hooks and instance
	// count, absent from spec.md's Process fields but additive to them.
	Hooks     Hooks `mapstructure:"hooks"`
	Instances int   `mapstructure:"instances"`

	// History gates whether this process's start/stop events are sent to
	// the run-history sink (SPEC_FULL.md §3.4). Nil means "inherit the
	// top-level History.Enabled".
	HistoryEnabled *bool `mapstructure:"history_enabled"`
}

// Hooks names the lifecycle commands run around a process's start/stop,
// adapted from the teacher's internal/process/lifecycle.go.
type Hooks struct {
	PreStart  string `mapstructure:"pre_start"`
	PostStart string `mapstructure:"post_start"`
	PreStop   string `mapstructure:"pre_stop"`
	PostStop  string `mapstructure:"post_stop"`
	// FailureMode is one of "fail" (default), "ignore", "retry".
	FailureMode string `mapstructure:"failure_mode"`
}

// Tuning holds the timing knobs spec.md §6.4 lists, all in the units named
// by their field's suffix.
type Tuning struct {
	InitWaitSecs               int `mapstructure:"init_wait_secs"`
	HealthCheckTimeoutSecs     int `mapstructure:"health_check_timeout_secs"`
	HealthCheckRetries         int `mapstructure:"health_check_retries"`
	RetryIntervalSecs          int `mapstructure:"retry_interval_secs"`
	GracefulShutdownTimeoutSecs int `mapstructure:"graceful_shutdown_timeout_secs"`
	ExitWaitMS                 int `mapstructure:"exit_wait_ms"`
	DefaultPort                int `mapstructure:"default_port"`
}

// withDefaults returns the tuning section with spec.md §6.4's built-in defaults
// applied to any zero field.
func (t Tuning) withDefaults() Tuning {
	if t.InitWaitSecs <= 0 {
		t.InitWaitSecs = 5
	}
	if t.HealthCheckTimeoutSecs <= 0 {
		t.HealthCheckTimeoutSecs = 5
	}
	if t.HealthCheckRetries <= 0 {
		t.HealthCheckRetries = 10
	}
	if t.RetryIntervalSecs <= 0 {
		t.RetryIntervalSecs = 2
	}
	if t.GracefulShutdownTimeoutSecs <= 0 {
		t.GracefulShutdownTimeoutSecs = 3
	}
	if t.ExitWaitMS <= 0 {
		t.ExitWaitMS = 500
	}
	if t.DefaultPort <= 0 {
		t.DefaultPort = 8080
	}
	return t
}

// MetricsConfig gates the optional /metrics endpoint (SPEC_FULL.md §3, the
// considered-and-wired prometheus/client_golang dependency).
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// HistoryConfig gates the optional run-history sink (SPEC_FULL.md §3.4).
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// Config is the fully decoded, default-applied configuration file.
type Config struct {
	Global    Global             `mapstructure:"global"`
	Processes map[string]Process `mapstructure:"processes"`
	Tuning    Tuning             `mapstructure:"tuning"`
	Metrics   MetricsConfig      `mapstructure:"metrics"`
	History   HistoryConfig      `mapstructure:"history"`
}

// Load reads and decodes the config file at path (JSON or YAML, detected by
// viper from the extension), applies built-in tuning defaults, merges each
// process's working dir and env over the global ones (process wins),
// rejects a process with an empty program, and defaults max_restarts to 3,
// hooks.failure_mode to "fail" and instances to 1. Process names are not
// validated here.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	cfg.Tuning = cfg.Tuning.withDefaults()

	for name, proc := range cfg.Processes {
		if strings.TrimSpace(proc.Program) == "" {
			return nil, fmt.Errorf("config: process %q: program is required", name)
		}
		if proc.WorkingDir == "" {
			proc.WorkingDir = cfg.Global.WorkingDir
		}
		proc.Env = mergeEnv(cfg.Global.Env, proc.Env)
		if proc.MaxRestarts <= 0 {
			proc.MaxRestarts = 3
		}
		if proc.Hooks.FailureMode == "" {
			proc.Hooks.FailureMode = "fail"
		}
		if proc.Instances <= 0 {
			proc.Instances = 1
		}
		cfg.Processes[name] = proc
	}

	return &cfg, nil
}

// mergeEnv returns a new map with global's entries overridden by process's.
func mergeEnv(global, process map[string]string) map[string]string {
	merged := make(map[string]string, len(global)+len(process))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range process {
		merged[k] = v
	}
	return merged
}

// EnvSlice renders a map as "KEY=VALUE" pairs suitable for exec.Cmd.Env.
// The result holds only env's entries; it does not include the current
// process's own environment.
func EnvSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
