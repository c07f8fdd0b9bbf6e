// Package logger builds the structured slog.Logger used for each monitor's
// own diagnostic log (as opposed to the supervised process's stdout/stderr,
// which internal/logsink writes as plain append-only files). Output is
// rotated with lumberjack; callers pick a day-bucketed path
// (workspace.Layout already encodes the day) so rotation only has to handle
// within-day growth. No component of this module writes the day-bucketed
// system log file that `warden system-logs` reads.
package logger

import (
	"io"
	"log/slog"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters, applied when a Config leaves them at zero.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config controls both the handler format and file rotation.
type Config struct {
	Level      slog.Level
	JSON       bool // JSON handler when true, colorized text otherwise
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func (c Config) rotator(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// New builds a logger writing to w, honoring cfg's format and level.
func New(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(NewColorTextHandler(w, opts, true))
}

// NewFile builds a logger that writes exclusively to a rotated file at path,
// creating parent directories as needed. The returned io.Closer releases the
// underlying rotator; callers should defer its Close.
func NewFile(cfg Config, path string) (*slog.Logger, io.Closer, error) {
	rot := cfg.rotator(path)
	return New(cfg, rot), rot, nil
}

// NewTee builds a logger that writes to both a rotated file and an
// interactive stream (e.g. os.Stderr for a foreground control invocation).
func NewTee(cfg Config, path string, interactive io.Writer) (*slog.Logger, io.Closer, error) {
	rot := cfg.rotator(path)
	return New(cfg, io.MultiWriter(rot, interactive)), rot, nil
}

// Stderr builds a logger writing only to os.Stderr, for short-lived control
// invocations that never touch the filesystem log.
func Stderr(cfg Config) *slog.Logger {
	return New(cfg, os.Stderr)
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
