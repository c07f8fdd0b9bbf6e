// Package statestore is the cross-invocation rendezvous: the per-process JSON
// record that lets a later control invocation find, inspect, and terminate a
// running child started by an earlier one.
package statestore

import "time"

// Record is the on-disk state for one managed process, persisted at
// <workspace>/.state/processes/<name>/state.json. Fields are forward
// compatible: unknown JSON keys are ignored on load, and struct fields added
// later default to their zero value for records written by older binaries.
type Record struct {
	PID              int      `json:"pid,omitempty"`
	MonitorPID       int      `json:"monitor_pid,omitempty"`
	Program          string   `json:"program"`
	Args             []string `json:"args,omitempty"`
	WorkingDir       string   `json:"working_dir"`
	Port             uint16   `json:"port,omitempty"`
	HealthCheckURL   string   `json:"health_check_url,omitempty"`
	RestartCount     uint64   `json:"restart_count"`
	LastStartEpochMS int64    `json:"last_start_epoch_ms,omitempty"`

	// Status is the supervisor's last-known state-machine node (see
	// supervisor.State) as of the last save. It is advisory only: the
	// authoritative "is it running" answer always re-checks pid liveness
	// against the OS adapter per spec.md §4.8, never trusts this field alone.
	Status       string `json:"status,omitempty"`
	LastExitCode int    `json:"last_exit_code,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

// Running reports whether the record believes a user process was spawned.
// This is a cheap structural check only; callers MUST still verify liveness
// against the OS adapter before trusting it (spec.md §3.1 invariant: a set
// pid may refer to a process that has since exited).
func (r Record) Running() bool { return r.PID != 0 }

// ClearRunning zeroes the pid/monitor_pid pair while leaving restart_count
// and last_start_epoch_ms untouched, per the §3.1 invariant that those two
// counters persist across a graceful stop.
func (r *Record) ClearRunning() {
	r.PID = 0
	r.MonitorPID = 0
}

// Touch stamps the record for a (re)spawn: pid, spawn context, and start
// time. monitor_pid is deliberately left untouched — it is independent of
// the user process pid and may outlive several respawns.
func (r *Record) Touch(pid int, program string, args []string, workingDir string, port uint16, healthCheckURL string, now time.Time) {
	r.PID = pid
	r.Program = program
	r.Args = args
	r.WorkingDir = workingDir
	r.Port = port
	r.HealthCheckURL = healthCheckURL
	r.LastStartEpochMS = now.UnixMilli()
}

// SetStatus records the supervisor's current state-machine node for
// observability, optionally with the last exit code/error (zero value and
// empty string clear them).
func (r *Record) SetStatus(status string, exitCode int, lastErr string) {
	r.Status = status
	r.LastExitCode = exitCode
	r.LastError = lastErr
}
