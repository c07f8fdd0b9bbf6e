// Package osadapter is the narrow polymorphic boundary between the
// supervisor and the host OS: liveness, signalling, port ownership, resource
// sampling, and detached spawning. Every exported function has a POSIX and a
// Windows implementation in the platform-suffixed files. Packages above this
// one do not import golang.org/x/sys; they import syscall only for the
// signal values handed to os/signal.
package osadapter

import "time"

// ForcefulWaitBudget bounds how long SignalForceful waits for the OS to
// reclaim a pid after acknowledging the kill, per spec's "observed the OS no
// longer holds the pid or a bounded wait has elapsed" guarantee.
const ForcefulWaitBudget = 500 * time.Millisecond

// Usage is a best-effort resource snapshot for a pid. Any field may be the
// zero value when the adapter could not determine it; callers must not treat
// zero as a measurement.
type Usage struct {
	UptimeSec  float64
	CPUPercent float64
	RSSBytes   uint64
	Known      bool
}

// SpawnSpec describes a detached process to launch. All three standard
// streams are redirected to the OS null device regardless of platform.
type SpawnSpec struct {
	Argv       []string
	Env        []string
	WorkingDir string
}
