package supervisor

import "errors"

// Sentinel errors surfaced by Run, matching the teacher's flat
// errors.New-var convention (internal/cron, internal/history all do the
// same rather than a custom error-kind hierarchy).
var (
	ErrSpawnFailed                = errors.New("supervisor: spawn failed")
	ErrChildDiedDuringInit        = errors.New("supervisor: child died during init wait")
	ErrChildDiedDuringHealthCheck = errors.New("supervisor: child died during health check")
	ErrHealthCheckFailed          = errors.New("supervisor: health check failed")
	ErrHookFailed                 = errors.New("supervisor: lifecycle hook failed")
	ErrRestartBudgetExhausted     = errors.New("supervisor: restart budget exhausted")
)
