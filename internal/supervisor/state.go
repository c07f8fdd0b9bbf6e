package supervisor

// State names one node of the state machine spec.md §4.4 draws. Values are
// also used as-is for the current_state Prometheus label and for
// statestore.Record's status field, so they are lowercase snake_case.
type State string

const (
	Spawning       State = "spawning"
	InitWait       State = "init_wait"
	Probing        State = "probing"
	Running        State = "running"
	ExitClassify   State = "exit_classify"
	RestartBackoff State = "restart_backoff"
	Stopped        State = "stopped"
	Failed         State = "failed"
)
