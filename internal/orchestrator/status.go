package orchestrator

// StatusKind identifies a worker lifecycle state
type StatusKind int

const (
	// StatusPending means the worker is registered but not yet running
	StatusPending StatusKind = iota
	// StatusRunning means the worker is executing an instruction
	StatusRunning
	// StatusCompleted means the worker finished all its work
	StatusCompleted
	// StatusFailed means an instruction failed
	StatusFailed
	// StatusShutdown means the worker was forcibly terminated
	StatusShutdown
)

// Terminal reports whether no further transition can leave this state
func (k StatusKind) Terminal() bool {
	switch k {
	case StatusCompleted, StatusFailed, StatusShutdown:
		return true
	default:
		return false
	}
}

func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Status is a worker's lifecycle state plus its completion message or
// failure reason.
type Status struct {
	Kind    StatusKind
	Message string
}
