package manager

// State represents lifecycle state of the manager.
type State string

const (
	StateReady    State = "ready"
	StateDraining State = "draining"
	StateError    State = "error"
)

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State    State
	Err      string
	QueueLen int
	Inflight int
}
