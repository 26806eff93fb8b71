package supervisor

// State is the supervisor's authoritative view of the service.
//
// State machine:
//
//	Stopped -> Starting -> Running -> Stopping -> Stopped
//
// Error is reachable from Starting and Stopping; a fresh Start re-enters
// Starting from Error.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
