package agent

// State represents the current lifecycle state of an agent.
type State int32

const (
	// StateCreated indicates the agent was constructed but not started
	StateCreated State = iota
	// StateStarting indicates the listener is being opened
	StateStarting
	// StateRunning indicates the agent is accepting connections
	StateRunning
	// StateShuttingDown indicates a termination request is in progress
	StateShuttingDown
	// StateTerminated indicates the agent has stopped. Terminal.
	StateTerminated
)

// String returns a string representation of the agent state
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
