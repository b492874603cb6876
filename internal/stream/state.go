package stream

// State is the engine's connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateAuthenticating
	StateSubscribing
	StateStreaming
	StateStale
	StateError
	StateReconnecting
	StateTerminated
)

// String returns the state name for logs and metrics.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAuthenticating:
		return "authenticating"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateStale:
		return "stale"
	case StateError:
		return "error"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Terminal reports whether the engine can never leave this state.
func (s State) Terminal() bool {
	return s == StateTerminated
}
