package streamable

// State is the transport's connection state machine:
// Disconnected → Connecting → {Connected, SseConnected, Error}.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSseConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSseConnected:
		return "sse_connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateCallback is invoked exactly once per state transition.
type StateCallback func(State)
