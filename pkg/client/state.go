package client

// SessionState tracks a session through its lifecycle. States only move
// forward: Idle → Connecting → Open → Ready → Closed, with Error as the
// terminal state for sessions torn down by a failure.
type SessionState int32

const (
	// StateIdle means no connection exists or has been attempted.
	StateIdle SessionState = iota
	// StateConnecting means the websocket dial or the server handshake is
	// still in flight.
	StateConnecting
	// StateOpen means the websocket is established but the backend has not
	// yet reported the conversation ready.
	StateOpen
	// StateReady means both handshake signals arrived and audio may flow.
	StateReady
	// StateClosed means the session ended deliberately.
	StateClosed
	// StateError means the session ended because of a failure. The cause is
	// available via [Session.Err].
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
