package transport

// State represents the lifecycle stage of a session.
type State int

const (
	// StateIdle means no session is open.
	StateIdle State = iota

	// StatePreflighting means the reachability check is in flight.
	StatePreflighting

	// StateConnecting means the first WebSocket dial is in flight.
	StateConnecting

	// StateConnected means a connection is established and usable.
	StateConnected

	// StateReconnecting means the connection dropped and the retry schedule is running.
	StateReconnecting

	// StateFailed means the session gave up. Only a new Open recovers.
	StateFailed
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreflighting:
		return "preflighting"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DisconnectReason explains why an established connection ended.
type DisconnectReason string

const (
	ReasonServerDisconnect DisconnectReason = "io server disconnect"
	ReasonClientDisconnect DisconnectReason = "io client disconnect"
	ReasonTransportClose   DisconnectReason = "transport close"
	ReasonTransportError   DisconnectReason = "transport error"
	ReasonPingTimeout      DisconnectReason = "ping timeout"
)

// EventKind identifies what a session reports to its listener.
type EventKind int

const (
	// EventStateChanged reports Preflighting, Connecting or Reconnecting.
	EventStateChanged EventKind = iota
	// EventConnected reports a usable connection.
	EventConnected
	// EventDisconnected reports an unexpected end of the connection.
	EventDisconnected
	// EventConnectionError reports a failed dial. The retry schedule continues.
	EventConnectionError
	// EventMessage delivers one inbound frame.
	EventMessage
	// EventFailed is terminal: the session stopped and will not retry.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventConnectionError:
		return "connection_error"
	case EventMessage:
		return "message"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is delivered to the Listener registered by Open.
type Event struct {
	Kind    EventKind
	State   State
	Reason  DisconnectReason // EventDisconnected
	Err     error            // EventConnectionError, EventFailed
	Payload []byte           // EventMessage
}

// Listener receives session events sequentially, in the order they happened.
// A listener must not call Open.
type Listener func(Event)

// Dispose releases everything acquired by the Open call that returned it.
type Dispose func()
