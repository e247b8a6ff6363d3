package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventWelcome hands the room state to a client that just joined.
	EventWelcome EventKind = iota
	// EventUserJoined notifies members about a new member.
	EventUserJoined
	// EventUserLeft notifies members about a departure.
	EventUserLeft
	// EventNewMessage notifies members about a chat message.
	EventNewMessage
	// EventError notifies a client about a domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventWelcome:
		return "welcome"
	case EventUserJoined:
		return "userJoined"
	case EventUserLeft:
		return "userLeft"
	case EventNewMessage:
		return "newMessage"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the room.
// Users always carries the full membership after the change.
type Event struct {
	Kind     EventKind
	User     User
	Users    []User
	Message  Message
	Messages []Message // EventWelcome
	Error    *CoreError
}
