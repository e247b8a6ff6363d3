package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoin claims a username and enters the room.
	CommandJoin CommandKind = iota
	// CommandSendMessage delivers a chat message to everyone in the room.
	CommandSendMessage
)

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind
	Name string
	Text string
}
