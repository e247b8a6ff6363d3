package proto

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names exchanged over the room connection.
const (
	EventJoin        = "join"
	EventSendMessage = "sendMessage"

	EventWelcome    = "welcome"
	EventUserJoined = "userJoined"
	EventUserLeft   = "userLeft"
	EventNewMessage = "newMessage"
	EventError      = "error"
)

// Error codes the reference server emits.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNameTaken   = "name_taken"
	ErrCodeNotJoined   = "not_joined"
	ErrCodeRateLimited = "rate_limited"
	ErrCodeUnknown     = "invalid_message"
)

// Envelope is one frame on the wire in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// User is a room member as the server describes it.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Message is a chat message as the server describes it.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// Welcome hands the full room state to a newly (re)joined client.
// Servers name the joiner either "self" or "user".
type Welcome struct {
	Self     *User     `json:"self,omitempty"`
	User     *User     `json:"user,omitempty"`
	Users    []User    `json:"users"`
	Messages []Message `json:"messages"`
}

// SelfUser returns the user the server attributes to the receiving client.
func (w Welcome) SelfUser() User {
	if w.Self != nil {
		return *w.Self
	}
	if w.User != nil {
		return *w.User
	}
	return User{}
}

// UserJoined carries full membership after an addition.
type UserJoined struct {
	User  *User  `json:"user,omitempty"`
	Users []User `json:"users"`
}

// UserLeft carries full membership after a removal.
type UserLeft struct {
	UserID string `json:"userId,omitempty"`
	Users  []User `json:"users"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Msg
}

// Encode marshals an event with its payload into a single frame.
func Encode(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode parses a frame into its envelope. The payload stays raw.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing event name")
	}
	return env, nil
}

// UnmarshalData decodes the envelope payload into v.
func (e Envelope) UnmarshalData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s payload: %w", e.Event, err)
	}
	return nil
}
