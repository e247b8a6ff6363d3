package room

import (
	"errors"
	"fmt"
)

// JoinState tracks the join handshake on top of the transport lifecycle.
type JoinState int

const (
	// NotJoined: no join in progress, or the last one ended for good.
	NotJoined JoinState = iota
	// Joining: join sent, waiting for welcome.
	Joining
	// Joined: welcome applied, incremental events flow into the store.
	Joined
	// Rejoining: transport dropped; room state is kept until the next welcome.
	Rejoining
)

func (s JoinState) String() string {
	switch s {
	case NotJoined:
		return "not_joined"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Rejoining:
		return "rejoining"
	default:
		return "unknown"
	}
}

// StatusKind is the connection state the view renders.
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is what the view shows next to the room. Message is human readable:
// the terminal error for StatusError, otherwise the latest transient notice.
type Status struct {
	Kind    StatusKind
	Message string
}

// CanRetry reports whether the view should offer a manual retry.
func (s Status) CanRetry() bool {
	return s.Kind == StatusError
}

// ErrNothingToRetry is returned by Retry before any Join.
var ErrNothingToRetry = errors.New("no previous join to retry")

// RejectedError is a deliberate refusal of the join by the server.
type RejectedError struct {
	Code string
	Msg  string
}

func (e *RejectedError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("join rejected: %s", e.Code)
	}
	return e.Msg
}
