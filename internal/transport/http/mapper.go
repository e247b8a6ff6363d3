package http

import (
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
)

func inboundToCommand(env proto.Envelope) (*core.Command, *proto.Error) {
	switch env.Event {
	case proto.EventJoin:
		var name string
		if err := env.UnmarshalData(&name); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "username is required"}
		}
		return &core.Command{Kind: core.CommandJoin, Name: name}, nil
	case proto.EventSendMessage:
		var text string
		if err := env.UnmarshalData(&text); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "message text must be a string"}
		}
		return &core.Command{Kind: core.CommandSendMessage, Text: text}, nil
	default:
		return nil, &proto.Error{Code: proto.ErrCodeUnknown, Msg: "unknown event " + env.Event}
	}
}

// outbound is a server frame with its payload still typed.
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func outboundFromEvent(event *core.Event) outbound {
	var (
		name string
		data any
	)
	switch event.Kind {
	case core.EventWelcome:
		self := protoUser(event.User)
		name = proto.EventWelcome
		data = proto.Welcome{
			Self:     &self,
			Users:    protoUsers(event.Users),
			Messages: protoMessages(event.Messages),
		}
	case core.EventUserJoined:
		user := protoUser(event.User)
		name = proto.EventUserJoined
		data = proto.UserJoined{User: &user, Users: protoUsers(event.Users)}
	case core.EventUserLeft:
		name = proto.EventUserLeft
		data = proto.UserLeft{UserID: event.User.ID, Users: protoUsers(event.Users)}
	case core.EventNewMessage:
		name = proto.EventNewMessage
		data = protoMessage(event.Message)
	case core.EventError:
		name = proto.EventError
		if event.Error == nil {
			data = proto.Error{Code: "unknown", Msg: "unknown error"}
		} else {
			data = proto.Error{Code: event.Error.Code, Msg: event.Error.Message}
		}
	default:
		name = proto.EventError
		data = proto.Error{Code: "unknown", Msg: "unknown event"}
	}

	return outbound{Event: name, Data: data}
}

func protoUser(u core.User) proto.User {
	return proto.User{ID: u.ID, Username: u.Name}
}

func protoUsers(users []core.User) []proto.User {
	out := make([]proto.User, 0, len(users))
	for _, u := range users {
		out = append(out, protoUser(u))
	}
	return out
}

func protoMessage(m core.Message) proto.Message {
	return proto.Message{
		ID:        m.ID,
		Text:      m.Text,
		UserID:    m.UserID,
		Username:  m.Username,
		Timestamp: m.CreatedAt,
	}
}

func protoMessages(msgs []core.Message) []proto.Message {
	out := make([]proto.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, protoMessage(m))
	}
	return out
}
