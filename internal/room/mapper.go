package room

import (
	"strings"

	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/store"
)

func usersFromProto(in []proto.User) []store.User {
	out := make([]store.User, 0, len(in))
	for _, u := range in {
		if u.ID == "" {
			continue
		}
		out = append(out, store.User{ID: u.ID, Username: u.Username})
	}
	return out
}

func messageFromProto(m proto.Message) (store.Message, bool) {
	if m.ID == "" || strings.TrimSpace(m.Text) == "" {
		return store.Message{}, false
	}
	return store.Message{
		ID:         m.ID,
		Text:       m.Text,
		AuthorID:   m.UserID,
		AuthorName: m.Username,
		SentAt:     m.Timestamp,
	}, true
}

func messagesFromProto(in []proto.Message) []store.Message {
	out := make([]store.Message, 0, len(in))
	for _, m := range in {
		if msg, ok := messageFromProto(m); ok {
			out = append(out, msg)
		}
	}
	return out
}
