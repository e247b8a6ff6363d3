package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/vovakirdan/roomchat/internal/room"
	"github.com/vovakirdan/roomchat/internal/store"
)

// view prints room changes as a running transcript.
type view struct {
	out io.Writer

	printed   map[string]struct{}
	status    room.Status
	roster    string
	announced bool
}

func newView(out io.Writer) *view {
	return &view{out: out, printed: make(map[string]struct{})}
}

// render prints whatever changed since the previous call.
func (v *view) render(snap store.Snapshot, status room.Status) {
	if status != v.status {
		v.status = status
		if line := statusLine(status); line != "" {
			fmt.Fprintln(v.out, line)
		}
	}

	if status.Kind != room.StatusConnected && status.Kind != room.StatusReconnecting {
		return
	}
	if snap.SelfID == "" {
		return
	}

	if roster := rosterLine(snap.Users); roster != v.roster {
		v.roster = roster
		fmt.Fprintln(v.out, roster)
	}

	if len(snap.Messages) == 0 && !v.announced {
		fmt.Fprintln(v.out, "* No messages yet. Start the conversation!")
	}
	v.announced = true

	for _, m := range snap.Messages {
		if _, ok := v.printed[m.ID]; ok {
			continue
		}
		v.printed[m.ID] = struct{}{}
		fmt.Fprintln(v.out, messageLine(snap, m))
	}
}

// users prints the roster on demand.
func (v *view) users(snap store.Snapshot) {
	if len(snap.Users) == 0 {
		fmt.Fprintln(v.out, "* No users online")
		return
	}
	fmt.Fprintln(v.out, rosterLine(snap.Users))
	for _, u := range snap.Users {
		marker := " "
		if u.ID == snap.SelfID {
			marker = "*"
		}
		fmt.Fprintf(v.out, "  %s %s\n", marker, u.Username)
	}
}

func statusLine(s room.Status) string {
	switch s.Kind {
	case room.StatusConnecting:
		return "* Connecting to chat server..."
	case room.StatusConnected:
		if s.Message != "" {
			return "! " + s.Message
		}
		return "* Connected"
	case room.StatusReconnecting:
		if s.Message != "" {
			return "* Reconnecting... (" + s.Message + ")"
		}
		return "* Reconnecting..."
	case room.StatusError:
		return "! Connection Error: " + s.Message + " (type /retry to try again)"
	default:
		return ""
	}
}

func rosterLine(users []store.User) string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	return fmt.Sprintf("* Users Online (%d): %s", len(users), strings.Join(names, ", "))
}

func messageLine(snap store.Snapshot, m store.Message) string {
	author := m.AuthorName
	if snap.IsOwn(m) {
		author = "You"
	}
	return fmt.Sprintf("[%s] %s: %s", m.SentAt.Local().Format("15:04"), author, m.Text)
}
