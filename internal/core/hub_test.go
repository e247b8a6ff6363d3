package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestHubJoinBroadcastAndLeave(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(nil, 0, nil) // No history needed for this test
	go hub.Run(ctx)

	alice := NewClient("a")
	bob := NewClient("b")

	hub.RegisterClient(alice)
	hub.RegisterClient(bob)

	alice.Commands <- &Command{Kind: CommandJoin, Name: "alice"}
	welcome := mustEvent(t, alice.Events, EventWelcome)
	if welcome.User.ID != "a" || welcome.User.Name != "alice" || len(welcome.Users) != 1 {
		t.Fatalf("unexpected welcome: %+v", welcome)
	}

	bob.Commands <- &Command{Kind: CommandJoin, Name: " bob "}
	mustEvent(t, bob.Events, EventWelcome)

	// Alice sees bob join with the full roster.
	joinEv := mustEvent(t, alice.Events, EventUserJoined)
	if joinEv.User.Name != "bob" || len(joinEv.Users) != 2 || joinEv.Users[0].ID != "a" {
		t.Fatalf("unexpected join event: %+v", joinEv)
	}

	// Broadcast message from Alice reaches both members.
	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "hi"}

	msgEv := mustEvent(t, bob.Events, EventNewMessage)
	if msgEv.Message.Text != "hi" || msgEv.Message.Username != "alice" || msgEv.Message.UserID != "a" || msgEv.Message.ID == "" {
		t.Fatalf("unexpected message event: %+v", msgEv)
	}
	own := mustEvent(t, alice.Events, EventNewMessage)
	if own.Message.ID != msgEv.Message.ID {
		t.Fatalf("sender got a different message id: %s vs %s", own.Message.ID, msgEv.Message.ID)
	}

	// Alice disconnects; Bob should see userLeft.
	hub.UnregisterClient(alice)
	leftEv := mustEvent(t, bob.Events, EventUserLeft)
	if leftEv.User.ID != "a" || len(leftEv.Users) != 1 || leftEv.Users[0].ID != "b" {
		t.Fatalf("unexpected leave event: %+v", leftEv)
	}
}

func TestHubDuplicateNameProducesError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := NewHub(nil, 0, nil)
	go hub.Run(ctx)

	alice := NewClient("a")
	impostor := NewClient("x")
	hub.RegisterClient(alice)
	hub.RegisterClient(impostor)

	alice.Commands <- &Command{Kind: CommandJoin, Name: "alice"}
	mustEvent(t, alice.Events, EventWelcome)

	impostor.Commands <- &Command{Kind: CommandJoin, Name: "alice"}
	ev := mustEvent(t, impostor.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNameTaken {
		t.Fatalf("expected name_taken error, got %+v", ev)
	}
}

func TestHubRepeatedJoinResendsWelcome(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := NewHub(nil, 0, nil)
	go hub.Run(ctx)

	alice := NewClient("a")
	hub.RegisterClient(alice)

	alice.Commands <- &Command{Kind: CommandJoin, Name: "alice"}
	mustEvent(t, alice.Events, EventWelcome)
	alice.Commands <- &Command{Kind: CommandJoin, Name: "alice"}
	ev := mustEvent(t, alice.Events, EventWelcome)
	if len(ev.Users) != 1 {
		t.Fatalf("repeated join duplicated membership: %+v", ev.Users)
	}
}

func TestHubEmptyNameProducesError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := NewHub(nil, 0, nil)
	go hub.Run(ctx)

	alice := NewClient("a")
	hub.RegisterClient(alice)

	alice.Commands <- &Command{Kind: CommandJoin, Name: "   "}

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeBadRequest {
		t.Fatalf("expected bad_request error, got %+v", ev)
	}
}

func TestHubSendWithoutJoinProducesError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := NewHub(nil, 0, nil)
	go hub.Run(ctx)

	alice := NewClient("a")
	hub.RegisterClient(alice)

	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "hi"}

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotJoined {
		t.Fatalf("expected not_joined error, got %+v", ev)
	}
}

func TestHubIgnoresBlankMessages(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	history := &recordingHistory{}
	hub := NewHub(history, 10, nil)
	go hub.Run(ctx)

	alice := NewClient("a")
	hub.RegisterClient(alice)
	alice.Commands <- &Command{Kind: CommandJoin, Name: "alice"}
	mustEvent(t, alice.Events, EventWelcome)

	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "  \n "}
	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "real"}

	ev := mustEvent(t, alice.Events, EventNewMessage)
	if ev.Message.Text != "real" {
		t.Fatalf("blank message was broadcast: %+v", ev.Message)
	}
	if n := len(history.snapshot()); n != 1 {
		t.Fatalf("expected 1 stored message, got %d", n)
	}
}

func TestHubWelcomeCarriesHistory(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	history := &recordingHistory{}
	hub := NewHub(history, 2, nil)
	go hub.Run(ctx)

	alice := NewClient("a")
	hub.RegisterClient(alice)
	alice.Commands <- &Command{Kind: CommandJoin, Name: "alice"}
	mustEvent(t, alice.Events, EventWelcome)

	for _, text := range []string{"one", "two", "three"} {
		alice.Commands <- &Command{Kind: CommandSendMessage, Text: text}
		mustEvent(t, alice.Events, EventNewMessage)
	}

	bob := NewClient("b")
	hub.RegisterClient(bob)
	bob.Commands <- &Command{Kind: CommandJoin, Name: "bob"}
	ev := mustEvent(t, bob.Events, EventWelcome)
	if len(ev.Messages) != 2 || ev.Messages[0].Text != "two" || ev.Messages[1].Text != "three" {
		t.Fatalf("unexpected history in welcome: %+v", ev.Messages)
	}
}

func TestHubHistoryErrorsDoNotBlockChat(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := NewHub(&recordingHistory{err: errors.New("disk full")}, 10, nil)
	go hub.Run(ctx)

	alice := NewClient("a")
	hub.RegisterClient(alice)
	alice.Commands <- &Command{Kind: CommandJoin, Name: "alice"}
	if ev := mustEvent(t, alice.Events, EventWelcome); len(ev.Messages) != 0 {
		t.Fatalf("expected no history, got %+v", ev.Messages)
	}

	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "still here"}
	mustEvent(t, alice.Events, EventNewMessage)
}

func TestHubKick(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hub := NewHub(nil, 0, nil)
	go hub.Run(ctx)

	alice := NewClient("a")
	bob := NewClient("b")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)
	alice.Commands <- &Command{Kind: CommandJoin, Name: "alice"}
	mustEvent(t, alice.Events, EventWelcome)
	bob.Commands <- &Command{Kind: CommandJoin, Name: "bob"}
	mustEvent(t, bob.Events, EventWelcome)

	if hub.Kick("nobody") {
		t.Fatalf("kick of unknown user reported success")
	}
	if !hub.Kick("a") {
		t.Fatalf("kick of alice failed")
	}

	select {
	case <-alice.Kicked():
	case <-time.After(time.Second):
		t.Fatalf("kicked channel not closed")
	}
	left := mustEvent(t, bob.Events, EventUserLeft)
	if left.User.ID != "a" {
		t.Fatalf("unexpected leave event: %+v", left)
	}

	// The name is free again for a new connection.
	again := NewClient("a2")
	hub.RegisterClient(again)
	again.Commands <- &Command{Kind: CommandJoin, Name: "alice"}
	mustEvent(t, again.Events, EventWelcome)
}

func TestHubStopReleasesCallers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, 0, nil)
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	// Neither call may block once the hub is gone.
	hub.RegisterClient(NewClient("late"))
	hub.UnregisterClient(NewClient("late"))
	if hub.Kick("late") {
		t.Fatalf("kick succeeded on stopped hub")
	}
}

type recordingHistory struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (h *recordingHistory) Append(_ context.Context, msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.messages = append(h.messages, msg)
	return nil
}

func (h *recordingHistory) Recent(_ context.Context, limit int) ([]Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	start := len(h.messages) - limit
	if start < 0 {
		start = 0
	}
	return append([]Message(nil), h.messages[start:]...), nil
}

func (h *recordingHistory) Close() error { return nil }

func (h *recordingHistory) snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.messages...)
}
