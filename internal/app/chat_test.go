package app

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/room"
	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/transport"
)

func startRoomServer(t *testing.T) (*Server, string) {
	t.Helper()

	cfg := config.DefaultServer()
	cfg.RateLimit = 0
	logger := zerolog.Nop()

	srv, err := NewServer(cfg, &logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Hub().Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func testClientConfig(endpoint string) config.Client {
	cfg := config.DefaultClient()
	cfg.Endpoint = endpoint
	cfg.PreflightTimeout = time.Second
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.ReconnectDelayMax = 100 * time.Millisecond
	cfg.ReconnectJitter = 0
	cfg.ServerReconnectDelay = 20 * time.Millisecond
	cfg.PingInterval = 0
	return cfg
}

func newTestChat(t *testing.T, endpoint string) *Chat {
	t.Helper()
	logger := zerolog.Nop()
	c := NewChat(testClientConfig(endpoint), &logger)
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func joined(c *Chat) func() bool {
	return func() bool { return c.State() == room.Joined }
}

func hasText(snap store.Snapshot, text string) bool {
	for _, m := range snap.Messages {
		if m.Text == text {
			return true
		}
	}
	return false
}

func TestChatEndToEnd(t *testing.T) {
	_, endpoint := startRoomServer(t)
	ctx := context.Background()

	alice := newTestChat(t, endpoint)
	if err := alice.Join("alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitFor(t, "alice joined", joined(alice))

	snap := alice.Snapshot()
	if snap.SelfID == "" || len(snap.Users) != 1 || snap.Users[0].Username != "alice" {
		t.Fatalf("unexpected snapshot after join: %+v", snap)
	}
	if alice.Status().Kind != room.StatusConnected {
		t.Fatalf("unexpected status: %+v", alice.Status())
	}
	select {
	case <-alice.Updates():
	default:
		t.Fatalf("no update signalled")
	}

	if alice.SendMessage(ctx, "   ") {
		t.Fatalf("blank message sent")
	}
	if !alice.SendMessage(ctx, "hi") {
		t.Fatalf("message not sent")
	}
	waitFor(t, "alice sees her message", func() bool { return hasText(alice.Snapshot(), "hi") })

	snap = alice.Snapshot()
	if len(snap.Messages) != 1 || !snap.IsOwn(snap.Messages[0]) {
		t.Fatalf("own message not recorded once: %+v", snap.Messages)
	}

	bob := newTestChat(t, endpoint)
	if err := bob.Join("bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	waitFor(t, "bob joined", joined(bob))
	waitFor(t, "alice sees bob", func() bool { return len(alice.Snapshot().Users) == 2 })

	bobSnap := bob.Snapshot()
	if len(bobSnap.Messages) != 1 || bobSnap.Messages[0].Text != "hi" || bobSnap.IsOwn(bobSnap.Messages[0]) {
		t.Fatalf("bob did not get history: %+v", bobSnap.Messages)
	}

	bob.Leave()
	waitFor(t, "alice sees bob leave", func() bool { return len(alice.Snapshot().Users) == 1 })
	if got := bob.Snapshot(); len(got.Users) != 0 || len(got.Messages) != 0 {
		t.Fatalf("leave kept room state: %+v", got)
	}
}

func TestChatRejoinsAfterServerDisconnect(t *testing.T) {
	srv, endpoint := startRoomServer(t)
	ctx := context.Background()

	alice := newTestChat(t, endpoint)
	if err := alice.Join("alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitFor(t, "alice joined", joined(alice))
	alice.SendMessage(ctx, "before")
	waitFor(t, "first message", func() bool { return hasText(alice.Snapshot(), "before") })

	oldSelf := alice.Snapshot().SelfID
	if !srv.Hub().Kick(oldSelf) {
		t.Fatalf("kick failed")
	}

	waitFor(t, "alice rejoined", func() bool {
		return alice.State() == room.Joined && alice.Snapshot().SelfID != oldSelf
	})

	snap := alice.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].Text != "before" {
		t.Fatalf("resync changed history: %+v", snap.Messages)
	}

	if !alice.SendMessage(ctx, "after") {
		t.Fatalf("send after rejoin failed")
	}
	waitFor(t, "second message", func() bool { return hasText(alice.Snapshot(), "after") })
}

func TestChatNameTakenIsTerminal(t *testing.T) {
	_, endpoint := startRoomServer(t)

	bob := newTestChat(t, endpoint)
	if err := bob.Join("bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitFor(t, "bob joined", joined(bob))

	impostor := newTestChat(t, endpoint)
	if err := impostor.Join("bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitFor(t, "rejection", func() bool { return impostor.Status().Kind == room.StatusError })

	if !room.IsRejected(impostor.Err()) {
		t.Fatalf("expected rejection, got %v", impostor.Err())
	}
	if impostor.State() != room.NotJoined {
		t.Fatalf("expected not joined, got %v", impostor.State())
	}

	bob.Close()
	waitFor(t, "retry succeeds once the name is free", func() bool {
		if impostor.Status().Kind == room.StatusError {
			_ = impostor.Retry()
		}
		return impostor.State() == room.Joined
	})
}

func TestChatInvalidRejoinDropsConnection(t *testing.T) {
	_, endpoint := startRoomServer(t)
	ctx := context.Background()

	alice := newTestChat(t, endpoint)
	bob := newTestChat(t, endpoint)
	if err := alice.Join("alice"); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	waitFor(t, "alice joined", joined(alice))
	if err := bob.Join("bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	waitFor(t, "bob joined", joined(bob))

	if err := alice.Join("   "); transport.CodeOf(err) != transport.ErrorInvalidConfig {
		t.Fatalf("expected invalid config, got %v", err)
	}
	if alice.SendMessage(ctx, "ghost") {
		t.Fatalf("message sent after failed rejoin")
	}
	waitFor(t, "bob sees alice leave", func() bool { return len(bob.Snapshot().Users) == 1 })
	if hasText(bob.Snapshot(), "ghost") {
		t.Fatalf("bob received a message from the dropped session")
	}
}

func TestChatUnreachableServer(t *testing.T) {
	c := newTestChat(t, "ws://127.0.0.1:1/ws")
	if err := c.Join("alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	waitFor(t, "terminal error", func() bool { return c.Status().Kind == room.StatusError })
	if transport.CodeOf(c.Err()) != transport.ErrorUnreachable {
		t.Fatalf("expected unreachable error, got %v", c.Err())
	}
	if msg := c.Status().Message; !strings.Contains(msg, "make sure the server is running") {
		t.Fatalf("unexpected message: %q", msg)
	}
	if !c.Status().CanRetry() {
		t.Fatalf("retry not offered")
	}
}

func TestServerRunAndShutdown(t *testing.T) {
	cfg := config.DefaultServer()
	cfg.Addr = "127.0.0.1:0"
	cfg.HistoryPath = filepath.Join(t.TempDir(), "history.db")
	cfg.ShutdownTimeout = time.Second
	logger := zerolog.Nop()

	srv, err := NewServer(cfg, &logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not stop")
	}
}
