package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/log"
	"github.com/vovakirdan/roomchat/internal/room"
	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/transport"
)

// Chat is the client side of one room: transport session, protocol adapter
// and room state behind the surface a view needs.
type Chat struct {
	cfg     config.Client
	session *transport.Session
	store   *store.Store
	room    *room.Adapter
	log     *zerolog.Logger

	updates chan struct{}
	unsubs  []func()
}

// NewChat builds a chat client for cfg. Options reach the transport session.
func NewChat(cfg config.Client, logger *zerolog.Logger, opts ...transport.Option) *Chat {
	session := transport.NewSession(cfg, logger, opts...)
	st := store.New()
	adapter := room.New(session, st, log.Component(logger, "room"))

	c := &Chat{
		cfg:     cfg,
		session: session,
		store:   st,
		room:    adapter,
		log:     log.Component(logger, "chat"),
		updates: make(chan struct{}, 1),
	}
	c.unsubs = append(c.unsubs,
		st.Subscribe(func(store.Snapshot) { c.signal() }),
		adapter.OnChange(c.signal),
	)
	return c
}

// Join connects to the configured endpoint as name.
func (c *Chat) Join(name string) error {
	return c.room.Join(c.cfg.Endpoint, name)
}

// SendMessage posts text to the room. It reports whether a frame was sent.
func (c *Chat) SendMessage(ctx context.Context, text string) bool {
	return c.room.SendMessage(ctx, text)
}

// Retry repeats the last join after a terminal error.
func (c *Chat) Retry() error {
	return c.room.Retry()
}

// Leave disconnects and clears the room; Join may be called again.
func (c *Chat) Leave() {
	c.room.Leave()
}

// Close leaves the room and stops change notifications.
func (c *Chat) Close() {
	c.room.Leave()
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

// Snapshot returns a copy of the room state.
func (c *Chat) Snapshot() store.Snapshot {
	return c.store.Snapshot()
}

// Status returns the connection status for display.
func (c *Chat) Status() room.Status {
	return c.room.Status()
}

// State returns the join state.
func (c *Chat) State() room.JoinState {
	return c.room.State()
}

// Err returns the error that ended the last join, if any.
func (c *Chat) Err() error {
	return c.room.Err()
}

// Identity returns the username of the last join.
func (c *Chat) Identity() string {
	return c.room.Identity()
}

// Updates receives a value after any change to Snapshot or Status. Signals
// coalesce, so a reader should re-read both on every receive.
func (c *Chat) Updates() <-chan struct{} {
	return c.updates
}

func (c *Chat) signal() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
