package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// History persists room messages for late joiners.
type History interface {
	Append(ctx context.Context, msg Message) error
	Recent(ctx context.Context, limit int) ([]Message, error)
	Close() error
}

type inbound struct {
	client *Client
	cmd    *Command
}

type kickRequest struct {
	userID string
	reply  chan bool
}

// Hub owns room membership. All state is touched only by the Run goroutine.
type Hub struct {
	history      History
	historyLimit int
	log          *zerolog.Logger
	now          func() time.Time

	register   chan *Client
	unregister chan *Client
	commands   chan inbound
	kicks      chan kickRequest
	stopped    chan struct{}

	clients map[*Client]struct{}
	room    *Room
}

// NewHub creates a chat hub. history may be nil.
func NewHub(history History, historyLimit int, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		history:      history,
		historyLimit: historyLimit,
		log:          logger,
		now:          time.Now,
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		commands:     make(chan inbound, 64),
		kicks:        make(chan kickRequest),
		stopped:      make(chan struct{}),
		clients:      make(map[*Client]struct{}),
		room:         NewRoom(),
	}
}

// Run processes hub events until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.stop()
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			go h.pump(ctx, c)
		case c := <-h.unregister:
			h.remove(c)
		case in := <-h.commands:
			if _, ok := h.clients[in.client]; !ok {
				continue
			}
			h.handle(ctx, in.client, in.cmd)
		case req := <-h.kicks:
			req.reply <- h.kick(req.userID)
		}
	}
}

// RegisterClient attaches a connected client. Its Commands are read until
// it is unregistered.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopped:
	}
}

// UnregisterClient detaches a client and announces its departure.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Kick removes the member with userID and asks its connection to close.
// It reports whether such a member existed.
func (h *Hub) Kick(userID string) bool {
	req := kickRequest{userID: userID, reply: make(chan bool, 1)}
	select {
	case h.kicks <- req:
	case <-h.stopped:
		return false
	}
	select {
	case ok := <-req.reply:
		return ok
	case <-h.stopped:
		return false
	}
}

// pump forwards client commands into the hub loop.
func (h *Hub) pump(ctx context.Context, c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			select {
			case h.commands <- inbound{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandJoin:
		h.join(ctx, c, cmd.Name)
	case CommandSendMessage:
		h.sendMessage(ctx, c, cmd.Text)
	default:
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "unknown command")})
	}
}

func (h *Hub) join(ctx context.Context, c *Client, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "username is required")})
		return
	}

	if h.room.Contains(c) {
		if c.Name != name {
			c.send(&Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "already joined as "+c.Name)})
			return
		}
		// Repeated join on the same connection: hand out the state again.
		c.send(h.welcome(ctx, c))
		return
	}

	if other := h.room.ByName(name); other != nil {
		h.log.Info().Str("client_id", c.ID).Str("username", name).Msg("username already in use")
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeNameTaken, "username already in use")})
		return
	}

	c.Name = name
	h.room.AddClient(c)
	h.log.Info().Str("client_id", c.ID).Str("username", name).Msg("user joined")

	c.send(h.welcome(ctx, c))
	h.room.Broadcast(&Event{
		Kind:  EventUserJoined,
		User:  c.user(),
		Users: h.room.Users(),
	}, c)
}

func (h *Hub) welcome(ctx context.Context, c *Client) *Event {
	var messages []Message
	if h.history != nil && h.historyLimit > 0 {
		recent, err := h.history.Recent(ctx, h.historyLimit)
		if err != nil {
			h.log.Error().Err(err).Msg("load history")
		}
		messages = recent
	}
	return &Event{
		Kind:     EventWelcome,
		User:     c.user(),
		Users:    h.room.Users(),
		Messages: messages,
	}
}

func (h *Hub) sendMessage(ctx context.Context, c *Client, text string) {
	if !h.room.Contains(c) {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeNotJoined, "join the room first")})
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	msg := Message{
		ID:        uuid.NewString(),
		UserID:    c.ID,
		Username:  c.Name,
		Text:      text,
		CreatedAt: h.now().UTC(),
	}
	if h.history != nil {
		if err := h.history.Append(ctx, msg); err != nil {
			h.log.Error().Err(err).Str("message_id", msg.ID).Msg("save message")
		}
	}

	h.room.Broadcast(&Event{Kind: EventNewMessage, Message: msg}, nil)
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.stop()
	h.leave(c)
}

func (h *Hub) kick(userID string) bool {
	c := h.room.ByID(userID)
	if c == nil {
		return false
	}
	h.log.Info().Str("client_id", c.ID).Str("username", c.Name).Msg("kicking user")
	h.leave(c)
	c.kick()
	return true
}

func (h *Hub) leave(c *Client) {
	if !h.room.RemoveClient(c) {
		return
	}
	h.log.Info().Str("client_id", c.ID).Str("username", c.Name).Msg("user left")
	h.room.Broadcast(&Event{
		Kind:  EventUserLeft,
		User:  c.user(),
		Users: h.room.Users(),
	}, nil)
}
