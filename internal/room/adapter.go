package room

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/transport"
)

// Transport is the connection the adapter speaks the room protocol over.
// *transport.Session satisfies it.
type Transport interface {
	Open(endpoint, identity string, listener transport.Listener) (transport.Dispose, error)
	Send(ctx context.Context, payload []byte) bool
	Close()
}

// Adapter drives the join handshake and feeds server events into a Store.
type Adapter struct {
	transport Transport
	store     *store.Store
	log       *zerolog.Logger

	// joinMu serializes Join so sessions are opened in call order.
	joinMu sync.Mutex

	mu       sync.Mutex
	gen      uint64
	state    JoinState
	endpoint string
	identity string
	status   Status
	err      error
	dispose  transport.Dispose

	subMu     sync.Mutex
	listeners map[int]func()
	nextID    int
}

// New creates an adapter over t writing room state into st.
func New(t Transport, st *store.Store, logger *zerolog.Logger) *Adapter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Adapter{
		transport: t,
		store:     st,
		log:       logger,
		listeners: make(map[int]func()),
	}
}

// Join opens a transport session for name at endpoint and joins the room once
// connected. A previous session, if any, is torn down first, also when the
// arguments are rejected. Concurrent calls are applied in turn.
func (a *Adapter) Join(endpoint, name string) error {
	a.joinMu.Lock()
	defer a.joinMu.Unlock()

	name = strings.TrimSpace(name)

	a.mu.Lock()
	a.gen++
	gen := a.gen
	a.endpoint = endpoint
	a.identity = name
	a.state = NotJoined
	a.err = nil
	a.dispose = nil
	a.status = Status{Kind: StatusConnecting}
	a.mu.Unlock()
	a.notify()

	// Open waits for the previous session goroutine, which may be blocked
	// on a.mu inside handle, so it must run unlocked.
	dispose, err := a.transport.Open(endpoint, name, func(ev transport.Event) {
		a.handle(gen, ev)
	})

	if err != nil {
		a.transport.Close()
	}

	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		if dispose != nil {
			dispose()
		}
		return nil
	}
	if err != nil {
		a.state = NotJoined
		a.err = err
		a.status = Status{Kind: StatusError, Message: transport.UserMessage(err)}
		a.mu.Unlock()
		a.notify()
		return err
	}
	a.dispose = dispose
	a.mu.Unlock()

	a.log.Info().Str("endpoint", endpoint).Str("username", name).Msg("joining room")
	return nil
}

// Retry repeats the last Join with the same endpoint and name.
func (a *Adapter) Retry() error {
	a.mu.Lock()
	endpoint, identity := a.endpoint, a.identity
	a.mu.Unlock()

	if endpoint == "" && identity == "" {
		return ErrNothingToRetry
	}
	return a.Join(endpoint, identity)
}

// SendMessage sends text to the room. Whitespace-only text is dropped and
// nothing is sent while the transport is not connected.
func (a *Adapter) SendMessage(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	payload, err := proto.Encode(proto.EventSendMessage, text)
	if err != nil {
		a.log.Error().Err(err).Msg("encode message")
		return false
	}
	return a.transport.Send(ctx, payload)
}

// Leave closes the session and forgets the room.
func (a *Adapter) Leave() {
	a.mu.Lock()
	a.gen++
	a.state = NotJoined
	a.err = nil
	a.dispose = nil
	a.status = Status{Kind: StatusIdle}
	a.mu.Unlock()

	a.transport.Close()
	a.store.Reset()
	a.notify()
}

// State returns the current join state.
func (a *Adapter) State() JoinState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Status returns what the view should show about the connection.
func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Err returns the error that ended the last join, if any.
func (a *Adapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Identity returns the name used by the last Join.
func (a *Adapter) Identity() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.identity
}

// OnChange registers fn to run after the join state or status changes.
// fn runs on the event goroutine and must not block.
func (a *Adapter) OnChange(fn func()) func() {
	a.subMu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.subMu.Unlock()

	return func() {
		a.subMu.Lock()
		delete(a.listeners, id)
		a.subMu.Unlock()
	}
}

func (a *Adapter) notify() {
	a.subMu.Lock()
	fns := make([]func(), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (a *Adapter) handle(gen uint64, ev transport.Event) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	before := a.state
	status := a.status
	a.apply(ev)
	changed := a.state != before || a.status != status
	a.mu.Unlock()

	if changed {
		a.notify()
	}
}

// apply runs under a.mu.
func (a *Adapter) apply(ev transport.Event) {
	switch ev.Kind {
	case transport.EventStateChanged:
		switch ev.State {
		case transport.StatePreflighting, transport.StateConnecting:
			a.status = Status{Kind: StatusConnecting}
		case transport.StateReconnecting:
			a.status = Status{Kind: StatusReconnecting}
		}

	case transport.EventConnected:
		a.status = Status{Kind: StatusConnected}
		a.sendJoin()

	case transport.EventDisconnected:
		if a.state == Joined || a.state == Joining {
			a.state = Rejoining
		}
		a.status = Status{Kind: StatusReconnecting, Message: "Connection lost: " + string(ev.Reason)}
		a.log.Warn().Str("reason", string(ev.Reason)).Str("state", a.state.String()).Msg("disconnected")

	case transport.EventConnectionError:
		kind := a.status.Kind
		if kind != StatusConnecting && kind != StatusReconnecting {
			kind = StatusReconnecting
		}
		a.status = Status{Kind: kind, Message: "Connection error: " + transport.UserMessage(ev.Err)}
		a.log.Debug().Err(ev.Err).Msg("connection attempt failed")

	case transport.EventMessage:
		a.dispatch(ev.Payload)

	case transport.EventFailed:
		a.state = NotJoined
		a.err = ev.Err
		a.dispose = nil
		a.status = Status{Kind: StatusError, Message: transport.UserMessage(ev.Err)}
		a.log.Error().Err(ev.Err).Msg("session failed")
	}
}

// sendJoin runs under a.mu. Exactly one join goes out per established
// connection, which is what makes the server resend the welcome.
func (a *Adapter) sendJoin() {
	payload, err := proto.Encode(proto.EventJoin, a.identity)
	if err != nil {
		a.log.Error().Err(err).Msg("encode join")
		return
	}
	if !a.transport.Send(context.Background(), payload) {
		a.log.Warn().Msg("join not sent, transport not connected")
		return
	}
	a.state = Joining
}

// dispatch runs under a.mu.
func (a *Adapter) dispatch(frame []byte) {
	env, err := proto.Decode(frame)
	if err != nil {
		a.log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	switch env.Event {
	case proto.EventWelcome:
		if a.state != Joining && a.state != Joined {
			a.log.Debug().Str("state", a.state.String()).Msg("ignoring welcome")
			return
		}
		var w proto.Welcome
		if err := env.UnmarshalData(&w); err != nil {
			a.log.Warn().Err(err).Msg("dropping welcome")
			return
		}
		self := w.SelfUser()
		a.store.ApplyFullResync(usersFromProto(w.Users), messagesFromProto(w.Messages), self.ID)
		a.state = Joined
		a.status = Status{Kind: StatusConnected}
		a.log.Info().Str("self", self.ID).Int("users", len(w.Users)).Int("messages", len(w.Messages)).Msg("joined room")

	case proto.EventUserJoined:
		if a.state != Joined {
			return
		}
		var p proto.UserJoined
		if err := env.UnmarshalData(&p); err != nil {
			a.log.Warn().Err(err).Msg("dropping userJoined")
			return
		}
		a.store.ApplyUserJoined(usersFromProto(p.Users))

	case proto.EventUserLeft:
		if a.state != Joined {
			return
		}
		var p proto.UserLeft
		if err := env.UnmarshalData(&p); err != nil {
			a.log.Warn().Err(err).Msg("dropping userLeft")
			return
		}
		a.store.ApplyUserLeft(usersFromProto(p.Users))

	case proto.EventNewMessage:
		if a.state != Joined {
			return
		}
		var p proto.Message
		if err := env.UnmarshalData(&p); err != nil {
			a.log.Warn().Err(err).Msg("dropping newMessage")
			return
		}
		msg, ok := messageFromProto(p)
		if !ok {
			a.log.Warn().Str("id", p.ID).Msg("dropping invalid message")
			return
		}
		a.store.ApplyMessage(msg)

	case proto.EventError:
		var p proto.Error
		if err := env.UnmarshalData(&p); err != nil {
			a.log.Warn().Err(err).Msg("dropping error event")
			return
		}
		a.protocolError(p)

	default:
		a.log.Debug().Str("event", env.Event).Msg("ignoring unknown event")
	}
}

// protocolError runs under a.mu. An error answering a pending join is a
// rejection and ends the session; anything else is a notice.
func (a *Adapter) protocolError(p proto.Error) {
	if a.state != Joining {
		a.status.Message = p.Msg
		a.log.Warn().Str("code", p.Code).Str("msg", p.Msg).Msg("server error")
		return
	}

	rejected := &RejectedError{Code: p.Code, Msg: p.Msg}
	a.gen++
	a.state = NotJoined
	a.err = rejected
	a.dispose = nil
	a.status = Status{Kind: StatusError, Message: rejected.Error()}
	a.log.Error().Str("code", p.Code).Str("msg", p.Msg).Msg("join rejected")
	a.transport.Close()
}

// IsRejected reports whether err is a join refusal from the server.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re) || transport.CodeOf(err) == transport.ErrorRejected
}
