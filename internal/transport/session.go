package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/log"
)

var errPingTimeout = errors.New("ping timeout")

// Option customizes a Session.
type Option func(*Session)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithProber replaces the HTTP reachability check.
func WithProber(p Prober) Option {
	return func(s *Session) { s.prober = p }
}

// Session owns at most one physical connection to the room server.
//
// Every Open starts a generation. The goroutine serving a generation is the
// only writer of its state and the only caller of its listener; once a newer
// generation starts or Close runs, anything the old goroutine produces is dropped.
type Session struct {
	cfg    config.Client
	log    *zerolog.Logger
	dialer Dialer
	prober Prober

	openMu sync.Mutex

	mu       sync.Mutex
	gen      uint64
	state    State
	identity string
	lastErr  error
	conn     Conn
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSession constructs an idle session.
func NewSession(cfg config.Client, logger *zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		cfg:    cfg,
		log:    log.Component(logger, "transport"),
		dialer: WebSocketDialer{},
		prober: HTTPProber{HTTPClient: &http.Client{}, Path: cfg.PreflightPath},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open tears down any previous session, validates its arguments and starts a
// new one in the background. Progress is reported to listener. Invalid
// arguments leave the session Idle.
func (s *Session) Open(endpoint, identity string, listener Listener) (Dispose, error) {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if prev := s.teardown(0); prev != nil {
		<-prev
	}

	endpoint = strings.TrimSpace(endpoint)
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, NewError(ErrorInvalidConfig, "identity is required")
	}
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	if listener == nil {
		listener = func(Event) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.identity = identity
	s.lastErr = nil
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.log.Info().Uint64("session", gen).Str("endpoint", endpoint).Str("identity", identity).Msg("opening session")
	go s.run(ctx, gen, endpoint, identity, listener, done)

	return func() { s.teardown(gen) }, nil
}

// Close tears down the current session. It is idempotent and does not wait
// for the session goroutine, so it is safe to call from a Listener.
func (s *Session) Close() {
	s.teardown(0)
}

// Send writes payload to the active connection. It returns false, dropping
// the payload, unless the session is Connected.
func (s *Session) Send(ctx context.Context, payload []byte) bool {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()
	if state != StateConnected || conn == nil {
		s.log.Debug().Str("state", state.String()).Msg("dropping outbound payload")
		return false
	}

	if s.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.WriteTimeout)
		defer cancel()
	}
	if err := conn.Write(ctx, payload); err != nil {
		s.log.Warn().Err(err).Msg("write failed")
		return false
	}
	return true
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the identity of the current or last session.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// LastError returns the error that moved the session to Failed, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// teardown stops generation gen (0 means whichever is current) and returns
// the done channel of the stopped goroutine, or nil if nothing was stopped.
func (s *Session) teardown(gen uint64) <-chan struct{} {
	s.mu.Lock()
	if gen != 0 && gen != s.gen {
		s.mu.Unlock()
		return nil
	}
	if s.cancel == nil {
		s.state = StateIdle
		s.mu.Unlock()
		return nil
	}
	cancel, done, conn := s.cancel, s.done, s.conn
	s.gen++
	s.cancel, s.done, s.conn = nil, nil, nil
	s.state = StateIdle
	s.mu.Unlock()

	cancel()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, string(ReasonClientDisconnect))
	}
	s.log.Debug().Msg("session closed")
	return done
}

func (s *Session) run(ctx context.Context, gen uint64, endpoint, identity string, l Listener, done chan struct{}) {
	defer close(done)
	logger := s.log.With().Uint64("session", gen).Logger()

	if !s.transition(gen, l, StatePreflighting) {
		return
	}
	if err := s.preflight(ctx, endpoint); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn().Err(err).Msg("preflight failed")
		s.fail(gen, l, WrapError(ErrorUnreachable, "cannot reach endpoint "+endpoint, err))
		return
	}
	if !s.transition(gen, l, StateConnecting) {
		return
	}

	bo := s.newBackOff()
	limit := s.cfg.ReconnectAttempts
	attempt := 0
	var delay time.Duration

	for {
		if attempt > 0 {
			if !s.transition(gen, l, StateReconnecting) {
				return
			}
			logger.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
			if !sleep(ctx, delay) {
				return
			}
		}

		conn, err := s.dial(ctx, endpoint, identity)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close(websocket.StatusNormalClosure, string(ReasonClientDisconnect))
			}
			return
		}
		if err != nil {
			if CodeOf(err) == ErrorRejected {
				logger.Warn().Err(err).Msg("handshake rejected")
				s.fail(gen, l, err)
				return
			}
			logger.Warn().Err(err).Int("attempt", attempt).Msg("connect failed")
			s.emit(gen, l, Event{Kind: EventConnectionError, Err: err})
			if attempt >= limit {
				s.fail(gen, l, WrapError(ErrorReconnectFailed, "reconnection failed", err))
				return
			}
			attempt++
			delay = bo.NextBackOff()
			continue
		}

		if !s.attach(gen, conn) {
			_ = conn.Close(websocket.StatusNormalClosure, string(ReasonClientDisconnect))
			return
		}
		bo.Reset()
		logger.Info().Msg("connected")
		s.emit(gen, l, Event{Kind: EventConnected})

		reason := s.serve(ctx, gen, conn, l)
		s.detach(gen, conn)
		if ctx.Err() != nil {
			return
		}
		_ = conn.Close(websocket.StatusNormalClosure, string(reason))

		logger.Warn().Str("reason", string(reason)).Msg("disconnected")
		s.emit(gen, l, Event{Kind: EventDisconnected, Reason: reason})

		attempt = 1
		if reason == ReasonServerDisconnect {
			// the server dropped us on purpose: one manual attempt, no schedule
			limit = 1
			delay = s.cfg.ServerReconnectDelay
		} else {
			limit = s.cfg.ReconnectAttempts
			delay = bo.NextBackOff()
		}
		if limit < 1 {
			s.fail(gen, l, NewError(ErrorReconnectFailed, "reconnection failed"))
			return
		}
	}
}

func (s *Session) preflight(ctx context.Context, endpoint string) error {
	if s.cfg.PreflightTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PreflightTimeout)
		defer cancel()
	}
	return s.prober.Probe(ctx, endpoint)
}

func (s *Session) dial(ctx context.Context, endpoint, identity string) (Conn, error) {
	if s.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
	}
	return s.dialer.Dial(ctx, endpoint, identity)
}

// serve reads frames until the connection ends and reports why it ended.
func (s *Session) serve(ctx context.Context, gen uint64, conn Conn, l Listener) DisconnectReason {
	connCtx, cancel := context.WithCancelCause(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel(nil)

	if s.cfg.PingInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.heartbeat(connCtx, cancel, conn)
		}()
	}

	for {
		payload, err := conn.Read(connCtx)
		if err != nil {
			if errors.Is(context.Cause(connCtx), errPingTimeout) {
				return ReasonPingTimeout
			}
			return disconnectReason(err)
		}
		s.emit(gen, l, Event{Kind: EventMessage, Payload: payload})
	}
}

func (s *Session) heartbeat(ctx context.Context, cancel context.CancelCauseFunc, conn Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, s.cfg.PingInterval)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil && ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("ping failed")
				cancel(errPingTimeout)
				return
			}
		}
	}
}

func (s *Session) newBackOff() *backoff.ExponentialBackOff {
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     s.cfg.ReconnectDelay,
		RandomizationFactor: s.cfg.ReconnectJitter,
		Multiplier:          2,
		MaxInterval:         s.cfg.ReconnectDelayMax,
	}
	bo.Reset()
	return bo
}

// transition moves gen to state and reports it. False means gen is stale.
func (s *Session) transition(gen uint64, l Listener, state State) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	changed := s.state != state
	s.state = state
	s.mu.Unlock()

	if changed {
		l(Event{Kind: EventStateChanged, State: state})
	}
	return true
}

func (s *Session) attach(gen uint64, conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.conn = conn
	s.state = StateConnected
	return true
}

func (s *Session) detach(gen uint64, conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.conn == conn {
		s.conn = nil
		s.state = StateReconnecting
	}
}

func (s *Session) fail(gen uint64, l Listener, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.lastErr = err
	s.mu.Unlock()

	s.log.Error().Err(err).Uint64("session", gen).Msg("session failed")
	l(Event{Kind: EventFailed, State: StateFailed, Err: err})
}

func (s *Session) emit(gen uint64, l Listener, ev Event) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	ev.State = s.state
	s.mu.Unlock()
	l(ev)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
