package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/config"
)

func testConfig() config.Client {
	cfg := config.DefaultClient()
	cfg.PreflightTimeout = time.Second
	cfg.ConnectTimeout = time.Second
	cfg.ReconnectAttempts = 3
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.ReconnectDelayMax = 40 * time.Millisecond
	cfg.ReconnectJitter = 0
	cfg.ServerReconnectDelay = 20 * time.Millisecond
	cfg.WriteTimeout = time.Second
	cfg.PingInterval = 0
	return cfg
}

func newTestSession(t *testing.T, cfg config.Client, opts ...Option) *Session {
	t.Helper()
	logger := zerolog.Nop()
	s := NewSession(cfg, &logger, opts...)
	t.Cleanup(s.Close)
	return s
}

// recorder collects events delivered to a listener.
type recorder struct {
	ch chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 256)}
}

func (r *recorder) listen(ev Event) {
	r.ch <- ev
}

// mustEvent waits for the next event of the given kind, skipping others.
func (r *recorder) mustEvent(t *testing.T, kind EventKind) Event {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event %v not received", kind)
			return Event{}
		}
	}
}

// expectQuiet fails if any event arrives within d.
func (r *recorder) expectQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ev := <-r.ch:
		t.Fatalf("unexpected event after close: %+v", ev)
	case <-time.After(d):
	}
}

// roomServer is a minimal websocket endpoint with a health route.
type roomServer struct {
	*httptest.Server

	accepts atomic.Int32
	active  atomic.Int32
	refuse  atomic.Bool

	conns     chan *websocket.Conn
	frames    chan string
	usernames chan string
	headers   chan string

	// onAccept runs for each accepted connection before the read loop.
	mu       sync.Mutex
	onAccept func(n int32, c *websocket.Conn)
}

func newRoomServer(t *testing.T) *roomServer {
	t.Helper()

	rs := &roomServer{
		conns:     make(chan *websocket.Conn, 16),
		frames:    make(chan string, 64),
		usernames: make(chan string, 16),
		headers:   make(chan string, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		n := rs.accepts.Add(1)
		if rs.refuse.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		rs.usernames <- r.URL.Query().Get(IdentityQueryParam)
		rs.headers <- r.Header.Get(IdentityHeader)

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		rs.active.Add(1)
		defer rs.active.Add(-1)
		defer c.CloseNow()

		rs.mu.Lock()
		hook := rs.onAccept
		rs.mu.Unlock()
		if hook != nil {
			hook(n, c)
		}
		rs.conns <- c

		for {
			_, data, err := c.Read(context.Background())
			if err != nil {
				return
			}
			rs.frames <- string(data)
		}
	})

	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

func (rs *roomServer) wsURL() string {
	return "ws" + strings.TrimPrefix(rs.URL, "http") + "/ws"
}

func (rs *roomServer) setOnAccept(fn func(n int32, c *websocket.Conn)) {
	rs.mu.Lock()
	rs.onAccept = fn
	rs.mu.Unlock()
}

func (rs *roomServer) mustConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-rs.conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not accept a connection")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// okProber always reports the endpoint as reachable.
type okProber struct{}

func (okProber) Probe(context.Context, string) error { return nil }

// blockingProber blocks until the preflight context ends.
type blockingProber struct {
	started chan struct{}
	ended   chan error
}

func (p *blockingProber) Probe(ctx context.Context, _ string) error {
	close(p.started)
	<-ctx.Done()
	p.ended <- ctx.Err()
	return ctx.Err()
}

// countingDialer counts calls and delegates to next, or fails when next is nil.
type countingDialer struct {
	calls atomic.Int32
	next  Dialer
}

func (d *countingDialer) Dial(ctx context.Context, endpoint, identity string) (Conn, error) {
	d.calls.Add(1)
	if d.next == nil {
		return nil, WrapError(ErrorConnection, "dial", errors.New("connection refused"))
	}
	return d.next.Dial(ctx, endpoint, identity)
}

// fakeConn is an in-memory Conn.
type fakeConn struct {
	inbound chan []byte
	pingErr error

	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func newFakeConn(pingErr error) *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), pingErr: pingErr}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case p := <-c.inbound:
		return p, nil
	}
}

func (c *fakeConn) Write(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, payload)
	return nil
}

func (c *fakeConn) Ping(context.Context) error { return c.pingErr }

func (c *fakeConn) Close(websocket.StatusCode, string) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// scriptedDialer hands out conns in order.
type scriptedDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	calls int
}

func (d *scriptedDialer) Dial(context.Context, string, string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.conns) == 0 {
		return nil, WrapError(ErrorConnection, "dial", errors.New("no more conns"))
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}
