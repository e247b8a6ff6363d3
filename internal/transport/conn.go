package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// IdentityHeader carries the chosen username during the handshake.
const IdentityHeader = "X-Chat-User"

// IdentityQueryParam carries the chosen username in the handshake URL.
const IdentityQueryParam = "username"

// readLimit bounds a single frame; welcome frames carry full history.
const readLimit = 1 << 20

// Conn is one established connection.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, payload []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer establishes the stateful connection.
type Dialer interface {
	Dial(ctx context.Context, endpoint, identity string) (Conn, error)
}

// Prober performs the lightweight reachability check.
type Prober interface {
	Probe(ctx context.Context, endpoint string) error
}

// WebSocketDialer dials with coder/websocket.
type WebSocketDialer struct {
	HTTPClient *http.Client
}

// Dial connects to endpoint with identity attached as handshake metadata.
// A 4xx handshake response is reported as ErrorRejected with the server's reason.
func (d WebSocketDialer) Dial(ctx context.Context, endpoint, identity string) (Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, WrapError(ErrorInvalidConfig, "parse endpoint", err)
	}
	q := u.Query()
	q.Set(IdentityQueryParam, identity)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set(IdentityHeader, identity)

	ws, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		if isRejection(resp) {
			return nil, WrapError(ErrorRejected, rejectionReason(resp), err)
		}
		return nil, WrapError(ErrorConnection, "dial "+u.Host, err)
	}
	ws.SetReadLimit(readLimit)
	return &wsConn{ws: ws}, nil
}

// HTTPProber checks reachability with a plain GET.
type HTTPProber struct {
	HTTPClient *http.Client
	Path       string
}

// Probe succeeds when the preflight URL answers with a 2xx status.
func (p HTTPProber) Probe(ctx context.Context, endpoint string) error {
	target, err := PreflightURL(endpoint, p.Path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build preflight request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server responded with status: %d", resp.StatusCode)
	}
	return nil
}

// PreflightURL maps a ws(s) endpoint to the http(s) URL used for preflight.
// An empty path keeps the endpoint's own path.
func PreflightURL(endpoint, path string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", WrapError(ErrorInvalidConfig, "parse endpoint", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	if path != "" {
		u.Path = path
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// ValidateEndpoint checks that endpoint is an absolute ws, wss, http or https URL.
func ValidateEndpoint(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return NewError(ErrorInvalidConfig, "endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return WrapError(ErrorInvalidConfig, "invalid endpoint", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return NewError(ErrorInvalidConfig, fmt.Sprintf("unsupported endpoint scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return NewError(ErrorInvalidConfig, "endpoint has no host")
	}
	return nil
}

// wsConn adapts websocket.Conn to Conn.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, payload []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, payload)
}

func (c *wsConn) Ping(ctx context.Context) error {
	return c.ws.Ping(ctx)
}

func (c *wsConn) Close(code websocket.StatusCode, reason string) error {
	return c.ws.Close(code, reason)
}

// disconnectReason classifies a read error from an established connection.
func disconnectReason(err error) DisconnectReason {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusPolicyViolation:
		return ReasonServerDisconnect
	case -1:
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ReasonTransportClose
		}
		return ReasonTransportError
	default:
		return ReasonTransportClose
	}
}

func isRejection(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return resp.StatusCode >= 400 && resp.StatusCode < 500
}

func rejectionReason(resp *http.Response) string {
	if resp.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if reason := strings.TrimSpace(string(body)); reason != "" {
			return reason
		}
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("handshake rejected with status %d", resp.StatusCode)
}
