// Package deriv holds the Deriv WebSocket wire types and a thin connection
// wrapper that serializes writes.
package deriv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	DefaultURL   = "wss://ws.binaryws.com/websockets/v3"
	DefaultAppID = "128988"

	writeWait = 5 * time.Second
)

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("deriv: connection closed")
	// ErrDecode marks a frame that arrived but could not be parsed.
	ErrDecode = errors.New("deriv: decode message")
)

// Endpoint appends app_id to base.
func Endpoint(base, appID string) (string, error) {
	if base == "" {
		base = DefaultURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse deriv url: %w", err)
	}
	if appID != "" {
		q := u.Query()
		q.Set("app_id", appID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Conn is a single WebSocket session with Deriv.
// Reads must come from one goroutine; Send is safe for concurrent use.
type Conn struct {
	ws      *websocket.Conn
	limiter *rate.Limiter

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens a connection. The handshake is bounded by ctx and timeout.
func Dial(ctx context.Context, endpoint string, timeout time.Duration, limiter *rate.Limiter) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: timeout,
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ws, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial deriv ws: %w", err)
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Conn{ws: ws, limiter: limiter, closed: make(chan struct{})}, nil
}

// Send marshals v and writes it as one text frame, waiting on the send limiter.
func (c *Conn) Send(ctx context.Context, v any) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send throttle: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("write deriv ws: %w", err)
	}
	return nil
}

// Read blocks for the next message and decodes its envelope.
func (c *Conn) Read() (*Response, error) {
	_, msg, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(msg, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &resp, nil
}

// Close sends a close frame and tears down the socket. Safe to call twice.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// IsClosedError reports whether err only signals a normal shutdown.
func IsClosedError(err error) bool {
	if err == nil {
		return false
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		strings.Contains(err.Error(), "use of closed network connection")
}
