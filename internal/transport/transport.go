// Package transport owns the raw socket: connect, send, receive and close.
// It never retries; that is the reconnect controller's job.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"majlis-chat/internal/domain"

	"github.com/fasthttp/websocket"
)

type Handlers struct {
	OnFrame func(frame []byte)
	// OnClose fires once per connection, with the read error that ended it
	// or nil after a local Close.
	OnClose func(err error)
}

type Conn interface {
	Send(frame []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, endpoint, token string, h Handlers) (Conn, error)
}

type WSDialer struct {
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

func NewWSDialer(logger *slog.Logger) *WSDialer {
	return &WSDialer{HandshakeTimeout: 10 * time.Second, Logger: logger}
}

// ConnectURL appends the bearer token as a query parameter, since the
// socket handshake cannot carry custom headers from every client.
func ConnectURL(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidEndpoint, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", domain.ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", domain.ErrInvalidEndpoint)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *WSDialer) Dial(ctx context.Context, endpoint, token string, h Handlers) (Conn, error) {
	target, err := ConnectURL(endpoint, token)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &wsConn{conn: ws, handlers: h, logger: logger}
	go c.readLoop()
	return c, nil
}

type wsConn struct {
	conn      *websocket.Conn
	handlers  Handlers
	logger    *slog.Logger
	writeMux  sync.Mutex
	closeOnce sync.Once
	closed    bool
	closedMux sync.Mutex
}

func (c *wsConn) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				err = nil
			} else {
				c.logger.Debug("websocket read ended", slog.Any("error", err))
			}
			c.fireClose(err)
			return
		}
		if c.handlers.OnFrame != nil {
			c.handlers.OnFrame(data)
		}
	}
}

func (c *wsConn) Send(frame []byte) error {
	if c.isClosed() {
		return domain.ErrNotConnected
	}
	c.writeMux.Lock()
	defer c.writeMux.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsConn) Close() error {
	c.closedMux.Lock()
	if c.closed {
		c.closedMux.Unlock()
		return nil
	}
	c.closed = true
	c.closedMux.Unlock()

	c.writeMux.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
	werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMux.Unlock()

	err := c.conn.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		c.logger.Debug("websocket close frame not sent", slog.Any("error", werr))
	}
	return err
}

func (c *wsConn) isClosed() bool {
	c.closedMux.Lock()
	defer c.closedMux.Unlock()
	return c.closed
}

func (c *wsConn) fireClose(err error) {
	c.closeOnce.Do(func() {
		if c.handlers.OnClose != nil {
			c.handlers.OnClose(err)
		}
	})
}
