package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/wsrouter"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to write the close frame.
	closeWait = time.Second
)

// Channel is a wsrouter.Channel over a gorilla/websocket connection created
// from an HTTP upgrade request.
type Channel struct {
	w              http.ResponseWriter
	r              *http.Request
	upgrader       *websocket.Upgrader
	maxMessageSize int64

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	writeMu sync.Mutex
}

// NewChannel wraps an HTTP request that has not been upgraded yet. The
// upgrade happens on Accept.
func NewChannel(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, maxMessageSize int64) *Channel {
	return &Channel{
		w:              w,
		r:              r,
		upgrader:       upgrader,
		maxMessageSize: maxMessageSize,
	}
}

// Accept upgrades the HTTP connection to the WebSocket protocol.
func (c *Channel) Accept(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	if c.closed {
		return wsrouter.ErrConnectionClosed
	}

	conn, err := c.upgrader.Upgrade(c.w, c.r, nil)
	if err != nil {
		c.closed = true
		return fmt.Errorf("upgrade connection: %w", err)
	}
	if c.maxMessageSize > 0 {
		conn.SetReadLimit(c.maxMessageSize)
	}
	c.conn = conn
	return nil
}

// Accepted reports whether the upgrade completed.
func (c *Channel) Accepted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Receive reads the next text frame. Binary frames are reported with
// wsrouter.ErrBinaryFrame so the caller can answer them.
func (c *Channel) Receive(deadline time.Time) ([]byte, error) {
	conn := c.current()
	if conn == nil {
		return nil, wsrouter.ErrConnectionClosed
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", wsrouter.ErrPeerDisconnected, err)
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, wsrouter.ErrReceiveTimeout
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, wsrouter.ErrMessageTooLarge
			}
			return nil, fmt.Errorf("%w: %v", wsrouter.ErrPeerDisconnected, err)
		}
		switch mt {
		case websocket.TextMessage:
			return data, nil
		case websocket.BinaryMessage:
			return nil, wsrouter.ErrBinaryFrame
		}
	}
}

// Send writes one text frame.
func (c *Channel) Send(ctx context.Context, data []byte) error {
	conn := c.current()
	if conn == nil {
		return wsrouter.ErrConnectionClosed
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(deadline)
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Ping writes a ping control frame.
func (c *Channel) Ping() error {
	conn := c.current()
	if conn == nil {
		return wsrouter.ErrConnectionClosed
	}
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a close frame and closes the connection. Before the upgrade it
// rejects the HTTP request instead.
func (c *Channel) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn == nil {
		status := http.StatusForbidden
		if code != wsrouter.ClosePolicyViolation {
			status = http.StatusServiceUnavailable
		}
		http.Error(c.w, reason, status)
		return nil
	}

	message := websocket.FormatCloseMessage(code, reason)
	c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeWait))
	return c.conn.Close()
}

// RemoteAddr returns the peer address of the request.
func (c *Channel) RemoteAddr() string {
	return c.r.RemoteAddr
}

// Request returns the upgrade request.
func (c *Channel) Request() *http.Request {
	return c.r
}

func (c *Channel) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}
