package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/wsrouter"
	"github.com/luciancaetano/wsrouter/internal/protocol"
)

const clientLogPrefix = "websocket:client"

// sendBufferSize is the number of outbound messages queued per client.
const sendBufferSize = 256

// Client implements wsrouter.Conn on top of a wsrouter.Channel.
type Client struct {
	id          string
	ch          wsrouter.Channel
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan []byte
	pumpDone    chan struct{}
	quit        chan struct{}
	quitOnce    sync.Once
	mu          sync.RWMutex
	closed      bool
	reason      wsrouter.CloseReason
	rateLimiter *rate.Limiter // Rate limiter for incoming messages
	logger      *slog.Logger

	topicsMu sync.RWMutex
	topics   map[string]struct{}

	metaMu sync.RWMutex
	meta   map[string]any
}

// NewClient creates a client for an accepted channel and starts its write pump.
// A pingInterval of zero disables keepalive pings.
func NewClient(ch wsrouter.Channel, rateLimitConfig *RateLimitConfig, pingInterval time.Duration, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if rateLimitConfig != nil && rateLimitConfig.Enabled {
		limiter = rate.NewLimiter(rateLimitConfig.MessagesPerSecond, rateLimitConfig.Burst)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := &Client{
		id:          newClientID(),
		ch:          ch,
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan []byte, sendBufferSize),
		pumpDone:    make(chan struct{}),
		quit:        make(chan struct{}),
		rateLimiter: limiter,
		logger:      logger,
		topics:      make(map[string]struct{}),
		meta:        make(map[string]any),
	}

	go client.writePump(pingInterval)

	return client
}

// newClientID returns a 32 character hex uid.
func newClientID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:])
}

// ID returns the connection uid.
func (c *Client) ID() string {
	return c.id
}

// RemoteAddr returns the peer network address.
func (c *Client) RemoteAddr() string {
	return c.ch.RemoteAddr()
}

// Request returns the upgrade request, if any.
func (c *Client) Request() *http.Request {
	return c.ch.Request()
}

// Context returns the client's lifecycle context.
func (c *Client) Context() context.Context {
	return c.ctx
}

// Send encodes an envelope and queues it.
func (c *Client) Send(ctx context.Context, typ string, payload any) error {
	// Encode the message using protocol first (before acquiring lock)
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		return err
	}
	return c.SendRaw(ctx, data)
}

// SendRaw queues an encoded envelope. It blocks while the queue is full.
func (c *Client) SendRaw(ctx context.Context, data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return wsrouter.ErrConnectionClosed
	}

	// Keep the lock while sending to prevent race with Close()
	select {
	case c.sendCh <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return wsrouter.ErrConnectionClosed
	}
}

// Subscribe adds a topic.
func (c *Client) Subscribe(topic string) {
	c.topicsMu.Lock()
	c.topics[topic] = struct{}{}
	c.topicsMu.Unlock()
}

// Unsubscribe removes a topic.
func (c *Client) Unsubscribe(topic string) {
	c.topicsMu.Lock()
	delete(c.topics, topic)
	c.topicsMu.Unlock()
}

// Subscribed reports whether the client is subscribed to topic.
func (c *Client) Subscribed(topic string) bool {
	c.topicsMu.RLock()
	defer c.topicsMu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

// Topics returns the subscribed topics, sorted.
func (c *Client) Topics() []string {
	c.topicsMu.RLock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	c.topicsMu.RUnlock()
	slices.Sort(out)
	return out
}

// Set stores a metadata value.
func (c *Client) Set(key string, value any) {
	c.metaMu.Lock()
	c.meta[key] = value
	c.metaMu.Unlock()
}

// Get reads a metadata value.
func (c *Client) Get(key string) (any, bool) {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	v, ok := c.meta[key]
	return v, ok
}

// Close closes the client connection
func (c *Client) Close(ctx context.Context) error {
	return c.closeWith(ctx, wsrouter.ReasonNormal, wsrouter.CloseNormal, "")
}

// CloseWithCode closes the connection with a close code and optional reason
func (c *Client) CloseWithCode(ctx context.Context, code int, reason string) error {
	return c.closeWith(ctx, wsrouter.ReasonNormal, code, reason)
}

// CloseWithReason closes the connection and records why.
func (c *Client) CloseWithReason(ctx context.Context, reason wsrouter.CloseReason) error {
	return c.closeWith(ctx, reason, reason.Code(), reason.String())
}

// Reason returns the recorded close reason, empty while the client is alive.
func (c *Client) Reason() wsrouter.CloseReason {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}

// IsAlive returns true if the connection is still active
func (c *Client) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// CheckRateLimit checks if the client has exceeded the rate limit
// Returns true if the message is allowed, false if rate limited
func (c *Client) CheckRateLimit() bool {
	if c.rateLimiter == nil {
		// Rate limiting disabled
		return true
	}
	return c.rateLimiter.Allow()
}

// closeWith flushes queued messages, then sends the close frame and cancels
// the client context. Only the first call has an effect.
func (c *Client) closeWith(ctx context.Context, reason wsrouter.CloseReason, code int, text string) error {
	// Unblock senders waiting on a full queue before taking the write lock.
	c.quitOnce.Do(func() { close(c.quit) })

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.reason = reason
	close(c.sendCh)
	c.mu.Unlock()

	select {
	case <-c.pumpDone:
	case <-ctx.Done():
	case <-time.After(writeWait):
		c.logger.Warn(fmt.Sprintf("%s - write pump did not drain client_id=%s", clientLogPrefix, c.id))
	}

	c.cancel()
	return c.ch.Close(code, text)
}

// writePump pumps messages from the send channel to the channel
func (c *Client) writePump(pingInterval time.Duration) {
	defer close(c.pumpDone)

	var tick <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	failed := false
	for {
		select {
		case message, ok := <-c.sendCh:
			if !ok {
				// Channel closed
				return
			}
			if failed {
				continue
			}
			if err := c.ch.Send(context.Background(), message); err != nil {
				c.logger.Debug(fmt.Sprintf("%s - write failed client_id=%s: %v", clientLogPrefix, c.id, err))
				failed = true
			}

		case <-tick:
			if failed {
				continue
			}
			// Send ping to keep connection alive
			if err := c.ch.Ping(); err != nil {
				failed = true
			}
		}
	}
}
