package wsrouter

import (
	"context"
	"net/http"
	"time"
)

// App is the application handle passed to every handler invocation.
//
// It gives handlers access to the live connections and to server push, so a
// handler serving one connection can notify every subscriber of a topic:
//
//	func(ctx context.Context, call *wsrouter.Call, in Alert) error {
//	    return call.App.Push(ctx, "alert", in, "ops")
//	}
type App interface {
	// Push resolves the recv operation for typ, runs it once with payload and
	// delivers the resulting envelope to every connection subscribed to topic.
	//
	// It fails with ErrUnknownOperation, ErrPayloadValidation or the handler
	// error. Per-connection delivery failures are logged, never returned.
	Push(ctx context.Context, typ string, payload any, topic string) error

	// Connection returns the live connection with the given id.
	Connection(id string) (Conn, bool)

	// Connections returns a snapshot of the live connections.
	Connections() []Conn

	// Registry returns the operation registry.
	Registry() *Registry
}

// Conn represents one authenticated WebSocket connection.
//
// A Conn is live from the moment authentication succeeds until it is closed.
// Its topic set decides which server pushes it receives.
type Conn interface {
	// ID returns the connection uid, unique among live connections.
	ID() string

	// RemoteAddr returns the peer network address ("IP:port").
	RemoteAddr() string

	// Request returns the HTTP upgrade request, or nil when the channel was
	// not created from one.
	Request() *http.Request

	// Context returns the connection lifecycle context. It is cancelled
	// when the connection closes.
	Context() context.Context

	// Send encodes {type, payload} and queues it for delivery.
	// A nil payload is omitted from the envelope.
	Send(ctx context.Context, typ string, payload any) error

	// SendRaw queues an already encoded envelope for delivery.
	SendRaw(ctx context.Context, data []byte) error

	// Subscribe adds topic to the connection topic set. Idempotent.
	Subscribe(topic string)

	// Unsubscribe removes topic from the connection topic set. Idempotent.
	Unsubscribe(topic string)

	// Subscribed reports whether the connection is subscribed to topic.
	Subscribed(topic string) bool

	// Topics returns the subscribed topics in lexical order.
	Topics() []string

	// Set stores a value in the connection metadata bag.
	Set(key string, value any)

	// Get reads a value from the connection metadata bag.
	Get(key string) (any, bool)

	// Close closes the connection with a normal closure status.
	Close(ctx context.Context) error

	// CloseWithCode closes the connection with a specific close code and reason.
	CloseWithCode(ctx context.Context, code int, reason string) error

	// IsAlive returns true until the connection starts closing.
	IsAlive() bool
}

// Channel is the duplex transport a connection runs on.
//
// The server ships a gorilla/websocket implementation; tests and other
// transports provide their own.
type Channel interface {
	// Accept completes the transport handshake. Calling it again is a no-op.
	Accept(ctx context.Context) error

	// Accepted reports whether Accept has completed.
	Accepted() bool

	// Receive blocks for the next data frame. A zero deadline waits forever.
	// It returns ErrReceiveTimeout when the deadline passes and
	// ErrPeerDisconnected when the remote side is gone.
	Receive(deadline time.Time) ([]byte, error)

	// Send writes one data frame.
	Send(ctx context.Context, data []byte) error

	// Ping writes a keepalive control frame.
	Ping() error

	// Close sends a close frame with code and reason if still writable and
	// releases the transport. Calling it again is a no-op.
	Close(code int, reason string) error

	// RemoteAddr returns the peer network address.
	RemoteAddr() string

	// Request returns the HTTP request the channel was created from, if any.
	Request() *http.Request
}

// AuthFunc decides whether a channel may enter the serving state. It runs
// before the connection exists; returning false or exceeding the auth
// timeout closes the channel with a policy violation.
//
// When auto accept is disabled the AuthFunc owns the handshake and may call
// ch.Accept itself.
type AuthFunc func(ctx context.Context, ch Channel) bool
