// Package wsrouter provides a WebSocket message router for real-time applications.
//
// Clients exchange JSON envelopes with the server. Each envelope carries a type that
// selects a registered operation, and an optional payload validated against the
// operation's schema before the handler runs.
//
// # Architecture
//
// Operations live in a Registry keyed by direction and type. Send operations handle
// messages sent by clients and may reply to the sender. Recv operations produce
// messages the server pushes to every connection subscribed to a topic. Routers group
// operations under a prefix and are merged into the registry at startup; the registry
// is read only once the server starts serving.
//
// Every connection runs its own lifecycle: optional authentication, then a serve loop
// that receives, dispatches and replies one message at a time, bounded by a heartbeat
// interval and a maximum lifespan.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/wsrouter"
//	    "github.com/luciancaetano/wsrouter/ws"
//	)
//
//	type Topic struct {
//	    Topic string `json:"topic"`
//	}
//
//	server := ws.New(ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins(), nil, nil))
//
//	server.Send("ping", wsrouter.Action(func(ctx context.Context, call *wsrouter.Call) error {
//	    return nil
//	}), wsrouter.WithReply("pong"))
//
//	server.Send("subscribe", wsrouter.Op(func(ctx context.Context, call *wsrouter.Call, in Topic) ([]string, error) {
//	    call.Conn.Subscribe(in.Topic)
//	    return call.Conn.Topics(), nil
//	}))
//
//	server.Recv("alert", wsrouter.Op(func(ctx context.Context, call *wsrouter.Call, in Alert) (Alert, error) {
//	    return in, nil
//	}))
//
//	server.Start(ctx)
//
//	// Later, from anywhere in the process:
//	server.Push(ctx, "alert", Alert{Message: "hi"}, "ops")
//
// # Protocol Format
//
// Text frames carrying a JSON object:
//
//	{"type": "subscribe", "payload": {"topic": "ops"}}
//
// Unknown fields are ignored. Replies use the same shape. Recoverable failures
// (malformed envelope, unknown type, invalid payload, application errors) are answered
// with an error envelope and the connection stays open:
//
//	{"type": "subscribe", "payload": {"code": "validation_error", "detail": "..."}}
//
// Envelopes that cannot be decoded are answered under the reserved "error" type.
//
// # Connection Lifecycle
//
// Fatal conditions close the connection with a status identifying the cause:
//
//   - 1000: client disconnect or normal closure
//   - 1001: server shutting down
//   - 1008: authentication failed or rate limit exceeded
//   - 1011: a handler failed with an unexpected error or panicked
//   - 4000: no activity within the heartbeat interval
//   - 4001: maximum connection lifespan exceeded
//
// # Documentation
//
// The server publishes an AsyncAPI 2.4.0 description of every registered operation at
// /asyncapi.json and a browsable rendering at /asyncapi.
//
// # Important
//
//   - Messages from one connection are dispatched in arrival order, one at a time
//   - Handlers of different connections run concurrently
//   - Server push is best effort and in-process; use the NATS bridge to feed it from
//     other processes
package wsrouter
