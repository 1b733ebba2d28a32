// Package ws is the public entry point for building a wsrouter server.
package ws

import (
	"net/http"
	"slices"

	"github.com/luciancaetano/wsrouter/internal/websocket"
)

type Server = websocket.Server
type ServerConfig = websocket.ServerConfig
type RateLimitConfig = websocket.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type OnConnectFn = websocket.OnConnectFn
type OnDisconnectFn = websocket.OnDisconnectFn

// New creates a new WebSocket application server.
//
// Register operations on the returned server (or Include routers) before
// calling Start or mounting Handler; the registry is finalized when the
// first connection is served.
//
// Example:
//
//	server := ws.New(ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins(), nil, nil))
//	server.Send("ping", wsrouter.Action(ping), wsrouter.WithReply("pong"))
//	server.Start(ctx)
func New(cfg *ServerConfig) *Server {
	return websocket.New(cfg)
}

// NewConfig returns a configuration with every option not passed at its
// default. Connections are accepted before the auth handler runs.
//
// Parameters:
//   - addr: The server address (e.g., ":8080" or "localhost:8080")
//   - rateLimitConfig: Rate limiting configuration. Use DefaultRateLimitConfig() or NoRateLimit()
//   - checkOrigin: Function to validate WebSocket origins. Use AllOrigins() to allow all (dev only)
//   - onConnect: Optional callback called once a connection is authenticated. Can be nil.
//   - onDisconnect: Optional callback called with the close reason. Can be nil.
func NewConfig(addr string, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn, onConnect OnConnectFn, onDisconnect OnDisconnectFn) *ServerConfig {
	return &ServerConfig{
		Addr:            addr,
		RateLimitConfig: rateLimitConfig,
		CheckOrigin:     checkOrigin,
		OnConnect:       onConnect,
		OnDisconnect:    onDisconnect,
	}
}

// AllOrigins returns the default checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// AllowOrigins accepts requests whose Origin header is one of origins.
// Requests without an Origin header are accepted.
func AllowOrigins(origins ...string) CheckOriginFn {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
