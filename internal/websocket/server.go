package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/wsrouter"
	"github.com/luciancaetano/wsrouter/internal/asyncapi"
)

const logPrefix = "websocket:server"

// Defaults applied by New for zero config values.
const (
	DefaultPath            = "/ws"
	DefaultDocsPath        = "/asyncapi"
	DefaultDocsJSONPath    = "/asyncapi.json"
	DefaultPingInterval    = 54 * time.Second
	DefaultMaxMessageSize  = 1 << 20
	DefaultAuthTimeout     = 10 * time.Second
	DefaultPushConcurrency = 64
	DefaultTitle           = "wsrouter"
	DefaultVersion         = "0.0.1"
)

var _ wsrouter.App = (*Server)(nil)

// ErrServerAlreadyRunning is returned by Start on a running server.
var ErrServerAlreadyRunning = errors.New("server already running")

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
// Use this to implement CORS policies for your WebSocket server.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called when a connection enters the serving state, after
// authentication and before the first message is read. It runs on the
// connection goroutine; avoid long-running work.
type OnConnectFn = func(conn wsrouter.Conn)

// OnDisconnectFn is called after a connection left the live set, with the
// reason it was closed.
type OnDisconnectFn = func(conn wsrouter.Conn, reason wsrouter.CloseReason)

// ServerConfig holds the constructor-time server configuration. It is not
// read again after New.
type ServerConfig struct {
	Addr string
	// Path is the WebSocket endpoint (default "/ws").
	Path string

	// HeartbeatInterval closes connections that send nothing for this long.
	// Zero disables it.
	HeartbeatInterval time.Duration
	// MaxConnectionLifespan closes connections older than this regardless of
	// activity. Zero disables it.
	MaxConnectionLifespan time.Duration

	// Auth gates connections before they are served. Nil accepts everyone.
	Auth wsrouter.AuthFunc
	// AuthTimeout bounds Auth (default 10s, negative disables).
	AuthTimeout time.Duration
	// ManualAccept hands the handshake to Auth. By default the connection is
	// upgraded before Auth runs and a rejection is a 1008 close frame. With
	// ManualAccept, Auth may call Accept itself and a rejection before that is
	// an HTTP error. The server still accepts channels that pass Auth, or
	// every channel when Auth is nil.
	ManualAccept bool

	RateLimitConfig *RateLimitConfig
	CheckOrigin     CheckOriginFn
	OnConnect       OnConnectFn
	OnDisconnect    OnDisconnectFn

	// PingInterval between keepalive pings: 0 uses the default, negative disables.
	PingInterval time.Duration
	// MaxMessageSize is the inbound frame limit in bytes (default 1MB).
	MaxMessageSize int64
	// PushConcurrency bounds concurrent sends of one push (default 64).
	PushConcurrency int

	// Title, Version and Description describe the API in the AsyncAPI document.
	Title       string
	Version     string
	Description string
	// DisableDocs removes the /asyncapi and /asyncapi.json routes.
	DisableDocs bool

	// MetricsRegisterer receives the server metrics. Nil uses a private registry.
	MetricsRegisterer prometheus.Registerer
	// MetricsPath mounts a Prometheus endpoint when set and the registerer is
	// also a Gatherer.
	MetricsPath string
	// TracerProvider creates dispatch spans. Nil uses the global provider.
	TracerProvider trace.TracerProvider
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Registry holds pre-registered operations. Nil creates an empty one.
	Registry *wsrouter.Registry
	// Routes adds extra HTTP routes next to the WebSocket endpoint.
	Routes func(r chi.Router)
}

// RateLimitConfig defines rate limiting configuration for clients
type RateLimitConfig struct {
	// MessagesPerSecond defines how many messages a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Server is the application: it owns the registry, the live connections
// and the HTTP endpoint, and implements wsrouter.App.
type Server struct {
	cfg      ServerConfig
	server   *http.Server
	registry *wsrouter.Registry
	clients  sync.Map // map[string]*Client
	count    atomic.Int64

	upgrader websocket.Upgrader
	metrics  *metrics
	gatherer prometheus.Gatherer
	tracer   trace.Tracer
	logger   *slog.Logger

	mu      sync.RWMutex
	running bool
}

// New creates a server. Zero config values are replaced with defaults; a
// nil RateLimitConfig uses DefaultRateLimitConfig().
func New(cfg *ServerConfig) *Server {
	c := *cfg
	if c.RateLimitConfig == nil {
		c.RateLimitConfig = DefaultRateLimitConfig()
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PingInterval < 0 {
		c.PingInterval = 0
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.AuthTimeout == 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
	if c.PushConcurrency <= 0 {
		c.PushConcurrency = DefaultPushConcurrency
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Registry == nil {
		c.Registry = wsrouter.NewRegistry()
	}

	reg := c.MetricsRegisterer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	gatherer, _ := reg.(prometheus.Gatherer)

	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Server{
		cfg:      c,
		registry: c.Registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     c.CheckOrigin,
		},
		metrics:  newMetrics(reg),
		gatherer: gatherer,
		tracer:   tp.Tracer(tracerName),
		logger:   c.Logger,
	}
}

// Send registers a client-to-server operation.
func (s *Server) Send(typ string, op wsrouter.Operation, opts ...wsrouter.Option) error {
	return s.registry.Send(typ, op, opts...)
}

// Recv registers a server-to-client operation.
func (s *Server) Recv(typ string, op wsrouter.Operation, opts ...wsrouter.Option) error {
	return s.registry.Recv(typ, op, opts...)
}

// Include merges a router into the server registry.
func (s *Server) Include(rt *wsrouter.Router, prefix string) error {
	return s.registry.Include(rt, prefix)
}

// Registry returns the operation registry.
func (s *Server) Registry() *wsrouter.Registry {
	return s.registry
}

// Handler returns the HTTP handler serving the WebSocket endpoint, the
// documentation routes, the metrics endpoint and any configured routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get(s.cfg.Path, s.ServeWS)

	if !s.cfg.DisableDocs {
		r.Get(DefaultDocsJSONPath, s.handleDocsJSON)
		r.Get(DefaultDocsPath, s.handleDocsHTML)
	}

	if s.cfg.MetricsPath != "" && s.gatherer != nil {
		r.Handle(s.cfg.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	if s.cfg.Routes != nil {
		s.cfg.Routes(r)
	}
	return r
}

// Start starts the WebSocket server
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrServerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.registry.Finalize()

	s.server = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Check for immediate startup errors with a small timeout
	select {
	case err := <-errChan:
		// Reset running state without calling Stop to avoid deadlock
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		// Context cancelled, stop the server
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		// Server started successfully, no immediate errors
		s.logger.Info(fmt.Sprintf("%s - listening on %s%s", logPrefix, s.cfg.Addr, s.cfg.Path))
		return nil
	}
}

// Stop closes every live connection with a going-away status and shuts the
// HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.closeAll(ctx, wsrouter.ReasonShutdown)

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Connection returns a live connection by ID
func (s *Server) Connection(id string) (wsrouter.Conn, bool) {
	c, ok := s.client(id)
	if !ok {
		return nil, false
	}
	return c, true
}

// Connections returns a snapshot of the live connections.
func (s *Server) Connections() []wsrouter.Conn {
	out := make([]wsrouter.Conn, 0, s.count.Load())
	s.clients.Range(func(_, value any) bool {
		out = append(out, value.(*Client))
		return true
	})
	return out
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int {
	return int(s.count.Load())
}

func (s *Server) client(id string) (*Client, bool) {
	if client, ok := s.clients.Load(id); ok {
		return client.(*Client), true
	}
	return nil, false
}

func (s *Server) closeAll(ctx context.Context, reason wsrouter.CloseReason) {
	var wg sync.WaitGroup
	s.clients.Range(func(_, value any) bool {
		client := value.(*Client)
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.CloseWithReason(ctx, reason)
		}()
		return true
	})
	wg.Wait()
}

func (s *Server) handleDocsJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Docs()
	if err != nil {
		s.logger.Error(fmt.Sprintf("%s - build asyncapi document: %v", logPrefix, err))
		http.Error(w, "failed to build document", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(doc)
}

func (s *Server) handleDocsHTML(w http.ResponseWriter, r *http.Request) {
	page, err := asyncapi.HTML(s.cfg.Title+" - AsyncAPI UI", DefaultDocsJSONPath)
	if err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// Docs returns the AsyncAPI document of the registered operations.
func (s *Server) Docs() ([]byte, error) {
	doc, err := asyncapi.Build(asyncapi.Info{
		Title:       s.cfg.Title,
		Version:     s.cfg.Version,
		Description: s.cfg.Description,
	}, s.registry.List())
	if err != nil {
		return nil, err
	}
	return doc.JSON()
}
