// Package config provides the CLI configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds wsrouter server configuration.
type Config struct {
	// HTTP listener and WebSocket endpoint
	Addr   string `envconfig:"WSROUTER_ADDR" default:":8080"`
	WSPath string `envconfig:"WSROUTER_WS_PATH" default:"/ws"`

	// Lifecycle (zero disables)
	HeartbeatInterval     time.Duration `envconfig:"WSROUTER_HEARTBEAT_INTERVAL" default:"0s"`
	MaxConnectionLifespan time.Duration `envconfig:"WSROUTER_MAX_CONNECTION_LIFESPAN" default:"0s"`
	PingInterval          time.Duration `envconfig:"WSROUTER_PING_INTERVAL" default:"54s"`
	AuthTimeout           time.Duration `envconfig:"WSROUTER_AUTH_TIMEOUT" default:"10s"`
	AutoAccept            bool          `envconfig:"WSROUTER_AUTO_ACCEPT" default:"true"`
	// AuthToken, when set, is required as the "token" query parameter.
	AuthToken string `envconfig:"WSROUTER_AUTH_TOKEN"`

	// Limits
	MaxMessageSize  int64    `envconfig:"WSROUTER_MAX_MESSAGE_SIZE" default:"1048576"`
	RateLimit       float64  `envconfig:"WSROUTER_RATE_LIMIT" default:"100"`
	RateLimitBurst  int      `envconfig:"WSROUTER_RATE_LIMIT_BURST" default:"200"`
	PushConcurrency int      `envconfig:"WSROUTER_PUSH_CONCURRENCY" default:"64"`
	AllowedOrigins  []string `envconfig:"WSROUTER_ALLOWED_ORIGINS"`

	// Documentation
	Title       string `envconfig:"WSROUTER_TITLE" default:"wsrouter"`
	Version     string `envconfig:"WSROUTER_API_VERSION" default:"1.0.0"`
	Description string `envconfig:"WSROUTER_DESCRIPTION"`
	DisableDocs bool   `envconfig:"WSROUTER_DISABLE_DOCS" default:"false"`

	// Observability
	MetricsPath string `envconfig:"WSROUTER_METRICS_PATH" default:"/metrics"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// NATS bridge (empty URL disables it)
	NATSURL     string `envconfig:"NATS_URL"`
	NATSName    string `envconfig:"SERVICE_NAME" default:"wsrouter"`
	NATSSubject string `envconfig:"WSROUTER_PUSH_SUBJECT" default:"wsrouter.push"`

	ShutdownTimeout time.Duration `envconfig:"WSROUTER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the configuration for serve.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%s - WSROUTER_ADDR is required", logPrefix)
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("%s - WSROUTER_WS_PATH must start with /", logPrefix)
	}
	if c.HeartbeatInterval < 0 || c.MaxConnectionLifespan < 0 {
		return fmt.Errorf("%s - timeouts must not be negative", logPrefix)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%s - WSROUTER_MAX_MESSAGE_SIZE must be positive", logPrefix)
	}
	if c.RateLimit < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("%s - rate limits must not be negative", logPrefix)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%s - WSROUTER_SHUTDOWN_TIMEOUT must be positive", logPrefix)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level, info when unknown.
func (c *Config) SlogLevel() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%s - invalid LOG_LEVEL %q", logPrefix, s)
	}
	return level, nil
}
