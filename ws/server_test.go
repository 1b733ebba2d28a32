package ws_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/luciancaetano/wsrouter"
	"github.com/luciancaetano/wsrouter/ws"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := ws.NewConfig(":0", ws.NoRateLimit(), ws.AllOrigins(), nil, nil)
	if cfg.ManualAccept {
		t.Error("NewConfig should accept connections before auth")
	}
	if cfg.RateLimitConfig.Enabled {
		t.Error("Expected rate limiting disabled")
	}

	server := ws.New(cfg)
	err := server.Send("ping", wsrouter.Action(func(context.Context, *wsrouter.Call) error { return nil }), wsrouter.WithReply("pong"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if server.Registry().Len() != 1 {
		t.Errorf("Expected one operation, got %d", server.Registry().Len())
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	t.Parallel()

	config := ws.DefaultRateLimitConfig()

	if !config.Enabled {
		t.Error("Default rate limit should be enabled")
	}
	if config.MessagesPerSecond != 100 {
		t.Errorf("Default MessagesPerSecond = %v, want 100", config.MessagesPerSecond)
	}
	if config.Burst != 200 {
		t.Errorf("Default Burst = %v, want 200", config.Burst)
	}
}

func TestOrigins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		check  ws.CheckOriginFn
		origin string
		want   bool
	}{
		{"all origins", ws.AllOrigins(), "https://evil.example", true},
		{"allowed", ws.AllowOrigins("https://app.example"), "https://app.example", true},
		{"denied", ws.AllowOrigins("https://app.example"), "https://evil.example", false},
		{"no origin header", ws.AllowOrigins("https://app.example"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := tt.check(r); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
