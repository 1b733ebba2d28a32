package websocket

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luciancaetano/wsrouter"
)

func registerPing(t *testing.T) func(s *Server) {
	return func(s *Server) {
		must(t, s.Send("ping", wsrouter.Action(func(context.Context, *wsrouter.Call) error {
			return nil
		}), wsrouter.WithReply("pong")))
	}
}

func TestHeartbeatTimeout(t *testing.T) {
	t.Parallel()

	const heartbeat = 80 * time.Millisecond

	s := newTestServer(t, ServerConfig{HeartbeatInterval: heartbeat}, registerPing(t))
	ch := newFakeChannel("10.0.0.1:1000")
	start := time.Now()
	done := serve(s, ch)

	code, reason := ch.waitClosed(t)
	elapsed := time.Since(start)

	if code != wsrouter.CloseNoActivity {
		t.Errorf("Expected close code %d, got %d", wsrouter.CloseNoActivity, code)
	}
	if reason != wsrouter.ReasonNoActivity.String() {
		t.Errorf("Expected reason %q, got %q", wsrouter.ReasonNoActivity, reason)
	}
	if elapsed < heartbeat {
		t.Errorf("Closed after %v, before heartbeat %v", elapsed, heartbeat)
	}
	if err := waitDone(t, done); err != nil {
		t.Errorf("Expected clean close, got %v", err)
	}
}

func TestHeartbeatResetByMessages(t *testing.T) {
	t.Parallel()

	const heartbeat = 100 * time.Millisecond

	s := newTestServer(t, ServerConfig{HeartbeatInterval: heartbeat}, registerPing(t))
	ch := newFakeChannel("10.0.0.1:1000")
	done := serve(s, ch)

	// Stay active for three heartbeat intervals.
	activeUntil := time.Now().Add(3 * heartbeat)
	for time.Now().Before(activeUntil) {
		ch.write(t, "ping", nil)
		ch.next(t)
		if ch.isClosed() {
			t.Fatal("Connection closed while active")
		}
		time.Sleep(heartbeat / 4)
	}

	code, _ := ch.waitClosed(t)
	if code != wsrouter.CloseNoActivity {
		t.Errorf("Expected close code %d once idle, got %d", wsrouter.CloseNoActivity, code)
	}
	waitDone(t, done)
}

func TestMaxLifespan(t *testing.T) {
	t.Parallel()

	const lifespan = 150 * time.Millisecond

	s := newTestServer(t, ServerConfig{
		HeartbeatInterval:     50 * time.Millisecond,
		MaxConnectionLifespan: lifespan,
	}, registerPing(t))
	ch := newFakeChannel("10.0.0.1:1000")
	start := time.Now()
	done := serve(s, ch)

	// Continuous activity does not extend the lifespan.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ch.closed:
				return
			case <-ticker.C:
				select {
				case ch.inbox <- []byte(`{"type":"ping"}`):
				default:
				}
			}
		}
	}()
	defer close(stop)

	code, reason := ch.waitClosed(t)
	elapsed := time.Since(start)

	if code != wsrouter.CloseLifespanExceeded {
		t.Errorf("Expected close code %d, got %d", wsrouter.CloseLifespanExceeded, code)
	}
	if reason != wsrouter.ReasonLifespanExceeded.String() {
		t.Errorf("Expected reason %q, got %q", wsrouter.ReasonLifespanExceeded, reason)
	}
	if elapsed < lifespan {
		t.Errorf("Closed after %v, before lifespan %v", elapsed, lifespan)
	}
	waitDone(t, done)
}

func TestReceiveDeadline(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name       string
		heartbeat  time.Duration
		lifespan   time.Time
		wantZero   bool
		wantReason wsrouter.CloseReason
	}{
		{
			name:     "no timeouts",
			wantZero: true,
		},
		{
			name:       "heartbeat only",
			heartbeat:  time.Minute,
			wantReason: wsrouter.ReasonNoActivity,
		},
		{
			name:       "lifespan only",
			lifespan:   now.Add(time.Minute),
			wantReason: wsrouter.ReasonLifespanExceeded,
		},
		{
			name:       "heartbeat sooner",
			heartbeat:  time.Second,
			lifespan:   now.Add(time.Hour),
			wantReason: wsrouter.ReasonNoActivity,
		},
		{
			name:       "lifespan sooner",
			heartbeat:  time.Hour,
			lifespan:   now.Add(time.Second),
			wantReason: wsrouter.ReasonLifespanExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := &Server{cfg: ServerConfig{HeartbeatInterval: tt.heartbeat}}
			deadline, reason := s.receiveDeadline(tt.lifespan)

			if deadline.IsZero() != tt.wantZero {
				t.Fatalf("Expected zero deadline %v, got %v", tt.wantZero, deadline)
			}
			if !tt.wantZero && reason != tt.wantReason {
				t.Errorf("Expected reason %q, got %q", tt.wantReason, reason)
			}
		})
	}
}

func TestAuthentication(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		autoAccept bool
		auth       wsrouter.AuthFunc
		timeout    time.Duration
		wantErr    error
		wantAccept bool
	}{
		{
			name:       "accepted",
			autoAccept: true,
			auth:       func(context.Context, wsrouter.Channel) bool { return true },
			wantAccept: true,
		},
		{
			name:       "rejected after auto accept",
			autoAccept: true,
			auth:       func(context.Context, wsrouter.Channel) bool { return false },
			wantErr:    wsrouter.ErrAuthFailed,
			wantAccept: true,
		},
		{
			name:       "rejected before accept",
			auth:       func(context.Context, wsrouter.Channel) bool { return false },
			wantErr:    wsrouter.ErrAuthFailed,
			wantAccept: false,
		},
		{
			name: "auth handler accepts",
			auth: func(ctx context.Context, ch wsrouter.Channel) bool {
				return ch.Accept(ctx) == nil
			},
			wantAccept: true,
		},
		{
			name:       "timeout",
			autoAccept: true,
			auth: func(ctx context.Context, _ wsrouter.Channel) bool {
				<-ctx.Done()
				time.Sleep(10 * time.Millisecond)
				return true
			},
			timeout:    30 * time.Millisecond,
			wantErr:    wsrouter.ErrAuthFailed,
			wantAccept: true,
		},
		{
			name:       "panic",
			autoAccept: true,
			auth: func(context.Context, wsrouter.Channel) bool {
				panic("auth bug")
			},
			wantErr:    wsrouter.ErrAuthFailed,
			wantAccept: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var connected atomic.Int32
			s := newTestServer(t, ServerConfig{
				ManualAccept: !tt.autoAccept,
				Auth:         tt.auth,
				AuthTimeout:  tt.timeout,
				OnConnect:    func(wsrouter.Conn) { connected.Add(1) },
			}, registerPing(t))
			ch := newFakeChannel("10.0.0.1:1000")
			done := serve(s, ch)

			if tt.wantErr != nil {
				code, reason := ch.waitClosed(t)
				if code != wsrouter.ClosePolicyViolation {
					t.Errorf("Expected close code %d, got %d", wsrouter.ClosePolicyViolation, code)
				}
				if reason != wsrouter.ReasonAuthFailed.String() {
					t.Errorf("Expected reason %q, got %q", wsrouter.ReasonAuthFailed, reason)
				}
				if err := waitDone(t, done); !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				if connected.Load() != 0 {
					t.Error("Rejected channel must never become a connection")
				}
			} else {
				ch.write(t, "ping", nil)
				if env := ch.next(t); env.Type != "pong" {
					t.Errorf("Expected pong, got %q", env.Type)
				}
				if connected.Load() != 1 {
					t.Errorf("Expected one connect, got %d", connected.Load())
				}
				ch.disconnect()
				waitDone(t, done)
			}

			if ch.Accepted() != tt.wantAccept {
				t.Errorf("Expected accepted %v, got %v", tt.wantAccept, ch.Accepted())
			}
			if s.ConnectionCount() != 0 {
				t.Errorf("Expected no live connections, got %d", s.ConnectionCount())
			}
		})
	}
}

func TestPeerDisconnect(t *testing.T) {
	t.Parallel()

	reasons := make(chan wsrouter.CloseReason, 1)
	s := newTestServer(t, ServerConfig{
		OnDisconnect: func(_ wsrouter.Conn, r wsrouter.CloseReason) { reasons <- r },
	}, registerPing(t))
	ch := newFakeChannel("10.0.0.1:1000")
	done := serve(s, ch)

	waitFor(t, func() bool { return s.ConnectionCount() == 1 })
	conns := s.Connections()
	if len(conns) != 1 {
		t.Fatalf("Expected one connection, got %d", len(conns))
	}
	id := conns[0].ID()
	if len(id) != 32 {
		t.Errorf("Expected 32 character uid, got %q", id)
	}

	ch.disconnect()

	if err := waitDone(t, done); err != nil {
		t.Errorf("Expected clean close, got %v", err)
	}
	if r := <-reasons; r != wsrouter.ReasonClientDisconnect {
		t.Errorf("Expected reason %q, got %q", wsrouter.ReasonClientDisconnect, r)
	}
	if _, ok := s.Connection(id); ok {
		t.Error("Connection should leave the live map")
	}
	if conns[0].IsAlive() {
		t.Error("Connection should be closed")
	}
	if err := conns[0].Send(context.Background(), "ping", nil); !errors.Is(err, wsrouter.ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
}

func TestHandlerClosesConnection(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, ServerConfig{}, func(s *Server) {
		must(t, s.Send("bye", wsrouter.Action(func(ctx context.Context, call *wsrouter.Call) error {
			if err := call.Conn.Send(ctx, "goodbye", nil); err != nil {
				return err
			}
			return call.Conn.CloseWithCode(ctx, 4100, "done")
		})))
	})
	ch := newFakeChannel("10.0.0.1:1000")
	done := serve(s, ch)

	ch.write(t, "bye", nil)

	// Queued messages are flushed before the close frame.
	if env := ch.next(t); env.Type != "goodbye" {
		t.Errorf("Expected goodbye, got %q", env.Type)
	}
	code, reason := ch.waitClosed(t)
	if code != 4100 || reason != "done" {
		t.Errorf("Expected 4100 done, got %d %q", code, reason)
	}
	if err := waitDone(t, done); err != nil {
		t.Errorf("Expected clean close, got %v", err)
	}
}

func TestRateLimitCloses(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, ServerConfig{
		RateLimitConfig: &RateLimitConfig{MessagesPerSecond: 1, Burst: 2, Enabled: true},
	}, registerPing(t))
	ch := newFakeChannel("10.0.0.1:1000")
	done := serve(s, ch)

	for i := 0; i < 3; i++ {
		ch.write(t, "ping", nil)
	}

	code, reason := ch.waitClosed(t)
	if code != wsrouter.ClosePolicyViolation {
		t.Errorf("Expected close code %d, got %d", wsrouter.ClosePolicyViolation, code)
	}
	if reason != wsrouter.ReasonRateLimited.String() {
		t.Errorf("Expected reason %q, got %q", wsrouter.ReasonRateLimited, reason)
	}
	waitDone(t, done)
}

func TestStopClosesConnections(t *testing.T) {
	t.Parallel()

	reasons := make(chan wsrouter.CloseReason, 2)
	s := newTestServer(t, ServerConfig{
		Addr:         "127.0.0.1:0",
		OnDisconnect: func(_ wsrouter.Conn, r wsrouter.CloseReason) { reasons <- r },
	}, registerPing(t))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrServerAlreadyRunning) {
		t.Errorf("Expected ErrServerAlreadyRunning, got %v", err)
	}

	a, b := newFakeChannel("10.0.0.1:1000"), newFakeChannel("10.0.0.2:1000")
	doneA, doneB := serve(s, a), serve(s, b)
	waitFor(t, func() bool { return s.ConnectionCount() == 2 })

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	for _, ch := range []*fakeChannel{a, b} {
		code, _ := ch.waitClosed(t)
		if code != wsrouter.CloseGoingAway {
			t.Errorf("Expected close code %d, got %d", wsrouter.CloseGoingAway, code)
		}
	}
	waitDone(t, doneA)
	waitDone(t, doneB)

	for i := 0; i < 2; i++ {
		if r := <-reasons; r != wsrouter.ReasonShutdown {
			t.Errorf("Expected reason %q, got %q", wsrouter.ReasonShutdown, r)
		}
	}

	if err := s.registry.Send("late", wsrouter.Action(func(context.Context, *wsrouter.Call) error { return nil })); !errors.Is(err, wsrouter.ErrRegistryFinalized) {
		t.Errorf("Expected ErrRegistryFinalized, got %v", err)
	}
}
