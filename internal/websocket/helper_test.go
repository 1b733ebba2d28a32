package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/luciancaetano/wsrouter"
)

const waitTimeout = 2 * time.Second

// fakeChannel is an in-memory wsrouter.Channel.
type fakeChannel struct {
	addr  string
	inbox chan []byte
	out   chan []byte
	gone  chan struct{}

	mu          sync.Mutex
	accepted    bool
	closed      chan struct{}
	closeOnce   sync.Once
	closeCode   int
	closeReason string
	sendErr     error
	stall       chan struct{}
}

func newFakeChannel(addr string) *fakeChannel {
	return &fakeChannel{
		addr:   addr,
		inbox:  make(chan []byte, 64),
		out:    make(chan []byte, 256),
		gone:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (f *fakeChannel) Accept(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = true
	return nil
}

func (f *fakeChannel) Accepted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted
}

func (f *fakeChannel) Receive(deadline time.Time) ([]byte, error) {
	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case data := <-f.inbox:
		return data, nil
	case <-f.gone:
		return nil, wsrouter.ErrPeerDisconnected
	case <-f.closed:
		return nil, wsrouter.ErrPeerDisconnected
	case <-timeout:
		return nil, wsrouter.ErrReceiveTimeout
	}
}

func (f *fakeChannel) Send(_ context.Context, data []byte) error {
	f.mu.Lock()
	err, stall := f.sendErr, f.stall
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if stall != nil {
		select {
		case <-stall:
			return errors.New("send stalled")
		case <-f.closed:
			return errors.New("channel closed")
		}
	}
	select {
	case <-f.closed:
		return errors.New("channel closed")
	default:
	}
	f.out <- data
	return nil
}

func (f *fakeChannel) Ping() error { return nil }

func (f *fakeChannel) Close(code int, reason string) error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closeCode = code
		f.closeReason = reason
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

func (f *fakeChannel) RemoteAddr() string { return f.addr }

func (f *fakeChannel) Request() *http.Request { return nil }

// stallSends blocks every Send until release is called, after which the
// blocked sends fail.
func (f *fakeChannel) stallSends() (release func()) {
	stall := make(chan struct{})
	f.mu.Lock()
	f.stall = stall
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(stall) }) }
}

// disconnect simulates the peer going away.
func (f *fakeChannel) disconnect() {
	close(f.gone)
}

// write sends an envelope from the peer.
func (f *fakeChannel) write(t *testing.T, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.inbox <- data
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type errorPayload struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// next returns the next frame sent to the peer.
func (f *fakeChannel) next(t *testing.T) envelope {
	t.Helper()
	select {
	case data := <-f.out:
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("invalid frame %s: %v", data, err)
		}
		return env
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for frame")
		return envelope{}
	}
}

// expectNone fails if a frame is sent within d.
func (f *fakeChannel) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case data := <-f.out:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(d):
	}
}

// waitClosed waits for the close frame and returns its code and reason.
func (f *fakeChannel) waitClosed(t *testing.T) (int, string) {
	t.Helper()
	select {
	case <-f.closed:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.closeCode, f.closeReason
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for close")
		return 0, ""
	}
}

func (f *fakeChannel) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func decodeError(t *testing.T, env envelope) errorPayload {
	t.Helper()
	var p errorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("invalid error payload %s: %v", env.Payload, err)
	}
	return p
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg ServerConfig, register func(s *Server)) *Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = NoRateLimit()
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = -1
	}
	s := New(&cfg)
	if register != nil {
		register(s)
	}
	return s
}

// serve runs the lifecycle of ch in the background and returns its result.
func serve(s *Server, ch *fakeChannel) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(context.Background(), ch)
	}()
	return done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for Serve to return")
		return nil
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
