package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/luciancaetano/wsrouter"
)

// ServeWS handles a WebSocket upgrade request and serves the connection
// until it closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ch := NewChannel(w, r, &s.upgrader, s.cfg.MaxMessageSize)
	if err := s.Serve(r.Context(), ch); err != nil {
		s.logger.Debug(fmt.Sprintf("%s - connection from %s ended: %v", logPrefix, ch.RemoteAddr(), err))
	}
}

// Serve runs the connection lifecycle on ch: accept, authenticate, serve
// until a close condition, then close. It blocks until the channel is closed.
//
// The returned error is nil for regular closes (peer disconnect, timeouts,
// Close calls) and reports auth failures and internal faults otherwise.
func (s *Server) Serve(ctx context.Context, ch wsrouter.Channel) error {
	s.registry.Finalize()

	if !s.cfg.ManualAccept {
		if err := ch.Accept(ctx); err != nil {
			return fmt.Errorf("accept channel: %w", err)
		}
	}

	if !s.authenticate(ctx, ch) {
		s.metrics.closed(wsrouter.ReasonAuthFailed)
		ch.Close(wsrouter.ReasonAuthFailed.Code(), wsrouter.ReasonAuthFailed.String())
		return wsrouter.ErrAuthFailed
	}

	// Accept is idempotent; with ManualAccept the auth handler may already
	// have accepted.
	if err := ch.Accept(ctx); err != nil {
		return fmt.Errorf("accept channel: %w", err)
	}

	client := NewClient(ch, s.cfg.RateLimitConfig, s.cfg.PingInterval, s.logger)
	s.connect(client)

	reason, err := s.serveLoop(client)

	s.clients.Delete(client.ID())
	s.count.Add(-1)

	closeCtx, cancel := context.WithTimeout(context.Background(), writeWait)
	client.CloseWithReason(closeCtx, reason)
	cancel()

	s.disconnect(client, err)
	return err
}

// authenticate runs the auth handler under the auth timeout.
func (s *Server) authenticate(ctx context.Context, ch wsrouter.Channel) bool {
	if s.cfg.Auth == nil {
		return true
	}

	if s.cfg.AuthTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AuthTimeout)
		defer cancel()
	}

	result := make(chan bool, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error(fmt.Sprintf("%s - auth handler panicked: %v", logPrefix, r))
				result <- false
			}
		}()
		result <- s.cfg.Auth(ctx, ch)
	}()

	select {
	case ok := <-result:
		if !ok {
			s.logger.Info(fmt.Sprintf("%s - authentication rejected remote=%s", logPrefix, ch.RemoteAddr()))
		}
		return ok
	case <-ctx.Done():
		s.logger.Info(fmt.Sprintf("%s - authentication timed out remote=%s", logPrefix, ch.RemoteAddr()))
		return false
	}
}

// serveLoop receives and dispatches frames one at a time until a close
// condition and returns the reason.
func (s *Server) serveLoop(client *Client) (wsrouter.CloseReason, error) {
	var lifespanEnd time.Time
	if s.cfg.MaxConnectionLifespan > 0 {
		lifespanEnd = time.Now().Add(s.cfg.MaxConnectionLifespan)
	}

	for {
		deadline, timeoutReason := s.receiveDeadline(lifespanEnd)

		data, err := client.ch.Receive(deadline)
		binary := errors.Is(err, wsrouter.ErrBinaryFrame)
		if err != nil && !binary {
			switch {
			case errors.Is(err, wsrouter.ErrReceiveTimeout):
				return timeoutReason, nil
			case errors.Is(err, wsrouter.ErrMessageTooLarge):
				s.logger.Warn(fmt.Sprintf("%s - frame over %d bytes client_id=%s", logPrefix, s.cfg.MaxMessageSize, client.ID()))
				return wsrouter.ReasonMessageTooLarge, nil
			default:
				return wsrouter.ReasonClientDisconnect, nil
			}
		}

		if !client.CheckRateLimit() {
			s.logger.Warn(fmt.Sprintf("%s - rate limit exceeded client_id=%s", logPrefix, client.ID()))
			return wsrouter.ReasonRateLimited, nil
		}

		if binary {
			s.metrics.observeMessage(wsrouter.TypeError, outcomeMalformed, 0)
			if err := s.sendError(client.Context(), client, wsrouter.TypeError, wsrouter.CodeMalformedEnvelope, err.Error()); err != nil {
				return wsrouter.ReasonInternalError, err
			}
			continue
		}

		if err := s.dispatch(client.Context(), client, data); err != nil {
			s.logger.Error(fmt.Sprintf("%s - dispatch failed client_id=%s: %v", logPrefix, client.ID(), err))
			return wsrouter.ReasonInternalError, err
		}
	}
}

// receiveDeadline returns the earliest of the heartbeat deadline and the
// lifespan end, with the reason to close for when it passes. A zero time
// means no deadline.
func (s *Server) receiveDeadline(lifespanEnd time.Time) (time.Time, wsrouter.CloseReason) {
	var heartbeat time.Time
	if s.cfg.HeartbeatInterval > 0 {
		heartbeat = time.Now().Add(s.cfg.HeartbeatInterval)
	}

	switch {
	case lifespanEnd.IsZero():
		return heartbeat, wsrouter.ReasonNoActivity
	case heartbeat.IsZero() || !heartbeat.Before(lifespanEnd):
		return lifespanEnd, wsrouter.ReasonLifespanExceeded
	default:
		return heartbeat, wsrouter.ReasonNoActivity
	}
}

func (s *Server) connect(client *Client) {
	s.clients.Store(client.ID(), client)
	s.count.Add(1)
	s.metrics.connections.Inc()

	s.logger.Info(fmt.Sprintf("%s - client connected client_id=%s remote=%s", logPrefix, client.ID(), client.RemoteAddr()))

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(client)
	}
}

func (s *Server) disconnect(client *Client, err error) {
	reason := client.Reason()
	s.metrics.connections.Dec()
	s.metrics.closed(reason)

	if err != nil {
		s.logger.Warn(fmt.Sprintf("%s - client closed client_id=%s reason=%q: %v", logPrefix, client.ID(), reason, err))
	} else {
		s.logger.Info(fmt.Sprintf("%s - client closed client_id=%s reason=%q", logPrefix, client.ID(), reason))
	}

	if s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect(client, reason)
	}
}
