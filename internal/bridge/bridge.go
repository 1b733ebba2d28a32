// Package bridge carries server pushes between processes over NATS.
//
// A Publisher sends {type, payload} envelopes to "<prefix>.<topic>"; a
// Subscriber running next to a server receives them and calls Push with the
// topic taken from the subject.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/luciancaetano/wsrouter/internal/protocol"
)

const logPrefix = "bridge:nats"

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "wsrouter.push"

// pushTimeout bounds a single Push triggered by a bridged message.
const pushTimeout = 10 * time.Second

// Pusher is the part of the application the subscriber feeds.
type Pusher interface {
	Push(ctx context.Context, typ string, payload any, topic string) error
}

// ack is the reply to bridged requests.
type ack struct {
	Error string `json:"error,omitempty"`
}

// Connect creates a NATS connection with reconnect handling.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(fmt.Sprintf("%s - connecting to %s as %s", logPrefix, url, name))

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn(fmt.Sprintf("%s - disconnected: %v", logPrefix, err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(fmt.Sprintf("%s - reconnected to %s", logPrefix, nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info(fmt.Sprintf("%s - connection closed", logPrefix))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect: %w", logPrefix, err)
	}
	return nc, nil
}

// Subject returns the subject a push to topic is published on.
func Subject(prefix, topic string) string {
	return prefix + "." + topic
}

// Subscriber forwards bridged pushes to a Pusher.
type Subscriber struct {
	nc     *nats.Conn
	prefix string
	app    Pusher
	logger *slog.Logger
	sub    *nats.Subscription
}

// NewSubscriber creates a subscriber for subjects under prefix. An empty
// prefix uses DefaultPrefix.
func NewSubscriber(nc *nats.Conn, prefix string, app Pusher, logger *slog.Logger) *Subscriber {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{nc: nc, prefix: prefix, app: app, logger: logger}
}

// Start subscribes to "<prefix>.>".
func (s *Subscriber) Start() error {
	sub, err := s.nc.Subscribe(s.prefix+".>", s.handle)
	if err != nil {
		return fmt.Errorf("%s - subscribe %s: %w", logPrefix, s.prefix, err)
	}
	s.sub = sub
	s.logger.Info(fmt.Sprintf("%s - forwarding %s.> to push", logPrefix, s.prefix))
	return nil
}

// Stop drains the subscription.
func (s *Subscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Drain()
}

func (s *Subscriber) handle(msg *nats.Msg) {
	topic := strings.TrimPrefix(msg.Subject, s.prefix+".")

	env, err := protocol.Decode(msg.Data)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("%s - dropping message on %s: %v", logPrefix, msg.Subject, err))
		s.respond(msg, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	err = s.app.Push(ctx, env.Type, env.Payload, topic)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("%s - push %s to %s failed: %v", logPrefix, env.Type, topic, err))
	}
	s.respond(msg, err)
}

func (s *Subscriber) respond(msg *nats.Msg, err error) {
	if msg.Reply == "" {
		return
	}
	var a ack
	if err != nil {
		a.Error = err.Error()
	}
	data, _ := json.Marshal(a)
	if err := msg.Respond(data); err != nil {
		s.logger.Debug(fmt.Sprintf("%s - ack failed: %v", logPrefix, err))
	}
}

// Publisher sends pushes to subscribers in other processes.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// NewPublisher creates a publisher. An empty prefix uses DefaultPrefix.
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{nc: nc, prefix: prefix}
}

// Publish sends a push request without waiting for it to be handled.
func (p *Publisher) Publish(_ context.Context, topic, typ string, payload any) error {
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(Subject(p.prefix, topic), data); err != nil {
		return fmt.Errorf("%s - publish %s: %w", logPrefix, topic, err)
	}
	return nil
}

// Request sends a push request and waits until a subscriber handled it.
// A failed Push comes back as an error carrying the same message.
func (p *Publisher) Request(ctx context.Context, topic, typ string, payload any) error {
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		return err
	}
	msg, err := p.nc.RequestWithContext(ctx, Subject(p.prefix, topic), data)
	if err != nil {
		return fmt.Errorf("%s - request %s: %w", logPrefix, topic, err)
	}
	var a ack
	if err := json.Unmarshal(msg.Data, &a); err != nil {
		return fmt.Errorf("%s - invalid ack: %w", logPrefix, err)
	}
	if a.Error != "" {
		return errors.New(a.Error)
	}
	return nil
}
