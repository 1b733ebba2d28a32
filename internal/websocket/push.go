package websocket

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/luciancaetano/wsrouter"
	"github.com/luciancaetano/wsrouter/internal/protocol"
)

// Push resolves the recv operation typ, runs its handler once and delivers
// the result to every live connection subscribed to topic.
//
// payload may be any JSON-encodable value, []byte or json.RawMessage; it is
// validated against the operation's input schema. Delivery failures of
// single connections are logged and counted, never returned.
func (s *Server) Push(ctx context.Context, typ string, payload any, topic string) (err error) {
	ctx, span := s.tracer.Start(ctx, "wsrouter.push",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("ws.message.type", typ),
			attribute.String("ws.topic", topic),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	d, err := s.registry.Resolve(wsrouter.DirectionRecv, typ)
	if err != nil {
		return err
	}

	raw, err := protocol.RawPayload(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", wsrouter.ErrPayloadValidation, err)
	}
	in, err := validatePayload(d, raw)
	if err != nil {
		return err
	}

	result, err := invoke(ctx, d, &wsrouter.Call{
		App:     s,
		Type:    typ,
		Payload: in,
	})
	if err != nil {
		return err
	}

	var data []byte
	if d.Replies() {
		data, err = encodeResult(d, result)
	} else {
		// Operations without an output schema push their input.
		data, err = protocol.Encode(d.ReplyType(), raw)
	}
	if err != nil {
		return fmt.Errorf("encode push %q: %w", typ, err)
	}

	delivered := s.Broadcast(ctx, data, topic)
	span.SetAttributes(attribute.Int("ws.push.delivered", delivered))
	return nil
}

// Broadcast sends an encoded envelope to every live connection subscribed to
// topic and returns the number of successful deliveries.
func (s *Server) Broadcast(ctx context.Context, data []byte, topic string) int {
	var targets []*Client
	s.clients.Range(func(_, value any) bool {
		client := value.(*Client)
		if client.IsAlive() && client.Subscribed(topic) {
			targets = append(targets, client)
		}
		return true
	})
	if len(targets) == 0 {
		return 0
	}

	results := make([]bool, len(targets))
	var g errgroup.Group
	g.SetLimit(s.cfg.PushConcurrency)

	for i, client := range targets {
		g.Go(func() error {
			if err := client.SendRaw(ctx, data); err != nil {
				s.metrics.pushed(false)
				s.logger.Warn(fmt.Sprintf("%s - push delivery failed client_id=%s topic=%s: %v", logPrefix, client.ID(), topic, err))
				return nil
			}
			s.metrics.pushed(true)
			results[i] = true
			return nil
		})
	}
	g.Wait()

	delivered := 0
	for _, ok := range results {
		if ok {
			delivered++
		}
	}
	return delivered
}
