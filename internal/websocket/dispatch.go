package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/luciancaetano/wsrouter"
	"github.com/luciancaetano/wsrouter/internal/protocol"
)

const tracerName = "github.com/luciancaetano/wsrouter/internal/websocket"

// Dispatch outcomes, used as metric labels and span attributes.
const (
	outcomeOK        = "ok"
	outcomeMalformed = "malformed"
	outcomeUnknown   = "unknown"
	outcomeInvalid   = "invalid"
	outcomeAppError  = "app_error"
	outcomeFault     = "fault"
)

// dispatch handles one inbound frame. Recoverable failures are answered with
// an error envelope on the same connection; the returned error is always an
// internal fault and ends the connection.
func (s *Server) dispatch(ctx context.Context, client *Client, data []byte) error {
	start := time.Now()

	env, err := protocol.Decode(data)
	if err != nil {
		s.metrics.observeMessage(wsrouter.TypeError, outcomeMalformed, time.Since(start))
		return s.sendError(ctx, client, wsrouter.TypeError, wsrouter.CodeMalformedEnvelope, err.Error())
	}

	ctx, span := s.tracer.Start(ctx, "wsrouter.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("ws.message.type", env.Type),
			attribute.String("ws.connection.id", client.ID()),
		),
	)
	defer span.End()

	outcome, err := s.handle(ctx, client, env)

	span.SetAttributes(attribute.String("ws.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	label := env.Type
	if outcome == outcomeUnknown {
		// Keep client-chosen types out of the label set.
		label = outcomeUnknown
	}
	s.metrics.observeMessage(label, outcome, time.Since(start))
	return err
}

func (s *Server) handle(ctx context.Context, client *Client, env protocol.Envelope) (string, error) {
	d, err := s.registry.Resolve(wsrouter.DirectionSend, env.Type)
	if err != nil {
		return outcomeUnknown, s.sendError(ctx, client, env.Type, wsrouter.CodeUnknownOperation,
			fmt.Sprintf("unknown operation %q", env.Type))
	}

	payload, err := validatePayload(d, env.Payload)
	if err != nil {
		return outcomeInvalid, s.sendError(ctx, client, env.Type, wsrouter.CodeValidationError, err.Error())
	}

	result, err := invoke(ctx, d, &wsrouter.Call{
		Conn:    client,
		App:     s,
		Type:    env.Type,
		Payload: payload,
	})
	if err != nil {
		var appErr *wsrouter.Error
		if errors.As(err, &appErr) {
			return outcomeAppError, s.sendError(ctx, client, env.Type, appErr.Code, appErr.Detail)
		}
		return outcomeFault, asFault(d, err)
	}

	if !d.Replies() {
		return outcomeOK, nil
	}

	reply, err := encodeResult(d, result)
	if err != nil {
		return outcomeFault, asFault(d, err)
	}
	s.send(ctx, client, reply)
	return outcomeOK, nil
}

// validatePayload runs the input schema. Without one the raw payload is
// passed through, nil when absent.
func validatePayload(d wsrouter.Descriptor, raw json.RawMessage) (any, error) {
	if d.Input == nil {
		if len(raw) == 0 {
			return nil, nil
		}
		return raw, nil
	}
	return d.Input.Validate(raw)
}

// invoke calls the handler, turning a panic into an internal fault.
func invoke(ctx context.Context, d wsrouter.Descriptor, call *wsrouter.Call) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %s panicked: %v", wsrouter.ErrInternalFault, d.Key(), r)
		}
	}()
	return d.Handler(ctx, call)
}

// encodeResult builds the outbound envelope of an operation result.
func encodeResult(d wsrouter.Descriptor, result any) ([]byte, error) {
	if d.Output == wsrouter.NoPayload {
		result = nil
	}
	return protocol.Encode(d.ReplyType(), result)
}

func asFault(d wsrouter.Descriptor, err error) error {
	if errors.Is(err, wsrouter.ErrInternalFault) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", wsrouter.ErrInternalFault, d.Key(), err)
}

func (s *Server) sendError(ctx context.Context, client *Client, typ, code, detail string) error {
	data, err := protocol.EncodeError(typ, code, detail)
	if err != nil {
		return fmt.Errorf("%w: encode error envelope: %w", wsrouter.ErrInternalFault, err)
	}
	s.send(ctx, client, data)
	return nil
}

// send queues a frame for the client. A closed client is not a dispatch
// failure: the next receive observes the disconnect.
func (s *Server) send(ctx context.Context, client *Client, data []byte) {
	if err := client.SendRaw(ctx, data); err != nil {
		s.logger.Debug(fmt.Sprintf("%s - drop reply client_id=%s: %v", logPrefix, client.ID(), err))
	}
}
