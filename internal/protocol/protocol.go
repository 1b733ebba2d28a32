package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	maxPayloadSize = 10 * 1024 * 1024 // 10MB max envelope size
)

// ErrMalformedEnvelope is returned for data that is not a {type, payload} object.
var ErrMalformedEnvelope = errors.New("malformed envelope")

var null = []byte("null")

// Envelope is the wire unit exchanged in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is the payload of error envelopes.
type ErrorPayload struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type wireEnvelope struct {
	Type    *string         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses an envelope. A null payload is treated as absent.
// The payload slice references the input data - do not modify it.
func Decode(data []byte) (Envelope, error) {
	if len(data) > maxPayloadSize {
		return Envelope{}, fmt.Errorf("%w: size %d exceeds maximum %d bytes", ErrMalformedEnvelope, len(data), maxPayloadSize)
	}

	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if w.Type == nil {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	if *w.Type == "" {
		return Envelope{}, fmt.Errorf("%w: empty type", ErrMalformedEnvelope)
	}

	env := Envelope{Type: *w.Type, Payload: w.Payload}
	if bytes.Equal(bytes.TrimSpace(env.Payload), null) {
		env.Payload = nil
	}
	return env, nil
}

// Encode encodes {type, payload}. A nil payload is omitted. Raw JSON
// payloads ([]byte or json.RawMessage) are embedded as is.
func Encode(typ string, payload any) ([]byte, error) {
	raw, err := RawPayload(payload)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(raw, null) {
		raw = nil
	}

	out, err := json.Marshal(Envelope{Type: typ, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("encode envelope %q: %w", typ, err)
	}
	if len(out) > maxPayloadSize {
		return nil, fmt.Errorf("envelope size %d exceeds maximum %d bytes", len(out), maxPayloadSize)
	}
	return out, nil
}

// EncodeError encodes an error envelope.
func EncodeError(typ, code, detail string) ([]byte, error) {
	return Encode(typ, ErrorPayload{Code: code, Detail: detail})
}

// RawPayload converts a payload value to raw JSON. nil stays nil.
func RawPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(p) > 0 && !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return p, nil
	case []byte:
		if len(p) > 0 && !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return json.RawMessage(p), nil
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return raw, nil
	}
}
