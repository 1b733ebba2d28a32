package wsrouter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema validates an operation payload and describes it for documentation.
type Schema interface {
	// Validate turns a raw JSON payload into the typed value handed to the
	// handler, or fails with an error wrapping ErrPayloadValidation.
	Validate(raw json.RawMessage) (any, error)

	// JSONSchema describes the payload. It may return nil.
	JSONSchema() *jsonschema.Schema
}

// Validator is implemented by payload types with rules beyond their JSON shape.
type Validator interface {
	Validate() error
}

// NoPayload is the output schema of operations that reply with a bare
// {type} envelope.
var NoPayload Schema = noPayload{}

type noPayload struct{}

func (noPayload) Validate(json.RawMessage) (any, error) { return nil, nil }

func (noPayload) JSONSchema() *jsonschema.Schema { return nil }

// SchemaOf returns a Schema that decodes payloads into T.
//
// Unknown fields are ignored. A missing or null payload is a validation
// error. If T or *T implements Validator, its Validate method runs after
// decoding.
func SchemaOf[T any]() Schema {
	return typedSchema[T]{}
}

type typedSchema[T any] struct{}

func (typedSchema[T]) Validate(raw json.RawMessage) (any, error) {
	var out T
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return out, fmt.Errorf("%w: payload is required", ErrPayloadValidation)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrPayloadValidation, err)
	}
	v, ok := any(out).(Validator)
	if !ok {
		v, ok = any(&out).(Validator)
	}
	if ok {
		if err := v.Validate(); err != nil {
			return out, fmt.Errorf("%w: %v", ErrPayloadValidation, err)
		}
	}
	return out, nil
}

func (typedSchema[T]) JSONSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true, Anonymous: true}
	s := r.Reflect(new(T))
	s.Version = ""
	return s
}
