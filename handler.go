package wsrouter

import (
	"context"
)

// Handler runs one operation. For send operations call.Conn is the
// originating connection; for recv operations it is nil.
type Handler func(ctx context.Context, call *Call) (any, error)

// Call is the context of a single handler invocation.
type Call struct {
	// Conn is the originating connection of a send operation.
	Conn Conn
	// App is the application handle.
	App App
	// Type is the message type as received or pushed.
	Type string
	// Payload is the validated payload when the operation declares an input
	// schema, otherwise the raw json.RawMessage (nil when absent).
	Payload any
}

// Operation bundles a handler with its input and output schemas.
// Build one with Op, Notify, Reply or Action.
type Operation struct {
	Handler Handler
	Input   Schema
	Output  Schema
}

// Op builds an operation that takes an In payload and replies with Out.
func Op[In, Out any](fn func(ctx context.Context, call *Call, in In) (Out, error)) Operation {
	return Operation{
		Handler: func(ctx context.Context, call *Call) (any, error) {
			in, _ := call.Payload.(In)
			return fn(ctx, call, in)
		},
		Input:  SchemaOf[In](),
		Output: SchemaOf[Out](),
	}
}

// Notify builds an operation that takes an In payload and sends no reply.
func Notify[In any](fn func(ctx context.Context, call *Call, in In) error) Operation {
	return Operation{
		Handler: func(ctx context.Context, call *Call) (any, error) {
			in, _ := call.Payload.(In)
			return nil, fn(ctx, call, in)
		},
		Input: SchemaOf[In](),
	}
}

// Reply builds an operation without payload that replies with Out.
func Reply[Out any](fn func(ctx context.Context, call *Call) (Out, error)) Operation {
	return Operation{
		Handler: func(ctx context.Context, call *Call) (any, error) {
			return fn(ctx, call)
		},
		Output: SchemaOf[Out](),
	}
}

// Action builds an operation without payload and without reply. Combine it
// with WithReply to answer with a bare {type} envelope.
func Action(fn func(ctx context.Context, call *Call) error) Operation {
	return Operation{
		Handler: func(ctx context.Context, call *Call) (any, error) {
			return nil, fn(ctx, call)
		},
	}
}

// Option sets descriptor metadata at registration.
type Option func(*Descriptor)

// WithReply sets the type replies are sent under. Without an output schema
// the reply is a bare {type} envelope.
func WithReply(typ string) Option {
	return func(d *Descriptor) {
		d.Reply = typ
	}
}

// WithName overrides the operation name used in documentation.
func WithName(name string) Option {
	return func(d *Descriptor) {
		d.Name = name
	}
}

// WithSummary sets the documentation summary.
func WithSummary(summary string) Option {
	return func(d *Descriptor) {
		d.Summary = summary
	}
}

// WithDescription sets the documentation description.
func WithDescription(description string) Option {
	return func(d *Descriptor) {
		d.Description = description
	}
}

// WithTags appends documentation tags.
func WithTags(tags ...string) Option {
	return func(d *Descriptor) {
		d.Tags = append(d.Tags, tags...)
	}
}
