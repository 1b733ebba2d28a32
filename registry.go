package wsrouter

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Direction tells who sends the message an operation handles.
type Direction int

const (
	// DirectionSend operations handle messages sent by clients.
	DirectionSend Direction = iota + 1
	// DirectionRecv operations produce messages received by clients.
	DirectionRecv
)

func (d Direction) String() string {
	switch d {
	case DirectionSend:
		return "send"
	case DirectionRecv:
		return "recv"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Key identifies an operation. It is unique per registry.
type Key struct {
	Direction Direction
	Type      string
}

func (k Key) String() string {
	return k.Direction.String() + ":" + k.Type
}

// Descriptor describes a registered operation. Descriptors are copied on
// registration and on resolve; mutating a returned value has no effect on
// the registry.
type Descriptor struct {
	Direction   Direction
	Type        string
	Reply       string
	Name        string
	Summary     string
	Description string
	Tags        []string
	// Input is nil when the operation expects no payload.
	Input Schema
	// Output is nil when the operation sends no reply.
	Output  Schema
	Handler Handler
}

// Key returns the registry key of the descriptor.
func (d Descriptor) Key() Key {
	return Key{Direction: d.Direction, Type: d.Type}
}

// ReplyType returns the type replies are sent under.
func (d Descriptor) ReplyType() string {
	if d.Reply != "" {
		return d.Reply
	}
	return d.Type
}

// Replies reports whether the operation produces an outbound message.
func (d Descriptor) Replies() bool {
	return d.Output != nil
}

func (d Descriptor) clone() Descriptor {
	d.Tags = slices.Clone(d.Tags)
	return d
}

func (d Descriptor) prefixed(prefix string) Descriptor {
	d = d.clone()
	d.Type = prefix + d.Type
	if d.Reply != "" {
		d.Reply = prefix + d.Reply
	}
	return d
}

// Registry maps operation keys to descriptors, preserving insertion order.
//
// Registration happens while the application is built. Once finalized the
// registry is read only, so Resolve needs no locking.
type Registry struct {
	mu        sync.Mutex
	index     map[Key]int
	ops       []Descriptor
	finalized atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[Key]int)}
}

// Register adds a descriptor. It fails with ErrDuplicateOperation when the
// key is taken and with ErrRegistryFinalized after Finalize.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkWritable(); err != nil {
		return err
	}
	d, err := normalize(d)
	if err != nil {
		return err
	}
	if _, ok := r.index[d.Key()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, d.Key())
	}
	r.insert(d)
	return nil
}

// Send registers a client-to-server operation.
func (r *Registry) Send(typ string, op Operation, opts ...Option) error {
	return r.Register(build(DirectionSend, typ, op, opts))
}

// Recv registers a server-to-client operation used by server push.
func (r *Registry) Recv(typ string, op Operation, opts ...Option) error {
	return r.Register(build(DirectionRecv, typ, op, opts))
}

// Merge registers every operation of child with prefix prepended to its
// type and reply type. Nothing is registered if any resulting key collides.
func (r *Registry) Merge(child *Registry, prefix string) error {
	ops := child.List()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkWritable(); err != nil {
		return err
	}
	seen := make(map[Key]struct{}, len(ops))
	merged := make([]Descriptor, 0, len(ops))
	for _, d := range ops {
		d = d.prefixed(prefix)
		if _, ok := r.index[d.Key()]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateOperation, d.Key())
		}
		if _, ok := seen[d.Key()]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateOperation, d.Key())
		}
		seen[d.Key()] = struct{}{}
		merged = append(merged, d)
	}
	for _, d := range merged {
		r.insert(d)
	}
	return nil
}

// Include merges a router, prepending prefix and the router prefix.
func (r *Registry) Include(rt *Router, prefix string) error {
	return r.Merge(rt.reg, prefix+rt.prefix)
}

// Resolve returns the descriptor registered for (dir, typ) or fails with
// ErrUnknownOperation.
func (r *Registry) Resolve(dir Direction, typ string) (Descriptor, error) {
	if !r.finalized.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	i, ok := r.index[Key{Direction: dir, Type: typ}]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s:%s", ErrUnknownOperation, dir, typ)
	}
	return r.ops[i].clone(), nil
}

// List returns every descriptor in registration order.
func (r *Registry) List() []Descriptor {
	if !r.finalized.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	out := make([]Descriptor, len(r.ops))
	for i, d := range r.ops {
		out[i] = d.clone()
	}
	return out
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	if !r.finalized.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	return len(r.ops)
}

// Finalize makes the registry read only. It is idempotent.
func (r *Registry) Finalize() {
	r.mu.Lock()
	r.finalized.Store(true)
	r.mu.Unlock()
}

// Finalized reports whether Finalize was called.
func (r *Registry) Finalized() bool {
	return r.finalized.Load()
}

func (r *Registry) checkWritable() error {
	if r.finalized.Load() {
		return ErrRegistryFinalized
	}
	return nil
}

func (r *Registry) insert(d Descriptor) {
	r.index[d.Key()] = len(r.ops)
	r.ops = append(r.ops, d)
}

func build(dir Direction, typ string, op Operation, opts []Option) Descriptor {
	d := Descriptor{
		Direction: dir,
		Type:      typ,
		Input:     op.Input,
		Output:    op.Output,
		Handler:   op.Handler,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func normalize(d Descriptor) (Descriptor, error) {
	if d.Direction != DirectionSend && d.Direction != DirectionRecv {
		return d, fmt.Errorf("%w: bad direction %s", ErrInvalidOperation, d.Direction)
	}
	if d.Type == "" {
		return d, fmt.Errorf("%w: empty type", ErrInvalidOperation)
	}
	if d.Type == TypeError {
		return d, fmt.Errorf("%w: type %q is reserved", ErrInvalidOperation, TypeError)
	}
	if d.Handler == nil {
		return d, fmt.Errorf("%w: %s has no handler", ErrInvalidOperation, d.Key())
	}
	if d.Name == "" {
		d.Name = d.Type
	}
	if d.Reply != "" && d.Output == nil {
		d.Output = NoPayload
	}
	return d.clone(), nil
}
