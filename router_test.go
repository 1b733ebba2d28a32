package wsrouter

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestRouterInclude(t *testing.T) {
	t.Parallel()

	subs := NewRouter("feature_0.", "subscriptions")
	if err := subs.Send("subscribe", Action(func(context.Context, *Call) error { return nil }),
		WithReply("subscribe.response"), WithTags("write")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	reg := NewRegistry()
	if err := reg.Include(subs, ""); err != nil {
		t.Fatalf("Include() error = %v", err)
	}

	d, err := reg.Resolve(DirectionSend, "feature_0.subscribe")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if d.ReplyType() != "feature_0.subscribe.response" {
		t.Errorf("ReplyType() = %q", d.ReplyType())
	}

	if !slices.Equal(d.Tags, []string{"subscriptions", "write"}) {
		t.Errorf("Tags = %v, want [subscriptions write]", d.Tags)
	}

	if d.Output != NoPayload {
		t.Errorf("Output = %v, want NoPayload for a reply without schema", d.Output)
	}
}

func TestRouterNested(t *testing.T) {
	t.Parallel()

	inner := NewRouter("inner.", "inner")
	_ = inner.Recv("alert", Action(func(context.Context, *Call) error { return nil }))

	outer := NewRouter("outer.", "outer")
	if err := outer.Include(inner, "v1."); err != nil {
		t.Fatalf("Include() error = %v", err)
	}

	reg := NewRegistry()
	if err := reg.Include(outer, "api."); err != nil {
		t.Fatalf("Include() error = %v", err)
	}

	d, err := reg.Resolve(DirectionRecv, "api.outer.v1.inner.alert")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if !slices.Equal(d.Tags, []string{"outer", "inner"}) {
		t.Errorf("Tags = %v, want [outer inner]", d.Tags)
	}
}

func TestRouterIncludeCollision(t *testing.T) {
	t.Parallel()

	a := NewRouter("feature.")
	_ = a.Send("ping", Action(func(context.Context, *Call) error { return nil }))

	b := NewRouter("feature.")
	_ = b.Send("ping", Action(func(context.Context, *Call) error { return nil }))

	reg := NewRegistry()
	if err := reg.Include(a, ""); err != nil {
		t.Fatalf("Include(a) error = %v", err)
	}

	if err := reg.Include(b, ""); !errors.Is(err, ErrDuplicateOperation) {
		t.Errorf("Include(b) error = %v, want ErrDuplicateOperation", err)
	}

	if err := reg.Include(b, "other."); err != nil {
		t.Errorf("Include(b, other.) error = %v", err)
	}
}

func TestRouterDuplicate(t *testing.T) {
	t.Parallel()

	rt := NewRouter("x.")
	_ = rt.Send("ping", Action(func(context.Context, *Call) error { return nil }))

	if err := rt.Send("ping", Action(func(context.Context, *Call) error { return nil })); !errors.Is(err, ErrDuplicateOperation) {
		t.Errorf("Send() error = %v, want ErrDuplicateOperation", err)
	}

	if rt.Prefix() != "x." {
		t.Errorf("Prefix() = %q", rt.Prefix())
	}

	if len(rt.List()) != 1 || rt.List()[0].Type != "ping" {
		t.Errorf("List() = %+v", rt.List())
	}
}
