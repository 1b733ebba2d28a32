package wsrouter

import "slices"

// Router groups operations under a common type prefix and default tags, to
// be included into a Registry or another Router.
//
//	feature := wsrouter.NewRouter("feature_0.", "subscriptions")
//	feature.Send("subscribe", wsrouter.Op(subscribe), wsrouter.WithReply("subscribe.response"))
//	registry.Include(feature, "")
//
// registers "feature_0.subscribe" replying as "feature_0.subscribe.response".
type Router struct {
	prefix string
	tags   []string
	reg    *Registry
}

// NewRouter creates a router. Its prefix is applied when it is included.
func NewRouter(prefix string, tags ...string) *Router {
	return &Router{prefix: prefix, tags: tags, reg: NewRegistry()}
}

// Prefix returns the router prefix.
func (rt *Router) Prefix() string {
	return rt.prefix
}

// Send registers a client-to-server operation on the router.
func (rt *Router) Send(typ string, op Operation, opts ...Option) error {
	return rt.reg.Register(rt.withTags(build(DirectionSend, typ, op, opts)))
}

// Recv registers a server-to-client operation on the router.
func (rt *Router) Recv(typ string, op Operation, opts ...Option) error {
	return rt.reg.Register(rt.withTags(build(DirectionRecv, typ, op, opts)))
}

// Include merges child into this router. Child operations get prefix and
// the child prefix prepended, and this router's tags in front of their own.
func (rt *Router) Include(child *Router, prefix string) error {
	sub := NewRegistry()
	for _, d := range child.reg.List() {
		if err := sub.Register(rt.withTags(d)); err != nil {
			return err
		}
	}
	return rt.reg.Merge(sub, prefix+child.prefix)
}

// List returns the router operations, without the router prefix applied.
func (rt *Router) List() []Descriptor {
	return rt.reg.List()
}

func (rt *Router) withTags(d Descriptor) Descriptor {
	if len(rt.tags) == 0 {
		return d
	}
	d.Tags = append(slices.Clone(rt.tags), d.Tags...)
	return d
}
