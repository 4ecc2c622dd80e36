package component

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/candlecorp/wick/graph"
)

// ErrComponentNotRegistered is the sentinel beneath every "no handler for
// this component" error Handler returns, so a caller can classify the
// failure with errors.Cause instead of parsing the message (cf.
// estuary-flow's go/shuffle/ring.go errors.Cause(err) ==
// client.ErrOffsetNotYetAvailable check).
var ErrComponentNotRegistered = errors.New("component not registered")

// Registry is the flat namespace → handler map of spec §4.3. It always
// includes the three fixed built-ins plus whatever namespaces are
// registered by the embedder (WASM loader, native components, RPC stubs,
// all external collaborators per spec §1).
type Registry struct {
	mu   sync.RWMutex
	ops  map[graph.ComponentRef]Operation
	self SelfInvoker
}

// NewRegistry returns a Registry pre-populated with the core:: built-ins
// and "inherent". The self namespace is installed separately via
// RegisterSelf once an interpreter exists to forward into (spec §9's
// back-reference-without-cycles note).
func NewRegistry() *Registry {
	var r = &Registry{ops: make(map[graph.ComponentRef]Operation)}
	r.Register(graph.ComponentRef{Namespace: "core", Operation: "sender"}, &Sender{})
	r.Register(graph.ComponentRef{Namespace: "core", Operation: "merge"}, &Merge{})
	r.Register(graph.ComponentRef{Namespace: "inherent", Operation: "data"}, &InherentSource{})
	return r
}

// Register installs one operation under a namespace. Re-registering the
// same ref replaces the prior handler, which is how tests and embedders
// override built-ins.
func (r *Registry) Register(ref graph.ComponentRef, op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[ref] = op
}

// Resolve implements graph.Resolver.
func (r *Registry) Resolve(ref graph.ComponentRef) (graph.Signature, bool) {
	if ref.Namespace == "self" {
		return r.resolveSelf(ref.Operation)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[ref]
	return op, ok
}

// Handler returns the registered Handler for ref, or an error if none is
// registered. This is the executor's lookup on every Invocation event
// (spec §4.4); a missing handler here indicates the graph was built
// against a different registry than it is now being run with.
func (r *Registry) Handler(ref graph.ComponentRef) (Handler, error) {
	if ref.Namespace == "self" {
		op, ok := r.resolveSelf(ref.Operation)
		if !ok {
			return nil, errors.Wrapf(ErrComponentNotRegistered, "self schematic %q", ref.Operation)
		}
		return op, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[ref]
	if !ok {
		return nil, errors.Wrapf(ErrComponentNotRegistered, "component %s", ref)
	}
	return op, nil
}
