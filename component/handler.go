// Package component implements the handler registry (spec §4.3): the
// namespaced map of component implementations the transaction executor
// invokes, including the core:: built-ins and the self-referential
// sub-schematic namespace.
package component

import (
	"context"
	"encoding/json"
	"math/rand"

	"github.com/google/uuid"

	"github.com/candlecorp/wick/graph"
	"github.com/candlecorp/wick/packet"
)

// InherentData is the per-transaction seed and timestamp available to
// every node via the synthetic inherent source (spec §3, §4.3). The seed
// doubles as a deterministic PRNG seed (SPEC_FULL §4, grounded on the
// original's seeded-random crate) so handlers that want reproducible
// randomness don't have to invent their own seeding convention.
type InherentData struct {
	Seed      uint64
	Timestamp uint64 // milliseconds since epoch
}

// Rand returns a PRNG deterministically derived from this invocation's
// seed. Two invocations sharing a seed produce identical sequences.
func (d InherentData) Rand() *rand.Rand {
	return rand.New(rand.NewSource(int64(d.Seed)))
}

// Invocation carries everything a handler needs to know about the call
// that is asking it to run one activation (spec §6's "handler contract").
type Invocation struct {
	Transaction uuid.UUID
	Target      graph.ComponentRef
	Inherent    InherentData
	// Span is an opaque parent tracing span, passed through unexamined.
	// Tracing infrastructure itself is out of scope (spec §1); this field
	// only exists so a caller that already has a tracer can thread a span
	// through without the interpreter knowing anything about it.
	Span any
}

// Frame is the packet tuple handed to one handler activation: at most one
// packet per input port name the node declares, per the executor's
// readiness rule (spec §4.4). A port that closed without ever delivering
// data is represented here by a synthetic Done packet on that port name.
type Frame []packet.Packet

// ByPort returns the packet addressed to the named port, if present in
// this activation.
func (f Frame) ByPort(name string) (packet.Packet, bool) {
	for _, p := range f {
		if p.PortName == name {
			return p, true
		}
	}
	return packet.Packet{}, false
}

// Handler is the uniform contract every component implementation exposes
// (spec §4.3, §6). One activation corresponds to one ready input tuple;
// the executor spawns a fresh activation per tuple and never invokes the
// same node concurrently (its pending flag is the exclusion, spec
// Invariant 4). Handle returns a channel of zero or more output packets
// for this activation; the handler closes it when the activation's work
// is done. A Handler MUST NOT block indefinitely without observing ctx.
type Handler interface {
	// Handle runs one activation. config is the node's inline
	// configuration, already merged with any invocation-level runtime
	// config override (SPEC_FULL §2).
	Handle(ctx context.Context, inv Invocation, in Frame, config json.RawMessage) (<-chan packet.Packet, error)
}

// Operation pairs a Handler with the port signature the graph builder
// validates nodes against (graph.Signature). Every registry entry is one
// Operation.
type Operation interface {
	graph.Signature
	Handler
}

// fixedSignature is embedded by built-ins with a static port list.
type fixedSignature struct {
	inputs, outputs []string
}

func (s fixedSignature) InputNames() []string  { return s.inputs }
func (s fixedSignature) OutputNames() []string { return s.outputs }
func (s fixedSignature) DynamicPorts() bool     { return false }
