package component

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/candlecorp/wick/graph"
	"github.com/candlecorp/wick/packet"
)

// SelfInvoker is the narrow slice of the interpreter that the self
// namespace needs: enough to look up a sub-schematic's outer port names
// for build-time validation, and enough to run it for one activation. The
// interpreter implements this; component never imports interpreter,
// keeping the dependency one-directional the way spec §9 describes for
// the registry/interpreter back-reference ("a function pointer closure
// over the interpreter's shared handle").
type SelfInvoker interface {
	SchematicPorts(schematic string) (inputs, outputs []string, ok bool)
	Invoke(ctx context.Context, schematic string, inv Invocation, in <-chan packet.Packet) (<-chan packet.Packet, error)
}

// RegisterSelf installs the self pseudo-namespace, which forwards calls
// into the interpreter itself so sub-schematics of the same graph can be
// composed by reference without leaving the process (spec §4.3).
func (r *Registry) RegisterSelf(invoker SelfInvoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.self = invoker
}

func (r *Registry) resolveSelf(operation string) (Operation, bool) {
	r.mu.RLock()
	var invoker = r.self
	r.mu.RUnlock()

	if invoker == nil {
		return nil, false
	}
	inputs, outputs, ok := invoker.SchematicPorts(operation)
	if !ok {
		return nil, false
	}
	return &selfOperation{schematic: operation, invoker: invoker, sig: fixedSignature{inputs: inputs, outputs: outputs}}, true
}

type selfOperation struct {
	schematic string
	invoker   SelfInvoker
	sig       fixedSignature
}

func (s *selfOperation) InputNames() []string  { return s.sig.InputNames() }
func (s *selfOperation) OutputNames() []string { return s.sig.OutputNames() }
func (s *selfOperation) DynamicPorts() bool    { return false }

// Handle treats one activation's Frame as the complete input of a
// one-shot sub-transaction: every packet in the tuple is fed to the
// sub-schematic's corresponding outer input port, immediately followed by
// Done on each, and the sub-transaction's full output stream becomes this
// activation's output.
func (s *selfOperation) Handle(ctx context.Context, inv Invocation, in Frame, config json.RawMessage) (<-chan packet.Packet, error) {
	var feed = make(chan packet.Packet, len(in)+len(s.sig.inputs))
	var fed = make(map[string]bool, len(in))
	for _, p := range in {
		feed <- p
		fed[p.PortName] = true
		if !p.IsDone() {
			feed <- packet.NewDone(p.PortName)
		}
	}
	for _, name := range s.sig.inputs {
		if !fed[name] {
			feed <- packet.NewDone(name)
		}
	}
	close(feed)

	out, err := s.invoker.Invoke(ctx, s.schematic, inv, feed)
	if err != nil {
		return nil, fmt.Errorf("self::%s: %w", s.schematic, err)
	}
	return s.translate(out), nil
}

// translate rewrites the sub-transaction's raw external output stream into
// this activation's output. The sub always terminates its own stream with
// a DONE on packet.SystemPort (and, if it aborted, an error on
// packet.SystemPort first); neither is a port this node declares, so
// forwarding them unchanged would reach the parent executor's fanOutFrom
// as a packet emitted on an undeclared output and abort the parent
// transaction. The SystemPort DONE is simply dropped; a SystemPort error
// means the sub aborted mid-flight, so it is surfaced as an error on every
// declared output this activation hasn't already closed, each followed by
// its own Done, the same shape the parent's own handler-failure path uses.
func (s *selfOperation) translate(out <-chan packet.Packet) <-chan packet.Packet {
	var translated = make(chan packet.Packet)
	go func() {
		defer close(translated)
		var closed = make(map[string]bool, len(s.sig.outputs))
		for p := range out {
			if p.PortName == packet.SystemPort {
				if p.Payload.IsError() {
					for _, name := range s.sig.outputs {
						if closed[name] {
							continue
						}
						translated <- packet.NewError(name, p.Payload.Err.Message)
						translated <- packet.NewDone(name)
						closed[name] = true
					}
				}
				continue
			}
			if p.IsDone() {
				closed[p.PortName] = true
			}
			translated <- p
		}
	}()
	return translated
}

var _ graph.Signature = (*selfOperation)(nil)
