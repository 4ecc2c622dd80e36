package component

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/candlecorp/wick/packet"
)

// Merge is the core::merge built-in (spec §4.3). Its formal input ports
// are not fixed by the operation: they are whatever the node instance
// declares (spec §4.2 Design Note, "Dynamic port sets"). Each activation
// receives exactly one packet per configured input (the executor's
// readiness rule guarantees this); Merge fuses them into one JSON object
// keyed by port name and emits it once. If any input in the tuple is a
// closed-without-data marker, Merge closes its output instead of
// emitting, per "DONE when any input closes".
type Merge struct{}

func (m *Merge) InputNames() []string  { return nil }
func (m *Merge) OutputNames() []string { return []string{"output"} }
func (m *Merge) DynamicPorts() bool    { return true }

func (m *Merge) Handle(_ context.Context, _ Invocation, in Frame, _ json.RawMessage) (<-chan packet.Packet, error) {
	var out = make(chan packet.Packet, 2)

	for _, p := range in {
		if p.IsDone() && !p.Payload.IsError() && len(p.Payload.Data) == 0 {
			out <- packet.NewDone("output")
			close(out)
			return out, nil
		}
	}

	var fused = make(map[string]json.RawMessage, len(in))
	for _, p := range in {
		if p.Payload.IsError() {
			out <- packet.NewError("output", fmt.Sprintf("input %q: %s", p.PortName, p.Payload.Err.Message))
			close(out)
			return out, nil
		}
		if len(p.Payload.Data) == 0 {
			fused[p.PortName] = json.RawMessage("null")
		} else {
			fused[p.PortName] = json.RawMessage(p.Payload.Data)
		}
	}

	data, err := json.Marshal(fused)
	if err != nil {
		return nil, fmt.Errorf("core::merge: fusing tuple: %w", err)
	}

	out <- packet.New("output", data, "application/json")
	close(out)
	return out, nil
}
