package component

import (
	"context"
	"encoding/json"

	"github.com/candlecorp/wick/packet"
)

type inherentPayload struct {
	Seed      uint64 `json:"seed"`
	Timestamp uint64 `json:"timestamp"`
}

// InherentSource is the inherent built-in (spec §4.3): emits a single
// packet carrying {seed, timestamp} drawn from the invocation. The graph
// builder normally wires this in automatically as a synthetic per-
// schematic source node (graph.Kind Inherent), which the executor handles
// directly rather than dispatching through the registry; this entry
// exists so the same semantics are reachable by explicit reference (e.g.
// from a test, or a self sub-schematic that wants inherent data without a
// builder-inserted node).
type InherentSource struct{}

func (s *InherentSource) InputNames() []string  { return nil }
func (s *InherentSource) OutputNames() []string { return []string{"inherent"} }
func (s *InherentSource) DynamicPorts() bool    { return false }

func (s *InherentSource) Handle(_ context.Context, inv Invocation, _ Frame, _ json.RawMessage) (<-chan packet.Packet, error) {
	data, err := json.Marshal(inherentPayload{Seed: inv.Inherent.Seed, Timestamp: inv.Inherent.Timestamp})
	if err != nil {
		return nil, err
	}
	var out = make(chan packet.Packet, 2)
	out <- packet.New("inherent", data, "application/json")
	out <- packet.NewDone("inherent")
	close(out)
	return out, nil
}
