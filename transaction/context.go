package transaction

import (
	"github.com/candlecorp/wick/graph"
	"github.com/candlecorp/wick/packet"
)

// nodeContext is the per-transaction instantiation of one graph node: its
// input port buffers, its output port statuses, a completion flag, and a
// pending-invocation flag preventing re-entry (spec §3, Invariant 4).
// Exactly one transaction goroutine, the executor loop, ever touches a
// nodeContext, so it carries no locks.
type nodeContext struct {
	node *graph.Node

	inputs  map[int]*packet.Buffer
	outputs map[int]packet.Status

	pending  bool
	finished bool // no further activation will ever be spawned for this node
}

func newNodeContext(n *graph.Node) *nodeContext {
	var c = &nodeContext{
		node:    n,
		inputs:  make(map[int]*packet.Buffer, len(n.Inputs)),
		outputs: make(map[int]packet.Status, len(n.Outputs)),
	}
	for _, p := range n.Inputs {
		c.inputs[p.Index] = packet.NewBuffer()
	}
	for _, p := range n.Outputs {
		c.outputs[p.Index] = packet.Open
	}
	return c
}

// allPortsDone reports whether every input buffer and every output status
// of this node has reached DoneClosed, the per-node half of spec §4.4's
// completion condition.
func (c *nodeContext) allPortsDone() bool {
	for _, b := range c.inputs {
		if b.Status() != packet.DoneClosed {
			return false
		}
	}
	for _, s := range c.outputs {
		if s != packet.DoneClosed {
			return false
		}
	}
	return true
}

func (c *nodeContext) closeAllOutputs() {
	for idx := range c.outputs {
		c.outputs[idx] = packet.DoneClosed
	}
}
