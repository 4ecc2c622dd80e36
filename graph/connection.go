package graph

import (
	"encoding/json"

	"github.com/candlecorp/wick/packet"
)

// Connection is a directed edge from an Out-port to an In-port. Every
// In-port has at most one inbound Connection; an Out-port may feed any
// number of Connections (spec §3).
type Connection struct {
	From packet.Ref // Direction == Out
	To   packet.Ref // Direction == In

	// Default is optional literal or expression data copied from the
	// edge's ConnectionConfig. The builder stores it on the edge; the
	// executor does not read it, so nothing is delivered to the consumer
	// in its place when the edge's producer never emits.
	Default json.RawMessage
}
