package graph

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/candlecorp/wick/packet"
)

// Schematic is one named, directed graph of nodes and connections. It is
// immutable after Build returns.
type Schematic struct {
	ID    string
	Nodes []Node
	Conns []Connection

	// InherentIndex is the index of the synthetic inherent source node the
	// builder inserted for this schematic, or -1 if none was needed.
	InherentIndex int

	fanOutOnce sync.Once
	fanOut     *lru.Cache[packet.Ref, []Connection]
	fanOutAll  map[packet.Ref][]Connection
	incoming   map[packet.Ref]*Connection
}

// fanOutCacheSize bounds the LRU of computed fan-out tables. Schematics with
// more distinct Out-ports than this evict least-recently-used entries;
// lookups beyond capacity still work, they just recompute, trading memory
// for compute on the executor's hottest path (spec §4.4).
const fanOutCacheSize = 1024

func (s *Schematic) ensureIndexed() {
	s.fanOutOnce.Do(func() {
		s.fanOutAll = make(map[packet.Ref][]Connection, len(s.Conns))
		s.incoming = make(map[packet.Ref]*Connection, len(s.Conns))
		for i := range s.Conns {
			var c = &s.Conns[i]
			s.fanOutAll[c.From] = append(s.fanOutAll[c.From], *c)
			s.incoming[c.To] = c
		}
		s.fanOut, _ = lru.New[packet.Ref, []Connection](fanOutCacheSize)
	})
}

// FanOut returns every connection leading out of the given Out-port ref, in
// declaration order. This is the lookup the executor performs on every
// emitted packet (spec §4.4 "Fan-out on outgoing packets"); it is cached in
// a bounded LRU since the same Out-port is looked up once per emitted
// packet for the life of a transaction.
func (s *Schematic) FanOut(from packet.Ref) []Connection {
	s.ensureIndexed()
	if cached, ok := s.fanOut.Get(from); ok {
		return cached
	}
	var conns = s.fanOutAll[from]
	s.fanOut.Add(from, conns)
	return conns
}

// Incoming returns the single connection feeding the given In-port ref, if
// any. Every In-port has at most one inbound connection (spec Invariant 2).
func (s *Schematic) Incoming(to packet.Ref) (Connection, bool) {
	s.ensureIndexed()
	var c, ok = s.incoming[to]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// Node returns the node at the given index.
func (s *Schematic) Node(index int) *Node { return &s.Nodes[index] }

// NodeByID returns the node with the given human id, or ok=false.
func (s *Schematic) NodeByID(id string) (*Node, bool) {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i], true
		}
	}
	return nil, false
}

// Graph is a network of named schematics, immutable after construction and
// held by the interpreter by shared reference (spec §3).
type Graph struct {
	Schematics map[string]*Schematic
}

// Schematic returns the named schematic, or ok=false.
func (g *Graph) Schematic(name string) (*Schematic, bool) {
	s, ok := g.Schematics[name]
	return s, ok
}
