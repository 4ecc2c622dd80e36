package graph

import "encoding/json"

// Kind distinguishes the four node kinds a schematic graph can contain.
type Kind uint8

const (
	// SchematicInput is the synthetic source of a schematic's outer inputs.
	SchematicInput Kind = iota
	// SchematicOutput is the synthetic sink of a schematic's outer outputs.
	SchematicOutput
	// Inherent emits the invocation's seed/timestamp. The builder inserts
	// at most one per schematic, only when some node sets UsesInherent; it
	// is never declared explicitly.
	Inherent
	// External is any node backed by a registered component operation,
	// including the core:: built-ins and the self namespace.
	External
)

func (k Kind) String() string {
	switch k {
	case SchematicInput:
		return "schematic_input"
	case SchematicOutput:
		return "schematic_output"
	case Inherent:
		return "inherent"
	case External:
		return "external"
	default:
		return "unknown"
	}
}

// ComponentRef names one operation within one namespace of the handler
// registry, e.g. (namespace: "core", operation: "sender").
type ComponentRef struct {
	Namespace string
	Operation string
}

func (c ComponentRef) String() string { return c.Namespace + "::" + c.Operation }

// Port is a named, directed endpoint of a node. Its Index is assigned at
// build time in declaration order and never changes.
type Port struct {
	Name  string
	Index int
}

// Node is one vertex of a schematic graph.
type Node struct {
	Index     int
	ID        string
	Kind      Kind
	Component ComponentRef
	// Config is the node's opaque, pre-resolved inline configuration. The
	// interpreter never interprets it; it is forwarded to the handler,
	// optionally merged with invocation-supplied runtime config first
	// (SPEC_FULL §2, "Configuration").
	Config json.RawMessage

	Inputs  []Port
	Outputs []Port
}

// InputByName returns the named input port, or ok=false.
func (n *Node) InputByName(name string) (Port, bool) {
	for _, p := range n.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// InputNameAt returns the name of the input port at the given Index. Port
// indices are assigned sequentially at build time, so this is an O(n)
// safety-checked lookup rather than a direct slice index.
func (n *Node) InputNameAt(index int) (string, bool) {
	for _, p := range n.Inputs {
		if p.Index == index {
			return p.Name, true
		}
	}
	return "", false
}

func (n *Node) OutputByName(name string) (Port, bool) {
	for _, p := range n.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// IsMergeLike reports whether this node's formal input ports are
// determined per-instance (core::merge) rather than by its operation's
// fixed signature. Such nodes are validated per instance at build time
// (SPEC_FULL / spec §4.3, §4.2, Design Note on "Dynamic port sets").
func (n *Node) IsMergeLike() bool {
	return n.Component.Namespace == "core" && n.Component.Operation == "merge"
}
