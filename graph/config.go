package graph

import "encoding/json"

// Config is the pre-resolved configuration tree the graph builder accepts
// (spec §6): a set of named schematics, their nodes, and their
// connections. It is produced by an external collaborator (manifest
// loading is explicitly out of scope, spec §1); the interpreter only
// compiles it.
type Config struct {
	Schematics []SchematicConfig
}

// SchematicConfig describes one schematic before it is compiled into a
// Schematic.
type SchematicConfig struct {
	Name        string
	Nodes       []NodeConfig
	Connections []ConnectionConfig
}

// NodeConfig describes one graph vertex. KindName selects one of the three
// declarable node kinds from spec §3 (the fourth, inherent, is only ever
// inserted by the builder); for "external" nodes, Component must name a
// registered operation.
type NodeConfig struct {
	ID        string
	KindName  string // "schematic_input" | "schematic_output" | "external"
	Component ComponentRef

	// InputPorts/OutputPorts declare the port names this node instance
	// exposes. For ordinary external nodes these are cross-checked
	// against the operation's formal signature at build time. For a
	// dynamic-port operation (core::merge) they ARE the formal signature,
	// read from this instance's configuration rather than from the
	// operation itself (spec §4.2 Design Note, "Dynamic port sets").
	// For a schematic_input node, OutputPorts names the schematic's outer
	// inputs; for schematic_output, InputPorts names its outer outputs.
	InputPorts  []string
	OutputPorts []string

	// UsesInherent requests that the builder wire the schematic's
	// synthetic inherent source node to this node's "inherent" input,
	// adding that input port to the node if it does not declare one.
	UsesInherent bool

	Config json.RawMessage
}

// ConnectionConfig describes one directed edge before it is resolved to
// port indices.
type ConnectionConfig struct {
	FromNode string
	FromPort string
	ToNode   string
	ToPort   string
	Default  json.RawMessage
}
