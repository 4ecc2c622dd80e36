package graph

import (
	"encoding/json"

	"github.com/candlecorp/wick/packet"
)

// Build compiles a Config into an immutable Graph, validating every
// referenced component against resolver. Build-time errors are fatal
// (spec §4.2, §7): the interpreter refuses to start on a Config that
// fails to build.
func Build(cfg Config, resolver Resolver) (*Graph, error) {
	var g = &Graph{Schematics: make(map[string]*Schematic, len(cfg.Schematics))}

	for _, sc := range cfg.Schematics {
		s, err := buildSchematic(sc, resolver)
		if err != nil {
			return nil, err
		}
		g.Schematics[sc.Name] = s
	}
	return g, nil
}

func buildSchematic(sc SchematicConfig, resolver Resolver) (*Schematic, error) {
	if sc.Name == "" {
		return nil, buildErr("", "", "schematic has no name")
	}

	var nodes []Node
	var byID = make(map[string]int, len(sc.Nodes))

	for _, nc := range sc.Nodes {
		if _, exists := byID[nc.ID]; exists {
			return nil, buildErr(sc.Name, nc.ID, "duplicate node id")
		}

		node, err := buildNode(sc.Name, nc, resolver)
		if err != nil {
			return nil, err
		}
		node.Index = len(nodes)
		byID[nc.ID] = node.Index
		nodes = append(nodes, node)
	}

	// Insert one synthetic inherent source node if any node requested it.
	var inherentIndex = -1
	for _, nc := range sc.Nodes {
		if nc.UsesInherent {
			inherentIndex = len(nodes)
			nodes = append(nodes, Node{
				Index:   inherentIndex,
				ID:      "inherent",
				Kind:    Inherent,
				Outputs: []Port{{Name: "inherent", Index: 0}},
			})
			break
		}
	}

	var conns []Connection

	// Wire the synthetic inherent node to every requesting node.
	if inherentIndex != -1 {
		for _, nc := range sc.Nodes {
			if !nc.UsesInherent {
				continue
			}
			var idx = byID[nc.ID]
			var node = &nodes[idx]
			var port, ok = node.InputByName("inherent")
			if !ok {
				port = Port{Name: "inherent", Index: len(node.Inputs)}
				node.Inputs = append(node.Inputs, port)
			}
			conns = append(conns, Connection{
				From: packet.Ref{SchematicID: sc.Name, NodeIndex: inherentIndex, PortIndex: 0, Direction: packet.Out},
				To:   packet.Ref{SchematicID: sc.Name, NodeIndex: idx, PortIndex: port.Index, Direction: packet.In},
			})
		}
	}

	for _, cc := range sc.Connections {
		fromIdx, ok := byID[cc.FromNode]
		if !ok {
			return nil, buildErr(sc.Name, cc.FromNode, "connection references unknown source node")
		}
		toIdx, ok := byID[cc.ToNode]
		if !ok {
			return nil, buildErr(sc.Name, cc.ToNode, "connection references unknown destination node")
		}

		fromPort, ok := nodes[fromIdx].OutputByName(cc.FromPort)
		if !ok {
			return nil, buildErr(sc.Name, cc.FromNode, "unknown output port %q", cc.FromPort)
		}
		toPort, ok := nodes[toIdx].InputByName(cc.ToPort)
		if !ok {
			return nil, buildErr(sc.Name, cc.ToNode, "unknown input port %q", cc.ToPort)
		}

		conns = append(conns, Connection{
			From: packet.Ref{SchematicID: sc.Name, NodeIndex: fromIdx, PortIndex: fromPort.Index, Direction: packet.Out},
			To:   packet.Ref{SchematicID: sc.Name, NodeIndex: toIdx, PortIndex: toPort.Index, Direction: packet.In},
			Default: cc.Default,
		})
	}

	if err := validateConnected(sc.Name, nodes, conns); err != nil {
		return nil, err
	}

	return &Schematic{
		ID:            sc.Name,
		Nodes:         nodes,
		Conns:         conns,
		InherentIndex: inherentIndex,
	}, nil
}

func buildNode(schematicName string, nc NodeConfig, resolver Resolver) (Node, error) {
	var node = Node{
		ID:     nc.ID,
		Config: nc.Config,
	}

	switch nc.KindName {
	case "schematic_input":
		node.Kind = SchematicInput
		for i, name := range nc.OutputPorts {
			node.Outputs = append(node.Outputs, Port{Name: name, Index: i})
		}
	case "schematic_output":
		node.Kind = SchematicOutput
		for i, name := range nc.InputPorts {
			node.Inputs = append(node.Inputs, Port{Name: name, Index: i})
		}
	case "external", "":
		node.Kind = External
		node.Component = nc.Component

		sig, ok := resolver.Resolve(nc.Component)
		if !ok {
			return Node{}, buildErr(schematicName, nc.ID, "component %s not found in registry", nc.Component)
		}

		if sig.DynamicPorts() {
			for i, name := range nc.InputPorts {
				node.Inputs = append(node.Inputs, Port{Name: name, Index: i})
			}
			var outputs = nc.OutputPorts
			if len(outputs) == 0 {
				outputs = []string{"output"}
			}
			for i, name := range outputs {
				node.Outputs = append(node.Outputs, Port{Name: name, Index: i})
			}
		} else {
			if err := assertSubset(schematicName, nc.ID, "input", nc.InputPorts, sig.InputNames()); err != nil {
				return Node{}, err
			}
			if err := assertSubset(schematicName, nc.ID, "output", nc.OutputPorts, sig.OutputNames()); err != nil {
				return Node{}, err
			}
			for i, name := range nc.InputPorts {
				node.Inputs = append(node.Inputs, Port{Name: name, Index: i})
			}
			for i, name := range nc.OutputPorts {
				node.Outputs = append(node.Outputs, Port{Name: name, Index: i})
			}
		}
	default:
		return Node{}, buildErr(schematicName, nc.ID, "unknown node kind %q", nc.KindName)
	}

	if nc.Config != nil && !json.Valid(nc.Config) {
		return Node{}, buildErr(schematicName, nc.ID, "node configuration is not valid JSON")
	}

	return node, nil
}

func assertSubset(schematicName, nodeID, kind string, declared, formal []string) error {
	var set = make(map[string]bool, len(formal))
	for _, f := range formal {
		set[f] = true
	}
	for _, d := range declared {
		if !set[d] {
			return buildErr(schematicName, nodeID, "%s port %q is not a formal parameter of its operation", kind, d)
		}
	}
	return nil
}

// validateConnected enforces spec §7's "missing required connection" and
// "unused output (specifically for core::sender)" build-time errors.
func validateConnected(schematicName string, nodes []Node, conns []Connection) error {
	var hasIncoming = make(map[packet.Ref]bool, len(conns))
	var hasOutgoing = make(map[packet.Ref]bool, len(conns))
	for _, c := range conns {
		hasIncoming[c.To] = true
		hasOutgoing[c.From] = true
	}

	for _, n := range nodes {
		switch n.Kind {
		case External, SchematicOutput:
			for _, p := range n.Inputs {
				var ref = packet.Ref{SchematicID: schematicName, NodeIndex: n.Index, PortIndex: p.Index, Direction: packet.In}
				if !hasIncoming[ref] {
					return buildErr(schematicName, n.ID, "input port %q has no incoming connection", p.Name)
				}
			}
		}

		if n.Component.Namespace == "core" && n.Component.Operation == "sender" {
			for _, p := range n.Outputs {
				var ref = packet.Ref{SchematicID: schematicName, NodeIndex: n.Index, PortIndex: p.Index, Direction: packet.Out}
				if !hasOutgoing[ref] {
					return buildErr(schematicName, n.ID, "output port %q is never connected (core::sender output must be used)", p.Name)
				}
			}
		}
	}
	return nil
}
