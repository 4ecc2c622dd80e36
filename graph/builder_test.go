package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/candlecorp/wick/packet"
)

type stubSignature struct {
	inputs, outputs []string
	dynamic         bool
}

func (s stubSignature) InputNames() []string  { return s.inputs }
func (s stubSignature) OutputNames() []string { return s.outputs }
func (s stubSignature) DynamicPorts() bool    { return s.dynamic }

type stubResolver map[ComponentRef]Signature

func (r stubResolver) Resolve(ref ComponentRef) (Signature, bool) {
	sig, ok := r[ref]
	return sig, ok
}

func echoResolver() stubResolver {
	return stubResolver{
		{Namespace: "test", Operation: "echo"}: stubSignature{inputs: []string{"input"}, outputs: []string{"output"}},
		{Namespace: "core", Operation: "sender"}: stubSignature{outputs: []string{"output"}},
		{Namespace: "core", Operation: "merge"}: stubSignature{dynamic: true},
	}
}

func echoGraph() Config {
	return Config{Schematics: []SchematicConfig{{
		Name: "main",
		Nodes: []NodeConfig{
			{ID: "input", KindName: "schematic_input", OutputPorts: []string{"in"}},
			{ID: "echo", KindName: "external", Component: ComponentRef{Namespace: "test", Operation: "echo"},
				InputPorts: []string{"input"}, OutputPorts: []string{"output"}},
			{ID: "output", KindName: "schematic_output", InputPorts: []string{"out"}},
		},
		Connections: []ConnectionConfig{
			{FromNode: "input", FromPort: "in", ToNode: "echo", ToPort: "input"},
			{FromNode: "echo", FromPort: "output", ToNode: "output", ToPort: "out"},
		},
	}}}
}

func TestBuildEchoGraph(t *testing.T) {
	g, err := Build(echoGraph(), echoResolver())
	require.NoError(t, err)

	s, ok := g.Schematic("main")
	require.True(t, ok)
	require.Len(t, s.Nodes, 3)

	echoNode, ok := s.NodeByID("echo")
	require.True(t, ok)

	var in, _ = echoNode.InputByName("input")
	var inRef = packet.Ref{SchematicID: "main", NodeIndex: echoNode.Index, PortIndex: in.Index, Direction: packet.In}
	conn, ok := s.Incoming(inRef)
	require.True(t, ok)
	require.Equal(t, "input", s.Node(conn.From.NodeIndex).ID)
}

func TestBuildUnknownComponentFails(t *testing.T) {
	var cfg = Config{Schematics: []SchematicConfig{{
		Name: "main",
		Nodes: []NodeConfig{
			{ID: "mystery", KindName: "external", Component: ComponentRef{Namespace: "nope", Operation: "nope"}},
		},
	}}}
	_, err := Build(cfg, echoResolver())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found in registry")
}

func TestBuildUnknownPortFails(t *testing.T) {
	var cfg = echoGraph()
	cfg.Schematics[0].Nodes[1].InputPorts = []string{"bogus"}
	_, err := Build(cfg, echoResolver())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a formal parameter")
}

func TestBuildMissingConnectionFails(t *testing.T) {
	var cfg = echoGraph()
	cfg.Schematics[0].Connections = cfg.Schematics[0].Connections[:1] // drop echo->output
	_, err := Build(cfg, echoResolver())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no incoming connection")
}

func TestBuildUnusedSenderOutputFails(t *testing.T) {
	var cfg = Config{Schematics: []SchematicConfig{{
		Name: "main",
		Nodes: []NodeConfig{
			{ID: "sender", KindName: "external", Component: ComponentRef{Namespace: "core", Operation: "sender"},
				OutputPorts: []string{"output"}},
			{ID: "output", KindName: "schematic_output"},
		},
	}}}
	_, err := Build(cfg, echoResolver())
	require.Error(t, err)
	require.Contains(t, err.Error(), "core::sender output must be used")
}

func TestBuildMergeDynamicPorts(t *testing.T) {
	var cfg = Config{Schematics: []SchematicConfig{{
		Name: "main",
		Nodes: []NodeConfig{
			{ID: "input", KindName: "schematic_input", OutputPorts: []string{"a", "b"}},
			{ID: "merge", KindName: "external", Component: ComponentRef{Namespace: "core", Operation: "merge"},
				InputPorts: []string{"a", "b"}, OutputPorts: []string{"output"}},
			{ID: "output", KindName: "schematic_output", InputPorts: []string{"out"}},
		},
		Connections: []ConnectionConfig{
			{FromNode: "input", FromPort: "a", ToNode: "merge", ToPort: "a"},
			{FromNode: "input", FromPort: "b", ToNode: "merge", ToPort: "b"},
			{FromNode: "merge", FromPort: "output", ToNode: "output", ToPort: "out"},
		},
	}}}
	g, err := Build(cfg, echoResolver())
	require.NoError(t, err)

	s, _ := g.Schematic("main")
	merge, _ := s.NodeByID("merge")
	require.Len(t, merge.Inputs, 2)
}

func TestBuildWiresInherent(t *testing.T) {
	var cfg = Config{Schematics: []SchematicConfig{{
		Name: "main",
		Nodes: []NodeConfig{
			{ID: "seeded", KindName: "external", Component: ComponentRef{Namespace: "test", Operation: "echo"},
				InputPorts: []string{"input"}, OutputPorts: []string{"output"}, UsesInherent: true},
			{ID: "input", KindName: "schematic_input", OutputPorts: []string{"in"}},
			{ID: "output", KindName: "schematic_output", InputPorts: []string{"out"}},
		},
		Connections: []ConnectionConfig{
			{FromNode: "input", FromPort: "in", ToNode: "seeded", ToPort: "input"},
			{FromNode: "seeded", FromPort: "output", ToNode: "output", ToPort: "out"},
		},
	}}}
	g, err := Build(cfg, echoResolver())
	require.NoError(t, err)

	s, _ := g.Schematic("main")
	require.GreaterOrEqual(t, s.InherentIndex, 0)
	require.Equal(t, Inherent, s.Node(s.InherentIndex).Kind)
}
