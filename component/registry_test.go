package component

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/candlecorp/wick/graph"
	"github.com/candlecorp/wick/packet"
)

func TestRegistryBuiltins(t *testing.T) {
	var r = NewRegistry()

	for _, ref := range []graph.ComponentRef{
		{Namespace: "core", Operation: "sender"},
		{Namespace: "core", Operation: "merge"},
		{Namespace: "inherent", Operation: "data"},
	} {
		_, ok := r.Resolve(ref)
		require.True(t, ok, "expected %s to resolve", ref)
	}
}

func TestSenderEmitsConfiguredValue(t *testing.T) {
	var s = &Sender{}
	out, err := s.Handle(context.Background(), Invocation{}, nil, json.RawMessage(`{"value":"hi"}`))
	require.NoError(t, err)

	var p0 = <-out
	require.Equal(t, "output", p0.PortName)
	require.JSONEq(t, `"hi"`, string(p0.Payload.Data))

	var p1 = <-out
	require.True(t, p1.IsDone())
}

func TestMergeFusesOneTuple(t *testing.T) {
	var m = &Merge{}
	var frame = Frame{
		packet.New("a", []byte(`1`), "application/json"),
		packet.New("b", []byte(`2`), "application/json"),
	}
	out, err := m.Handle(context.Background(), Invocation{}, frame, nil)
	require.NoError(t, err)

	var p = <-out
	require.JSONEq(t, `{"a":1,"b":2}`, string(p.Payload.Data))
}

func TestMergeClosesOnClosedInput(t *testing.T) {
	var m = &Merge{}
	var frame = Frame{
		packet.New("a", []byte(`1`), "application/json"),
		packet.NewDone("b"),
	}
	out, err := m.Handle(context.Background(), Invocation{}, frame, nil)
	require.NoError(t, err)

	var p = <-out
	require.True(t, p.IsDone())
}

func TestRegistrySelfNamespace(t *testing.T) {
	var r = NewRegistry()
	r.RegisterSelf(stubInvoker{})

	sig, ok := r.Resolve(graph.ComponentRef{Namespace: "self", Operation: "sub"})
	require.True(t, ok)
	require.Equal(t, []string{"x"}, sig.InputNames())
}

type stubInvoker struct{}

func (stubInvoker) SchematicPorts(schematic string) (inputs, outputs []string, ok bool) {
	if schematic != "sub" {
		return nil, nil, false
	}
	return []string{"x"}, []string{"y"}, true
}

func (stubInvoker) Invoke(ctx context.Context, schematic string, inv Invocation, in <-chan packet.Packet) (<-chan packet.Packet, error) {
	var out = make(chan packet.Packet, 2)
	go func() {
		defer close(out)
		for p := range in {
			if !p.IsDone() {
				out <- packet.New("y", p.Payload.Data, p.Payload.ContentType)
			}
		}
		out <- packet.NewDone("y")
	}()
	return out, nil
}
