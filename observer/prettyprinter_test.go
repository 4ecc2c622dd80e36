package observer

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/candlecorp/wick/packet"
	"github.com/candlecorp/wick/transaction"
)

type fixedStateView struct{ id string }

func (f fixedStateView) TransactionID() string { return f.id }
func (f fixedStateView) PortStatus(packet.Ref) (packet.Status, bool) { return packet.Open, false }

func TestPrettyPrinterRendersPacketAndCompletion(t *testing.T) {
	var buf bytes.Buffer
	color.NoColor = true
	var p = NewPrettyPrinter(&buf, time.Now())

	p.Observe(0, transaction.Event{Kind: transaction.PacketData, Packet: packet.New("out", []byte("hi"), "text/plain")}, fixedStateView{id: "11111111-2222-3333-4444-555555555555"})
	p.Observe(1, transaction.Event{Kind: transaction.TransactionDone}, fixedStateView{id: "11111111-2222-3333-4444-555555555555"})

	var out = buf.String()
	require.Contains(t, out, "packet")
	require.Contains(t, out, "out")
	require.Contains(t, out, "transaction done")
}
