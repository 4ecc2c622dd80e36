// Package transaction implements the per-invocation state machine (spec
// §4.4, C4): it instantiates one context per graph node, routes packets
// over connections, fans out invocations to handlers, reacts to packet
// arrival and port-status-change events, and detects completion.
package transaction

import (
	"github.com/candlecorp/wick/component"
	"github.com/candlecorp/wick/packet"
)

// Kind identifies one event kind: the six of spec §4.4's table, plus the
// watchdog's Hung.
type Kind uint8

const (
	// PacketData carries a packet destined for one In-port; produced by
	// the external input feeder or by a handler's output adapter.
	PacketData Kind = iota
	// PortStatusChange stands for a port buffer's status advancing. The
	// executor handles that synchronously in the caller of Buffer.Push
	// (see executor.go); no event of this Kind is ever queued or passed to
	// Observers.
	PortStatusChange
	// Invocation is issued by the executor itself to spawn one handler
	// activation.
	Invocation
	// CallComplete clears a node's pending flag once its activation's
	// output channel has fully drained.
	CallComplete
	// TransactionDone is emitted once every port in the schematic is
	// DoneClosed.
	TransactionDone
	// Ping is an advisory watchdog heartbeat, posted on every window tick
	// the transaction is still making progress on.
	Ping
	// Hung is posted by the watchdog in place of Ping once a full window
	// has ticked over with no sequence progress (spec §7 "Hung
	// transaction"). Event.ForceAbort distinguishes error_on_hung mode
	// (the transaction is aborted outright) from advisory mode (a log plus
	// an error-stream entry, and the transaction keeps running).
	Hung
)

func (k Kind) String() string {
	switch k {
	case PacketData:
		return "PacketData"
	case PortStatusChange:
		return "PortStatusChange"
	case Invocation:
		return "Invocation"
	case CallComplete:
		return "CallComplete"
	case TransactionDone:
		return "TransactionDone"
	case Ping:
		return "Ping"
	case Hung:
		return "Hung"
	default:
		return "unknown"
	}
}

// Event is one entry on the transaction's single MPSC event channel, or in
// the executor's internal self-posted queue (see executor.go for why the
// two are split).
type Event struct {
	Kind Kind

	// PacketData
	To     packet.Ref
	Packet packet.Packet

	// PortStatusChange
	Port   packet.Ref
	Status packet.Status

	// Invocation / CallComplete
	NodeIndex int
	Frame     component.Frame

	// Ping / Hung
	AtUnixNano int64

	// Hung
	ForceAbort bool
}
