package transaction

import "github.com/candlecorp/wick/packet"

// StateView is the read-only handle to an in-flight transaction's state
// that an Observer receives alongside each event (spec §6, Observability
// surface). It has no effect on behavior: Observers are purely
// diagnostic.
type StateView interface {
	// PortStatus reports the current status of one port, if it exists in
	// this transaction's schematic.
	PortStatus(ref packet.Ref) (packet.Status, bool)
	// TransactionID returns the owning transaction's identifier as a
	// string.
	TransactionID() string
}

// Observer receives every event the executor processes, in order, with
// its one-based index and a snapshot-capable handle to current state.
// Used for debugging and for structured test logs (spec §6); has no
// effect on behavior.
type Observer interface {
	Observe(index int, ev Event, state StateView)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(index int, ev Event, state StateView)

func (f ObserverFunc) Observe(index int, ev Event, state StateView) { f(index, ev, state) }
