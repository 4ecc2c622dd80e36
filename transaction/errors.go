package transaction

import (
	"fmt"

	"github.com/candlecorp/wick/packet"
)

// StateError indicates an assertion inside the executor failed: a bug
// upstream, never an expected runtime condition (spec §7 "State errors").
// A StateError always aborts the transaction: it is sent as an error
// packet on the system port and the transaction ends via TransactionDone.
type StateError struct {
	Transaction string
	Reason      string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("transaction %s: state error: %s", e.Transaction, e.Reason)
}

func stateErr(txn, format string, args ...any) *StateError {
	return &StateError{Transaction: txn, Reason: fmt.Sprintf(format, args...)}
}

// SystemPort is the synthetic port name the executor uses to carry
// transaction-level errors (handler failures it cannot attribute to a
// single declared output, or state errors) onto the output stream,
// distinct from any real schematic_output port name (spec §4.4
// "Completion", §7 "State errors"). Defined in package packet so
// component can recognize it without importing transaction.
const SystemPort = packet.SystemPort
