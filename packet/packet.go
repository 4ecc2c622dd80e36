// Package packet defines the wire-free unit of data carried on every
// schematic connection, and the per-port buffer that stages it during a
// transaction.
package packet

import "fmt"

// SystemPort is the synthetic port name the transaction executor uses to
// carry transaction-level events (a final DONE marking the external
// output stream's end, or an error that could not be attributed to a
// single declared output) onto that stream, distinct from any real
// schematic_output port name. It lives here, not in package transaction,
// so component can recognize and translate it (see self.go) without
// transaction and component importing each other.
const SystemPort = "__system__"

// Flags is a small bitset carried on every Packet.
type Flags uint8

const (
	// Done marks end-of-stream on a port. A Done packet carries no payload.
	Done Flags = 1 << iota
	// OpenBracket delimits the start of a nested substream.
	OpenBracket
	// CloseBracket delimits the end of a nested substream.
	CloseBracket
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var s string
	for _, b := range []struct {
		bit  Flags
		name string
	}{
		{Done, "DONE"},
		{OpenBracket, "OPEN_BRACKET"},
		{CloseBracket, "CLOSE_BRACKET"},
	} {
		if f.Has(b.bit) {
			if s != "" {
				s += "|"
			}
			s += b.name
		}
	}
	return s
}

// Error is a structured runtime error carried as a Packet's payload, per
// spec §7's "packet-carried errors": a component failed a single
// computation, and the failure rides the same fan-out path as data.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Payload is either opaque data with a content-type hint, or a structured
// error. A Done-only packet has neither.
type Payload struct {
	Data        []byte
	ContentType string
	Err         *Error
}

// IsError reports whether this payload carries an error rather than data.
func (p Payload) IsError() bool { return p.Err != nil }

// Packet is the unit of data on every schematic edge.
type Packet struct {
	PortName string
	Payload  Payload
	Flags    Flags
}

// New constructs a data-carrying packet.
func New(port string, data []byte, contentType string) Packet {
	return Packet{PortName: port, Payload: Payload{Data: data, ContentType: contentType}}
}

// NewError constructs an error-carrying packet. Error packets are not
// inherently DONE; callers append a DONE packet afterward per the handler
// contract in spec §4.3.
func NewError(port string, message string) Packet {
	return Packet{PortName: port, Payload: Payload{Err: &Error{Message: message}}}
}

// NewDone constructs a pure end-of-stream packet carrying no data.
func NewDone(port string) Packet {
	return Packet{PortName: port, Flags: Done}
}

// NewOpenBracket constructs a control packet that opens a nested substream.
func NewOpenBracket(port string) Packet {
	return Packet{PortName: port, Flags: OpenBracket}
}

// NewCloseBracket constructs a control packet that closes a nested substream.
func NewCloseBracket(port string) Packet {
	return Packet{PortName: port, Flags: CloseBracket}
}

// IsDone reports whether this packet terminates its port.
func (p Packet) IsDone() bool { return p.Flags.Has(Done) }

// IsControl reports whether this packet carries no data of its own: either
// a DONE marker or a bracket delimiter.
func (p Packet) IsControl() bool {
	return p.Flags.Has(Done) || p.Flags.Has(OpenBracket) || p.Flags.Has(CloseBracket)
}

func (p Packet) String() string {
	if p.Payload.IsError() {
		return fmt.Sprintf("%s[%s]:error(%s)", p.PortName, p.Flags, p.Payload.Err.Message)
	}
	if p.IsControl() && len(p.Payload.Data) == 0 {
		return fmt.Sprintf("%s[%s]", p.PortName, p.Flags)
	}
	return fmt.Sprintf("%s[%s]:%dB", p.PortName, p.Flags, len(p.Payload.Data))
}
