package packet

import "fmt"

// Buffer is a bounded-in-memory FIFO of packets for one (node, port) pair,
// with a monotone Status automaton. A Buffer is owned exclusively by the
// transaction executor that created it and is never touched by more than
// one goroutine at a time (the executor loop is the only mutator), so there
// is no internal locking (spec §5: "no locks in the hot path").
type Buffer struct {
	queue           []Packet
	status          Status
	everReceivedData bool
}

// NewBuffer returns an empty, Open port buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Push enqueues one packet. Pushing a non-Done packet into a DoneClosed
// buffer is a contract violation upstream (Invariant 1) and panics rather
// than silently corrupting state.
//
// If the packet carries Done, the buffer's status advances to DoneClosing
// (if other packets remain unread ahead of it, or the queue is non-empty
// after this push) or directly to DoneClosed (if the queue is empty once
// this push lands, per spec §4.1's "Open -> DoneClosed directly is legal").
// A second Done arriving after the buffer is already closing or closed is
// accepted without effect beyond closing an empty buffer (Invariant 5:
// DONE packets are idempotent).
func (b *Buffer) Push(p Packet) {
	if b.status == DoneClosed {
		if p.IsDone() {
			return
		}
		panic(fmt.Sprintf("push into DoneClosed port buffer: %v", p))
	}
	if b.status == DoneClosing {
		// A Done packet already put us in DoneClosing; further pushes are
		// only legal if they're themselves redundant Done markers.
		if !p.IsDone() {
			panic(fmt.Sprintf("push of non-DONE packet after DONE: %v", p))
		}
		if len(b.queue) == 0 {
			b.status = DoneClosed
		}
		return
	}

	if !p.IsDone() {
		b.everReceivedData = true
		b.queue = append(b.queue, p)
		return
	}

	// A pure Done packet terminates the port. It is never itself enqueued;
	// it only flips status. Anything already queued must drain first.
	if len(b.queue) == 0 {
		b.status = DoneClosed
	} else {
		b.status = DoneClosing
	}
}

// Take pops the head packet, or reports ok=false if the buffer is
// currently empty. If popping empties the queue while status was
// DoneClosing, status advances to DoneClosed.
func (b *Buffer) Take() (p Packet, ok bool) {
	if len(b.queue) == 0 {
		return Packet{}, false
	}
	p, b.queue = b.queue[0], b.queue[1:]
	if len(b.queue) == 0 && b.status == DoneClosing {
		b.status = DoneClosed
	}
	return p, true
}

// Peek returns the head packet without removing it.
func (b *Buffer) Peek() (p Packet, ok bool) {
	if len(b.queue) == 0 {
		return Packet{}, false
	}
	return b.queue[0], true
}

// Drain removes and returns up to n queued packets in order. n<=0 drains
// everything currently buffered.
func (b *Buffer) Drain(n int) []Packet {
	if n <= 0 || n > len(b.queue) {
		n = len(b.queue)
	}
	var out = b.queue[:n]
	b.queue = b.queue[n:]
	if len(b.queue) == 0 && b.status == DoneClosing {
		b.status = DoneClosed
	}
	return out
}

// IsEmpty reports whether the buffer currently holds no packets.
func (b *Buffer) IsEmpty() bool { return len(b.queue) == 0 }

// Len reports how many packets are currently queued.
func (b *Buffer) Len() int { return len(b.queue) }

// Status returns the buffer's current lifecycle state.
func (b *Buffer) Status() Status { return b.status }

// EverReceivedData reports whether at least one data-carrying packet was
// ever pushed onto this buffer, as distinct from a buffer that closed
// having never seen data. The executor's readiness check does not consult
// it: any DoneClosed, empty port is surfaced to a handler as a DONE on that
// port name, whether or not it delivered data earlier.
func (b *Buffer) EverReceivedData() bool { return b.everReceivedData }

// CloseEmpty transitions a fresh, empty buffer directly to DoneClosed. It
// is used by the executor to synthesize a closed port for an In-port whose
// single inbound connection's Out-port was already DoneClosed with no data
// ever delivered.
func (b *Buffer) CloseEmpty() {
	if b.status == DoneClosed {
		return
	}
	if !b.IsEmpty() {
		panic("CloseEmpty called on a non-empty buffer")
	}
	b.status = DoneClosed
}
