package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/candlecorp/wick/component"
	"github.com/candlecorp/wick/graph"
	"github.com/candlecorp/wick/packet"
)

// Options configure one Executor. All fields are optional.
type Options struct {
	Observers     []Observer
	Logger        *log.Entry
	HangWindow    time.Duration // 0 disables the watchdog
	ErrorOnHung   bool
	RuntimeConfig json.RawMessage // merged over every node's inline config
}

// Executor runs one transaction (spec §4.4, C4): it owns one nodeContext
// per graph node, a single MPSC event queue, and the goroutines spawned to
// run handler activations. Exactly one goroutine, the one running loop,
// ever mutates a nodeContext, following the single-writer pattern the
// teacher's shuffle ring uses for its subscriber state (estuary-flow's
// go/shuffle/ring.go serve loop).
type Executor struct {
	id        uuid.UUID
	schematic *graph.Schematic
	registry  *component.Registry
	inherent  component.InherentData
	runtime   json.RawMessage

	queue *eventQueue
	// local holds events the executor posts to itself (Invocation,
	// TransactionDone) so they are processed ahead of anything still
	// sitting in queue, without looping a self-send through queue and
	// risking it being starved behind a burst of concurrent handler
	// output. It is only ever touched by the loop goroutine.
	local []Event

	nodes []*nodeContext

	inputNode int // index of the schematic_input node, or -1

	output chan packet.Packet

	observers []Observer
	seq       atomic.Int64
	count     int

	done     bool
	stopDog  chan struct{}
	log      *log.Entry
}

// NewExecutor constructs an Executor for one transaction over schematic,
// resolving component activations against registry. Run must be called to
// start it.
func NewExecutor(schematic *graph.Schematic, registry *component.Registry, inherent component.InherentData, opts Options) *Executor {
	var e = &Executor{
		id:        uuid.New(),
		schematic: schematic,
		registry:  registry,
		inherent:  inherent,
		runtime:   opts.RuntimeConfig,
		queue:     newEventQueue(),
		nodes:     make([]*nodeContext, len(schematic.Nodes)),
		inputNode: -1,
		output:    make(chan packet.Packet, 64),
		observers: opts.Observers,
		stopDog:   make(chan struct{}),
		log:       opts.Logger,
	}
	if e.log == nil {
		e.log = log.WithField("component", "transaction")
	}
	e.log = e.log.WithField("txn", e.id.String())

	for i := range schematic.Nodes {
		var n = &schematic.Nodes[i]
		e.nodes[i] = newNodeContext(n)
		if n.Kind == graph.SchematicInput {
			e.inputNode = i
		}
	}

	if opts.HangWindow > 0 {
		var dog = newWatchdog(opts.HangWindow, opts.ErrorOnHung, &e.seq, e.queue, e.log)
		go dog.run(e.stopDog)
	}

	return e
}

// ID returns this transaction's identifier.
func (e *Executor) ID() uuid.UUID { return e.id }

// Output returns the channel the caller reads this transaction's external
// output packets from. It is closed once the transaction completes, after
// a final DONE packet on SystemPort (spec §4.4 "Completion").
func (e *Executor) Output() <-chan packet.Packet { return e.output }

// Run starts the executor's single loop goroutine. It fires every
// zero-input node immediately (core::sender instances and the synthetic
// inherent source (spec §4.4's readiness rule is vacuously satisfied for
// them, so they get a one-time exception), then services events until the
// transaction completes.
func (e *Executor) Run(ctx context.Context) {
	for i, nc := range e.nodes {
		if nc.node.Kind == graph.Inherent || (nc.node.Kind == graph.External && len(nc.node.Inputs) == 0) {
			nc.pending = true
			e.local = append(e.local, Event{Kind: Invocation, NodeIndex: i, Frame: component.Frame{}})
		}
	}
	go e.loop(ctx)
}

// Feed delivers one externally-supplied packet addressed to a named output
// port of the schematic's schematic_input node (spec §6: the interpreter's
// input feeder rewrites the caller's packet port names onto that node
// before posting them). It is the one entry point into the transaction
// safe to call from any goroutine.
func (e *Executor) Feed(p packet.Packet) {
	if e.inputNode < 0 {
		// NodeIndex -1 routes through handlePacketIn's bounds check, which
		// aborts the transaction with a StateError: feeding a schematic
		// that declares no outer inputs is a caller bug.
		e.queue.Push(Event{Kind: PacketData, To: packet.Ref{SchematicID: e.schematic.ID, NodeIndex: -1, Direction: packet.In}, Packet: p})
		return
	}
	e.fanOutFrom(e.inputNode, p)
}

// fanOutFrom delivers p, which is understood to originate from the named
// output port of node ni, to every connection leaving that port (spec
// §4.4 "Fan-out on outgoing packets"), and, if p is DONE, additionally
// marks that Out-port's own status closed. Safe to call from any
// goroutine: it only ever posts events, never touches a nodeContext
// directly.
func (e *Executor) fanOutFrom(ni int, p packet.Packet) {
	var node = e.schematic.Node(ni)
	outPort, ok := node.OutputByName(p.PortName)
	if !ok {
		e.queue.Push(Event{Kind: PacketData, To: packet.Ref{SchematicID: e.schematic.ID, NodeIndex: -1, Direction: packet.In}, Packet: packet.NewError(SystemPort, fmt.Sprintf("node %q emitted on undeclared output %q", node.ID, p.PortName))})
		return
	}
	var from = packet.Ref{SchematicID: e.schematic.ID, NodeIndex: ni, PortIndex: outPort.Index, Direction: packet.Out}

	for _, conn := range e.schematic.FanOut(from) {
		var delivered = p
		delivered.PortName, _ = e.schematic.Node(conn.To.NodeIndex).InputNameAt(conn.To.PortIndex)
		e.queue.Push(Event{Kind: PacketData, To: conn.To, Packet: delivered})
	}
	if p.IsDone() {
		e.queue.Push(Event{Kind: PacketData, To: from, Packet: p})
	}
}

// loop is the executor's single event-processing goroutine. It drains the
// internal self-posted queue ahead of the external one, matching the
// priority the teacher's ring.serve loop gives its own internal signal
// channels over externally-fed ones (estuary-flow's go/shuffle/ring.go).
func (e *Executor) loop(ctx context.Context) {
	defer close(e.stopDog)
	for !e.done {
		var ev Event
		var ok bool
		if len(e.local) > 0 {
			ev, e.local = e.local[0], e.local[1:]
			ok = true
		} else {
			ev, ok = e.queue.Pop()
		}
		if !ok {
			return
		}
		e.process(ctx, ev)
	}
	// Events still queued are not drained: Push never blocks and silently
	// drops events after Close, so goroutines that post after
	// TransactionDone cannot block on the queue.
}

func (e *Executor) process(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.abort(stateErr(e.id.String(), "%v", r))
		}
	}()

	e.count++
	e.notify(ev)

	// seq only counts genuine transaction work. The watchdog's own Ping and
	// Hung events must not bump it, or processing the watchdog's previous
	// tick would itself look like progress and a real stall could never be
	// detected past the first window.
	if ev.Kind != Ping && ev.Kind != Hung {
		e.seq.Add(1)
	}

	switch ev.Kind {
	case PacketData:
		if ev.To.Direction == packet.Out {
			e.handleOutputClosed(ev.To)
			return
		}
		e.handlePacketIn(ctx, ev.To, ev.Packet)
	case Invocation:
		e.handleInvocation(ctx, ev)
	case CallComplete:
		e.handleCallComplete(ctx, ev.NodeIndex)
	case TransactionDone:
		e.finish(nil)
	case Ping:
		// advisory only; no further effect.
	case Hung:
		e.handleHung(ev)
	}
}

// handleHung reacts to a watchdog-detected stall (spec §7 "Hung
// transaction"). In error_on_hung mode it aborts the transaction outright;
// otherwise it only adds an error entry to the output stream and the
// transaction keeps running, matching the teacher's own advisory-vs-fatal
// split between a logged warning and a task-ending error in
// go/runtime/task.go.
func (e *Executor) handleHung(ev Event) {
	if ev.ForceAbort {
		e.abort(stateErr(e.id.String(), "transaction exceeded watchdog window with no progress"))
		return
	}
	e.output <- packet.NewError(SystemPort, "transaction has not progressed within watchdog window")
}

func (e *Executor) handlePacketIn(ctx context.Context, to packet.Ref, p packet.Packet) {
	if to.NodeIndex < 0 || to.NodeIndex >= len(e.nodes) {
		var reason = fmt.Sprintf("packet addressed to unknown node index %d", to.NodeIndex)
		if p.Payload.IsError() {
			reason = p.Payload.Err.Message
		}
		e.abort(stateErr(e.id.String(), "%s", reason))
		return
	}
	var nc = e.nodes[to.NodeIndex]

	if nc.node.Kind == graph.SchematicOutput {
		e.forwardToOutput(nc, to.PortIndex, p)
		return
	}

	var buf = nc.inputs[to.PortIndex]
	if buf == nil {
		e.abort(stateErr(e.id.String(), "node %q has no input buffer at port index %d", nc.node.ID, to.PortIndex))
		return
	}
	buf.Push(p)
	e.tryFire(ctx, to.NodeIndex)
	e.checkCompletion()
}

// forwardToOutput relays a packet arriving at one of schematic_output's
// input ports straight onto the external output stream (spec §4.4's
// completion note: schematic_output has no handler of its own). Unlike an
// ordinary node it never waits for a full ready tuple: it is a pure
// multiplexer onto one outer port per its own input port name.
func (e *Executor) forwardToOutput(nc *nodeContext, idx int, p packet.Packet) {
	var buf = nc.inputs[idx]
	buf.Push(p)
	if p.IsDone() {
		e.output <- p
		e.checkCompletion()
		return
	}
	for {
		var pkt, ok = buf.Take()
		if !ok {
			break
		}
		e.output <- pkt
	}
}

func (e *Executor) handleOutputClosed(ref packet.Ref) {
	var nc = e.nodes[ref.NodeIndex]
	nc.outputs[ref.PortIndex] = packet.DoneClosed
	e.checkCompletion()
}

// tryFire evaluates the readiness rule for node ni (spec §4.4): it peeks
// every input port without consuming anything until it has confirmed every
// port is either non-empty or closed-empty, and at least one carries real
// data, only then committing the Take()s that build the activation's
// Frame. The two-pass shape is what keeps a not-yet-ready node from losing
// packets it already has queued on other ports (Invariant 3).
func (e *Executor) tryFire(ctx context.Context, ni int) {
	var nc = e.nodes[ni]
	if nc.pending || nc.finished {
		return
	}
	if nc.node.Kind != graph.External && nc.node.Kind != graph.Inherent {
		return
	}
	if len(nc.node.Inputs) == 0 {
		return // fired once at Run(); never again
	}

	var hasData bool
	for _, p := range nc.node.Inputs {
		var buf = nc.inputs[p.Index]
		if _, ok := buf.Peek(); ok {
			hasData = true
			continue
		}
		if buf.Status() == packet.DoneClosed {
			continue
		}
		return // this port is neither ready nor closed; not yet fireable
	}

	if !hasData {
		// Every input is closed-empty: this node will never receive a
		// tuple to fire on. Close its outputs without ever invoking it.
		if !nc.finished {
			nc.finished = true
			for _, p := range nc.node.Outputs {
				if nc.outputs[p.Index] != packet.DoneClosed {
					e.fanOutFrom(ni, packet.NewDone(p.Name))
				}
			}
		}
		return
	}

	var frame = make(component.Frame, 0, len(nc.node.Inputs))
	for _, p := range nc.node.Inputs {
		var buf = nc.inputs[p.Index]
		if pkt, ok := buf.Take(); ok {
			pkt.PortName = p.Name
			frame = append(frame, pkt)
		} else {
			frame = append(frame, packet.NewDone(p.Name))
		}
	}
	nc.pending = true
	e.local = append(e.local, Event{Kind: Invocation, NodeIndex: ni, Frame: frame})
}

func (e *Executor) handleInvocation(ctx context.Context, ev Event) {
	var nc = e.nodes[ev.NodeIndex]

	if nc.node.Kind == graph.Inherent {
		go e.runInherent(ev.NodeIndex)
		return
	}

	handler, err := e.registry.Handler(nc.node.Component)
	if err != nil {
		if errors.Cause(err) == component.ErrComponentNotRegistered {
			e.log.WithField("node", nc.node.ID).WithField("component", nc.node.Component).Warn("component not registered against this run's registry")
		}
		e.abort(stateErr(e.id.String(), "node %q: %v", nc.node.ID, err))
		return
	}

	config, err := mergeConfig(nc.node.Config, e.runtime)
	if err != nil {
		e.abort(stateErr(e.id.String(), "node %q: %v", nc.node.ID, err))
		return
	}

	var inv = component.Invocation{
		Transaction: e.id,
		Target:      nc.node.Component,
		Inherent:    e.inherent,
	}
	go e.runHandler(ctx, ev.NodeIndex, handler, inv, ev.Frame, config)
}

// runHandler executes one handler activation on its own goroutine and
// drains its output channel, fanning out every packet as it arrives (spec
// §4.3, §4.4). A handler that panics, or returns an error instead of a
// channel, produces an error packet followed by DONE on every output port
// the node declares (spec §7 "Handler failure"); the executor cannot
// assume which output the failure would have used, so it closes all of
// them, exactly as a handler failing partway through a real computation
// would leave the rest of its declared outputs unProduced.
func (e *Executor) runHandler(ctx context.Context, ni int, h component.Handler, inv component.Invocation, frame component.Frame, config json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			e.failOutputs(ni, fmt.Errorf("panic: %v", r))
		}
		e.queue.Push(Event{Kind: CallComplete, NodeIndex: ni})
	}()

	out, err := h.Handle(ctx, inv, frame, config)
	if err != nil {
		e.failOutputs(ni, err)
		return
	}
	for p := range out {
		e.fanOutFrom(ni, p)
	}
}

func (e *Executor) runInherent(ni int) {
	defer func() { e.queue.Push(Event{Kind: CallComplete, NodeIndex: ni}) }()

	var payload, _ = json.Marshal(struct {
		Seed      uint64 `json:"seed"`
		Timestamp uint64 `json:"timestamp"`
	}{e.inherent.Seed, e.inherent.Timestamp})
	e.fanOutFrom(ni, packet.New("inherent", payload, "application/json"))
	e.fanOutFrom(ni, packet.NewDone("inherent"))
}

func (e *Executor) failOutputs(ni int, err error) {
	var node = e.schematic.Node(ni)
	for _, p := range node.Outputs {
		e.fanOutFrom(ni, packet.NewError(p.Name, err.Error()))
		e.fanOutFrom(ni, packet.NewDone(p.Name))
	}
}

func (e *Executor) handleCallComplete(ctx context.Context, ni int) {
	var nc = e.nodes[ni]
	nc.pending = false
	e.tryFire(ctx, ni)
	e.checkCompletion()
}

// checkCompletion implements spec §4.4's completion condition: every
// port, input and output, across every node, has reached DoneClosed.
func (e *Executor) checkCompletion() {
	if e.done {
		return
	}
	for _, nc := range e.nodes {
		if !nc.allPortsDone() {
			return
		}
	}
	e.local = append(e.local, Event{Kind: TransactionDone})
}

func (e *Executor) abort(err *StateError) {
	if e.done {
		return
	}
	e.log.WithError(err).Error("transaction aborted")
	e.count++
	e.notify(Event{Kind: TransactionDone})
	e.finish(err)
}

func (e *Executor) finish(err error) {
	if e.done {
		return
	}
	e.done = true
	if err != nil {
		e.output <- packet.NewError(SystemPort, err.Error())
	}
	e.output <- packet.NewDone(SystemPort)
	close(e.output)
	e.queue.Close()
}

// mergeConfig applies a JSON merge patch (RFC 7386) of override on top of
// base, the ambient mechanism SPEC_FULL §2 names for layering
// invocation-scoped runtime configuration over a node's static inline
// configuration.
func mergeConfig(base, override json.RawMessage) (json.RawMessage, error) {
	if len(override) == 0 {
		if len(base) == 0 {
			return json.RawMessage("{}"), nil
		}
		return base, nil
	}
	if len(base) == 0 {
		base = json.RawMessage("{}")
	}
	merged, err := jsonpatch.MergePatch(base, override)
	if err != nil {
		return nil, fmt.Errorf("merging runtime config over node config: %w", err)
	}
	return merged, nil
}

func (e *Executor) notify(ev Event) {
	if len(e.observers) == 0 {
		return
	}
	var view = executorStateView{e}
	for _, o := range e.observers {
		o.Observe(e.count, ev, view)
	}
}

// executorStateView implements StateView by reading nodeContext state.
// Only ever constructed and read from within the loop goroutine.
type executorStateView struct{ e *Executor }

func (v executorStateView) TransactionID() string { return v.e.id.String() }

func (v executorStateView) PortStatus(ref packet.Ref) (packet.Status, bool) {
	if ref.NodeIndex < 0 || ref.NodeIndex >= len(v.e.nodes) {
		return 0, false
	}
	var nc = v.e.nodes[ref.NodeIndex]
	if ref.Direction == packet.In {
		buf, ok := nc.inputs[ref.PortIndex]
		if !ok {
			return 0, false
		}
		return buf.Status(), true
	}
	s, ok := nc.outputs[ref.PortIndex]
	return s, ok
}
