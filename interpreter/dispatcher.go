// Package interpreter implements the top-level dispatcher (spec §5, C5):
// the entry point that turns a built graph and a handler registry into a
// running system capable of accepting invocations and handing back output
// streams, while tracking every live transaction for an orderly shutdown.
package interpreter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/candlecorp/wick/component"
	"github.com/candlecorp/wick/graph"
	"github.com/candlecorp/wick/packet"
	"github.com/candlecorp/wick/transaction"
)

// Options configure a Dispatcher.
type Options struct {
	Observers   []transaction.Observer
	Logger      *log.Entry
	HangWindow  time.Duration
	ErrorOnHung bool
}

// Request describes one call into a named schematic (spec §6's
// "invocation"): which schematic to run, the per-transaction inherent
// data, and an optional runtime configuration override merged over every
// node's inline configuration (SPEC_FULL §2).
type Request struct {
	Schematic     string
	Inherent      component.InherentData
	RuntimeConfig json.RawMessage
}

// Dispatcher owns a compiled Graph and a Registry and is the only thing an
// embedder talks to at runtime (spec §1, §5). It implements
// component.SelfInvoker so the self:: namespace can call back into it
// without component importing interpreter (spec §9).
type Dispatcher struct {
	registry *component.Registry
	opts     Options
	log      *log.Entry

	// portIndex is derived straight from the Config, before Build runs, so
	// that self:: references between sibling schematics in the same graph
	// can be signature-checked during Build itself: Build needs
	// SchematicPorts answered before the Graph it would otherwise read
	// those answers from exists yet (see DESIGN.md's note on this).
	portIndex map[string]schematicPorts

	mu    sync.RWMutex
	graph *graph.Graph
	txns  map[uuid.UUID]*transaction.Executor

	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
	stopMu  sync.Mutex
	stopped bool
}

type schematicPorts struct {
	inputs, outputs []string
}

// New compiles cfg against registry and returns a ready-to-run Dispatcher.
// registry has RegisterSelf called on it as part of construction; callers
// should not call it themselves.
func New(cfg graph.Config, registry *component.Registry, opts Options) (*Dispatcher, error) {
	var d = &Dispatcher{
		registry:  registry,
		opts:      opts,
		portIndex: portsFromConfig(cfg),
		txns:      make(map[uuid.UUID]*transaction.Executor),
	}
	d.log = opts.Logger
	if d.log == nil {
		d.log = log.WithField("component", "interpreter")
	}

	registry.RegisterSelf(d)

	g, err := graph.Build(cfg, registry)
	if err != nil {
		return nil, fmt.Errorf("building graph: %w", err)
	}
	d.graph = g
	return d, nil
}

func portsFromConfig(cfg graph.Config) map[string]schematicPorts {
	var idx = make(map[string]schematicPorts, len(cfg.Schematics))
	for _, sc := range cfg.Schematics {
		var p schematicPorts
		for _, nc := range sc.Nodes {
			switch nc.KindName {
			case "schematic_input":
				p.inputs = nc.OutputPorts
			case "schematic_output":
				p.outputs = nc.InputPorts
			}
		}
		idx[sc.Name] = p
	}
	return idx
}

// Start marks the dispatcher ready to accept invocations. It is idempotent
// and currently has no side effects beyond bookkeeping (construction via
// New already does everything required to run), but exists as an explicit
// lifecycle hook because spec §5 calls one out and embedders expect one.
func (d *Dispatcher) Start() {
	d.startMu.Lock()
	defer d.startMu.Unlock()
	if d.started {
		return
	}
	d.started = true
	d.log.Info("dispatcher started")
}

// Shutdown blocks until every tracked transaction has reached
// TransactionDone, or ctx is cancelled first. It is idempotent: a second
// call returns immediately (spec Invariant, P6 "idempotent shutdown").
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.stopMu.Lock()
	if d.stopped {
		d.stopMu.Unlock()
		return nil
	}
	d.stopped = true
	d.stopMu.Unlock()

	var done = make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info("dispatcher shut down cleanly")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// InvokeSchematic starts one transaction running req.Schematic, feeding it
// from in, and returns its output stream and transaction id. This is the
// dispatcher's public entry point (spec §5's invoke(invocation,
// input_stream) -> output_stream).
func (d *Dispatcher) InvokeSchematic(ctx context.Context, req Request, in <-chan packet.Packet) (<-chan packet.Packet, uuid.UUID, error) {
	return d.invoke(ctx, req.Schematic, req.Inherent, req.RuntimeConfig, in)
}

func (d *Dispatcher) invoke(ctx context.Context, schematicName string, inherent component.InherentData, runtimeConfig json.RawMessage, in <-chan packet.Packet) (<-chan packet.Packet, uuid.UUID, error) {
	d.mu.RLock()
	s, ok := d.graph.Schematic(schematicName)
	d.mu.RUnlock()
	if !ok {
		return nil, uuid.UUID{}, fmt.Errorf("no schematic named %q", schematicName)
	}

	var e *transaction.Executor
	var completionObserver = transaction.ObserverFunc(func(_ int, ev transaction.Event, _ transaction.StateView) {
		if ev.Kind == transaction.TransactionDone {
			d.untrack(e.ID())
		}
	})
	var observers = append(append([]transaction.Observer{}, d.opts.Observers...), completionObserver)

	e = transaction.NewExecutor(s, d.registry, inherent, transaction.Options{
		Observers:     observers,
		Logger:        d.log,
		HangWindow:    d.opts.HangWindow,
		ErrorOnHung:   d.opts.ErrorOnHung,
		RuntimeConfig: runtimeConfig,
	})

	d.track(e)
	e.Run(ctx)

	go func() {
		for p := range in {
			e.Feed(p)
		}
	}()

	return e.Output(), e.ID(), nil
}

func (d *Dispatcher) track(e *transaction.Executor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txns[e.ID()] = e
	d.wg.Add(1)
}

func (d *Dispatcher) untrack(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.txns[id]; !ok {
		return
	}
	delete(d.txns, id)
	d.wg.Done()
}

// SchematicPorts implements component.SelfInvoker, answered from the
// Config directly so it is available during graph.Build, before the Graph
// it will eventually also be answerable from exists.
func (d *Dispatcher) SchematicPorts(schematic string) (inputs, outputs []string, ok bool) {
	p, ok := d.portIndex[schematic]
	if !ok {
		return nil, nil, false
	}
	return p.inputs, p.outputs, true
}

// Invoke implements component.SelfInvoker: it runs schematic as a
// complete, independent transaction and returns its output stream. This is
// the runtime half of the self:: namespace; by the time any transaction
// can reach here, New has long since finished building d.graph.
func (d *Dispatcher) Invoke(ctx context.Context, schematic string, inv component.Invocation, in <-chan packet.Packet) (<-chan packet.Packet, error) {
	out, _, err := d.invoke(ctx, schematic, inv.Inherent, nil, in)
	return out, err
}

var _ component.SelfInvoker = (*Dispatcher)(nil)
