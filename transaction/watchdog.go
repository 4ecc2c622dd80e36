package transaction

import (
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// watchdog advisorially detects a transaction that has stopped making
// progress (spec §4.4 "Completion", §7 "Hung transaction"). It never
// mutates executor state directly (only the executor goroutine may do
// that); it posts a Ping or Hung event instead, the same indirection the
// teacher uses for its ring's cancellation signal (estuary-flow's
// go/shuffle/ring.go select loop).
type watchdog struct {
	window      time.Duration
	errorOnHung bool
	seq         *atomic.Int64
	events      eventSink
	log         *log.Entry
}

func newWatchdog(window time.Duration, errorOnHung bool, seq *atomic.Int64, events eventSink, logger *log.Entry) *watchdog {
	return &watchdog{window: window, errorOnHung: errorOnHung, seq: seq, events: events, log: logger}
}

// run blocks until stop is closed, periodically checking whether seq has
// advanced since the last tick. A stalled transaction logs and posts a
// Hung event; the executor decides whether that aborts the transaction or
// only adds an error-stream entry, based on ForceAbort.
func (w *watchdog) run(stop <-chan struct{}) {
	if w.window <= 0 {
		return
	}
	var ticker = time.NewTicker(w.window)
	defer ticker.Stop()

	var last int64 = -1
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			var cur = w.seq.Load()
			if cur == last {
				w.log.WithField("hung", w.errorOnHung).Warn("transaction has not progressed within watchdog window")
				w.events.Push(Event{Kind: Hung, ForceAbort: w.errorOnHung, AtUnixNano: now.UnixNano()})
			} else {
				w.events.Push(Event{Kind: Ping, AtUnixNano: now.UnixNano()})
			}
			last = cur
		}
	}
}
