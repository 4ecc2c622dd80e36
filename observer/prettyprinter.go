// Package observer provides diagnostic transaction.Observer
// implementations (spec §6's observability surface). Nothing here affects
// execution; it only renders what the executor already did.
package observer

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/candlecorp/wick/transaction"
)

var (
	kindColor   = color.New(color.FgCyan, color.Bold)
	doneColor   = color.New(color.FgGreen)
	errColor    = color.New(color.FgRed, color.Bold)
	dimColor    = color.New(color.FgHiBlack)
	portColor   = color.New(color.FgYellow)
)

// PrettyPrinter renders every event of one transaction as a single
// human-readable line to w, in the teacher's "structured but terse" log
// style rather than as a json blob (cf. the CLI progress output a real
// embedder would want while developing a schematic).
type PrettyPrinter struct {
	w     io.Writer
	start time.Time
}

// NewPrettyPrinter returns a PrettyPrinter writing to w. started is the
// wall-clock time the transaction began, used to render a running elapsed
// offset on every line.
func NewPrettyPrinter(w io.Writer, started time.Time) *PrettyPrinter {
	return &PrettyPrinter{w: w, start: started}
}

func (p *PrettyPrinter) Observe(index int, ev transaction.Event, state transaction.StateView) {
	var elapsed = humanize.RelTime(p.start, time.Now(), "", "")
	var line string

	switch ev.Kind {
	case transaction.PacketData:
		if ev.Packet.Payload.IsError() {
			line = fmt.Sprintf("%s %s %s", errColor.Sprint("error"), portColor.Sprint(ev.Packet.PortName), ev.Packet.Payload.Err.Message)
			break
		}
		if ev.Packet.IsDone() {
			line = fmt.Sprintf("%s %s", doneColor.Sprint("done"), portColor.Sprint(ev.Packet.PortName))
			break
		}
		line = fmt.Sprintf("%s %s %s", kindColor.Sprint("packet"), portColor.Sprint(ev.Packet.PortName), humanize.Bytes(uint64(len(ev.Packet.Payload.Data))))
	case transaction.Invocation:
		line = fmt.Sprintf("%s node#%d", kindColor.Sprint("invoke"), ev.NodeIndex)
	case transaction.CallComplete:
		line = fmt.Sprintf("%s node#%d", kindColor.Sprint("complete"), ev.NodeIndex)
	case transaction.TransactionDone:
		line = doneColor.Sprint("transaction done")
	case transaction.Ping:
		line = dimColor.Sprint("ping")
	default:
		line = ev.Kind.String()
	}

	fmt.Fprintf(p.w, "%s [%d %s] %s\n", dimColor.Sprintf("txn=%s", short(state.TransactionID())), index, elapsed, line)
}

func short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

var _ transaction.Observer = (*PrettyPrinter)(nil)
