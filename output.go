package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"quickledger/internal/command"
	"quickledger/internal/engine"
)

var (
	infoc    = color.New(color.FgCyan)
	successc = color.New(color.FgGreen)
	warnc    = color.New(color.FgYellow)
	errorc   = color.New(color.BgRed, color.FgWhite)
	statusc  = color.New(color.Faint)
)

// terminal prints session events as coloured lines. Learning reports from the
// background, so writes are serialized.
type terminal struct {
	mu     sync.Mutex
	out    io.Writer
	status string
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out}
}

func (t *terminal) Emit(ev engine.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Level {
	case engine.Success:
		successc.Fprintf(t.out, "✓ %s\n", ev.Message)
	case engine.Warning:
		warnc.Fprintf(t.out, "! %s\n", ev.Message)
	case engine.Error:
		errorc.Fprintf(t.out, " ERROR: %s ", ev.Message)
		fmt.Fprintln(t.out)
	default:
		infoc.Fprintf(t.out, "· %s\n", ev.Message)
	}
}

func (t *terminal) Status(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

func (t *terminal) prompt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	statusc.Fprintf(t.out, "[%s] ", t.status)
	fmt.Fprint(t.out, "> ")
}

// printLines writes the body of a result; the message itself was already
// emitted as an event.
func (t *terminal) printLines(res command.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range res.Lines {
		fmt.Fprintln(t.out, "  "+l)
	}
}
