// Package channel provides the one-directional transports that move command
// envelopes between the UI and backend processes. A channel is fire-and-forget:
// Send never blocks, never reports an outcome, and never guarantees delivery.
// Each endpoint delivers inbound commands in arrival order, but no ordering
// holds between two distinct channel instances.
package channel

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattjoyce/relaybus/internal/command"
)

//go:generate mockgen -destination=mocks/mock_channel.go -package=mocks github.com/mattjoyce/relaybus/internal/channel Channel

// Channel is the outbound half of a transport. Implementations absorb their
// own failures; callers get no signal and must not depend on delivery.
type Channel interface {
	Send(cmd command.Command)
}

// Sink receives inbound commands from a transport endpoint, one at a time,
// in arrival order. The dispatcher implements this.
type Sink interface {
	Dispatch(cmd command.Command)
}

// Console is the fallback channel used when no transport is attached. It
// prints a minimal line per command so a missing peer is never fatal and
// log output is not lost entirely.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a console channel writing to w, or stderr when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stderr
	}
	return &Console{w: w}
}

func (c *Console) Send(cmd command.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch v := cmd.(type) {
	case command.Log:
		fmt.Fprintf(c.w, "[%s] %s\n", v.Level, v.Message)
	default:
		fmt.Fprintf(c.w, "dropped %s command (no transport attached)\n", cmd.CommandKind())
	}
}

// Loopback delivers commands directly to a local sink. Used for same-process
// wiring and tests, where the "peer" lives in the same address space.
type Loopback struct {
	sink Sink
}

func NewLoopback(sink Sink) *Loopback {
	return &Loopback{sink: sink}
}

func (l *Loopback) Send(cmd command.Command) {
	if l.sink == nil {
		return
	}
	l.sink.Dispatch(cmd)
}
