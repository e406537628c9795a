package dispatch

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/mattjoyce/relaybus/internal/channel"
	"github.com/mattjoyce/relaybus/internal/command"
	"github.com/mattjoyce/relaybus/internal/log"
	"github.com/mattjoyce/relaybus/internal/logstore"
	"github.com/mattjoyce/relaybus/internal/severity"
)

// sourceTag marks log entries produced by the dispatcher itself.
const sourceTag = "dispatch"

// Handler processes one command. It may finish synchronously (nil Future) or
// hand back a Future for work that completes later; in either case it is
// invoked at most once per inbound command.
type Handler func(cmd command.Command) (*Future, error)

// Dispatcher owns the kind -> handler registry. It implements channel.Sink,
// so transport receivers feed it directly.
type Dispatcher struct {
	store    *logstore.Store
	outbound channel.Channel
	logger   *slog.Logger

	mu       sync.Mutex
	registry map[command.Kind]Handler
}

// New creates a dispatcher logging through store and forwarding log commands
// on outbound. A nil outbound falls back to the console channel.
func New(store *logstore.Store, outbound channel.Channel) *Dispatcher {
	if outbound == nil {
		outbound = channel.NewConsole(nil)
	}
	return &Dispatcher{
		store:    store,
		outbound: outbound,
		logger:   log.WithComponent(sourceTag),
		registry: make(map[command.Kind]Handler),
	}
}

// Register binds kind to h. Re-registering a kind overwrites its handler.
func (d *Dispatcher) Register(kind command.Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registry[kind] = h
}

// Dispatch resolves and invokes the handler for cmd. It never returns an
// error and never panics: every failure mode ends as a log entry (or, for
// log commands, as a best-effort forward).
func (d *Dispatcher) Dispatch(cmd command.Command) {
	// Log commands are never looked up. They exist to cross the process
	// boundary, and re-entering them into dispatch could loop a failing
	// logger through itself.
	if cmd.CommandKind() == command.KindLog {
		d.outbound.Send(cmd)
		return
	}

	d.logger.Debug("dispatching command", "kind", cmd.CommandKind(), "id", cmd.CommandID())

	d.mu.Lock()
	h, ok := d.registry[cmd.CommandKind()]
	d.mu.Unlock()

	if !ok {
		d.store.Record(severity.Warn,
			fmt.Sprintf("no handler registered for kind %s", cmd.CommandKind()),
			logstore.Options{Source: sourceTag})
		return
	}

	fut, stack, err := d.invoke(h, cmd)
	if err != nil {
		d.recordFailure(cmd, err, stack)
		return
	}
	if fut == nil {
		return
	}

	// Failure continuation for deferred completion. Watching happens off the
	// dispatch path so the caller is never blocked.
	go func() {
		if err := <-fut.Done(); err != nil {
			d.recordFailure(cmd, err, "")
		}
	}()
}

func (d *Dispatcher) invoke(h Handler, cmd command.Command) (fut *Future, stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			fut = nil
			stack = string(debug.Stack())
			err = fmt.Errorf("%v", r)
		}
	}()
	fut, err = h(cmd)
	return fut, "", err
}

func (d *Dispatcher) recordFailure(cmd command.Command, err error, stack string) {
	d.store.Record(severity.Error,
		fmt.Sprintf("handler for kind %s failed: %v", cmd.CommandKind(), err),
		logstore.Options{Stack: stack, Source: sourceTag})
}
