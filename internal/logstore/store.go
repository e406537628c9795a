// Package logstore is the bounded, ordered, subscribable repository of
// diagnostic entries. It owns entry identity: entries are created only by
// Record, never mutated, and destroyed only by eviction or Clear.
package logstore

import (
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/relaybus/internal/channel"
	"github.com/mattjoyce/relaybus/internal/command"
	"github.com/mattjoyce/relaybus/internal/log"
	"github.com/mattjoyce/relaybus/internal/severity"
)

// DefaultCapacity bounds the store; once full, the oldest entry is evicted
// for each new one.
const DefaultCapacity = 10000

// Entry is one diagnostic record. IDs are strictly increasing between Clear
// calls; no two live entries share an id.
type Entry struct {
	ID      int64             `json:"id"`
	At      time.Time         `json:"at"`
	Level   severity.Severity `json:"level"`
	Message string            `json:"message"`
	Stack   string            `json:"stack,omitempty"`
	Source  string            `json:"source,omitempty"`
	Context map[string]any    `json:"context,omitempty"`
}

// Listener observes every new entry, synchronously, in subscription order.
type Listener func(Entry)

// Options carries the optional fields of Record.
type Options struct {
	Stack   string
	Source  string
	Context map[string]any
}

// Filter selects entries by exact severity and/or source tag. The zero value
// matches everything.
type Filter struct {
	Level  *severity.Severity
	Source string
}

type subscriber struct {
	id int
	fn Listener
}

// Store holds entries in a fixed ring, oldest first. State mutation happens
// under mu; listener notification happens after the mutation completes, so a
// listener may call back into the store.
type Store struct {
	relay  channel.Channel
	logger *slog.Logger

	mu         sync.Mutex
	nextID     int64
	generation int64
	ring       []Entry
	start      int
	size       int
	subs       []subscriber
	nextSubID  int
}

// New creates a store with the given capacity (<= 0 means DefaultCapacity)
// relaying entries on relay. A nil relay falls back to the console channel so
// a missing peer never breaks logging.
func New(capacity int, relay channel.Channel) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if relay == nil {
		relay = channel.NewConsole(nil)
	}
	return &Store{
		relay:  relay,
		logger: log.WithComponent("logstore"),
		ring:   make([]Entry, capacity),
	}
}

// Record creates the next entry, appends it (evicting the oldest past
// capacity), notifies subscribers in subscription order, and hands the entry
// to the relay channel best-effort. Returns the new entry.
//
// A panicking listener is isolated: the panic goes to the diagnostic logger,
// remaining listeners still run, and no new entry is produced for it. Relay
// failures are swallowed entirely; logging failures are never logged.
func (s *Store) Record(level severity.Severity, message string, opts Options) Entry {
	s.mu.Lock()
	e := Entry{
		ID:      s.nextID,
		At:      time.Now().UTC(),
		Level:   level,
		Message: message,
		Stack:   opts.Stack,
		Source:  opts.Source,
		// Entries are immutable once created; the caller keeps its map.
		Context: maps.Clone(opts.Context),
	}
	s.nextID++
	s.pushLocked(e)
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		s.notify(sub, e)
	}

	go s.relayEntry(e)
	return e
}

func (s *Store) notify(sub subscriber, e Entry) {
	defer func() {
		if r := recover(); r != nil {
			// Side diagnostic channel only. Recording the failure would
			// re-enter notification and can loop forever.
			s.logger.Error("log listener panicked", "listener", sub.id, "panic", r)
		}
	}()
	sub.fn(e)
}

func (s *Store) relayEntry(e Entry) {
	defer func() {
		_ = recover() // relay failures are invisible, by contract
	}()
	s.relay.Send(command.Log{
		Meta:    command.Meta{ID: uuid.NewString(), At: e.At},
		Level:   e.Level,
		Message: e.Message,
		Stack:   e.Stack,
		Source:  e.Source,
	})
}

// Subscribe registers fn and returns a cancel func that removes exactly this
// subscription. Cancelling twice is a no-op.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Logs returns live entries matching f, in insertion order.
func (s *Store) Logs(f Filter) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, s.size)
	for i := 0; i < s.size; i++ {
		e := s.ring[(s.start+i)%len(s.ring)]
		if f.Level != nil && e.Level != *f.Level {
			continue
		}
		if f.Source != "" && e.Source != f.Source {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Count returns the number of live entries.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Clear empties the store and resets the id counter to zero. Post-clear
// entries reuse ids that earlier entries held; Generation disambiguates for
// observers that kept pre-clear ids.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = 0
	s.size = 0
	s.nextID = 0
	s.generation++
}

// Generation increments every Clear.
func (s *Store) Generation() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Capacity returns the fixed entry bound.
func (s *Store) Capacity() int {
	return len(s.ring)
}

func (s *Store) pushLocked(e Entry) {
	capacity := len(s.ring)
	if s.size < capacity {
		s.ring[(s.start+s.size)%capacity] = e
		s.size++
		return
	}

	// Overwrite oldest.
	s.ring[s.start] = e
	s.start = (s.start + 1) % capacity
}
