package logstore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/relaybus/internal/command"
	"github.com/mattjoyce/relaybus/internal/severity"
)

// chanRelay captures relayed commands for inspection.
type chanRelay struct {
	ch chan command.Command
}

func newChanRelay() *chanRelay {
	return &chanRelay{ch: make(chan command.Command, 64)}
}

func (r *chanRelay) Send(cmd command.Command) {
	select {
	case r.ch <- cmd:
	default:
	}
}

// panicRelay fails every send, like a dead peer transport.
type panicRelay struct{}

func (panicRelay) Send(command.Command) { panic("transport gone") }

func TestRecordIDsStrictlyIncreasing(t *testing.T) {
	s := New(100, newChanRelay())

	for i := 0; i < 50; i++ {
		e := s.Record(severity.Info, "msg", Options{})
		require.Equal(t, int64(i), e.ID)
	}

	logs := s.Logs(Filter{})
	require.Len(t, logs, 50)
	for i, e := range logs {
		assert.Equal(t, int64(i), e.ID, "entry %d out of order", i)
	}
}

func TestCapacityEvictsOldestFIFO(t *testing.T) {
	s := New(0, newChanRelay()) // default 10000
	require.Equal(t, DefaultCapacity, s.Capacity())

	total := DefaultCapacity + 50
	for i := 0; i < total; i++ {
		s.Record(severity.Debug, "msg", Options{})
	}

	require.Equal(t, DefaultCapacity, s.Count())

	logs := s.Logs(Filter{})
	require.Len(t, logs, DefaultCapacity)
	assert.Equal(t, int64(50), logs[0].ID, "oldest 50 should be evicted")
	assert.Equal(t, int64(total-1), logs[len(logs)-1].ID)
}

func TestClearResetsIDCounter(t *testing.T) {
	s := New(10, newChanRelay())

	s.Record(severity.Info, "one", Options{})
	s.Record(severity.Info, "two", Options{})
	require.Equal(t, 2, s.Count())
	require.Equal(t, int64(0), s.Generation())

	s.Clear()
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, int64(1), s.Generation())

	e := s.Record(severity.Info, "after clear", Options{})
	assert.Equal(t, int64(0), e.ID, "id counter must restart at zero")
}

func TestSubscribersNotifiedInSubscriptionOrder(t *testing.T) {
	s := New(10, newChanRelay())

	var order []string
	s.Subscribe(func(Entry) { order = append(order, "first") })
	s.Subscribe(func(Entry) { order = append(order, "second") })
	s.Subscribe(func(Entry) { order = append(order, "third") })

	s.Record(severity.Info, "msg", Options{})

	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestPanickingListenerIsIsolated(t *testing.T) {
	s := New(10, newChanRelay())

	var got []Entry
	s.Subscribe(func(Entry) { panic("listener bug") })
	s.Subscribe(func(e Entry) { got = append(got, e) })

	s.Record(severity.Warn, "first", Options{})
	require.Len(t, got, 1, "second listener must still be notified")

	// The store must stay healthy: another record notifies again and the
	// panic produced no extra entry.
	s.Record(severity.Warn, "second", Options{})
	require.Len(t, got, 2)
	assert.Equal(t, 2, s.Count())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	s := New(10, newChanRelay())

	var a, b int
	cancelA := s.Subscribe(func(Entry) { a++ })
	s.Subscribe(func(Entry) { b++ })

	s.Record(severity.Info, "one", Options{})
	cancelA()
	cancelA() // second call is a no-op
	s.Record(severity.Info, "two", Options{})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestLogsFiltering(t *testing.T) {
	s := New(10, newChanRelay())

	s.Record(severity.Error, "disk failure", Options{Stack: "at X", Source: "FileLoader"})
	s.Record(severity.Info, "ready", Options{})

	errLevel := severity.Error
	errs := s.Logs(Filter{Level: &errLevel})
	require.Len(t, errs, 1)
	assert.Equal(t, int64(0), errs[0].ID)
	assert.Equal(t, "disk failure", errs[0].Message)

	bySource := s.Logs(Filter{Source: "FileLoader"})
	require.Len(t, bySource, 1)
	assert.Equal(t, "disk failure", bySource[0].Message)

	all := s.Logs(Filter{})
	require.Len(t, all, 2)
	assert.Equal(t, int64(0), all[0].ID)
	assert.Equal(t, int64(1), all[1].ID)
}

func TestRecordCopiesContextMap(t *testing.T) {
	s := New(10, newChanRelay())

	payload := map[string]any{"attempt": 1}
	s.Record(severity.Warn, "retrying", Options{Context: payload})

	// Mutating the caller's map after Record must not touch the stored entry.
	payload["attempt"] = 2
	payload["extra"] = "late"

	got := s.Logs(Filter{})
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Context["attempt"])
	assert.NotContains(t, got[0].Context, "extra")
}

func TestRecordRelaysEntryAsLogCommand(t *testing.T) {
	relay := newChanRelay()
	s := New(10, relay)

	s.Record(severity.Error, "disk failure", Options{Stack: "at X", Source: "FileLoader"})

	select {
	case cmd := <-relay.ch:
		lc, ok := cmd.(command.Log)
		require.True(t, ok, "relayed command must be a log command, got %T", cmd)
		assert.Equal(t, severity.Error, lc.Level)
		assert.Equal(t, "disk failure", lc.Message)
		assert.Equal(t, "at X", lc.Stack)
		assert.Equal(t, "FileLoader", lc.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("entry was not relayed")
	}
}

func TestRelayFailureIsInvisible(t *testing.T) {
	s := New(10, panicRelay{})

	var notified int
	s.Subscribe(func(Entry) { notified++ })

	s.Record(severity.Info, "msg", Options{})

	// Give the relay goroutine time to panic and be swallowed.
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, notified)
	assert.Equal(t, 1, s.Count(), "relay failure must not produce a new entry")
}

func TestListenerMayCallBackIntoStore(t *testing.T) {
	s := New(10, newChanRelay())

	var counts []int
	s.Subscribe(func(Entry) {
		counts = append(counts, s.Count())
	})

	s.Record(severity.Info, "msg", Options{})
	require.Equal(t, []int{1}, counts)
}

func TestConcurrentRecordKeepsIDsUnique(t *testing.T) {
	s := New(1000, newChanRelay())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Record(severity.Debug, "msg", Options{})
			}
		}()
	}
	wg.Wait()

	logs := s.Logs(Filter{})
	require.Len(t, logs, 800)
	seen := make(map[int64]bool, len(logs))
	for _, e := range logs {
		require.False(t, seen[e.ID], "duplicate id %d", e.ID)
		seen[e.ID] = true
	}
}
