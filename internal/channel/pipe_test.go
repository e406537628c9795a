package channel

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattjoyce/relaybus/internal/command"
	"github.com/mattjoyce/relaybus/internal/severity"
)

// collectSink records dispatched commands in arrival order.
type collectSink struct {
	mu   sync.Mutex
	cmds []command.Command
}

func (s *collectSink) Dispatch(cmd command.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, cmd)
}

func (s *collectSink) snapshot() []command.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]command.Command(nil), s.cmds...)
}

// syncWriter makes a bytes.Buffer safe for the pipe writer goroutine.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPipeWritesEnvelopeLines(t *testing.T) {
	w := &syncWriter{}
	p := NewPipe(w)
	defer p.Close()

	p.Send(command.Ping{Meta: command.NewMeta(), Nonce: "a"})
	p.Send(command.Log{Meta: command.NewMeta(), Level: severity.Warn, Message: "careful"})

	waitFor(t, func() bool {
		return strings.Count(w.String(), "\n") == 2
	})

	lines := strings.Split(strings.TrimRight(w.String(), "\n"), "\n")
	if !strings.Contains(lines[0], `"kind":"ping"`) {
		t.Errorf("first line = %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":6`) {
		t.Errorf("second line = %s", lines[1])
	}
}

func TestPipeSendAfterCloseIsNoop(t *testing.T) {
	w := &syncWriter{}
	p := NewPipe(w)
	p.Close()

	// Must not panic or block.
	p.Send(command.Ping{Meta: command.NewMeta()})
}

func TestReceiverDeliversInArrivalOrder(t *testing.T) {
	input := strings.Join([]string{
		`{"kind":"ping","nonce":"1","timestamp":1}`,
		``,
		`{"kind":"reload","timestamp":2}`,
		`{"kind":"shutdown","reason":"done","timestamp":3}`,
	}, "\n")

	sink := &collectSink{}
	rc := NewReceiver(strings.NewReader(input), sink)
	if err := rc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := sink.snapshot()
	if len(got) != 3 {
		t.Fatalf("delivered %d commands, want 3", len(got))
	}
	wantKinds := []command.Kind{command.KindPing, command.KindReload, command.KindShutdown}
	for i, k := range wantKinds {
		if got[i].CommandKind() != k {
			t.Errorf("cmd[%d].Kind = %s, want %s", i, got[i].CommandKind(), k)
		}
	}
}

func TestReceiverRejectsMalformedEnvelopes(t *testing.T) {
	input := strings.Join([]string{
		`this is not json`,
		`{"kind":"teleport","timestamp":1}`,
		`{"kind":"ping","timestamp":1}`,
	}, "\n")

	sink := &collectSink{}
	rc := NewReceiver(strings.NewReader(input), sink)
	if err := rc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := sink.snapshot()
	if len(got) != 1 || got[0].CommandKind() != command.KindPing {
		t.Fatalf("delivered %v, want just the ping", got)
	}
}

func TestReceiverSurvivesOversizedLine(t *testing.T) {
	// A line past the envelope cap must cost only itself, not the loop.
	huge := strings.Repeat("x", maxEnvelopeBytes+10)
	input := strings.Join([]string{
		huge,
		`{"kind":"reload","timestamp":2}`,
		`{"kind":"ping","nonce":"after","timestamp":3}`,
	}, "\n")

	sink := &collectSink{}
	rc := NewReceiver(strings.NewReader(input), sink)
	if err := rc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := sink.snapshot()
	if len(got) != 2 {
		t.Fatalf("delivered %d commands, want 2", len(got))
	}
	if got[0].CommandKind() != command.KindReload || got[1].CommandKind() != command.KindPing {
		t.Fatalf("delivered kinds %s, %s", got[0].CommandKind(), got[1].CommandKind())
	}
}

func TestReceiverRejectsOversizedFinalLine(t *testing.T) {
	// Oversized line with no trailing newline: reader ends cleanly.
	input := `{"kind":"ping","timestamp":1}` + "\n" +
		strings.Repeat("y", maxEnvelopeBytes+10)

	sink := &collectSink{}
	rc := NewReceiver(strings.NewReader(input), sink)
	if err := rc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := sink.snapshot()
	if len(got) != 1 || got[0].CommandKind() != command.KindPing {
		t.Fatalf("delivered %v, want just the ping", got)
	}
}

func TestReceiverStopsOnContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	sink := &collectSink{}
	rc := NewReceiver(pr, sink)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- rc.Run(ctx) }()

	if _, err := pw.Write([]byte(`{"kind":"ping","timestamp":1}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return len(sink.snapshot()) == 1 })

	cancel()
	if _, err := pw.Write([]byte(`{"kind":"reload","timestamp":2}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not stop after cancel")
	}
}

func TestConsoleFallback(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Send(command.Log{Meta: command.NewMeta(), Level: severity.Error, Message: "disk failure"})
	c.Send(command.Ping{Meta: command.NewMeta()})

	out := buf.String()
	if !strings.Contains(out, "[ERROR] disk failure") {
		t.Errorf("log line missing: %s", out)
	}
	if !strings.Contains(out, "dropped ping command") {
		t.Errorf("non-log line missing: %s", out)
	}
}

func TestLoopbackDeliversLocally(t *testing.T) {
	sink := &collectSink{}
	lb := NewLoopback(sink)

	lb.Send(command.Reload{Meta: command.NewMeta()})

	got := sink.snapshot()
	if len(got) != 1 || got[0].CommandKind() != command.KindReload {
		t.Fatalf("loopback delivered %v", got)
	}
}
