package channel

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/mattjoyce/relaybus/internal/command"
	"github.com/mattjoyce/relaybus/internal/log"
)

const (
	// pipeQueueDepth bounds commands waiting for the writer goroutine.
	// Send drops instead of blocking once the queue is full.
	pipeQueueDepth = 256

	// maxEnvelopeBytes caps a single inbound envelope line.
	maxEnvelopeBytes = 1024 * 1024
)

// Pipe writes newline-delimited JSON envelopes to the peer process, usually
// across a stdio pipe. Encoding and writing happen on a dedicated goroutine
// so Send returns immediately; write errors are absorbed.
type Pipe struct {
	queue chan command.Command

	closeOnce sync.Once
	done      chan struct{}
}

// NewPipe starts a pipe channel writing envelopes to w.
func NewPipe(w io.Writer) *Pipe {
	p := &Pipe{
		queue: make(chan command.Command, pipeQueueDepth),
		done:  make(chan struct{}),
	}
	go p.writeLoop(w)
	return p
}

func (p *Pipe) Send(cmd command.Command) {
	select {
	case <-p.done:
	case p.queue <- cmd:
	default:
		// Queue full: the peer is not draining. Fire-and-forget means drop.
	}
}

// Close stops the writer goroutine. Queued commands are discarded.
func (p *Pipe) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Pipe) writeLoop(w io.Writer) {
	bw := bufio.NewWriter(w)
	for {
		select {
		case <-p.done:
			return
		case cmd := <-p.queue:
			data, err := command.Encode(cmd)
			if err != nil {
				continue
			}
			if _, err := bw.Write(data); err != nil {
				continue
			}
			if err := bw.WriteByte('\n'); err != nil {
				continue
			}
			_ = bw.Flush()
		}
	}
}

// Receiver reads envelopes line by line from the peer and hands decoded
// commands to the sink in arrival order. Malformed envelopes are rejected at
// this boundary and reported to the diagnostic logger, never forwarded.
type Receiver struct {
	r      io.Reader
	sink   Sink
	logger *slog.Logger
}

func NewReceiver(r io.Reader, sink Sink) *Receiver {
	return &Receiver{
		r:      r,
		sink:   sink,
		logger: log.WithComponent("channel"),
	}
}

// Run blocks until the reader is exhausted or ctx is cancelled. Malformed
// and oversized lines are both rejected without stopping the loop: losing one
// envelope must never cost the envelopes behind it.
func (rc *Receiver) Run(ctx context.Context) error {
	br := bufio.NewReaderSize(rc.r, 64*1024)

	for {
		line, err := nextLine(br)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if errors.Is(err, errEnvelopeTooLong) {
			rc.logger.Warn("rejected inbound envelope", "error", err)
			continue
		}

		if len(line) > 0 {
			cmd, derr := command.Decode(line)
			if derr != nil {
				rc.logger.Warn("rejected inbound envelope", "error", derr)
			} else {
				rc.sink.Dispatch(cmd)
			}
		}

		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

var errEnvelopeTooLong = errors.New("envelope exceeds size limit")

// nextLine reads one newline-terminated line, newline stripped. A line longer
// than maxEnvelopeBytes is consumed to its end and reported as
// errEnvelopeTooLong, leaving the reader positioned at the next line.
func nextLine(br *bufio.Reader) ([]byte, error) {
	var line []byte
	oversized := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !oversized {
			line = append(line, chunk...)
			if len(line) > maxEnvelopeBytes+1 {
				oversized = true
				line = nil
			}
		}

		switch err {
		case bufio.ErrBufferFull:
			continue
		case nil, io.EOF:
			line = bytes.TrimSuffix(line, []byte{'\n'})
			if oversized || len(line) > maxEnvelopeBytes {
				return nil, errEnvelopeTooLong
			}
			return line, err
		default:
			return nil, err
		}
	}
}
