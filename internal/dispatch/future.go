package dispatch

import (
	"fmt"
	"sync"
)

// Future is the completion of a handler that keeps working after Dispatch
// returns. The dispatcher attaches the single failure continuation; there is
// no cancellation and no result value, only success or an error.
type Future struct {
	once sync.Once
	done chan error
}

// NewFuture returns an incomplete Future. The handler must eventually call
// Complete exactly once; later calls are ignored.
func NewFuture() *Future {
	return &Future{done: make(chan error, 1)}
}

// Complete resolves the future. A nil err means success.
func (f *Future) Complete(err error) {
	f.once.Do(func() { f.done <- err })
}

// Done yields the completion error (or nil) once.
func (f *Future) Done() <-chan error {
	return f.done
}

// Go runs fn on its own goroutine and returns its Future. A panic in fn
// resolves the future with an error instead of crashing the process.
func Go(fn func() error) *Future {
	f := NewFuture()
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
			f.Complete(err)
		}()
		err = fn()
	}()
	return f
}
