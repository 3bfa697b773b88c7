// Package tracker implements a reusable counting barrier for a dynamically
// growing set of tasks.
//
// Callers Register a task before it is dispatched and Complete it once it has
// finished. A task that discovers more work must Register every child before
// it Completes itself; otherwise the count can touch zero while children are
// still on their way and AwaitZero returns early.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNegativeOutstanding is the panic value raised by Complete when no task is outstanding.
var ErrNegativeOutstanding = errors.New("tracker: complete called with no outstanding tasks")

// Tracker counts outstanding tasks and releases waiters when the count returns to zero.
type Tracker struct {
	mu          sync.Mutex
	outstanding int64
	generation  uint64
	registered  uint64
	completed   uint64
	zero        chan struct{}
}

// New returns a Tracker with no outstanding tasks.
func New() *Tracker {
	return &Tracker{zero: make(chan struct{})}
}

// Register adds one outstanding task.
func (t *Tracker) Register() {
	t.mu.Lock()
	t.outstanding++
	t.registered++
	t.mu.Unlock()
}

// Complete removes one outstanding task. Reaching zero closes the current
// generation and opens the next one. Completing with nothing outstanding is a
// programming error and panics, like a negative sync.WaitGroup counter.
func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outstanding == 0 {
		panic(ErrNegativeOutstanding)
	}
	t.outstanding--
	t.completed++
	if t.outstanding == 0 {
		close(t.zero)
		t.zero = make(chan struct{})
		t.generation++
	}
}

// AwaitZero blocks until the outstanding count of the current generation
// reaches zero. It returns immediately when nothing is outstanding.
func (t *Tracker) AwaitZero(ctx context.Context) error {
	t.mu.Lock()
	if t.outstanding == 0 {
		t.mu.Unlock()
		return nil
	}
	zero := t.zero
	t.mu.Unlock()

	select {
	case <-zero:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("await zero: %w", ctx.Err())
	}
}

// Outstanding returns the number of registered tasks not yet completed.
func (t *Tracker) Outstanding() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outstanding
}

// Generation returns how many times the count has returned to zero.
func (t *Tracker) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

// Totals returns the lifetime number of Register and Complete calls.
func (t *Tracker) Totals() (registered, completed uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.registered, t.completed
}
