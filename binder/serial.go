package binder

import (
	"context"
	"sync"

	"github.com/wippyai/binderkit/errors"
)

type serialCall struct {
	fn   func() error
	done chan error
}

// serialQueue runs posted calls one at a time in FIFO order. A drain
// goroutine is started when the queue becomes non-empty and exits when it
// empties again. A handler that calls back into its own Local deadlocks.
type serialQueue struct {
	mu      sync.Mutex
	pending []*serialCall
	running bool
}

func (q *serialQueue) post(ctx context.Context, fn func() error) error {
	c := &serialCall{fn: fn, done: make(chan error, 1)}

	q.mu.Lock()
	q.pending = append(q.pending, c)
	if !q.running {
		q.running = true
		go q.drain()
	}
	q.mu.Unlock()

	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		if q.withdraw(c) {
			return errors.Wrap(errors.PhaseTransact, errors.KindTimedOut, ctx.Err(), "queued call abandoned")
		}
		// Already running: the parcels stay in use until it returns.
		return <-c.done
	}
}

func (q *serialQueue) withdraw(c *serialCall) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.pending {
		if p == c {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (q *serialQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		c := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		c.done <- c.fn()
	}
}
