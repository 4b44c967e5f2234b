package syncx

import (
	"context"
	"sync"
	"time"

	"github.com/wippyai/binderkit/errors"
)

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// ConditionVariable is an open/close gate. It starts closed: Wait blocks.
// Broadcast releases the goroutines waiting right now and leaves the
// variable closed for the next round; Open releases them and keeps later
// waits from blocking until Close. The zero value is a closed variable.
type ConditionVariable struct {
	mu   sync.Mutex
	open bool
	wake chan struct{}
}

// NewConditionVariable returns a closed condition variable.
func NewConditionVariable() *ConditionVariable {
	return &ConditionVariable{}
}

func (c *ConditionVariable) waitChan() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return closedChan
	}
	if c.wake == nil {
		c.wake = make(chan struct{})
	}
	return c.wake
}

// Wait blocks until the next Broadcast or Open.
func (c *ConditionVariable) Wait() {
	<-c.waitChan()
}

// WaitTimeout waits at most d and returns ErrTimedOut when d elapses first.
func (c *ConditionVariable) WaitTimeout(d time.Duration) error {
	ch := c.waitChan()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return ErrTimedOut
	}
}

// WaitUntil waits until the absolute deadline.
func (c *ConditionVariable) WaitUntil(deadline time.Time) error {
	return c.WaitTimeout(time.Until(deadline))
}

// WaitContext waits until released or ctx is done.
func (c *ConditionVariable) WaitContext(ctx context.Context) error {
	select {
	case <-c.waitChan():
		return nil
	case <-ctx.Done():
		return timedOut("condition variable", ctx.Err())
	}
}

// Open releases all waiters and lets later waits pass until Close.
func (c *ConditionVariable) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	if c.wake != nil {
		close(c.wake)
		c.wake = nil
	}
}

// Close makes later waits block again.
func (c *ConditionVariable) Close() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

// Broadcast wakes the current waiters once. Broadcasting an open variable
// is a contract violation: nobody can be waiting on it.
func (c *ConditionVariable) Broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		errors.Fatalf(errors.PhaseSync, "broadcast on open condition variable")
	}
	if c.wake != nil {
		close(c.wake)
		c.wake = nil
	}
}

// IsOpen reports the level state.
func (c *ConditionVariable) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Event is a one-shot latch. Set is idempotent.
type Event struct {
	once sync.Once
	done chan struct{}
	init sync.Once
}

func (e *Event) ch() chan struct{} {
	e.init.Do(func() { e.done = make(chan struct{}) })
	return e.done
}

// Set fires the event.
func (e *Event) Set() {
	ch := e.ch()
	e.once.Do(func() { close(ch) })
}

// Done returns a channel closed once the event is set.
func (e *Event) Done() <-chan struct{} {
	return e.ch()
}

// IsSet reports whether Set has been called.
func (e *Event) IsSet() bool {
	select {
	case <-e.ch():
		return true
	default:
		return false
	}
}

// WaitContext blocks until Set or ctx is done.
func (e *Event) WaitContext(ctx context.Context) error {
	select {
	case <-e.ch():
		return nil
	case <-ctx.Done():
		return timedOut("event", ctx.Err())
	}
}

// WaitTimeout blocks at most d.
func (e *Event) WaitTimeout(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-e.ch():
		return nil
	case <-timer.C:
		return ErrTimedOut
	}
}
