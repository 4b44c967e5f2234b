package syncx

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wippyai/binderkit/errors"
)

// Mutex is a blocking lock that enforces its protocol: unlocking a mutex
// that is not held is a contract violation. Waiters queue in FIFO order
// and a context-bound wait wakes as soon as the lock is handed over. The
// zero value is unlocked.
type Mutex struct {
	// Name appears in violation messages.
	Name string

	once   sync.Once
	sem    *semaphore.Weighted
	locked atomic.Bool
}

func (m *Mutex) weighted() *semaphore.Weighted {
	m.once.Do(func() { m.sem = semaphore.NewWeighted(1) })
	return m.sem
}

// Lock blocks until the mutex is held.
func (m *Mutex) Lock() {
	// Acquire only fails when its context is done.
	_ = m.weighted().Acquire(context.Background(), 1)
	m.locked.Store(true)
}

// TryLock acquires the mutex without blocking. It returns a would_block
// error when the mutex is already held.
func (m *Mutex) TryLock() error {
	if !m.weighted().TryAcquire(1) {
		return errors.New(errors.PhaseSync, errors.KindWouldBlock).
			Detail("mutex %q held", m.Name).Build()
	}
	m.locked.Store(true)
	return nil
}

// LockTimeout waits at most d for the mutex.
func (m *Mutex) LockTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return m.LockContext(ctx)
}

// LockContext waits for the mutex until ctx is done and reports timed_out
// when it gives up.
func (m *Mutex) LockContext(ctx context.Context) error {
	if err := m.weighted().Acquire(ctx, 1); err != nil {
		return timedOut("mutex "+m.Name, err)
	}
	m.locked.Store(true)
	return nil
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() {
	if !m.locked.CompareAndSwap(true, false) {
		errors.Fatalf(errors.PhaseSync, "unlock of unlocked mutex %q", m.Name)
	}
	m.weighted().Release(1)
}

// IsLocked reports whether the mutex is currently held by anyone.
func (m *Mutex) IsLocked() bool {
	return m.locked.Load()
}

// ErrTimedOut is the status returned by timed waits that expire.
var ErrTimedOut = &errors.Error{Phase: errors.PhaseSync, Kind: errors.KindTimedOut, Detail: "wait timed out"}

func timedOut(what string, cause error) error {
	return &errors.Error{
		Phase:  errors.PhaseSync,
		Kind:   errors.KindTimedOut,
		Detail: what,
		Cause:  cause,
	}
}
