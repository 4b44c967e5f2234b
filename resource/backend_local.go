package resource

import (
	"sync"

	"github.com/wippyai/binderkit/errors"
)

// ErrClosed is returned by Create after Close.
var ErrClosed = errors.Closed(errors.PhaseTransport, "resource backend")

// LocalBackend is an in-memory export store with strong/weak reference
// counts. Freed handles are reused.
type LocalBackend struct {
	entries  []entry
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value  any
	kind   uint32
	counts Counts
	valid  bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(kind uint32, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	e := entry{
		kind:  kind,
		value: value,
		valid: true,
	}

	if len(b.freeList) > 0 {
		handle := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		b.entries[handle-1] = e
		return handle, nil
	}

	b.entries = append(b.entries, e)
	return Handle(len(b.entries)), nil
}

// lookup returns the live entry for handle. Callers hold b.mu.
func (b *LocalBackend) lookup(handle Handle) *entry {
	if handle == 0 || int(handle) > len(b.entries) {
		return nil
	}
	e := &b.entries[handle-1]
	if !e.valid {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// Kind returns the kind recorded for a handle.
func (b *LocalBackend) Kind(handle Handle) (uint32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return 0, false
	}
	return e.kind, true
}

// Counts returns the reference counts of a handle.
func (b *LocalBackend) Counts(handle Handle) (Counts, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return Counts{}, false
	}
	return e.counts, true
}

// Acquire adds a strong or weak reference to a handle.
func (b *LocalBackend) Acquire(handle Handle, weak bool) (Counts, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil {
		return Counts{}, false
	}
	if weak {
		e.counts.Weak++
	} else {
		e.counts.Strong++
	}
	return e.counts, true
}

// Release drops a strong or weak reference. It fails when the count is
// already zero.
func (b *LocalBackend) Release(handle Handle, weak bool) (Counts, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil {
		return Counts{}, false
	}
	c := &e.counts.Strong
	if weak {
		c = &e.counts.Weak
	}
	if *c == 0 {
		return e.counts, false
	}
	*c--
	return e.counts, true
}

// Drop removes a value with no outstanding references and returns it.
func (b *LocalBackend) Drop(handle Handle) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil || !e.counts.Zero() {
		return nil, false
	}

	value := e.value
	*e = entry{}
	b.freeList = append(b.freeList, handle)
	return value, true
}

// Evict removes a value whatever its counts and returns the counts it held.
func (b *LocalBackend) Evict(handle Handle) (any, Counts, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil {
		return nil, Counts{}, false
	}

	value, counts := e.value, e.counts
	*e = entry{}
	b.freeList = append(b.freeList, handle)
	return value, counts, true
}

// Close releases all values, calling Drop on those implementing Dropper.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	entries := b.entries
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.entries = nil
	b.freeList = nil
	b.mu.Unlock()

	for i := range entries {
		if entries[i].valid {
			if d, ok := entries[i].value.(Dropper); ok {
				d.Drop()
			}
		}
	}
	return nil
}

// Len returns the number of live exports.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.entries) - len(b.freeList)
}

// Each iterates over all live exports until fn returns false.
func (b *LocalBackend) Each(fn func(Handle, uint32, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(Handle(i+1), e.kind, e.value) {
				break
			}
		}
	}
}
