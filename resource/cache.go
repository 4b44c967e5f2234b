package resource

import (
	"sync"

	"github.com/wippyai/binderkit/atom"
)

// WeakCache maps handles to objects through weak references, so an entry
// never keeps its object alive. Lookups promote the weak reference and fail
// once the object has been finalized.
type WeakCache[T atom.Object] struct {
	entries map[Handle]*atom.WeakRef[T]
	mu      sync.Mutex
}

// NewWeakCache creates an empty cache.
func NewWeakCache[T atom.Object]() *WeakCache[T] {
	return &WeakCache[T]{entries: make(map[Handle]*atom.WeakRef[T])}
}

// Get returns a strong reference to the object cached under h.
func (c *WeakCache[T]) Get(h Handle, owner any) (*atom.Ref[T], bool) {
	c.mu.Lock()
	w, ok := c.entries[h]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return w.Promote(owner)
}

// GetOrCreate returns a strong reference to the object cached under h,
// calling create when there is none or the cached one is finalized. created
// reports whether the returned object is new.
func (c *WeakCache[T]) GetOrCreate(h Handle, owner any, create func() T) (ref *atom.Ref[T], created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.entries[h]; ok {
		if ref, ok := w.Promote(owner); ok {
			return ref, false
		}
		delete(c.entries, h)
		w.Release()
	}

	obj := create()
	ref = atom.Acquire(obj, owner)
	c.entries[h] = atom.NewWeak(obj, c)
	return ref, true
}

// Remove deletes the entry for h if it still refers to obj. Objects call it
// from their finalizer so a newer entry for a reused handle survives.
func (c *WeakCache[T]) Remove(h Handle, obj T) bool {
	c.mu.Lock()
	w, ok := c.entries[h]
	if !ok || w.Peek().RefAtom() != obj.RefAtom() {
		c.mu.Unlock()
		return false
	}
	delete(c.entries, h)
	c.mu.Unlock()

	w.Release()
	return true
}

// Len returns the number of entries, including finalized objects not yet
// removed.
func (c *WeakCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Each calls fn with every object that can still be promoted, holding a
// strong reference for the duration of the call.
func (c *WeakCache[T]) Each(owner any, fn func(Handle, T) bool) {
	c.mu.Lock()
	snapshot := make(map[Handle]*atom.WeakRef[T], len(c.entries))
	for h, w := range c.entries {
		snapshot[h] = w
	}
	c.mu.Unlock()

	for h, w := range snapshot {
		ref, ok := w.Promote(owner)
		if !ok {
			continue
		}
		more := fn(h, ref.Get())
		ref.Release()
		if !more {
			return
		}
	}
}

// Clear drops every entry and returns how many there were.
func (c *WeakCache[T]) Clear() int {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[Handle]*atom.WeakRef[T])
	c.mu.Unlock()

	for _, w := range entries {
		w.Release()
	}
	return len(entries)
}
