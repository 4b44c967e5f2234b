package resource

import (
	"strconv"
	"sync"

	"github.com/wippyai/binderkit/errors"
)

// ExportTable maps handles to values exported to one peer. Each value is
// exported under a single handle for as long as the peer holds a strong or
// weak reference to it; the entry is dropped when both counts reach zero.
type ExportTable struct {
	backend   *LocalBackend
	index     map[any]Handle
	observers []Observer
	mu        sync.Mutex
	obsMu     sync.RWMutex
	closed    bool
}

// NewExportTable creates an empty table backed by a LocalBackend.
func NewExportTable() *ExportTable {
	return &ExportTable{
		backend: NewLocalBackend(),
		index:   make(map[any]Handle),
	}
}

func handleNotFound(h Handle) error {
	return errors.NotFound(errors.PhaseTransport, "handle", strconv.FormatUint(uint64(h), 10))
}

// Export adds a reference to value on behalf of the peer, creating the
// entry on first export. The value must be comparable.
func (t *ExportTable) Export(kind uint32, value any, weak bool) (Handle, Counts, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, Counts{}, errors.Closed(errors.PhaseTransport, "export table")
	}

	var events [2]Event
	n := 0
	h, ok := t.index[value]
	if !ok {
		var err error
		h, err = t.backend.Create(kind, value)
		if err != nil {
			t.mu.Unlock()
			return 0, Counts{}, err
		}
		t.index[value] = h
		events[n] = Event{Type: EventCreated, Handle: h, Kind: kind, Value: value}
		n++
	}
	counts, _ := t.backend.Acquire(h, weak)
	events[n] = Event{Type: EventAcquired, Handle: h, Kind: kind, Value: value, Counts: counts}
	n++
	t.mu.Unlock()

	for _, e := range events[:n] {
		t.notify(e)
	}
	return h, counts, nil
}

// Lookup returns the value exported under h.
func (t *ExportTable) Lookup(h Handle) (any, bool) {
	return t.backend.Get(h)
}

// HandleOf returns the handle value is exported under, if any.
func (t *ExportTable) HandleOf(value any) (Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.index[value]
	return h, ok
}

// Counts returns the peer's reference counts on h.
func (t *ExportTable) Counts(h Handle) (Counts, bool) {
	return t.backend.Counts(h)
}

// Acquire adds a reference to an existing export.
func (t *ExportTable) Acquire(h Handle, weak bool) (Counts, error) {
	t.mu.Lock()
	counts, ok := t.backend.Acquire(h, weak)
	t.mu.Unlock()
	if !ok {
		return Counts{}, handleNotFound(h)
	}

	value, _ := t.backend.Get(h)
	kind, _ := t.backend.Kind(h)
	t.notify(Event{Type: EventAcquired, Handle: h, Kind: kind, Value: value, Counts: counts})
	return counts, nil
}

// Release drops a reference. When no references remain the entry is
// removed, Dropper values are dropped and EventDropped is delivered.
func (t *ExportTable) Release(h Handle, weak bool) (Counts, error) {
	t.mu.Lock()
	value, ok := t.backend.Get(h)
	if !ok {
		t.mu.Unlock()
		return Counts{}, handleNotFound(h)
	}
	kind, _ := t.backend.Kind(h)
	counts, ok := t.backend.Release(h, weak)
	if !ok {
		t.mu.Unlock()
		return counts, errors.InvalidInput(errors.PhaseTransport, "release of unheld reference on handle "+strconv.FormatUint(uint64(h), 10))
	}
	dropped := false
	if counts.Zero() {
		t.backend.Drop(h)
		delete(t.index, value)
		dropped = true
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventReleased, Handle: h, Kind: kind, Value: value, Counts: counts})
	if dropped {
		if d, ok := value.(Dropper); ok {
			d.Drop()
		}
		t.notify(Event{Type: EventDropped, Handle: h, Kind: kind, Value: value})
	}
	return counts, nil
}

// Subscribe adds an observer for lifecycle events.
func (t *ExportTable) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *ExportTable) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live exports.
func (t *ExportTable) Len() int {
	return t.backend.Len()
}

// Each calls fn for every export until it returns false.
func (t *ExportTable) Each(fn func(h Handle, kind uint32, value any, counts Counts) bool) {
	type snap struct {
		h     Handle
		kind  uint32
		value any
	}
	var all []snap
	t.backend.Each(func(h Handle, kind uint32, value any) bool {
		all = append(all, snap{h, kind, value})
		return true
	})
	for _, s := range all {
		counts, ok := t.backend.Counts(s.h)
		if !ok {
			continue
		}
		if !fn(s.h, s.kind, s.value, counts) {
			return
		}
	}
}

// Clear drops every export regardless of outstanding counts. It is used
// when the peer holding the references goes away.
func (t *ExportTable) Clear() int {
	// Collect handles first so observers run without the table lock.
	var handles []Handle
	t.backend.Each(func(h Handle, kind uint32, value any) bool {
		handles = append(handles, h)
		return true
	})

	n := 0
	for _, h := range handles {
		t.mu.Lock()
		kind, _ := t.backend.Kind(h)
		value, counts, ok := t.backend.Evict(h)
		if ok {
			delete(t.index, value)
		}
		t.mu.Unlock()
		if !ok {
			continue
		}
		n++
		if d, ok := value.(Dropper); ok {
			d.Drop()
		}
		t.notify(Event{Type: EventDropped, Handle: h, Kind: kind, Value: value, Counts: counts})
	}
	return n
}

// Close clears the table and refuses further exports.
func (t *ExportTable) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.Clear()
	return t.backend.Close()
}

func (t *ExportTable) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
