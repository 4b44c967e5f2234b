package value

import (
	"sync/atomic"

	"github.com/wippyai/binderkit/errors"
)

// CompositeMap is the sorted pair array behind map Values. Keys are unique
// and the pairs are sorted by the map's Order at every point a caller can
// observe, so lookups binary search.
//
// A map carries a user count. Structural edits require exactly one user and
// no edit in progress; changing the count while an edit is in progress is a
// contract violation. Maps reached through a Value are read-only; the
// Value's Edit method is how they change.
//
// Copies of a Value are not counted, so once a map has been handed out in a
// Value it is never recycled: its last DecUsers leaves it and everything
// nested in it to the garbage collector.
type CompositeMap struct {
	pairs     []Pair
	users     atomic.Int32
	editing   atomic.Bool
	published atomic.Bool
	order     Order
}

func violation(format string, args ...any) {
	errors.Fatalf(errors.PhaseValue, format, args...)
}

// NewCompositeMap creates a map with one user holding pairs. Later
// duplicates replace earlier ones.
func NewCompositeMap(pairs ...Pair) (*CompositeMap, error) {
	m := newMap(len(pairs))
	for _, p := range pairs {
		if _, err := m.AddMapAt(p.Key, p.Value); err != nil {
			m.DecUsers()
			return nil, err
		}
	}
	return m, nil
}

// Len returns the number of pairs. A nil map is empty.
func (m *CompositeMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.pairs)
}

// Order returns the key order mode.
func (m *CompositeMap) Order() Order { return m.order }

// SetOrder changes the key order mode and re-sorts. Like other structural
// edits it needs a private map.
func (m *CompositeMap) SetOrder(o Order) error {
	m.checkMutable("SetOrder")
	if o != OrderDefault && o != OrderLexical {
		return errors.OutOfRange(errors.PhaseValue, uint32(o), "map order")
	}
	if o == m.order {
		return nil
	}
	old := m.pairs
	m.order = o
	m.pairs = make([]Pair, 0, cap(old))
	for _, p := range old {
		i, _ := m.search(p.Key)
		m.insertAt(i, p)
	}
	return nil
}

// Users returns the current user count.
func (m *CompositeMap) Users() int32 { return m.users.Load() }

// IsShared reports whether more than one user holds the map.
func (m *CompositeMap) IsShared() bool { return m.users.Load() > 1 }

// IsEditing reports whether a BeginEditMapAt bracket is open.
func (m *CompositeMap) IsEditing() bool { return m.editing.Load() }

// IncUsers adds a user.
func (m *CompositeMap) IncUsers() {
	m.checkNotEditing("IncUsers")
	m.users.Add(1)
}

// DecUsers drops a user. The last user of a map that never left the
// package releases nested maps and returns it to the pool; a published map
// is left to the garbage collector.
func (m *CompositeMap) DecUsers() {
	m.checkNotEditing("DecUsers")
	n := m.users.Add(-1)
	if n < 0 {
		violation("DecUsers below zero")
	}
	if n > 0 || m.published.Load() {
		return
	}
	for _, p := range m.pairs {
		drop(p.Key)
		drop(p.Value)
	}
	m.Pool()
}

// retain and drop account for maps nested inside pairs.
func retain(v Value) {
	if v.code == TypeMap && v.m != nil {
		v.m.IncUsers()
	}
}

func drop(v Value) {
	if v.code == TypeMap && v.m != nil {
		v.m.DecUsers()
	}
}

// Clone returns a private copy with one user. Nested payloads are shared;
// nested maps gain a user.
func (m *CompositeMap) Clone() *CompositeMap {
	c := newMap(m.Len())
	if m == nil {
		return c
	}
	c.order = m.order
	c.pairs = append(c.pairs, m.pairs...)
	for _, p := range c.pairs {
		retain(p.Key)
		retain(p.Value)
	}
	return c
}

// search binary searches for key, returning the insertion point.
func (m *CompositeMap) search(key Value) (int, bool) {
	lo, hi := 0, len(m.pairs)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if m.order.compare(m.pairs[mid].Key, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(m.pairs) && m.order.compare(m.pairs[lo].Key, key) == 0
}

// IndexFor returns the index of key. With a value argument the pair's
// value must also be equal. A wild key matches any key: alone it finds the
// first pair, with a value it finds the first pair holding that value.
func (m *CompositeMap) IndexFor(key Value, val ...Value) (int, bool) {
	if m.Len() == 0 {
		return 0, false
	}
	if key.IsWild() {
		if len(val) == 0 {
			return 0, true
		}
		for i, p := range m.pairs {
			if Equal(p.Value, val[0]) {
				return i, true
			}
		}
		return len(m.pairs), false
	}
	i, ok := m.search(key)
	if ok && len(val) > 0 && !Equal(m.pairs[i].Value, val[0]) {
		return i, false
	}
	return i, ok
}

// MapAt returns the pair at index i. It panics if i is out of range.
func (m *CompositeMap) MapAt(i int) (key, val Value) {
	p := m.pairs[i]
	return p.Key, p.Value
}

// Pairs returns the sorted pairs. The slice must not be modified.
func (m *CompositeMap) Pairs() []Pair {
	if m == nil {
		return nil
	}
	return m.pairs
}

func checkKey(key Value) error {
	switch {
	case key.IsUndefined():
		return errors.InvalidInput(errors.PhaseValue, "undefined key")
	case key.IsWild():
		return errors.InvalidInput(errors.PhaseValue, "wild key cannot be stored")
	}
	return nil
}

// AddMapAt stores val under key, replacing any existing value, and returns
// the pair's index.
func (m *CompositeMap) AddMapAt(key, val Value) (int, error) {
	m.checkMutable("AddMapAt")
	if err := checkKey(key); err != nil {
		return -1, err
	}
	i, found := m.search(key)
	retain(val)
	if found {
		drop(m.pairs[i].Value)
		m.pairs[i].Value = val
		return i, nil
	}
	retain(key)
	m.insertAt(i, Pair{Key: key, Value: val})
	return i, nil
}

func (m *CompositeMap) insertAt(i int, p Pair) {
	m.pairs = append(m.pairs, Pair{})
	copy(m.pairs[i+1:], m.pairs[i:])
	m.pairs[i] = p
}

// RemoveMapAt removes the pair at index i.
func (m *CompositeMap) RemoveMapAt(i int) error {
	m.checkMutable("RemoveMapAt")
	if i < 0 || i >= len(m.pairs) {
		return errors.IndexOutOfRange(errors.PhaseValue, i, len(m.pairs))
	}
	p := m.pairs[i]
	copy(m.pairs[i:], m.pairs[i+1:])
	m.pairs[len(m.pairs)-1] = Pair{}
	m.pairs = m.pairs[:len(m.pairs)-1]
	drop(p.Key)
	drop(p.Value)
	return nil
}

// RenameMap replaces the key of the pair at index i and returns the pair's
// new index. Renaming onto another existing key fails.
func (m *CompositeMap) RenameMap(i int, newKey Value) (int, error) {
	m.checkMutable("RenameMap")
	if i < 0 || i >= len(m.pairs) {
		return -1, errors.IndexOutOfRange(errors.PhaseValue, i, len(m.pairs))
	}
	if err := checkKey(newKey); err != nil {
		return -1, err
	}
	if m.order.compare(m.pairs[i].Key, newKey) == 0 {
		return i, nil
	}
	if _, found := m.search(newKey); found {
		return -1, errors.New(errors.PhaseValue, errors.KindInvalidInput).
			Detail("key %s already present", newKey).
			Value(newKey).
			Build()
	}
	p := m.pairs[i]
	copy(m.pairs[i:], m.pairs[i+1:])
	m.pairs = m.pairs[:len(m.pairs)-1]
	drop(p.Key)
	retain(newKey)
	p.Key = newKey
	j, _ := m.search(newKey)
	m.insertAt(j, p)
	return j, nil
}

// BeginEditMapAt opens an in-place edit of the value at index i and returns
// its slot. Until EndEditMapAt, structural edits and user count changes on
// m are contract violations. The slot may be assigned but the key it
// belongs to cannot change.
func (m *CompositeMap) BeginEditMapAt(i int) *Value {
	m.checkMutable("BeginEditMapAt")
	if i < 0 || i >= len(m.pairs) {
		violation("BeginEditMapAt index %d out of range (length %d)", i, len(m.pairs))
	}
	m.editing.Store(true)
	return &m.pairs[i].Value
}

// EndEditMapAt closes the edit opened by BeginEditMapAt.
func (m *CompositeMap) EndEditMapAt() {
	if !m.editing.CompareAndSwap(true, false) {
		violation("EndEditMapAt without BeginEditMapAt")
	}
}

func (m *CompositeMap) checkNotEditing(op string) {
	if m.editing.Load() {
		violation("%s while map edit in progress", op)
	}
}

func (m *CompositeMap) checkMutable(op string) {
	m.checkNotEditing(op)
	if n := m.users.Load(); n != 1 {
		violation("%s on map with %d users", op, n)
	}
}
