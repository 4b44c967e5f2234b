package value

import (
	"iter"

	"github.com/wippyai/binderkit/errors"
)

// Editor is the exclusive handle through which a map Value changes. It is
// only valid inside the function passed to Value.Edit and works on a
// private clone, so copies of the Value taken before the edit are not
// affected.
type Editor struct {
	m    *CompositeMap
	done bool
}

// Edit clones v's map (or starts an empty one when v is not a map), runs fn
// on it and, if fn succeeds, makes the result v's map. A failed edit leaves
// v unchanged. A scalar receiver's value is discarded.
//
// Every call copies the whole map, because copies of v cannot be counted
// and may still be reading it. Make several changes inside one fn rather
// than calling Edit once per change.
func (v *Value) Edit(fn func(e *Editor) error) error {
	var m *CompositeMap
	if v.code == TypeMap {
		m = v.m.Clone()
	} else {
		m = newMap(0)
	}
	e := &Editor{m: m}
	err := fn(e)
	e.done = true
	if err != nil {
		m.DecUsers()
		return err
	}
	*v = fromMap(m)
	return nil
}

func (e *Editor) check() {
	if e.done {
		violation("map Editor used after Edit returned")
	}
}

// Len returns the number of pairs.
func (e *Editor) Len() int {
	e.check()
	return e.m.Len()
}

// Get returns the value under key, or undefined.
func (e *Editor) Get(key Value) Value {
	e.check()
	return Value{code: TypeMap, m: e.m}.ValueFor(key)
}

// SetOrder switches the map between default and lexical key order.
func (e *Editor) SetOrder(o Order) error {
	e.check()
	return e.m.SetOrder(o)
}

// Set stores val under key, replacing any previous value.
func (e *Editor) Set(key, val Value) error {
	e.check()
	_, err := e.m.AddMapAt(key, val)
	return err
}

// JoinItem stores val under key. When both the existing and the new value
// are maps they are joined recursively.
func (e *Editor) JoinItem(key, val Value) error {
	e.check()
	i, found := e.m.IndexFor(key)
	if found && !key.IsWild() && val.IsMap() && e.m.pairs[i].Value.IsMap() {
		return e.editAt(i, func(slot *Value) error { return slot.Join(val) })
	}
	_, err := e.m.AddMapAt(key, val)
	return err
}

// Join merges every pair of other into the map with JoinItem.
func (e *Editor) Join(other Value) error {
	e.check()
	for k, v := range other.All() {
		if err := e.JoinItem(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Overlay stores every pair of other, replacing existing values without
// merging nested maps.
func (e *Editor) Overlay(other Value) error {
	e.check()
	for k, v := range other.All() {
		if err := e.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes key. A missing key is reported as not_found.
func (e *Editor) Remove(key Value) error {
	e.check()
	i, ok := e.m.IndexFor(key)
	if !ok {
		return errors.NotFound(errors.PhaseValue, "key", key.String())
	}
	return e.m.RemoveMapAt(i)
}

// Rename moves the value stored under oldKey to newKey.
func (e *Editor) Rename(oldKey, newKey Value) error {
	e.check()
	i, ok := e.m.IndexFor(oldKey)
	if !ok {
		return errors.NotFound(errors.PhaseValue, "key", oldKey.String())
	}
	_, err := e.m.RenameMap(i, newKey)
	return err
}

// EditAt edits the map stored under key in place, creating it when the key
// is missing or holds a scalar.
func (e *Editor) EditAt(key Value, fn func(e *Editor) error) error {
	e.check()
	i, found := e.m.IndexFor(key)
	if !found || key.IsWild() {
		var nested Value
		if err := nested.Edit(fn); err != nil {
			return err
		}
		err := e.Set(key, nested)
		nested.m.DecUsers()
		return err
	}
	return e.editAt(i, func(slot *Value) error { return slot.Edit(fn) })
}

// editAt brackets a slot edit with BeginEditMapAt/EndEditMapAt and keeps
// nested user counts right when the slot's map is replaced.
func (e *Editor) editAt(i int, fn func(slot *Value) error) error {
	slot := e.m.BeginEditMapAt(i)
	old := *slot
	err := fn(slot)
	e.m.EndEditMapAt()
	if err == nil && (slot.code != old.code || slot.m != old.m) {
		drop(old)
	}
	return err
}

// Join merges other's pairs into v. Existing keys take the incoming value,
// except that two maps under the same key are joined recursively. An
// undefined other is a no-op; a scalar other is a type mismatch.
func (v *Value) Join(other Value) error {
	if other.IsUndefined() {
		return nil
	}
	if !other.IsMap() {
		return errors.TypeMismatch(errors.PhaseValue, other.code.String(), "map")
	}
	return v.Edit(func(e *Editor) error { return e.Join(other) })
}

// JoinItem merges a single pair into v.
func (v *Value) JoinItem(key, val Value) error {
	return v.Edit(func(e *Editor) error { return e.JoinItem(key, val) })
}

// Overlay stores other's pairs into v without merging nested maps.
func (v *Value) Overlay(other Value) error {
	if other.IsUndefined() {
		return nil
	}
	if !other.IsMap() {
		return errors.TypeMismatch(errors.PhaseValue, other.code.String(), "map")
	}
	return v.Edit(func(e *Editor) error { return e.Overlay(other) })
}

// RemoveItem deletes key from v.
func (v *Value) RemoveItem(key Value) error {
	if !v.IsMap() {
		return errors.NotFound(errors.PhaseValue, "key", key.String())
	}
	return v.Edit(func(e *Editor) error { return e.Remove(key) })
}

// RenameItem moves the value under oldKey to newKey.
func (v *Value) RenameItem(oldKey, newKey Value) error {
	if !v.IsMap() {
		return errors.NotFound(errors.PhaseValue, "key", oldKey.String())
	}
	return v.Edit(func(e *Editor) error { return e.Rename(oldKey, newKey) })
}

// Cursor is the position of an iteration started with GetNextItem. The
// zero Cursor starts at the first pair.
type Cursor struct {
	i int
}

// GetNextItem returns the pair at the cursor and advances it. A scalar
// yields itself once under the wild key.
func (v Value) GetNextItem(c *Cursor) (key, val Value, ok bool) {
	switch v.code {
	case TypeUndefined:
		return Value{}, Value{}, false
	case TypeMap:
		if c.i >= v.m.Len() {
			return Value{}, Value{}, false
		}
		p := v.m.pairs[c.i]
		c.i++
		return p.Key, p.Value, true
	default:
		if c.i > 0 {
			return Value{}, Value{}, false
		}
		c.i++
		return Wild(), v, true
	}
}

// All iterates the pairs of v in key order.
func (v Value) All() iter.Seq2[Value, Value] {
	return func(yield func(Value, Value) bool) {
		var c Cursor
		for {
			k, val, ok := v.GetNextItem(&c)
			if !ok || !yield(k, val) {
				return
			}
		}
	}
}
