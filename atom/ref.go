package atom

import (
	"sync/atomic"

	"github.com/wippyai/binderkit/errors"
)

// Ref is an owned strong reference. Release it exactly once.
type Ref[T Object] struct {
	obj      T
	owner    any
	released atomic.Bool
}

// Acquire takes a strong reference on obj on behalf of owner.
func Acquire[T Object](obj T, owner any) *Ref[T] {
	obj.RefAtom().IncStrong(owner)
	return &Ref[T]{obj: obj, owner: owner}
}

// Adopt wraps a strong reference the caller already holds.
func Adopt[T Object](obj T, owner any) *Ref[T] {
	return &Ref[T]{obj: obj, owner: owner}
}

// Get returns the referenced object.
func (r *Ref[T]) Get() T {
	return r.obj
}

// Release drops the reference and reports whether it was the last one.
func (r *Ref[T]) Release() bool {
	if !r.released.CompareAndSwap(false, true) {
		errors.Fatalf(errors.PhaseRuntime, "double release of %s", TypeName(r.obj))
	}
	return r.obj.RefAtom().DecStrong(r.owner)
}

// Weak takes a weak reference to the same object.
func (r *Ref[T]) Weak(owner any) *WeakRef[T] {
	return NewWeak(r.obj, owner)
}

// WeakRef is an owned weak reference.
type WeakRef[T Object] struct {
	obj      T
	owner    any
	released atomic.Bool
}

// NewWeak takes a weak reference on obj.
func NewWeak[T Object](obj T, owner any) *WeakRef[T] {
	obj.RefAtom().IncWeak(owner)
	return &WeakRef[T]{obj: obj, owner: owner}
}

// Promote attempts to take a strong reference. It fails once the object
// has been finalized.
func (w *WeakRef[T]) Promote(owner any) (*Ref[T], bool) {
	if !w.obj.RefAtom().AttemptIncStrong(owner) {
		return nil, false
	}
	return &Ref[T]{obj: w.obj, owner: owner}, true
}

// Peek returns the object without taking a reference. Use it for identity
// comparisons only.
func (w *WeakRef[T]) Peek() T {
	return w.obj
}

// Release drops the weak reference.
func (w *WeakRef[T]) Release() {
	if !w.released.CompareAndSwap(false, true) {
		errors.Fatalf(errors.PhaseRuntime, "double release of weak %s", TypeName(w.obj))
	}
	w.obj.RefAtom().DecWeak(w.owner)
}
