package atom

import (
	"sync/atomic"

	"github.com/wippyai/binderkit/errors"
)

// State is the lifecycle position of an Atom.
type State int32

const (
	// StateNoRefs: no strong reference has ever been taken.
	StateNoRefs State = iota
	// StateLive: strong count > 0.
	StateLive
	// StateFinalizing: strong count reached zero; the finalize hook runs or ran.
	StateFinalizing
	// StateDead: finalized (or never acquired) and no weak references remain.
	StateDead
)

func (s State) String() string {
	switch s {
	case StateNoRefs:
		return "no-refs"
	case StateLive:
		return "live"
	case StateFinalizing:
		return "finalizing"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// strong count encoding: 0 never acquired, n > 0 live, finalized < 0.
const finalized int32 = -1

// Object is anything carrying an Atom. Embedding Atom satisfies it.
type Object interface {
	RefAtom() *Atom
}

// Hook interfaces the embedding object may implement.
type (
	// FirstRefHook runs when the first strong reference is taken.
	FirstRefHook interface{ OnFirstRef() }

	// Finalizer runs exactly once when the strong count reaches zero.
	Finalizer interface{ OnLastStrongRef(owner any) }

	// PromotionVeto decides whether a weak reference may be promoted while
	// no strong reference has ever existed. Returning false refuses.
	PromotionVeto interface{ OnIncStrongAttempted(owner any) bool }

	// DeadHook runs when the atom becomes dead.
	DeadHook interface{ OnLastWeakRef() }
)

var serials atomic.Uint64

// Atom is an intrusive strong/weak reference count. Embed it in a struct
// and call Init from the constructor so hooks and tracking see the outer
// object. The zero value is usable without hooks.
type Atom struct {
	strong    atomic.Int32
	weak      atomic.Int32
	state     atomic.Int32
	finalDone atomic.Bool
	serial    atomic.Uint64
	self      any
	tracker   *Tracker
}

// Init binds the atom to the object embedding it and registers it with
// tracker (which may be nil). Call once, before sharing the object.
func (a *Atom) Init(self any, tracker *Tracker) {
	a.self = self
	a.tracker = tracker
	if tracker != nil {
		tracker.add(a, self)
	}
}

// RefAtom implements Object.
func (a *Atom) RefAtom() *Atom { return a }

// Serial returns a process-unique number assigned on first use. It orders
// object references inside Values.
func (a *Atom) Serial() uint64 {
	if s := a.serial.Load(); s != 0 {
		return s
	}
	a.serial.CompareAndSwap(0, serials.Add(1))
	return a.serial.Load()
}

// StrongCount returns the current strong count (0 when never acquired or
// finalized).
func (a *Atom) StrongCount() int32 {
	if s := a.strong.Load(); s > 0 {
		return s
	}
	return 0
}

// WeakCount returns the current weak count.
func (a *Atom) WeakCount() int32 {
	return a.weak.Load()
}

// State returns the lifecycle state.
func (a *Atom) State() State {
	return State(a.state.Load())
}

// IsAlive reports whether strong references are outstanding.
func (a *Atom) IsAlive() bool {
	return a.strong.Load() > 0
}

// IncStrong takes a strong reference. Taking one on a finalized atom is a
// contract violation; use AttemptIncStrong when the object may be gone.
func (a *Atom) IncStrong(owner any) {
	for {
		cur := a.strong.Load()
		if cur < 0 {
			errors.Fatalf(errors.PhaseRuntime, "IncStrong on finalized %s", a.describe())
		}
		if a.strong.CompareAndSwap(cur, cur+1) {
			a.track(owner, +1, 0)
			if cur == 0 {
				a.state.CompareAndSwap(int32(StateNoRefs), int32(StateLive))
				if h, ok := a.self.(FirstRefHook); ok {
					h.OnFirstRef()
				}
			}
			return
		}
	}
}

// DecStrong drops a strong reference. The release that reaches zero runs
// the finalize hook and reports true.
func (a *Atom) DecStrong(owner any) bool {
	for {
		cur := a.strong.Load()
		if cur <= 0 {
			errors.Fatalf(errors.PhaseRuntime, "DecStrong below zero on %s", a.describe())
		}
		next := cur - 1
		if next == 0 {
			next = finalized
		}
		if !a.strong.CompareAndSwap(cur, next) {
			continue
		}
		a.track(owner, -1, 0)
		if next != finalized {
			return false
		}
		a.state.Store(int32(StateFinalizing))
		if f, ok := a.self.(Finalizer); ok {
			f.OnLastStrongRef(owner)
		}
		a.finalDone.Store(true)
		a.tryDie()
		return true
	}
}

// AttemptIncStrong promotes a weak reference. It succeeds only while the
// strong count is positive, or while no strong reference has ever been
// taken and the object does not veto. It never revives a finalized atom.
func (a *Atom) AttemptIncStrong(owner any) bool {
	for {
		cur := a.strong.Load()
		switch {
		case cur < 0:
			return false
		case cur == 0:
			if v, ok := a.self.(PromotionVeto); ok && !v.OnIncStrongAttempted(owner) {
				return false
			}
		}
		if a.strong.CompareAndSwap(cur, cur+1) {
			a.track(owner, +1, 0)
			if cur == 0 {
				a.state.CompareAndSwap(int32(StateNoRefs), int32(StateLive))
				if h, ok := a.self.(FirstRefHook); ok {
					h.OnFirstRef()
				}
			}
			return true
		}
	}
}

// IncWeak takes a weak reference.
func (a *Atom) IncWeak(owner any) {
	a.weak.Add(1)
	a.track(owner, 0, +1)
}

// DecWeak drops a weak reference.
func (a *Atom) DecWeak(owner any) {
	n := a.weak.Add(-1)
	if n < 0 {
		errors.Fatalf(errors.PhaseRuntime, "DecWeak below zero on %s", a.describe())
	}
	a.track(owner, 0, -1)
	if n != 0 {
		return
	}
	// Never strongly acquired: the last weak reference ends the object.
	if a.strong.CompareAndSwap(0, finalized) {
		a.state.Store(int32(StateFinalizing))
		a.finalDone.Store(true)
	}
	a.tryDie()
}

func (a *Atom) tryDie() {
	if !a.finalDone.Load() || a.weak.Load() != 0 {
		return
	}
	if !a.state.CompareAndSwap(int32(StateFinalizing), int32(StateDead)) {
		return
	}
	if h, ok := a.self.(DeadHook); ok {
		h.OnLastWeakRef()
	}
	if a.tracker != nil {
		a.tracker.remove(a)
	}
}

func (a *Atom) track(owner any, strong, weak int) {
	if a.tracker != nil {
		a.tracker.note(a, owner, strong, weak)
	}
}

func (a *Atom) describe() string {
	if a.self != nil {
		return TypeName(a.self)
	}
	return "atom"
}
