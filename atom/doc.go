// Package atom provides the intrusive strong/weak reference count every
// shared binderkit object is built on.
//
// # Lifecycle
//
// An Atom moves through four states:
//
//	no-refs     - created, no strong reference taken yet
//	live        - strong count > 0
//	finalizing  - strong count reached zero, finalize hook runs once
//	dead        - finalized and no weak references remain
//
// The live -> finalizing transition is irreversible. Promotion of a weak
// reference (AttemptIncStrong, WeakRef.Promote) is a single compare-and-swap
// loop from N > 0 to N+1, so it can never hand out a reference to an object
// whose finalizer has started.
//
// # Embedding
//
//	type Service struct {
//	    atom.Atom
//	    ...
//	}
//
//	func NewService(tr *atom.Tracker) *Service {
//	    s := &Service{}
//	    s.Init(s, tr)
//	    return s
//	}
//
//	func (s *Service) OnLastStrongRef(owner any) { s.close() }
//
// Hooks are optional interfaces on the embedding type: FirstRefHook,
// Finalizer, PromotionVeto and DeadHook.
//
// # Typed references
//
// Ref and WeakRef wrap the raw counters with single-release ownership:
//
//	ref := atom.Acquire(svc, "caller")
//	weak := ref.Weak("cache")
//	ref.Release()                      // finalizes svc
//	_, ok := weak.Promote("late")      // ok == false
//
// # Leak tracking
//
// A Tracker passed to Init records each atom's generation and type name.
// MarkGeneration starts a new generation; Report(gen) lists the atoms
// created since then that are still alive, optionally with the owners
// holding them.
package atom
