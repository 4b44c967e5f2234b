package atom

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wippyai/binderkit/errors"
)

type testObject struct {
	Atom
	firstRefs  atomic.Int32
	finalized  atomic.Int32
	dead       atomic.Int32
	allowEarly bool
}

func newTestObject(tr *Tracker) *testObject {
	o := &testObject{allowEarly: true}
	o.Init(o, tr)
	return o
}

func (o *testObject) OnFirstRef() { o.firstRefs.Add(1) }
func (o *testObject) OnLastStrongRef(any) { o.finalized.Add(1) }
func (o *testObject) OnLastWeakRef() { o.dead.Add(1) }
func (o *testObject) OnIncStrongAttempted(any) bool { return o.allowEarly }

func TestAtom_FinalizeExactlyOnceAtNthRelease(t *testing.T) {
	for _, n := range []int{1, 2, 7, 64} {
		o := newTestObject(nil)
		for i := 0; i < n; i++ {
			o.IncStrong(nil)
		}
		if o.firstRefs.Load() != 1 {
			t.Fatalf("n=%d: OnFirstRef ran %d times", n, o.firstRefs.Load())
		}
		for i := 0; i < n; i++ {
			if o.finalized.Load() != 0 {
				t.Fatalf("n=%d: finalized before release %d", n, i)
			}
			last := o.DecStrong(nil)
			if last != (i == n-1) {
				t.Fatalf("n=%d: DecStrong #%d reported last=%v", n, i, last)
			}
		}
		if o.finalized.Load() != 1 {
			t.Fatalf("n=%d: finalized %d times", n, o.finalized.Load())
		}
		if o.State() != StateDead {
			t.Fatalf("n=%d: state %v, want dead", n, o.State())
		}
	}
}

func TestAtom_PromotionUntilLastRelease(t *testing.T) {
	o := newTestObject(nil)
	ref := Acquire(o, "owner")
	weak := ref.Weak("cache")

	p, ok := weak.Promote("reader")
	if !ok {
		t.Fatal("promotion must succeed while strong > 0")
	}
	p.Release()
	if o.finalized.Load() != 0 {
		t.Fatal("promoted ref release must not finalize while owner holds")
	}

	ref.Release()
	if o.finalized.Load() != 1 {
		t.Fatal("expected finalize at last release")
	}
	if o.State() != StateFinalizing {
		t.Fatalf("state %v, want finalizing while weak ref outstanding", o.State())
	}
	for i := 0; i < 3; i++ {
		if _, ok := weak.Promote("late"); ok {
			t.Fatal("promotion after finalize must fail")
		}
	}
	weak.Release()
	if o.State() != StateDead || o.dead.Load() != 1 {
		t.Fatalf("state %v dead=%d", o.State(), o.dead.Load())
	}
}

func TestAtom_PromotionFromNoRefsHonorsVeto(t *testing.T) {
	o := newTestObject(nil)
	o.allowEarly = false
	w := NewWeak(o, nil)
	if _, ok := w.Promote(nil); ok {
		t.Fatal("veto should refuse promotion from no-refs")
	}
	o.allowEarly = true
	r, ok := w.Promote(nil)
	if !ok {
		t.Fatal("promotion from no-refs should succeed without veto")
	}
	if o.State() != StateLive || o.firstRefs.Load() != 1 {
		t.Fatalf("state %v firstRefs %d", o.State(), o.firstRefs.Load())
	}
	r.Release()
	w.Release()
	if o.State() != StateDead {
		t.Fatalf("state %v", o.State())
	}
}

func TestAtom_WeakOnlyObjectDiesWithoutFinalize(t *testing.T) {
	o := newTestObject(nil)
	o.IncWeak(nil)
	o.DecWeak(nil)
	if o.finalized.Load() != 0 {
		t.Fatal("finalize must not run for never-acquired objects")
	}
	if o.State() != StateDead {
		t.Fatalf("state %v", o.State())
	}
	if o.AttemptIncStrong(nil) {
		t.Fatal("dead object must not be promotable")
	}
}

func TestAtom_ContractViolations(t *testing.T) {
	cases := map[string]func(){
		"dec strong below zero": func() { newTestObject(nil).DecStrong(nil) },
		"dec weak below zero":   func() { newTestObject(nil).DecWeak(nil) },
		"inc strong finalized": func() {
			o := newTestObject(nil)
			o.IncStrong(nil)
			o.DecStrong(nil)
			o.IncStrong(nil)
		},
		"double release": func() {
			r := Acquire(newTestObject(nil), nil)
			r.Release()
			r.Release()
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if _, ok := recover().(*errors.Violation); !ok {
					t.Fatal("expected violation")
				}
			}()
			fn()
		})
	}
}

// Promotion racing the final release must either win (and keep the object
// alive) or lose cleanly; it never yields a reference to a finalized object.
func TestAtom_PromotionRace(t *testing.T) {
	for round := 0; round < 200; round++ {
		o := newTestObject(nil)
		ref := Acquire(o, nil)
		weak := NewWeak(o, nil)

		var wg sync.WaitGroup
		var promoted atomic.Pointer[Ref[*testObject]]
		wg.Add(2)
		go func() {
			defer wg.Done()
			if p, ok := weak.Promote(nil); ok {
				if o.finalized.Load() != 0 {
					t.Error("promoted a finalized object")
				}
				promoted.Store(p)
			}
		}()
		go func() {
			defer wg.Done()
			ref.Release()
		}()
		wg.Wait()

		if p := promoted.Load(); p != nil {
			if o.finalized.Load() != 0 {
				t.Fatal("object finalized while promoted ref outstanding")
			}
			p.Release()
		}
		if o.finalized.Load() != 1 {
			t.Fatalf("finalized %d times", o.finalized.Load())
		}
		weak.Release()
	}
}

func TestAtom_Serial(t *testing.T) {
	a, b := newTestObject(nil), newTestObject(nil)
	if a.Serial() == 0 || a.Serial() == b.Serial() {
		t.Fatalf("serials %d %d", a.Serial(), b.Serial())
	}
	if a.Serial() != a.Serial() {
		t.Fatal("serial must be stable")
	}
}

func TestTracker_Generations(t *testing.T) {
	tr := NewTracker()
	old := newTestObject(tr)
	old.IncStrong(nil)

	gen := tr.MarkGeneration()
	leaked := newTestObject(tr)
	leaked.IncStrong(nil)
	freed := newTestObject(tr)
	freed.IncStrong(nil)
	freed.DecStrong(nil)

	report := tr.Report(gen)
	if len(report) != 1 {
		t.Fatalf("report = %v, want only the leaked object", report)
	}
	if report[0].Serial != leaked.Serial() || report[0].Type != "atom.testObject" {
		t.Fatalf("unexpected leak %v", report[0])
	}
	if got := len(tr.Report(0)); got != 2 {
		t.Fatalf("full report has %d entries", got)
	}
	if tr.Live() != 2 {
		t.Fatalf("Live = %d", tr.Live())
	}
	if c := tr.CountByType(0)["atom.testObject"]; c != 2 {
		t.Fatalf("CountByType = %d", c)
	}

	tr.Reset()
	if tr.Live() != 0 || tr.Generation() != 1 {
		t.Fatal("reset should clear state")
	}
}

func TestTracker_Owners(t *testing.T) {
	tr := NewTracker(WithOwners())
	o := newTestObject(tr)
	o.IncStrong("dispatcher")
	o.IncStrong("dispatcher")
	o.IncWeak("cache")

	report := tr.Report(0)
	if len(report) != 1 {
		t.Fatalf("report %v", report)
	}
	joined := strings.Join(report[0].Holders, ";")
	if !strings.Contains(joined, "dispatcher(s=2,w=0)") || !strings.Contains(joined, "cache(s=0,w=1)") {
		t.Fatalf("holders = %v", report[0].Holders)
	}
	if !strings.Contains(report[0].String(), "held by") {
		t.Fatalf("String() = %q", report[0].String())
	}
}

func TestTypeName(t *testing.T) {
	if got := TypeName(&testObject{}); got != "atom.testObject" {
		t.Errorf("TypeName = %q", got)
	}
	if got := TypeName(&Ref[*testObject]{}); got != "atom.Ref" {
		t.Errorf("generic TypeName = %q", got)
	}
	if got := TypeName(nil); got != "<nil>" {
		t.Errorf("nil TypeName = %q", got)
	}
}
