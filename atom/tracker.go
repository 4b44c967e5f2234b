package atom

import (
	"fmt"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker records live atoms for leak inspection. Every atom registered
// through Init is stamped with the current generation and its dynamic type
// name; MarkGeneration starts a new generation so a later Report(since)
// lists only objects created after the mark that are still alive.
type Tracker struct {
	mu         sync.Mutex
	live       map[*Atom]*record
	generation atomic.Uint64
	owners     bool
}

type record struct {
	created    time.Time
	holders    map[string]*holder
	typeName   string
	generation uint64
}

type holder struct {
	strong int
	weak   int
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithOwners records which owners hold references. It costs a map update
// per reference operation.
func WithOwners() TrackerOption {
	return func(t *Tracker) { t.owners = true }
}

// NewTracker creates an empty tracker at generation 1.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{live: make(map[*Atom]*record)}
	t.generation.Store(1)
	for _, o := range opts {
		o(t)
	}
	return t
}

// Generation returns the current generation.
func (t *Tracker) Generation() uint64 {
	return t.generation.Load()
}

// MarkGeneration closes the current generation and returns the new one.
func (t *Tracker) MarkGeneration() uint64 {
	return t.generation.Add(1)
}

func (t *Tracker) add(a *Atom, self any) {
	rec := &record{
		created:    time.Now(),
		typeName:   TypeName(self),
		generation: t.generation.Load(),
	}
	if t.owners {
		rec.holders = make(map[string]*holder)
	}
	t.mu.Lock()
	t.live[a] = rec
	t.mu.Unlock()
}

func (t *Tracker) remove(a *Atom) {
	t.mu.Lock()
	delete(t.live, a)
	t.mu.Unlock()
}

func (t *Tracker) note(a *Atom, owner any, strong, weak int) {
	if !t.owners {
		return
	}
	key := ownerKey(owner)
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.live[a]
	if !ok {
		return
	}
	h := rec.holders[key]
	if h == nil {
		h = &holder{}
		rec.holders[key] = h
	}
	h.strong += strong
	h.weak += weak
	if h.strong == 0 && h.weak == 0 {
		delete(rec.holders, key)
	}
}

// Leak describes one live tracked atom.
type Leak struct {
	Created    time.Time
	Type       string
	Holders    []string
	Serial     uint64
	Generation uint64
	Strong     int32
	Weak       int32
	State      State
}

func (l Leak) String() string {
	s := fmt.Sprintf("#%d %s gen=%d strong=%d weak=%d %s", l.Serial, l.Type, l.Generation, l.Strong, l.Weak, l.State)
	if len(l.Holders) > 0 {
		s += " held by " + strings.Join(l.Holders, ", ")
	}
	return s
}

// Report lists atoms created in generation since or later that have not
// died, oldest generation first.
func (t *Tracker) Report(since uint64) []Leak {
	t.mu.Lock()
	out := make([]Leak, 0, len(t.live))
	for a, rec := range t.live {
		if rec.generation < since {
			continue
		}
		l := Leak{
			Created:    rec.created,
			Type:       rec.typeName,
			Serial:     a.Serial(),
			Generation: rec.generation,
			Strong:     a.StrongCount(),
			Weak:       a.WeakCount(),
			State:      a.State(),
		}
		for name, h := range rec.holders {
			l.Holders = append(l.Holders, fmt.Sprintf("%s(s=%d,w=%d)", name, h.strong, h.weak))
		}
		sort.Strings(l.Holders)
		out = append(out, l)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Generation != out[j].Generation {
			return out[i].Generation < out[j].Generation
		}
		return out[i].Serial < out[j].Serial
	})
	return out
}

// CountByType groups Report(since) by type name.
func (t *Tracker) CountByType(since uint64) map[string]int {
	counts := make(map[string]int)
	for _, l := range t.Report(since) {
		counts[l.Type]++
	}
	return counts
}

// Live returns the number of tracked atoms not yet dead.
func (t *Tracker) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// Reset forgets every tracked atom and restarts at generation 1.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.live = make(map[*Atom]*record)
	t.mu.Unlock()
	t.generation.Store(1)
}

var typeNames sync.Map // reflect.Type -> string

// TypeName returns a stable "pkg.Type" name for v's dynamic type, with
// pointers unwrapped and generic parameters stripped.
func TypeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	rt := reflect.TypeOf(v)
	if name, ok := typeNames.Load(rt); ok {
		return name.(string)
	}
	base := rt
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	name := base.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		name = base.String()
	}
	if p := base.PkgPath(); p != "" {
		name = path.Base(p) + "." + name
	}
	typeNames.Store(rt, name)
	return name
}

func ownerKey(owner any) string {
	switch o := owner.(type) {
	case nil:
		return "<anonymous>"
	case string:
		return o
	case fmt.Stringer:
		return o.String()
	default:
		if reflect.TypeOf(owner).Kind() == reflect.Pointer {
			return fmt.Sprintf("%s@%p", TypeName(owner), owner)
		}
		return fmt.Sprintf("%s(%v)", TypeName(owner), owner)
	}
}
