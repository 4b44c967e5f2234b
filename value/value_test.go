package value

import (
	"math"
	"testing"
	"time"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/errors"
)

type testObject struct {
	atom.Atom
}

func newTestObject() *testObject {
	o := &testObject{}
	o.Init(o, nil)
	return o
}

func str(s string) Value { return String(s) }

func pair(k string, v Value) Pair { return Pair{Key: String(k), Value: v} }

func samples() []Value {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Value{
		Undefined(),
		Wild(),
		Bool(false),
		Bool(true),
		Int8(-3),
		Int8(7),
		Int16(-300),
		Int32(-1),
		Int32(0),
		Int32(42),
		Int64(-1 << 40),
		Int64(1 << 40),
		Float32(1.5),
		Float64(-2.25),
		Float64(0),
		Float64(math.Copysign(0, -1)),
		Float64(math.Inf(1)),
		Time(when),
		Time(when.Add(time.Nanosecond)),
		str(""),
		str("a"),
		str("b"),
		str("ab"),
		str("hello, world"),
		Raw(nil),
		Raw([]byte{1, 2, 3}),
		Raw([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}),
		NewMap(),
		MapOf(str("a"), Int32(1)),
		MapOf(str("a"), Int32(2)),
		NewMap(pair("a", Int32(1)), pair("b", str("x"))),
		NewMap(pair("outer", NewMap(pair("inner", Int64(5)), pair("z", Bool(true))))),
	}
}

func TestCompare_TotalOrder(t *testing.T) {
	vs := samples()
	for i, a := range vs {
		if Compare(a, a) != 0 {
			t.Errorf("Compare(%v, %v) != 0", a, a)
		}
		if i > 0 && Compare(Undefined(), a) >= 0 {
			t.Errorf("undefined must sort before %v", a)
		}
		for _, b := range vs {
			ab, ba := Compare(a, b), Compare(b, a)
			if ab != -ba {
				t.Fatalf("antisymmetry: Compare(%v,%v)=%d Compare(%v,%v)=%d", a, b, ab, b, a, ba)
			}
			for _, c := range vs {
				if ab < 0 && Compare(b, c) < 0 && Compare(a, c) >= 0 {
					t.Fatalf("transitivity: %v < %v < %v but not %v < %v", a, b, c, a, c)
				}
			}
		}
	}
}

func TestCompare_Rules(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"shorter string first", str("b"), str("aa"), -1},
		{"same length by bytes", str("ab"), str("ac"), -1},
		{"integers numerically", Int32(-5), Int32(3), -1},
		{"int64 sign numerically", Int64(-1), Int64(1), -1},
		{"int64 magnitude numerically", Int64(255), Int64(256), -1},
		{"floats numerically", Float64(-2.5), Float64(1), -1},
		{"float32 numerically", Float32(0.5), Float32(0.25), 1},
		{"times chronologically", Time(time.Unix(0, 0)), Time(time.Unix(1, 0)), -1},
		{"times before epoch", Time(time.Unix(-1, 0)), Time(time.Unix(0, 0)), -1},
		{"type code before payload", Bool(true), Int32(-100), cmpCodes(TypeBool, TypeInt32)},
		{"negative zero is distinct", Float64(0), Float64(math.Copysign(0, -1)), -1},
		{"maps by first pair", MapOf(str("a"), Int32(1)), MapOf(str("a"), Int32(2)), -1},
		{"map prefix first", MapOf(str("a"), Int32(1)), NewMap(pair("a", Int32(1)), pair("b", Int32(0))), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func cmpCodes(a, b TypeCode) int {
	if a < b {
		return -1
	}
	return 1
}

func TestCompare_Objects(t *testing.T) {
	a, b := newTestObject(), newTestObject()
	if Compare(Object(a), Object(a)) != 0 {
		t.Fatal("same object must compare equal")
	}
	want := -1
	if a.Serial() > b.Serial() {
		want = 1
	}
	if got := Compare(Object(a), Object(b)); got != want {
		t.Fatalf("Compare = %d, want %d", got, want)
	}
	if Equal(Object(a), WeakObject(a)) {
		t.Fatal("strong and weak references have different codes")
	}
}

func TestEqual_MapsIgnoreOrderMode(t *testing.T) {
	a := NewMap(pair("B", Int32(1)), pair("a", Int32(2)))
	b := LexicalMap(pair("B", Int32(1)), pair("a", Int32(2)))
	if !Equal(a, b) {
		t.Fatalf("%v and %v should be equal", a, b)
	}
	if Equal(a, MapOf(str("B"), Int32(1))) {
		t.Fatal("maps of different size must differ")
	}
}

func TestInlineThreshold(t *testing.T) {
	tests := []struct {
		v      Value
		inline bool
	}{
		{str("abcd"), true},
		{str("abcde"), false},
		{Int32(1), true},
		{Float32(1), true},
		{Int64(1), false},
		{Float64(1), false},
		{Raw(make([]byte, InlineThreshold)), true},
		{Raw(make([]byte, InlineThreshold+1)), false},
	}
	for _, tt := range tests {
		if tt.v.IsInline() != tt.inline {
			t.Errorf("%v: IsInline = %v, want %v", tt.v, tt.v.IsInline(), tt.inline)
		}
	}
}

func TestValueFor(t *testing.T) {
	v := NewMap(pair("a", Int32(1)), pair("b", str("x")))
	if got := v.ValueFor(str("b")); !Equal(got, str("x")) {
		t.Fatalf("ValueFor(b) = %v", got)
	}
	if got := v.ValueFor(str("missing")); got.IsDefined() {
		t.Fatalf("missing key = %v", got)
	}
	if got := v.ValueFor(Wild()); !Equal(got, v) {
		t.Fatalf("wild lookup = %v", got)
	}
	if _, err := v.Item(str("missing")); !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("Item error = %v", err)
	}
	if got := Int32(3).ValueFor(str("a")); got.IsDefined() {
		t.Fatalf("scalar lookup = %v", got)
	}
	if i, ok := v.IndexFor(Wild(), str("x")); !ok || i != 1 {
		t.Fatalf("IndexFor(wild, x) = %d, %v", i, ok)
	}
	if _, ok := v.IndexFor(str("a"), Int32(2)); ok {
		t.Fatal("IndexFor with a different value must miss")
	}
}

func TestIteration(t *testing.T) {
	v := NewMap(pair("b", str("x")), pair("a", Int32(1)))
	var c Cursor
	var keys []string
	for {
		k, _, ok := v.GetNextItem(&c)
		if !ok {
			break
		}
		s, _ := k.AsString()
		keys = append(keys, s)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("keys = %v", keys)
	}

	var n int
	for k, val := range Int32(7).All() {
		n++
		if !k.IsWild() || !Equal(val, Int32(7)) {
			t.Fatalf("scalar iteration yielded %v: %v", k, val)
		}
	}
	if n != 1 || Int32(7).CountItems() != 1 || Undefined().CountItems() != 0 {
		t.Fatal("scalar counts as one item, undefined as none")
	}
}

func TestCopyOnWrite(t *testing.T) {
	a := NewMap(pair("a", Int32(1)), pair("nested", MapOf(str("x"), Int32(1))))
	b := a

	if err := b.JoinItem(str("a"), Int32(99)); err != nil {
		t.Fatal(err)
	}
	if err := b.Edit(func(e *Editor) error {
		return e.EditAt(str("nested"), func(e *Editor) error {
			return e.Set(str("x"), Int32(2))
		})
	}); err != nil {
		t.Fatal(err)
	}

	if got, _ := a.ValueFor(str("a")).AsInt32(); got != 1 {
		t.Fatalf("alias mutation leaked: a.a = %d", got)
	}
	if got, _ := a.ValueFor(str("nested")).ValueFor(str("x")).AsInt32(); got != 1 {
		t.Fatalf("nested mutation leaked: a.nested.x = %d", got)
	}
	if got, _ := b.ValueFor(str("nested")).ValueFor(str("x")).AsInt32(); got != 2 {
		t.Fatalf("b.nested.x = %d", got)
	}

	c := a.Clone()
	if c.Map().IsShared() {
		t.Fatal("fresh clone must not be shared")
	}
	if c.Map() == a.Map() {
		t.Fatal("clone must not reuse the map")
	}
}

func TestEdit_AlwaysClones(t *testing.T) {
	a := MapOf(str("a"), Int32(1))
	before := a.Map()
	if before.IsShared() {
		t.Fatal("fresh map reported shared")
	}
	b := a
	if err := b.Edit(func(e *Editor) error {
		for i := int32(0); i < 4; i++ {
			if err := e.Set(Int32(i), Int32(i)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if b.Map() == before {
		t.Fatal("edit reused a map an uncounted copy still reads")
	}
	if a.Map() != before || a.CountItems() != 1 {
		t.Fatalf("alias changed by edit: %v", a)
	}
	if b.CountItems() != 5 {
		t.Fatalf("batched edit kept %d items, want 5", b.CountItems())
	}
}

func TestEdit_FailureLeavesValue(t *testing.T) {
	v := MapOf(str("a"), Int32(1))
	before := v.Map()
	err := v.Edit(func(e *Editor) error {
		if err := e.Set(str("b"), Int32(2)); err != nil {
			return err
		}
		return e.Set(Wild(), Int32(3))
	})
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("err = %v", err)
	}
	if v.Map() != before || v.CountItems() != 1 {
		t.Fatalf("failed edit changed value: %v", v)
	}
}

func TestEditor_UseAfterEdit(t *testing.T) {
	var leaked *Editor
	v := Undefined()
	_ = v.Edit(func(e *Editor) error {
		leaked = e
		return nil
	})
	defer func() {
		if _, ok := recover().(*errors.Violation); !ok {
			t.Fatal("expected violation")
		}
	}()
	_ = leaked.Set(str("a"), Int32(1))
}

func TestJoin(t *testing.T) {
	t.Run("scalar receiver becomes map", func(t *testing.T) {
		v := Int32(5)
		if err := v.Join(MapOf(str("a"), Int32(1))); err != nil {
			t.Fatal(err)
		}
		if !v.IsMap() || v.CountItems() != 1 {
			t.Fatalf("v = %v", v)
		}
	})
	t.Run("nested maps merge", func(t *testing.T) {
		v := MapOf(str("cfg"), NewMap(pair("x", Int32(1)), pair("y", Int32(2))))
		in := MapOf(str("cfg"), NewMap(pair("y", Int32(20)), pair("z", Int32(30))))
		if err := v.Join(in); err != nil {
			t.Fatal(err)
		}
		want := MapOf(str("cfg"), NewMap(pair("x", Int32(1)), pair("y", Int32(20)), pair("z", Int32(30))))
		if !Equal(v, want) {
			t.Fatalf("got %v, want %v", v, want)
		}
	})
	t.Run("overlay replaces nested maps", func(t *testing.T) {
		v := MapOf(str("cfg"), NewMap(pair("x", Int32(1))))
		in := MapOf(str("cfg"), NewMap(pair("z", Int32(30))))
		if err := v.Overlay(in); err != nil {
			t.Fatal(err)
		}
		if !Equal(v, in) {
			t.Fatalf("got %v", v)
		}
	})
	t.Run("undefined is a no-op", func(t *testing.T) {
		v := Int32(5)
		if err := v.Join(Undefined()); err != nil || !Equal(v, Int32(5)) {
			t.Fatalf("v = %v, err = %v", v, err)
		}
	})
	t.Run("scalar other is a mismatch", func(t *testing.T) {
		v := NewMap()
		if err := v.Join(Int32(1)); !errors.IsKind(err, errors.KindTypeMismatch) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestRemoveRename(t *testing.T) {
	v := NewMap(pair("a", Int32(1)), pair("b", Int32(2)))
	if err := v.RenameItem(str("a"), str("c")); err != nil {
		t.Fatal(err)
	}
	if v.ValueFor(str("a")).IsDefined() || !Equal(v.ValueFor(str("c")), Int32(1)) {
		t.Fatalf("after rename: %v", v)
	}
	if err := v.RenameItem(str("c"), str("b")); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("rename onto existing key: %v", err)
	}
	if err := v.RemoveItem(str("b")); err != nil {
		t.Fatal(err)
	}
	if err := v.RemoveItem(str("b")); !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("second remove: %v", err)
	}
	if v.CountItems() != 1 {
		t.Fatalf("v = %v", v)
	}
}

func TestAccessors(t *testing.T) {
	if i, err := Int8(-4).AsInt64(); err != nil || i != -4 {
		t.Errorf("Int8.AsInt64 = %d, %v", i, err)
	}
	if i, err := str("12").AsInt32(); err != nil || i != 12 {
		t.Errorf("string AsInt32 = %d, %v", i, err)
	}
	if _, err := Int64(1 << 40).AsInt32(); !errors.IsKind(err, errors.KindOutOfRange) {
		t.Errorf("overflow: %v", err)
	}
	if _, err := Float64(1.5).AsInt64(); !errors.IsKind(err, errors.KindOutOfRange) {
		t.Errorf("fraction: %v", err)
	}
	if _, err := Raw([]byte{1}).AsInt32(); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("blob: %v", err)
	}
	if _, err := Undefined().AsString(); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("undefined: %v", err)
	}
	if b, err := Int32(2).AsBool(); err != nil || !b {
		t.Errorf("AsBool = %v, %v", b, err)
	}
	if f, err := Int16(3).AsFloat64(); err != nil || f != 3 {
		t.Errorf("AsFloat64 = %v, %v", f, err)
	}
	if s, err := Int32(42).AsString(); err != nil || s != "42" {
		t.Errorf("AsString = %q, %v", s, err)
	}
	when := time.Unix(1700000000, 5)
	if got, err := Time(when).AsTime(); err != nil || !got.Equal(when) {
		t.Errorf("AsTime = %v, %v", got, err)
	}
	obj := newTestObject()
	if got, err := WeakObject(obj).AsObject(); err != nil || got != obj {
		t.Errorf("AsObject = %v, %v", got, err)
	}
	if _, err := Int32(1).AsObject(); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("AsObject on scalar: %v", err)
	}
}

func TestBytes_RejectsReservedCodes(t *testing.T) {
	defer func() {
		if _, ok := recover().(*errors.Violation); !ok {
			t.Fatal("expected violation")
		}
	}()
	Bytes(TypeMap, []byte{1})
}

func TestString(t *testing.T) {
	v := NewMap(pair("a", Int32(1)), pair("b", str("x")))
	if got := v.String(); got != `{"a": 1, "b": "x"}` {
		t.Fatalf("String() = %s", got)
	}
	if got := Undefined().String(); got != "undefined" {
		t.Fatalf("undefined String() = %s", got)
	}
}
