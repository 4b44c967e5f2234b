package value

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/binderkit/errors"
)

func TestFromNative(t *testing.T) {
	v, err := FromNative(map[string]any{
		"a":    1,
		"list": []any{"x", true},
		"raw":  []byte{1, 2, 3, 4, 5},
		"ints": []int32{7, 8},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"a":    int64(1),
		"list": []any{"x", true},
		"raw":  []byte{1, 2, 3, 4, 5},
		"ints": []any{int32(7), int32(8)},
	}
	if got := v.ToNative(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ToNative = %#v", got)
	}
}

func TestFromNative_Errors(t *testing.T) {
	if _, err := FromNative(uint64(1) << 63); !errors.IsKind(err, errors.KindOutOfRange) {
		t.Fatalf("uint64 overflow: %v", err)
	}
	if _, err := FromNative(make(chan int)); !errors.IsKind(err, errors.KindUnsupported) {
		t.Fatalf("chan: %v", err)
	}
	if _, err := FromNative([]any{1, make(chan int)}); !errors.IsKind(err, errors.KindUnsupported) {
		t.Fatalf("nested chan: %v", err)
	}
}

func TestToNative_MixedKeys(t *testing.T) {
	v := NewMap(
		Pair{Key: Int32(1), Value: String("one")},
		Pair{Key: String("two"), Value: Int32(2)},
	)
	got, ok := v.ToNative().(map[any]any)
	if !ok {
		t.Fatalf("ToNative = %#v", v.ToNative())
	}
	if got[int32(1)] != "one" || got["two"] != int32(2) {
		t.Fatalf("ToNative = %#v", got)
	}
}

func TestMsgpack(t *testing.T) {
	when := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)
	v := NewMap(
		pair("n", Int32(300)),
		pair("s", String("hello, world")),
		pair("t", Time(when)),
		pair("nested", MapOf(String("ok"), Bool(true))),
	)
	b, err := msgpack.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var got Value
	if err := msgpack.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if n, err := got.ValueFor(String("n")).AsInt64(); err != nil || n != 300 {
		t.Fatalf("n = %d, %v", n, err)
	}
	if s, _ := got.ValueFor(String("s")).AsString(); s != "hello, world" {
		t.Fatalf("s = %q", s)
	}
	if tm, err := got.ValueFor(String("t")).AsTime(); err != nil || !tm.Equal(when) {
		t.Fatalf("t = %v, %v", tm, err)
	}
	if ok, _ := got.ValueFor(String("nested")).ValueFor(String("ok")).AsBool(); !ok {
		t.Fatal("nested.ok lost")
	}

	if _, err := msgpack.Marshal(Object(newTestObject())); !errors.IsKind(err, errors.KindUnsupported) {
		t.Fatalf("object encode: %v", err)
	}
}

func TestJSON(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"a":1,"b":"x","c":[1.5,true]}`), &v); err != nil {
		t.Fatal(err)
	}
	if v.ValueFor(String("a")).Type() != TypeInt64 {
		t.Fatalf("integral JSON number decoded as %s", v.ValueFor(String("a")).Type())
	}
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"a":1,"b":"x","c":[1.5,true]}` {
		t.Fatalf("json = %s", out)
	}
}
