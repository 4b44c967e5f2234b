package value

import (
	"encoding/binary"
	"testing"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/errors"
)

func TestArchive_RoundTrip(t *testing.T) {
	for _, v := range samples() {
		if v.IsWild() {
			continue
		}
		b, err := v.Archive()
		if err != nil {
			t.Fatalf("%v: %v", v, err)
		}
		if len(b) != v.ArchivedSize() {
			t.Fatalf("%v: archived %d bytes, ArchivedSize %d", v, len(b), v.ArchivedSize())
		}
		if len(b)%8 != 0 {
			t.Fatalf("%v: record length %d not 8-aligned", v, len(b))
		}
		got, n, err := Unarchive(b, nil)
		if err != nil {
			t.Fatalf("%v: unarchive: %v", v, err)
		}
		if n != len(b) {
			t.Fatalf("%v: consumed %d of %d", v, n, len(b))
		}
		if !Equal(got, v) || Compare(got, v) != 0 {
			t.Fatalf("round trip: got %v, want %v", got, v)
		}
	}
}

func TestArchive_Layout(t *testing.T) {
	small, _ := Int32(7).Archive()
	if len(small) != 8 {
		t.Fatalf("small record = %d bytes", len(small))
	}
	if w := binary.NativeEndian.Uint32(small); w != uint32(TypeInt32)|4 {
		t.Fatalf("small type word = %#x", w)
	}
	if p := int32(binary.NativeEndian.Uint32(small[4:])); p != 7 {
		t.Fatalf("small payload = %d", p)
	}

	large, _ := String("hello").Archive()
	if len(large) != 16 {
		t.Fatalf("large record = %d bytes", len(large))
	}
	if w := binary.NativeEndian.Uint32(large); w != uint32(TypeString)|0x80 {
		t.Fatalf("large type word = %#x", w)
	}
	if n := binary.NativeEndian.Uint32(large[4:]); n != 5 {
		t.Fatalf("large length = %d", n)
	}
	if string(large[8:13]) != "hello" || large[13] != 0 || large[15] != 0 {
		t.Fatalf("large body = %q", large[8:])
	}

	m, _ := LexicalMap(pair("a", Int32(1))).Archive()
	if w := binary.NativeEndian.Uint32(m); w != uint32(TypeMap)|0x80 {
		t.Fatalf("map type word = %#x", w)
	}
	if body := binary.NativeEndian.Uint32(m[4:]); int(body) != len(m)-8 {
		t.Fatalf("map body length = %d, record %d", body, len(m))
	}
	if c := binary.NativeEndian.Uint32(m[8:]); c != 1 {
		t.Fatalf("map count = %d", c)
	}
	if o := binary.NativeEndian.Uint32(m[12:]); o != uint32(OrderLexical) {
		t.Fatalf("map order flag = %d", o)
	}
}

func TestArchive_EndToEnd(t *testing.T) {
	v := NewMap(pair("b", String("x")), pair("a", Int32(1)))
	b, err := v.Archive()
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := Unarchive(b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(got.ValueFor(String("b")), String("x")) {
		t.Fatalf("b = %v", got.ValueFor(String("b")))
	}
	want := []Pair{pair("a", Int32(1)), pair("b", String("x"))}
	i := 0
	for k, val := range got.All() {
		if i >= len(want) {
			t.Fatalf("extra pair %v: %v", k, val)
		}
		if !Equal(k, want[i].Key) || !Equal(val, want[i].Value) {
			t.Fatalf("pair %d = %v: %v, want %v: %v", i, k, val, want[i].Key, want[i].Value)
		}
		i++
	}
	if i != 2 {
		t.Fatalf("iterated %d pairs", i)
	}
}

func TestArchive_LexicalOrderSurvives(t *testing.T) {
	v := LexicalMap(pair("b", Int32(1)), pair("A", Int32(2)))
	b, _ := v.Archive()
	got, _, err := Unarchive(b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Map().Order() != OrderLexical {
		t.Fatal("order flag lost")
	}
	if _, ok := got.IndexFor(String("A")); !ok {
		t.Fatal("lookup in unarchived lexical map failed")
	}
}

type objectTable struct {
	objs []atom.Object
	weak []bool
}

func (t *objectTable) FlattenObject(obj atom.Object, weak bool) (uint32, error) {
	t.objs = append(t.objs, obj)
	t.weak = append(t.weak, weak)
	return uint32(len(t.objs) - 1), nil
}

func (t *objectTable) UnflattenObject(i uint32, weak bool) (atom.Object, error) {
	if int(i) >= len(t.objs) || t.weak[i] != weak {
		return nil, errors.InvalidData(errors.PhaseUnarchive, "bad object index")
	}
	return t.objs[i], nil
}

func TestArchive_Objects(t *testing.T) {
	a, b := newTestObject(), newTestObject()
	v := NewMap(pair("strong", Object(a)), pair("weak", WeakObject(b)))

	if _, err := v.Archive(); !errors.IsKind(err, errors.KindUnsupported) {
		t.Fatalf("archive without table: %v", err)
	}

	var tab objectTable
	buf, err := v.AppendArchive(nil, &tab)
	if err != nil {
		t.Fatal(err)
	}
	if len(tab.objs) != 2 {
		t.Fatalf("flattened %d objects", len(tab.objs))
	}
	got, _, err := Unarchive(buf, &tab)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(got, v) {
		t.Fatalf("got %v, want %v", got, v)
	}
	if !got.ValueFor(String("weak")).IsWeak() {
		t.Fatal("weak discriminator lost")
	}
}

func record(word, length uint32, body ...byte) []byte {
	b := binary.NativeEndian.AppendUint32(nil, word)
	b = binary.NativeEndian.AppendUint32(b, length)
	return append(b, body...)
}

func TestUnarchive_Errors(t *testing.T) {
	keyB, _ := String("b").Archive()
	keyA, _ := String("a").Archive()
	one, _ := Int32(1).Archive()

	unsorted := binary.NativeEndian.AppendUint32(nil, 2)
	unsorted = binary.NativeEndian.AppendUint32(unsorted, 0)
	for _, r := range [][]byte{keyB, one, keyA, one} {
		unsorted = append(unsorted, r...)
	}

	tests := []struct {
		name string
		in   []byte
		kind errors.Kind
	}{
		{"empty", nil, errors.KindTruncated},
		{"short header", []byte{1, 2, 3}, errors.KindTruncated},
		{"small length too big", record(uint32(TypeString)|5, 0), errors.KindInvalidData},
		{"fixed width mismatch", record(uint32(TypeInt32)|2, 0), errors.KindInvalidData},
		{"large truncated", record(uint32(TypeString)|0x80, 100, 'x'), errors.KindTruncated},
		{"unknown flags", record(uint32(TypeString)|0x40, 0), errors.KindInvalidData},
		{"map in small record", record(uint32(TypeMap), 0), errors.KindInvalidData},
		{"map count too large", record(uint32(TypeMap)|0x80, 8, 9, 0, 0, 0, 0, 0, 0, 0), errors.KindInvalidData},
		{"unknown order", record(uint32(TypeMap)|0x80, 8, 0, 0, 0, 0, 7, 0, 0, 0), errors.KindInvalidData},
		{"keys out of order", record(uint32(TypeMap)|0x80, uint32(len(unsorted)), unsorted...), errors.KindInvalidData},
		{"object without table", record(uint32(TypeObject)|4, 0), errors.KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Unarchive(tt.in, nil)
			if !errors.IsKind(err, tt.kind) {
				t.Fatalf("err = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestUnarchive_DepthLimit(t *testing.T) {
	v := Int32(1)
	for i := 0; i <= maxArchiveDepth; i++ {
		v = MapOf(String("k"), v)
	}
	b, err := v.Archive()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := Unarchive(b, nil); !errors.IsKind(err, errors.KindInvalidData) {
		t.Fatalf("err = %v", err)
	}
}
