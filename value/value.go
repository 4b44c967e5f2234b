package value

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/errors"
)

// Value is a tagged data cell: a scalar, string, byte blob, object
// reference or CompositeMap. The zero Value is undefined.
//
// Values are passed by value. Copies share out-of-line payloads and maps;
// every mutating method clones the map before changing it, so a copy never
// observes another copy's edits.
type Value struct {
	code   TypeCode
	n      uint8
	inline [InlineThreshold]byte
	data   []byte
	m      *CompositeMap
	obj    atom.Object
}

// Pair is one key/value entry of a map Value.
type Pair struct {
	Key   Value
	Value Value
}

// Undefined returns the undefined Value.
func Undefined() Value { return Value{} }

// Wild returns the match-anything sentinel used in lookups.
func Wild() Value { return Value{code: TypeWild} }

// fromPayload stores b inline when it fits; larger payloads are kept
// without copying and must not be modified afterwards.
func fromPayload(c TypeCode, b []byte) Value {
	v := Value{code: c}
	if len(b) <= InlineThreshold {
		v.n = uint8(copy(v.inline[:], b))
		return v
	}
	v.data = b
	return v
}

func Bool(b bool) Value {
	var p [1]byte
	if b {
		p[0] = 1
	}
	return fromPayload(TypeBool, p[:])
}

func Int8(i int8) Value {
	return fromPayload(TypeInt8, []byte{byte(i)})
}

func Int16(i int16) Value {
	p := make([]byte, 2)
	binary.NativeEndian.PutUint16(p, uint16(i))
	return fromPayload(TypeInt16, p)
}

func Int32(i int32) Value {
	p := make([]byte, 4)
	binary.NativeEndian.PutUint32(p, uint32(i))
	return fromPayload(TypeInt32, p)
}

func Int64(i int64) Value {
	p := make([]byte, 8)
	binary.NativeEndian.PutUint64(p, uint64(i))
	return fromPayload(TypeInt64, p)
}

func Float32(f float32) Value {
	p := make([]byte, 4)
	binary.NativeEndian.PutUint32(p, math.Float32bits(f))
	return fromPayload(TypeFloat32, p)
}

func Float64(f float64) Value {
	p := make([]byte, 8)
	binary.NativeEndian.PutUint64(p, math.Float64bits(f))
	return fromPayload(TypeFloat64, p)
}

// Time stores t as nanoseconds since the Unix epoch. Location and
// monotonic readings are not kept.
func Time(t time.Time) Value {
	p := make([]byte, 8)
	binary.NativeEndian.PutUint64(p, uint64(t.UnixNano()))
	return fromPayload(TypeTime, p)
}

func String(s string) Value {
	return fromPayload(TypeString, []byte(s))
}

// Raw returns an untyped byte blob holding a copy of b.
func Raw(b []byte) Value {
	return Bytes(TypeRaw, b)
}

// Bytes returns a Value of an application-defined code holding a copy of
// b. Codes reserved for maps, objects and the sentinels are rejected.
func Bytes(c TypeCode, b []byte) Value {
	if !c.Valid() || c == TypeUndefined || c == TypeWild || c == TypeMap || c.isObject() {
		errors.Fatalf(errors.PhaseValue, "type code %s cannot carry raw bytes", c)
	}
	if w := c.fixedWidth(); w >= 0 && w != len(b) {
		errors.Fatalf(errors.PhaseValue, "type code %s needs %d bytes, got %d", c, w, len(b))
	}
	return fromPayload(c, append([]byte(nil), b...))
}

// Object returns a strong object reference. The Value does not take a
// count of its own; flattening it into a parcel does.
func Object(obj atom.Object) Value {
	return Value{code: TypeObject, obj: obj}
}

// WeakObject returns a weak object reference.
func WeakObject(obj atom.Object) Value {
	return Value{code: TypeWeakObject, obj: obj}
}

// NewMap returns a map Value holding pairs. Later duplicates replace
// earlier ones. It panics with a contract violation on undefined or wild
// keys; use Edit to handle untrusted keys.
func NewMap(pairs ...Pair) Value {
	m, err := NewCompositeMap(pairs...)
	if err != nil {
		errors.Fatalf(errors.PhaseValue, "NewMap: %v", err)
	}
	return Value{code: TypeMap, m: m}
}

// LexicalMap is NewMap with case-folded string key order.
func LexicalMap(pairs ...Pair) Value {
	v := NewMap()
	v.m.order = OrderLexical
	for _, p := range pairs {
		if _, err := v.m.AddMapAt(p.Key, p.Value); err != nil {
			errors.Fatalf(errors.PhaseValue, "LexicalMap: %v", err)
		}
	}
	return v
}

// MapOf returns a single-pair map.
func MapOf(key, val Value) Value {
	return NewMap(Pair{Key: key, Value: val})
}

// fromMap wraps a map the caller already holds a user count on. The map is
// marked published and will not be recycled.
func fromMap(m *CompositeMap) Value {
	m.published.Store(true)
	return Value{code: TypeMap, m: m}
}

// Type returns the type code.
func (v Value) Type() TypeCode { return v.code }

func (v Value) IsUndefined() bool { return v.code == TypeUndefined }
func (v Value) IsDefined() bool   { return v.code != TypeUndefined }
func (v Value) IsWild() bool      { return v.code == TypeWild }
func (v Value) IsMap() bool       { return v.code == TypeMap }
func (v Value) IsObject() bool    { return v.code.isObject() }
func (v Value) IsWeak() bool      { return v.code == TypeWeakObject }

// IsInline reports whether the payload is stored inside the Value.
func (v Value) IsInline() bool {
	return v.code != TypeMap && !v.code.isObject() && v.data == nil
}

// Len returns the payload length in bytes. Maps report their entry count.
func (v Value) Len() int {
	switch {
	case v.code == TypeMap:
		return v.m.Len()
	case v.code.isObject():
		return 4
	case v.data != nil:
		return len(v.data)
	default:
		return int(v.n)
	}
}

// Data returns the scalar payload. The slice may alias shared storage and
// must not be modified.
func (v Value) Data() []byte {
	if v.data != nil {
		return v.data
	}
	return v.inline[:v.n]
}

// Map returns the backing map of a map Value, or nil. The map must be
// treated as read-only; change it through Edit.
func (v Value) Map() *CompositeMap {
	if v.code != TypeMap {
		return nil
	}
	return v.m
}

// Release drops this Value's user count on its map and clears v. Other
// copies of the Value stay valid: a published map, and the maps nested in
// it, are never recycled.
func (v *Value) Release() {
	if v.code == TypeMap && v.m != nil {
		v.m.DecUsers()
	}
	*v = Value{}
}

// Clone returns a copy whose map is private to it.
func (v Value) Clone() Value {
	if v.code != TypeMap || v.m == nil {
		return v
	}
	return fromMap(v.m.Clone())
}

// ValueFor returns the value stored under key, or undefined. A wild key
// returns v itself.
func (v Value) ValueFor(key Value) Value {
	if key.IsWild() {
		return v
	}
	if v.code != TypeMap {
		return Value{}
	}
	i, ok := v.m.IndexFor(key)
	if !ok {
		return Value{}
	}
	return v.m.pairs[i].Value
}

// Item is ValueFor that reports a missing key as not_found.
func (v Value) Item(key Value) (Value, error) {
	if key.IsWild() {
		return v, nil
	}
	if v.code == TypeMap {
		if i, ok := v.m.IndexFor(key); ok {
			return v.m.pairs[i].Value, nil
		}
	}
	return Value{}, errors.NotFound(errors.PhaseValue, "key", key.String())
}

// IndexFor returns the position of key (and, when given, matching value)
// in the map.
func (v Value) IndexFor(key Value, val ...Value) (int, bool) {
	if v.code != TypeMap {
		return -1, false
	}
	return v.m.IndexFor(key, val...)
}

// CountItems returns the number of pairs. A scalar counts as one item
// under the wild key; undefined has none.
func (v Value) CountItems() int {
	switch v.code {
	case TypeUndefined:
		return 0
	case TypeMap:
		return v.m.Len()
	default:
		return 1
	}
}

// String renders v for humans.
func (v Value) String() string {
	var b strings.Builder
	v.format(&b)
	return b.String()
}

func (v Value) format(b *strings.Builder) {
	switch v.code {
	case TypeUndefined:
		b.WriteString("undefined")
	case TypeWild:
		b.WriteString("*")
	case TypeBool:
		b.WriteString(strconv.FormatBool(v.Data()[0] != 0))
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		b.WriteString(strconv.FormatInt(v.int64(), 10))
	case TypeFloat32:
		b.WriteString(strconv.FormatFloat(v.float64(), 'g', -1, 32))
	case TypeFloat64:
		b.WriteString(strconv.FormatFloat(v.float64(), 'g', -1, 64))
	case TypeTime:
		b.WriteString(time.Unix(0, v.int64()).UTC().Format(time.RFC3339Nano))
	case TypeString:
		b.WriteString(strconv.Quote(string(v.Data())))
	case TypeMap:
		b.WriteByte('{')
		for i, p := range v.m.pairs {
			if i > 0 {
				b.WriteString(", ")
			}
			p.Key.format(b)
			b.WriteString(": ")
			p.Value.format(b)
		}
		b.WriteByte('}')
	case TypeObject, TypeWeakObject:
		if v.code == TypeWeakObject {
			b.WriteString("weak ")
		}
		if v.obj == nil {
			b.WriteString("nil")
			return
		}
		b.WriteString(atom.TypeName(v.obj))
		b.WriteByte('#')
		b.WriteString(strconv.FormatUint(v.obj.RefAtom().Serial(), 10))
	default:
		b.WriteString(v.code.String())
		b.WriteByte('(')
		d := v.Data()
		if len(d) > 32 {
			b.WriteString(hex.EncodeToString(d[:32]))
			b.WriteString("...")
		} else {
			b.WriteString(hex.EncodeToString(d))
		}
		b.WriteByte(')')
	}
}

// int64 decodes an integer or time payload.
func (v Value) int64() int64 {
	d := v.Data()
	switch v.code {
	case TypeInt8:
		return int64(int8(d[0]))
	case TypeInt16:
		return int64(int16(binary.NativeEndian.Uint16(d)))
	case TypeInt32:
		return int64(int32(binary.NativeEndian.Uint32(d)))
	default:
		return int64(binary.NativeEndian.Uint64(d))
	}
}

func (v Value) float64() float64 {
	d := v.Data()
	if v.code == TypeFloat32 {
		return float64(math.Float32frombits(binary.NativeEndian.Uint32(d)))
	}
	return math.Float64frombits(binary.NativeEndian.Uint64(d))
}
