package value

import (
	"encoding/binary"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/errors"
)

// Archive record layout, host byte order:
//
//	small:  type|len  payload[4]                     (len <= 4)
//	large:  type|0x80 length  data  pad-to-8
//	map:    MAP|0x80  length  count  order  key value key value ...
//	object: OBJ|4 or WOB|4  table-index
//
// Every record is a multiple of 8 bytes.

// maxArchiveDepth bounds map nesting accepted by Unarchive.
const maxArchiveDepth = 64

// ObjectFlattener receives the object references met while archiving and
// returns the index recorded in their place.
type ObjectFlattener interface {
	FlattenObject(obj atom.Object, weak bool) (uint32, error)
}

// ObjectUnflattener resolves object table indexes while unarchiving.
type ObjectUnflattener interface {
	UnflattenObject(index uint32, weak bool) (atom.Object, error)
}

var native = binary.NativeEndian

func pad8(n int) int {
	return (n + recordAlign - 1) &^ (recordAlign - 1)
}

// ArchivedSize returns the number of bytes Archive produces for v.
func (v Value) ArchivedSize() int {
	switch {
	case v.code == TypeMap:
		return v.m.ArchivedSize()
	case v.code.isObject():
		return headerSize
	}
	if n := v.Len(); n > InlineThreshold {
		return headerSize + pad8(n)
	}
	return headerSize
}

// ArchivedSize returns the size of the map record including its header.
func (m *CompositeMap) ArchivedSize() int {
	n := headerSize + 8
	for _, p := range m.Pairs() {
		n += p.Key.ArchivedSize() + p.Value.ArchivedSize()
	}
	return n
}

// Archive flattens v. Values holding object references need
// AppendArchive with an ObjectFlattener.
func (v Value) Archive() ([]byte, error) {
	return v.AppendArchive(make([]byte, 0, v.ArchivedSize()), nil)
}

// AppendArchive appends v's archive record to dst.
func (v Value) AppendArchive(dst []byte, objs ObjectFlattener) ([]byte, error) {
	switch {
	case v.code == TypeMap:
		return v.m.Archive(dst, objs)
	case v.code.isObject():
		if objs == nil {
			return dst, errors.Unsupported(errors.PhaseArchive, "object reference without an object table")
		}
		idx, err := objs.FlattenObject(v.obj, v.code == TypeWeakObject)
		if err != nil {
			return dst, err
		}
		dst = native.AppendUint32(dst, uint32(v.code)|4)
		return native.AppendUint32(dst, idx), nil
	}
	d := v.Data()
	if len(d) <= InlineThreshold {
		var inline [InlineThreshold]byte
		copy(inline[:], d)
		dst = native.AppendUint32(dst, uint32(v.code)|uint32(len(d)))
		return append(dst, inline[:]...), nil
	}
	dst = native.AppendUint32(dst, uint32(v.code)|flagLarge)
	dst = native.AppendUint32(dst, uint32(len(d)))
	dst = append(dst, d...)
	return appendPadding(dst, len(d)), nil
}

func appendPadding(dst []byte, n int) []byte {
	for i := n; i < pad8(n); i++ {
		dst = append(dst, 0)
	}
	return dst
}

// Archive appends the map record to dst.
func (m *CompositeMap) Archive(dst []byte, objs ObjectFlattener) ([]byte, error) {
	start := len(dst)
	dst = native.AppendUint32(dst, uint32(TypeMap)|flagLarge)
	dst = native.AppendUint32(dst, 0) // body length, patched below
	dst = native.AppendUint32(dst, uint32(m.Len()))
	dst = native.AppendUint32(dst, uint32(m.Order()))
	var err error
	for _, p := range m.Pairs() {
		if dst, err = p.Key.AppendArchive(dst, objs); err != nil {
			return dst[:start], err
		}
		if dst, err = p.Value.AppendArchive(dst, objs); err != nil {
			return dst[:start], err
		}
	}
	native.PutUint32(dst[start+4:], uint32(len(dst)-start-headerSize))
	return dst, nil
}

// Unarchive decodes one record from the front of src and returns the Value
// and the number of bytes consumed. objs may be nil when no object
// references are expected.
func Unarchive(src []byte, objs ObjectUnflattener) (Value, int, error) {
	return unarchive(src, objs, 0)
}

func unarchive(src []byte, objs ObjectUnflattener, depth int) (Value, int, error) {
	if len(src) < headerSize {
		return Value{}, 0, errors.Truncated(errors.PhaseUnarchive, headerSize, len(src))
	}
	word := native.Uint32(src)
	c := TypeCode(word &^ flagMask)
	flags := word & flagMask

	if flags&flagLarge == 0 {
		if flags&^lengthMask != 0 || flags > InlineThreshold {
			return Value{}, 0, errors.InvalidData(errors.PhaseUnarchive, "bad small record flags")
		}
		n := int(flags)
		if c.isObject() {
			return unarchiveObject(c, n, native.Uint32(src[4:]), objs)
		}
		if c == TypeMap {
			return Value{}, 0, errors.InvalidData(errors.PhaseUnarchive, "map in small record")
		}
		v, err := scalar(c, src[4:4+n])
		return v, headerSize, err
	}

	if flags != flagLarge {
		return Value{}, 0, errors.InvalidData(errors.PhaseUnarchive, "bad large record flags")
	}
	n := int(native.Uint32(src[4:]))
	total := headerSize + pad8(n)
	if n < 0 || total > len(src) {
		return Value{}, 0, errors.Truncated(errors.PhaseUnarchive, total, len(src))
	}
	body := src[headerSize : headerSize+n]
	if c == TypeMap {
		if depth >= maxArchiveDepth {
			return Value{}, 0, errors.InvalidData(errors.PhaseUnarchive, "maps nested too deeply")
		}
		m, err := unarchiveMap(body, objs, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		return fromMap(m), total, nil
	}
	if c.isObject() {
		return Value{}, 0, errors.InvalidData(errors.PhaseUnarchive, "object reference in large record")
	}
	v, err := scalar(c, append([]byte(nil), body...))
	return v, total, err
}

func scalar(c TypeCode, payload []byte) (Value, error) {
	if w := c.fixedWidth(); w >= 0 && w != len(payload) {
		return Value{}, errors.New(errors.PhaseUnarchive, errors.KindInvalidData).
			Detail("type %s with %d payload bytes", c, len(payload)).
			Build()
	}
	if len(payload) <= InlineThreshold {
		return fromPayload(c, payload), nil
	}
	return Value{code: c, data: payload}, nil
}

func unarchiveObject(c TypeCode, n int, idx uint32, objs ObjectUnflattener) (Value, int, error) {
	if n != 4 {
		return Value{}, 0, errors.InvalidData(errors.PhaseUnarchive, "object reference must carry a 4-byte index")
	}
	if objs == nil {
		return Value{}, 0, errors.Unsupported(errors.PhaseUnarchive, "object reference without an object table")
	}
	obj, err := objs.UnflattenObject(idx, c == TypeWeakObject)
	if err != nil {
		return Value{}, 0, err
	}
	return Value{code: c, obj: obj}, headerSize, nil
}

func unarchiveMap(body []byte, objs ObjectUnflattener, depth int) (*CompositeMap, error) {
	if len(body) < 8 {
		return nil, errors.Truncated(errors.PhaseUnarchive, 8, len(body))
	}
	count := int(native.Uint32(body))
	order := Order(native.Uint32(body[4:]))
	if order != OrderDefault && order != OrderLexical {
		return nil, errors.InvalidData(errors.PhaseUnarchive, "unknown map order "+order.String())
	}
	rest := body[8:]
	// Each pair needs at least two 8-byte records.
	if count < 0 || count > len(rest)/(2*headerSize) {
		return nil, errors.InvalidData(errors.PhaseUnarchive, "map entry count exceeds record length")
	}

	m := newMap(count)
	m.order = order
	fail := func(err error) (*CompositeMap, error) {
		m.DecUsers()
		return nil, err
	}
	for i := 0; i < count; i++ {
		k, used, err := unarchive(rest, objs, depth)
		if err != nil {
			return fail(err)
		}
		rest = rest[used:]
		if err := checkKey(k); err != nil {
			return fail(errors.Wrap(errors.PhaseUnarchive, errors.KindInvalidData, err, "bad map key"))
		}
		v, used, err := unarchive(rest, objs, depth)
		if err != nil {
			drop(k)
			return fail(err)
		}
		rest = rest[used:]
		if n := len(m.pairs); n > 0 && order.compare(m.pairs[n-1].Key, k) >= 0 {
			drop(k)
			drop(v)
			return fail(errors.InvalidData(errors.PhaseUnarchive, "map keys out of order"))
		}
		m.pairs = append(m.pairs, Pair{Key: k, Value: v})
	}
	if len(rest) != 0 {
		return fail(errors.InvalidData(errors.PhaseUnarchive, "trailing bytes in map record"))
	}
	return m, nil
}
