package value

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/errors"
)

// FromNative converts plain Go data into a Value. Slices become maps keyed
// by Int32 index; maps may have any key FromNative accepts.
func FromNative(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int8:
		return Int8(t), nil
	case int16:
		return Int16(t), nil
	case int32:
		return Int32(t), nil
	case int64:
		return Int64(t), nil
	case int:
		return Int64(int64(t)), nil
	case uint8:
		return Int16(int16(t)), nil
	case uint16:
		return Int32(int32(t)), nil
	case uint32:
		return Int64(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, errors.OutOfRange(errors.PhaseValue, t, "int64")
		}
		return Int64(int64(t)), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return Value{}, errors.OutOfRange(errors.PhaseValue, t, "int64")
		}
		return Int64(int64(t)), nil
	case float32:
		return Float32(t), nil
	case float64:
		return Float64(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Raw(t), nil
	case time.Time:
		return Time(t), nil
	case atom.Object:
		return Object(t), nil
	case map[string]any:
		return nativeMap(len(t), func(yield func(k, v any) error) error {
			for k, v := range t {
				if err := yield(k, v); err != nil {
					return err
				}
			}
			return nil
		})
	case map[any]any:
		return nativeMap(len(t), func(yield func(k, v any) error) error {
			for k, v := range t {
				if err := yield(k, v); err != nil {
					return err
				}
			}
			return nil
		})
	case []any:
		return nativeMap(len(t), func(yield func(k, v any) error) error {
			for i, v := range t {
				if err := yield(int32(i), v); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return fromReflect(reflect.ValueOf(x))
}

func nativeMap(n int, each func(yield func(k, v any) error) error) (Value, error) {
	m := newMap(n)
	err := each(func(k, v any) error {
		kv, err := FromNative(k)
		if err != nil {
			return err
		}
		vv, err := FromNative(v)
		if err != nil {
			return err
		}
		_, err = m.AddMapAt(kv, vv)
		return err
	})
	if err != nil {
		m.DecUsers()
		return Value{}, err
	}
	return fromMap(m), nil
}

// fromReflect handles typed slices and maps such as []string or
// map[string]int.
func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return nativeMap(rv.Len(), func(yield func(k, v any) error) error {
			for i := 0; i < rv.Len(); i++ {
				if err := yield(int32(i), rv.Index(i).Interface()); err != nil {
					return err
				}
			}
			return nil
		})
	case reflect.Map:
		return nativeMap(rv.Len(), func(yield func(k, v any) error) error {
			it := rv.MapRange()
			for it.Next() {
				if err := yield(it.Key().Interface(), it.Value().Interface()); err != nil {
					return err
				}
			}
			return nil
		})
	case reflect.Pointer:
		if rv.IsNil() {
			return Value{}, nil
		}
		return FromNative(rv.Elem().Interface())
	}
	return Value{}, errors.Unsupported(errors.PhaseValue, fmt.Sprintf("conversion from %s", rv.Type()))
}

// ToNative converts v to plain Go data: scalars to their Go types, blobs to
// []byte, maps with only string keys to map[string]any, maps keyed 0..n-1
// by integers to []any, and other maps to map[any]any. Wild converts to
// the string "*".
func (v Value) ToNative() any {
	switch v.code {
	case TypeUndefined:
		return nil
	case TypeWild:
		return "*"
	case TypeBool:
		return v.Data()[0] != 0
	case TypeInt8:
		return int8(v.int64())
	case TypeInt16:
		return int16(v.int64())
	case TypeInt32:
		return int32(v.int64())
	case TypeInt64:
		return v.int64()
	case TypeFloat32:
		return float32(v.float64())
	case TypeFloat64:
		return v.float64()
	case TypeTime:
		return time.Unix(0, v.int64()).UTC()
	case TypeString:
		return string(v.Data())
	case TypeObject, TypeWeakObject:
		return v.obj
	case TypeMap:
		return v.m.toNative()
	}
	return append([]byte(nil), v.Data()...)
}

func (m *CompositeMap) toNative() any {
	pairs := m.Pairs()
	allStrings, isList := true, true
	for i, p := range pairs {
		if p.Key.code != TypeString {
			allStrings = false
		}
		if !p.Key.code.isInteger() || p.Key.int64() != int64(i) {
			isList = false
		}
	}
	switch {
	case allStrings:
		out := make(map[string]any, len(pairs))
		for _, p := range pairs {
			out[string(p.Key.Data())] = p.Value.ToNative()
		}
		return out
	case isList:
		out := make([]any, len(pairs))
		for i, p := range pairs {
			out[i] = p.Value.ToNative()
		}
		return out
	}
	out := make(map[any]any, len(pairs))
	for _, p := range pairs {
		k := p.Key.ToNative()
		if b, ok := k.([]byte); ok {
			k = string(b)
		}
		out[k] = p.Value.ToNative()
	}
	return out
}

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
)

// EncodeMsgpack writes v as plain msgpack data. Object references cannot be
// encoded.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := v.checkPortable(); err != nil {
		return err
	}
	enc.SetSortMapKeys(true)
	return enc.Encode(v.ToNative())
}

// DecodeMsgpack reads any msgpack data into v.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	x, err := dec.DecodeInterface()
	if err != nil {
		return errors.Wrap(errors.PhaseUnarchive, errors.KindInvalidData, err, "msgpack")
	}
	nv, err := FromNative(x)
	if err != nil {
		return err
	}
	*v = nv
	return nil
}

// MarshalJSON renders v as JSON. Non-string map keys are formatted with
// String and blobs are base64 encoded.
func (v Value) MarshalJSON() ([]byte, error) {
	if err := v.checkPortable(); err != nil {
		return nil, err
	}
	return json.Marshal(v.jsonNative())
}

func (v Value) jsonNative() any {
	if v.code != TypeMap {
		return v.ToNative()
	}
	if list, ok := v.m.toNative().([]any); ok {
		for i, p := range v.m.pairs {
			list[i] = p.Value.jsonNative()
		}
		return list
	}
	out := make(map[string]any, v.m.Len())
	for _, p := range v.m.pairs {
		k := p.Key.String()
		if p.Key.code == TypeString {
			k = string(p.Key.Data())
		}
		out[k] = p.Value.jsonNative()
	}
	return out
}

// UnmarshalJSON parses JSON into v. Numbers become Int64 when integral and
// Float64 otherwise.
func (v *Value) UnmarshalJSON(b []byte) error {
	var x any
	if err := json.Unmarshal(b, &x); err != nil {
		return errors.Wrap(errors.PhaseUnarchive, errors.KindInvalidData, err, "json")
	}
	nv, err := FromNative(normalizeJSON(x))
	if err != nil {
		return err
	}
	*v = nv
	return nil
}

func normalizeJSON(x any) any {
	switch t := x.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeJSON(e)
		}
	case []any:
		for i, e := range t {
			t[i] = normalizeJSON(e)
		}
	}
	return x
}

func (v Value) checkPortable() error {
	switch {
	case v.code.isObject():
		return errors.Unsupported(errors.PhaseArchive, "object reference in portable encoding")
	case v.code == TypeMap:
		for _, p := range v.m.pairs {
			if err := p.Key.checkPortable(); err != nil {
				return err
			}
			if err := p.Value.checkPortable(); err != nil {
				return err
			}
		}
	}
	return nil
}

// SortedKeys returns the string keys of a map Value in sorted order; other
// keys are skipped.
func (v Value) SortedKeys() []string {
	var keys []string
	for k := range v.All() {
		if k.code == TypeString {
			keys = append(keys, string(k.Data()))
		}
	}
	sort.Strings(keys)
	return keys
}
