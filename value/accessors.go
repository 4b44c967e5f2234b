package value

import (
	"math"
	"strconv"
	"time"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/errors"
)

func (v Value) mismatch(want string) error {
	return errors.TypeMismatch(errors.PhaseValue, v.code.String(), want)
}

// AsBool converts v to a bool. Numbers convert by comparing with zero and
// strings are parsed with strconv.ParseBool.
func (v Value) AsBool() (bool, error) {
	switch {
	case v.code == TypeBool:
		return v.Data()[0] != 0, nil
	case v.code.isInteger():
		return v.int64() != 0, nil
	case v.code.isFloat():
		return v.float64() != 0, nil
	case v.code == TypeString:
		b, err := strconv.ParseBool(string(v.Data()))
		if err != nil {
			return false, v.mismatch("bool")
		}
		return b, nil
	}
	return false, v.mismatch("bool")
}

// AsInt64 converts v to an int64. Floats must be integral and in range,
// times convert to Unix nanoseconds and strings are parsed as decimal.
func (v Value) AsInt64() (int64, error) {
	switch {
	case v.code.isInteger(), v.code == TypeTime:
		return v.int64(), nil
	case v.code == TypeBool:
		if v.Data()[0] != 0 {
			return 1, nil
		}
		return 0, nil
	case v.code.isFloat():
		f := v.float64()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, errors.OutOfRange(errors.PhaseValue, f, "int64")
		}
		return int64(f), nil
	case v.code == TypeString:
		i, err := strconv.ParseInt(string(v.Data()), 10, 64)
		if err != nil {
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				return 0, errors.OutOfRange(errors.PhaseValue, string(v.Data()), "int64")
			}
			return 0, v.mismatch("int64")
		}
		return i, nil
	}
	return 0, v.mismatch("int64")
}

// AsInt32 is AsInt64 with a range check.
func (v Value) AsInt32() (int32, error) {
	i, err := v.AsInt64()
	if err != nil {
		if errors.IsKind(err, errors.KindTypeMismatch) {
			return 0, v.mismatch("int32")
		}
		return 0, err
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, errors.OutOfRange(errors.PhaseValue, i, "int32")
	}
	return int32(i), nil
}

// AsFloat64 converts numbers, bools and numeric strings to float64.
func (v Value) AsFloat64() (float64, error) {
	switch {
	case v.code.isFloat():
		return v.float64(), nil
	case v.code.isInteger():
		return float64(v.int64()), nil
	case v.code == TypeBool:
		if v.Data()[0] != 0 {
			return 1, nil
		}
		return 0, nil
	case v.code == TypeString:
		f, err := strconv.ParseFloat(string(v.Data()), 64)
		if err != nil {
			return 0, v.mismatch("float64")
		}
		return f, nil
	}
	return 0, v.mismatch("float64")
}

// AsString returns string payloads as is and formats numbers, bools and
// times. Blobs, maps and objects do not convert.
func (v Value) AsString() (string, error) {
	switch {
	case v.code == TypeString:
		return string(v.Data()), nil
	case v.code == TypeBool, v.code.isInteger(), v.code.isFloat(), v.code == TypeTime:
		return v.String(), nil
	}
	return "", v.mismatch("string")
}

// AsTime converts times and integer nanosecond counts.
func (v Value) AsTime() (time.Time, error) {
	switch {
	case v.code == TypeTime, v.code == TypeInt64:
		return time.Unix(0, v.int64()), nil
	case v.code == TypeString:
		t, err := time.Parse(time.RFC3339Nano, string(v.Data()))
		if err != nil {
			return time.Time{}, v.mismatch("time")
		}
		return t, nil
	}
	return time.Time{}, v.mismatch("time")
}

// AsObject returns the referenced object of a strong or weak object Value.
// The caller takes its own reference if it needs one.
func (v Value) AsObject() (atom.Object, error) {
	if !v.code.isObject() || v.obj == nil {
		return nil, v.mismatch("object")
	}
	return v.obj, nil
}

// AsMap returns the backing map of a map Value.
func (v Value) AsMap() (*CompositeMap, error) {
	if v.code != TypeMap {
		return nil, v.mismatch("map")
	}
	return v.m, nil
}
