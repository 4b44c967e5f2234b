package parcel

import (
	"fmt"

	"github.com/wippyai/binderkit/errors"
)

// ObjectKind says whose handle space a flattened reference belongs to.
type ObjectKind uint8

const (
	// KindLocal: the sender's own object, exported under Handle in the
	// sender's handle space.
	KindLocal ObjectKind = iota + 1
	// KindRemote: an object owned by the receiver, referenced through the
	// handle the receiver exported it under.
	KindRemote
)

func (k ObjectKind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// FlatObject is one entry of a parcel's object table.
type FlatObject struct {
	Kind   ObjectKind
	Weak   bool
	Handle uint32
}

func (o FlatObject) String() string {
	s := fmt.Sprintf("%s:%d", o.Kind, o.Handle)
	if o.Weak {
		s += "(weak)"
	}
	return s
}

// FlatObjectSize is the encoded size of one table entry.
const FlatObjectSize = 8

// AppendObjects encodes an object table for transports that move parcels
// as bytes.
func AppendObjects(dst []byte, objs []FlatObject) []byte {
	for _, o := range objs {
		var weak byte
		if o.Weak {
			weak = 1
		}
		dst = append(dst, byte(o.Kind), weak, 0, 0)
		dst = native.AppendUint32(dst, o.Handle)
	}
	return dst
}

// ParseObjects decodes a table written by AppendObjects.
func ParseObjects(b []byte) ([]FlatObject, error) {
	if len(b)%FlatObjectSize != 0 {
		return nil, errors.InvalidData(errors.PhaseTransport, "object table length not a multiple of 8")
	}
	objs := make([]FlatObject, 0, len(b)/FlatObjectSize)
	for ; len(b) > 0; b = b[FlatObjectSize:] {
		o := FlatObject{
			Kind:   ObjectKind(b[0]),
			Weak:   b[1] != 0,
			Handle: native.Uint32(b[4:]),
		}
		if o.Kind != KindLocal && o.Kind != KindRemote {
			return nil, errors.InvalidData(errors.PhaseTransport, "unknown object kind "+o.Kind.String())
		}
		objs = append(objs, o)
	}
	return objs, nil
}
