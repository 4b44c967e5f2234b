package value

import "github.com/wippyai/binderkit"

// TypeCode identifies how a Value's payload is interpreted. Codes are
// three-character tags whose low byte is zero; archive records use that byte
// for length and layout flags.
type TypeCode uint32

func code(s string) TypeCode {
	return TypeCode(binderkit.ParseFourCC(s))
}

// Type codes. The zero code is undefined so that the zero Value is undefined.
var (
	TypeUndefined TypeCode = 0
	TypeWild               = code("WLD")
	TypeBool               = code("BOL")
	TypeInt8               = code("I08")
	TypeInt16              = code("I16")
	TypeInt32              = code("I32")
	TypeInt64              = code("I64")
	TypeFloat32            = code("F32")
	TypeFloat64            = code("F64")
	TypeTime               = code("TIM")
	TypeString             = code("STR")
	TypeRaw                = code("RAW")
	TypeMap                = code("MAP")
	TypeObject             = code("OBJ")
	TypeWeakObject         = code("WOB")
)

// InlineThreshold is the largest payload stored inside the Value itself.
// Longer payloads live in a shared, immutable out-of-line buffer.
const InlineThreshold = 4

// Archive record flags, carried in the low byte of the type word.
const (
	flagLarge   uint32 = 0x80
	lengthMask  uint32 = 0x0f
	flagMask    uint32 = 0xff
	recordAlign        = 8
	headerSize         = 8
)

// Valid reports whether c is a code with a clear low byte.
func (c TypeCode) Valid() bool {
	return uint32(c)&flagMask == 0
}

// String renders the code as its tag, for example 'I32'.
func (c TypeCode) String() string {
	if c == TypeUndefined {
		return "undefined"
	}
	return binderkit.FourCC(c).String()
}

// fixedWidth returns the payload size of fixed-size kinds, or -1.
func (c TypeCode) fixedWidth() int {
	switch c {
	case TypeUndefined, TypeWild:
		return 0
	case TypeBool, TypeInt8:
		return 1
	case TypeInt16:
		return 2
	case TypeInt32, TypeFloat32:
		return 4
	case TypeInt64, TypeFloat64, TypeTime:
		return 8
	case TypeObject, TypeWeakObject:
		return 4
	default:
		return -1
	}
}

func (c TypeCode) isObject() bool {
	return c == TypeObject || c == TypeWeakObject
}

func (c TypeCode) isInteger() bool {
	switch c {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return true
	}
	return false
}

func (c TypeCode) isFloat() bool {
	return c == TypeFloat32 || c == TypeFloat64
}
