package binderkit

import (
	"strconv"
	"strings"
)

// FourCC is a four-character style tag packed big-end first into 32 bits.
// Type codes and transaction codes are both FourCCs.
type FourCC uint32

// MakeFourCC packs four characters into a FourCC.
func MakeFourCC(a, b, c, d byte) FourCC {
	return FourCC(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d))
}

// ParseFourCC packs up to four characters of s; shorter strings are padded
// with zero bytes on the right.
func ParseFourCC(s string) FourCC {
	var b [4]byte
	copy(b[:], s)
	return MakeFourCC(b[0], b[1], b[2], b[3])
}

// Bytes returns the four characters in order.
func (c FourCC) Bytes() [4]byte {
	return [4]byte{byte(c >> 24), byte(c >> 16), byte(c >> 8), byte(c)}
}

// String renders printable codes as 'abcd' and everything else as hex.
func (c FourCC) String() string {
	b := c.Bytes()
	var sb strings.Builder
	sb.WriteByte('\'')
	for _, ch := range b {
		switch {
		case ch == 0:
			// trailing padding is common for three-letter type codes
			continue
		case ch < 0x20 || ch > 0x7e:
			return "0x" + strconv.FormatUint(uint64(c), 16)
		}
		sb.WriteByte(ch)
	}
	sb.WriteByte('\'')
	return sb.String()
}
