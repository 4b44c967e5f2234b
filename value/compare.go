package value

import (
	"bytes"
	"cmp"
	"math"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Compare orders Values totally. Undefined sorts first; otherwise values
// order by type code, then by payload length, then by payload bytes.
// Integers, floats and times of the same code order numerically instead of
// by bytes, maps order lexicographically over their pairs and object
// references by the object's serial number.
func Compare(a, b Value) int {
	if a.code != b.code {
		return cmp.Compare(a.code, b.code)
	}
	switch {
	case a.code == TypeUndefined, a.code == TypeWild:
		return 0
	case a.code == TypeMap:
		return compareMaps(a.m, b.m)
	case a.code.isObject():
		return cmp.Compare(serialOf(a), serialOf(b))
	case a.code.isInteger(), a.code == TypeTime:
		return cmp.Compare(a.int64(), b.int64())
	case a.code.isFloat():
		fa, fb := a.float64(), b.float64()
		if c := cmp.Compare(fa, fb); c != 0 {
			return c
		}
		// -0 and +0 compare equal numerically but are distinct keys.
		return cmp.Compare(math.Float64bits(fa), math.Float64bits(fb))
	}
	da, db := a.Data(), b.Data()
	if c := cmp.Compare(len(da), len(db)); c != 0 {
		return c
	}
	return bytes.Compare(da, db)
}

// Less reports whether a sorts before b.
func Less(a, b Value) bool { return Compare(a, b) < 0 }

// Equal reports whether a and b hold the same data. Maps are equal when
// they hold the same keys with equal values, whatever their order mode.
func Equal(a, b Value) bool {
	if a.code == TypeMap && b.code == TypeMap {
		x, y := a.m, b.m
		if x.Len() != y.Len() {
			return false
		}
		if x == y {
			return true
		}
		for _, p := range x.pairs {
			i, ok := y.IndexFor(p.Key)
			if !ok || !Equal(p.Value, y.pairs[i].Value) {
				return false
			}
		}
		return true
	}
	return Compare(a, b) == 0
}

// Equal is the method form of the package function.
func (v Value) Equal(other Value) bool { return Equal(v, other) }

// Compare is the method form of the package function.
func (v Value) Compare(other Value) int { return Compare(v, other) }

func compareMaps(x, y *CompositeMap) int {
	nx, ny := x.Len(), y.Len()
	for i := 0; i < min(nx, ny); i++ {
		px, py := x.pairs[i], y.pairs[i]
		if c := Compare(px.Key, py.Key); c != 0 {
			return c
		}
		if c := Compare(px.Value, py.Value); c != 0 {
			return c
		}
	}
	return cmp.Compare(nx, ny)
}

func serialOf(v Value) uint64 {
	if v.obj == nil {
		return 0
	}
	return v.obj.RefAtom().Serial()
}

// Order selects how a map sorts its keys.
type Order uint32

const (
	// OrderDefault sorts keys with Compare.
	OrderDefault Order = 0
	// OrderLexical sorts string keys case-insensitively. Keys that differ
	// only in case still sort apart, by their raw bytes.
	OrderLexical Order = 1
)

func (o Order) String() string {
	switch o {
	case OrderDefault:
		return "default"
	case OrderLexical:
		return "lexical"
	default:
		return "order(" + strconv.FormatUint(uint64(o), 10) + ")"
	}
}

// Caser values are stateful.
var folders = sync.Pool{
	New: func() any {
		c := cases.Fold()
		return &c
	},
}

func fold(s []byte) string {
	c := folders.Get().(*cases.Caser)
	out := c.String(string(s))
	folders.Put(c)
	return out
}

// CompareLexical orders like Compare except that string values are compared
// case-folded first and by raw bytes second.
func CompareLexical(a, b Value) int {
	if a.code != TypeString || b.code != TypeString {
		return Compare(a, b)
	}
	da, db := a.Data(), b.Data()
	if c := strings.Compare(fold(da), fold(db)); c != 0 {
		return c
	}
	return bytes.Compare(da, db)
}

func (o Order) compare(a, b Value) int {
	if o == OrderLexical {
		return CompareLexical(a, b)
	}
	return Compare(a, b)
}
