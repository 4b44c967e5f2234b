package parcel

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/value"
)

// Flattener converts object references to and from their in-transit form.
// Each process supplies one. Flatten takes the transit reference that
// travels with the parcel; on the receiving side Unflatten consumes it,
// and Release drops one that was never consumed.
//
// Unflatten returns the object with one strong reference taken on behalf
// of Owner. The parcel drops it in Free, so objects read from a received
// parcel stay valid until then; callers acquire their own reference to
// keep one longer.
type Flattener interface {
	Flatten(obj atom.Object, weak bool) (FlatObject, error)
	Unflatten(fo FlatObject) (atom.Object, error)
	Release(fo FlatObject)
}

// Parcel is a single-use transaction buffer: bytes with independent read
// and write cursors plus the table of object references written into it.
type Parcel struct {
	buf      []byte
	pos      int
	objects  []FlatObject
	resolved []atom.Object
	consumed []bool
	flat     Flattener
}

var native = binary.NativeEndian

// Owner is the tracking owner of references a parcel holds on objects it
// unflattened.
const Owner = "parcel"

// New returns an empty parcel. f may be nil for parcels that never carry
// object references.
func New(f Flattener) *Parcel {
	return &Parcel{flat: f}
}

// FromBytes wraps received data and its object table. The parcel owns the
// transit references in objects until they are read or the parcel is freed.
func FromBytes(data []byte, objects []FlatObject, f Flattener) *Parcel {
	p := &Parcel{}
	p.Assign(data, objects, f)
	return p
}

// Assign frees p and replaces its contents with received data, as
// FromBytes does. It lets a caller-supplied reply parcel take a reply.
func (p *Parcel) Assign(data []byte, objects []FlatObject, f Flattener) {
	p.Free()
	p.buf = data
	p.pos = 0
	p.objects = objects
	p.resolved = make([]atom.Object, len(objects))
	p.consumed = make([]bool, len(objects))
	p.flat = f
}

const maxPooledParcelCapacity = 64 << 10

var parcelPool = sync.Pool{
	New: func() any { return &Parcel{} },
}

// Get returns an empty parcel from the pool.
func Get(f Flattener) *Parcel {
	p := parcelPool.Get().(*Parcel)
	p.flat = f
	return p
}

// Recycle frees p and returns it to the pool. p must not be used afterwards.
func (p *Parcel) Recycle() {
	p.Free()
	if cap(p.buf) > maxPooledParcelCapacity {
		p.buf = nil
	}
	p.buf = p.buf[:0]
	p.pos = 0
	p.flat = nil
	parcelPool.Put(p)
}

// Flattener returns the object flattener the parcel was created with.
func (p *Parcel) Flattener() Flattener { return p.flat }

// Bytes returns the written data. The slice aliases the parcel.
func (p *Parcel) Bytes() []byte { return p.buf }

// Length returns the number of bytes written.
func (p *Parcel) Length() int { return len(p.buf) }

// Position returns the read cursor.
func (p *Parcel) Position() int { return p.pos }

// Remaining returns the number of unread bytes.
func (p *Parcel) Remaining() int { return len(p.buf) - p.pos }

// SetPosition moves the read cursor.
func (p *Parcel) SetPosition(pos int) error {
	if pos < 0 || pos > len(p.buf) {
		return errors.IndexOutOfRange(errors.PhaseTransport, pos, len(p.buf))
	}
	p.pos = pos
	return nil
}

// SetLength truncates or zero-extends the data. The read cursor is clamped.
func (p *Parcel) SetLength(n int) error {
	if n < 0 {
		return errors.OutOfRange(errors.PhaseTransport, n, "parcel length")
	}
	if n <= len(p.buf) {
		p.buf = p.buf[:n]
	} else {
		p.buf = append(p.buf, make([]byte, n-len(p.buf))...)
	}
	p.pos = min(p.pos, n)
	return nil
}

// Reset frees held references and empties the parcel for reuse.
func (p *Parcel) Reset() {
	p.Free()
	p.buf = p.buf[:0]
	p.pos = 0
}

// Write appends b at the end of the data.
func (p *Parcel) Write(b []byte) (int, error) {
	p.buf = append(p.buf, b...)
	return len(b), nil
}

// Read reads from the read cursor. It returns io.EOF once all data is read.
func (p *Parcel) Read(b []byte) (int, error) {
	if p.pos >= len(p.buf) {
		if len(b) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(b, p.buf[p.pos:])
	p.pos += n
	return n, nil
}

func (p *Parcel) next(n int) ([]byte, error) {
	if p.Remaining() < n {
		return nil, errors.Truncated(errors.PhaseUnarchive, n, p.Remaining())
	}
	b := p.buf[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

func (p *Parcel) WriteInt32(v int32) {
	p.buf = native.AppendUint32(p.buf, uint32(v))
}

func (p *Parcel) ReadInt32() (int32, error) {
	b, err := p.next(4)
	if err != nil {
		return 0, err
	}
	return int32(native.Uint32(b)), nil
}

func (p *Parcel) WriteUint32(v uint32) {
	p.buf = native.AppendUint32(p.buf, v)
}

func (p *Parcel) ReadUint32() (uint32, error) {
	b, err := p.next(4)
	if err != nil {
		return 0, err
	}
	return native.Uint32(b), nil
}

// WriteString writes a length-prefixed string.
func (p *Parcel) WriteString(s string) {
	p.buf = native.AppendUint32(p.buf, uint32(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *Parcel) ReadString() (string, error) {
	n, err := p.ReadUint32()
	if err != nil {
		return "", err
	}
	b, err := p.next(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteValue archives v at the end of the data. Object references in v are
// flattened into the object table.
func (p *Parcel) WriteValue(v value.Value) error {
	start := len(p.buf)
	mark := len(p.objects)
	buf, err := v.AppendArchive(p.buf, p)
	if err != nil {
		p.buf = p.buf[:start]
		p.dropFrom(mark)
		return err
	}
	p.buf = buf
	return nil
}

// ReadValue unarchives the Value at the read cursor.
func (p *Parcel) ReadValue() (value.Value, error) {
	v, n, err := value.Unarchive(p.buf[p.pos:], p)
	if err != nil {
		return value.Value{}, err
	}
	p.pos += n
	return v, nil
}

// WriteObjectRef writes a strong or weak reference to obj.
func (p *Parcel) WriteObjectRef(obj atom.Object, weak bool) error {
	if weak {
		return p.WriteValue(value.WeakObject(obj))
	}
	return p.WriteValue(value.Object(obj))
}

// ReadObjectRef reads an object reference written by WriteObjectRef.
func (p *Parcel) ReadObjectRef() (obj atom.Object, weak bool, err error) {
	start := p.pos
	v, err := p.ReadValue()
	if err != nil {
		return nil, false, err
	}
	if !v.IsObject() {
		p.pos = start
		return nil, false, errors.TypeMismatch(errors.PhaseUnarchive, v.Type().String(), "object")
	}
	obj, _ = v.AsObject()
	return obj, v.IsWeak(), nil
}

// FlattenObject implements value.ObjectFlattener.
func (p *Parcel) FlattenObject(obj atom.Object, weak bool) (uint32, error) {
	if p.flat == nil {
		return 0, errors.Unsupported(errors.PhaseArchive, "parcel has no object flattener")
	}
	fo, err := p.flat.Flatten(obj, weak)
	if err != nil {
		return 0, err
	}
	p.objects = append(p.objects, fo)
	p.resolved = append(p.resolved, obj)
	p.consumed = append(p.consumed, false)
	return uint32(len(p.objects) - 1), nil
}

// UnflattenObject implements value.ObjectUnflattener. Reading the same
// entry twice returns the same object without consuming it again.
func (p *Parcel) UnflattenObject(i uint32, weak bool) (atom.Object, error) {
	if int(i) >= len(p.objects) {
		return nil, errors.IndexOutOfRange(errors.PhaseUnarchive, int(i), len(p.objects))
	}
	fo := p.objects[i]
	if fo.Weak != weak {
		return nil, errors.InvalidData(errors.PhaseUnarchive, "object reference strength does not match table")
	}
	if p.consumed[i] || p.resolved[i] != nil {
		return p.resolved[i], nil
	}
	if p.flat == nil {
		return nil, errors.Unsupported(errors.PhaseUnarchive, "parcel has no object flattener")
	}
	obj, err := p.flat.Unflatten(fo)
	if err != nil {
		return nil, err
	}
	p.resolved[i] = obj
	p.consumed[i] = true
	return obj, nil
}

// Objects returns the object table.
func (p *Parcel) Objects() []FlatObject { return p.objects }

// TakeObjects hands the object table and its transit references to the
// caller, typically a transport that has delivered the parcel. Free no
// longer releases them.
func (p *Parcel) TakeObjects() []FlatObject {
	objs := p.objects
	p.objects, p.resolved, p.consumed = nil, nil, nil
	return objs
}

// Free releases every transit reference that was neither consumed nor
// taken and drops the references held on unflattened objects. It is safe
// to call more than once.
func (p *Parcel) Free() {
	p.dropFrom(0)
}

func (p *Parcel) dropFrom(mark int) {
	for i := mark; i < len(p.objects); i++ {
		switch {
		case p.consumed[i]:
			p.resolved[i].RefAtom().DecStrong(Owner)
		case p.flat != nil:
			p.flat.Release(p.objects[i])
		}
	}
	p.objects = p.objects[:mark]
	p.resolved = p.resolved[:mark]
	p.consumed = p.consumed[:mark]
}
