package stream

import (
	"encoding/binary"
	"io"

	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/parcel"
)

const (
	// Magic opens every frame: 'BNDR'.
	Magic uint32 = 'B'<<24 | 'N'<<16 | 'D'<<8 | 'R'

	Version uint16 = 1

	// HeaderLen is the size of the fixed frame header.
	HeaderLen = 32
)

// Wire flags. The low 16 bits carry binder.Flags.
const (
	FlagReply uint32 = 1 << 31

	binderFlagMask uint32 = 0xffff
)

// Header is the fixed frame header. All fields are big-endian on the wire.
type Header struct {
	Magic      uint32
	Version    uint16
	HeaderLen  uint16
	ID         uint32
	Handle     uint32
	Code       uint32
	Flags      uint32
	Status     int32
	PayloadLen uint32
}

// Frame is one transaction or reply. Data holds the parcel bytes, or the
// failure detail of a reply with a non-zero status.
type Frame struct {
	Header  Header
	Data    []byte
	Objects []parcel.FlatObject
}

// IsReply reports whether the frame answers an earlier transaction.
func (f *Frame) IsReply() bool { return f.Header.Flags&FlagReply != 0 }

// Limits constrains frame sizes accepted from the peer.
type Limits struct {
	MaxPayloadBytes uint32
	MaxObjects      int
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 16 * 1024 * 1024,
		MaxObjects:      4096,
	}
}

// EncodeHeader writes h into the first HeaderLen bytes of buf.
func EncodeHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.BigEndian.PutUint32(buf[8:12], h.ID)
	binary.BigEndian.PutUint32(buf[12:16], h.Handle)
	binary.BigEndian.PutUint32(buf[16:20], h.Code)
	binary.BigEndian.PutUint32(buf[20:24], h.Flags)
	binary.BigEndian.PutUint32(buf[24:28], uint32(h.Status))
	binary.BigEndian.PutUint32(buf[28:32], h.PayloadLen)
}

// DecodeHeader reads a fixed header.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, errors.Truncated(errors.PhaseTransport, HeaderLen, len(b))
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		HeaderLen:  binary.BigEndian.Uint16(b[6:8]),
		ID:         binary.BigEndian.Uint32(b[8:12]),
		Handle:     binary.BigEndian.Uint32(b[12:16]),
		Code:       binary.BigEndian.Uint32(b[16:20]),
		Flags:      binary.BigEndian.Uint32(b[20:24]),
		Status:     int32(binary.BigEndian.Uint32(b[24:28])),
		PayloadLen: binary.BigEndian.Uint32(b[28:32]),
	}, nil
}

// AppendFrame encodes f. The payload is a 4-byte data length, the data and
// the object table.
func AppendFrame(dst []byte, f Frame) []byte {
	payload := 4 + len(f.Data) + len(f.Objects)*parcel.FlatObjectSize
	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.HeaderLen = HeaderLen
	h.PayloadLen = uint32(payload)

	start := len(dst)
	dst = append(dst, make([]byte, HeaderLen)...)
	EncodeHeader(dst[start:], h)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(f.Data)))
	dst = append(dst, f.Data...)
	return parcel.AppendObjects(dst, f.Objects)
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [HeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Frame{}, errors.Truncated(errors.PhaseTransport, HeaderLen, 0)
		}
		return Frame{}, err
	}
	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, errors.InvalidData(errors.PhaseTransport, "bad frame magic")
	}
	if h.Version != Version {
		return Frame{}, errors.Unsupported(errors.PhaseTransport, "frame version")
	}
	if h.HeaderLen < HeaderLen {
		return Frame{}, errors.InvalidData(errors.PhaseTransport, "header length smaller than fixed header")
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, errors.OutOfRange(errors.PhaseTransport, h.PayloadLen, "payload limit")
	}
	if extra := int(h.HeaderLen) - HeaderLen; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return Frame{}, err
		}
	}

	payload := make([]byte, h.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	if len(payload) < 4 {
		return Frame{}, errors.Truncated(errors.PhaseTransport, 4, len(payload))
	}
	n := int(binary.BigEndian.Uint32(payload))
	payload = payload[4:]
	if n > len(payload) {
		return Frame{}, errors.Truncated(errors.PhaseTransport, n, len(payload))
	}
	objs, err := parcel.ParseObjects(payload[n:])
	if err != nil {
		return Frame{}, err
	}
	if len(objs) > limits.MaxObjects {
		return Frame{}, errors.OutOfRange(errors.PhaseTransport, len(objs), "object limit")
	}
	return Frame{Header: h, Data: payload[:n], Objects: objs}, nil
}

// transactionFrame builds the frame carrying tx.
func transactionFrame(id uint32, tx *binder.Transaction) Frame {
	return Frame{
		Header: Header{
			ID:     id,
			Handle: uint32(tx.Handle),
			Code:   uint32(tx.Code),
			Flags:  uint32(tx.Flags) & binderFlagMask,
		},
		Data:    tx.Data,
		Objects: tx.Objects,
	}
}

// replyFrame builds the answer to transaction id.
func replyFrame(id uint32, rep *binder.Reply) Frame {
	f := Frame{
		Header: Header{ID: id, Flags: FlagReply, Status: int32(rep.Status)},
		Data:   rep.Data,
	}
	if rep.Status != errors.StatusOK {
		f.Data = []byte(rep.Detail)
	} else {
		f.Objects = rep.Objects
	}
	return f
}

func (f *Frame) transaction() *binder.Transaction {
	return &binder.Transaction{
		Handle:  binder.Handle(f.Header.Handle),
		Code:    binder.Code(f.Header.Code),
		Flags:   binder.Flags(f.Header.Flags & binderFlagMask),
		Data:    f.Data,
		Objects: f.Objects,
	}
}

func (f *Frame) reply() *binder.Reply {
	rep := &binder.Reply{Status: errors.Status(f.Header.Status)}
	if rep.Status != errors.StatusOK {
		rep.Detail = string(f.Data)
		return rep
	}
	rep.Data = f.Data
	rep.Objects = f.Objects
	return rep
}
