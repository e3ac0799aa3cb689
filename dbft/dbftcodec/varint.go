package dbftcodec

import (
	"encoding/binary"
	"math"
)

// AppendVarInt appends n in the variable-length count encoding.
func AppendVarInt(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= math.MaxUint16:
		dst = append(dst, 0xfd)
		return binary.LittleEndian.AppendUint16(dst, uint16(n))
	case n <= math.MaxUint32:
		dst = append(dst, 0xfe)
		return binary.LittleEndian.AppendUint32(dst, uint32(n))
	default:
		dst = append(dst, 0xff)
		return binary.LittleEndian.AppendUint64(dst, n)
	}
}

// AppendVarBytes appends a count-prefixed byte slice.
func AppendVarBytes(dst, b []byte) []byte {
	dst = AppendVarInt(dst, uint64(len(b)))
	return append(dst, b...)
}

// Reader consumes an encoded buffer.
//
// The first failure is sticky: once a read fails,
// every later read returns a zero value
// and [Reader.Err] reports the original failure.
// This lets decoders read a whole structure and check the error once.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err returns the first decoding failure, if any.
func (r *Reader) Err() error {
	return r.err
}

// Remaining is the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Fail records a failure at the current offset, unless one is already recorded.
func (r *Reader) Fail(reason DecodeReason, field string) {
	if r.err == nil {
		r.err = &DecodeError{Reason: reason, Offset: r.off, Field: field}
	}
}

// Finish reports the sticky error,
// or a TrailingBytes failure if unread input remains.
func (r *Reader) Finish(field string) error {
	if r.err == nil && r.Remaining() > 0 {
		r.Fail(ReasonTrailingBytes, field)
	}
	return r.err
}

func (r *Reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.Fail(ReasonTruncated, field)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// Uint8 reads one byte, failing with Truncated if too few bytes remain.
func (r *Reader) Uint8(field string) uint8 {
	b := r.take(1, field)
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint16 reads a little-endian uint16, failing with Truncated if too few bytes remain.
func (r *Reader) Uint16(field string) uint16 {
	b := r.take(2, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Uint32 reads a little-endian uint32, failing with Truncated if too few bytes remain.
func (r *Reader) Uint32(field string) uint32 {
	b := r.take(4, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Uint64 reads a little-endian uint64, failing with Truncated if too few bytes remain.
func (r *Reader) Uint64(field string) uint64 {
	b := r.take(8, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Fixed copies exactly len(dst) bytes into dst.
func (r *Reader) Fixed(dst []byte, field string) {
	b := r.take(len(dst), field)
	if b != nil {
		copy(dst, b)
	}
}

// VarInt reads a count and fails with OutOfRange if it exceeds limit.
func (r *Reader) VarInt(limit uint64, field string) uint64 {
	var n uint64
	switch marker := r.Uint8(field); marker {
	case 0xfd:
		n = uint64(r.Uint16(field))
	case 0xfe:
		n = uint64(r.Uint32(field))
	case 0xff:
		n = r.Uint64(field)
	default:
		n = uint64(marker)
	}
	if r.err != nil {
		return 0
	}
	if n > limit {
		r.Fail(ReasonOutOfRange, field)
		return 0
	}
	return n
}

// VarBytes reads a count-prefixed byte slice of at most limit bytes.
// The result is a copy; it does not alias the input buffer.
// An empty slice decodes as nil.
func (r *Reader) VarBytes(limit int, field string) []byte {
	n := r.VarInt(uint64(limit), field)
	if n == 0 {
		return nil
	}
	b := r.take(int(n), field)
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
