// Package wire implements the canonical codec (C2): length-prefixed
// big-endian encoding and total, fail-closed decoding for every handshake
// and protocol message shape in spec §3-§6. No partial parse ever leaks to
// a caller: every reader method either returns a fully validated value or
// an error, and the top-level Decode* entry points reject trailing bytes.
package wire

import (
	"encoding/binary"

	qerrors "github.com/qsproto/qsp-core/internal/errors"
)

// Writer accumulates a canonical big-endian encoding.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer, optionally pre-sized.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

func (w *Writer) PutUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutFixed appends a byte slice with no length prefix, for fields of
// protocol-known constant width (e.g. a 32-byte public key).
func (w *Writer) PutFixed(b []byte) {
	w.buf = append(w.buf, b...)
}

// PutBytes16 appends a 16-bit length prefix followed by b.
func (w *Writer) PutBytes16(b []byte) {
	w.PutUint16(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

// PutBytes32 appends a 32-bit length prefix followed by b.
func (w *Writer) PutBytes32(b []byte) {
	w.PutUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf }

// Reader is a total, bounds-checked cursor over a canonical encoding.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential canonical decoding.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) remaining() int { return len(r.buf) - r.pos }

func (r *Reader) Uint16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, qerrors.ErrShortBuffer
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

func (r *Reader) Uint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, qerrors.ErrShortBuffer
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

// Fixed reads exactly n bytes with no length prefix.
func (r *Reader) Fixed(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, qerrors.ErrShortBuffer
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// Bytes16 reads a 16-bit-length-prefixed byte string.
func (r *Reader) Bytes16() ([]byte, error) {
	n, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	return r.Fixed(int(n))
}

// Bytes32 reads a 32-bit-length-prefixed byte string.
func (r *Reader) Bytes32() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if n > 1<<24 {
		return nil, qerrors.ErrBadLength
	}
	return r.Fixed(int(n))
}

// Done fails with ErrTrailingBytes if any input remains, the discipline C2
// requires for every top-level Decode* entry point.
func (r *Reader) Done() error {
	if r.remaining() != 0 {
		return qerrors.ErrTrailingBytes
	}
	return nil
}
