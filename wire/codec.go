// Package wire implements the canonical, length-prefixed, little-endian
// binary encoding mandated by the external-interfaces spec: every digest in
// the system is SHA-256 over a value's canonical encoding, and every wire
// message must round-trip byte-for-byte through Encode/Decode.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrShortBuffer is returned when a Decoder runs out of input mid-field.
var ErrShortBuffer = errors.New("wire: short buffer")

// Encoder accumulates a canonical byte encoding. It never returns errors:
// growth is unbounded in memory, the same tradeoff any bytes.Buffer-based
// marshaling helper makes.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) WriteUint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) WriteInt64(v int64) {
	e.WriteUint64(uint64(v))
}

// WriteBytes writes a length-prefixed byte slice (uint32 little-endian
// length followed by the raw bytes).
func (e *Encoder) WriteBytes(b []byte) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(b)))
	e.buf = append(e.buf, tmp[:]...)
	e.buf = append(e.buf, b...)
}

// WriteFixed writes a fixed-size slice without a length prefix. Callers are
// responsible for ensuring the slice is always exactly the declared size
// (identifiers are fixed-size).
func (e *Encoder) WriteFixed(b []byte) {
	e.buf = append(e.buf, b...)
}

// WriteString writes a length-prefixed UTF-8 string.
func (e *Encoder) WriteString(s string) {
	e.WriteBytes([]byte(s))
}

// Decoder consumes a canonical byte encoding produced by Encoder.
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(b []byte) *Decoder { return &Decoder{buf: b} }

func (d *Decoder) remaining() int { return len(d.buf) - d.off }

func (d *Decoder) ReadUint8() (uint8, error) {
	if d.remaining() < 1 {
		return 0, ErrShortBuffer
	}
	v := d.buf[d.off]
	d.off++
	return v, nil
}

func (d *Decoder) ReadUint64() (uint64, error) {
	if d.remaining() < 8 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off : d.off+8])
	d.off += 8
	return v, nil
}

func (d *Decoder) ReadInt64() (int64, error) {
	v, err := d.ReadUint64()
	return int64(v), err
}

func (d *Decoder) ReadBytes() ([]byte, error) {
	if d.remaining() < 4 {
		return nil, ErrShortBuffer
	}
	n := binary.LittleEndian.Uint32(d.buf[d.off : d.off+4])
	d.off += 4
	if d.remaining() < int(n) {
		return nil, ErrShortBuffer
	}
	out := make([]byte, n)
	copy(out, d.buf[d.off:d.off+int(n)])
	d.off += int(n)
	return out, nil
}

func (d *Decoder) ReadFixed(n int) ([]byte, error) {
	if d.remaining() < n {
		return nil, ErrShortBuffer
	}
	out := make([]byte, n)
	copy(out, d.buf[d.off:d.off+n])
	d.off += n
	return out, nil
}

func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Done reports whether the decoder has consumed every byte; callers round-
// tripping a full message should check this to reject trailing garbage.
func (d *Decoder) Done() bool { return d.remaining() == 0 }

// Encodable is implemented by every data-model type in the core so digests
// and wire transmission share one canonical representation.
type Encodable interface {
	EncodeCanonical(e *Encoder)
}

// Decodable is the paired decode side of Encodable.
type Decodable interface {
	DecodeCanonical(d *Decoder) error
}

// Marshal encodes v's canonical form into a standalone byte slice.
func Marshal(v Encodable) []byte {
	e := NewEncoder()
	v.EncodeCanonical(e)
	return e.Bytes()
}

// Unmarshal decodes b into v, failing if trailing bytes remain.
func Unmarshal(b []byte, v Decodable) error {
	d := NewDecoder(b)
	if err := v.DecodeCanonical(d); err != nil {
		return err
	}
	if !d.Done() {
		return io.ErrUnexpectedEOF
	}
	return nil
}
