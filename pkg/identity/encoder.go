package identity

import (
	"bytes"
	"encoding/binary"
)

// Field tags. Every value written to an Encoder is preceded by its tag so
// that values of different types, and absent values, never share a byte
// representation.
const (
	tagNull   byte = 0x00
	tagString byte = 0x01
	tagInt    byte = 0x02
	tagBool   byte = 0x03
	tagHash   byte = 0x04
	tagList   byte = 0x05
	tagKind   byte = 0x06
)

// Encoder accumulates the canonical byte representation of an entity.
type Encoder struct {
	buf bytes.Buffer
}

// Bytes returns the canonical bytes written so far.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// String writes s as its UTF-8 bytes, length prefixed.
func (e *Encoder) String(s string) {
	e.buf.WriteByte(tagString)
	e.uint32(uint32(len(s)))
	e.buf.WriteString(s)
}

// OptionalString writes s, or the null sentinel when s is empty.
func (e *Encoder) OptionalString(s string) {
	if s == "" {
		e.Null()
		return
	}

	e.String(s)
}

// Int writes v as a fixed-width big-endian block.
func (e *Encoder) Int(v int64) {
	e.buf.WriteByte(tagInt)

	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	e.buf.Write(b[:])
}

// Bool writes b as a one byte sentinel.
func (e *Encoder) Bool(b bool) {
	e.buf.WriteByte(tagBool)
	if b {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// Null writes the absence sentinel.
func (e *Encoder) Null() {
	e.buf.WriteByte(tagNull)
}

// Nested writes the identity of a nested entity, or the null sentinel when
// it is nil.
func (e *Encoder) Nested(v Identified) {
	if v == nil {
		e.Null()
		return
	}

	e.Ref(v.Identity())
}

// Ref writes a precomputed identity.
func (e *Encoder) Ref(h Hash) {
	e.buf.WriteByte(tagHash)
	e.buf.Write(h[:])
}

// List writes the header for a sequence of n elements. The caller writes
// the elements immediately afterwards.
func (e *Encoder) List(n int) {
	e.buf.WriteByte(tagList)
	e.uint32(uint32(n))
}

func (e *Encoder) kind(tag uint16) {
	e.buf.WriteByte(tagKind)

	var b [2]byte
	binary.BigEndian.PutUint16(b[:], tag)
	e.buf.Write(b[:])
}

func (e *Encoder) uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}
