// Package bcs writes the canonical binary encoding used for ledger
// transaction data and pure call arguments.
package bcs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encoder appends BCS values to an internal buffer.
type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the encoded output.
func (e *Encoder) Bytes() []byte { return e.buf.Bytes() }

func (e *Encoder) ULEB128(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			e.buf.WriteByte(b | 0x80)
			continue
		}
		e.buf.WriteByte(b)
		return
	}
}

func (e *Encoder) U8(v uint8) { e.buf.WriteByte(v) }

func (e *Encoder) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) Bool(v bool) {
	if v {
		e.buf.WriteByte(1)
		return
	}
	e.buf.WriteByte(0)
}

// Fixed writes b without a length prefix (addresses, object ids).
func (e *Encoder) Fixed(b []byte) { e.buf.Write(b) }

// ByteVector writes a length-prefixed byte vector.
func (e *Encoder) ByteVector(b []byte) {
	e.ULEB128(uint64(len(b)))
	e.buf.Write(b)
}

func (e *Encoder) String(s string) { e.ByteVector([]byte(s)) }

// Length writes a vector length prefix; the caller writes the elements.
func (e *Encoder) Length(n int) { e.ULEB128(uint64(n)) }

// Variant writes an enum discriminant.
func (e *Encoder) Variant(idx int) { e.ULEB128(uint64(idx)) }

// Option writes the Some/None tag.
func (e *Encoder) Option(present bool) { e.Bool(present) }

// String encodes s as a pure argument.
func String(s string) []byte {
	e := NewEncoder()
	e.String(s)
	return e.Bytes()
}

// Strings encodes a vector of strings as a pure argument.
func Strings(ss []string) []byte {
	e := NewEncoder()
	e.Length(len(ss))
	for _, s := range ss {
		e.String(s)
	}
	return e.Bytes()
}

// U64 encodes v as a pure argument.
func U64(v uint64) []byte {
	e := NewEncoder()
	e.U64(v)
	return e.Bytes()
}

// Bool encodes v as a pure argument.
func Bool(v bool) []byte {
	e := NewEncoder()
	e.Bool(v)
	return e.Bytes()
}

// Address32 checks that b is a 32-byte account or object address.
func Address32(b []byte) ([]byte, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("address must be 32 bytes, got %d", len(b))
	}
	return b, nil
}
