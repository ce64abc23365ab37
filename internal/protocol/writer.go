// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/binary"
	"math"
)

// Encoder accumulates a bincode-compatible little-endian encoding of a
// packet header: fixed-width integers, IEEE-754 floats, and u64-length
// prefixed UTF-8 strings. Variant tags of tagged unions are u32.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with capacity hinted by size.
func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated encoding.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) PutBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) PutU8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) PutU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutI64(v int64) { e.PutU64(uint64(v)) }

func (e *Encoder) PutF32(v float32) { e.PutU32(math.Float32bits(v)) }

func (e *Encoder) PutF64(v float64) { e.PutU64(math.Float64bits(v)) }

// PutString writes a u64 byte-length prefix followed by the raw UTF-8
// bytes, matching bincode's default string encoding.
func (e *Encoder) PutString(s string) {
	e.PutU64(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// PutBytes writes raw bytes with no length prefix, for fixed-size
// fields (NAL payloads embedded by an outer length) or tail payloads.
func (e *Encoder) PutBytes(b []byte) { e.buf = append(e.buf, b...) }

// PutOptionSome writes the one-byte presence tag bincode uses ahead of
// an Option<T>'s payload.
func (e *Encoder) PutOptionSome(some bool) { e.PutBool(some) }
