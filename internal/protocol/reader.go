// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decoder parses a bincode-compatible little-endian encoding produced
// by Encoder. Every Get* method advances the internal cursor and
// returns ErrTruncatedFrame if fewer bytes remain than the field needs.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for sequential decoding from offset 0.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Pos reports the current read offset, i.e. how many bytes of buf the
// decoder has consumed so far.
func (d *Decoder) Pos() int { return d.pos }

// Remaining reports the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) need(n int) error {
	if d.Remaining() < n {
		return ErrTruncatedFrame
	}
	return nil
}

func (d *Decoder) GetBool() (bool, error) {
	if err := d.need(1); err != nil {
		return false, err
	}
	v := d.buf[d.pos] != 0
	d.pos++
	return v, nil
}

func (d *Decoder) GetU8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *Decoder) GetU16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *Decoder) GetU32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *Decoder) GetU64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *Decoder) GetI64() (int64, error) {
	v, err := d.GetU64()
	return int64(v), err
}

func (d *Decoder) GetF32() (float32, error) {
	v, err := d.GetU32()
	return math.Float32frombits(v), err
}

func (d *Decoder) GetF64() (float64, error) {
	v, err := d.GetU64()
	return math.Float64frombits(v), err
}

// GetString reads a u64 byte-length prefix followed by that many raw
// bytes as a UTF-8 string.
func (d *Decoder) GetString() (string, error) {
	n, err := d.GetU64()
	if err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("%w: %d", ErrStringTooLarge, n)
	}
	if err := d.need(int(n)); err != nil {
		return "", err
	}
	s := string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

// GetBytes reads exactly n raw bytes.
func (d *Decoder) GetBytes(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// Rest returns every remaining unread byte without advancing pos.
func (d *Decoder) Rest() []byte { return d.buf[d.pos:] }
