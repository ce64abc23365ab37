// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package shard implements the wire-level shard framing used to carry
// packets of an arbitrary typed header over a single UDP or TCP socket:
// length-prefixed shards tagged with (stream-id, packet-index,
// shard-count, shard-index), self-delimiting from the first 18 bytes.
package shard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the fixed size in bytes of the shard prefix: len(4) +
// stream_id(2) + packet_index(4) + shard_count(4) + shard_index(4).
const HeaderSize = 18

// StreamID identifies one of the closed set of logical streams
// multiplexed over a single socket. IDs are opaque to the codec but
// must agree between both peers.
type StreamID uint16

const (
	StreamVideo      StreamID = 3
	StreamAudio      StreamID = 4
	StreamHaptics    StreamID = 5
	StreamTracking   StreamID = 6
	StreamStatistics StreamID = 7
)

var (
	ErrTruncatedFrame = errors.New("shard: truncated frame header")
	ErrUnknownStream  = errors.New("shard: unknown stream id")
)

// Frame is the decoded shard prefix. Len excludes itself and covers
// everything that follows it on the wire (stream_id through payload).
type Frame struct {
	Len         uint32
	StreamID    StreamID
	PacketIndex uint32
	ShardCount  uint32
	ShardIndex  uint32
}

// Encode writes the 18-byte header into dst, which must be at least
// HeaderSize bytes long. It never allocates.
func (f Frame) Encode(dst []byte) {
	binary.BigEndian.PutUint32(dst[0:4], f.Len)
	binary.BigEndian.PutUint16(dst[4:6], uint16(f.StreamID))
	binary.BigEndian.PutUint32(dst[6:10], f.PacketIndex)
	binary.BigEndian.PutUint32(dst[10:14], f.ShardCount)
	binary.BigEndian.PutUint32(dst[14:18], f.ShardIndex)
}

// DecodeFrame parses the 18-byte shard prefix from src. Src must carry
// at least HeaderSize bytes.
func DecodeFrame(src []byte) (Frame, error) {
	if len(src) < HeaderSize {
		return Frame{}, ErrTruncatedFrame
	}
	return Frame{
		Len:         binary.BigEndian.Uint32(src[0:4]),
		StreamID:    StreamID(binary.BigEndian.Uint16(src[4:6])),
		PacketIndex: binary.BigEndian.Uint32(src[6:10]),
		ShardCount:  binary.BigEndian.Uint32(src[10:14]),
		ShardIndex:  binary.BigEndian.Uint32(src[14:18]),
	}, nil
}

// ReadFrame reads and decodes one 18-byte shard header from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Frame{}, fmt.Errorf("reading shard header: %w", err)
	}
	return DecodeFrame(buf[:])
}

// WriteFrame writes an encoded shard header to w.
func WriteFrame(w io.Writer, f Frame) error {
	var buf [HeaderSize]byte
	f.Encode(buf[:])
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("writing shard header: %w", err)
	}
	return nil
}

// Ordering classifies a newly observed wrapping-u32 packet index
// against the last one delivered on a stream.
type Ordering int

const (
	OrderEqual Ordering = iota
	OrderGreater
	OrderLess
)

// WrappingCompare classifies newIdx relative to lastIdx using the same
// half-space rule as a TCP sequence-number comparison: the new index is
// "greater" (and deliverable) if the wrapping difference is less than
// half the index space, otherwise it is stale.
func WrappingCompare(newIdx, lastIdx uint32) Ordering {
	diff := newIdx - lastIdx // wraps implicitly in Go
	switch {
	case diff == 0:
		return OrderEqual
	case diff < 1<<31:
		return OrderGreater
	default:
		return OrderLess
	}
}
