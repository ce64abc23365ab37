// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package shard

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestFrame_EncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{
		Len:         1234,
		StreamID:    StreamTracking,
		PacketIndex: 0xDEADBEEF,
		ShardCount:  3,
		ShardIndex:  1,
	}

	var buf [HeaderSize]byte
	f.Encode(buf[:])

	got, err := DecodeFrame(buf[:])
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if got != f {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestDecodeFrame_Truncated(t *testing.T) {
	if _, err := DecodeFrame(make([]byte, 10)); err != ErrTruncatedFrame {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}
}

func TestWrappingCompare(t *testing.T) {
	tests := []struct {
		name       string
		newIdx     uint32
		lastIdx    uint32
		wantResult Ordering
	}{
		{"duplicate", 5, 5, OrderEqual},
		{"simple advance", 6, 5, OrderGreater},
		{"wrap across max", 0x00000001, 0xFFFFFFFF, OrderGreater},
		{"wrap backwards two behind", 0xFFFFFFFF, 0x00000001, OrderLess},
		{"just under half the space ahead", 0, 0x80000001, OrderGreater},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrappingCompare(tt.newIdx, tt.lastIdx); got != tt.wantResult {
				t.Errorf("WrappingCompare(%#x, %#x) = %v, want %v", tt.newIdx, tt.lastIdx, got, tt.wantResult)
			}
		})
	}
}

// With max_packet_size 64 (data capacity 46 per shard), a 4-byte
// packet header plus an 80-byte payload is 84 bytes of data: two
// shards, a full 64-byte first one and a 56-byte final one (18-byte
// prefix plus the remaining 38 bytes), whose concatenated data regions
// reproduce header+payload exactly.
func TestBuildShards_TwoShardRoundTrip(t *testing.T) {
	const maxPacketSize = 64
	const headerLen = 4

	headerVal := uint32(0xCAFEBABE)
	payload := make([]byte, 80)
	for i := range payload {
		payload[i] = byte(i)
	}

	inner := make([]byte, HeaderSize+headerLen)
	buf := NewBuffer(inner, HeaderSize+headerLen)

	// Write header into the hidden prefix directly (callers normally do
	// this through a header codec; here we poke bytes manually for the
	// test) and payload into the visible region.
	hdrBytes := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(hdrBytes, headerVal)
	copy(buf.inner[HeaderSize:HeaderSize+headerLen], hdrBytes)
	copy(buf.GetRangeMut(0, len(payload)), payload)

	shards, err := BuildShards(buf, StreamVideo, 0, maxPacketSize)
	if err != nil {
		t.Fatalf("BuildShards: %v", err)
	}
	if len(shards) != 2 {
		t.Fatalf("expected 2 shards, got %d", len(shards))
	}
	if len(shards[0]) != 64 {
		t.Errorf("expected first shard of 64 bytes, got %d", len(shards[0]))
	}
	if len(shards[1]) != 56 {
		t.Errorf("expected second shard of 56 bytes, got %d", len(shards[1]))
	}

	// Reassemble data (header+payload) from the shard data regions and
	// compare against the original header+payload bytes.
	var reassembled bytes.Buffer
	for _, s := range shards {
		reassembled.Write(s[HeaderSize:])
	}
	want := append(append([]byte{}, hdrBytes...), payload...)
	if !bytes.Equal(reassembled.Bytes(), want) {
		t.Errorf("reassembled data mismatch")
	}

	f0, err := DecodeFrame(shards[0])
	if err != nil {
		t.Fatalf("DecodeFrame shard0: %v", err)
	}
	if f0.ShardCount != 2 || f0.ShardIndex != 0 {
		t.Errorf("unexpected shard0 frame: %+v", f0)
	}
}
