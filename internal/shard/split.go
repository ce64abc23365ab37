// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package shard

import "fmt"

// ErrShardTooLarge is returned when maxPacketSize cannot even hold the
// 18-byte header.
var ErrShardTooLarge = fmt.Errorf("shard: max_packet_size must exceed header size %d", HeaderSize)

// BuildShards splits buf (header + payload already written into its
// hidden prefix and payload region) into one or more on-wire shards
// for packetIndex on streamID, given a transport max_packet_size.
//
// Shard 0's 18-byte header is written directly into buf's reserved
// prefix, and shard 0 is returned as a view into buf's backing array.
// Each later shard i is copied into a slice of its own: its header
// followed by data bytes [i*(maxPacketSize-HeaderSize), ...). No
// shard's header overwrites another shard's data, so every returned
// slice stays intact until it is sent; shard 0 must be sent before the
// buffer is reused.
func BuildShards(buf *Buffer, streamID StreamID, packetIndex uint32, maxPacketSize uint32) ([][]byte, error) {
	if int(maxPacketSize) <= HeaderSize {
		return nil, ErrShardTooLarge
	}
	s := int(maxPacketSize) - HeaderSize
	dataSize := buf.hiddenOffset - HeaderSize + buf.length
	shardsCount := (dataSize + s - 1) / s
	if shardsCount == 0 {
		shardsCount = 1 // an empty packet still yields one (empty) shard
	}

	shards := make([][]byte, 0, shardsCount)
	for i := 0; i < shardsCount; i++ {
		dataStart := HeaderSize + i*s
		dataEnd := HeaderSize + (i+1)*s
		if max := HeaderSize + dataSize; dataEnd > max {
			dataEnd = max
		}
		shardDataLen := dataEnd - dataStart

		f := Frame{
			Len:         uint32(2 + 4 + 4 + 4 + shardDataLen),
			StreamID:    streamID,
			PacketIndex: packetIndex,
			ShardCount:  uint32(shardsCount),
			ShardIndex:  uint32(i),
		}
		if i == 0 {
			f.Encode(buf.inner[0:HeaderSize])
			shards = append(shards, buf.inner[:dataEnd])
			continue
		}
		out := make([]byte, HeaderSize+shardDataLen)
		f.Encode(out)
		copy(out[HeaderSize:], buf.inner[dataStart:dataEnd])
		shards = append(shards, out)
	}
	return shards, nil
}
