// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package stream

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/alvr-org/alvr-streamd/internal/shard"
)

type testHeader struct{ v uint32 }

func (h testHeader) Encode() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, h.v)
	return b
}

func decodeTestHeader(data []byte) (testHeader, int, error) {
	return testHeader{v: binary.LittleEndian.Uint32(data[:4])}, 4, nil
}

// Delivering packet indices 0xFFFFFFFE, 0xFFFFFFFF, 0x00000001 on one
// stream must report loss flags false, false, true: the index gap at
// 0x00000000 is detected even across the u32 wrap.
func TestSocket_LossDetectionAcrossWrap(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewSocket(clientConn, 1200)
	server := NewSocket(serverConn, 1200)

	sender := RequestStream[testHeader](client, shard.StreamTracking)
	receiver := SubscribeStream[testHeader](server, shard.StreamTracking, 4, decodeTestHeader)

	go server.RecvLoop()

	go func() {
		sender.raw.nextIndex = 0xFFFFFFFE
		_ = sender.Send(testHeader{v: 1}, nil) // index 0xFFFFFFFE
		_ = sender.Send(testHeader{v: 2}, nil) // index 0xFFFFFFFF
		sender.raw.nextIndex = 1               // packet 0x00000000 is lost
		_ = sender.Send(testHeader{v: 3}, nil) // index 0x00000001
	}()

	wantLoss := []bool{false, false, true}
	var lastIndex uint32
	for i := 0; i < 3; i++ {
		p, err := receiver.Recv()
		if err != nil {
			t.Fatalf("Recv %d: %v", i, err)
		}
		if p.HadLoss != wantLoss[i] {
			t.Errorf("packet %d: HadLoss = %v, want %v", i, p.HadLoss, wantLoss[i])
		}
		lastIndex = p.Index
		p.Release()
	}
	if lastIndex != 1 {
		t.Errorf("last packet index = %#x, want 1", lastIndex)
	}
}
