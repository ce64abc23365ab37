// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package stream

import (
	"fmt"

	"github.com/alvr-org/alvr-streamd/internal/shard"
)

// Header is the marshaling half of a typed stream's packet header.
// Encode must be deterministic and side-effect free.
type Header interface {
	Encode() []byte
}

// DecodeFunc parses a header of type H from the front of data,
// returning the header and the number of bytes it consumed so the
// caller can slice off the remaining payload.
type DecodeFunc[H any] func(data []byte) (H, int, error)

// Sender emits typed packets (header H plus opaque payload) on one
// logical stream.
type Sender[H Header] struct {
	raw *RawSender
}

// RequestStream is the typed counterpart of Socket.RequestStream.
func RequestStream[H Header](s *Socket, id shard.StreamID) *Sender[H] {
	return &Sender[H]{raw: s.RequestStream(id)}
}

// Send serializes header and appends payload, then frames and sends
// the result as one packet.
func (sn *Sender[H]) Send(header H, payload []byte) error {
	hdr := header.Encode()
	data := make([]byte, 0, len(hdr)+len(payload))
	data = append(data, hdr...)
	data = append(data, payload...)
	return sn.raw.Send(data)
}

// ReconstructedTypedPacket is a reassembled packet with its header
// already decoded.
type ReconstructedTypedPacket[H any] struct {
	Index   uint32
	Header  H
	Payload []byte
	HadLoss bool
	raw     *ReconstructedPacket
}

// Release returns the packet's backing buffer to its stream's pool.
func (p *ReconstructedTypedPacket[H]) Release() { p.raw.Release() }

// Receiver receives and decodes typed packets for one logical stream,
// tracking packet loss across the wrapping packet-index sequence the
// same way the raw socket does per-stream, but additionally surfacing
// `HadLoss` to the caller (diff > 1 between consecutive delivered
// indices).
type Receiver[H any] struct {
	raw      *RawReceiver
	decode   DecodeFunc[H]
	lastIdx  uint32
	haveLast bool
}

// SubscribeStream is the typed counterpart of Socket.SubscribeStream.
func SubscribeStream[H any](s *Socket, id shard.StreamID, maxConcurrentBuffers int, decode DecodeFunc[H]) *Receiver[H] {
	return &Receiver[H]{raw: s.SubscribeStream(id, maxConcurrentBuffers), decode: decode}
}

// Recv blocks for the next packet, decodes its header, and reports
// whether a gap was detected since the last delivered packet on this
// stream.
func (r *Receiver[H]) Recv() (ReconstructedTypedPacket[H], error) {
	p, err := r.raw.Recv()
	if err != nil {
		return ReconstructedTypedPacket[H]{}, err
	}
	return r.decodePacket(p)
}

// TryRecv is the non-blocking counterpart of Recv.
func (r *Receiver[H]) TryRecv() (ReconstructedTypedPacket[H], error) {
	p, err := r.raw.TryRecv()
	if err != nil {
		return ReconstructedTypedPacket[H]{}, err
	}
	return r.decodePacket(p)
}

func (r *Receiver[H]) decodePacket(p ReconstructedPacket) (ReconstructedTypedPacket[H], error) {
	hdr, n, err := r.decode(p.Data)
	if err != nil {
		p.Release()
		return ReconstructedTypedPacket[H]{}, fmt.Errorf("stream: decoding packet header: %w", err)
	}

	hadLoss := false
	if r.haveLast {
		diff := p.Index - r.lastIdx
		hadLoss = diff > 1 && diff < 1<<31
	}
	r.lastIdx = p.Index
	r.haveLast = true

	return ReconstructedTypedPacket[H]{
		Index:   p.Index,
		Header:  hdr,
		Payload: p.Data[n:],
		HadLoss: hadLoss,
		raw:     &p,
	}, nil
}
