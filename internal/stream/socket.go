// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package stream

import (
	"bufio"
	"container/list"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/alvr-org/alvr-streamd/internal/shard"
)

// Errors surfaced by Socket.Recv.
var (
	ErrTryAgain     = errors.New("stream: try again")
	ErrSocketClosed = errors.New("stream: socket closed")
	ErrUnsubscribed = shard.ErrUnknownStream
)

// ReconstructedPacket is a fully reassembled packet handed to a
// subscriber: header bytes followed by payload, contiguous, plus the
// wrapping packet index it arrived with.
type ReconstructedPacket struct {
	Index   uint32
	Data    []byte // header||payload
	backing []byte
	pool    *bufferPool
}

// Release returns the packet's backing array to its stream's buffer
// pool. Callers must call Release exactly once after consuming Data.
func (p *ReconstructedPacket) Release() {
	if p.pool != nil {
		p.pool.release(p.backing)
		p.pool = nil
	}
}

type inProgressPacket struct {
	streamID shard.StreamID
	index    uint32
	buf      []byte
	length   int
	received map[uint32]struct{}
	count    uint32
	elem     *list.Element // position in the global insertion-order list
}

func (ip *inProgressPacket) complete() bool {
	return uint32(len(ip.received)) >= ip.count
}

type streamState struct {
	id         shard.StreamID
	pool       *bufferPool
	packets    chan ReconstructedPacket
	lastIndex  uint32
	haveLast   bool
	inProgress map[uint32]*inProgressPacket
}

// Socket owns exactly one connected transport (UDP or TCP, abstracted
// as an io.ReadWriter) and multiplexes a closed set of logical
// streams over it. The write side is guarded by a mutex held for the
// duration of a single shard write, never a whole packet, so a small
// packet's shards can interleave with a large packet's.
type Socket struct {
	r             io.Reader
	w             io.Writer
	maxPacketSize uint32

	writeMu sync.Mutex

	mu          sync.Mutex
	streams     map[shard.StreamID]*streamState
	insertOrder *list.List // oldest-first list of *inProgressPacket across all streams
	closed      bool
}

// NewSocket wraps conn (a connected UDP or TCP transport) as a
// multiplexed stream socket with the given transport max_packet_size.
// The read side is buffered at maxPacketSize so that on a datagram
// transport each kernel read consumes one whole datagram; the framing
// parser then slices header and payload out of the buffer instead of
// issuing short reads that would truncate the datagram.
func NewSocket(conn io.ReadWriter, maxPacketSize uint32) *Socket {
	readBuf := int(maxPacketSize)
	if readBuf < 4096 {
		readBuf = 4096
	}
	return &Socket{
		r:             bufio.NewReaderSize(conn, readBuf),
		w:             conn,
		maxPacketSize: maxPacketSize,
		streams:       make(map[shard.StreamID]*streamState),
		insertOrder:   list.New(),
	}
}

// RequestStream registers id as an outgoing stream and returns a
// function that sends one packet (header bytes followed by payload)
// as one or more shards. The returned sender shares the socket's
// per-shard write lock with every other stream's sender.
func (s *Socket) RequestStream(id shard.StreamID) *RawSender {
	return &RawSender{sock: s, id: id}
}

// RawSender emits packets on one logical stream.
type RawSender struct {
	sock      *Socket
	id        shard.StreamID
	nextIndex uint32
}

// Send frames data (header||payload, already serialized by the
// caller) into shards and writes them to the socket in order, holding
// the write lock only for the duration of each individual shard.
func (sn *RawSender) Send(data []byte) error {
	buf := shard.NewBuffer(make([]byte, shard.HeaderSize+len(data)), shard.HeaderSize)
	copy(buf.GetRangeMut(0, len(data)), data)

	shards, err := shard.BuildShards(buf, sn.id, sn.nextIndex, sn.sock.maxPacketSize)
	if err != nil {
		return err
	}
	sn.nextIndex++

	for _, sh := range shards {
		sn.sock.writeMu.Lock()
		_, err := sn.sock.w.Write(sh)
		sn.sock.writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("stream: writing shard: %w", err)
		}
	}
	return nil
}

// SubscribeStream allocates a bounded pool of reusable buffers and a
// completion queue for incoming packets on id.
func (s *Socket) SubscribeStream(id shard.StreamID, maxConcurrentBuffers int) *RawReceiver {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &streamState{
		id:         id,
		pool:       newBufferPool(maxConcurrentBuffers),
		packets:    make(chan ReconstructedPacket, maxConcurrentBuffers),
		inProgress: make(map[uint32]*inProgressPacket),
	}
	s.streams[id] = st
	return &RawReceiver{sock: s, state: st}
}

// RawReceiver receives reassembled packets for one logical stream.
type RawReceiver struct {
	sock  *Socket
	state *streamState
}

// Recv blocks for the next reassembled packet on this stream, or
// returns ErrSocketClosed if the socket was closed with no packet
// pending.
func (r *RawReceiver) Recv() (ReconstructedPacket, error) {
	p, ok := <-r.state.packets
	if !ok {
		return ReconstructedPacket{}, ErrSocketClosed
	}
	return p, nil
}

// TryRecv returns immediately with ErrTryAgain if no packet is ready.
func (r *RawReceiver) TryRecv() (ReconstructedPacket, error) {
	select {
	case p, ok := <-r.state.packets:
		if !ok {
			return ReconstructedPacket{}, ErrSocketClosed
		}
		return p, nil
	default:
		return ReconstructedPacket{}, ErrTryAgain
	}
}

// RecvLoop reads and reassembles one shard per iteration until the
// socket is closed or a fatal read error occurs. It is meant to be run
// on a single dedicated goroutine, matching the "one reader thread"
// scheduling model of the stream socket.
func (s *Socket) RecvLoop() error {
	for {
		if err := s.recvOneShard(); err != nil {
			if errors.Is(err, ErrTryAgain) {
				continue
			}
			s.closeAll()
			return err
		}
	}
}

// recvOneShard performs exactly one shard read and, if it completes a
// packet, pushes it to that stream's completion queue.
func (s *Socket) recvOneShard() error {
	f, err := shard.ReadFrame(s.r)
	if err != nil {
		if err == shard.ErrTruncatedFrame {
			return ErrTryAgain
		}
		return fmt.Errorf("stream: reading shard header: %w", err)
	}

	payloadLen := int(f.Len) - (2 + 4 + 4 + 4)
	if payloadLen < 0 {
		return ErrTryAgain
	}

	s.mu.Lock()
	st, known := s.streams[f.StreamID]
	s.mu.Unlock()
	if !known {
		// Unsubscribed stream: discard the shard's remainder and move on.
		_, err := io.CopyN(io.Discard, s.r, int64(payloadLen))
		if err != nil {
			return fmt.Errorf("stream: discarding unknown-stream shard: %w", err)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st.haveLast {
		switch shard.WrappingCompare(f.PacketIndex, st.lastIndex) {
		case shard.OrderEqual, shard.OrderLess:
			if _, exists := st.inProgress[f.PacketIndex]; !exists {
				_, err := io.CopyN(io.Discard, s.r, int64(payloadLen))
				return err
			}
		}
	}

	ip, exists := st.inProgress[f.PacketIndex]
	if !exists {
		buf, ok := st.pool.acquire()
		if !ok {
			buf = s.cannibalize(st)
		}
		if buf == nil {
			buf = make([]byte, 0, s.maxPacketSize)
		}
		ip = &inProgressPacket{
			streamID: f.StreamID,
			index:    f.PacketIndex,
			buf:      buf,
			received: make(map[uint32]struct{}, f.ShardCount),
			count:    f.ShardCount,
		}
		ip.elem = s.insertOrder.PushBack(ip)
		st.inProgress[f.PacketIndex] = ip
	}

	start := int(f.ShardIndex) * (int(s.maxPacketSize) - shard.HeaderSize)
	end := start + payloadLen
	if end > len(ip.buf) {
		grown := make([]byte, end)
		copy(grown, ip.buf)
		ip.buf = grown
	}
	if _, err := io.ReadFull(s.r, ip.buf[start:end]); err != nil {
		return fmt.Errorf("stream: reading shard payload: %w", err)
	}
	if end > ip.length {
		ip.length = end
	}
	ip.received[f.ShardIndex] = struct{}{}

	if ip.complete() {
		delete(st.inProgress, ip.index)
		s.insertOrder.Remove(ip.elem)
		st.lastIndex = ip.index
		st.haveLast = true

		select {
		case st.packets <- ReconstructedPacket{Index: ip.index, Data: ip.buf[:ip.length], backing: ip.buf, pool: st.pool}:
		default:
			// Completion queue full: this just-completed packet is
			// dropped and its buffer recycled; caller is expected to
			// size maxConcurrentBuffers generously.
			st.pool.release(ip.buf)
		}

		s.evictStale(st)
	}

	return nil
}

// cannibalize steals the backing array of the oldest in-progress
// packet across all streams when the pool for st is exhausted,
// matching the "no free buffer, no in-progress packet discardable"
// backpressure rule: prefer the oldest in-progress packet overall.
func (s *Socket) cannibalize(st *streamState) []byte {
	elem := s.insertOrder.Front()
	if elem == nil {
		return nil
	}
	victim := elem.Value.(*inProgressPacket)
	s.insertOrder.Remove(elem)
	owner := s.streams[victim.streamID]
	delete(owner.inProgress, victim.index)
	return victim.buf
}

// evictStale removes any remaining in-progress packets on st whose
// index is now strictly stale relative to the stream's last delivered
// index, recycling their buffers.
func (s *Socket) evictStale(st *streamState) {
	for idx, ip := range st.inProgress {
		if shard.WrappingCompare(idx, st.lastIndex) == shard.OrderLess {
			delete(st.inProgress, idx)
			s.insertOrder.Remove(ip.elem)
			st.pool.release(ip.buf)
		}
	}
}

func (s *Socket) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, st := range s.streams {
		close(st.packets)
	}
}

// Close marks the socket closed and wakes all pending receivers.
func (s *Socket) Close() {
	s.closeAll()
}
