// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package shard

// Buffer is an owned byte slice with a hidden prefix region reserved
// for shard framing plus a serialized packet header. Callers only see
// payload-length offsets; the prefix is never exposed through Bytes.
//
// internal/stream recycles its receive-side reassembly arrays through a
// per-stream free list; a Buffer itself is not pooled, and the sender
// allocates a new one for every packet.
type Buffer struct {
	inner        []byte
	hiddenOffset int
	length       int
}

// NewBuffer wraps inner, reserving hiddenOffset bytes at the front for
// shard/header framing. inner is reused as-is; callers that recycle
// buffers should pass the same backing array back in.
func NewBuffer(inner []byte, hiddenOffset int) *Buffer {
	return &Buffer{inner: inner, hiddenOffset: hiddenOffset}
}

// Len reports the payload-only length.
func (b *Buffer) Len() int { return b.length }

// SetLen sets the payload-only length. It does not grow inner; callers
// must have written that many payload bytes via GetRangeMut first.
func (b *Buffer) SetLen(length int) { b.length = length }

// Bytes returns the payload slice, excluding the hidden prefix.
func (b *Buffer) Bytes() []byte {
	return b.inner[b.hiddenOffset : b.hiddenOffset+b.length]
}

// GetRangeMut returns a writable slice of size bytes at payload offset
// offset, growing the underlying array if necessary. Length is bumped
// to cover the written range if it extends past the current length.
func (b *Buffer) GetRangeMut(offset, size int) []byte {
	end := b.hiddenOffset + offset + size
	if end > len(b.inner) {
		grown := make([]byte, end)
		copy(grown, b.inner)
		b.inner = grown
	}
	if offset+size > b.length {
		b.length = offset + size
	}
	return b.inner[b.hiddenOffset+offset : end]
}

// Reset clears the payload length and hidden-offset so the buffer can
// be reused for a different header size; the backing array is kept.
func (b *Buffer) Reset(hiddenOffset int) {
	b.hiddenOffset = hiddenOffset
	b.length = 0
}

// Inner returns the raw backing array, for recycling into a free list.
func (b *Buffer) Inner() []byte { return b.inner }

// HiddenOffset reports the reserved prefix size in use.
func (b *Buffer) HiddenOffset() int { return b.hiddenOffset }

// Cap reports the capacity of the backing array, used to decide
// whether a recycled buffer needs to grow before reuse.
func (b *Buffer) Cap() int { return len(b.inner) }
