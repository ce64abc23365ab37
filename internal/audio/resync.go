// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package audio implements the real-time resynchronization ring
// buffer: a producer pushes 16-bit PCM at packet rate, a consumer
// pulls fixed-size batches at device rate, and the ring hides
// underrun, overrun, and loss behind linear fade-in/out/cross-fade
// envelopes bounded to one batch.
package audio

import "sync"

// Ring is a channel-interleaved int16 PCM ring targeted at an average
// occupancy. The mutex is held only for the duration of a single Push
// or PullBatch call, never across I/O.
type Ring struct {
	mu sync.Mutex

	channels    int
	batchFrames int
	avgFrames   int

	main     []int16 // frame-interleaved samples currently playable
	recovery []int16 // staging buffer filled during loss/underrun recovery
}

// NewRing builds a Ring for the given channel count, sample rate, and
// batch/average-buffering durations (in milliseconds), matching the
// `batch_frames = sample_rate * batch_ms / 1000` derivation.
func NewRing(channels, sampleRate, batchMs, averageBufferingMs int) *Ring {
	return &Ring{
		channels:    channels,
		batchFrames: sampleRate * batchMs / 1000,
		avgFrames:   sampleRate * averageBufferingMs / 1000,
	}
}

// BatchFrames reports the frame count of one pull batch.
func (r *Ring) BatchFrames() int { return r.batchFrames }

func (r *Ring) framesOf(buf []int16) int {
	if r.channels == 0 {
		return 0
	}
	return len(buf) / r.channels
}

// OccupancyFrames reports the number of playable frames currently
// buffered, for tests and telemetry.
func (r *Ring) OccupancyFrames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.framesOf(r.main)
}

// PullBatch drains exactly one batch for the audio device callback. If
// occupancy is below one batch it returns silence; if draining leaves
// less than one batch behind, the returned batch is faded out linearly
// so the next silent pull isn't an audible cliff.
func (r *Ring) PullBatch() []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	batchLen := r.batchFrames * r.channels
	occupancy := r.framesOf(r.main)

	if occupancy < r.batchFrames {
		return make([]int16, batchLen)
	}

	out := make([]int16, batchLen)
	copy(out, r.main[:batchLen])
	r.main = append([]int16(nil), r.main[batchLen:]...)

	if r.framesOf(r.main) < r.batchFrames {
		fadeOut(out, r.channels, r.batchFrames)
	}
	return out
}

// Push appends newly received samples to the ring, applying the
// loss/underrun recovery and overflow-trim rules. samples must be a
// whole number of frames (len(samples) % channels == 0).
func (r *Ring) Push(samples []int16, hadPacketLoss bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if hadPacketLoss {
		if r.framesOf(r.main) < r.batchFrames {
			r.main = r.main[:0]
		} else {
			batchLen := r.batchFrames * r.channels
			r.main = append([]int16(nil), r.main[:batchLen]...)
		}
		r.recovery = r.recovery[:0]
	}

	if r.framesOf(r.main) < r.batchFrames {
		r.recovery = append(r.recovery, r.main...)
		r.main = r.main[:0]
	}

	if len(r.main) == 0 || hadPacketLoss {
		r.recovery = append(r.recovery, samples...)

		if r.framesOf(r.recovery) > r.avgFrames+r.batchFrames {
			batchLen := r.batchFrames * r.channels
			if batchLen > len(r.recovery) {
				batchLen = len(r.recovery)
			}
			fadeIn(r.recovery[:batchLen], r.channels, r.batchFrames)

			if hadPacketLoss && r.framesOf(r.main) == r.batchFrames {
				mainBatchLen := r.batchFrames * r.channels
				crossFadeInto(r.recovery[:batchLen], r.main[:mainBatchLen], r.channels, r.batchFrames)
				r.main = r.main[:0]
			}

			r.main = append(r.main, r.recovery...)
			r.recovery = r.recovery[:0]
		}
	} else {
		r.main = append(r.main, samples...)
	}

	r.trimOverflow()
}

// trimOverflow enforces the `[0, 2*avg + batch]` occupancy bound:
// anything beyond it is drained down to avgFrames, with a one-batch
// cross-fade between the drained samples and the new head — the head
// ramps up as the drained material ramps down, so the seam never sums
// two full-volume signals. Must be called with mu held.
func (r *Ring) trimOverflow() {
	ceiling := 2*r.avgFrames + r.batchFrames
	occupancy := r.framesOf(r.main)
	if occupancy <= ceiling {
		return
	}

	cut := (occupancy - r.avgFrames) * r.channels
	drained := append([]int16(nil), r.main[:cut]...)
	r.main = append([]int16(nil), r.main[cut:]...)

	frames := r.batchFrames
	if f := r.framesOf(r.main); f < frames {
		frames = f
	}
	if f := len(drained) / r.channels; f < frames {
		frames = f
	}
	for i := 0; i < frames; i++ {
		volume := float64(i) / float64(r.batchFrames)
		for c := 0; c < r.channels; c++ {
			idx := i*r.channels + c
			mixed := float64(r.main[idx])*volume + float64(drained[idx])*(1-volume)
			r.main[idx] = clampInt16(int32(mixed))
		}
	}
}

// fadeOut multiplies frame i of buf by 1 - i/batchFrames, per channel.
func fadeOut(buf []int16, channels, batchFrames int) {
	frames := len(buf) / channels
	if frames > batchFrames {
		frames = batchFrames
	}
	for i := 0; i < frames; i++ {
		envelope := 1 - float64(i)/float64(batchFrames)
		scaleFrame(buf, i, channels, envelope)
	}
}

// fadeIn multiplies frame i of buf by i/batchFrames, per channel.
func fadeIn(buf []int16, channels, batchFrames int) {
	frames := len(buf) / channels
	if frames > batchFrames {
		frames = batchFrames
	}
	for i := 0; i < frames; i++ {
		envelope := float64(i) / float64(batchFrames)
		scaleFrame(buf, i, channels, envelope)
	}
}

// crossFadeInto adds fadeOut(tail) onto dst, which the caller has
// already fadeIn'd, so that the seam between old and new material
// ramps linearly across one batch instead of jumping. Extra tail
// samples beyond dst's length are ignored.
func crossFadeInto(dst, tail []int16, channels, batchFrames int) {
	frames := len(dst) / channels
	if tframes := len(tail) / channels; tframes < frames {
		frames = tframes
	}
	if frames > batchFrames {
		frames = batchFrames
	}
	for i := 0; i < frames; i++ {
		envelope := 1 - float64(i)/float64(batchFrames)
		for c := 0; c < channels; c++ {
			idx := i*channels + c
			sum := int32(dst[idx]) + int32(float64(tail[idx])*envelope)
			dst[idx] = clampInt16(sum)
		}
	}
}

func scaleFrame(buf []int16, frame, channels int, envelope float64) {
	for c := 0; c < channels; c++ {
		idx := frame*channels + c
		buf[idx] = int16(float64(buf[idx]) * envelope)
	}
}

func clampInt16(v int32) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}
