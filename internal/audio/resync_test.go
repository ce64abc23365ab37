// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package audio

import "testing"

func constantFrames(channels, frames int, value int16) []int16 {
	out := make([]int16, channels*frames)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestPullBatchSilenceWhenEmpty(t *testing.T) {
	r := NewRing(2, 48000, 10, 50)
	out := r.PullBatch()
	if len(out) != r.BatchFrames()*2 {
		t.Fatalf("expected %d samples, got %d", r.BatchFrames()*2, len(out))
	}
	for _, s := range out {
		if s != 0 {
			t.Fatalf("expected silence, got %d", s)
		}
	}
}

func TestPushThenPullReturnsData(t *testing.T) {
	r := NewRing(1, 1000, 10, 50) // batchFrames=10, avgFrames=50
	// Fill recovery past the fade-in threshold (avg+batch = 60 frames).
	r.Push(constantFrames(1, 70, 1000), false)

	if got := r.OccupancyFrames(); got == 0 {
		t.Fatal("expected buffered frames after push")
	}

	out := r.PullBatch()
	if len(out) != 10 {
		t.Fatalf("expected batch of 10 samples, got %d", len(out))
	}
}

func TestPullBatchFadesOutOnDrainToEmpty(t *testing.T) {
	r := NewRing(1, 1000, 10, 50)
	// Exactly one batch buffered directly in main via the underrun path.
	r.main = constantFrames(1, 10, 1000)

	// Envelope is 1 - i/batchFrames: frame 0 is untouched, frame 1 is
	// at 9/10, and the last frame (i=9) is at 1/10. In float64
	// 1 - 0.9 is just below 0.1 and scaleFrame truncates, so 1000
	// becomes 99 there.
	out := r.PullBatch()
	if out[0] != 1000 {
		t.Errorf("expected the first frame at envelope 1, got %d", out[0])
	}
	if out[1] != 900 {
		t.Errorf("expected frame 1 attenuated to 9/10, got %d", out[1])
	}
	if out[len(out)-1] != 99 {
		t.Errorf("expected the last frame attenuated to 1/10, got %d", out[len(out)-1])
	}
	if r.OccupancyFrames() != 0 {
		t.Errorf("expected buffer drained to empty, got %d frames", r.OccupancyFrames())
	}
}

func TestPushClearsOnLossBelowOneBatch(t *testing.T) {
	r := NewRing(1, 1000, 10, 50)
	r.main = constantFrames(1, 3, 1000) // less than one batch

	r.Push(constantFrames(1, 5, 2000), true)

	if len(r.main) != 0 {
		t.Fatalf("expected main truncated to empty after loss with sub-batch occupancy, got %d", len(r.main))
	}
}

func TestPushTruncatesToOneBatchOnLossAboveOneBatch(t *testing.T) {
	r := NewRing(1, 1000, 10, 50)
	r.main = constantFrames(1, 40, 1000)

	r.Push(constantFrames(1, 5, 2000), true)

	// The 5 new frames go to the recovery buffer, which is still below
	// the avg+batch threshold, so main keeps exactly one batch.
	if r.framesOf(r.main) != 10 {
		t.Fatalf("expected main truncated to one batch (10 frames) after loss, got %d frames", r.framesOf(r.main))
	}
}

func TestTrimOverflowBoundsOccupancy(t *testing.T) {
	r := NewRing(1, 1000, 10, 50) // batch=10 avg=50, ceiling=110
	r.main = constantFrames(1, 200, 1000)

	r.trimOverflow()

	if got := r.framesOf(r.main); got != 50 {
		t.Errorf("expected trim down to avgFrames=50, got %d", got)
	}
}

// After an overflow trim the new head must ramp up from the drained
// material's level across one batch, not jump to full volume.
func TestTrimOverflowCrossFadesSeam(t *testing.T) {
	r := NewRing(1, 1000, 10, 50) // batch=10 avg=50, ceiling=110
	r.main = append(constantFrames(1, 110, 0), constantFrames(1, 50, 1000)...)

	r.trimOverflow()

	if got := r.framesOf(r.main); got != 50 {
		t.Fatalf("expected trim down to avgFrames=50, got %d", got)
	}
	if r.main[0] != 0 {
		t.Errorf("expected seam start at the drained level 0, got %d", r.main[0])
	}
	if r.main[9] != 900 {
		t.Errorf("expected frame 9 at 9/10 of the new level, got %d", r.main[9])
	}
	if r.main[10] != 1000 {
		t.Errorf("expected full volume past the cross-fade, got %d", r.main[10])
	}
}

func TestBatchFrames(t *testing.T) {
	r := NewRing(2, 48000, 10, 50)
	if r.BatchFrames() != 480 {
		t.Errorf("expected 480 frames per 10ms batch at 48kHz, got %d", r.BatchFrames())
	}
}
