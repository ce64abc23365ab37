// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package stream

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxThrottleBurst bounds the token bucket's burst size so a pause in
// sending doesn't let one write blow well past the configured rate.
const maxThrottleBurst = 256 * 1024

// ThrottledWriter wraps an io.Writer with a token-bucket rate limit,
// used to cap the video sender's bandwidth to the encoder's target
// bitrate (or a manual ceiling) independent of the shard socket's own
// pacing.
type ThrottledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// NewThrottledWriter wraps w with a bytesPerSec rate limit. If
// bytesPerSec <= 0, it returns w unchanged (bypass).
func NewThrottledWriter(ctx context.Context, w io.Writer, bytesPerSec int64) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}

	burst := int(bytesPerSec)
	if burst > maxThrottleBurst {
		burst = maxThrottleBurst
	}

	return &ThrottledWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

// Write blocks until enough tokens are available, splitting writes
// larger than the burst size into chunks so a single big shard
// doesn't require an oversized reservation.
func (tw *ThrottledWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.limiter.Burst() {
			chunk = tw.limiter.Burst()
		}

		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return total, err
		}

		n, err := tw.w.Write(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}
