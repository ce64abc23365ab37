// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package gesture

import (
	"testing"
	"time"

	"github.com/alvr-org/alvr-streamd/internal/geom"
	"github.com/alvr-org/alvr-streamd/internal/tracking"
)

// With repeat delay 200ms and activation/deactivation delays of 50ms,
// a pinch held in range for 100ms then out of range for 100ms must
// produce one activation about 50ms after entering range and one
// deactivation about 50ms after leaving it.
func TestIsActive_PinchHysteresis(t *testing.T) {
	m := NewManager()
	const (
		activationDelay   = 50 * time.Millisecond
		deactivationDelay = 50 * time.Millisecond
		repeatDelay       = 200 * time.Millisecond
	)

	base := time.Unix(0, 0)
	hand := tracking.HandLeft

	// Just before t=0: 15mm, out of range (not yet entered).
	if active := m.isActive(hand, ThumbIndexPinch, false, base.Add(-10*time.Millisecond), activationDelay, deactivationDelay, repeatDelay); active {
		t.Fatalf("expected inactive before entering range")
	}

	// t=0..100ms: held in range (5mm). The entering dwell timer latches
	// on the first in-range sample.
	enterAt := base
	if active := m.isActive(hand, ThumbIndexPinch, true, enterAt, activationDelay, deactivationDelay, repeatDelay); active {
		t.Fatalf("expected inactive immediately on entering range")
	}
	stillInactiveAt := enterAt.Add(30 * time.Millisecond)
	if active := m.isActive(hand, ThumbIndexPinch, true, stillInactiveAt, activationDelay, deactivationDelay, repeatDelay); active {
		t.Errorf("activated too early at 30ms, want still inactive before activation_delay elapses")
	}

	activatedAt := enterAt.Add(60 * time.Millisecond)
	if active := m.isActive(hand, ThumbIndexPinch, true, activatedAt, activationDelay, deactivationDelay, repeatDelay); !active {
		t.Errorf("expected active at 60ms after entering range (activation_delay=50ms)")
	}

	// t=100ms: leaves range (back to 15mm), held another 100ms. The
	// exiting dwell timer latches on the first out-of-range sample.
	leftAt := enterAt.Add(100 * time.Millisecond)
	if active := m.isActive(hand, ThumbIndexPinch, false, leftAt, activationDelay, deactivationDelay, repeatDelay); !active {
		t.Errorf("deactivated immediately on leaving range, want deactivation_delay dwell")
	}
	stillActiveAt := leftAt.Add(30 * time.Millisecond)
	if active := m.isActive(hand, ThumbIndexPinch, false, stillActiveAt, activationDelay, deactivationDelay, repeatDelay); !active {
		t.Errorf("deactivated too early at 30ms after leaving range")
	}

	deactivatedAt := leftAt.Add(60 * time.Millisecond)
	if active := m.isActive(hand, ThumbIndexPinch, false, deactivatedAt, activationDelay, deactivationDelay, repeatDelay); active {
		t.Errorf("expected inactive at 60ms after leaving range (deactivation_delay=50ms)")
	}
}

// With identity joint orientations, zero deadzone, and the thumb
// exactly one radius along the horizontal axis, the stick must read
// full deflection on that axis and nothing on the other.
func TestJoystickAtRadiusFullDeflection(t *testing.T) {
	m := NewManager()
	cfg := Config{JoystickRadius: 0.02}

	var skeleton tracking.HandSkeleton
	for i := range skeleton {
		skeleton[i].Orientation = geom.QuatIdentity
	}
	// Intermediate and distal joints coincide at the origin, so the
	// stick center is the origin; the horizontal axis for the left
	// hand is +Y of the intermediate joint's (identity) frame.
	skeleton[jointThumbTip].Position = geom.Vec3{Y: cfg.JoystickRadius}

	x, y := m.joystick(tracking.HandLeft, skeleton, cfg, 1, 1)
	if x != 1 || y != 0 {
		t.Errorf("joystick at radius = (%v, %v), want (1, 0)", x, y)
	}

	// Mirrored horizontal axis on the right hand.
	x, y = m.joystick(tracking.HandRight, skeleton, cfg, 1, 1)
	if x != -1 || y != 0 {
		t.Errorf("right-hand joystick at radius = (%v, %v), want (-1, 0)", x, y)
	}
}

func TestHover_ClampedToUnitRange(t *testing.T) {
	if v := hover(0, 0.005, 0.015, 0.0075, 0.0065); v != 1 {
		t.Errorf("expected 1 at contact, got %v", v)
	}
	if v := hover(1, 0.005, 0.015, 0.0075, 0.0065); v != 0 {
		t.Errorf("expected 0 far away, got %v", v)
	}
}
