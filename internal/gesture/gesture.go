// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package gesture implements the hand-gesture recognizer: boolean and
// analog gesture activations derived from a 26-joint hand skeleton via
// distance thresholds and per-gesture activation hysteresis with dwell
// times.
package gesture

import (
	"time"

	"github.com/alvr-org/alvr-streamd/internal/geom"
	"github.com/alvr-org/alvr-streamd/internal/tracking"
)

// ID enumerates the recognized gestures.
type ID int

const (
	ThumbIndexPinch ID = iota
	ThumbMiddlePinch
	ThumbRingPinch
	ThumbLittlePinch
	ThumbCurl
	IndexCurl
	MiddleCurl
	RingCurl
	LittleCurl
	GripCurl
	JoystickX
	JoystickY
)

// Joint indices into the 26-pose hand skeleton.
const (
	jointPalm = 0

	jointThumbTip = 5

	jointIndexMetacarpal   = 6
	jointIndexProximal     = 7
	jointIndexIntermediate = 8
	jointIndexDistal       = 9
	jointIndexTip          = 10

	jointMiddleMetacarpal = 11
	jointMiddleProximal   = 12
	jointMiddleTip        = 15

	jointRingMetacarpal = 16
	jointRingProximal   = 17
	jointRingTip        = 20

	jointLittleMetacarpal = 21
	jointLittleProximal   = 22
	jointLittleTip        = 25
)

// Finger and palm radii, in meters.
const (
	thumbRadius  = 0.0075
	indexRadius  = 0.0065
	middleRadius = 0.0065
	ringRadius   = 0.006
	littleRadius = 0.005
	palmDepth    = 0.005
)

// Config holds the tunable distance and dwell-time parameters. Pinch
// and curl distances arrive in centimeters (matching the session
// settings store) and are converted to meters internally.
type Config struct {
	PinchTouchDistanceCM float32
	PinchClickDistanceCM float32
	CurlTouchDistanceCM  float32
	CurlClickDistanceCM  float32

	ActivationDelay   time.Duration
	DeactivationDelay time.Duration
	RepeatDelay       time.Duration

	JoystickRadius   float32
	JoystickDeadzone float32
	OffsetHorizontal float32
	OffsetVertical   float32
}

func (c Config) pinchRange() (min, max float32) {
	return c.PinchClickDistanceCM * 0.01, c.PinchTouchDistanceCM * 0.01
}

func (c Config) curlRange() (min, max float32) {
	return c.CurlClickDistanceCM * 0.01, c.CurlTouchDistanceCM * 0.01
}

// Gesture is one derived activation.
type Gesture struct {
	ID       ID
	Active   bool
	Clicked  bool
	Touching bool
	Value    float32
}

// action is the per-(hand, gesture) hysteresis latch.
type action struct {
	lastActivated   time.Time
	lastDeactivated time.Time
	entering        bool
	enteringSince   time.Time
	exiting         bool
	exitingSince    time.Time
	active          bool
}

// Manager evaluates gestures for both hands, holding the hysteresis
// state across calls.
type Manager struct {
	states map[tracking.HandType]map[ID]*action
}

func NewManager() *Manager {
	return &Manager{
		states: map[tracking.HandType]map[ID]*action{
			tracking.HandLeft:  {},
			tracking.HandRight: {},
		},
	}
}

func (m *Manager) actionFor(hand tracking.HandType, id ID) *action {
	a, ok := m.states[hand][id]
	if !ok {
		a = &action{}
		m.states[hand][id] = a
	}
	return a
}

func dist(a, b geom.Vec3) float32 { return a.Sub(b).Length() }

// hover computes the analog value curve for a distance between two
// spheres of radius rA/rB: 1 - (d-minDist-rA-rB)/(maxDist+rA+rB),
// clamped to [0, 1]. It is 1 for d <= minDist+rA+rB and reaches 0 at
// d = minDist+maxDist+2*(rA+rB).
func hover(d, minDist, maxDist, rA, rB float32) float32 {
	v := 1 - (d-minDist-rA-rB)/(maxDist+rA+rB)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// isActive evaluates the activation hysteresis state machine for one
// (hand, gesture) pair given the current in-range boolean and now.
func (m *Manager) isActive(hand tracking.HandType, id ID, inRange bool, now time.Time, activationDelay, deactivationDelay, repeatDelay time.Duration) bool {
	a := m.actionFor(hand, id)

	if inRange {
		a.exiting = false
		if !a.entering {
			a.entering = true
			a.enteringSince = now
		}
	} else {
		a.entering = false
		if !a.exiting {
			a.exiting = true
			a.exitingSince = now
		}
	}

	if !a.active {
		if inRange &&
			now.Sub(a.lastDeactivated) > repeatDelay &&
			now.Sub(a.enteringSince) > activationDelay {
			a.active = true
			a.lastActivated = now
		}
	} else {
		if !inRange && now.Sub(a.exitingSince) > deactivationDelay {
			a.active = false
			a.lastDeactivated = now
		}
	}

	return a.active
}

// testGesture evaluates one distance-based gesture (pinch or curl)
// into a Gesture, using the activation hysteresis for Active/Clicked.
func (m *Manager) testGesture(hand tracking.HandType, id ID, now time.Time, cfg Config, a, b geom.Vec3, rA, rB float32, clickDist, touchDist float32) Gesture {
	d := dist(a, b)
	clickRange := d < clickDist+rA+rB
	touchRange := d < touchDist+rA+rB

	active := m.isActive(hand, id, clickRange, now, cfg.ActivationDelay, cfg.DeactivationDelay, cfg.RepeatDelay)
	value := hover(d, clickDist, touchDist, rA, rB)

	return Gesture{ID: id, Active: active, Clicked: active, Touching: touchRange, Value: value}
}

// GetActiveGestures computes all gestures for one hand's skeleton.
func (m *Manager) GetActiveGestures(hand tracking.HandType, skeleton tracking.HandSkeleton, cfg Config, now time.Time) []Gesture {
	pinchMin, pinchMax := cfg.pinchRange()
	curlMin, curlMax := cfg.curlRange()

	palm := skeleton[jointPalm]
	thumbTip := skeleton[jointThumbTip].Position

	gestures := make([]Gesture, 0, 13)

	gestures = append(gestures, m.testGesture(hand, ThumbIndexPinch, now, cfg, thumbTip, skeleton[jointIndexTip].Position, thumbRadius, indexRadius, pinchMin, pinchMax))
	gestures = append(gestures, m.testGesture(hand, ThumbMiddlePinch, now, cfg, thumbTip, skeleton[jointMiddleTip].Position, thumbRadius, middleRadius, pinchMin, pinchMax))
	gestures = append(gestures, m.testGesture(hand, ThumbRingPinch, now, cfg, thumbTip, skeleton[jointRingTip].Position, thumbRadius, ringRadius, pinchMin, pinchMax))
	gestures = append(gestures, m.testGesture(hand, ThumbLittlePinch, now, cfg, thumbTip, skeleton[jointLittleTip].Position, thumbRadius, littleRadius, pinchMin, pinchMax))

	gestures = append(gestures, m.testGesture(hand, ThumbCurl, now, cfg, palm.Position, thumbTip, palmDepth, thumbRadius, curlMin, curlMax))

	indexCurl := m.testGesture(hand, IndexCurl, now, cfg,
		geom.LerpPose(skeleton[jointIndexMetacarpal], skeleton[jointIndexProximal], 0.5).Position,
		palm.Position, indexRadius, palmDepth, curlMin, curlMax)
	middleCurl := m.testGesture(hand, MiddleCurl, now, cfg,
		geom.LerpPose(skeleton[jointMiddleMetacarpal], skeleton[jointMiddleProximal], 0.5).Position,
		palm.Position, middleRadius, palmDepth, curlMin, curlMax)
	ringCurl := m.testGesture(hand, RingCurl, now, cfg,
		geom.LerpPose(skeleton[jointRingMetacarpal], skeleton[jointRingProximal], 0.5).Position,
		palm.Position, ringRadius, palmDepth, curlMin, curlMax)
	littleCurl := m.testGesture(hand, LittleCurl, now, cfg,
		geom.LerpPose(skeleton[jointLittleMetacarpal], skeleton[jointLittleProximal], 0.5).Position,
		palm.Position, littleRadius, palmDepth, curlMin, curlMax)

	gestures = append(gestures, indexCurl, middleCurl, ringCurl, littleCurl)

	gripValue := (middleCurl.Value + ringCurl.Value + littleCurl.Value) / 3
	gestures = append(gestures, Gesture{ID: GripCurl, Active: gripValue > 0, Clicked: gripValue == 1, Touching: gripValue > 0, Value: gripValue})

	jx, jy := m.joystick(hand, skeleton, cfg, indexCurl.Value, gripValue)
	gestures = append(gestures, Gesture{ID: JoystickX, Active: true, Value: jx})
	gestures = append(gestures, Gesture{ID: JoystickY, Active: true, Value: jy})

	return gestures
}

// joystick derives the virtual-thumbstick X/Y values from the index
// finger's intermediate/distal joints. The axis basis is the
// intermediate joint's orientation (mirrored between hands), so the
// projection tracks the finger however the hand is turned; a contact
// condition gates the whole thing.
func (m *Manager) joystick(hand tracking.HandType, skeleton tracking.HandSkeleton, cfg Config, indexCurlValue, gripValue float32) (float32, float32) {
	intermediate := skeleton[jointIndexIntermediate]
	center := geom.LerpPose(intermediate, skeleton[jointIndexDistal], 0.5)
	thumb := skeleton[jointThumbTip].Position

	mirror := float32(1)
	if hand == tracking.HandRight {
		mirror = -1
	}
	up := center.Orientation.RotateVec3(geom.Vec3{X: mirror})
	horiz := intermediate.Orientation.RotateVec3(geom.Vec3{Y: mirror})
	vert := intermediate.Orientation.RotateVec3(geom.Vec3{Z: 1})

	radius := cfg.JoystickRadius
	if radius == 0 {
		radius = 0.02
	}

	offset := thumb.Sub(center.Position)

	contact := indexCurlValue >= 0.75 && gripValue > 0.5 &&
		offset.Length() <= 3*radius &&
		offset.Dot(up) <= 2*radius

	if !contact {
		return 0, 0
	}

	x := clampf((offset.Dot(horiz)+cfg.OffsetHorizontal)/radius, -1, 1)
	y := clampf((offset.Dot(vert)+cfg.OffsetVertical)/radius, -1, 1)

	x = deadzone(x, cfg.JoystickDeadzone)
	y = deadzone(y, cfg.JoystickDeadzone)

	return x, y
}

func deadzone(v, dz float32) float32 {
	if v > -dz && v < dz {
		return 0
	}
	return v
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
