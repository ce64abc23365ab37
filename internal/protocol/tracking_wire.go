// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

// PoseWire is the wire form of a 6-DOF pose: position then a
// scalar-last unit quaternion, matching geom.Pose's field order.
type PoseWire struct {
	PosX, PosY, PosZ           float32
	QuatX, QuatY, QuatZ, QuatW float32
}

func (p PoseWire) encode(e *Encoder) {
	e.PutF32(p.PosX)
	e.PutF32(p.PosY)
	e.PutF32(p.PosZ)
	e.PutF32(p.QuatX)
	e.PutF32(p.QuatY)
	e.PutF32(p.QuatZ)
	e.PutF32(p.QuatW)
}

func decodePoseWire(d *Decoder) (PoseWire, error) {
	var p PoseWire
	var err error
	if p.PosX, err = d.GetF32(); err != nil {
		return p, err
	}
	if p.PosY, err = d.GetF32(); err != nil {
		return p, err
	}
	if p.PosZ, err = d.GetF32(); err != nil {
		return p, err
	}
	if p.QuatX, err = d.GetF32(); err != nil {
		return p, err
	}
	if p.QuatY, err = d.GetF32(); err != nil {
		return p, err
	}
	if p.QuatZ, err = d.GetF32(); err != nil {
		return p, err
	}
	if p.QuatW, err = d.GetF32(); err != nil {
		return p, err
	}
	return p, nil
}

// DeviceMotionWire is one device's pose-plus-velocity sample.
type DeviceMotionWire struct {
	DeviceID                  uint64
	Pose                      PoseWire
	LinVelX, LinVelY, LinVelZ float32
	AngVelX, AngVelY, AngVelZ float32
}

func (m DeviceMotionWire) encode(e *Encoder) {
	e.PutU64(m.DeviceID)
	m.Pose.encode(e)
	e.PutF32(m.LinVelX)
	e.PutF32(m.LinVelY)
	e.PutF32(m.LinVelZ)
	e.PutF32(m.AngVelX)
	e.PutF32(m.AngVelY)
	e.PutF32(m.AngVelZ)
}

func decodeDeviceMotionWire(d *Decoder) (DeviceMotionWire, error) {
	var m DeviceMotionWire
	var err error
	if m.DeviceID, err = d.GetU64(); err != nil {
		return m, err
	}
	if m.Pose, err = decodePoseWire(d); err != nil {
		return m, err
	}
	if m.LinVelX, err = d.GetF32(); err != nil {
		return m, err
	}
	if m.LinVelY, err = d.GetF32(); err != nil {
		return m, err
	}
	if m.LinVelZ, err = d.GetF32(); err != nil {
		return m, err
	}
	if m.AngVelX, err = d.GetF32(); err != nil {
		return m, err
	}
	if m.AngVelY, err = d.GetF32(); err != nil {
		return m, err
	}
	if m.AngVelZ, err = d.GetF32(); err != nil {
		return m, err
	}
	return m, nil
}

// HandSkeletonWire is the fixed 26-joint hand layout.
type HandSkeletonWire [26]PoseWire

func (h HandSkeletonWire) encode(e *Encoder) {
	for _, p := range h {
		p.encode(e)
	}
}

func decodeHandSkeletonWire(d *Decoder) (HandSkeletonWire, error) {
	var h HandSkeletonWire
	var err error
	for i := range h {
		if h[i], err = decodePoseWire(d); err != nil {
			return h, err
		}
	}
	return h, nil
}

// TrackingPayload is the body that follows a TrackingHeader on the
// tracking stream: the device motions sampled this frame plus either
// hand's skeleton, when present.
type TrackingPayload struct {
	Motions   []DeviceMotionWire
	LeftHand  *HandSkeletonWire
	RightHand *HandSkeletonWire
}

// Encode serializes the payload as a length-prefixed motion list
// followed by two optional hand skeletons.
func (t TrackingPayload) Encode() []byte {
	e := NewEncoder(64 + len(t.Motions)*36)
	e.PutU64(uint64(len(t.Motions)))
	for _, m := range t.Motions {
		m.encode(e)
	}
	e.PutOptionSome(t.LeftHand != nil)
	if t.LeftHand != nil {
		t.LeftHand.encode(e)
	}
	e.PutOptionSome(t.RightHand != nil)
	if t.RightHand != nil {
		t.RightHand.encode(e)
	}
	return e.Bytes()
}

// DecodeTrackingPayload parses the wire form Encode produces.
func DecodeTrackingPayload(buf []byte) (TrackingPayload, error) {
	d := NewDecoder(buf)
	var t TrackingPayload

	n, err := d.GetU64()
	if err != nil {
		return t, err
	}
	t.Motions = make([]DeviceMotionWire, 0, n)
	for i := uint64(0); i < n; i++ {
		m, err := decodeDeviceMotionWire(d)
		if err != nil {
			return t, err
		}
		t.Motions = append(t.Motions, m)
	}

	hasLeft, err := d.GetBool()
	if err != nil {
		return t, err
	}
	if hasLeft {
		h, err := decodeHandSkeletonWire(d)
		if err != nil {
			return t, err
		}
		t.LeftHand = &h
	}

	hasRight, err := d.GetBool()
	if err != nil {
		return t, err
	}
	if hasRight {
		h, err := decodeHandSkeletonWire(d)
		if err != nil {
			return t, err
		}
		t.RightHand = &h
	}

	return t, nil
}
