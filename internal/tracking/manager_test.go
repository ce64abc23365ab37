// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package tracking

import (
	"testing"
	"time"

	"github.com/alvr-org/alvr-streamd/internal/geom"
)

func TestManager_HistoryBoundedAtEight(t *testing.T) {
	m := NewManager()
	cfg := HeadsetConfig{}

	for i := 0; i < 20; i++ {
		m.ReportDeviceMotions(cfg, time.Duration(i)*time.Millisecond, map[uint64]DeviceMotion{
			HeadID: {Pose: geom.PoseIdentity},
		})
	}

	if got := m.HistoryLen(HeadID); got != MaxHistorySize {
		t.Fatalf("history length = %d, want %d", got, MaxHistorySize)
	}
}

func TestManager_GetDeviceMotion_ExactTimestampOnly(t *testing.T) {
	m := NewManager()
	cfg := HeadsetConfig{}

	m.ReportDeviceMotions(cfg, 5*time.Millisecond, map[uint64]DeviceMotion{
		HeadID: {Pose: geom.Pose{Position: geom.Vec3{X: 1}}},
	})

	if _, ok := m.GetDeviceMotion(HeadID, 6*time.Millisecond); ok {
		t.Errorf("expected no match for a timestamp never reported")
	}
	motion, ok := m.GetDeviceMotion(HeadID, 5*time.Millisecond)
	if !ok {
		t.Fatalf("expected a match for the exact timestamp")
	}
	if motion.Pose.Position.X != 1 {
		t.Errorf("unexpected motion: %+v", motion)
	}
}

func TestManager_FaceDataEyeGazesHeadLocal(t *testing.T) {
	m := NewManager()
	m.ReportDeviceMotions(HeadsetConfig{}, 0, map[uint64]DeviceMotion{
		HeadID: {Pose: geom.Pose{Position: geom.Vec3{X: 1}, Orientation: geom.QuatIdentity}},
	})

	gaze := geom.Pose{Position: geom.Vec3{X: 1, Z: -0.03}, Orientation: geom.QuatIdentity}
	m.ReportFaceData(FaceData{EyeGazes: [2]*geom.Pose{&gaze, nil}})

	got := m.GetFaceData()
	if got.EyeGazes[0] == nil {
		t.Fatal("expected left gaze stored")
	}
	// With an untranslated recentering origin, head-local X must cancel
	// the head's own offset.
	if x := got.EyeGazes[0].Position.X; x != 0 {
		t.Errorf("expected head-local gaze X of 0, got %v", x)
	}
	if got.EyeGazes[1] != nil {
		t.Error("expected untracked right gaze to stay nil")
	}
}

func TestManager_RecenterIdempotentWithoutHeadMotion(t *testing.T) {
	m := NewManager()
	m.ReportDeviceMotions(HeadsetConfig{}, 0, map[uint64]DeviceMotion{
		HeadID: {Pose: geom.Pose{Position: geom.Vec3{X: 1, Y: 2, Z: 3}, Orientation: geom.QuatIdentity}},
	})

	m.Recenter(PositionLocalFloor, RotationYaw, 1.6)
	first := m.inverseRecenteringOrig

	m.Recenter(PositionLocalFloor, RotationYaw, 1.6)
	second := m.inverseRecenteringOrig

	if first != second {
		t.Errorf("recenter() twice without head motion produced different origins: %+v vs %+v", first, second)
	}
}
