// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package orchestrator

import (
	"time"

	"github.com/alvr-org/alvr-streamd/internal/geom"
	"github.com/alvr-org/alvr-streamd/internal/protocol"
	"github.com/alvr-org/alvr-streamd/internal/tracking"
)

func wirePoseToGeom(p protocol.PoseWire) geom.Pose {
	return geom.Pose{
		Position:    geom.Vec3{X: p.PosX, Y: p.PosY, Z: p.PosZ},
		Orientation: geom.Quat{X: p.QuatX, Y: p.QuatY, Z: p.QuatZ, W: p.QuatW},
	}
}

func geomPoseToWire(p geom.Pose) protocol.PoseWire {
	return protocol.PoseWire{
		PosX: p.Position.X, PosY: p.Position.Y, PosZ: p.Position.Z,
		QuatX: p.Orientation.X, QuatY: p.Orientation.Y, QuatZ: p.Orientation.Z, QuatW: p.Orientation.W,
	}
}

func wireMotionsToDeviceMotions(wire []protocol.DeviceMotionWire) map[uint64]tracking.DeviceMotion {
	out := make(map[uint64]tracking.DeviceMotion, len(wire))
	for _, m := range wire {
		out[m.DeviceID] = tracking.DeviceMotion{
			Pose:            wirePoseToGeom(m.Pose),
			LinearVelocity:  geom.Vec3{X: m.LinVelX, Y: m.LinVelY, Z: m.LinVelZ},
			AngularVelocity: geom.Vec3{X: m.AngVelX, Y: m.AngVelY, Z: m.AngVelZ},
		}
	}
	return out
}

func deviceMotionsToWire(motions map[uint64]tracking.DeviceMotion) []protocol.DeviceMotionWire {
	out := make([]protocol.DeviceMotionWire, 0, len(motions))
	for id, m := range motions {
		out = append(out, protocol.DeviceMotionWire{
			DeviceID: id,
			Pose:     geomPoseToWire(m.Pose),
			LinVelX:  m.LinearVelocity.X, LinVelY: m.LinearVelocity.Y, LinVelZ: m.LinearVelocity.Z,
			AngVelX: m.AngularVelocity.X, AngVelY: m.AngularVelocity.Y, AngVelZ: m.AngularVelocity.Z,
		})
	}
	return out
}

func wireHandToSkeleton(wire protocol.HandSkeletonWire) tracking.HandSkeleton {
	var out tracking.HandSkeleton
	for i, p := range wire {
		out[i] = wirePoseToGeom(p)
	}
	return out
}

func handSkeletonToWire(skeleton tracking.HandSkeleton) protocol.HandSkeletonWire {
	var out protocol.HandSkeletonWire
	for i, p := range skeleton {
		out[i] = geomPoseToWire(p)
	}
	return out
}

// BuildTrackingSample assembles one frame's wire payload from the pose
// source's native types, for the headset-side tracking sender.
func BuildTrackingSample(ts time.Duration, motions map[uint64]tracking.DeviceMotion, left, right *tracking.HandSkeleton) TrackingSample {
	payload := protocol.TrackingPayload{Motions: deviceMotionsToWire(motions)}
	if left != nil {
		h := handSkeletonToWire(*left)
		payload.LeftHand = &h
	}
	if right != nil {
		h := handSkeletonToWire(*right)
		payload.RightHand = &h
	}
	return TrackingSample{TargetTimestamp: ts, Payload: payload}
}
