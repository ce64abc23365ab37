// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package tracking

import (
	"sync"
	"time"

	"github.com/alvr-org/alvr-streamd/internal/geom"
)

// HeadsetConfig carries the subset of negotiated session settings the
// tracking manager needs to build per-device MotionConfigs: whether
// controller emulation (and therefore hand pose offsets) is enabled,
// and the per-axis rotation/position offsets and velocity cutoffs for
// each emulated controller.
type HeadsetConfig struct {
	ControllersEnabled       bool
	LeftPoseOffset           geom.Pose
	RightPoseOffset          geom.Pose
	LinearVelocityCutoffDeg  float32
	AngularVelocityCutoffDeg float32
	ExtraDevices             map[uint64]MotionConfig
}

// Manager maintains bounded per-device motion and per-hand skeleton
// histories, the recentering transform, and the last face data
// sample. All methods are safe for concurrent use; a single
// reader-writer lock protects mutable state, matching the tracking
// manager's lock granularity in the orchestrator's concurrency model.
type Manager struct {
	mu sync.RWMutex

	lastHeadPose           geom.Pose
	inverseRecenteringOrig geom.Pose

	deviceHistory map[uint64]*boundedHistory[DeviceMotion]
	handHistory   [2]*boundedHistory[HandSkeleton]

	lastFaceData FaceData
}

func NewManager() *Manager {
	return &Manager{
		inverseRecenteringOrig: geom.PoseIdentity,
		deviceHistory:          make(map[uint64]*boundedHistory[DeviceMotion]),
		handHistory:            [2]*boundedHistory[HandSkeleton]{{}, {}},
	}
}

// Recenter recomputes the recentering origin from the currently cached
// head pose according to the given position/rotation modes.
func (m *Manager) Recenter(position PositionRecenteringMode, rotation RotationRecenteringMode, viewHeight float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pos geom.Vec3
	switch position {
	case PositionDisabled:
		pos = geom.Vec3{}
	case PositionLocalFloor:
		pos = m.lastHeadPose.Position
		pos.Y = 0
	case PositionLocal:
		pos = m.lastHeadPose.Position.Sub(
			m.lastHeadPose.Orientation.RotateVec3(geom.Vec3{Y: viewHeight}),
		)
	}

	var orient geom.Quat
	switch rotation {
	case RotationDisabled:
		orient = geom.QuatIdentity
	case RotationYaw:
		q := m.lastHeadPose.Orientation
		orient = geom.Quat{X: 0, Y: q.Y, Z: 0, W: q.W}.Normalize()
	case RotationTilted:
		orient = m.lastHeadPose.Orientation
	}

	m.inverseRecenteringOrig = geom.Pose{Position: pos, Orientation: orient}.Inverse()
}

func (m *Manager) recenterPoseLocked(p geom.Pose) geom.Pose {
	return m.inverseRecenteringOrig.Mul(p)
}

func (m *Manager) recenterMotionLocked(motion DeviceMotion) DeviceMotion {
	motion.Pose = m.recenterPoseLocked(motion.Pose)
	motion.LinearVelocity = m.inverseRecenteringOrig.Orientation.RotateVec3(motion.LinearVelocity)
	motion.AngularVelocity = m.inverseRecenteringOrig.Orientation.RotateVec3(motion.AngularVelocity)
	return motion
}

func cutoff(v geom.Vec3, threshold float32) geom.Vec3 {
	if v.LengthSquared() <= threshold*threshold {
		return geom.Vec3{}
	}
	return v
}

// ReportDeviceMotions applies recentering, per-device pose offsets and
// velocity cutoffs, then appends to each device's bounded history.
// The head device's raw (pre-transform) pose is cached as the new
// recentering reference before any further transform is applied.
func (m *Manager) ReportDeviceMotions(config HeadsetConfig, timestamp time.Duration, motions map[uint64]DeviceMotion) {
	deviceConfigs := m.buildMotionConfigs(config)

	m.mu.Lock()
	defer m.mu.Unlock()

	for deviceID, motion := range motions {
		if deviceID == HeadID {
			m.lastHeadPose = motion.Pose
		}

		if cfg, ok := deviceConfigs[deviceID]; ok {
			motion = m.recenterMotionLocked(motion)

			motion.Pose.Orientation = motion.Pose.Orientation.Mul(cfg.PoseOffset.Orientation)
			motion.Pose.Position = motion.Pose.Position.Add(
				motion.Pose.Orientation.RotateVec3(cfg.PoseOffset.Position),
			)
			motion.LinearVelocity = motion.LinearVelocity.Add(
				motion.AngularVelocity.Cross(motion.Pose.Orientation.RotateVec3(cfg.PoseOffset.Position)),
			)
			motion.AngularVelocity = motion.Pose.Orientation.Conjugate().RotateVec3(motion.AngularVelocity)

			motion.LinearVelocity = cutoff(motion.LinearVelocity, cfg.LinearVelocityCutoff)
			motion.AngularVelocity = cutoff(motion.AngularVelocity, cfg.AngularVelocityCutoff)
		}

		h, ok := m.deviceHistory[deviceID]
		if !ok {
			h = &boundedHistory[DeviceMotion]{}
			m.deviceHistory[deviceID] = h
		}
		h.push(timestamp, motion)
	}
}

func (m *Manager) buildMotionConfigs(config HeadsetConfig) map[uint64]MotionConfig {
	out := map[uint64]MotionConfig{
		HeadID: DefaultMotionConfig(),
	}
	for id, cfg := range config.ExtraDevices {
		out[id] = cfg
	}
	if config.ControllersEnabled {
		degToRad := func(d float32) float32 { return d * 3.14159265 / 180 }
		out[HandLeftID] = MotionConfig{
			PoseOffset:            config.LeftPoseOffset,
			LinearVelocityCutoff:  config.LinearVelocityCutoffDeg,
			AngularVelocityCutoff: degToRad(config.AngularVelocityCutoffDeg),
		}
		out[HandRightID] = MotionConfig{
			PoseOffset:            config.RightPoseOffset,
			LinearVelocityCutoff:  config.LinearVelocityCutoffDeg,
			AngularVelocityCutoff: degToRad(config.AngularVelocityCutoffDeg),
		}
	}
	return out
}

// GetDeviceMotion scans deviceID's bounded history for an exact
// timestamp match; there is no interpolation, since the renderer only
// ever asks for a timestamp it previously sent.
func (m *Manager) GetDeviceMotion(deviceID uint64, sampleTimestamp time.Duration) (DeviceMotion, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.deviceHistory[deviceID]
	if !ok {
		return DeviceMotion{}, false
	}
	return h.get(sampleTimestamp)
}

// ReportHandSkeleton recenters every joint pose and appends the result
// to hand's bounded skeleton history.
func (m *Manager) ReportHandSkeleton(hand HandType, timestamp time.Duration, skeleton HandSkeleton) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recentered HandSkeleton
	for i, p := range skeleton {
		recentered[i] = m.recenterPoseLocked(p)
	}
	m.handHistory[hand].push(timestamp, recentered)
}

func (m *Manager) GetHandSkeleton(hand HandType, sampleTimestamp time.Duration) (HandSkeleton, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handHistory[hand].get(sampleTimestamp)
}

// ReportFaceData transforms eye gazes into head-local space
// (head⁻¹ · recenter(eye)) before storing them.
func (m *Manager) ReportFaceData(face FaceData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	headInv := m.lastHeadPose.Inverse()
	var transformed FaceData
	transformed.ExpressionRaw = face.ExpressionRaw
	for i, gaze := range face.EyeGazes {
		if gaze == nil {
			continue
		}
		p := headInv.Mul(m.recenterPoseLocked(*gaze))
		transformed.EyeGazes[i] = &p
	}
	m.lastFaceData = transformed
}

func (m *Manager) GetFaceData() FaceData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastFaceData
}

// HistoryLen reports the current history length for deviceID, used by
// tests to verify the size-8 cap.
func (m *Manager) HistoryLen(deviceID uint64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.deviceHistory[deviceID]
	if !ok {
		return 0
	}
	return h.len()
}
