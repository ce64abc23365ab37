// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package geom provides the minimal 6-DOF pose math (vectors and unit
// quaternions) the tracking and gesture components need: composition,
// inversion, rotation of a vector by a quaternion, and linear
// interpolation. Small enough to keep dependency-free rather than pull
// in a full linear-algebra package for a handful of vec3/quat ops.
package geom

import "math"

// Vec3 is a 3-component vector in meters.
type Vec3 struct{ X, Y, Z float32 }

func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(s float32) Vec3 { return Vec3{a.X * s, a.Y * s, a.Z * s} }
func (a Vec3) Dot(b Vec3) float32 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a.Y*b.Z - a.Z*b.Y,
		a.Z*b.X - a.X*b.Z,
		a.X*b.Y - a.Y*b.X,
	}
}

func (a Vec3) LengthSquared() float32 { return a.Dot(a) }
func (a Vec3) Length() float32        { return float32(math.Sqrt(float64(a.LengthSquared()))) }

func (a Vec3) Normalize() Vec3 {
	l := a.Length()
	if l == 0 {
		return a
	}
	return a.Scale(1 / l)
}

func LerpVec3(a, b Vec3, t float32) Vec3 {
	return a.Add(b.Sub(a).Scale(t))
}

// Quat is a unit quaternion, scalar-last (x, y, z, w), the same
// component order the wire format carries.
type Quat struct{ X, Y, Z, W float32 }

var QuatIdentity = Quat{0, 0, 0, 1}

func (q Quat) Mul(r Quat) Quat {
	return Quat{
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
	}
}

func (q Quat) Conjugate() Quat { return Quat{-q.X, -q.Y, -q.Z, q.W} }

func (q Quat) Normalize() Quat {
	l := float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
	if l == 0 {
		return QuatIdentity
	}
	return Quat{q.X / l, q.Y / l, q.Z / l, q.W / l}
}

// RotateVec3 applies q's rotation to v.
func (q Quat) RotateVec3(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	uv := u.Cross(v)
	uuv := u.Cross(uv)
	return v.Add(uv.Scale(2 * q.W)).Add(uuv.Scale(2))
}

// NlerpQuat performs a normalized linear interpolation, adequate for
// the small-angle joint-midpoint interpolation the gesture recognizer
// needs (it never integrates large rotations).
func NlerpQuat(a, b Quat, t float32) Quat {
	if a.X*b.X+a.Y*b.Y+a.Z*b.Z+a.W*b.W < 0 {
		b = Quat{-b.X, -b.Y, -b.Z, -b.W}
	}
	return Quat{
		a.X + (b.X-a.X)*t,
		a.Y + (b.Y-a.Y)*t,
		a.Z + (b.Z-a.Z)*t,
		a.W + (b.W-a.W)*t,
	}.Normalize()
}

// Pose is a 6-DOF transform: orientation then position.
type Pose struct {
	Orientation Quat
	Position    Vec3
}

var PoseIdentity = Pose{Orientation: QuatIdentity}

// Mul composes two poses: applying p.Mul(q) to a point means applying
// q first, then p (matrix-style left-to-right composition).
func (p Pose) Mul(q Pose) Pose {
	return Pose{
		Orientation: p.Orientation.Mul(q.Orientation),
		Position:    p.Position.Add(p.Orientation.RotateVec3(q.Position)),
	}
}

// Inverse returns the pose that undoes p.
func (p Pose) Inverse() Pose {
	invOrient := p.Orientation.Conjugate()
	return Pose{
		Orientation: invOrient,
		Position:    invOrient.RotateVec3(p.Position).Scale(-1),
	}
}

func LerpPose(a, b Pose, t float32) Pose {
	return Pose{
		Orientation: NlerpQuat(a.Orientation, b.Orientation, t),
		Position:    LerpVec3(a.Position, b.Position, t),
	}
}
