// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package physics provides the math primitives and mechanical systems for the
// simulation: 3-D vectors, Newtonian gravity, sphere collision checks, and
// circular-orbit helpers. All quantities are SI (meters, seconds, kilograms).
package physics

import "math"

// Epsilon is the tolerance used for floating-point comparisons throughout the
// simulation. Positions and velocities accumulate integration error, so exact
// equality is never meaningful.
const Epsilon = 1e-6

// Vec3 is a 3-D vector of float64 components.
//
// Vec3 is a value type: all methods return new vectors and never mutate the
// receiver. This keeps physics code free of aliasing surprises at the cost of
// some copying, which the Go compiler handles well for a 24-byte struct.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product of v and o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Len returns the Euclidean length of v.
func (v Vec3) Len() float64 {
	return math.Sqrt(v.Dot(v))
}

// LenSq returns the squared length of v. Prefer this over Len when only
// comparing magnitudes; it avoids the square root.
func (v Vec3) LenSq() float64 {
	return v.Dot(v)
}

// Normalized returns the unit vector in the direction of v. The zero vector
// is returned unchanged rather than producing NaNs.
func (v Vec3) Normalized() Vec3 {
	l := v.Len()
	if l < Epsilon {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// ClampLen returns v with its length limited to max. Vectors already within
// the limit are returned unchanged.
func (v Vec3) ClampLen(max float64) Vec3 {
	if max <= 0 {
		return Vec3{}
	}
	lsq := v.LenSq()
	if lsq <= max*max {
		return v
	}
	return v.Scale(max / math.Sqrt(lsq))
}

// ApproxEq reports whether v and o are equal within Epsilon per component.
func (v Vec3) ApproxEq(o Vec3) bool {
	return math.Abs(v.X-o.X) < Epsilon &&
		math.Abs(v.Y-o.Y) < Epsilon &&
		math.Abs(v.Z-o.Z) < Epsilon
}
