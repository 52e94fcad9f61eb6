// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package physics

import "math"

// GravitationalConstant is the Newtonian constant G in m^3 kg^-1 s^-2.
const GravitationalConstant = 6.674e-11

// PointMass is the minimal view of a body the mechanical helpers need.
type PointMass struct {
	Position Vec3
	Velocity Vec3
	Mass     float64
	Radius   float64
}

// GravityAccel returns the acceleration applied to a body at position `at`
// by an attractor of the given mass and position.
//
// Bodies closer than Epsilon are treated as co-located and contribute no
// acceleration; without that guard a near-zero separation produces an
// enormous impulse that flings bodies out of the system in one tick.
func GravityAccel(at Vec3, attractorPos Vec3, attractorMass float64) Vec3 {
	delta := attractorPos.Sub(at)
	distSq := delta.LenSq()
	if distSq < Epsilon*Epsilon {
		return Vec3{}
	}
	accel := GravitationalConstant * attractorMass / distSq
	return delta.Normalized().Scale(accel)
}

// CircularOrbitSpeed returns the tangential speed for a circular orbit of the
// given radius around a central mass. Returns 0 for non-positive radius.
func CircularOrbitSpeed(centralMass, radius float64) float64 {
	if radius <= 0 {
		return 0
	}
	return math.Sqrt(GravitationalConstant * centralMass / radius)
}

// Collision describes an overlap between two point masses detected by
// CheckCollision.
type Collision struct {
	// RelativeSpeed is the closing speed at the moment of detection.
	RelativeSpeed float64
}

// CheckCollision reports whether the two bodies overlap. radius-zero bodies
// never collide with each other (two dimensionless points cannot meet).
func CheckCollision(a, b PointMass) (Collision, bool) {
	reach := a.Radius + b.Radius
	if reach <= 0 {
		return Collision{}, false
	}
	if a.Position.Sub(b.Position).LenSq() > reach*reach {
		return Collision{}, false
	}
	return Collision{
		RelativeSpeed: a.Velocity.Sub(b.Velocity).Len(),
	}, true
}

// IntegrateSemiImplicit advances a body by dt using semi-implicit Euler:
// velocity is updated first, then position uses the new velocity. This is
// the standard choice for orbital mechanics because it conserves energy far
// better than explicit Euler over long runs.
func IntegrateSemiImplicit(body *PointMass, accel Vec3, dt float64) {
	body.Velocity = body.Velocity.Add(accel.Scale(dt))
	body.Position = body.Position.Add(body.Velocity.Scale(dt))
}
