// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package game

import (
	"fmt"

	"github.com/AleutianAI/orrery/services/sim/physics"
	"github.com/AleutianAI/orrery/services/sim/state"
)

// Class labels what a body is. Exposed to clients via the "class" property.
type Class string

const (
	ClassStar   Class = "star"
	ClassPlanet Class = "planet"
	ClassShip   Class = "ship"
)

// AutopilotMode is the ship guidance mode, exposed via "autopilot".
type AutopilotMode string

const (
	// AutopilotOff leaves the commanded acceleration untouched.
	AutopilotOff AutopilotMode = "off"

	// AutopilotOrbit steers toward a circular orbit around the target.
	AutopilotOrbit AutopilotMode = "orbit"
)

// BodySpec describes a body to create.
type BodySpec struct {
	Name     string
	Class    Class
	Mass     float64 // kg
	Radius   float64 // m
	Position physics.Vec3
	Velocity physics.Vec3
}

// Body is a celestial object. The struct is the simulation's source of
// truth; the entity's properties mirror it for subscribers and are synced
// once per tick.
type Body struct {
	key      state.EntityKey
	name     string
	class    Class
	mass     float64
	radius   float64
	position physics.Vec3
	velocity physics.Vec3
}

// Key returns the body's entity key.
func (b *Body) Key() state.EntityKey { return b.key }

// Name returns the body's display name.
func (b *Body) Name() string { return b.name }

// Class returns the body's class.
func (b *Body) Class() Class { return b.class }

// Mass returns the body's mass in kg.
func (b *Body) Mass() float64 { return b.mass }

// Position returns the body's current position.
func (b *Body) Position() physics.Vec3 { return b.position }

// Velocity returns the body's current velocity.
func (b *Body) Velocity() physics.Vec3 { return b.velocity }

// point returns the physics view of the body.
func (b *Body) point() physics.PointMass {
	return physics.PointMass{
		Position: b.position,
		Velocity: b.velocity,
		Mass:     b.mass,
		Radius:   b.radius,
	}
}

// Ship is a body under player control: it has a commanded acceleration
// (clamped to maxAccel) and an optional autopilot.
type Ship struct {
	Body
	accel     physics.Vec3
	maxAccel  float64
	autopilot AutopilotMode
	target    state.EntityKey
}

// Accel returns the current commanded acceleration.
func (s *Ship) Accel() physics.Vec3 { return s.accel }

// MaxAccel returns the thrust limit in m/s^2.
func (s *Ship) MaxAccel() float64 { return s.maxAccel }

// Autopilot returns the current guidance mode.
func (s *Ship) Autopilot() AutopilotMode { return s.autopilot }

// addBodyMembers registers the property surface shared by all bodies.
func addBodyMembers(st *state.State, b *Body) error {
	k := b.key
	members := []struct {
		name  string
		value state.Value
	}{
		{"name", state.Text(b.name)},
		{"class", state.Text(string(b.class))},
		{"position", state.Vector(b.position)},
		{"velocity", state.Vector(b.velocity)},
		{"mass", state.Scalar(b.mass)},
		{"radius", state.Scalar(b.radius)},
	}
	for _, m := range members {
		if err := st.AddProperty(k, m.name, m.value); err != nil {
			return fmt.Errorf("body %q: %w", b.name, err)
		}
	}
	if err := st.AddSignal(k, "collided"); err != nil {
		return fmt.Errorf("body %q: %w", b.name, err)
	}
	return nil
}

// syncBody pushes the struct fields into the entity's properties. The
// state's dirty tracking drops writes whose value did not change.
func syncBody(st *state.State, b *Body) {
	_ = st.SetProperty(b.key, "position", state.Vector(b.position))
	_ = st.SetProperty(b.key, "velocity", state.Vector(b.velocity))
}
