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
	"log/slog"

	"github.com/AleutianAI/orrery/services/sim/physics"
	"github.com/AleutianAI/orrery/services/sim/state"
)

// orderedBodies returns live bodies in slot order so every tick walks
// them deterministically.
func (w *World) orderedBodies() []*Body {
	out := make([]*Body, 0, len(w.bodies))
	for _, k := range w.st.Entities() {
		if b, ok := w.bodies[k]; ok {
			out = append(out, b)
		}
	}
	return out
}

// stepAutopilot steers ships in orbit mode toward the circular orbit
// velocity around their target at the current radius. The controller
// asks for the full velocity correction within one tick and lets the
// thrust limit smooth it out.
func (w *World) stepAutopilot(st *state.State, dt float64) {
	if dt <= 0 {
		return
	}
	for _, k := range w.st.Entities() {
		ship, ok := w.ships[k]
		if !ok || ship.autopilot != AutopilotOrbit {
			continue
		}
		target, ok := w.bodies[ship.target]
		if !ok {
			// Target destroyed; disengage rather than chase a stale key.
			ship.autopilot = AutopilotOff
			ship.target = state.EntityKey{}
			_ = st.SetProperty(ship.key, "autopilot", state.Text(string(AutopilotOff)))
			_ = st.SetProperty(ship.key, "target", state.Null())
			continue
		}
		r := ship.position.Sub(target.position)
		dist := r.Len()
		if dist < physics.Epsilon {
			continue
		}
		speed := physics.CircularOrbitSpeed(target.mass, dist)
		tangent := physics.Vec3{X: -r.Y, Y: r.X, Z: 0}.Normalized()
		if tangent.LenSq() < physics.Epsilon {
			tangent = physics.Vec3{Y: 1}
		}
		desired := target.velocity.Add(tangent.Scale(speed))
		ship.accel = desired.Sub(ship.velocity).Scale(1 / dt).ClampLen(ship.maxAccel)
		_ = st.SetProperty(ship.key, "accel", state.Vector(ship.accel))
	}
}

// stepGravity integrates every body one step. Accelerations are computed
// against the pre-step positions so integration order does not leak into
// the result.
func (w *World) stepGravity(st *state.State, dt float64) {
	bodies := w.orderedBodies()
	accels := make([]physics.Vec3, len(bodies))
	for i, b := range bodies {
		accel := physics.Vec3{}
		for _, other := range bodies {
			if other == b || other.mass == 0 {
				continue
			}
			accel = accel.Add(physics.GravityAccel(b.position, other.position, other.mass))
		}
		if ship, ok := w.ships[b.key]; ok {
			accel = accel.Add(ship.accel)
		}
		accels[i] = accel
	}
	for i, b := range bodies {
		pm := b.point()
		physics.IntegrateSemiImplicit(&pm, accels[i], dt)
		b.position = pm.Position
		b.velocity = pm.Velocity
		syncBody(st, b)
	}
}

// stepCollision fires "collided" on overlapping pairs and destroys any
// ship involved. Planets and stars survive contact.
func (w *World) stepCollision(st *state.State, dt float64) {
	bodies := w.orderedBodies()
	var doomed []*Body
	for i, a := range bodies {
		for _, b := range bodies[i+1:] {
			col, hit := physics.CheckCollision(a.point(), b.point())
			if !hit {
				continue
			}
			speed := state.Scalar(col.RelativeSpeed)
			_ = st.FireSignal(a.key, "collided", state.List(state.Entity(b.key), speed))
			_ = st.FireSignal(b.key, "collided", state.List(state.Entity(a.key), speed))
			if a.class == ClassShip {
				doomed = append(doomed, a)
			}
			if b.class == ClassShip {
				doomed = append(doomed, b)
			}
		}
	}
	for _, b := range doomed {
		if _, live := w.bodies[b.key]; !live {
			continue
		}
		slog.Info("ship destroyed in collision", "name", b.name)
		_ = w.RemoveBody(b.key)
	}
}

// stepClock advances simulation time and publishes it on the root.
func (w *World) stepClock(st *state.State, dt float64) {
	w.time += dt
	_ = st.SetProperty(w.root, "time", state.Scalar(w.time))
}
