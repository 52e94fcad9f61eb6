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
	"github.com/AleutianAI/orrery/services/sim/physics"
	"github.com/AleutianAI/orrery/services/sim/state"
)

// Snapshot is a serializable capture of the world. Entity keys are not
// part of it; a restore mints fresh entities, so clients holding old
// object references see them destroyed.
type Snapshot struct {
	Time   float64        `json:"time"`
	Bodies []BodySnapshot `json:"bodies"`
}

// BodySnapshot captures one body. Ship is set only for ships.
type BodySnapshot struct {
	Name     string        `json:"name"`
	Class    Class         `json:"class"`
	Mass     float64       `json:"mass"`
	Radius   float64       `json:"radius"`
	Position [3]float64    `json:"position"`
	Velocity [3]float64    `json:"velocity"`
	Ship     *ShipSnapshot `json:"ship,omitempty"`
}

// ShipSnapshot captures the ship-only fields. Autopilot targets are
// entity keys and do not survive a restore; restored ships come back
// with the autopilot off.
type ShipSnapshot struct {
	Accel    [3]float64 `json:"accel"`
	MaxAccel float64    `json:"max_accel"`
}

func packVec(v physics.Vec3) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func unpackVec(a [3]float64) physics.Vec3 { return physics.Vec3{X: a[0], Y: a[1], Z: a[2]} }

// Snapshot captures the current world. Call via Engine.Do.
func (w *World) Snapshot() Snapshot {
	snap := Snapshot{Time: w.time}
	for _, b := range w.orderedBodies() {
		bs := BodySnapshot{
			Name:     b.name,
			Class:    b.class,
			Mass:     b.mass,
			Radius:   b.radius,
			Position: packVec(b.position),
			Velocity: packVec(b.velocity),
		}
		if ship, ok := w.ships[b.key]; ok {
			bs.Ship = &ShipSnapshot{
				Accel:    packVec(ship.accel),
				MaxAccel: ship.maxAccel,
			}
		}
		snap.Bodies = append(snap.Bodies, bs)
	}
	return snap
}

// Restore replaces the world's bodies with the snapshot's. Existing
// entities are destroyed first, so subscribers are told what vanished
// before the new bodies appear. Call via Engine.Do.
func (w *World) Restore(snap Snapshot) error {
	for _, k := range w.st.Entities() {
		if _, ok := w.bodies[k]; ok {
			if err := w.RemoveBody(k); err != nil {
				return err
			}
		}
	}
	w.time = snap.Time
	if err := w.st.SetProperty(w.root, "time", state.Scalar(w.time)); err != nil {
		return err
	}
	for _, bs := range snap.Bodies {
		if bs.Ship == nil {
			if _, err := w.AddBody(BodySpec{
				Name:     bs.Name,
				Class:    bs.Class,
				Mass:     bs.Mass,
				Radius:   bs.Radius,
				Position: unpackVec(bs.Position),
				Velocity: unpackVec(bs.Velocity),
			}); err != nil {
				return err
			}
			continue
		}
		ship, err := w.CreateShip(unpackVec(bs.Position))
		if err != nil {
			return err
		}
		ship.name = bs.Name
		ship.mass = bs.Mass
		ship.radius = bs.Radius
		ship.velocity = unpackVec(bs.Velocity)
		ship.accel = unpackVec(bs.Ship.Accel)
		ship.maxAccel = bs.Ship.MaxAccel
		if err := w.st.SetProperty(ship.key, "name", state.Text(ship.name)); err != nil {
			return err
		}
		if err := w.st.SetProperty(ship.key, "mass", state.Scalar(ship.mass)); err != nil {
			return err
		}
		if err := w.st.SetProperty(ship.key, "radius", state.Scalar(ship.radius)); err != nil {
			return err
		}
		if err := w.st.SetProperty(ship.key, "velocity", state.Vector(ship.velocity)); err != nil {
			return err
		}
		if err := w.st.SetProperty(ship.key, "accel", state.Vector(ship.accel)); err != nil {
			return err
		}
		if err := w.st.SetProperty(ship.key, "max_accel", state.Scalar(ship.maxAccel)); err != nil {
			return err
		}
	}
	return nil
}
