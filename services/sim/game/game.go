// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package game builds the simulated star system on top of the entity
// state: bodies, player ships, the root object clients talk to first,
// and the per-tick systems (gravity, collisions, autopilot) that move
// everything.
//
// # Thread Safety
//
// A World mutates State and therefore lives on the engine goroutine.
// Construct it before Engine.Run and touch it afterwards only from
// system callbacks, member hooks, or Engine.Do.
package game

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/orrery/services/sim/engine"
	"github.com/AleutianAI/orrery/services/sim/physics"
	"github.com/AleutianAI/orrery/services/sim/state"
)

// DefaultMaxAccel is the thrust limit for new ships in m/s^2.
const DefaultMaxAccel = 100.0

var errBadValue = errors.New("bad value")

// Config tunes a new World.
type Config struct {
	// Bodies seeds the star system. Nil means DefaultSystem().
	Bodies []BodySpec

	// MaxAccel is the thrust limit for created ships. Zero means
	// DefaultMaxAccel.
	MaxAccel float64

	// ShipRadius is the collision radius of created ships in meters.
	// Zero disables ship collision checks.
	ShipRadius float64
}

// World owns the game entities and keeps their properties in sync with
// the simulation.
type World struct {
	cfg    Config
	st     *state.State
	root   state.EntityKey
	bodies map[state.EntityKey]*Body
	ships  map[state.EntityKey]*Ship
	time   float64
}

// NewWorld creates the root entity and the configured bodies.
func NewWorld(cfg Config, st *state.State) (*World, error) {
	if cfg.MaxAccel == 0 {
		cfg.MaxAccel = DefaultMaxAccel
	}
	w := &World{
		cfg:    cfg,
		st:     st,
		bodies: make(map[state.EntityKey]*Body),
		ships:  make(map[state.EntityKey]*Ship),
	}
	if err := w.createRoot(); err != nil {
		return nil, err
	}
	specs := cfg.Bodies
	if specs == nil {
		specs = DefaultSystem()
	}
	for _, spec := range specs {
		if _, err := w.AddBody(spec); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Root returns the entity every connection is introduced to as object 1.
func (w *World) Root() state.EntityKey { return w.root }

// Time returns the simulation time in seconds.
func (w *World) Time() float64 { return w.time }

// Bodies returns the number of live bodies, ships included.
func (w *World) Bodies() int { return len(w.bodies) }

func (w *World) createRoot() error {
	k := w.st.CreateEntity()
	w.root = k
	if err := w.st.AddProperty(k, "bodies", state.List()); err != nil {
		return err
	}
	if err := w.st.AddProperty(k, "time", state.Scalar(0)); err != nil {
		return err
	}
	if err := w.st.AddProperty(k, "conn_count", state.Integer(0)); err != nil {
		return err
	}
	if err := w.st.AddSignal(k, "ship_created"); err != nil {
		return err
	}
	if err := w.st.AddSignal(k, "create_ship"); err != nil {
		return err
	}
	return w.st.SetFireHook(k, "create_ship", w.handleCreateShip)
}

// handleCreateShip services a client "create_ship" fire. The value is the
// spawn position, or null for the configured default spawn.
func (w *World) handleCreateShip(st *state.State, conn state.ConnKey, v state.Value) error {
	pos, ok := v.AsVector()
	if !ok {
		if !v.IsNull() {
			return fmt.Errorf("create_ship wants a position vector or null: %w", errBadValue)
		}
		pos = w.defaultSpawn()
	}
	ship, err := w.CreateShip(pos)
	if err != nil {
		return err
	}
	slog.Info("ship created", "conn", uint64(conn), "position", pos)
	return st.FireSignal(w.root, "ship_created", state.Entity(ship.key))
}

// defaultSpawn places new ships in a circular orbit well clear of the
// most massive body.
func (w *World) defaultSpawn() physics.Vec3 {
	central := w.mostMassive()
	if central == nil {
		return physics.Vec3{}
	}
	return central.position.Add(physics.Vec3{X: central.radius * 20, Y: 0, Z: 0})
}

func (w *World) mostMassive() *Body {
	var best *Body
	for _, b := range w.bodies {
		if best == nil || b.mass > best.mass {
			best = b
		}
	}
	return best
}

// AddBody creates a celestial body from a spec.
func (w *World) AddBody(spec BodySpec) (*Body, error) {
	b := &Body{
		key:      w.st.CreateEntity(),
		name:     spec.Name,
		class:    spec.Class,
		mass:     spec.Mass,
		radius:   spec.Radius,
		position: spec.Position,
		velocity: spec.Velocity,
	}
	if err := addBodyMembers(w.st, b); err != nil {
		return nil, err
	}
	w.bodies[b.key] = b
	w.refreshBodyList()
	return b, nil
}

// CreateShip creates a player ship at rest relative to the spawn point,
// except for the tangential speed of a circular orbit around the most
// massive body.
func (w *World) CreateShip(pos physics.Vec3) (*Ship, error) {
	ship := &Ship{
		Body: Body{
			key:      w.st.CreateEntity(),
			name:     fmt.Sprintf("ship-%d", len(w.ships)+1),
			class:    ClassShip,
			radius:   w.cfg.ShipRadius,
			position: pos,
		},
		maxAccel:  w.cfg.MaxAccel,
		autopilot: AutopilotOff,
	}
	if central := w.mostMassive(); central != nil {
		r := pos.Sub(central.position)
		speed := physics.CircularOrbitSpeed(central.mass, r.Len())
		// Tangent in the XY plane; degenerate directions orbit nothing.
		tangent := physics.Vec3{X: -r.Y, Y: r.X, Z: 0}.Normalized()
		ship.velocity = central.velocity.Add(tangent.Scale(speed))
	}
	if err := addBodyMembers(w.st, &ship.Body); err != nil {
		return nil, err
	}
	if err := w.addShipMembers(ship); err != nil {
		return nil, err
	}
	w.bodies[ship.key] = &ship.Body
	w.ships[ship.key] = ship
	w.refreshBodyList()
	return ship, nil
}

func (w *World) addShipMembers(ship *Ship) error {
	k := ship.key
	if err := w.st.AddProperty(k, "accel", state.Vector(ship.accel)); err != nil {
		return err
	}
	if err := w.st.AddProperty(k, "max_accel", state.Scalar(ship.maxAccel)); err != nil {
		return err
	}
	if err := w.st.AddProperty(k, "autopilot", state.Text(string(ship.autopilot))); err != nil {
		return err
	}
	if err := w.st.AddProperty(k, "target", state.Null()); err != nil {
		return err
	}
	if err := w.st.SetWriteHook(k, "accel", w.accelHook(ship)); err != nil {
		return err
	}
	if err := w.st.SetWriteHook(k, "autopilot", w.autopilotHook(ship)); err != nil {
		return err
	}
	return w.st.SetWriteHook(k, "target", w.targetHook(ship))
}

// accelHook applies a client thrust command. Manual thrust disengages the
// autopilot; the vector is clamped to the ship's thrust limit.
func (w *World) accelHook(ship *Ship) state.WriteHook {
	return func(st *state.State, conn state.ConnKey, v state.Value) error {
		vec, ok := v.AsVector()
		if !ok {
			return fmt.Errorf("accel wants a vector: %w", errBadValue)
		}
		ship.accel = vec.ClampLen(ship.maxAccel)
		ship.autopilot = AutopilotOff
		if err := st.SetProperty(ship.key, "accel", state.Vector(ship.accel)); err != nil {
			return err
		}
		return st.SetProperty(ship.key, "autopilot", state.Text(string(ship.autopilot)))
	}
}

func (w *World) autopilotHook(ship *Ship) state.WriteHook {
	return func(st *state.State, conn state.ConnKey, v state.Value) error {
		text, ok := v.AsText()
		if !ok {
			return fmt.Errorf("autopilot wants a string: %w", errBadValue)
		}
		mode := AutopilotMode(text)
		switch mode {
		case AutopilotOff, AutopilotOrbit:
		default:
			return fmt.Errorf("unknown autopilot mode %q: %w", text, errBadValue)
		}
		ship.autopilot = mode
		return st.SetProperty(ship.key, "autopilot", state.Text(string(mode)))
	}
}

func (w *World) targetHook(ship *Ship) state.WriteHook {
	return func(st *state.State, conn state.ConnKey, v state.Value) error {
		if v.IsNull() {
			ship.target = state.EntityKey{}
			return st.SetProperty(ship.key, "target", state.Null())
		}
		key, ok := v.AsEntity()
		if !ok {
			return fmt.Errorf("target wants a body or null: %w", errBadValue)
		}
		if _, known := w.bodies[key]; !known {
			return fmt.Errorf("target is not a body: %w", errBadValue)
		}
		ship.target = key
		return st.SetProperty(ship.key, "target", state.Entity(key))
	}
}

// RemoveBody destroys a body (or ship) and drops it from the body list.
func (w *World) RemoveBody(k state.EntityKey) error {
	if _, known := w.bodies[k]; !known {
		return state.ErrStaleKey
	}
	delete(w.bodies, k)
	delete(w.ships, k)
	if err := w.st.DestroyEntity(k); err != nil {
		return err
	}
	w.refreshBodyList()
	return nil
}

// refreshBodyList rewrites the root "bodies" property from the live set,
// ordered by slot for deterministic wire output.
func (w *World) refreshBodyList() {
	var items []state.Value
	for _, k := range w.st.Entities() {
		if _, ok := w.bodies[k]; ok {
			items = append(items, state.Entity(k))
		}
	}
	_ = w.st.SetProperty(w.root, "bodies", state.List(items...))
}

// SetConnCount updates the root "conn_count" property. Call via Engine.Do.
func (w *World) SetConnCount(n int) {
	_ = w.st.SetProperty(w.root, "conn_count", state.Integer(int64(n)))
}

// Register installs the world's per-tick systems on the engine, in
// simulation order.
func (w *World) Register(eng *engine.Engine) {
	eng.Register(engine.System{Name: "autopilot", Step: w.stepAutopilot})
	eng.Register(engine.System{Name: "gravity", Step: w.stepGravity})
	eng.Register(engine.System{Name: "collision", Step: w.stepCollision})
	eng.Register(engine.System{Name: "clock", Step: w.stepClock})
}

// DefaultSystem is a small sun-and-planets setup in SI units. Orbital
// speeds come out of the circular orbit relation so the system is stable
// under integration.
func DefaultSystem() []BodySpec {
	const (
		sunMass   = 1.989e30
		sunRadius = 6.957e8
	)
	specs := []BodySpec{
		{Name: "Sol", Class: ClassStar, Mass: sunMass, Radius: sunRadius},
	}
	planets := []struct {
		name   string
		mass   float64
		radius float64
		orbit  float64
	}{
		{"Hermes", 3.30e23, 2.44e6, 5.79e10},
		{"Gaia", 5.97e24, 6.37e6, 1.496e11},
		{"Ares", 6.42e23, 3.39e6, 2.279e11},
	}
	for _, p := range planets {
		speed := physics.CircularOrbitSpeed(sunMass, p.orbit)
		specs = append(specs, BodySpec{
			Name:     p.name,
			Class:    ClassPlanet,
			Mass:     p.mass,
			Radius:   p.radius,
			Position: physics.Vec3{X: p.orbit},
			Velocity: physics.Vec3{Y: speed},
		})
	}
	return specs
}
