// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/orrery/services/sim/physics"
	"github.com/AleutianAI/orrery/services/sim/state"
)

type notification struct {
	conn  state.ConnKey
	key   state.EntityKey
	name  string
	value state.Value
	kind  string
}

type recordingSink struct {
	notes []notification
}

func (r *recordingSink) PropertyChanged(conn state.ConnKey, key state.EntityKey, name string, value state.Value) {
	r.notes = append(r.notes, notification{conn, key, name, value, "update"})
}

func (r *recordingSink) SignalFired(conn state.ConnKey, key state.EntityKey, name string, value state.Value) {
	r.notes = append(r.notes, notification{conn, key, name, value, "event"})
}

func (r *recordingSink) EntityDestroyed(conn state.ConnKey, key state.EntityKey) {
	r.notes = append(r.notes, notification{conn: conn, key: key, kind: "destroyed"})
}

func (r *recordingSink) byKind(kind string) []notification {
	var out []notification
	for _, n := range r.notes {
		if n.kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func newTestWorld(t *testing.T, cfg Config) (*World, *state.State) {
	t.Helper()
	st := state.NewState()
	w, err := NewWorld(cfg, st)
	require.NoError(t, err)
	return w, st
}

func bodyList(t *testing.T, st *state.State, w *World) []state.Value {
	t.Helper()
	v, err := st.Property(w.Root(), "bodies")
	require.NoError(t, err)
	items, ok := v.AsList()
	require.True(t, ok)
	return items
}

func TestNewWorld_DefaultSystem(t *testing.T) {
	w, st := newTestWorld(t, Config{})

	assert.Equal(t, 4, w.Bodies())
	assert.Len(t, bodyList(t, st, w), 4)

	v, err := st.Property(w.Root(), "time")
	require.NoError(t, err)
	sec, ok := v.AsScalar()
	require.True(t, ok)
	assert.Zero(t, sec)

	props, sigs, err := st.MemberNames(w.Root())
	require.NoError(t, err)
	assert.Equal(t, []string{"bodies", "conn_count", "time"}, props)
	assert.Equal(t, []string{"create_ship", "ship_created"}, sigs)
}

func TestCreateShip_FiresShipCreated(t *testing.T) {
	w, st := newTestWorld(t, Config{})
	conn := state.ConnKey(7)
	require.NoError(t, st.SubscribeSignal(conn, w.Root(), "ship_created"))

	err := st.ClientFireSignal(conn, w.Root(), "create_ship", state.Null())
	require.NoError(t, err)

	var sink recordingSink
	st.FlushNotifications(&sink)
	events := sink.byKind("event")
	require.Len(t, events, 1)
	assert.Equal(t, "ship_created", events[0].name)

	shipKey, ok := events[0].value.AsEntity()
	require.True(t, ok)
	assert.True(t, st.Alive(shipKey))
	assert.Len(t, bodyList(t, st, w), 5)
}

func TestCreateShip_RejectsBadValue(t *testing.T) {
	w, st := newTestWorld(t, Config{})
	err := st.ClientFireSignal(1, w.Root(), "create_ship", state.Text("here"))
	assert.ErrorIs(t, err, errBadValue)
}

func TestCreateShip_SpawnsInOrbit(t *testing.T) {
	w, _ := newTestWorld(t, Config{})
	pos := physics.Vec3{X: 1.496e11}
	ship, err := w.CreateShip(pos)
	require.NoError(t, err)

	want := physics.CircularOrbitSpeed(1.989e30, pos.Len())
	assert.InEpsilon(t, want, ship.Velocity().Len(), 1e-6)
}

func TestAccelHook_ClampsAndDisengagesAutopilot(t *testing.T) {
	w, st := newTestWorld(t, Config{MaxAccel: 10})
	ship, err := w.CreateShip(physics.Vec3{X: 1e11})
	require.NoError(t, err)
	ship.autopilot = AutopilotOrbit

	err = st.ClientSetProperty(1, ship.Key(), "accel", state.Vector(physics.Vec3{X: 100}))
	require.NoError(t, err)

	assert.InDelta(t, 10.0, ship.Accel().Len(), 1e-9)
	assert.Equal(t, AutopilotOff, ship.Autopilot())

	err = st.ClientSetProperty(1, ship.Key(), "accel", state.Text("fast"))
	assert.ErrorIs(t, err, errBadValue)
}

func TestAutopilotHook_ValidatesMode(t *testing.T) {
	w, st := newTestWorld(t, Config{})
	ship, err := w.CreateShip(physics.Vec3{X: 1e11})
	require.NoError(t, err)

	require.NoError(t, st.ClientSetProperty(1, ship.Key(), "autopilot", state.Text("orbit")))
	assert.Equal(t, AutopilotOrbit, ship.Autopilot())

	err = st.ClientSetProperty(1, ship.Key(), "autopilot", state.Text("ram"))
	assert.ErrorIs(t, err, errBadValue)
}

func TestTargetHook(t *testing.T) {
	w, st := newTestWorld(t, Config{})
	ship, err := w.CreateShip(physics.Vec3{X: 1e11})
	require.NoError(t, err)
	planet := bodyList(t, st, w)[1]
	planetKey, ok := planet.AsEntity()
	require.True(t, ok)

	require.NoError(t, st.ClientSetProperty(1, ship.Key(), "target", state.Entity(planetKey)))
	assert.Equal(t, planetKey, ship.target)

	require.NoError(t, st.ClientSetProperty(1, ship.Key(), "target", state.Null()))
	assert.True(t, ship.target.IsNull())

	err = st.ClientSetProperty(1, ship.Key(), "target", state.Entity(w.Root()))
	assert.ErrorIs(t, err, errBadValue)
}

func TestGravity_OrbitStaysCircular(t *testing.T) {
	star := BodySpec{Name: "star", Class: ClassStar, Mass: 1.989e30, Radius: 7e8}
	orbit := 1.496e11
	speed := physics.CircularOrbitSpeed(star.Mass, orbit)
	planet := BodySpec{
		Name:     "planet",
		Class:    ClassPlanet,
		Mass:     5.97e24,
		Radius:   6.4e6,
		Position: physics.Vec3{X: orbit},
		Velocity: physics.Vec3{Y: speed},
	}
	w, st := newTestWorld(t, Config{Bodies: []BodySpec{star, planet}})

	for i := 0; i < 1000; i++ {
		w.stepGravity(st, 60)
	}
	var body *Body
	for _, b := range w.orderedBodies() {
		if b.Name() == "planet" {
			body = b
		}
	}
	require.NotNil(t, body)
	assert.InEpsilon(t, orbit, body.Position().Len(), 0.01)
}

func TestGravity_SyncsProperties(t *testing.T) {
	w, st := newTestWorld(t, Config{})
	conn := state.ConnKey(3)
	planetKey, ok := bodyList(t, st, w)[1].AsEntity()
	require.True(t, ok)
	require.NoError(t, st.SubscribeProperty(conn, planetKey, "position"))

	var sink recordingSink
	st.FlushNotifications(&sink)
	sink.notes = nil

	w.stepGravity(st, 60)
	st.FlushNotifications(&sink)

	updates := sink.byKind("update")
	require.Len(t, updates, 1)
	assert.Equal(t, "position", updates[0].name)
	got, ok := updates[0].value.AsVector()
	require.True(t, ok)

	want, err := st.Property(planetKey, "position")
	require.NoError(t, err)
	wantVec, _ := want.AsVector()
	assert.Equal(t, wantVec, got)
}

func TestCollision_DestroysShip(t *testing.T) {
	star := BodySpec{Name: "star", Class: ClassStar, Mass: 1.989e30, Radius: 7e8}
	w, st := newTestWorld(t, Config{Bodies: []BodySpec{star}, ShipRadius: 10})
	ship, err := w.CreateShip(physics.Vec3{X: 1e8})
	require.NoError(t, err)

	conn := state.ConnKey(9)
	require.NoError(t, st.SubscribeSignal(conn, ship.Key(), "collided"))

	w.stepCollision(st, 1.0/15)

	assert.False(t, st.Alive(ship.Key()))
	assert.Equal(t, 1, w.Bodies())
	assert.Len(t, bodyList(t, st, w), 1)

	var sink recordingSink
	st.FlushNotifications(&sink)
	require.Len(t, sink.byKind("event"), 1)
	require.Len(t, sink.byKind("destroyed"), 1)
}

func TestCollision_PlanetsSurvive(t *testing.T) {
	a := BodySpec{Name: "a", Class: ClassPlanet, Mass: 1e20, Radius: 1e6}
	b := BodySpec{Name: "b", Class: ClassPlanet, Mass: 1e20, Radius: 1e6, Position: physics.Vec3{X: 1e6}}
	w, st := newTestWorld(t, Config{Bodies: []BodySpec{a, b}})

	w.stepCollision(st, 1.0/15)
	assert.Equal(t, 2, w.Bodies())
}

func TestAutopilot_OrbitReachesCircularSpeed(t *testing.T) {
	star := BodySpec{Name: "star", Class: ClassStar, Mass: 1.989e30, Radius: 7e8}
	w, st := newTestWorld(t, Config{Bodies: []BodySpec{star}, MaxAccel: 1e4})
	ship, err := w.CreateShip(physics.Vec3{X: 1.496e11})
	require.NoError(t, err)
	// Knock the ship off its spawn orbit.
	ship.velocity = physics.Vec3{}
	starKey, ok := bodyList(t, st, w)[0].AsEntity()
	require.True(t, ok)
	require.NoError(t, st.ClientSetProperty(1, ship.Key(), "target", state.Entity(starKey)))
	require.NoError(t, st.ClientSetProperty(1, ship.Key(), "autopilot", state.Text("orbit")))

	dt := 1.0 / 15
	for i := 0; i < 20000; i++ {
		w.stepAutopilot(st, dt)
		w.stepGravity(st, dt)
	}

	want := physics.CircularOrbitSpeed(star.Mass, ship.Position().Len())
	assert.InEpsilon(t, want, ship.Velocity().Len(), 0.05)
}

func TestAutopilot_DisengagesOnDeadTarget(t *testing.T) {
	star := BodySpec{Name: "star", Class: ClassStar, Mass: 1.989e30, Radius: 7e8}
	w, st := newTestWorld(t, Config{Bodies: []BodySpec{star}})
	ship, err := w.CreateShip(physics.Vec3{X: 1e11})
	require.NoError(t, err)
	victim, err := w.CreateShip(physics.Vec3{X: 2e11})
	require.NoError(t, err)

	require.NoError(t, st.ClientSetProperty(1, ship.Key(), "target", state.Entity(victim.Key())))
	require.NoError(t, st.ClientSetProperty(1, ship.Key(), "autopilot", state.Text("orbit")))
	require.NoError(t, w.RemoveBody(victim.Key()))

	w.stepAutopilot(st, 1.0/15)
	assert.Equal(t, AutopilotOff, ship.Autopilot())
	assert.True(t, ship.target.IsNull())
}

func TestStepClock(t *testing.T) {
	w, st := newTestWorld(t, Config{})
	w.stepClock(st, 1.0/15)
	w.stepClock(st, 1.0/15)

	v, err := st.Property(w.Root(), "time")
	require.NoError(t, err)
	sec, ok := v.AsScalar()
	require.True(t, ok)
	assert.InDelta(t, 2.0/15, sec, 1e-12)
	assert.InDelta(t, 2.0/15, w.Time(), 1e-12)
}

func TestSetConnCount(t *testing.T) {
	w, st := newTestWorld(t, Config{})
	w.SetConnCount(3)

	v, err := st.Property(w.Root(), "conn_count")
	require.NoError(t, err)
	n, ok := v.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(3), n)
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	w, st := newTestWorld(t, Config{MaxAccel: 42})
	ship, err := w.CreateShip(physics.Vec3{X: 1e11})
	require.NoError(t, err)
	ship.accel = physics.Vec3{X: 1, Y: 2}
	w.stepClock(st, 100)

	snap := w.Snapshot()
	require.Len(t, snap.Bodies, 5)
	assert.Equal(t, 100.0, snap.Time)

	oldKeys := st.Entities()
	require.NoError(t, w.Restore(snap))

	assert.Equal(t, 100.0, w.Time())
	assert.Equal(t, 5, w.Bodies())
	for _, k := range oldKeys {
		if k == w.Root() {
			continue
		}
		assert.False(t, st.Alive(k), "pre-restore key should be stale")
	}

	// Slot reuse does not preserve ordering across a restore.
	again := w.Snapshot()
	assert.Equal(t, snap.Time, again.Time)
	assert.ElementsMatch(t, snap.Bodies, again.Bodies)
}

func TestRemoveBody_UnknownKey(t *testing.T) {
	w, _ := newTestWorld(t, Config{})
	err := w.RemoveBody(state.EntityKey{})
	assert.ErrorIs(t, err, state.ErrStaleKey)
}
