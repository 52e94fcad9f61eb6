// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session connects client transports to the simulation engine.
//
// A Manager owns one Connection per client. Inbound request bytes are
// decoded against the connection's object table and enqueued on the
// engine; outbound notifications are buffered per connection during a
// tick and sent as one encoded bundle at flush. The Manager is the
// engine's Sink, so buffering and encoding happen on the engine
// goroutine; only Session.Send crosses back to the transport.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AleutianAI/orrery/services/proto"
	"github.com/AleutianAI/orrery/services/sim/engine"
	"github.com/AleutianAI/orrery/services/sim/state"
)

// Session is one client transport's outbound half. Implementations must
// not block in Send; a session that cannot keep up drops bundles.
type Session interface {
	// Send queues one encoded bundle for delivery. False means the
	// bundle was dropped.
	Send(bundle []byte) bool

	// Close tears the transport down. Safe to call more than once.
	Close() error
}

// World is the part of the game the session layer needs: the root entity
// every connection starts from, and the connection-count property.
type World interface {
	Root() state.EntityKey
	SetConnCount(n int)
}

// Metrics receives session-layer counters. The observability package
// provides the production implementation; tests pass nil for none.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	MessageIn()
	BundleOut(bytes int)
	BundleDropped()
	ProtocolError()
}

// Connection is the engine-side record of one client.
type Connection struct {
	key     state.ConnKey
	sess    Session
	objects *objectMap
	enc     *proto.Encoder

	// pending is touched only on the engine goroutine.
	pending []proto.Message
}

// Key returns the connection's engine key.
func (c *Connection) Key() state.ConnKey { return c.key }

// Manager routes between transports and the engine. It implements
// engine.Sink.
type Manager struct {
	eng     *engine.Engine
	st      *state.State
	world   World
	metrics Metrics

	mu    sync.Mutex
	conns map[state.ConnKey]*Connection
	next  uint64
}

// NewManager wires a manager to the engine and world. metrics may be nil.
func NewManager(eng *engine.Engine, st *state.State, world World, metrics Metrics) *Manager {
	return &Manager{
		eng:     eng,
		st:      st,
		world:   world,
		metrics: metrics,
		conns:   make(map[state.ConnKey]*Connection),
	}
}

// Attach registers a new client session and returns its connection. The
// root object is pre-mapped as wire ID 1.
func (m *Manager) Attach(ctx context.Context, sess Session) (*Connection, error) {
	m.mu.Lock()
	m.next++
	conn := &Connection{
		key:     state.ConnKey(m.next),
		sess:    sess,
		objects: newObjectMap(m.st, m.world.Root()),
	}
	conn.enc = proto.NewEncoder(conn.objects)
	m.conns[conn.key] = conn
	n := len(m.conns)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionOpened()
	}
	if err := m.eng.Do(ctx, func(st *state.State) {
		m.world.SetConnCount(n)
	}); err != nil {
		m.drop(conn)
		return nil, err
	}
	return conn, nil
}

// HandleData decodes one request from the client and enqueues it. Decode
// failures are enqueued too, so the error message reaches the client in
// the next bundle in order with everything else.
func (m *Manager) HandleData(conn *Connection, data []byte) {
	if m.metrics != nil {
		m.metrics.MessageIn()
	}
	req, err := proto.DecodeRequest(data, conn.objects)
	in := engine.Inbound{Conn: conn.key, Req: req, Err: err}
	if err != nil && m.metrics != nil {
		m.metrics.ProtocolError()
	}
	m.eng.Enqueue(in)
}

// Detach removes a departed client: the engine drops its subscriptions
// and the connection count updates on the next tick.
func (m *Manager) Detach(conn *Connection) {
	if !m.drop(conn) {
		return
	}
	m.eng.Enqueue(engine.Inbound{Conn: conn.key, Disconnect: true})
	m.mu.Lock()
	n := len(m.conns)
	m.mu.Unlock()
	// Runs on the engine goroutine with the other queued work.
	m.eng.Enqueue(engine.Inbound{Conn: conn.key, Disconnect: false, Apply: func(st *state.State) {
		m.world.SetConnCount(n)
	}})
}

func (m *Manager) drop(conn *Connection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[conn.key]; !ok {
		return false
	}
	delete(m.conns, conn.key)
	if m.metrics != nil {
		m.metrics.SessionClosed()
	}
	return true
}

// Count returns the number of attached connections.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *Manager) connFor(key state.ConnKey) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[key]
}

func (m *Manager) queue(key state.ConnKey, msg proto.Message) {
	if conn := m.connFor(key); conn != nil {
		conn.pending = append(conn.pending, msg)
	}
}

// PropertyChanged implements state.NotificationSink.
func (m *Manager) PropertyChanged(conn state.ConnKey, key state.EntityKey, name string, value state.Value) {
	m.queue(conn, proto.Update(key, name, value))
}

// SignalFired implements state.NotificationSink.
func (m *Manager) SignalFired(conn state.ConnKey, key state.EntityKey, name string, value state.Value) {
	m.queue(conn, proto.Event(key, name, value))
}

// EntityDestroyed implements state.NotificationSink.
func (m *Manager) EntityDestroyed(conn state.ConnKey, key state.EntityKey) {
	m.queue(conn, proto.Destroyed(key))
}

// PropertyValue implements engine.Sink.
func (m *Manager) PropertyValue(conn state.ConnKey, key state.EntityKey, name string, value state.Value) {
	m.queue(conn, proto.PropertyValue(key, name, value))
}

// RequestError implements engine.Sink.
func (m *Manager) RequestError(conn state.ConnKey, key state.EntityKey, member string, err error) {
	m.queue(conn, proto.ErrorMessage(key, member, err.Error()))
}

// Flush implements engine.Sink: every connection with pending messages
// gets one encoded bundle.
func (m *Manager) Flush() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		if len(c.pending) == 0 {
			continue
		}
		bundle, err := c.enc.EncodeBundle(c.pending)
		c.pending = c.pending[:0]
		if err != nil {
			slog.Error("bundle encode failed", "conn", uint64(c.key), "error", err)
			continue
		}
		if !c.sess.Send(bundle) {
			if m.metrics != nil {
				m.metrics.BundleDropped()
			}
			continue
		}
		if m.metrics != nil {
			m.metrics.BundleOut(len(bundle))
		}
	}
}
