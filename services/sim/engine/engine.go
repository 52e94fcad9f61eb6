// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine drives the simulation: a single goroutine owns the State
// and advances it at a fixed tick rate. Each tick drains the inbox of
// client requests, steps the registered systems, and flushes change
// notifications to the session layer.
//
// All State access funnels through this goroutine. Network readers call
// Enqueue; HTTP handlers needing a consistent view call Do.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/orrery/services/proto"
	"github.com/AleutianAI/orrery/services/sim/state"
)

// DefaultTickRate is the simulation frequency in ticks per second when the
// config leaves it zero.
const DefaultTickRate = 15.0

const defaultInboxSize = 256

// Sink receives everything the engine emits toward clients: the state
// notifications plus request replies, and a Flush call marking the end of
// each tick's output.
type Sink interface {
	state.NotificationSink

	// PropertyValue answers a get request or provides the initial value
	// after a successful property subscribe.
	PropertyValue(conn state.ConnKey, key state.EntityKey, name string, value state.Value)

	// RequestError reports a failed request to the connection it came from.
	// key may be null and member empty for malformed requests.
	RequestError(conn state.ConnKey, key state.EntityKey, member string, err error)

	// Flush marks the end of a tick; the sink sends its buffered bundles.
	Flush()
}

// System is one step of simulation logic, run once per tick with the fixed
// tick duration in seconds. Systems run in registration order.
type System struct {
	Name string
	Step func(st *state.State, dt float64)
}

// Inbound is one item queued from the network side.
type Inbound struct {
	Conn state.ConnKey

	// Req is the decoded request when Err is nil and Disconnect is false.
	Req proto.Request

	// Err reports a request that failed to decode; the engine answers it
	// with a protocol error message.
	Err error

	// Disconnect tells the engine to drop all of the connection's
	// subscriptions.
	Disconnect bool

	// Apply, when set, is bookkeeping run on the engine goroutine instead
	// of a request. Like disconnects, applies are never dropped.
	Apply func(st *state.State)
}

// Config holds engine tuning. The zero value is usable.
type Config struct {
	// TickRate is the simulation frequency in Hz. Default: DefaultTickRate.
	TickRate float64

	// InboxSize bounds the request queue. When the inbox is full further
	// requests are dropped (and counted); the engine never blocks the
	// network readers. Default: 256.
	InboxSize int

	// OnTick, when set, observes each completed tick's wall duration.
	// Used for metrics and by tests for synchronization.
	OnTick func(elapsed time.Duration)
}

type call struct {
	fn   func(st *state.State)
	done chan struct{}
}

// Engine owns a State and advances it. Construct with New, register
// systems, then Run on a dedicated goroutine.
type Engine struct {
	cfg     Config
	st      *state.State
	clock   Clock
	sink    Sink
	systems []System
	inbox   chan Inbound
	calls   chan call
	dropped atomic.Uint64
}

// New creates an engine around st. sink may be nil here (see SetSink) but
// must be set before Run.
func New(cfg Config, st *state.State, clock Clock, sink Sink) *Engine {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Engine{
		cfg:   cfg,
		st:    st,
		clock: clock,
		sink:  sink,
		inbox: make(chan Inbound, cfg.InboxSize),
		calls: make(chan call),
	}
}

// Register appends a system to the per-tick pipeline. Not safe to call
// after Run has started.
func (e *Engine) Register(sys System) {
	e.systems = append(e.systems, sys)
}

// SetSink installs the notification sink. The sink usually needs the
// engine to exist first, so it is set after New and before Run.
func (e *Engine) SetSink(sink Sink) {
	e.sink = sink
}

// Enqueue hands an inbound item to the engine without blocking. It reports
// false when the inbox is full and the item was dropped; disconnects are
// never dropped (they block until accepted, as losing one leaks
// subscriptions).
func (e *Engine) Enqueue(in Inbound) bool {
	if in.Disconnect || in.Apply != nil {
		e.inbox <- in
		return true
	}
	select {
	case e.inbox <- in:
		return true
	default:
		e.dropped.Add(1)
		slog.Warn("engine inbox full, dropping request", "conn", in.Conn)
		return false
	}
}

// Do runs fn on the engine goroutine during the next tick and waits for it.
// This is how HTTP handlers read or mutate the State without racing the
// simulation.
func (e *Engine) Do(ctx context.Context, fn func(st *state.State)) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case e.calls <- c:
	case <-ctx.Done():
		return fmt.Errorf("engine call not accepted: %w", ctx.Err())
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine call not completed: %w", ctx.Err())
	}
}

// Run drives the tick loop until ctx is cancelled. It always returns
// ctx.Err(); the engine has no failure mode of its own.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(float64(time.Second) / e.cfg.TickRate)
	dt := interval.Seconds()

	slog.Info("engine starting", "tick_rate", e.cfg.TickRate, "systems", len(e.systems))
	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopping", "dropped_requests", e.dropped.Load())
			return ctx.Err()
		case c := <-e.calls:
			// Serviced between ticks so HTTP handlers don't wait out a
			// full tick interval.
			c.fn(e.st)
			close(c.done)
		case <-ticker.C():
			e.tick(dt)
		}
	}
}

// tick runs one simulation step with a fixed dt. Wall-clock jitter is
// deliberately ignored: a fixed dt keeps the physics deterministic, and a
// stalled host slows the simulation down instead of destabilizing it.
func (e *Engine) tick(dt float64) {
	start := e.clock.Now()

	e.drainInbox()
	e.drainCalls()

	for _, sys := range e.systems {
		sys.Step(e.st, dt)
	}

	e.st.FlushNotifications(e.sink)
	e.sink.Flush()

	if e.cfg.OnTick != nil {
		e.cfg.OnTick(e.clock.Now().Sub(start))
	}
}

func (e *Engine) drainInbox() {
	for {
		select {
		case in := <-e.inbox:
			e.dispatch(in)
		default:
			return
		}
	}
}

func (e *Engine) drainCalls() {
	for {
		select {
		case c := <-e.calls:
			c.fn(e.st)
			close(c.done)
		default:
			return
		}
	}
}

// dispatch applies one inbound item to the State. Request failures become
// protocol error messages on the requesting connection; they never
// terminate it.
func (e *Engine) dispatch(in Inbound) {
	if in.Disconnect {
		e.st.DropConnection(in.Conn)
		return
	}
	if in.Apply != nil {
		in.Apply(e.st)
		return
	}
	if in.Err != nil {
		e.sink.RequestError(in.Conn, state.EntityKey{}, "", in.Err)
		return
	}

	req := in.Req
	var err error
	switch req.Type {
	case proto.RequestGet:
		var v state.Value
		if v, err = e.st.Property(req.Object, req.Member); err == nil {
			e.sink.PropertyValue(in.Conn, req.Object, req.Member, v)
		}
	case proto.RequestSet:
		err = e.st.ClientSetProperty(in.Conn, req.Object, req.Member, req.Value)
	case proto.RequestSubscribe:
		if req.Kind == proto.MemberSignal {
			err = e.st.SubscribeSignal(in.Conn, req.Object, req.Member)
		} else if err = e.st.SubscribeProperty(in.Conn, req.Object, req.Member); err == nil {
			// A successful property subscribe answers with the current
			// value so the client has a baseline before the first update.
			var v state.Value
			if v, err = e.st.Property(req.Object, req.Member); err == nil {
				e.sink.PropertyValue(in.Conn, req.Object, req.Member, v)
			}
		}
	case proto.RequestUnsubscribe:
		if req.Kind == proto.MemberSignal {
			err = e.st.UnsubscribeSignal(in.Conn, req.Object, req.Member)
		} else {
			err = e.st.UnsubscribeProperty(in.Conn, req.Object, req.Member)
		}
	case proto.RequestFire:
		err = e.st.ClientFireSignal(in.Conn, req.Object, req.Member, req.Value)
	default:
		err = fmt.Errorf("unhandled request type %d", req.Type)
	}

	if err != nil {
		e.sink.RequestError(in.Conn, req.Object, req.Member, err)
	}
}
