// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AleutianAI/orrery/services/sim/engine"
	"github.com/AleutianAI/orrery/services/sim/game"
	"github.com/AleutianAI/orrery/services/sim/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// loopSession collects sent bundles in memory.
type loopSession struct {
	mu      sync.Mutex
	bundles [][]byte
	reject  bool
	closed  bool
}

func (l *loopSession) Send(bundle []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reject {
		return false
	}
	l.bundles = append(l.bundles, bundle)
	return true
}

func (l *loopSession) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *loopSession) sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.bundles...)
}

// countMetrics counts callbacks.
type countMetrics struct {
	opened, closed, in, out, dropped, protoErrs atomic.Int64
}

func (c *countMetrics) SessionOpened() { c.opened.Add(1) }

func (c *countMetrics) SessionClosed() { c.closed.Add(1) }

func (c *countMetrics) MessageIn() { c.in.Add(1) }

func (c *countMetrics) BundleOut(int) { c.out.Add(1) }

func (c *countMetrics) BundleDropped() { c.dropped.Add(1) }

func (c *countMetrics) ProtocolError() { c.protoErrs.Add(1) }

type relayFixture struct {
	st      *state.State
	world   *game.World
	eng     *engine.Engine
	mgr     *Manager
	metrics *countMetrics
}

// startRelay runs a real engine. tickRate near zero keeps the engine idle
// so tests can drive the sink directly without racing the tick loop.
func startRelay(t *testing.T, tickRate float64, register bool) *relayFixture {
	t.Helper()

	st := state.NewState()
	world, err := game.NewWorld(game.Config{}, st)
	require.NoError(t, err)

	eng := engine.New(engine.Config{TickRate: tickRate}, st, nil, nil)
	metrics := &countMetrics{}
	mgr := NewManager(eng, st, world, metrics)
	eng.SetSink(mgr)
	if register {
		world.Register(eng)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &relayFixture{st: st, world: world, eng: eng, mgr: mgr, metrics: metrics}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestObjectMap_RootIsOneAndIDsAreDense(t *testing.T) {
	st := state.NewState()
	root := st.CreateEntity()
	a := st.CreateEntity()
	b := st.CreateEntity()

	m := newObjectMap(st, root)

	id, ok := m.WireID(root)
	require.True(t, ok)
	assert.Equal(t, uint32(1), uint32(id))

	idA, ok := m.WireID(a)
	require.True(t, ok)
	assert.Equal(t, uint32(2), uint32(idA))

	idB, ok := m.WireID(b)
	require.True(t, ok)
	assert.Equal(t, uint32(3), uint32(idB))

	// Stable on repeat.
	again, ok := m.WireID(a)
	require.True(t, ok)
	assert.Equal(t, idA, again)

	key, ok := m.EntityFor(idA)
	require.True(t, ok)
	assert.Equal(t, a, key)

	_, ok = m.EntityFor(99)
	assert.False(t, ok)
	assert.Equal(t, 3, m.Known())
}

func TestObjectMap_DeadEntities(t *testing.T) {
	st := state.NewState()
	root := st.CreateEntity()
	shown := st.CreateEntity()
	hidden := st.CreateEntity()
	m := newObjectMap(st, root)

	id, ok := m.WireID(shown)
	require.True(t, ok)

	require.NoError(t, st.DestroyEntity(shown))
	require.NoError(t, st.DestroyEntity(hidden))

	// Already-shown entities keep their ID after death.
	again, ok := m.WireID(shown)
	require.True(t, ok)
	assert.Equal(t, id, again)

	// Never-shown dead entities resolve to nothing.
	_, ok = m.WireID(hidden)
	assert.False(t, ok)
}

func TestManager_AttachDetachTracksConnCount(t *testing.T) {
	f := startRelay(t, 0.001, false)
	sess := &loopSession{}

	conn, err := f.mgr.Attach(testCtx(t), sess)
	require.NoError(t, err)
	assert.Equal(t, 1, f.mgr.Count())
	assert.Equal(t, int64(1), f.metrics.opened.Load())

	var count int64
	require.NoError(t, f.eng.Do(testCtx(t), func(st *state.State) {
		v, err := st.Property(f.world.Root(), "conn_count")
		require.NoError(t, err)
		count, _ = v.AsInteger()
	}))
	assert.Equal(t, int64(1), count)

	f.mgr.Detach(conn)
	assert.Equal(t, 0, f.mgr.Count())
	assert.Equal(t, int64(1), f.metrics.closed.Load())

	// Second detach is a no-op.
	f.mgr.Detach(conn)
	assert.Equal(t, int64(1), f.metrics.closed.Load())
}

func TestManager_FlushEncodesOneBundle(t *testing.T) {
	f := startRelay(t, 0.001, false)
	sess := &loopSession{}
	conn, err := f.mgr.Attach(testCtx(t), sess)
	require.NoError(t, err)

	f.mgr.PropertyValue(conn.Key(), f.world.Root(), "time", state.Scalar(12.5))
	f.mgr.RequestError(conn.Key(), state.EntityKey{}, "", assert.AnError)
	f.mgr.Flush()

	bundles := sess.sent()
	require.Len(t, bundles, 1)

	var msgs []map[string]any
	require.NoError(t, json.Unmarshal(bundles[0], &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "value", msgs[0]["mtype"])
	assert.Equal(t, float64(1), msgs[0]["object"])
	assert.Equal(t, "time", msgs[0]["property"])
	assert.Equal(t, 12.5, msgs[0]["value"])
	assert.Equal(t, "error", msgs[1]["mtype"])

	// Nothing pending, nothing sent.
	f.mgr.Flush()
	assert.Len(t, sess.sent(), 1)
	assert.Equal(t, int64(1), f.metrics.out.Load())
}

func TestManager_SessionBackpressureDropsBundles(t *testing.T) {
	f := startRelay(t, 0.001, false)
	sess := &loopSession{reject: true}
	conn, err := f.mgr.Attach(testCtx(t), sess)
	require.NoError(t, err)

	f.mgr.PropertyValue(conn.Key(), f.world.Root(), "time", state.Scalar(1))
	f.mgr.Flush()

	assert.Empty(t, sess.sent())
	assert.Equal(t, int64(1), f.metrics.dropped.Load())
}

func TestManager_SubscribeDeliversUpdates(t *testing.T) {
	f := startRelay(t, 100, true)
	sess := &loopSession{}
	conn, err := f.mgr.Attach(testCtx(t), sess)
	require.NoError(t, err)
	defer f.mgr.Detach(conn)

	f.mgr.HandleData(conn, []byte(`{"mtype":"subscribe","object":1,"property":"time"}`))

	assert.Eventually(t, func() bool {
		return len(sess.sent()) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	first := string(sess.sent()[0])
	assert.Contains(t, first, `"mtype":"value"`)
	assert.Contains(t, first, `"property":"time"`)
	assert.Equal(t, int64(1), f.metrics.in.Load())
}

func TestManager_MalformedRequestGetsErrorBundle(t *testing.T) {
	f := startRelay(t, 100, true)
	sess := &loopSession{}
	conn, err := f.mgr.Attach(testCtx(t), sess)
	require.NoError(t, err)
	defer f.mgr.Detach(conn)

	f.mgr.HandleData(conn, []byte(`{"mtype":"warp"}`))

	assert.Eventually(t, func() bool {
		for _, b := range sess.sent() {
			if strings.Contains(string(b), `"mtype":"error"`) {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), f.metrics.protoErrs.Load())
}

func TestServeTCP_EndToEnd(t *testing.T) {
	f := startRelay(t, 100, true)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ServeTCP(ctx, f.mgr, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	_, err = conn.Write([]byte(`{"mtype":"get","object":1,"property":"conn_count"}` + "\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"mtype":"value"`)
	assert.Contains(t, line, `"property":"conn_count"`)
	assert.Contains(t, line, `"value":1`)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return f.mgr.Count() == 0 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-served)
}

func TestRunWebSocket_EndToEnd(t *testing.T) {
	f := startRelay(t, 100, true)

	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		RunWebSocket(f.mgr, ws)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	err = client.WriteMessage(websocket.TextMessage,
		[]byte(`{"mtype":"get","object":1,"property":"bodies"}`))
	require.NoError(t, err)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"property":"bodies"`)
	assert.Contains(t, string(data), `{"object":2}`)

	require.NoError(t, client.Close())
	assert.Eventually(t, func() bool { return f.mgr.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}
