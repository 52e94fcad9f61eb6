// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// maxRequestBytes caps one inbound request message. Requests are small;
// anything bigger is a misbehaving client.
const maxRequestBytes = 64 * 1024

// outboundDepth is the per-session bundle queue. A client that falls this
// many ticks behind starts losing bundles rather than stalling the relay.
const outboundDepth = 32

// wsSession sends bundles over one WebSocket. All writes happen on a
// single writer goroutine; Send only touches the queue.
type wsSession struct {
	id   string
	ws   *websocket.Conn
	out  chan []byte
	once sync.Once
	done chan struct{}
}

func newWSSession(ws *websocket.Conn) *wsSession {
	return &wsSession{
		id:   uuid.New().String(),
		ws:   ws,
		out:  make(chan []byte, outboundDepth),
		done: make(chan struct{}),
	}
}

// Send implements Session.
func (s *wsSession) Send(bundle []byte) bool {
	select {
	case <-s.done:
		return false
	case s.out <- bundle:
		return true
	default:
		return false
	}
}

// Close implements Session.
func (s *wsSession) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.ws.Close()
}

func (s *wsSession) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case bundle := <-s.out:
			if err := s.ws.WriteMessage(websocket.TextMessage, bundle); err != nil {
				slog.Info("websocket write failed", "session", s.id, "error", err)
				_ = s.Close()
				return
			}
		}
	}
}

// RunWebSocket services one upgraded WebSocket until the client goes
// away. It blocks; call it from the HTTP handler's goroutine.
func RunWebSocket(mgr *Manager, ws *websocket.Conn) {
	sess := newWSSession(ws)
	ws.SetReadLimit(maxRequestBytes)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	conn, err := mgr.Attach(ctx, sess)
	cancel()
	if err != nil {
		slog.Error("websocket attach failed", "session", sess.id, "error", err)
		_ = sess.Close()
		return
	}
	slog.Info("websocket session started", "session", sess.id, "conn", uint64(conn.Key()))

	go sess.writeLoop()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			slog.Info("websocket session ended", "session", sess.id, "error", err.Error())
			break
		}
		mgr.HandleData(conn, data)
	}
	mgr.Detach(conn)
	_ = sess.Close()
}
