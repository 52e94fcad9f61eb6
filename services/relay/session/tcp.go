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
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// tcpSession speaks newline-delimited JSON: one request per inbound
// line, one bundle per outbound line.
type tcpSession struct {
	id   string
	conn net.Conn
	out  chan []byte
	once sync.Once
	done chan struct{}
}

func newTCPSession(conn net.Conn) *tcpSession {
	return &tcpSession{
		id:   uuid.New().String(),
		conn: conn,
		out:  make(chan []byte, outboundDepth),
		done: make(chan struct{}),
	}
}

// Send implements Session.
func (s *tcpSession) Send(bundle []byte) bool {
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
func (s *tcpSession) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.conn.Close()
}

func (s *tcpSession) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case bundle := <-s.out:
			if _, err := s.conn.Write(append(bundle, '\n')); err != nil {
				slog.Info("tcp write failed", "session", s.id, "error", err)
				_ = s.Close()
				return
			}
		}
	}
}

// ServeTCP accepts newline-delimited JSON clients until ctx is done or
// the listener fails.
func ServeTCP(ctx context.Context, mgr *Manager, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go serveTCPClient(mgr, conn)
	}
}

func serveTCPClient(mgr *Manager, netConn net.Conn) {
	sess := newTCPSession(netConn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	conn, err := mgr.Attach(ctx, sess)
	cancel()
	if err != nil {
		slog.Error("tcp attach failed", "session", sess.id, "error", err)
		_ = sess.Close()
		return
	}
	slog.Info("tcp session started", "session", sess.id, "conn", uint64(conn.Key()))

	go sess.writeLoop()
	sc := bufio.NewScanner(netConn)
	sc.Buffer(make([]byte, 0, 4096), maxRequestBytes)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		data := make([]byte, len(line))
		copy(data, line)
		mgr.HandleData(conn, data)
	}
	if err := sc.Err(); err != nil {
		slog.Info("tcp session ended", "session", sess.id, "error", err.Error())
	}
	mgr.Detach(conn)
	_ = sess.Close()
}
