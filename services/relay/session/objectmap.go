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
	"sync"

	"github.com/AleutianAI/orrery/services/proto"
	"github.com/AleutianAI/orrery/services/sim/state"
)

// objectMap is one connection's entity-to-wire-ID table. IDs are dense,
// start at 1 (the root object), and are never reused: a destroyed entity
// keeps its ID so "destroyed" messages can still name it.
//
// WireID allocates and runs on the engine goroutine during encoding;
// EntityFor is read by the transport's reader goroutine while decoding
// requests, hence the RWMutex.
type objectMap struct {
	st *state.State

	mu     sync.RWMutex
	byKey  map[state.EntityKey]proto.ObjectID
	byID   map[proto.ObjectID]state.EntityKey
	nextID proto.ObjectID
}

func newObjectMap(st *state.State, root state.EntityKey) *objectMap {
	m := &objectMap{
		st:     st,
		byKey:  make(map[state.EntityKey]proto.ObjectID),
		byID:   make(map[proto.ObjectID]state.EntityKey),
		nextID: 1,
	}
	m.byKey[root] = 1
	m.byID[1] = root
	m.nextID = 2
	return m
}

// WireID implements proto.Resolver.
func (m *objectMap) WireID(key state.EntityKey) (proto.ObjectID, bool) {
	m.mu.RLock()
	id, ok := m.byKey[key]
	m.mu.RUnlock()
	if ok {
		return id, true
	}
	if !m.st.Alive(key) {
		return 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byKey[key]; ok {
		return id, true
	}
	id = m.nextID
	m.nextID++
	m.byKey[key] = id
	m.byID[id] = key
	return id, true
}

// EntityFor implements proto.Lookup.
func (m *objectMap) EntityFor(id proto.ObjectID) (state.EntityKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.byID[id]
	return key, ok
}

// Known reports how many entities have been shown to the connection.
func (m *objectMap) Known() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
