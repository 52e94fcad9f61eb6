// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state holds the simulation's entity store: entities, their named
// properties and signals, per-connection subscriptions, and the queue of
// pending change notifications drained once per engine tick.
//
// # Ownership
//
// A State is owned by the engine goroutine. None of its methods are safe for
// concurrent use; network code must route all access through the engine's
// inbox rather than touching the State directly.
package state

// EntityKey identifies an entity in a State. Keys are generational: when an
// entity is destroyed its slot may be reused, but the generation is bumped,
// so a key held across a destroy is detectably stale rather than silently
// aliasing the slot's next occupant.
//
// The zero value is the null key and never names a live entity.
type EntityKey struct {
	slot uint32
	gen  uint32
}

// IsNull reports whether k is the null key.
func (k EntityKey) IsNull() bool {
	return k == EntityKey{}
}

// ConnKey identifies a client connection for subscription bookkeeping. Keys
// are allocated by the session manager and are never reused within a process.
type ConnKey uint64
