// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package proto implements the JSON wire protocol between the relay and its
// clients.
//
// # Requests (client to server)
//
// One JSON object per WebSocket message (or per line on TCP):
//
//	{"mtype": "get",         "object": 1, "property": "time"}
//	{"mtype": "set",         "object": 4, "property": "accel", "value": [0, 0, 9.8]}
//	{"mtype": "subscribe",   "object": 4, "property": "position"}
//	{"mtype": "unsubscribe", "object": 4, "property": "position"}
//	{"mtype": "subscribe",   "object": 1, "signal": "ship_created"}
//	{"mtype": "fire",        "object": 1, "signal": "create_ship", "value": [1e11, 0, 0]}
//
// # Bundles (server to client)
//
// The server sends one JSON array per tick per connection, containing
// "update", "value", "event", "destroyed", and "error" messages.
//
// # Value encoding
//
// Scalars, strings, booleans, and null map directly to JSON. Vectors encode
// as a 3-element number array. Entity references encode as {"object": N}
// where N is a connection-scoped wire ID. Lists are wrapped in one extra
// array layer ([[a, b, ...]]) so a list is never mistaken for a vector.
package proto

import "github.com/AleutianAI/orrery/services/sim/state"

// ObjectID is a connection-scoped wire identifier for an entity. IDs are
// dense, start at 1 (the root object), and are never reused within a
// connection. 0 is invalid.
type ObjectID uint32

// Resolver translates entity keys to wire IDs while encoding a bundle for
// one connection. Implementations keep returning IDs they have already
// handed out, even for destroyed entities ("destroyed" messages name dead
// objects). A false return means the entity is dead and was never shown to
// this connection; such references encode as null.
type Resolver interface {
	WireID(key state.EntityKey) (ObjectID, bool)
}

// Lookup translates wire IDs back to entity keys while decoding a request
// from one connection. A false return means the client referenced an object
// it has never been shown.
type Lookup interface {
	EntityFor(id ObjectID) (state.EntityKey, bool)
}
