// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import "errors"

// Sentinel errors returned by State operations. Handlers match these with
// errors.Is to decide between a protocol error message and a disconnect.
var (
	// ErrStaleKey means the entity key is null, was never allocated, or
	// names an entity that has been destroyed.
	ErrStaleKey = errors.New("stale entity key")

	// ErrNoSuchMember means the entity has no property or signal with the
	// requested name.
	ErrNoSuchMember = errors.New("no such member")

	// ErrDuplicateMember means a property or signal with that name already
	// exists on the entity.
	ErrDuplicateMember = errors.New("duplicate member")

	// ErrAlreadySubscribed means the connection is already subscribed to
	// the member.
	ErrAlreadySubscribed = errors.New("already subscribed")

	// ErrNotSubscribed means the connection is not subscribed to the member.
	ErrNotSubscribed = errors.New("not subscribed")

	// ErrReadOnly means a client tried to set a property that has no write
	// hook. Server-side code may still set such properties.
	ErrReadOnly = errors.New("property is read-only")

	// ErrNotFireable means a client tried to fire a signal that has no fire
	// hook.
	ErrNotFireable = errors.New("signal cannot be fired by clients")
)
