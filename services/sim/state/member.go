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

// WriteHook is invoked when a client sets a property. The hook validates and
// applies the value; it decides itself whether to call SetProperty (most do)
// or to translate the request into some other mutation. Returning an error
// sends a protocol error message to the requesting client.
type WriteHook func(s *State, conn ConnKey, value Value) error

// FireHook is invoked when a client fires a signal, turning the signal into
// a client-initiated action. Returning an error sends a protocol error
// message to the requesting client.
type FireHook func(s *State, conn ConnKey, value Value) error

// property is a named, subscribable value on an entity.
type property struct {
	value     Value
	subs      map[ConnKey]struct{}
	dirty     bool
	writeHook WriteHook
}

// signal is a named event source on an entity. Unlike a property it has no
// current value; subscribers receive each fired value exactly once.
type signal struct {
	subs     map[ConnKey]struct{}
	fireHook FireHook
}

func newProperty(initial Value) *property {
	return &property{
		value: initial,
		subs:  make(map[ConnKey]struct{}),
	}
}

func newSignal() *signal {
	return &signal{
		subs: make(map[ConnKey]struct{}),
	}
}
