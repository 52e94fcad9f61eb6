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

import (
	"fmt"
	"sort"
)

// NotificationSink receives the change notifications drained by
// FlushNotifications. The session layer implements it to translate
// notifications into per-connection protocol bundles.
type NotificationSink interface {
	// PropertyChanged delivers the current value of a subscribed property
	// that changed since the last flush.
	PropertyChanged(conn ConnKey, key EntityKey, name string, value Value)

	// SignalFired delivers one fired signal value to one subscriber.
	SignalFired(conn ConnKey, key EntityKey, name string, value Value)

	// EntityDestroyed tells a subscriber that an entity it was watching is
	// gone. Sent once per connection regardless of how many of the entity's
	// members it was subscribed to.
	EntityDestroyed(conn ConnKey, key EntityKey)
}

type entitySlot struct {
	gen     uint32
	live    bool
	props   map[string]*property
	sigs    map[string]*signal
	cleanup []func(*State)
}

type memberRef struct {
	key  EntityKey
	name string
}

type firedEvent struct {
	key   EntityKey
	name  string
	value Value
	subs  []ConnKey
}

type destroyedNote struct {
	key  EntityKey
	subs []ConnKey
}

// State is the entity store. See the package comment for the ownership
// rules; State performs no locking of its own.
type State struct {
	slots     []entitySlot
	free      []uint32
	dirty     []memberRef
	events    []firedEvent
	destroyed []destroyedNote
}

// NewState returns an empty State. Slot 0 is reserved so the zero EntityKey
// stays null forever.
func NewState() *State {
	return &State{
		slots: make([]entitySlot, 1),
	}
}

// lookup resolves a key to its live slot, or ErrStaleKey.
func (s *State) lookup(k EntityKey) (*entitySlot, error) {
	if k.IsNull() || int(k.slot) >= len(s.slots) {
		return nil, ErrStaleKey
	}
	slot := &s.slots[k.slot]
	if !slot.live || slot.gen != k.gen {
		return nil, ErrStaleKey
	}
	return slot, nil
}

// Alive reports whether k names a live entity.
func (s *State) Alive(k EntityKey) bool {
	_, err := s.lookup(k)
	return err == nil
}

// CreateEntity allocates a new entity with no members.
func (s *State) CreateEntity() EntityKey {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.slots = append(s.slots, entitySlot{})
		idx = uint32(len(s.slots) - 1)
	}
	slot := &s.slots[idx]
	slot.live = true
	slot.props = make(map[string]*property)
	slot.sigs = make(map[string]*signal)
	slot.cleanup = nil
	return EntityKey{slot: idx, gen: slot.gen}
}

// OnDestroy registers fn to run when the entity is destroyed. Hooks run in
// registration order before subscribers are notified.
func (s *State) OnDestroy(k EntityKey, fn func(*State)) error {
	slot, err := s.lookup(k)
	if err != nil {
		return err
	}
	slot.cleanup = append(slot.cleanup, fn)
	return nil
}

// DestroyEntity tears an entity down: cleanup hooks run, every connection
// subscribed to any of its members gets one EntityDestroyed notification at
// the next flush, and the slot's generation is bumped so outstanding keys
// go stale.
func (s *State) DestroyEntity(k EntityKey) error {
	slot, err := s.lookup(k)
	if err != nil {
		return err
	}
	for _, fn := range slot.cleanup {
		fn(s)
	}

	seen := make(map[ConnKey]struct{})
	for _, p := range slot.props {
		for conn := range p.subs {
			seen[conn] = struct{}{}
		}
	}
	for _, sig := range slot.sigs {
		for conn := range sig.subs {
			seen[conn] = struct{}{}
		}
	}
	if len(seen) > 0 {
		subs := make([]ConnKey, 0, len(seen))
		for conn := range seen {
			subs = append(subs, conn)
		}
		s.destroyed = append(s.destroyed, destroyedNote{key: k, subs: subs})
	}

	slot.live = false
	slot.gen++
	slot.props = nil
	slot.sigs = nil
	slot.cleanup = nil
	s.free = append(s.free, k.slot)
	return nil
}

// AddProperty adds a read-only property with an initial value. Use
// SetWriteHook to make it client-writable.
func (s *State) AddProperty(k EntityKey, name string, initial Value) error {
	slot, err := s.lookup(k)
	if err != nil {
		return err
	}
	if _, dup := slot.props[name]; dup {
		return fmt.Errorf("property %q: %w", name, ErrDuplicateMember)
	}
	if _, dup := slot.sigs[name]; dup {
		return fmt.Errorf("property %q collides with signal: %w", name, ErrDuplicateMember)
	}
	slot.props[name] = newProperty(initial)
	return nil
}

// AddSignal adds a signal member. Use SetFireHook to make it a
// client-fireable action.
func (s *State) AddSignal(k EntityKey, name string) error {
	slot, err := s.lookup(k)
	if err != nil {
		return err
	}
	if _, dup := slot.sigs[name]; dup {
		return fmt.Errorf("signal %q: %w", name, ErrDuplicateMember)
	}
	if _, dup := slot.props[name]; dup {
		return fmt.Errorf("signal %q collides with property: %w", name, ErrDuplicateMember)
	}
	slot.sigs[name] = newSignal()
	return nil
}

// SetWriteHook installs the handler invoked when clients set the property.
func (s *State) SetWriteHook(k EntityKey, name string, hook WriteHook) error {
	p, err := s.property(k, name)
	if err != nil {
		return err
	}
	p.writeHook = hook
	return nil
}

// SetFireHook installs the handler invoked when clients fire the signal.
func (s *State) SetFireHook(k EntityKey, name string, hook FireHook) error {
	sig, err := s.signal(k, name)
	if err != nil {
		return err
	}
	sig.fireHook = hook
	return nil
}

// Property returns the current value of a property.
func (s *State) Property(k EntityKey, name string) (Value, error) {
	p, err := s.property(k, name)
	if err != nil {
		return Null(), err
	}
	return p.value, nil
}

// SetProperty stores a new value with server authority. If the value
// actually changed and the property has subscribers, one update per
// subscriber is queued for the next flush; repeated sets within a tick
// collapse into a single update carrying the final value.
func (s *State) SetProperty(k EntityKey, name string, v Value) error {
	p, err := s.property(k, name)
	if err != nil {
		return err
	}
	if p.value.Equal(v) {
		return nil
	}
	p.value = v
	if !p.dirty && len(p.subs) > 0 {
		p.dirty = true
		s.dirty = append(s.dirty, memberRef{key: k, name: name})
	}
	return nil
}

// ClientSetProperty applies a set request from a client through the
// property's write hook. Properties without a hook are read-only to clients.
func (s *State) ClientSetProperty(conn ConnKey, k EntityKey, name string, v Value) error {
	p, err := s.property(k, name)
	if err != nil {
		return err
	}
	if p.writeHook == nil {
		return fmt.Errorf("property %q: %w", name, ErrReadOnly)
	}
	return p.writeHook(s, conn, v)
}

// FireSignal emits a value to the signal's current subscribers. The
// subscriber set is snapshotted now, not at flush time.
func (s *State) FireSignal(k EntityKey, name string, v Value) error {
	sig, err := s.signal(k, name)
	if err != nil {
		return err
	}
	if len(sig.subs) == 0 {
		return nil
	}
	subs := make([]ConnKey, 0, len(sig.subs))
	for conn := range sig.subs {
		subs = append(subs, conn)
	}
	s.events = append(s.events, firedEvent{key: k, name: name, value: v, subs: subs})
	return nil
}

// ClientFireSignal applies a fire request from a client through the signal's
// fire hook. Signals without a hook are not client-fireable.
func (s *State) ClientFireSignal(conn ConnKey, k EntityKey, name string, v Value) error {
	sig, err := s.signal(k, name)
	if err != nil {
		return err
	}
	if sig.fireHook == nil {
		return fmt.Errorf("signal %q: %w", name, ErrNotFireable)
	}
	return sig.fireHook(s, conn, v)
}

// SubscribeProperty registers conn for updates of the property. Subscribing
// twice is an error.
func (s *State) SubscribeProperty(conn ConnKey, k EntityKey, name string) error {
	p, err := s.property(k, name)
	if err != nil {
		return err
	}
	if _, dup := p.subs[conn]; dup {
		return fmt.Errorf("property %q: %w", name, ErrAlreadySubscribed)
	}
	p.subs[conn] = struct{}{}
	return nil
}

// UnsubscribeProperty removes conn from the property's subscribers.
func (s *State) UnsubscribeProperty(conn ConnKey, k EntityKey, name string) error {
	p, err := s.property(k, name)
	if err != nil {
		return err
	}
	if _, ok := p.subs[conn]; !ok {
		return fmt.Errorf("property %q: %w", name, ErrNotSubscribed)
	}
	delete(p.subs, conn)
	return nil
}

// SubscribeSignal registers conn for the signal's events.
func (s *State) SubscribeSignal(conn ConnKey, k EntityKey, name string) error {
	sig, err := s.signal(k, name)
	if err != nil {
		return err
	}
	if _, dup := sig.subs[conn]; dup {
		return fmt.Errorf("signal %q: %w", name, ErrAlreadySubscribed)
	}
	sig.subs[conn] = struct{}{}
	return nil
}

// UnsubscribeSignal removes conn from the signal's subscribers.
func (s *State) UnsubscribeSignal(conn ConnKey, k EntityKey, name string) error {
	sig, err := s.signal(k, name)
	if err != nil {
		return err
	}
	if _, ok := sig.subs[conn]; !ok {
		return fmt.Errorf("signal %q: %w", name, ErrNotSubscribed)
	}
	delete(sig.subs, conn)
	return nil
}

// DropConnection removes conn from every subscription. Called when a client
// disconnects; unknown connections are a no-op.
func (s *State) DropConnection(conn ConnKey) {
	for i := range s.slots {
		slot := &s.slots[i]
		if !slot.live {
			continue
		}
		for _, p := range slot.props {
			delete(p.subs, conn)
		}
		for _, sig := range slot.sigs {
			delete(sig.subs, conn)
		}
	}
}

// FlushNotifications drains all queued notifications into sink: property
// updates first, then signal events, then entity destructions. Updates for
// entities destroyed in the same tick are dropped; the destruction
// notification supersedes them.
func (s *State) FlushNotifications(sink NotificationSink) {
	for _, ref := range s.dirty {
		slot, err := s.lookup(ref.key)
		if err != nil {
			continue
		}
		p, ok := slot.props[ref.name]
		if !ok || !p.dirty {
			continue
		}
		p.dirty = false
		for conn := range p.subs {
			sink.PropertyChanged(conn, ref.key, ref.name, p.value)
		}
	}
	s.dirty = s.dirty[:0]

	for _, ev := range s.events {
		for _, conn := range ev.subs {
			sink.SignalFired(conn, ev.key, ev.name, ev.value)
		}
	}
	s.events = s.events[:0]

	for _, note := range s.destroyed {
		for _, conn := range note.subs {
			sink.EntityDestroyed(conn, note.key)
		}
	}
	s.destroyed = s.destroyed[:0]
}

// Entities returns the keys of all live entities in slot order.
func (s *State) Entities() []EntityKey {
	var keys []EntityKey
	for i := 1; i < len(s.slots); i++ {
		if s.slots[i].live {
			keys = append(keys, EntityKey{slot: uint32(i), gen: s.slots[i].gen})
		}
	}
	return keys
}

// MemberNames returns the sorted property and signal names of an entity,
// for introspection endpoints.
func (s *State) MemberNames(k EntityKey) (props, sigs []string, err error) {
	slot, err := s.lookup(k)
	if err != nil {
		return nil, nil, err
	}
	for name := range slot.props {
		props = append(props, name)
	}
	for name := range slot.sigs {
		sigs = append(sigs, name)
	}
	sort.Strings(props)
	sort.Strings(sigs)
	return props, sigs, nil
}

func (s *State) property(k EntityKey, name string) (*property, error) {
	slot, err := s.lookup(k)
	if err != nil {
		return nil, err
	}
	p, ok := slot.props[name]
	if !ok {
		return nil, fmt.Errorf("property %q: %w", name, ErrNoSuchMember)
	}
	return p, nil
}

func (s *State) signal(k EntityKey, name string) (*signal, error) {
	slot, err := s.lookup(k)
	if err != nil {
		return nil, err
	}
	sig, ok := slot.sigs[name]
	if !ok {
		return nil, fmt.Errorf("signal %q: %w", name, ErrNoSuchMember)
	}
	return sig, nil
}
