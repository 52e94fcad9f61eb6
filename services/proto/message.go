// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package proto

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/AleutianAI/orrery/services/sim/state"
)

// Message is one server-to-client protocol message. Construct with Update,
// PropertyValue, Event, Destroyed, or ErrorMessage; encode with Encoder.
type Message struct {
	mtype     string
	object    state.EntityKey
	hasObject bool
	memberKey string // "property" or "signal"
	member    string
	value     state.Value
	hasValue  bool
	text      string
}

// Update reports a subscribed property's new value.
func Update(key state.EntityKey, prop string, v state.Value) Message {
	return Message{
		mtype: "update", object: key, hasObject: true,
		memberKey: "property", member: prop,
		value: v, hasValue: true,
	}
}

// PropertyValue answers a get request.
func PropertyValue(key state.EntityKey, prop string, v state.Value) Message {
	return Message{
		mtype: "value", object: key, hasObject: true,
		memberKey: "property", member: prop,
		value: v, hasValue: true,
	}
}

// Event delivers a fired signal to a subscriber.
func Event(key state.EntityKey, sig string, v state.Value) Message {
	return Message{
		mtype: "event", object: key, hasObject: true,
		memberKey: "signal", member: sig,
		value: v, hasValue: true,
	}
}

// Destroyed tells a subscriber an entity is gone.
func Destroyed(key state.EntityKey) Message {
	return Message{mtype: "destroyed", object: key, hasObject: true}
}

// ErrorMessage reports a failed request on the connection it arrived on.
// key may be null and member empty when the failure wasn't tied to a
// specific entity (for example a malformed request).
func ErrorMessage(key state.EntityKey, member string, text string) Message {
	m := Message{mtype: "error", text: text}
	if !key.IsNull() {
		m.object = key
		m.hasObject = true
	}
	if member != "" {
		m.memberKey = "member"
		m.member = member
	}
	return m
}

// Encoder encodes messages for one connection, translating entity keys to
// that connection's wire IDs through res.
type Encoder struct {
	res Resolver
}

// NewEncoder returns an Encoder bound to one connection's resolver.
func NewEncoder(res Resolver) *Encoder {
	return &Encoder{res: res}
}

// EncodeBundle renders messages as one JSON array, the unit the relay sends
// per connection per tick.
func (e *Encoder) EncodeBundle(msgs []Message) ([]byte, error) {
	dst := append([]byte(nil), '[')
	for i, m := range msgs {
		if i > 0 {
			dst = append(dst, ',')
		}
		var err error
		dst, err = e.appendMessage(dst, m)
		if err != nil {
			return nil, err
		}
	}
	return append(dst, ']'), nil
}

func (e *Encoder) appendMessage(dst []byte, m Message) ([]byte, error) {
	dst = append(dst, `{"mtype":`...)
	dst = appendString(dst, m.mtype)
	if m.hasObject {
		id, live := e.res.WireID(m.object)
		if !live {
			// The entity died between queueing and encoding; the destroyed
			// notification is already in the bundle, so drop the reference
			// rather than invent an ID.
			id = 0
		}
		dst = append(dst, `,"object":`...)
		dst = strconv.AppendUint(dst, uint64(id), 10)
	}
	if m.member != "" {
		dst = append(dst, ',', '"')
		dst = append(dst, m.memberKey...)
		dst = append(dst, '"', ':')
		dst = appendString(dst, m.member)
	}
	if m.hasValue {
		dst = append(dst, `,"value":`...)
		var err error
		dst, err = e.appendValue(dst, m.value)
		if err != nil {
			return nil, err
		}
	}
	if m.text != "" {
		dst = append(dst, `,"text":`...)
		dst = appendString(dst, m.text)
	}
	return append(dst, '}'), nil
}

func (e *Encoder) appendValue(dst []byte, v state.Value) ([]byte, error) {
	switch v.Kind() {
	case state.KindNull:
		return append(dst, "null"...), nil
	case state.KindBool:
		b, _ := v.AsBool()
		return strconv.AppendBool(dst, b), nil
	case state.KindInteger:
		i, _ := v.AsInteger()
		return strconv.AppendInt(dst, i, 10), nil
	case state.KindScalar:
		f, _ := v.AsScalar()
		return appendFloat(dst, f)
	case state.KindText:
		s, _ := v.AsText()
		return appendString(dst, s), nil
	case state.KindVector:
		vec, _ := v.AsVector()
		dst = append(dst, '[')
		var err error
		for i, f := range [3]float64{vec.X, vec.Y, vec.Z} {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst, err = appendFloat(dst, f)
			if err != nil {
				return nil, err
			}
		}
		return append(dst, ']'), nil
	case state.KindEntity:
		key, _ := v.AsEntity()
		id, live := e.res.WireID(key)
		if !live {
			return append(dst, "null"...), nil
		}
		dst = append(dst, `{"object":`...)
		dst = strconv.AppendUint(dst, uint64(id), 10)
		return append(dst, '}'), nil
	case state.KindList:
		items, _ := v.AsList()
		dst = append(dst, '[', '[')
		var err error
		for i, item := range items {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst, err = e.appendValue(dst, item)
			if err != nil {
				return nil, err
			}
		}
		return append(dst, ']', ']'), nil
	default:
		return nil, fmt.Errorf("cannot encode value of kind %v", v.Kind())
	}
}

func appendFloat(dst []byte, f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("cannot encode non-finite scalar %v", f)
	}
	return strconv.AppendFloat(dst, f, 'g', -1, 64), nil
}

// appendString renders s as a JSON string. encoding/json handles the
// escaping rules; a plain string never fails to marshal.
func appendString(dst []byte, s string) []byte {
	b, _ := json.Marshal(s)
	return append(dst, b...)
}
