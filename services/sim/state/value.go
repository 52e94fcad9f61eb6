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
	"strconv"
	"strings"

	"github.com/AleutianAI/orrery/services/sim/physics"
)

// ValueKind enumerates the kinds a Value can hold.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInteger
	KindScalar
	KindText
	KindVector
	KindEntity
	KindList
)

// String returns the lowercase kind name used in protocol error messages.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindScalar:
		return "scalar"
	case KindText:
		return "text"
	case KindVector:
		return "vector"
	case KindEntity:
		return "entity"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is the tagged union carried by properties and signals. It is the
// in-process form of every value that crosses the wire: entity references
// hold EntityKeys here and are translated to per-connection wire IDs only
// at encode time.
//
// Value is immutable; construct with the kind functions (Null, Bool,
// Integer, ...) and inspect with the As* accessors.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	vec  physics.Vec3
	ent  EntityKey
	list []Value
}

// Null returns the null Value. It is also the zero value of the type.
func Null() Value { return Value{} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Integer returns an integral Value.
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Scalar returns a floating-point Value.
func Scalar(f float64) Value { return Value{kind: KindScalar, f: f} }

// Text returns a string Value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Vector returns a 3-D vector Value.
func Vector(v physics.Vec3) Value { return Value{kind: KindVector, vec: v} }

// Entity returns a Value referencing another entity. A null key is allowed
// and encodes as null on the wire.
func Entity(k EntityKey) Value {
	if k.IsNull() {
		return Null()
	}
	return Value{kind: KindEntity, ent: k}
}

// List returns a Value holding the given items. The slice is used directly;
// callers must not mutate it afterwards.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Kind returns the kind tag of v.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is the null Value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload; ok is false for other kinds.
func (v Value) AsBool() (b bool, ok bool) { return v.b, v.kind == KindBool }

// AsInteger returns the integer payload; ok is false for other kinds.
func (v Value) AsInteger() (i int64, ok bool) { return v.i, v.kind == KindInteger }

// AsScalar returns the float payload. Integer values convert implicitly, so
// clients may send `2` where `2.0` is expected.
func (v Value) AsScalar() (f float64, ok bool) {
	switch v.kind {
	case KindScalar:
		return v.f, true
	case KindInteger:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsText returns the string payload; ok is false for other kinds.
func (v Value) AsText() (s string, ok bool) { return v.s, v.kind == KindText }

// AsVector returns the vector payload; ok is false for other kinds.
func (v Value) AsVector() (vec physics.Vec3, ok bool) { return v.vec, v.kind == KindVector }

// AsEntity returns the referenced entity key; ok is false for other kinds.
func (v Value) AsEntity() (k EntityKey, ok bool) { return v.ent, v.kind == KindEntity }

// AsList returns the list payload; ok is false for other kinds. Callers must
// treat the returned slice as read-only.
func (v Value) AsList() (items []Value, ok bool) { return v.list, v.kind == KindList }

// Equal reports deep equality of two values. Scalars compare exactly; the
// dirty-tracking caller relies on exact comparison so that a genuinely
// recomputed value is never suppressed.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInteger:
		return v.i == o.i
	case KindScalar:
		return v.f == o.f
	case KindText:
		return v.s == o.s
	case KindVector:
		return v.vec == o.vec
	case KindEntity:
		return v.ent == o.ent
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders v for logs and error messages. Not the wire encoding.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindScalar:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return strconv.Quote(v.s)
	case KindVector:
		return fmt.Sprintf("(%g, %g, %g)", v.vec.X, v.vec.Y, v.vec.Z)
	case KindEntity:
		return fmt.Sprintf("entity(%d@%d)", v.ent.slot, v.ent.gen)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "invalid"
	}
}
