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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/orrery/services/sim/physics"
	"github.com/AleutianAI/orrery/services/sim/state"
)

// RequestType enumerates the client request kinds.
type RequestType int

const (
	RequestGet RequestType = iota
	RequestSet
	RequestSubscribe
	RequestUnsubscribe
	RequestFire
)

// MemberKind says whether a request addresses a property or a signal.
type MemberKind int

const (
	MemberProperty MemberKind = iota
	MemberSignal
)

// Decode errors. ErrUnknownObject carries the offending ID in its wrapper.
var (
	ErrBadRequest    = errors.New("malformed request")
	ErrUnknownObject = errors.New("unknown object")
)

// Request is a decoded client request with entity references already
// resolved through the connection's object table.
type Request struct {
	Type   RequestType
	Object state.EntityKey
	Kind   MemberKind
	Member string
	Value  state.Value // set and fire only; Null otherwise
}

type wireRequest struct {
	MType    string          `json:"mtype"`
	Object   *ObjectID       `json:"object"`
	Property string          `json:"property"`
	Signal   string          `json:"signal"`
	Value    json.RawMessage `json:"value"`
}

// DecodeRequest parses one request object. Object references inside the
// request (including in the value payload) resolve through lk.
func DecodeRequest(data []byte, lk Lookup) (Request, error) {
	var wire wireRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	var req Request
	switch wire.MType {
	case "get":
		req.Type = RequestGet
	case "set":
		req.Type = RequestSet
	case "subscribe":
		req.Type = RequestSubscribe
	case "unsubscribe":
		req.Type = RequestUnsubscribe
	case "fire":
		req.Type = RequestFire
	case "":
		return Request{}, fmt.Errorf("%w: missing mtype", ErrBadRequest)
	default:
		return Request{}, fmt.Errorf("%w: unknown mtype %q", ErrBadRequest, wire.MType)
	}

	if wire.Object == nil || *wire.Object == 0 {
		return Request{}, fmt.Errorf("%w: missing object", ErrBadRequest)
	}
	key, ok := lk.EntityFor(*wire.Object)
	if !ok {
		return Request{}, fmt.Errorf("%w: %d", ErrUnknownObject, *wire.Object)
	}
	req.Object = key

	switch {
	case wire.Property != "" && wire.Signal != "":
		return Request{}, fmt.Errorf("%w: both property and signal named", ErrBadRequest)
	case wire.Property != "":
		req.Kind = MemberProperty
		req.Member = wire.Property
	case wire.Signal != "":
		req.Kind = MemberSignal
		req.Member = wire.Signal
	default:
		return Request{}, fmt.Errorf("%w: no property or signal named", ErrBadRequest)
	}

	switch req.Type {
	case RequestSet:
		if req.Kind != MemberProperty {
			return Request{}, fmt.Errorf("%w: set addresses a signal", ErrBadRequest)
		}
	case RequestFire:
		if req.Kind != MemberSignal {
			return Request{}, fmt.Errorf("%w: fire addresses a property", ErrBadRequest)
		}
	}

	if req.Type == RequestSet || req.Type == RequestFire {
		if wire.Value == nil {
			req.Value = state.Null()
		} else {
			v, err := DecodeValue(wire.Value, lk)
			if err != nil {
				return Request{}, err
			}
			req.Value = v
		}
	}
	return req, nil
}

// DecodeValue parses one encoded value. See the package comment for the
// encoding rules.
func DecodeValue(raw json.RawMessage, lk Lookup) (state.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return state.Null(), fmt.Errorf("%w: bad value: %v", ErrBadRequest, err)
	}
	return convertValue(v, lk)
}

func convertValue(v any, lk Lookup) (state.Value, error) {
	switch x := v.(type) {
	case nil:
		return state.Null(), nil
	case bool:
		return state.Bool(x), nil
	case string:
		return state.Text(x), nil
	case json.Number:
		return convertNumber(x)
	case map[string]any:
		return convertObjectRef(x, lk)
	case []any:
		return convertArray(x, lk)
	default:
		return state.Null(), fmt.Errorf("%w: unsupported value type %T", ErrBadRequest, v)
	}
}

func convertNumber(n json.Number) (state.Value, error) {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		f, err := n.Float64()
		if err != nil {
			return state.Null(), fmt.Errorf("%w: bad number %q", ErrBadRequest, s)
		}
		return state.Scalar(f), nil
	}
	i, err := n.Int64()
	if err != nil {
		// Out of int64 range; fall back to a scalar.
		f, ferr := n.Float64()
		if ferr != nil {
			return state.Null(), fmt.Errorf("%w: bad number %q", ErrBadRequest, s)
		}
		return state.Scalar(f), nil
	}
	return state.Integer(i), nil
}

func convertObjectRef(m map[string]any, lk Lookup) (state.Value, error) {
	if len(m) != 1 {
		return state.Null(), fmt.Errorf("%w: object ref must have exactly one key", ErrBadRequest)
	}
	raw, ok := m["object"]
	if !ok {
		return state.Null(), fmt.Errorf("%w: object ref missing object key", ErrBadRequest)
	}
	n, ok := raw.(json.Number)
	if !ok {
		return state.Null(), fmt.Errorf("%w: object ref id must be a number", ErrBadRequest)
	}
	id, err := n.Int64()
	if err != nil || id <= 0 {
		return state.Null(), fmt.Errorf("%w: bad object id %q", ErrBadRequest, n.String())
	}
	key, ok := lk.EntityFor(ObjectID(id))
	if !ok {
		return state.Null(), fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	return state.Entity(key), nil
}

// convertArray disambiguates vectors from lists: a 3-number array is a
// vector; a single-element array holding another array is a wrapped list.
func convertArray(arr []any, lk Lookup) (state.Value, error) {
	if len(arr) == 3 {
		var vec physics.Vec3
		comps := [3]*float64{&vec.X, &vec.Y, &vec.Z}
		allNumbers := true
		for i, elem := range arr {
			n, ok := elem.(json.Number)
			if !ok {
				allNumbers = false
				break
			}
			f, err := n.Float64()
			if err != nil {
				return state.Null(), fmt.Errorf("%w: bad vector component %q", ErrBadRequest, n.String())
			}
			*comps[i] = f
		}
		if allNumbers {
			return state.Vector(vec), nil
		}
	}
	if len(arr) == 1 {
		inner, ok := arr[0].([]any)
		if ok {
			items := make([]state.Value, 0, len(inner))
			for _, elem := range inner {
				item, err := convertValue(elem, lk)
				if err != nil {
					return state.Null(), err
				}
				items = append(items, item)
			}
			return state.List(items...), nil
		}
	}
	return state.Null(), fmt.Errorf("%w: ambiguous array (not a vector or wrapped list)", ErrBadRequest)
}
