// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"testing"

	"github.com/AleutianAI/orrery/services/sim/physics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Kinds(t *testing.T) {
	assert.Equal(t, KindNull, Null().Kind())
	assert.Equal(t, KindBool, Bool(true).Kind())
	assert.Equal(t, KindInteger, Integer(1).Kind())
	assert.Equal(t, KindScalar, Scalar(1.5).Kind())
	assert.Equal(t, KindText, Text("x").Kind())
	assert.Equal(t, KindVector, Vector(physics.Vec3{}).Kind())
	assert.Equal(t, KindList, List().Kind())
}

func TestValue_NullEntityCollapsesToNull(t *testing.T) {
	var null EntityKey
	assert.Equal(t, KindNull, Entity(null).Kind())

	s := NewState()
	e := s.CreateEntity()
	assert.Equal(t, KindEntity, Entity(e).Kind())
}

func TestValue_ScalarAcceptsInteger(t *testing.T) {
	f, ok := Integer(3).AsScalar()
	require.True(t, ok)
	assert.Equal(t, 3.0, f)

	_, ok = Text("3").AsScalar()
	assert.False(t, ok)
}

func TestValue_Equal(t *testing.T) {
	s := NewState()
	a := s.CreateEntity()
	b := s.CreateEntity()

	tests := []struct {
		name string
		x, y Value
		want bool
	}{
		{"null == null", Null(), Null(), true},
		{"different kinds", Integer(1), Scalar(1), false},
		{"equal vectors", Vector(physics.Vec3{X: 1, Y: 2, Z: 3}), Vector(physics.Vec3{X: 1, Y: 2, Z: 3}), true},
		{"different vectors", Vector(physics.Vec3{X: 1, Y: 2, Z: 3}), Vector(physics.Vec3{X: 1, Y: 2, Z: 4}), false},
		{"same entity", Entity(a), Entity(a), true},
		{"different entities", Entity(a), Entity(b), false},
		{"equal lists", List(Integer(1), Text("x")), List(Integer(1), Text("x")), true},
		{"different length lists", List(Integer(1)), List(Integer(1), Integer(2)), false},
		{"nested lists", List(List(Bool(true))), List(List(Bool(true))), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.x.Equal(tt.y))
		})
	}
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "null", Null().String())
	assert.Equal(t, "3.5", Scalar(3.5).String())
	assert.Equal(t, `"hi"`, Text("hi").String())
	assert.Equal(t, "(1, 2, 3)", Vector(physics.Vec3{X: 1, Y: 2, Z: 3}).String())
	assert.Equal(t, "[1, true]", List(Integer(1), Bool(true)).String())
}
