// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStateTransitions(t *testing.T) {
	assert.Equal(t, StateInvalid, Value{}.State())
	assert.True(t, Value{}.IsInvalid())

	n := Nil(Int)
	assert.Equal(t, StateNil, n.State())
	assert.True(t, n.IsNil())
	assert.Equal(t, Int, n.Tag())

	e := NewInt(42)
	assert.Equal(t, StateEngaged, e.State())
	assert.True(t, e.IsEngaged())
	v, ok := e.Int()
	assert.True(t, ok)
	assert.Equal(t, int64(42), v)
}

func TestEqualRequiresSameTag(t *testing.T) {
	assert.False(t, Equal(NewInt(1), NewUInt(1)), "different tags never compare equal")
	assert.True(t, Equal(Nil(Int), Nil(Int)), "two nils of the same tag are equal")
	assert.False(t, Equal(Nil(Int), NewInt(0)), "nil and engaged never compare equal")
	assert.True(t, Equal(NewInt(7), NewInt(7)))
	assert.False(t, Equal(NewInt(7), NewInt(8)))
}

func TestEqualCompound(t *testing.T) {
	a := NewVector([]Value{NewInt(1), NewString("x")})
	b := NewVector([]Value{NewInt(1), NewString("x")})
	c := NewVector([]Value{NewInt(1), NewString("y")})
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestCompareCrossTagUsesStableOrder(t *testing.T) {
	assert.True(t, Compare(NewBool(true), NewInt(0)) < 0)
	assert.True(t, Compare(NewInt(0), NewBool(true)) > 0)
	assert.Equal(t, 0, Compare(NewInt(5), NewInt(5)))
	assert.True(t, Compare(NewInt(4), NewInt(5)) < 0)
}

func TestCompareWithinTag(t *testing.T) {
	assert.True(t, Compare(NewString("a"), NewString("b")) < 0)
	assert.True(t, Compare(NewDouble(1.5), NewDouble(1.4)) > 0)

	t1 := NewTime(time.Unix(100, 0))
	t2 := NewTime(time.Unix(200, 0))
	assert.True(t, Compare(t1, t2) < 0)
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "int", Int.String())
	assert.Equal(t, "unknown", Tag(255).String())
}
