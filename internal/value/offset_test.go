// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func nested() Value {
	inner := NewRecord([]Value{NewInt(1), NewString("b")})
	return NewRecord([]Value{inner, NewBool(true)})
}

func TestAtAddressesLeaf(t *testing.T) {
	v := nested()

	leaf, ok := At(v, Offset{0, 1})
	assert.True(t, ok)
	s, ok := leaf.String()
	assert.True(t, ok)
	assert.Equal(t, "b", s)

	leaf, ok = At(v, Offset{1})
	assert.True(t, ok)
	b, ok := leaf.Bool()
	assert.True(t, ok)
	assert.True(t, b)
}

func TestAtRejectsOffsetsThatDontAddressALeaf(t *testing.T) {
	v := nested()

	// Offset{0} lands on a nested Record, not a leaf.
	_, ok := At(v, Offset{0})
	assert.False(t, ok)

	// Out of range index.
	_, ok = At(v, Offset{5})
	assert.False(t, ok)

	// Indexing into a scalar.
	_, ok = At(v, Offset{0, 0, 0})
	assert.False(t, ok)
}

func TestFlattenAndFlatAt(t *testing.T) {
	v := nested()
	leaves := Flatten(v)
	assert.Len(t, leaves, 3)

	got, ok := FlatAt(v, 0)
	assert.True(t, ok)
	i, _ := got.Int()
	assert.Equal(t, int64(1), i)

	_, ok = FlatAt(v, 3)
	assert.False(t, ok)
}

func TestOffsetEqualAndClone(t *testing.T) {
	o := Offset{1, 2, 3}
	c := o.Clone()
	assert.True(t, o.Equal(c))
	c[0] = 9
	assert.False(t, o.Equal(c))
	assert.Equal(t, "1.2.3", o.String())
}
