// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package bitmap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendReturnsMonotonicPositions(t *testing.T) {
	b := New()
	p0 := b.Append(true)
	p1 := b.Append(false)
	p2 := b.Append(true)

	assert.Equal(t, uint32(0), p0)
	assert.Equal(t, uint32(1), p1)
	assert.Equal(t, uint32(2), p2)
	assert.Equal(t, uint32(3), b.Len())
	assert.Equal(t, uint64(2), b.CountOnes())
	assert.True(t, b.Get(0))
	assert.False(t, b.Get(1))
	assert.True(t, b.Get(2))
}

func TestAppendN(t *testing.T) {
	b := New()
	start := b.AppendN(true, 5)
	assert.Equal(t, uint32(0), start)
	assert.Equal(t, uint32(5), b.Len())
	assert.Equal(t, uint64(5), b.CountOnes())

	next := b.AppendN(false, 3)
	assert.Equal(t, uint32(5), next)
	assert.Equal(t, uint32(8), b.Len())
	assert.Equal(t, uint64(5), b.CountOnes())
}

func TestAndOr(t *testing.T) {
	a := New()
	a.Append(true)
	a.Append(true)
	a.Append(false)

	b := New()
	b.Append(true)
	b.Append(false)
	b.Append(false)

	and := And(a, b)
	assert.Equal(t, uint64(1), and.CountOnes())
	assert.True(t, and.Get(0))
	assert.False(t, and.Get(1))

	or := Or(a, b)
	assert.Equal(t, uint64(2), or.CountOnes())
}

func TestNot(t *testing.T) {
	b := New()
	b.Append(true)
	b.Append(false)
	b.Append(true)

	n := Not(b)
	assert.Equal(t, uint32(3), n.Len())
	assert.False(t, n.Get(0))
	assert.True(t, n.Get(1))
	assert.False(t, n.Get(2))
}

func TestSerializeRoundTrip(t *testing.T) {
	b := New()
	b.Append(true)
	b.Append(false)
	b.AppendN(true, 10)

	var buf bytes.Buffer
	assert.NoError(t, b.Serialize(&buf))

	got, err := Deserialize(&buf)
	assert.NoError(t, err)
	assert.Equal(t, b.Len(), got.Len())
	assert.Equal(t, b.CountOnes(), got.CountOnes())
	assert.ElementsMatch(t, b.ToSlice(), got.ToSlice())
}

func TestDeserializeRejectsBadMagic(t *testing.T) {
	_, err := Deserialize(bytes.NewReader([]byte{0, 0, 0, 0, 0, 0, 0, 0}))
	assert.Error(t, err)
}
