// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleType() Type {
	return Type{
		Name: "conn",
		Fields: []Field{
			{Name: "ts", Tag: Time},
			{Name: "id", Tag: Record, Fields: []Field{
				{Name: "orig_h", Tag: Address},
				{Name: "resp_h", Tag: Address},
			}},
			{Name: "proto", Tag: String},
		},
	}
}

func TestTypeEachAndAt(t *testing.T) {
	ty := sampleType()

	var keys [][]string
	ty.Each(func(key []string, off Offset) {
		keys = append(keys, append([]string{}, key...))
	})
	assert.Len(t, keys, 4)
	assert.Equal(t, []string{"ts"}, keys[0])
	assert.Equal(t, []string{"id", "orig_h"}, keys[1])
	assert.Equal(t, []string{"proto"}, keys[3])

	tag, ok := ty.At(Offset{1, 0})
	assert.True(t, ok)
	assert.Equal(t, Address, tag)

	_, ok = ty.At(Offset{1})
	assert.False(t, ok, "offset landing on a nested record is not a leaf")

	_, ok = ty.At(Offset{9})
	assert.False(t, ok)
}

func TestTypeFindSuffix(t *testing.T) {
	ty := sampleType()

	leaves := ty.FindSuffix([]string{"orig_h"})
	assert.Len(t, leaves, 1)
	assert.Equal(t, Address, leaves[0].Tag)

	assert.Empty(t, ty.FindSuffix([]string{"nonexistent"}))
}

func TestMergeUnionsCompatibleTypes(t *testing.T) {
	a := Type{Fields: []Field{{Name: "ts", Tag: Time}}}
	b := Type{Fields: []Field{{Name: "proto", Tag: String}}}

	merged, err := Merge(a, b)
	assert.NoError(t, err)
	assert.Len(t, merged.Leaves(), 2)
}

func TestMergeRejectsTagConflict(t *testing.T) {
	a := Type{Fields: []Field{{Name: "ts", Tag: Time}}}
	b := Type{Fields: []Field{{Name: "ts", Tag: String}}}

	_, err := Merge(a, b)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestMergeIsIdempotentOnIdenticalTypes(t *testing.T) {
	a := sampleType()
	merged, err := Merge(a, a)
	assert.NoError(t, err)
	assert.Len(t, merged.Leaves(), len(a.Leaves()))
}
