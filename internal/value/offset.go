// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package value

import "strconv"

// Offset addresses a leaf inside a nested Record by a path of field
// indices, left-to-right at each nesting level.
type Offset []int

// String renders an offset as dot-separated indices, e.g. "0.2.1".
func (o Offset) String() string {
	s := ""
	for i, n := range o {
		if i > 0 {
			s += "."
		}
		s += strconv.Itoa(n)
	}
	return s
}

func (o Offset) Equal(other Offset) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy so callers can't mutate a shared Offset
// through a slice alias.
func (o Offset) Clone() Offset {
	c := make(Offset, len(o))
	copy(c, o)
	return c
}

// At walks into v following the offset and returns the leaf Value. ok is
// false if the offset does not address a leaf of v, either because the
// nesting depth is wrong or an index is out of range. Indexers treat a
// false result as "this event does not carry my field".
func At(v Value, o Offset) (Value, bool) {
	cur := v
	for _, idx := range o {
		seq, isSeq := cur.Seq()
		if !isSeq {
			return Value{}, false
		}
		if idx < 0 || idx >= len(seq) {
			return Value{}, false
		}
		cur = seq[idx]
	}
	// A non-empty offset that still lands on a Record/Vector/Set is not a
	// leaf; an empty offset addressing the whole (scalar) value is a leaf.
	if _, isSeq := cur.Seq(); isSeq && len(o) > 0 {
		return Value{}, false
	}
	return cur, true
}

// FlatAt returns the i-th leaf of v in left-to-right order.
func FlatAt(v Value, i int) (Value, bool) {
	leaves := Flatten(v)
	if i < 0 || i >= len(leaves) {
		return Value{}, false
	}
	return leaves[i], true
}

// Flatten returns every leaf of v, left-to-right, depth-first.
func Flatten(v Value) []Value {
	seq, ok := v.Seq()
	if !ok {
		return []Value{v}
	}
	out := make([]Value, 0, len(seq))
	for _, elem := range seq {
		out = append(out, Flatten(elem)...)
	}
	return out
}
