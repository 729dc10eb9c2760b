// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package value

import (
	"fmt"

	"github.com/vast-io/vast/internal/verrors"
)

// ErrSchemaMismatch is returned when two Types claim the same leaf key path
// with different tags.
var ErrSchemaMismatch = verrors.SchemaMismatch

// Field is one member of a Type's schema tree. A leaf field has Tag set to
// one of the basic tags; a nested field has Tag == Record and non-nil
// Fields.
type Field struct {
	Name   string
	Tag    Tag
	Fields []Field // only meaningful when Tag == Record
}

func (f Field) isLeaf() bool { return f.Tag != Record || f.Fields == nil }

// Type is a named schema tree. Two Types are merge-compatible iff
// identically-named leaves (by full key path) share the same tag.
type Type struct {
	Name   string
	Fields []Field
}

// Each visits every leaf of t, depth-first left-to-right, calling fn with
// the leaf's dotted key path and its Offset.
func (t Type) Each(fn func(key []string, offset Offset)) {
	var walk func(fields []Field, prefix []string, off Offset)
	walk = func(fields []Field, prefix []string, off Offset) {
		for i, f := range fields {
			key := append(append([]string{}, prefix...), f.Name)
			o := append(append(Offset{}, off...), i)
			if f.isLeaf() {
				fn(key, o)
			} else {
				walk(f.Fields, key, o)
			}
		}
	}
	walk(t.Fields, nil, nil)
}

// At returns the tag of the leaf addressed by offset, or false if the
// offset does not address a leaf of t.
func (t Type) At(o Offset) (Tag, bool) {
	fields := t.Fields
	for i, idx := range o {
		if idx < 0 || idx >= len(fields) {
			return Invalid, false
		}
		f := fields[idx]
		if f.isLeaf() {
			if i != len(o)-1 {
				return Invalid, false
			}
			return f.Tag, true
		}
		fields = f.Fields
	}
	// Empty offset, or one that stopped on a nested record.
	return Invalid, false
}

// Leaf is one (key, offset, tag) triple of a Type; Leaves returns all of
// them.
type Leaf struct {
	Key    []string
	Offset Offset
	Tag    Tag
}

func (t Type) Leaves() []Leaf {
	var out []Leaf
	t.Each(func(key []string, off Offset) {
		tag, ok := t.At(off)
		if !ok {
			return
		}
		out = append(out, Leaf{Key: append([]string{}, key...), Offset: off, Tag: tag})
	})
	return out
}

// FindSuffix returns every leaf whose dotted key path ends with suffix. An
// empty result is not an error: the caller decides whether a miss is worth
// a warning.
func (t Type) FindSuffix(suffix []string) []Leaf {
	if len(suffix) == 0 {
		return nil
	}
	var out []Leaf
	for _, l := range t.Leaves() {
		if hasSuffix(l.Key, suffix) {
			out = append(out, l)
		}
	}
	return out
}

func hasSuffix(key, suffix []string) bool {
	if len(suffix) > len(key) {
		return false
	}
	off := len(key) - len(suffix)
	for i, s := range suffix {
		if key[off+i] != s {
			return false
		}
	}
	return true
}

// Merge unions the leaves of a and b. It fails with ErrSchemaMismatch if any
// identically-keyed leaf differs in tag between the two types. The merged
// type takes a's Name if set, else b's.
func Merge(a, b Type) (Type, error) {
	name := a.Name
	if name == "" {
		name = b.Name
	}

	merged := cloneFields(a.Fields)
	bLeaves := b.Leaves()
	aIndex := map[string]Tag{}
	for _, l := range a.Leaves() {
		aIndex[keyString(l.Key)] = l.Tag
	}

	for _, l := range bLeaves {
		ks := keyString(l.Key)
		if existing, ok := aIndex[ks]; ok {
			if existing != l.Tag {
				return Type{}, fmt.Errorf("%w: key %v has tag %s in one type and %s in the other",
					ErrSchemaMismatch, l.Key, existing, l.Tag)
			}
			continue
		}
		merged = insertLeaf(merged, l.Key, l.Tag)
	}

	return Type{Name: name, Fields: merged}, nil
}

func keyString(key []string) string {
	s := ""
	for i, k := range key {
		if i > 0 {
			s += "."
		}
		s += k
	}
	return s
}

func cloneFields(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = Field{Name: f.Name, Tag: f.Tag, Fields: cloneFields(f.Fields)}
	}
	return out
}

// insertLeaf adds a new leaf at the given key path, creating intermediate
// Record fields as needed. It assumes the key does not already exist
// (callers check via Merge's aIndex first).
func insertLeaf(fields []Field, key []string, tag Tag) []Field {
	if len(key) == 0 {
		return fields
	}
	head, rest := key[0], key[1:]
	for i, f := range fields {
		if f.Name == head {
			if len(rest) == 0 {
				return fields // already present with some tag; Merge guards conflicts
			}
			fields[i].Fields = insertLeaf(f.Fields, rest, tag)
			return fields
		}
	}
	if len(rest) == 0 {
		return append(fields, Field{Name: head, Tag: tag})
	}
	return append(fields, Field{Name: head, Tag: Record, Fields: insertLeaf(nil, rest, tag)})
}
