// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package value

import "math"

// InvalidID marks an event that has not yet been assigned an identifier.
// MaxEvents is the largest number of events a single source may produce
// within a partition before ID space is exhausted.
const (
	InvalidID uint64 = math.MaxUint64
	MaxEvents uint64 = math.MaxUint64 - 1
)

// Event pairs a monotonically assigned identifier with its schema Type and
// the Value that type describes. IDs are assigned per source within a
// partition and never reused.
type Event struct {
	ID    uint64
	Type  Type
	Value Value
}

// Valid reports whether e carries an assigned ID.
func (e Event) Valid() bool { return e.ID != InvalidID }
