// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package value implements the VAST data model: a tagged-union Value type,
// Offset-addressed nested records, a mergeable schema Type tree, and Event.
package value

// Tag discriminates the type of a Value. Zero value is Invalid so a
// zero-initialized Value is the invalid value, not an accident of some
// other tag.
type Tag uint8

const (
	Invalid Tag = iota
	Bool
	Int
	UInt
	Double
	Duration
	Time
	String
	Regex
	Address
	Subnet
	Port
	Record
	Vector
	Set
	Table
)

// tagOrder gives every tag a stable position used to compare values of
// different tags. It mirrors declaration order above.
var tagOrder = map[Tag]int{
	Invalid: 0, Bool: 1, Int: 2, UInt: 3, Double: 4, Duration: 5, Time: 6,
	String: 7, Regex: 8, Address: 9, Subnet: 10, Port: 11, Record: 12,
	Vector: 13, Set: 14, Table: 15,
}

func (t Tag) String() string {
	switch t {
	case Invalid:
		return "invalid"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case UInt:
		return "uint"
	case Double:
		return "double"
	case Duration:
		return "duration"
	case Time:
		return "time"
	case String:
		return "string"
	case Regex:
		return "regex"
	case Address:
		return "address"
	case Subnet:
		return "subnet"
	case Port:
		return "port"
	case Record:
		return "record"
	case Vector:
		return "vector"
	case Set:
		return "set"
	case Table:
		return "table"
	default:
		return "unknown"
	}
}
