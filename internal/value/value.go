// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package value

import (
	"fmt"
	"net/netip"
	"time"
)

// State is one of the three states a Value can be in: invalid (no type),
// nil (typed but unset), or engaged (typed and set).
type State uint8

const (
	StateInvalid State = iota
	StateNil
	StateEngaged
)

// Protocol is the transport protocol carried by a Port value.
type Protocol uint8

const (
	ProtoUnknown Protocol = iota
	ProtoTCP
	ProtoUDP
	ProtoICMP
)

// PortValue is a transport-layer port plus its protocol.
type PortValue struct {
	Number   uint16
	Protocol Protocol
}

// Value is a tagged union over VAST's basic and compound data kinds. The
// zero Value is the invalid value: Tag() == Invalid, State() == StateInvalid.
type Value struct {
	tag     Tag
	engaged bool

	b    bool
	i    int64
	u    uint64
	d    float64
	dur  time.Duration
	t    time.Time
	s    string // also backs Regex
	addr netip.Addr
	sub  netip.Prefix
	port PortValue
	seq  []Value            // backs Record, Vector, Set
	tbl  []TableEntry
}

// TableEntry is one key/value pair of a Table value. Order is preserved
// (Table is an ordered mapping, not a hash map).
type TableEntry struct {
	Key   Value
	Value Value
}

// Nil returns a typed-but-unset Value of the given tag.
func Nil(tag Tag) Value {
	return Value{tag: tag, engaged: false}
}

func NewBool(b bool) Value       { return Value{tag: Bool, engaged: true, b: b} }
func NewInt(i int64) Value       { return Value{tag: Int, engaged: true, i: i} }
func NewUInt(u uint64) Value     { return Value{tag: UInt, engaged: true, u: u} }
func NewDouble(d float64) Value  { return Value{tag: Double, engaged: true, d: d} }
func NewDuration(d time.Duration) Value {
	return Value{tag: Duration, engaged: true, dur: d}
}
func NewTime(t time.Time) Value { return Value{tag: Time, engaged: true, t: t} }
func NewString(s string) Value  { return Value{tag: String, engaged: true, s: s} }
func NewRegex(pattern string) Value {
	return Value{tag: Regex, engaged: true, s: pattern}
}
func NewAddress(a netip.Addr) Value {
	return Value{tag: Address, engaged: true, addr: a}
}
func NewSubnet(p netip.Prefix) Value {
	return Value{tag: Subnet, engaged: true, sub: p}
}
func NewPort(p PortValue) Value { return Value{tag: Port, engaged: true, port: p} }
func NewRecord(fields []Value) Value {
	return Value{tag: Record, engaged: true, seq: fields}
}
func NewVector(elems []Value) Value {
	return Value{tag: Vector, engaged: true, seq: elems}
}
func NewSet(elems []Value) Value {
	return Value{tag: Set, engaged: true, seq: elems}
}
func NewTable(entries []TableEntry) Value {
	return Value{tag: Table, engaged: true, tbl: entries}
}

func (v Value) Tag() Tag { return v.tag }

func (v Value) State() State {
	switch {
	case v.tag == Invalid:
		return StateInvalid
	case !v.engaged:
		return StateNil
	default:
		return StateEngaged
	}
}

func (v Value) IsInvalid() bool { return v.State() == StateInvalid }
func (v Value) IsNil() bool     { return v.State() == StateNil }
func (v Value) IsEngaged() bool { return v.State() == StateEngaged }

func (v Value) Bool() (bool, bool)             { return v.b, v.tag == Bool && v.engaged }
func (v Value) Int() (int64, bool)             { return v.i, v.tag == Int && v.engaged }
func (v Value) UInt() (uint64, bool)           { return v.u, v.tag == UInt && v.engaged }
func (v Value) Double() (float64, bool)        { return v.d, v.tag == Double && v.engaged }
func (v Value) Duration() (time.Duration, bool) { return v.dur, v.tag == Duration && v.engaged }
func (v Value) Time() (time.Time, bool)        { return v.t, v.tag == Time && v.engaged }
func (v Value) String() (string, bool)         { return v.s, v.tag == String && v.engaged }
func (v Value) Regex() (string, bool)          { return v.s, v.tag == Regex && v.engaged }
func (v Value) Address() (netip.Addr, bool)    { return v.addr, v.tag == Address && v.engaged }
func (v Value) Subnet() (netip.Prefix, bool)   { return v.sub, v.tag == Subnet && v.engaged }
func (v Value) Port() (PortValue, bool)        { return v.port, v.tag == Port && v.engaged }
func (v Value) Seq() ([]Value, bool) {
	ok := v.engaged && (v.tag == Record || v.tag == Vector || v.tag == Set)
	return v.seq, ok
}
func (v Value) Table() ([]TableEntry, bool) { return v.tbl, v.tag == Table && v.engaged }

// GoString renders a debug representation; it deliberately avoids the
// default %v for compound Values, which would otherwise print unexported
// struct internals.
func (v Value) GoString() string {
	if v.IsInvalid() {
		return "invalid"
	}
	if v.IsNil() {
		return fmt.Sprintf("nil(%s)", v.tag)
	}
	switch v.tag {
	case Bool:
		return fmt.Sprintf("%v", v.b)
	case Int:
		return fmt.Sprintf("%d", v.i)
	case UInt:
		return fmt.Sprintf("%d", v.u)
	case Double:
		return fmt.Sprintf("%g", v.d)
	case Duration:
		return v.dur.String()
	case Time:
		return v.t.Format(time.RFC3339Nano)
	case String:
		return v.s
	case Regex:
		return "/" + v.s + "/"
	case Address:
		return v.addr.String()
	case Subnet:
		return v.sub.String()
	case Port:
		return fmt.Sprintf("%d", v.port.Number)
	default:
		return fmt.Sprintf("%s(%d elems)", v.tag, len(v.seq)+len(v.tbl))
	}
}

// Equal reports whether a and b are the same value. Equality is defined
// only between engaged values of the same tag. Two non-engaged (invalid or
// nil) values of the same tag compare equal to each other; values of
// different tags never compare equal, even if one is nil.
func Equal(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	if a.State() != b.State() {
		return false
	}
	if a.State() != StateEngaged {
		return true
	}
	switch a.tag {
	case Bool:
		return a.b == b.b
	case Int:
		return a.i == b.i
	case UInt:
		return a.u == b.u
	case Double:
		return a.d == b.d
	case Duration:
		return a.dur == b.dur
	case Time:
		return a.t.Equal(b.t)
	case String, Regex:
		return a.s == b.s
	case Address:
		return a.addr == b.addr
	case Subnet:
		return a.sub == b.sub
	case Port:
		return a.port == b.port
	case Record, Vector, Set:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case Table:
		if len(a.tbl) != len(b.tbl) {
			return false
		}
		for i := range a.tbl {
			if !Equal(a.tbl[i].Key, b.tbl[i].Key) || !Equal(a.tbl[i].Value, b.tbl[i].Value) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Compare orders two Values. Values of the same tag compare by their
// natural order; values of differing tags compare by declaration order of
// their Tag, so sorting mixed-tag values is total and stable.
func Compare(a, b Value) int {
	if a.tag != b.tag {
		return tagOrder[a.tag] - tagOrder[b.tag]
	}
	if a.State() != StateEngaged || b.State() != StateEngaged {
		// Stable but otherwise arbitrary: invalid < nil < engaged.
		return int(a.State()) - int(b.State())
	}
	switch a.tag {
	case Bool:
		return boolCmp(a.b, b.b)
	case Int:
		return int64Cmp(a.i, b.i)
	case UInt:
		return uint64Cmp(a.u, b.u)
	case Double:
		return float64Cmp(a.d, b.d)
	case Duration:
		return int64Cmp(int64(a.dur), int64(b.dur))
	case Time:
		return int64Cmp(a.t.UnixNano(), b.t.UnixNano())
	case String, Regex:
		switch {
		case a.s < b.s:
			return -1
		case a.s > b.s:
			return 1
		default:
			return 0
		}
	case Address:
		return a.addr.Compare(b.addr)
	case Subnet:
		if c := a.sub.Addr().Compare(b.sub.Addr()); c != 0 {
			return c
		}
		return a.sub.Bits() - b.sub.Bits()
	case Port:
		return int(a.port.Number) - int(b.port.Number)
	default:
		return 0
	}
}

func boolCmp(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func int64Cmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func uint64Cmp(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func float64Cmp(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
