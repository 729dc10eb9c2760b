// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package value

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
	"time"
)

// Encode writes a self-describing binary representation of v: its tag,
// its State, and, when engaged, the tag-specific payload. It round-trips
// the full Value algebra, including nested Record/Vector/Set/Table, which
// is more than internal/index's scalar-only codec needs.
func Encode(w io.Writer, v Value) error {
	if err := writeByte(w, byte(v.tag)); err != nil {
		return err
	}
	if err := writeByte(w, byte(v.State())); err != nil {
		return err
	}
	if v.State() != StateEngaged {
		return nil
	}
	switch v.tag {
	case Bool:
		return writeByte(w, boolByte(v.b))
	case Int:
		return binary.Write(w, binary.BigEndian, v.i)
	case UInt:
		return binary.Write(w, binary.BigEndian, v.u)
	case Double:
		return binary.Write(w, binary.BigEndian, v.d)
	case Duration:
		return binary.Write(w, binary.BigEndian, int64(v.dur))
	case Time:
		return binary.Write(w, binary.BigEndian, v.t.UnixNano())
	case String, Regex:
		return writeBytes(w, []byte(v.s))
	case Address:
		b := v.addr.As16()
		_, err := w.Write(b[:])
		return err
	case Subnet:
		b := v.sub.Addr().As16()
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
		return writeByte(w, byte(v.sub.Bits()))
	case Port:
		if err := binary.Write(w, binary.BigEndian, v.port.Number); err != nil {
			return err
		}
		return writeByte(w, byte(v.port.Protocol))
	case Record, Vector, Set:
		if err := binary.Write(w, binary.BigEndian, uint32(len(v.seq))); err != nil {
			return err
		}
		for _, elem := range v.seq {
			if err := Encode(w, elem); err != nil {
				return err
			}
		}
		return nil
	case Table:
		if err := binary.Write(w, binary.BigEndian, uint32(len(v.tbl))); err != nil {
			return err
		}
		for _, entry := range v.tbl {
			if err := Encode(w, entry.Key); err != nil {
				return err
			}
			if err := Encode(w, entry.Value); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("value: cannot encode tag %s", v.tag)
	}
}

// Decode reads back a Value written by Encode.
func Decode(r io.Reader) (Value, error) {
	tagByte, err := readByte(r)
	if err != nil {
		return Value{}, err
	}
	tag := Tag(tagByte)
	stateByte, err := readByte(r)
	if err != nil {
		return Value{}, err
	}
	if State(stateByte) != StateEngaged {
		return Nil(tag), nil
	}

	switch tag {
	case Bool:
		b, err := readByte(r)
		return NewBool(b != 0), err
	case Int:
		var i int64
		err := binary.Read(r, binary.BigEndian, &i)
		return NewInt(i), err
	case UInt:
		var u uint64
		err := binary.Read(r, binary.BigEndian, &u)
		return NewUInt(u), err
	case Double:
		var d float64
		err := binary.Read(r, binary.BigEndian, &d)
		return NewDouble(d), err
	case Duration:
		var d int64
		err := binary.Read(r, binary.BigEndian, &d)
		return NewDuration(time.Duration(d)), err
	case Time:
		var n int64
		err := binary.Read(r, binary.BigEndian, &n)
		return NewTime(time.Unix(0, n).UTC()), err
	case String:
		b, err := readBytes(r)
		return NewString(string(b)), err
	case Regex:
		b, err := readBytes(r)
		return NewRegex(string(b)), err
	case Address:
		var b [16]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Value{}, err
		}
		return NewAddress(netip.AddrFrom16(b).Unmap()), nil
	case Subnet:
		var b [16]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Value{}, err
		}
		bits, err := readByte(r)
		if err != nil {
			return Value{}, err
		}
		addr := netip.AddrFrom16(b).Unmap()
		p, err := addr.Prefix(int(bits))
		return NewSubnet(p), err
	case Port:
		var num uint16
		if err := binary.Read(r, binary.BigEndian, &num); err != nil {
			return Value{}, err
		}
		proto, err := readByte(r)
		if err != nil {
			return Value{}, err
		}
		return NewPort(PortValue{Number: num, Protocol: Protocol(proto)}), nil
	case Record, Vector, Set:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return Value{}, err
		}
		seq := make([]Value, n)
		for i := range seq {
			elem, err := Decode(r)
			if err != nil {
				return Value{}, err
			}
			seq[i] = elem
		}
		switch tag {
		case Record:
			return NewRecord(seq), nil
		case Vector:
			return NewVector(seq), nil
		default:
			return NewSet(seq), nil
		}
	case Table:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return Value{}, err
		}
		entries := make([]TableEntry, n)
		for i := range entries {
			k, err := Decode(r)
			if err != nil {
				return Value{}, err
			}
			v, err := Decode(r)
			if err != nil {
				return Value{}, err
			}
			entries[i] = TableEntry{Key: k, Value: v}
		}
		return NewTable(entries), nil
	default:
		return Value{}, fmt.Errorf("value: cannot decode tag %s", tag)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	return buf, err
}
