// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package index

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/vast-io/vast/internal/value"
)

// encodeValue and decodeValue round-trip the scalar value kinds an Indexer
// can hold. Compound tags (record/vector/set/table) never reach here: New
// rejects them, since indexers live at a single offset addressing a leaf.
func encodeValue(w io.Writer, v value.Value) error {
	switch v.Tag() {
	case value.Bool:
		b, _ := v.Bool()
		return writeBool(w, b)
	case value.Int:
		i, _ := v.Int()
		return binary.Write(w, binary.BigEndian, i)
	case value.UInt:
		u, _ := v.UInt()
		return binary.Write(w, binary.BigEndian, u)
	case value.Double:
		d, _ := v.Double()
		return binary.Write(w, binary.BigEndian, d)
	case value.Duration:
		d, _ := v.Duration()
		return binary.Write(w, binary.BigEndian, int64(d))
	case value.Time:
		t, _ := v.Time()
		return binary.Write(w, binary.BigEndian, t.UnixNano())
	case value.String, value.Regex:
		s, _ := v.String()
		if v.Tag() == value.Regex {
			s, _ = v.Regex()
		}
		return writeString(w, s)
	case value.Address:
		a, _ := v.Address()
		b := a.As16()
		_, err := w.Write(b[:])
		return err
	case value.Subnet:
		sub, _ := v.Subnet()
		b := sub.Addr().As16()
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
		_, err := w.Write([]byte{uint8(sub.Bits())})
		return err
	case value.Port:
		p, _ := v.Port()
		if err := binary.Write(w, binary.BigEndian, p.Number); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, uint8(p.Protocol))
	default:
		return fmt.Errorf("index: cannot encode value of tag %s", v.Tag())
	}
}

func decodeValue(r io.Reader, tag value.Tag) (value.Value, error) {
	switch tag {
	case value.Bool:
		b, err := readBool(r)
		return value.NewBool(b), err
	case value.Int:
		var i int64
		err := binary.Read(r, binary.BigEndian, &i)
		return value.NewInt(i), err
	case value.UInt:
		var u uint64
		err := binary.Read(r, binary.BigEndian, &u)
		return value.NewUInt(u), err
	case value.Double:
		var d float64
		err := binary.Read(r, binary.BigEndian, &d)
		return value.NewDouble(d), err
	case value.Duration:
		var d int64
		err := binary.Read(r, binary.BigEndian, &d)
		return value.NewDuration(time.Duration(d)), err
	case value.Time:
		var n int64
		err := binary.Read(r, binary.BigEndian, &n)
		return value.NewTime(time.Unix(0, n).UTC()), err
	case value.String:
		s, err := readString(r)
		return value.NewString(s), err
	case value.Regex:
		s, err := readString(r)
		return value.NewRegex(s), err
	case value.Address:
		var b [16]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return value.Value{}, err
		}
		return value.NewAddress(netip.AddrFrom16(b).Unmap()), nil
	case value.Subnet:
		var b [16]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return value.Value{}, err
		}
		bitsBuf := make([]byte, 1)
		if _, err := io.ReadFull(r, bitsBuf); err != nil {
			return value.Value{}, err
		}
		addr := netip.AddrFrom16(b).Unmap()
		p, err := addr.Prefix(int(bitsBuf[0]))
		return value.NewSubnet(p), err
	case value.Port:
		var num uint16
		if err := binary.Read(r, binary.BigEndian, &num); err != nil {
			return value.Value{}, err
		}
		var proto uint8
		if err := binary.Read(r, binary.BigEndian, &proto); err != nil {
			return value.Value{}, err
		}
		return value.NewPort(value.PortValue{Number: num, Protocol: value.Protocol(proto)}), nil
	default:
		return value.Value{}, fmt.Errorf("index: cannot decode value of tag %s", tag)
	}
}

func writeBool(w io.Writer, b bool) error {
	v := byte(0)
	if b {
		v = 1
	}
	_, err := w.Write([]byte{v})
	return err
}

func readBool(r io.Reader) (bool, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// scalarTag reports whether tag is one an Indexer may hold.
func scalarTag(tag value.Tag) bool {
	switch tag {
	case value.Record, value.Vector, value.Set, value.Table, value.Invalid:
		return false
	default:
		return true
	}
}
