// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package value

import (
	"encoding/binary"
	"io"
)

// EncodeType writes a self-describing binary representation of t, suitable
// for persisting alongside the events a Type describes (the segment codec
// needs this since a segment can carry more than one event type).
func EncodeType(w io.Writer, t Type) error {
	if err := writeString(w, t.Name); err != nil {
		return err
	}
	return encodeFields(w, t.Fields)
}

func encodeFields(w io.Writer, fields []Field) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(fields))); err != nil {
		return err
	}
	for _, f := range fields {
		if err := writeString(w, f.Name); err != nil {
			return err
		}
		if err := writeByte(w, byte(f.Tag)); err != nil {
			return err
		}
		if f.Tag == Record && f.Fields != nil {
			if err := writeByte(w, 1); err != nil {
				return err
			}
			if err := encodeFields(w, f.Fields); err != nil {
				return err
			}
		} else {
			if err := writeByte(w, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeType reads back a Type written by EncodeType.
func DecodeType(r io.Reader) (Type, error) {
	name, err := readString(r)
	if err != nil {
		return Type{}, err
	}
	fields, err := decodeFields(r)
	if err != nil {
		return Type{}, err
	}
	return Type{Name: name, Fields: fields}, nil
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func decodeFields(r io.Reader) ([]Field, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	fields := make([]Field, n)
	for i := range fields {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		tagByte, err := readByte(r)
		if err != nil {
			return nil, err
		}
		hasNested, err := readByte(r)
		if err != nil {
			return nil, err
		}
		var nested []Field
		if hasNested == 1 {
			nested, err = decodeFields(r)
			if err != nil {
				return nil, err
			}
		}
		fields[i] = Field{Name: name, Tag: Tag(tagByte), Fields: nested}
	}
	return fields, nil
}
