// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package value

import (
	"bytes"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		Nil(Int),
		NewBool(true),
		NewInt(-7),
		NewUInt(42),
		NewDouble(3.25),
		NewDuration(5 * time.Second),
		NewTime(time.Unix(1_700_000_000, 123).UTC()),
		NewString("hello"),
		NewRegex("a.*b"),
		NewAddress(netip.MustParseAddr("192.168.1.1")),
		NewSubnet(netip.MustParsePrefix("10.0.0.0/8")),
		NewPort(PortValue{Number: 443, Protocol: ProtoTCP}),
		NewVector([]Value{NewInt(1), NewInt(2), NewInt(3)}),
		NewSet([]Value{NewString("a"), NewString("b")}),
		NewRecord([]Value{NewBool(false), NewString("nested")}),
		NewTable([]TableEntry{{Key: NewString("k"), Value: NewInt(1)}}),
	}

	for _, v := range cases {
		var buf bytes.Buffer
		assert.NoError(t, Encode(&buf, v))
		got, err := Decode(&buf)
		assert.NoError(t, err)
		assert.True(t, Equal(v, got), "round trip mismatch for tag %s", v.Tag())
	}
}

func TestEncodeDecodeNestedRecord(t *testing.T) {
	inner := NewRecord([]Value{NewInt(1), NewString("b")})
	v := NewRecord([]Value{inner, NewBool(true)})

	var buf bytes.Buffer
	assert.NoError(t, Encode(&buf, v))
	got, err := Decode(&buf)
	assert.NoError(t, err)
	assert.True(t, Equal(v, got))
}
