// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package value

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeEncodeDecodeRoundTrip(t *testing.T) {
	ty := sampleType()

	var buf bytes.Buffer
	assert.NoError(t, EncodeType(&buf, ty))

	got, err := DecodeType(&buf)
	assert.NoError(t, err)
	assert.Equal(t, ty.Name, got.Name)
	assert.Equal(t, ty.Leaves(), got.Leaves())
}
