// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package segment

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vast-io/vast/internal/value"
)

func TestSegmentWriteReadRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	seg := &Segment{
		Chunks: []Chunk{
			{
				FirstEventTime: now,
				LastEventTime:  now.Add(time.Second),
				Events: []value.Event{
					connEvent(0, now, "tcp"),
					connEvent(1, now.Add(time.Second), "udp"),
				},
			},
		},
	}

	var buf bytes.Buffer
	assert.NoError(t, seg.WriteTo(&buf))

	chunks, err := ReadFrom(&buf)
	assert.NoError(t, err)
	assert.Len(t, chunks, 1)
	assert.Len(t, chunks[0].Events, 2)
	assert.Equal(t, now.UnixNano(), chunks[0].FirstEventTime.UnixNano())
}
