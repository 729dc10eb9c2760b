// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vast-io/vast/internal/value"
)

func connType() value.Type {
	return value.Type{
		Name: "conn",
		Fields: []value.Field{
			{Name: "ts", Tag: value.Time},
			{Name: "proto", Tag: value.String},
		},
	}
}

func connEvent(id uint64, ts time.Time, proto string) value.Event {
	return value.Event{
		ID:   id,
		Type: connType(),
		Value: value.NewRecord([]value.Value{
			value.NewTime(ts),
			value.NewString(proto),
		}),
	}
}

func TestSegmentizerSealsChunkAtEventBound(t *testing.T) {
	sz := NewSegmentizer(2, 1<<30)

	now := time.Now()
	seg, err := sz.Push(connEvent(0, now, "tcp"))
	assert.NoError(t, err)
	assert.Nil(t, seg)

	seg, err = sz.Push(connEvent(1, now.Add(time.Second), "udp"))
	assert.NoError(t, err)
	assert.Nil(t, seg, "segment bound not reached yet, only chunk bound")

	flushed := sz.Flush()
	assert.NotNil(t, flushed)
	assert.Len(t, flushed.Chunks, 1)
	assert.Len(t, flushed.Chunks[0].Events, 2)
}

func TestSegmentizerSealsSegmentAtSizeBound(t *testing.T) {
	sz := NewSegmentizer(1, 1)

	now := time.Now()
	seg, err := sz.Push(connEvent(0, now, "tcp"))
	assert.NoError(t, err)
	assert.NotNil(t, seg, "tiny size bound should force an immediate segment seal")
	assert.Equal(t, 1, seg.EventCount())
}

func TestSegmentizerRejectsIncompatibleSchema(t *testing.T) {
	sz := NewSegmentizer(100, 1<<30)

	now := time.Now()
	_, err := sz.Push(connEvent(0, now, "tcp"))
	assert.NoError(t, err)

	badType := value.Type{Fields: []value.Field{{Name: "ts", Tag: value.String}}}
	badEvent := value.Event{ID: 1, Type: badType, Value: value.NewRecord([]value.Value{value.NewString("oops")})}

	_, err = sz.Push(badEvent)
	assert.Error(t, err)
}

func TestFlushOnEmptySegmentizerReturnsNil(t *testing.T) {
	sz := NewSegmentizer(10, 1<<30)
	assert.Nil(t, sz.Flush())
}

// TestSegmentizerConservesEvents: the concatenation of events across all
// emitted segments equals the input stream, in order.
func TestSegmentizerConservesEvents(t *testing.T) {
	sz := NewSegmentizer(3, 200)

	now := time.Now()
	var segments []*Segment
	const total = 50
	for i := 0; i < total; i++ {
		seg, err := sz.Push(connEvent(uint64(i), now.Add(time.Duration(i)*time.Second), "tcp"))
		assert.NoError(t, err)
		if seg != nil {
			segments = append(segments, seg)
		}
	}
	if tail := sz.Flush(); tail != nil {
		segments = append(segments, tail)
	}

	var ids []uint64
	for _, seg := range segments {
		for _, c := range seg.Chunks {
			for _, e := range c.Events {
				ids = append(ids, e.ID)
			}
		}
	}
	assert.Len(t, ids, total)
	for i, id := range ids {
		assert.Equal(t, uint64(i), id)
	}
}
