// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package transport

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vast-io/vast/internal/segment"
	"github.com/vast-io/vast/internal/value"
	"github.com/vast-io/vast/internal/verrors"
)

func TestChanMailboxDeliversInOrder(t *testing.T) {
	m := NewChanMailbox(4)
	require.NoError(t, m.Send([]byte("a")))
	require.NoError(t, m.Send([]byte("b")))
	require.NoError(t, m.Close())

	var got []string
	for data := range m.Receive() {
		got = append(got, string(data))
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestChanMailboxSendAfterClose(t *testing.T) {
	m := NewChanMailbox(1)
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Send([]byte("x")), verrors.ProtocolViolation)
	assert.NoError(t, m.Close(), "closing twice is harmless")
}

func testSegment(t *testing.T) *segment.Segment {
	t.Helper()
	ty := value.Type{Name: "conn", Fields: []value.Field{
		{Name: "ts", Tag: value.Time},
		{Name: "proto", Tag: value.String},
	}}
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &segment.Segment{
		ID:             uuid.New(),
		Schema:         ty,
		FirstEventTime: now,
		LastEventTime:  now,
		Chunks: []segment.Chunk{{
			FirstEventTime: now,
			LastEventTime:  now,
			Events: []value.Event{{
				ID:   0,
				Type: ty,
				Value: value.NewRecord([]value.Value{
					value.NewTime(now),
					value.NewString("tcp"),
				}),
			}},
		}},
	}
}

func TestSegmentFrameRoundTrip(t *testing.T) {
	seg := testSegment(t)

	data, err := EncodeSegment(seg)
	require.NoError(t, err)

	got, err := DecodeSegment(data)
	require.NoError(t, err)
	assert.Equal(t, seg.ID, got.ID)
	assert.Equal(t, "conn", got.Schema.Name)
	assert.Equal(t, 1, got.EventCount())
}

func TestDecodeSegmentRejectsShortFrame(t *testing.T) {
	_, err := DecodeSegment([]byte{1, 2, 3})
	assert.ErrorIs(t, err, verrors.ParseError)
}

func TestSegmentSenderPumpsAcks(t *testing.T) {
	out := NewChanMailbox(4)
	acks := NewChanMailbox(4)

	acked := make(chan uuid.UUID, 1)
	sender := NewSegmentSender(out, acks, func(id uuid.UUID) { acked <- id })
	go sender.Run()

	seg := testSegment(t)
	require.NoError(t, sender.Send(seg))

	frame := <-out.Receive()
	got, err := DecodeSegment(frame)
	require.NoError(t, err)
	require.NoError(t, acks.Send(AckFrame(got.ID)))

	select {
	case id := <-acked:
		assert.Equal(t, seg.ID, id)
	case <-time.After(time.Second):
		t.Fatal("ack never surfaced")
	}
	require.NoError(t, acks.Close())
}
