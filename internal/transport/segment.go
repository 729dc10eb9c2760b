// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package transport

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/vast-io/vast/internal/segment"
	"github.com/vast-io/vast/internal/value"
	"github.com/vast-io/vast/internal/verrors"
)

// EncodeSegment frames a segment for a mailbox: the 16-byte uuid, the
// schema, then the segment's own container format.
func EncodeSegment(seg *segment.Segment) ([]byte, error) {
	var buf bytes.Buffer
	id := seg.ID
	buf.Write(id[:])
	if err := value.EncodeType(&buf, seg.Schema); err != nil {
		return nil, err
	}
	if err := seg.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSegment reconstructs a segment framed by EncodeSegment.
func DecodeSegment(data []byte) (*segment.Segment, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("%w: segment frame shorter than its uuid", verrors.ParseError)
	}
	id, err := uuid.FromBytes(data[:16])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verrors.ParseError, err)
	}
	r := bytes.NewReader(data[16:])
	schema, err := value.DecodeType(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verrors.ParseError, err)
	}
	chunks, err := segment.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	seg := &segment.Segment{ID: id, Schema: schema, Chunks: chunks}
	if n := seg.EventCount(); n > 0 {
		seg.FirstEventTime = seg.Chunks[0].FirstEventTime
		seg.LastEventTime = seg.Chunks[len(seg.Chunks)-1].LastEventTime
	}
	return seg, nil
}

// SegmentSender ships sealed segments over a mailbox and reports acks back
// through OnAck. It satisfies the ingestor's Receiver contract, so an
// ingestor talking to an out-of-process receiver only swaps this in for
// the in-process archive.
type SegmentSender struct {
	out   Mailbox
	acks  Mailbox
	OnAck func(id uuid.UUID)
}

// NewSegmentSender wires a sender over an outbound segment mailbox and an
// inbound ack mailbox. Run must be driven in its own goroutine to pump
// acks.
func NewSegmentSender(out, acks Mailbox, onAck func(id uuid.UUID)) *SegmentSender {
	return &SegmentSender{out: out, acks: acks, OnAck: onAck}
}

// Send frames and ships one segment.
func (s *SegmentSender) Send(seg *segment.Segment) error {
	data, err := EncodeSegment(seg)
	if err != nil {
		return err
	}
	return s.out.Send(data)
}

// Run pumps ack frames (16-byte uuids) until the ack mailbox closes.
func (s *SegmentSender) Run() {
	for data := range s.acks.Receive() {
		if len(data) != 16 {
			continue
		}
		id, err := uuid.FromBytes(data)
		if err != nil {
			continue
		}
		s.OnAck(id)
	}
}

// AckFrame renders the ack message a receiver sends back for a segment.
func AckFrame(id uuid.UUID) []byte {
	return id[:]
}
