// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package segment implements content-addressed, size/count-bounded event
// chunking: a Segmentizer accepts events and seals them into Chunks once
// the per-chunk event count bound is reached, sealing a Segment once the
// cumulative segment byte size bound is reached.
package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/linkedin/goavro/v2"
	"github.com/vast-io/vast/internal/value"
	"github.com/vast-io/vast/internal/verrors"
)

// Chunk is one bounded batch of events within a Segment.
type Chunk struct {
	FirstEventTime time.Time
	LastEventTime  time.Time
	Events         []value.Event
}

// Segment is a sealed, content-addressed group of chunks. Its ID is
// assigned once, at sealing time, and never changes.
type Segment struct {
	ID             uuid.UUID
	Schema         value.Type
	FirstEventTime time.Time
	LastEventTime  time.Time
	Chunks         []Chunk
}

// EventCount returns the total number of events across every chunk.
func (s *Segment) EventCount() int {
	n := 0
	for _, c := range s.Chunks {
		n += len(c.Events)
	}
	return n
}

const chunkSchemaJSON = `{
	"type": "record",
	"name": "Chunk",
	"fields": [
		{"name": "first_event_time_unix_nano", "type": "long"},
		{"name": "last_event_time_unix_nano", "type": "long"},
		{"name": "payload", "type": "bytes"}
	]
}`

var chunkCodec *goavro.Codec

func init() {
	c, err := goavro.NewCodec(chunkSchemaJSON)
	if err != nil {
		panic(fmt.Sprintf("segment: invalid embedded avro schema: %v", err))
	}
	chunkCodec = c
}

// encodeChunkPayload serializes a chunk's events into the opaque byte blob
// the avro record's "payload" field carries: a count, then each event's ID,
// its Type, and its Value via internal/value's own binary codec.
func encodeChunkPayload(events []value.Event) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(events))); err != nil {
		return nil, err
	}
	for _, e := range events {
		if err := binary.Write(&buf, binary.BigEndian, e.ID); err != nil {
			return nil, err
		}
		if err := value.EncodeType(&buf, e.Type); err != nil {
			return nil, err
		}
		if err := value.Encode(&buf, e.Value); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeChunkPayload(payload []byte) ([]value.Event, error) {
	r := bytes.NewReader(payload)
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	events := make([]value.Event, n)
	for i := range events {
		var id uint64
		if err := binary.Read(r, binary.BigEndian, &id); err != nil {
			return nil, err
		}
		ty, err := value.DecodeType(r)
		if err != nil {
			return nil, err
		}
		v, err := value.Decode(r)
		if err != nil {
			return nil, err
		}
		events[i] = value.Event{ID: id, Type: ty, Value: v}
	}
	return events, nil
}

// WriteTo persists s as an Avro Object Container File compressed with
// deflate. OCF already carries a schema, a codec marker, and framing, so
// no extra container header is layered on top.
func (s *Segment) WriteTo(w io.Writer) error {
	writer, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           chunkCodec,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}

	records := make([]any, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		payload, err := encodeChunkPayload(c.Events)
		if err != nil {
			return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
		}
		records = append(records, map[string]any{
			"first_event_time_unix_nano": c.FirstEventTime.UnixNano(),
			"last_event_time_unix_nano":  c.LastEventTime.UnixNano(),
			"payload":                    payload,
		})
	}
	if err := writer.Append(records); err != nil {
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}
	return nil
}

// ReadFrom reconstructs a Segment's chunks from an OCF stream written by
// WriteTo. Callers must set ID, Schema, FirstEventTime, and LastEventTime
// separately; those live outside the OCF body, so renaming or re-homing a
// segment file never requires rewriting its payload.
func ReadFrom(r io.Reader) ([]Chunk, error) {
	ocfReader, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}

	var chunks []Chunk
	for ocfReader.Scan() {
		rec, err := ocfReader.Read()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", verrors.FilesystemError, err)
		}
		m, ok := rec.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected OCF record shape %T", verrors.ParseError, rec)
		}
		payload, ok := m["payload"].([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: chunk record missing payload", verrors.ParseError)
		}
		events, err := decodeChunkPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", verrors.ParseError, err)
		}
		chunks = append(chunks, Chunk{
			FirstEventTime: time.Unix(0, m["first_event_time_unix_nano"].(int64)).UTC(),
			LastEventTime:  time.Unix(0, m["last_event_time_unix_nano"].(int64)).UTC(),
			Events:         events,
		})
	}
	return chunks, nil
}
