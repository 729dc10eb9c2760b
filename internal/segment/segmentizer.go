// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package segment

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vast-io/vast/internal/value"
)

// Segmentizer accumulates events into size/count-bounded Chunks and seals a
// Segment once the cumulative estimated on-disk size of its chunks reaches
// maxSegmentSize, or the caller forces a seal via Flush. The size check runs
// after a chunk has been added, so a sealed Segment can exceed
// maxSegmentSize by up to one chunk. It has no
// notion of a source or receiver; Ingestor wires those around it.
type Segmentizer struct {
	mu sync.Mutex

	maxEventsPerChunk int
	maxSegmentSize    int

	schema     value.Type
	haveSchema bool

	chunk      []value.Event
	chunkFirst time.Time
	chunkLast  time.Time

	chunks      []Chunk
	segmentSize int
}

// NewSegmentizer returns a Segmentizer that seals a chunk every
// maxEventsPerChunk events and a segment once the chunks written so far
// estimate past maxSegmentSize bytes.
func NewSegmentizer(maxEventsPerChunk, maxSegmentSize int) *Segmentizer {
	return &Segmentizer{
		maxEventsPerChunk: maxEventsPerChunk,
		maxSegmentSize:    maxSegmentSize,
	}
}

// Push adds one event. It returns a sealed Segment when adding the event
// crosses the segment size bound; the Segmentizer is reset and ready to
// accept further events immediately after returning one.
func (s *Segmentizer) Push(e value.Event) (*Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveSchema {
		s.schema = e.Type
		s.haveSchema = true
	} else {
		merged, err := value.Merge(s.schema, e.Type)
		if err != nil {
			return nil, err
		}
		s.schema = merged
	}

	if len(s.chunk) == 0 {
		s.chunkFirst = eventTime(e)
	}
	s.chunkLast = eventTime(e)
	s.chunk = append(s.chunk, e)

	if len(s.chunk) >= s.maxEventsPerChunk {
		s.sealChunkLocked()
	}

	if s.segmentSize >= s.maxSegmentSize {
		return s.sealSegmentLocked(), nil
	}
	return nil, nil
}

// Flush force-seals whatever has accumulated so far, even if neither bound
// has been reached. It returns nil if nothing has been pushed since the
// last seal. Ingestor calls this on shutdown so buffered events are not
// lost on a clean exit.
func (s *Segmentizer) Flush() *Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.chunk) > 0 {
		s.sealChunkLocked()
	}
	if len(s.chunks) == 0 {
		return nil
	}
	return s.sealSegmentLocked()
}

func (s *Segmentizer) sealChunkLocked() {
	c := Chunk{
		FirstEventTime: s.chunkFirst,
		LastEventTime:  s.chunkLast,
		Events:         s.chunk,
	}
	s.chunks = append(s.chunks, c)
	s.segmentSize += estimateSize(c)
	s.chunk = nil
}

func (s *Segmentizer) sealSegmentLocked() *Segment {
	seg := &Segment{
		ID:     uuid.New(),
		Schema: s.schema,
		Chunks: s.chunks,
	}
	if len(s.chunks) > 0 {
		seg.FirstEventTime = s.chunks[0].FirstEventTime
		seg.LastEventTime = s.chunks[len(s.chunks)-1].LastEventTime
		for _, c := range s.chunks {
			if c.FirstEventTime.Before(seg.FirstEventTime) {
				seg.FirstEventTime = c.FirstEventTime
			}
			if c.LastEventTime.After(seg.LastEventTime) {
				seg.LastEventTime = c.LastEventTime
			}
		}
	}

	s.chunks = nil
	s.segmentSize = 0

	// Events still sitting in the unsealed chunk roll over into the next
	// segment; its schema must keep covering their types.
	s.haveSchema = false
	for _, e := range s.chunk {
		if !s.haveSchema {
			s.schema = e.Type
			s.haveSchema = true
			continue
		}
		if merged, err := value.Merge(s.schema, e.Type); err == nil {
			s.schema = merged
		}
	}
	return seg
}

func eventTime(e value.Event) time.Time {
	for _, l := range e.Type.Leaves() {
		if l.Tag == value.Time {
			if v, ok := value.At(e.Value, l.Offset); ok {
				if t, ok := v.Time(); ok {
					return t
				}
			}
		}
	}
	return time.Time{}
}

// estimateSize approximates a chunk's on-disk footprint by encoding its
// payload once; used only to decide when to seal a segment, not persisted.
func estimateSize(c Chunk) int {
	payload, err := encodeChunkPayload(c.Events)
	if err != nil {
		return 0
	}
	return len(payload)
}
