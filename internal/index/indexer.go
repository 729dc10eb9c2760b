// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package index implements the per-field bitmap index: one Indexer per
// (partition, offset) position (plus the distinguished name and time
// indexers addressed by extractor kind rather than offset), each holding
// one compressed bitmap per distinct value observed at that position.
package index

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vast-io/vast/internal/bitmap"
	"github.com/vast-io/vast/internal/value"
	"github.com/vast-io/vast/internal/verrors"
)

// Operator is a relational operator a Predicate applies between an
// indexer's stored values and its operand.
type Operator uint8

const (
	Equal Operator = iota
	NotEqual
	Less
	LessEqual
	Greater
	GreaterEqual
)

func (op Operator) String() string {
	switch op {
	case Equal:
		return "=="
	case NotEqual:
		return "!="
	case Less:
		return "<"
	case LessEqual:
		return "<="
	case Greater:
		return ">"
	case GreaterEqual:
		return ">="
	default:
		return "unknown"
	}
}

// ordered reports whether op compares by natural order rather than
// equality; ordered operators are only meaningful for ordered tags.
func (op Operator) ordered() bool { return op != Equal && op != NotEqual }

// Predicate is a single indexer's curried predicate: the operator and
// operand it resolves against its own stored values, after dispatch has
// already picked which indexer to run it on.
type Predicate struct {
	Op      Operator
	Operand value.Value
}

type bucket struct {
	value value.Value
	bm    *bitmap.Bitmap
}

// Indexer holds one bitmap per distinct value observed at a fixed offset.
// Every Ingest call advances every bucket's write cursor in lockstep: the
// bucket matching the incoming value gets a 1, every other bucket gets a
// 0, so bit position is always the event's position in ingest order.
type Indexer struct {
	mu      sync.Mutex
	tag     value.Tag
	buckets map[string]*bucket
	order   []string // insertion order, for deterministic Flush output
	size    uint32

	totalValues  uint64
	totalElapsed time.Duration
	lastRate     float64
}

// New returns an empty Indexer over values of the given scalar tag.
// Compound tags (record/vector/set/table) are rejected: an indexer
// addresses a single leaf offset, never a nested structure.
func New(tag value.Tag) (*Indexer, error) {
	if !scalarTag(tag) {
		return nil, fmt.Errorf("index: cannot index compound tag %s", tag)
	}
	return &Indexer{tag: tag, buckets: map[string]*bucket{}}, nil
}

// Tag returns the value tag this indexer accepts.
func (ix *Indexer) Tag() value.Tag { return ix.tag }

// Len returns the indexer's write cursor: the number of events it has seen
// (as a real value or a padding 0-bit), used by Partition to back-fill a
// newly created indexer so its bit position stays aligned with the rest of
// the partition's resident indexers.
func (ix *Indexer) Len() uint32 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.size
}

// Stats summarizes an Indexer's in-memory state. Rate is events/sec over
// the most recent Ingest batch; Mean is all values ingested so far divided
// by the total time spent inside Ingest calls.
type Stats struct {
	Tag     value.Tag
	Buckets int
	Size    uint32
	Values  uint64
	Rate    float64
	Mean    float64
}

func (ix *Indexer) Stats() Stats {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	mean := 0.0
	if ix.totalElapsed > 0 {
		mean = float64(ix.totalValues) / ix.totalElapsed.Seconds()
	}
	return Stats{
		Tag: ix.tag, Buckets: len(ix.buckets), Size: ix.size,
		Values: ix.totalValues, Rate: ix.lastRate, Mean: mean,
	}
}

// Ingest appends each value's position to the index. Values must carry
// ix.Tag(); anything else is a schema mismatch, since it means an event
// was routed to the wrong indexer.
func (ix *Indexer) Ingest(values []value.Value) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		ix.totalValues += uint64(len(values))
		ix.totalElapsed += elapsed
		if elapsed > 0 {
			ix.lastRate = float64(len(values)) / elapsed.Seconds()
		}
	}()

	for _, v := range values {
		if v.Tag() != ix.tag {
			return fmt.Errorf("%w: indexer for %s given a %s value", verrors.SchemaMismatch, ix.tag, v.Tag())
		}
		key := bucketKey(v)

		for k, b := range ix.buckets {
			if k != key {
				b.bm.Append(false)
			}
		}

		b, ok := ix.buckets[key]
		if !ok {
			b = &bucket{value: v, bm: bitmap.New()}
			b.bm.AppendN(false, ix.size)
			ix.buckets[key] = b
			ix.order = append(ix.order, key)
		}
		b.bm.Append(true)
		ix.size++
	}
	return nil
}

// IngestMissing appends n unset bits to every existing bucket without
// creating a new one, for events whose type does not contain this
// indexer's offset at all. Position still advances, so bit position
// remains event id.
func (ix *Indexer) IngestMissing(n uint32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for i := uint32(0); i < n; i++ {
		for _, b := range ix.buckets {
			b.bm.Append(false)
		}
		ix.size++
	}
}

func bucketKey(v value.Value) string { return v.GoString() }

// Lookup evaluates p against every bucket and returns the union of
// matching positions as a single bitmap sized to ix.size. An ordering
// operator against a tag that is not orderable (Regex, compound tags,
// Invalid) returns verrors.UnsupportedOperator.
func (ix *Indexer) Lookup(p Predicate) (*bitmap.Bitmap, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if p.Operand.Tag() != ix.tag {
		return nil, fmt.Errorf("%w: predicate operand tag %s does not match indexer tag %s",
			verrors.SchemaMismatch, p.Operand.Tag(), ix.tag)
	}

	switch p.Op {
	case Equal:
		key := bucketKey(p.Operand)
		if b, ok := ix.buckets[key]; ok {
			return b.bm, nil
		}
		empty := bitmap.New()
		empty.AppendN(false, ix.size)
		return empty, nil

	case NotEqual:
		eq, err := ix.lookupLocked(Predicate{Op: Equal, Operand: p.Operand})
		if err != nil {
			return nil, err
		}
		return bitmap.Not(eq), nil

	case Less, LessEqual, Greater, GreaterEqual:
		if !orderable(ix.tag) {
			return nil, fmt.Errorf("%w: %s is not ordered for operator %s", verrors.UnsupportedOperator, ix.tag, p.Op)
		}
		result := bitmap.New()
		result.AppendN(false, ix.size)
		for _, key := range ix.order {
			b := ix.buckets[key]
			c := value.Compare(b.value, p.Operand)
			if matches(p.Op, c) {
				result = bitmap.Or(result, b.bm)
			}
		}
		return result, nil

	default:
		return nil, fmt.Errorf("%w: operator %d", verrors.UnsupportedOperator, p.Op)
	}
}

// lookupLocked is Lookup without re-acquiring ix.mu, for internal reuse
// (NotEqual building on Equal).
func (ix *Indexer) lookupLocked(p Predicate) (*bitmap.Bitmap, error) {
	switch p.Op {
	case Equal:
		key := bucketKey(p.Operand)
		if b, ok := ix.buckets[key]; ok {
			return b.bm, nil
		}
		empty := bitmap.New()
		empty.AppendN(false, ix.size)
		return empty, nil
	default:
		return nil, fmt.Errorf("%w: operator %d", verrors.UnsupportedOperator, p.Op)
	}
}

func matches(op Operator, cmp int) bool {
	switch op {
	case Less:
		return cmp < 0
	case LessEqual:
		return cmp <= 0
	case Greater:
		return cmp > 0
	case GreaterEqual:
		return cmp >= 0
	default:
		return false
	}
}

func orderable(tag value.Tag) bool {
	switch tag {
	case value.Record, value.Vector, value.Set, value.Table, value.Regex, value.Invalid:
		return false
	default:
		return true
	}
}

const flushMagic uint32 = 0x76696458 // "vidX": vast index

// Flush serializes ix to w: a header, then each bucket's value and bitmap
// in insertion order.
func (ix *Indexer) Flush(w io.Writer) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := writeU32(w, flushMagic); err != nil {
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}
	if err := writeU32(w, uint32(ix.tag)); err != nil {
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}
	if err := writeU32(w, uint32(len(ix.order))); err != nil {
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}
	for _, key := range ix.order {
		b := ix.buckets[key]
		if err := encodeValue(w, b.value); err != nil {
			return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
		}
		if err := b.bm.Serialize(w); err != nil {
			return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
		}
	}
	return nil
}

// Load reads back an Indexer written by Flush.
func Load(r io.Reader) (*Indexer, error) {
	got, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}
	if got != flushMagic {
		return nil, fmt.Errorf("%w: bad indexer magic %08x", verrors.ParseError, got)
	}
	tagRaw, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}
	tag := value.Tag(tagRaw)
	count, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}

	ix, err := New(tag)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < count; i++ {
		v, err := decodeValue(r, tag)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", verrors.FilesystemError, err)
		}
		bm, err := bitmap.Deserialize(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", verrors.FilesystemError, err)
		}
		key := bucketKey(v)
		ix.buckets[key] = &bucket{value: v, bm: bm}
		ix.order = append(ix.order, key)
		if bm.Len() > ix.size {
			ix.size = bm.Len()
		}
	}
	return ix, nil
}

func writeU32(w io.Writer, v uint32) error {
	buf := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	_, err := w.Write(buf)
	return err
}

func readU32(r io.Reader) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}
