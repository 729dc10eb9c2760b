// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package partition implements a directory-backed registry of per-field
// Indexers plus the schema and metadata that describe them. A Partition is
// the single writer to its own indexer set; Ingest and Evaluate are both
// driven through the same mutex so the two are serialized against each
// other.
package partition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/vast-io/vast/internal/bitmap"
	"github.com/vast-io/vast/internal/dispatch"
	"github.com/vast-io/vast/internal/index"
	"github.com/vast-io/vast/internal/segment"
	"github.com/vast-io/vast/internal/value"
	"github.com/vast-io/vast/internal/verrors"
	"github.com/vast-io/vast/pkg/log"
	"github.com/vast-io/vast/pkg/lrucache"
)

// State is the Partition's lifecycle state.
type State uint8

const (
	Cold State = iota
	Warming
	Warm
	Failed
)

func (s State) String() string {
	switch s {
	case Cold:
		return "cold"
	case Warming:
		return "warming"
	case Warm:
		return "warm"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Metadata is the on-disk partition.meta record.
type Metadata struct {
	UUID                   uuid.UUID `json:"uuid"`
	FirstEventTimeUnixNano int64     `json:"first_event_time_unix_nano"`
	LastEventTimeUnixNano  int64     `json:"last_event_time_unix_nano"`
	LastModifiedUnixNano   int64     `json:"last_modified_unix_nano"`
}

// update widens the event-time range to cover seg and stamps the
// modification time. first only shrinks, last only grows.
func (m *Metadata) update(seg *segment.Segment) {
	fn := seg.FirstEventTime.UnixNano()
	ln := seg.LastEventTime.UnixNano()
	if m.FirstEventTimeUnixNano == 0 || fn < m.FirstEventTimeUnixNano {
		m.FirstEventTimeUnixNano = fn
	}
	if ln > m.LastEventTimeUnixNano {
		m.LastEventTimeUnixNano = ln
	}
	m.LastModifiedUnixNano = time.Now().UnixNano()
}

type indexerEntry struct {
	ix       *index.Indexer
	path     string // on-disk file path
	typeName string
	key      []string
	offset   value.Offset
	tag      value.Tag
	lastUsed time.Time
	resident bool
}

// Config bundles the knobs Partition needs: the ingest batch size, the
// idle-indexer eviction window and sweep cadence, and the memory budget
// for the lookup-result cache.
type Config struct {
	BatchSize   int
	IdleWindow  time.Duration
	SweepPeriod time.Duration
	CacheMemory int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.IdleWindow <= 0 {
		c.IdleWindow = 5 * time.Minute
	}
	if c.SweepPeriod <= 0 {
		c.SweepPeriod = time.Minute
	}
	if c.CacheMemory <= 0 {
		c.CacheMemory = 16 << 20
	}
	return c
}

// Partition owns a directory, a merged schema per type name, and the set
// of indexers derived from those schemas.
type Partition struct {
	mu  sync.Mutex
	dir string
	cfg Config

	state   State
	meta    Metadata
	schemas map[string]value.Type // type name -> merged schema

	entries   map[string]*indexerEntry // key: typeName + "/" + dotted key
	timeEntry *indexerEntry
	nameEntry *indexerEntry

	cache *lrucache.Cache[*bitmap.Bitmap]
	sched gocron.Scheduler
}

// New returns a Partition rooted at dir, in the cold state. No I/O happens
// until the first Ingest or Evaluate call warms it.
func New(dir string, id uuid.UUID, cfg Config) (*Partition, error) {
	cfg = cfg.withDefaults()
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("partition: create scheduler: %w", err)
	}
	p := &Partition{
		dir:     dir,
		cfg:     cfg,
		state:   Cold,
		meta:    Metadata{UUID: id},
		schemas: map[string]value.Type{},
		entries: map[string]*indexerEntry{},
		cache:   lrucache.New[*bitmap.Bitmap](cfg.CacheMemory),
		sched:   s,
	}
	if _, err := s.NewJob(gocron.DurationJob(cfg.SweepPeriod), gocron.NewTask(p.evictIdle)); err != nil {
		return nil, fmt.Errorf("partition: register eviction sweep: %w", err)
	}
	s.Start()
	return p, nil
}

// UUID returns the partition's identity.
func (p *Partition) UUID() uuid.UUID { return p.meta.UUID }

// Close stops the background eviction sweep. It does not flush; callers
// should Flush explicitly first if that's desired.
func (p *Partition) Close() error { return p.sched.Shutdown() }

func (p *Partition) metaPath() string   { return filepath.Join(p.dir, "partition.meta") }
func (p *Partition) schemaPath() string { return filepath.Join(p.dir, "schema") }
func (p *Partition) timePath() string   { return filepath.Join(p.dir, "time.idx") }
func (p *Partition) namePath() string   { return filepath.Join(p.dir, "name.idx") }

// ensureWarmLocked performs the cold -> warming -> warm transition,
// loading metadata, schema, and the distinguished indexers from disk if
// present. Callers must hold p.mu.
func (p *Partition) ensureWarmLocked() error {
	if p.state == Warm {
		return nil
	}
	if p.state == Failed {
		return fmt.Errorf("%w: partition %s is failed", verrors.FilesystemError, p.meta.UUID)
	}
	p.state = Warming

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		p.state = Failed
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}

	if data, err := os.ReadFile(p.metaPath()); err == nil {
		var m Metadata
		if err := json.Unmarshal(data, &m); err != nil {
			p.state = Failed
			return fmt.Errorf("%w: decode partition.meta: %v", verrors.FilesystemError, err)
		}
		p.meta = m
	} else if !os.IsNotExist(err) {
		p.state = Failed
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}

	if f, err := os.Open(p.schemaPath()); err == nil {
		schemas, err := loadSchemas(f)
		f.Close()
		if err != nil {
			p.state = Failed
			return fmt.Errorf("%w: decode schema: %v", verrors.FilesystemError, err)
		}
		p.schemas = schemas
	} else if !os.IsNotExist(err) {
		p.state = Failed
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}

	p.timeEntry = &indexerEntry{path: p.timePath(), tag: value.Time}
	p.nameEntry = &indexerEntry{path: p.namePath(), tag: value.String}
	if err := p.loadEntryLocked(p.timeEntry); err != nil {
		p.state = Failed
		return err
	}
	if err := p.loadEntryLocked(p.nameEntry); err != nil {
		p.state = Failed
		return err
	}

	for name, schema := range p.schemas {
		for _, leaf := range schema.Leaves() {
			key := keyString(leaf.Key)
			regKey := name + "/" + key
			if _, ok := p.entries[regKey]; ok {
				continue
			}
			entry := &indexerEntry{
				path:     filepath.Join(p.dir, name, filepath.Join(leaf.Key...)),
				typeName: name,
				key:      leaf.Key,
				offset:   leaf.Offset,
				tag:      leaf.Tag,
			}
			p.entries[regKey] = entry
		}
	}

	p.state = Warm
	return nil
}

// loadEntryLocked lazily loads entry's indexer from disk if not already
// resident; loading an already-resident entry only refreshes lastUsed. A
// reloaded indexer is backfilled up to the partition's current event
// count, since events may have been ingested into every *other* resident
// indexer while this one sat evicted, and bit position must stay
// comparable as event id across indexers created, or reloaded, at
// different times. Callers must hold p.mu.
func (p *Partition) loadEntryLocked(entry *indexerEntry) error {
	entry.lastUsed = time.Now()
	if entry.resident {
		return nil
	}
	f, err := os.Open(entry.path)
	if os.IsNotExist(err) {
		ix, newErr := index.New(entry.tag)
		if newErr != nil {
			return fmt.Errorf("%w: %v", verrors.FilesystemError, newErr)
		}
		entry.ix = ix
		entry.resident = true
		p.backfillLocked(entry)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}
	defer f.Close()
	ix, err := index.Load(f)
	if err != nil {
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}
	entry.ix = ix
	entry.resident = true
	p.backfillLocked(entry)
	return nil
}

// backfillLocked pads entry's indexer with 0-bits up to the partition's
// current event count, as tracked by the always-resident time indexer.
func (p *Partition) backfillLocked(entry *indexerEntry) {
	if p.timeEntry == nil || entry == p.timeEntry || entry == p.nameEntry {
		return
	}
	cur := p.timeEntry.ix.Len()
	if gap := cur - entry.ix.Len(); gap > 0 && cur >= entry.ix.Len() {
		entry.ix.IngestMissing(gap)
	}
}

// evictIdle drops resident indexers unreferenced for longer than
// cfg.IdleWindow from memory, leaving their on-disk state untouched.
func (p *Partition) evictIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Warm {
		return
	}
	cutoff := time.Now().Add(-p.cfg.IdleWindow)
	for _, entry := range p.entries {
		if entry.resident && entry.lastUsed.Before(cutoff) {
			entry.resident = false
			entry.ix = nil
		}
	}
}

// Ingest merges seg's schema into the partition, creates any indexers a
// newly introduced field requires, and streams seg's events to every
// resident indexer in batches of cfg.BatchSize. Indexers for the segment's
// own type are made resident first so none of its fields land as padding.
func (p *Partition) Ingest(seg *segment.Segment) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureWarmLocked(); err != nil {
		return err
	}

	typeName := seg.Schema.Name
	merged := seg.Schema
	if existing, ok := p.schemas[typeName]; ok {
		m, err := value.Merge(existing, seg.Schema)
		if err != nil {
			log.Warnf("partition %s: rejecting segment %s: %v", p.meta.UUID, seg.ID, err)
			return fmt.Errorf("%w", err)
		}
		merged = m
	}
	p.schemas[typeName] = merged

	priorCount := p.timeEntry.ix.Len()
	for _, leaf := range merged.Leaves() {
		regKey := typeName + "/" + keyString(leaf.Key)
		if existing, ok := p.entries[regKey]; ok {
			// Pull an evicted indexer of this type back in before its
			// events start flowing, or they would be recorded as padding.
			if err := p.loadEntryLocked(existing); err != nil {
				p.state = Failed
				return err
			}
			continue
		}
		ix, err := index.New(leaf.Tag)
		if err != nil {
			log.Warnf("partition %s: cannot index leaf %v of tag %s: %v", p.meta.UUID, leaf.Key, leaf.Tag, err)
			continue
		}
		ix.IngestMissing(priorCount)
		entry := &indexerEntry{
			ix: ix, path: filepath.Join(p.dir, typeName, filepath.Join(leaf.Key...)),
			typeName: typeName, key: leaf.Key, offset: leaf.Offset, tag: leaf.Tag,
			resident: true, lastUsed: time.Now(),
		}
		p.entries[regKey] = entry
	}

	events := flattenEvents(seg)
	start := time.Now()
	for i := 0; i < len(events); i += p.cfg.BatchSize {
		end := i + p.cfg.BatchSize
		if end > len(events) {
			end = len(events)
		}
		batch := events[i:end]
		if err := p.ingestBatchLocked(typeName, batch); err != nil {
			p.state = Failed
			return err
		}
	}

	p.meta.update(seg)
	if err := p.flushLocked(); err != nil {
		p.state = Failed
		return err
	}

	p.logAggregateStats(len(events), time.Since(start))
	return nil
}

func (p *Partition) ingestBatchLocked(typeName string, batch []value.Event) error {
	for _, e := range batch {
		timeVal := eventTimeValue(e)
		if err := p.timeEntry.ix.Ingest([]value.Value{timeVal}); err != nil {
			return fmt.Errorf("%w: time indexer: %v", verrors.FilesystemError, err)
		}
		if err := p.nameEntry.ix.Ingest([]value.Value{value.NewString(e.Type.Name)}); err != nil {
			return fmt.Errorf("%w: name indexer: %v", verrors.FilesystemError, err)
		}
		for _, entry := range p.entries {
			if !entry.resident {
				continue
			}
			if entry.typeName != typeName {
				entry.ix.IngestMissing(1)
				continue
			}
			v, ok := value.At(e.Value, entry.offset)
			if !ok {
				entry.ix.IngestMissing(1)
				continue
			}
			if err := entry.ix.Ingest([]value.Value{v}); err != nil {
				return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
			}
			entry.lastUsed = time.Now()
		}
	}
	return nil
}

func eventTimeValue(e value.Event) value.Value {
	for _, l := range e.Type.Leaves() {
		if l.Tag == value.Time {
			if v, ok := value.At(e.Value, l.Offset); ok {
				return v
			}
		}
	}
	return value.Nil(value.Time)
}

func flattenEvents(seg *segment.Segment) []value.Event {
	var out []value.Event
	for _, c := range seg.Chunks {
		out = append(out, c.Events...)
	}
	return out
}

func (p *Partition) logAggregateStats(n int, elapsed time.Duration) {
	rate := 0.0
	if elapsed > 0 {
		rate = float64(n) / elapsed.Seconds()
	}
	log.Infof("partition %s: ingested %d events in %s (%.1f events/s)", p.meta.UUID, n, elapsed, rate)
}

// keyString renders a leaf key the way dispatch paths spell it: dotted,
// not slash-separated. On-disk indexer paths nest real directories
// instead.
func keyString(key []string) string {
	return strings.Join(key, ".")
}

// Flush writes schema and partition metadata atomically, then flushes
// every resident indexer. A crash mid-flush leaves each file either fully
// old or fully new thanks to the temp-file-then-rename idiom below.
func (p *Partition) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

func (p *Partition) flushLocked() error {
	if err := atomicWrite(p.metaPath(), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(p.meta)
	}); err != nil {
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}

	if err := atomicWrite(p.schemaPath(), func(w io.Writer) error {
		return saveSchemas(w, p.schemas)
	}); err != nil {
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}

	if err := p.flushEntryLocked(p.timeEntry); err != nil {
		return err
	}
	if err := p.flushEntryLocked(p.nameEntry); err != nil {
		return err
	}
	for _, entry := range p.entries {
		if !entry.resident {
			continue
		}
		if err := p.flushEntryLocked(entry); err != nil {
			return err
		}
	}
	return nil
}

func (p *Partition) flushEntryLocked(entry *indexerEntry) error {
	if err := os.MkdirAll(filepath.Dir(entry.path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}
	return atomicWrite(entry.path, func(w io.Writer) error {
		return entry.ix.Flush(w)
	})
}

// atomicWrite writes via a temp file in the same directory, then renames
// over the destination, so a crash mid-write never leaves a half-written
// file at path.
func atomicWrite(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func loadSchemas(r io.Reader) (map[string]value.Type, error) {
	var count uint32
	if err := readU32(r, &count); err != nil {
		return nil, err
	}
	out := map[string]value.Type{}
	for i := uint32(0); i < count; i++ {
		t, err := value.DecodeType(r)
		if err != nil {
			return nil, err
		}
		out[t.Name] = t
	}
	return out, nil
}

func saveSchemas(w io.Writer, schemas map[string]value.Type) error {
	if err := writeU32(w, uint32(len(schemas))); err != nil {
		return err
	}
	for _, t := range schemas {
		if err := value.EncodeType(w, t); err != nil {
			return err
		}
	}
	return nil
}

func writeU32(w io.Writer, v uint32) error {
	buf := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	_, err := w.Write(buf)
	return err
}

func readU32(r io.Reader, out *uint32) error {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	*out = uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	return nil
}

// Response is what Evaluate sends to sink: the aggregated result bitmap
// for one Query. Warnings carry per-predicate problems (an operator the
// indexer cannot evaluate, a suffix that matched nothing) that degrade the
// result without failing the query or the Partition.
type Response struct {
	Bitmap   *bitmap.Bitmap
	Warnings []string
	Err      error
}

// Evaluate walks q, selects the indexers each predicate resolves to,
// forwards the curried predicates, and sends the aggregated result to
// sink. A predicate whose extractor resolves to zero indexers contributes
// an empty bitmap for its own conjunction rather than failing the whole
// query.
func (p *Partition) Evaluate(q dispatch.Query, sink chan<- Response) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureWarmLocked(); err != nil {
		sink <- Response{Err: err}
		return
	}

	leaves := p.dispatchLeaves()
	metaRange := dispatch.MetaRange{
		FirstEventTimeUnixNano: p.meta.FirstEventTimeUnixNano,
		LastEventTimeUnixNano:  p.meta.LastEventTimeUnixNano,
		TypeNames:              p.typeNameSet(),
	}

	result := bitmap.New()
	var warnings []string
	for _, conj := range q {
		ok, err := dispatch.MetaSatisfiable(conj, metaRange)
		if err != nil {
			sink <- Response{Err: fmt.Errorf("%w: %v", verrors.ParseError, err)}
			return
		}
		if !ok {
			continue
		}
		conjBitmap, conjWarnings, err := p.evaluateConjunctionLocked(conj, leaves)
		if err != nil {
			sink <- Response{Err: err}
			return
		}
		warnings = append(warnings, conjWarnings...)
		result = bitmap.Or(result, conjBitmap)
	}

	sink <- Response{Bitmap: result, Warnings: warnings}
}

func (p *Partition) evaluateConjunctionLocked(conj dispatch.Conjunction, leaves []dispatch.Leaf) (*bitmap.Bitmap, []string, error) {
	scope := dispatch.NameScope(conj)
	var warnings []string
	result := p.timeEntry.ix.Len()
	acc := fullBitmap(result)

	for _, pred := range conj {
		targets := dispatch.SelectTargets(leaves, pred, scope)
		if len(targets) == 0 {
			return bitmap.New(), warnings, nil
		}
		predBitmap := bitmap.New()
		for _, target := range targets {
			entry := p.entryForTarget(target)
			if entry == nil {
				continue
			}
			if err := p.loadEntryLocked(entry); err != nil {
				return nil, warnings, err
			}
			// The write cursor is the cache revision: results computed
			// before an ingest never serve a query issued after it.
			cacheKey := fmt.Sprintf("%s/%d/%s", target.Path, pred.Op, pred.Operand.GoString())
			var lookupErr error
			bm := p.cache.Get(cacheKey, uint64(p.timeEntry.ix.Len()), func() (*bitmap.Bitmap, int) {
				result, err := entry.ix.Lookup(index.Predicate{Op: pred.Op, Operand: pred.Operand})
				if err != nil {
					lookupErr = err
					result = bitmap.New()
				}
				return result, int(result.SizeInBytes())
			})
			if lookupErr != nil {
				if errors.Is(lookupErr, verrors.UnsupportedOperator) || errors.Is(lookupErr, verrors.SchemaMismatch) {
					warnings = append(warnings, fmt.Sprintf("%s: %v", target.Path, lookupErr))
				} else {
					return nil, warnings, lookupErr
				}
			}
			predBitmap = bitmap.Or(predBitmap, bm)
		}
		acc = bitmap.And(acc, predBitmap)
	}
	return acc, warnings, nil
}

func fullBitmap(n uint32) *bitmap.Bitmap {
	bm := bitmap.New()
	bm.AppendN(true, n)
	return bm
}

func (p *Partition) entryForTarget(t dispatch.Target) *indexerEntry {
	switch t.Path {
	case "time":
		return p.timeEntry
	case "name":
		return p.nameEntry
	default:
		return p.entries[t.Path]
	}
}

func (p *Partition) dispatchLeaves() []dispatch.Leaf {
	var out []dispatch.Leaf
	for _, entry := range p.entries {
		out = append(out, dispatch.Leaf{TypeName: entry.typeName, Key: entry.key, Tag: entry.tag})
	}
	return out
}

func (p *Partition) typeNameSet() map[string]bool {
	out := map[string]bool{}
	for name := range p.schemas {
		out[name] = true
	}
	return out
}
