// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingestor implements the source-to-segmentizer-to-receiver
// pipeline: events flow in, get chunked by a Segmentizer, and sealed
// Segments are handed to a Receiver one at a time, FIFO, each awaiting an
// explicit Ack before the next is sent. It also recovers orphaned segments
// left on disk by a prior crash and gives the pipeline a bounded shutdown
// grace period to drain in-flight segments before force-persisting
// whatever is left.
//
// The whole state machine runs on a single goroutine reading from an
// internal command channel, so state is never touched from more than one
// goroutine and needs no locking.
package ingestor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vast-io/vast/internal/segment"
	"github.com/vast-io/vast/internal/value"
	"github.com/vast-io/vast/internal/verrors"
	"github.com/vast-io/vast/pkg/log"
)

// State is the ingestor's segment-sending state.
type State uint8

const (
	Ready State = iota
	Waiting
	Paused
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Waiting:
		return "waiting"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Receiver accepts sealed segments one at a time. Send must not block
// indefinitely; the Ingestor will not send a second segment until the
// first is Acked, so a slow receiver naturally throttles ingestion.
type Receiver interface {
	Send(seg *segment.Segment) error
}

// shutdownGrace is how long the ingestor waits for its last outstanding
// segment to be acked before persisting everything still buffered and
// exiting with error.
const shutdownGrace = 30 * time.Second

type pushCmd struct {
	event value.Event
	errCh chan error
}

type ackCmd struct{ id uuid.UUID }

type backlogCmd struct{ backlogged bool }

type submitOrphansCmd struct{}

type shutdownCmd struct{ reason error }

type stateCmd struct{ resp chan State }

// Ingestor runs the ingest state machine. Construct with New and drive it
// with Run in its own goroutine.
type Ingestor struct {
	dir      string
	receiver Receiver
	sz       *segment.Segmentizer
	grace    time.Duration

	cmds chan any
	done chan struct{}

	// state owned exclusively by the Run goroutine
	state       State
	backlogged  bool
	terminating bool
	buffer      []*segment.Segment
	orphaned    map[string]string // uuid string -> file path
	shutdownErr error
}

// New returns an Ingestor that persists orphaned/un-acked segments under
// dir/ingest/segments.
func New(dir string, receiver Receiver, maxEventsPerChunk, maxSegmentSize int) *Ingestor {
	return &Ingestor{
		dir:      filepath.Join(dir, "ingest", "segments"),
		receiver: receiver,
		sz:       segment.NewSegmentizer(maxEventsPerChunk, maxSegmentSize),
		grace:    shutdownGrace,
		cmds:     make(chan any, 64),
		done:     make(chan struct{}),
		orphaned: map[string]string{},
	}
}

// Push submits one event to the segmentizer. It returns once the command
// has been accepted by the run loop, not once the event is durably sealed.
func (in *Ingestor) Push(ctx context.Context, e value.Event) error {
	errCh := make(chan error, 1)
	select {
	case in.cmds <- pushCmd{event: e, errCh: errCh}:
	case <-ctx.Done():
		return ctx.Err()
	case <-in.done:
		return fmt.Errorf("%w: ingestor is shut down", verrors.ProtocolViolation)
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ack tells the ingestor the oldest outstanding segment was durably
// received; it is a protocol violation for a receiver to ack anything
// else.
func (in *Ingestor) Ack(id uuid.UUID) {
	select {
	case in.cmds <- ackCmd{id: id}:
	case <-in.done:
	}
}

// SetBacklog tells the ingestor whether its receiver is currently
// backlogged; a backlogged receiver pauses segment sending until cleared.
func (in *Ingestor) SetBacklog(backlogged bool) {
	select {
	case in.cmds <- backlogCmd{backlogged: backlogged}:
	case <-in.done:
	}
}

// SubmitOrphans re-queues every orphaned segment found on disk at startup,
// in filename (segment uuid) order, to be resent to the receiver.
func (in *Ingestor) SubmitOrphans() {
	select {
	case in.cmds <- submitOrphansCmd{}:
	case <-in.done:
	}
}

// State returns the ingestor's current send state. Intended for monitoring
// and tests; the value can be stale the instant it's read since the run
// loop may process another command concurrently.
func (in *Ingestor) State(ctx context.Context) (State, error) {
	resp := make(chan State, 1)
	select {
	case in.cmds <- stateCmd{resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-in.done:
		return 0, fmt.Errorf("%w: ingestor is shut down", verrors.ProtocolViolation)
	}
	select {
	case s := <-resp:
		return s, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Shutdown begins graceful shutdown: the ingestor waits up to the grace
// period for the outstanding segments to ack before force-persisting the
// remaining buffer to disk. Run returns reason on a clean drain, or a
// filesystem error describing the forced persist.
func (in *Ingestor) Shutdown(reason error) {
	select {
	case in.cmds <- shutdownCmd{reason: reason}:
	case <-in.done:
	}
}

// Run drives the state machine until Shutdown completes or ctx is
// canceled. It returns the shutdown reason passed to Shutdown, a
// filesystem error if the grace period elapsed and the buffer was
// force-persisted, or ctx's error if canceled first.
func (in *Ingestor) Run(ctx context.Context) error {
	defer close(in.done)

	in.scanOrphans()

	var shutdownTimer *time.Timer
	var shutdownTimerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case c := <-in.cmds:
			switch cmd := c.(type) {
			case pushCmd:
				seg, err := in.sz.Push(cmd.event)
				if err == nil && seg != nil {
					in.enqueue(seg)
				}
				cmd.errCh <- err

			case ackCmd:
				in.handleAck(cmd.id)
				if in.terminating && len(in.buffer) == 0 {
					return in.shutdownErr
				}

			case backlogCmd:
				in.handleBacklog(cmd.backlogged)
				if in.terminating && len(in.buffer) == 0 {
					return in.shutdownErr
				}

			case submitOrphansCmd:
				in.submitOrphans()

			case stateCmd:
				cmd.resp <- in.state

			case shutdownCmd:
				in.shutdownErr = cmd.reason
				if seg := in.sz.Flush(); seg != nil {
					in.enqueue(seg)
				}
				if len(in.buffer) == 0 {
					return in.shutdownErr
				}
				if !in.terminating {
					in.terminating = true
					log.Infof("ingestor: waiting %s for segment ack", in.grace)
					shutdownTimer = time.NewTimer(in.grace)
					shutdownTimerCh = shutdownTimer.C
				}
			}
			in.tryProcess()

		case <-shutdownTimerCh:
			in.forcePersist()
			return fmt.Errorf("%w: shutdown grace period elapsed with %d unacked segments",
				verrors.FilesystemError, len(in.buffer))
		}
	}
}

func (in *Ingestor) enqueue(seg *segment.Segment) {
	in.buffer = append(in.buffer, seg)
}

// tryProcess sends the head of the buffer to the receiver if the ingestor
// is Ready and has something to send.
func (in *Ingestor) tryProcess() {
	if in.state != Ready || len(in.buffer) == 0 {
		return
	}
	if err := in.receiver.Send(in.buffer[0]); err != nil {
		log.Errorf("ingestor: failed to send segment %s: %v", in.buffer[0].ID, err)
		return
	}
	in.state = Waiting
}

// handleAck pops the head of the buffer. Only the head may be acked; an
// out-of-order ack is a protocol violation and leaves the buffer alone. An
// acked segment that was replayed from the orphan directory also has its
// on-disk file unlinked.
func (in *Ingestor) handleAck(id uuid.UUID) {
	if in.state != Waiting || len(in.buffer) == 0 {
		log.Errorf("ingestor: %v: ack %s in state %s", verrors.ProtocolViolation, id, in.state)
		return
	}
	head := in.buffer[0]
	if head.ID != id {
		log.Errorf("ingestor: %v: ack %s does not match outstanding segment %s", verrors.ProtocolViolation, id, head.ID)
		return
	}
	if p, ok := in.orphaned[id.String()]; ok {
		if err := os.Remove(p); err != nil {
			log.Warnf("ingestor: failed to unlink acked orphan %s: %v", p, err)
		}
		delete(in.orphaned, id.String())
	}
	in.buffer = in.buffer[1:]

	if in.backlogged {
		in.state = Paused
	} else {
		in.state = Ready
	}
}

func (in *Ingestor) handleBacklog(backlogged bool) {
	in.backlogged = backlogged
	if backlogged {
		if in.state == Ready {
			in.state = Paused
		}
	} else if in.state == Paused {
		in.state = Ready
	}
}

// scanOrphans records every segment file already resident in the ingest
// directory at startup (left behind by a crash mid-flight); it does not
// resend them until SubmitOrphans is called.
func (in *Ingestor) scanOrphans() {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		in.orphaned[entry.Name()] = filepath.Join(in.dir, entry.Name())
	}
}

func (in *Ingestor) submitOrphans() {
	names := make([]string, 0, len(in.orphaned))
	for name := range in.orphaned {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := in.orphaned[name]
		f, err := os.Open(p)
		if err != nil {
			log.Errorf("ingestor: failed to open orphaned segment %s: %v", name, err)
			continue
		}
		chunks, err := segment.ReadFrom(f)
		f.Close()
		if err != nil {
			log.Errorf("ingestor: failed to load orphaned segment %s: %v", name, err)
			continue
		}
		id, err := uuid.Parse(name)
		if err != nil {
			log.Errorf("ingestor: orphaned segment file %s is not a valid segment id", name)
			continue
		}
		seg := &segment.Segment{ID: id, Chunks: chunks}
		restoreSegmentTimes(seg)
		if err := restoreSegmentSchema(seg); err != nil {
			log.Errorf("ingestor: orphaned segment %s carries conflicting event types: %v", name, err)
			continue
		}
		in.enqueue(seg)
	}
}

// restoreSegmentSchema rebuilds the schema a persisted segment was sealed
// with by re-merging its events' types; the orphan file stores only the
// chunk payload, and every event embeds its full type anyway.
func restoreSegmentSchema(seg *segment.Segment) error {
	var schema value.Type
	have := false
	for _, c := range seg.Chunks {
		for _, e := range c.Events {
			if !have {
				schema = e.Type
				have = true
				continue
			}
			merged, err := value.Merge(schema, e.Type)
			if err != nil {
				return err
			}
			schema = merged
		}
	}
	seg.Schema = schema
	return nil
}

func restoreSegmentTimes(seg *segment.Segment) {
	if len(seg.Chunks) == 0 {
		return
	}
	seg.FirstEventTime = seg.Chunks[0].FirstEventTime
	seg.LastEventTime = seg.Chunks[0].LastEventTime
	for _, c := range seg.Chunks {
		if c.FirstEventTime.Before(seg.FirstEventTime) {
			seg.FirstEventTime = c.FirstEventTime
		}
		if c.LastEventTime.After(seg.LastEventTime) {
			seg.LastEventTime = c.LastEventTime
		}
	}
}

// forcePersist writes every still-buffered segment to disk so a future
// restart's scanOrphans picks it back up. Per-segment write failures are
// logged but do not stop the remaining segments from being persisted.
func (in *Ingestor) forcePersist() {
	if len(in.buffer) == 0 {
		return
	}
	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		log.Errorf("ingestor: failed to create %s: %v", in.dir, err)
		return
	}
	for _, seg := range in.buffer {
		p := filepath.Join(in.dir, seg.ID.String())
		f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			log.Errorf("ingestor: failed to persist segment %s: %v", seg.ID, err)
			continue
		}
		if err := seg.WriteTo(f); err != nil {
			log.Errorf("ingestor: failed to persist segment %s: %v", seg.ID, err)
		}
		f.Close()
	}
	in.buffer = nil
}
