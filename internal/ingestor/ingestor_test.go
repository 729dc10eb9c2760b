// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ingestor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/vast-io/vast/internal/segment"
	"github.com/vast-io/vast/internal/value"
	"github.com/vast-io/vast/internal/verrors"
)

type fakeReceiver struct {
	mu   sync.Mutex
	sent []*segment.Segment
	fail bool
}

func (r *fakeReceiver) Send(seg *segment.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("receiver unavailable")
	}
	r.sent = append(r.sent, seg)
	return nil
}

func (r *fakeReceiver) lastSent() *segment.Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return nil
	}
	return r.sent[len(r.sent)-1]
}

func (r *fakeReceiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func connType() value.Type {
	return value.Type{Fields: []value.Field{
		{Name: "ts", Tag: value.Time},
		{Name: "proto", Tag: value.String},
	}}
}

func connEvent(id uint64) value.Event {
	return value.Event{
		ID:   id,
		Type: connType(),
		Value: value.NewRecord([]value.Value{
			value.NewTime(time.Now()),
			value.NewString("tcp"),
		}),
	}
}

func stateOf(t *testing.T, ctx context.Context, in *Ingestor) State {
	t.Helper()
	s, err := in.State(ctx)
	assert.NoError(t, err)
	return s
}

func TestIngestorSendsSealedSegmentAndWaitsForAck(t *testing.T) {
	dir := t.TempDir()
	recv := &fakeReceiver{}
	in := New(dir, recv, 1, 1) // 1-byte bound: every event seals its own segment

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- in.Run(ctx) }()

	assert.NoError(t, in.Push(ctx, connEvent(0)))

	assert.Eventually(t, func() bool { return recv.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Waiting, stateOf(t, ctx, in))

	sent := recv.lastSent()
	in.Ack(sent.ID)

	assert.Eventually(t, func() bool { return stateOf(t, ctx, in) == Ready }, time.Second, 5*time.Millisecond)
}

func TestIngestorBacklogPausesSending(t *testing.T) {
	dir := t.TempDir()
	recv := &fakeReceiver{}
	in := New(dir, recv, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	in.SetBacklog(true)
	assert.Eventually(t, func() bool { return stateOf(t, ctx, in) == Paused }, time.Second, 5*time.Millisecond)

	assert.NoError(t, in.Push(ctx, connEvent(0)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, recv.count(), "paused ingestor must not send")

	in.SetBacklog(false)
	assert.Eventually(t, func() bool { return recv.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestShutdownWithEmptyBufferExitsImmediately(t *testing.T) {
	dir := t.TempDir()
	recv := &fakeReceiver{}
	in := New(dir, recv, 1000, 1<<30)

	ctx := context.Background()
	runErr := make(chan error, 1)
	go func() { runErr <- in.Run(ctx) }()

	in.Shutdown(nil)
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ingestor did not shut down")
	}
}

func TestAckAgainstWrongHeadIsAProtocolViolation(t *testing.T) {
	dir := t.TempDir()
	recv := &fakeReceiver{}
	in := New(dir, recv, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	assert.NoError(t, in.Push(ctx, connEvent(0)))
	assert.Eventually(t, func() bool { return recv.count() == 1 }, time.Second, 5*time.Millisecond)

	in.Ack(uuid.New()) // not the head: must be rejected, buffer untouched
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Waiting, stateOf(t, ctx, in), "bogus ack must not pop the buffer")

	in.Ack(recv.lastSent().ID)
	assert.Eventually(t, func() bool { return stateOf(t, ctx, in) == Ready }, time.Second, 5*time.Millisecond)
}

// TestShutdownPersistsUnackedSegmentsAndRestartReplaysThem drives the full
// durability loop: a receiver that never acks forces the grace period to
// elapse and every buffered segment to land in the ingest directory; a
// fresh ingestor over the same directory then replays each orphan, gets it
// acked, and unlinks its file.
func TestShutdownPersistsUnackedSegmentsAndRestartReplaysThem(t *testing.T) {
	dir := t.TempDir()
	recv := &fakeReceiver{fail: true}
	in := New(dir, recv, 1, 1)
	in.grace = 50 * time.Millisecond

	ctx := context.Background()
	runErr := make(chan error, 1)
	go func() { runErr <- in.Run(ctx) }()

	for i := uint64(0); i < 3; i++ {
		assert.NoError(t, in.Push(ctx, connEvent(i)))
	}
	in.Shutdown(nil)

	select {
	case err := <-runErr:
		assert.Error(t, err, "forced persist exits with error")
	case <-time.After(2 * time.Second):
		t.Fatal("ingestor did not exit after grace period")
	}

	entries, err := os.ReadDir(in.dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 3, "every unacked segment is persisted")

	recv2 := &fakeReceiver{}
	in2 := New(dir, recv2, 1, 1)
	ctx2, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in2.Run(ctx2)

	in2.SubmitOrphans()
	for i := 0; i < 3; i++ {
		assert.Eventually(t, func() bool { return recv2.count() == i+1 }, time.Second, 5*time.Millisecond)
		in2.Ack(recv2.lastSent().ID)
	}
	assert.Eventually(t, func() bool {
		left, err := os.ReadDir(in2.dir)
		return err == nil && len(left) == 0
	}, time.Second, 5*time.Millisecond, "acked orphan files are unlinked")
}

type sliceSource struct {
	events []value.Event
	pos    int
}

func (s *sliceSource) Next(ctx context.Context) (value.Event, error) {
	if s.pos >= len(s.events) {
		return value.Event{}, verrors.EndOfInput
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

func TestIngestRejectsUnknownSourceKind(t *testing.T) {
	dir := t.TempDir()
	in := New(dir, &fakeReceiver{}, 1, 1)
	err := in.Ingest(context.Background(), "no-such-kind", "input")
	assert.ErrorIs(t, err, verrors.ProtocolViolation)
}

func TestDrainPumpsSourceDry(t *testing.T) {
	dir := t.TempDir()
	recv := &fakeReceiver{}
	in := New(dir, recv, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go in.Run(ctx)

	src := &sliceSource{events: []value.Event{connEvent(0)}}
	assert.NoError(t, in.Drain(ctx, src))
	assert.Eventually(t, func() bool { return recv.count() == 1 }, time.Second, 5*time.Millisecond)
}
