// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package accountant

import (
	"bufio"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startAccountant(t *testing.T, dir string) (*Accountant, context.Context) {
	t.Helper()
	a := New(dir)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx)
	return a, ctx
}

func TestAccountantWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	a, ctx := startAccountant(t, dir)

	id := a.NextSenderID()
	a.Announce(id, "segmentizer")
	require.NoError(t, a.Record(ctx, id, KV{Key: "events.indexed", Value: int64(42)}))
	require.NoError(t, a.Flush(ctx))

	lines := readLines(t, a.path)
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, header, lines[0]+"\n")
	assert.Contains(t, lines[1], "segmentizer")
	assert.Contains(t, lines[1], "events.indexed")
	assert.Contains(t, lines[1], "42")
}

func TestAccountantRecordFormatsValueKinds(t *testing.T) {
	dir := t.TempDir()
	a, ctx := startAccountant(t, dir)

	id := a.NextSenderID()
	a.Announce(id, "ingestor")
	require.NoError(t, a.Record(ctx, id,
		KV{Key: "note", Value: "ok"},
		KV{Key: "latency", Value: 2500 * time.Microsecond},
		KV{Key: "seen_at", Value: time.UnixMicro(1_000_000)},
		KV{Key: "rate", Value: 3.14159265},
	))
	require.NoError(t, a.Flush(ctx))

	lines := readLines(t, a.path)
	body := strings.Join(lines[1:], "\n")
	assert.Contains(t, body, "note\tok")
	assert.Contains(t, body, "latency\t2500")
	assert.Contains(t, body, "seen_at\t1000000")
	assert.Contains(t, body, "rate\t3.14159")
}

func TestAccountantPerformanceReportExpandsThreeRowsPerEntry(t *testing.T) {
	dir := t.TempDir()
	a, ctx := startAccountant(t, dir)

	id := a.NextSenderID()
	a.Announce(id, "partition")
	require.NoError(t, a.PerformanceReport(ctx, id, PerfEntry{
		Key: "ingest", Events: 2_000_000, Duration: 2 * time.Second,
	}))
	require.NoError(t, a.Flush(ctx))

	lines := readLines(t, a.path)
	body := strings.Join(lines[1:], "\n")
	assert.Contains(t, body, "ingest.events\t2000000")
	assert.Contains(t, body, "ingest.duration\t2000000")
	assert.Contains(t, body, "ingest.rate\t1e+06")
}

func TestAccountantStatusReportsKnownActors(t *testing.T) {
	dir := t.TempDir()
	a, ctx := startAccountant(t, dir)

	id := a.NextSenderID()
	a.Announce(id, "ingestor")

	st, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, st.KnownActors["ingestor"])
	assert.False(t, st.FlushPending)

	require.NoError(t, a.Record(ctx, id, KV{Key: "x", Value: int64(1)}))
	st, err = a.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.FlushPending)

	a.Down(id)
	assert.Eventually(t, func() bool {
		st, _ := a.Status(ctx)
		_, ok := st.KnownActors["ingestor"]
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestAccountantRejectsUnsupportedValueType(t *testing.T) {
	dir := t.TempDir()
	a, ctx := startAccountant(t, dir)

	id := a.NextSenderID()
	require.NoError(t, a.Record(ctx, id, KV{Key: "bad", Value: struct{}{}}))
	require.NoError(t, a.Flush(ctx))

	lines := readLines(t, a.path)
	assert.Len(t, lines, 1, "unsupported value is dropped, not written")
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}
