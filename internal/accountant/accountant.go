// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package accountant implements a single-writer, append-only,
// tab-separated telemetry log shared by every other component. Like
// internal/ingestor, the whole state machine runs on a single goroutine
// reading from an internal command channel, so the log file and the
// actor-name map are never touched from more than one goroutine.
package accountant

import (
	"bufio"
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/vast-io/vast/internal/verrors"
	"github.com/vast-io/vast/pkg/log"
)

// header is written exactly once, at byte 0, when the log file is created;
// reopening an existing log never rewrites it.
const header = "host\tpid\taid\tkey\tvalue\n"

// flushDelay bounds data loss on crash to at most this much unflushed
// telemetry.
const flushDelay = 10 * time.Second

// KV is one (key, value) telemetry sample. Value must be a string,
// time.Duration, time.Time, int64, uint64, or float64.
type KV struct {
	Key   string
	Value any
}

// PerfEntry is one performance sample: an event count over a duration,
// expanded by PerformanceReport into three rows.
type PerfEntry struct {
	Key      string
	Events   uint64
	Duration time.Duration
}

// Status is the snapshot returned by the Status query.
type Status struct {
	KnownActors  map[string]uint64
	LogPath      string
	FlushPending bool
}

type announceCmd struct {
	senderID uint64
	name     string
}

type recordCmd struct {
	senderID uint64
	entries  []KV
	errCh    chan error
}

type perfReportCmd struct {
	senderID uint64
	entries  []PerfEntry
	errCh    chan error
}

type downCmd struct{ senderID uint64 }

type flushCmd struct{ errCh chan error }

type statusCmd struct{ resp chan Status }

type shutdownCmd struct{}

// Accountant is the telemetry sink. Construct with New and drive it with
// Run in its own goroutine.
type Accountant struct {
	path string
	pid  int
	host uint64

	cmds chan any
	done chan struct{}

	// state owned exclusively by the Run goroutine
	file         *os.File
	writer       *bufio.Writer
	actorMap     map[uint64]string // sender id -> announced name
	flushPending bool

	nextSeq atomic.Uint64
}

// New returns an Accountant that writes to dir/accountant.log.
func New(dir string) *Accountant {
	return &Accountant{
		path:     filepath.Join(dir, "accountant.log"),
		pid:      os.Getpid(),
		host:     hostID(),
		cmds:     make(chan any, 64),
		done:     make(chan struct{}),
		actorMap: map[uint64]string{},
	}
}

// hostID renders a stable numeric identity for the local host, since the
// source's host_id is platform-specific bytes with no portable Go
// equivalent; an FNV-1a hash of the hostname gives the same "one stable
// decimal number per host" property the log format needs.
func hostID() uint64 {
	name, err := os.Hostname()
	if err != nil {
		name = "unknown"
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}

// NextSenderID hands out a sender identity for a caller to Announce and
// then tag every subsequent Record or PerformanceReport call with. This
// package has no actor runtime to assign an identity implicitly, so
// callers fetch one here.
func (a *Accountant) NextSenderID() uint64 {
	return a.nextSeq.Add(1)
}

// Announce records senderID -> name, the label every subsequent row for
// that sender will carry.
func (a *Accountant) Announce(senderID uint64, name string) {
	select {
	case a.cmds <- announceCmd{senderID: senderID, name: name}:
	case <-a.done:
	}
}

// Down tells the accountant a sender has gone away, so it is dropped from
// known-actors.
func (a *Accountant) Down(senderID uint64) {
	select {
	case a.cmds <- downCmd{senderID: senderID}:
	case <-a.done:
	}
}

// Record appends one row per entry.
func (a *Accountant) Record(ctx context.Context, senderID uint64, entries ...KV) error {
	errCh := make(chan error, 1)
	select {
	case a.cmds <- recordCmd{senderID: senderID, entries: entries, errCh: errCh}:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return fmt.Errorf("%w: accountant is shut down", verrors.ProtocolViolation)
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PerformanceReport appends three rows per entry, suffixed .events,
// .duration, and .rate.
func (a *Accountant) PerformanceReport(ctx context.Context, senderID uint64, entries ...PerfEntry) error {
	errCh := make(chan error, 1)
	select {
	case a.cmds <- perfReportCmd{senderID: senderID, entries: entries, errCh: errCh}:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return fmt.Errorf("%w: accountant is shut down", verrors.ProtocolViolation)
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush forces an immediate flush regardless of flushPending.
func (a *Accountant) Flush(ctx context.Context) error {
	errCh := make(chan error, 1)
	select {
	case a.cmds <- flushCmd{errCh: errCh}:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return fmt.Errorf("%w: accountant is shut down", verrors.ProtocolViolation)
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of known actors and file health.
func (a *Accountant) Status(ctx context.Context) (Status, error) {
	resp := make(chan Status, 1)
	select {
	case a.cmds <- statusCmd{resp: resp}:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-a.done:
		return Status{}, fmt.Errorf("%w: accountant is shut down", verrors.ProtocolViolation)
	}
	select {
	case s := <-resp:
		return s, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Shutdown flushes and closes the log file, then returns once Run exits.
func (a *Accountant) Shutdown() {
	select {
	case a.cmds <- shutdownCmd{}:
	case <-a.done:
	}
	<-a.done
}

// Run drives the accountant's state machine until Shutdown or ctx is
// canceled. It opens (creating if needed) the log file, writes the header
// if the file is new, and processes commands until told to stop.
func (a *Accountant) Run(ctx context.Context) error {
	defer close(a.done)

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}
	needsHeader := false
	if info, err := os.Stat(a.path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
		}
		needsHeader = true
	} else {
		needsHeader = info.Size() == 0
	}

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}
	a.file = f
	a.writer = bufio.NewWriter(f)
	defer a.file.Close()

	if needsHeader {
		if _, err := a.writer.WriteString(header); err != nil {
			return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
		}
		if err := a.writer.Flush(); err != nil {
			return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
		}
	}

	var flushTimer *time.Timer
	var flushTimerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			a.writer.Flush()
			return ctx.Err()

		case <-flushTimerCh:
			a.writer.Flush()
			a.flushPending = false
			flushTimerCh = nil

		case c := <-a.cmds:
			switch cmd := c.(type) {
			case announceCmd:
				a.actorMap[cmd.senderID] = cmd.name

			case downCmd:
				delete(a.actorMap, cmd.senderID)

			case recordCmd:
				err := a.writeRows(cmd.senderID, cmd.entries)
				if err == nil {
					a.armFlush(&flushTimer, &flushTimerCh)
				}
				cmd.errCh <- err

			case perfReportCmd:
				err := a.writePerfRows(cmd.senderID, cmd.entries)
				if err == nil {
					a.armFlush(&flushTimer, &flushTimerCh)
				}
				cmd.errCh <- err

			case flushCmd:
				err := a.writer.Flush()
				if err != nil {
					err = fmt.Errorf("%w: %v", verrors.FilesystemError, err)
				} else {
					a.flushPending = false
				}
				cmd.errCh <- err

			case statusCmd:
				known := make(map[string]uint64, len(a.actorMap))
				for id, name := range a.actorMap {
					known[name] = id
				}
				cmd.resp <- Status{KnownActors: known, LogPath: a.path, FlushPending: a.flushPending}

			case shutdownCmd:
				a.writer.Flush()
				if flushTimer != nil {
					flushTimer.Stop()
				}
				return nil
			}
		}
	}
}

// armFlush schedules a flush flushDelay from now if one isn't already
// pending, so every written row reaches disk within flushDelay of the
// write that produced it.
func (a *Accountant) armFlush(timer **time.Timer, timerCh *<-chan time.Time) {
	if a.flushPending {
		return
	}
	a.flushPending = true
	*timer = time.NewTimer(flushDelay)
	*timerCh = (*timer).C
}

func (a *Accountant) writeRows(senderID uint64, entries []KV) error {
	name := a.actorMap[senderID]
	for _, e := range entries {
		rendered, err := formatValue(e.Value)
		if err != nil {
			log.Warnf("accountant: dropping %q: %v", e.Key, err)
			continue
		}
		if err := a.writeRow(senderID, name, e.Key, rendered); err != nil {
			return err
		}
	}
	return nil
}

func (a *Accountant) writePerfRows(senderID uint64, entries []PerfEntry) error {
	name := a.actorMap[senderID]
	for _, e := range entries {
		rateUs := float64(0)
		if e.Duration > 0 {
			rateUs = float64(e.Events) * 1_000_000 / float64(e.Duration.Microseconds())
		}
		rows := []struct {
			suffix string
			value  string
		}{
			{".events", strconv.FormatUint(e.Events, 10)},
			{".duration", strconv.FormatInt(e.Duration.Microseconds(), 10)},
			{".rate", strconv.FormatFloat(rateUs, 'g', 6, 64)},
		}
		for _, row := range rows {
			if err := a.writeRow(senderID, name, e.Key+row.suffix, row.value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Accountant) writeRow(senderID uint64, name, key, value string) error {
	line := fmt.Sprintf("%d\t%d\t%d\t%s\t%s\t%s\n", a.host, a.pid, senderID, name, key, value)
	if _, err := a.writer.WriteString(line); err != nil {
		return fmt.Errorf("%w: %v", verrors.FilesystemError, err)
	}
	return nil
}

// formatValue renders v for the log: durations as integer microseconds,
// time-points as microseconds since the epoch, doubles to 6 significant
// digits.
func formatValue(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case time.Duration:
		return strconv.FormatInt(x.Microseconds(), 10), nil
	case time.Time:
		return strconv.FormatInt(x.UnixMicro(), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', 6, 64), nil
	default:
		return "", fmt.Errorf("accountant: unsupported value type %T", v)
	}
}
