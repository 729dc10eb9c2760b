// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ingestor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vast-io/vast/internal/value"
	"github.com/vast-io/vast/internal/verrors"
)

// Source produces events one at a time. Next returns verrors.EndOfInput
// once the underlying input is exhausted; any other error aborts the
// ingest run.
type Source interface {
	Next(ctx context.Context) (value.Event, error)
}

// SourceFactory builds a Source from an opaque input description, usually
// a file path or address. The wire-format readers themselves live outside
// this module; they plug in through RegisterSource.
type SourceFactory func(input string) (Source, error)

var (
	sourcesMu sync.RWMutex
	sources   = map[string]SourceFactory{}
)

// RegisterSource makes a source kind available to Ingest. Registering the
// same kind twice is a programmer error and panics.
func RegisterSource(kind string, factory SourceFactory) {
	sourcesMu.Lock()
	defer sourcesMu.Unlock()
	if _, dup := sources[kind]; dup {
		panic(fmt.Sprintf("ingestor: source kind %q registered twice", kind))
	}
	sources[kind] = factory
}

func lookupSource(kind string) (SourceFactory, bool) {
	sourcesMu.RLock()
	defer sourcesMu.RUnlock()
	f, ok := sources[kind]
	return f, ok
}

// Ingest builds a Source of the named kind and pumps it dry through the
// segmentizer. An unknown kind is rejected rather than silently ignored.
func (in *Ingestor) Ingest(ctx context.Context, kind, input string) error {
	factory, ok := lookupSource(kind)
	if !ok {
		return fmt.Errorf("%w: unknown source kind %q", verrors.ProtocolViolation, kind)
	}
	src, err := factory(input)
	if err != nil {
		return err
	}
	return in.Drain(ctx, src)
}

// Drain pumps src until EndOfInput, pushing every event through the
// segmentizer.
func (in *Ingestor) Drain(ctx context.Context, src Source) error {
	for {
		e, err := src.Next(ctx)
		if errors.Is(err, verrors.EndOfInput) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := in.Push(ctx, e); err != nil {
			return err
		}
	}
}
