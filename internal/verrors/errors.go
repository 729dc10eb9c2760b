// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package verrors defines the closed set of error kinds that cross
// component boundaries in this system. Every package that can fail in
// a way a caller needs to distinguish wraps one of these sentinels with
// fmt.Errorf("...: %w", ...) rather than inventing its own error type, so a
// single errors.Is check at any boundary (CLI, RPC, log line) classifies
// the failure.
package verrors

import "errors"

var (
	// FilesystemError wraps failures reading, writing, or renaming files
	// that back segments, partitions, and indexers on disk.
	FilesystemError = errors.New("filesystem error")

	// SchemaMismatch is returned when two event types claim the same
	// field path with incompatible tags, or when a query predicate names
	// a field whose type disagrees with the indexer it would run
	// against.
	SchemaMismatch = errors.New("schema mismatch")

	// UnsupportedOperator is returned when a predicate's relational
	// operator cannot be evaluated against the value kind it is paired
	// with (e.g. ordering a record).
	UnsupportedOperator = errors.New("unsupported operator")

	// ProtocolViolation is returned when a peer (ingestor source,
	// receiver, or mailbox transport) sends a message outside the
	// expected state-machine sequence.
	ProtocolViolation = errors.New("protocol violation")

	// ParseError is returned by wire/config decoders on malformed input.
	ParseError = errors.New("parse error")

	// EndOfInput is returned by sources and readers to signal a clean
	// exhaustion of their input, distinct from FilesystemError.
	EndOfInput = errors.New("end of input")
)
