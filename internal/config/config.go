// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the node configuration. The raw JSON
// is checked against an embedded JSON Schema before unmarshaling, so a
// typo'd key or an out-of-range knob fails at startup instead of surfacing
// as a misbehaving component hours later.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/vast-io/vast/internal/verrors"
)

// Keys is the node configuration record.
type Keys struct {
	// ID names this node in logs and telemetry.
	ID string `json:"id"`

	// Dir is the root directory every component's on-disk state lives
	// under: <dir>/ingest/segments, <dir>/partitions/<uuid>, and the
	// accountant log.
	Dir string `json:"dir"`

	// BatchSize is how many events a partition forwards to its indexers
	// per batch.
	BatchSize int `json:"batch-size"`

	// MaxEventsPerChunk bounds a segment chunk by event count.
	MaxEventsPerChunk int `json:"max-events-per-chunk"`

	// MaxSegmentSize bounds a segment by serialized byte size.
	MaxSegmentSize int `json:"max-segment-size"`

	// TableSliceSize is the row count of the table slices sources hand
	// to the segmentizer.
	TableSliceSize int `json:"table-slice-size"`

	// TelemetryRateSeconds is how often components report performance
	// samples to the accountant.
	TelemetryRateSeconds int `json:"telemetry-rate-seconds"`

	// Nats, if present, connects the ingestor to an out-of-process
	// receiver instead of the in-process archive.
	Nats *NatsKeys `json:"nats,omitempty"`
}

// NatsKeys configures the optional NATS transport.
type NatsKeys struct {
	Address       string `json:"address"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	CredsFilePath string `json:"creds-file-path,omitempty"`
}

// TelemetryRate returns the telemetry reporting period.
func (k *Keys) TelemetryRate() time.Duration {
	return time.Duration(k.TelemetryRateSeconds) * time.Second
}

const schemaJSON = `{
    "type": "object",
    "properties": {
        "id": {
            "description": "Name of this node in logs and telemetry.",
            "type": "string"
        },
        "dir": {
            "description": "Root directory for all on-disk state.",
            "type": "string",
            "minLength": 1
        },
        "batch-size": {
            "description": "Events forwarded to indexers per batch.",
            "type": "integer",
            "minimum": 1
        },
        "max-events-per-chunk": {
            "description": "Event-count bound of one segment chunk.",
            "type": "integer",
            "minimum": 1
        },
        "max-segment-size": {
            "description": "Byte bound of one segment.",
            "type": "integer",
            "minimum": 1
        },
        "table-slice-size": {
            "description": "Row count of the table slices sources emit.",
            "type": "integer",
            "minimum": 1
        },
        "telemetry-rate-seconds": {
            "description": "Seconds between performance reports to the accountant.",
            "type": "integer",
            "minimum": 1
        },
        "nats": {
            "type": "object",
            "properties": {
                "address": { "type": "string" },
                "username": { "type": "string" },
                "password": { "type": "string" },
                "creds-file-path": { "type": "string" }
            },
            "additionalProperties": false,
            "required": ["address"]
        }
    },
    "additionalProperties": false,
    "required": ["dir"]
}`

func defaults() Keys {
	return Keys{
		ID:                   "vast",
		BatchSize:            512,
		MaxEventsPerChunk:    16384,
		MaxSegmentSize:       128 << 20,
		TableSliceSize:       100,
		TelemetryRateSeconds: 10,
	}
}

// Load reads, validates, and decodes the configuration file at path.
func Load(path string) (Keys, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Keys{}, fmt.Errorf("%w: read config %s: %v", verrors.FilesystemError, path, err)
	}
	return Parse(raw)
}

// Parse validates and decodes a raw JSON configuration.
func Parse(raw json.RawMessage) (Keys, error) {
	if err := Validate(schemaJSON, raw); err != nil {
		return Keys{}, err
	}
	keys := defaults()
	if err := json.Unmarshal(raw, &keys); err != nil {
		return Keys{}, fmt.Errorf("%w: %v", verrors.ParseError, err)
	}
	return keys, nil
}
