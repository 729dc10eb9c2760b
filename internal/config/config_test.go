// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"dir": "/var/lib/vast"}`), 0o644))

	keys, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/vast", keys.Dir)
	assert.Equal(t, "vast", keys.ID)
	assert.Equal(t, 512, keys.BatchSize)
	assert.Equal(t, 10*time.Second, keys.TelemetryRate())
	assert.Nil(t, keys.Nats)
}

func TestParseRejectsMissingDir(t *testing.T) {
	_, err := Parse([]byte(`{"id": "node-1"}`))
	assert.Error(t, err)
}

func TestParseRejectsOutOfRangeKnobs(t *testing.T) {
	_, err := Parse([]byte(`{"dir": "/tmp/x", "batch-size": 0}`))
	assert.Error(t, err)
}

func TestParseNatsRequiresAddress(t *testing.T) {
	_, err := Parse([]byte(`{"dir": "/tmp/x", "nats": {"username": "u"}}`))
	assert.Error(t, err)

	keys, err := Parse([]byte(`{"dir": "/tmp/x", "nats": {"address": "nats://localhost:4222"}}`))
	require.NoError(t, err)
	require.NotNil(t, keys.Nats)
	assert.Equal(t, "nats://localhost:4222", keys.Nats.Address)
}
