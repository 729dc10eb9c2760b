// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lrucache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetComputesOnceAtSameRevision(t *testing.T) {
	c := New[string](100)

	calls := 0
	compute := func() (string, int) {
		calls++
		return "bar", 3
	}

	assert.Equal(t, "bar", c.Get("foo", 1, compute))
	assert.Equal(t, "bar", c.Get("foo", 1, compute))
	assert.Equal(t, 1, calls, "second get at the same revision must hit")
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 3, c.Size())
}

func TestRevisionChangeInvalidates(t *testing.T) {
	c := New[int](100)

	v := c.Get("k", 1, func() (int, int) { return 10, 1 })
	assert.Equal(t, 10, v)

	v = c.Get("k", 2, func() (int, int) { return 20, 1 })
	assert.Equal(t, 20, v, "a new revision must recompute")

	v = c.Get("k", 2, func() (int, int) {
		t.Error("revision 2 should be cached now")
		return 0, 0
	})
	assert.Equal(t, 20, v)

	v = c.Get("k", 1, func() (int, int) { return 11, 1 })
	assert.Equal(t, 11, v, "the old revision was replaced, not kept alongside")
	assert.Equal(t, 1, c.Len())
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string](10)

	c.Get("a", 1, func() (string, int) { return "a", 4 })
	c.Get("b", 1, func() (string, int) { return "b", 4 })

	// Touch "a" so "b" is the eviction candidate.
	c.Get("a", 1, func() (string, int) {
		t.Error("a should still be cached")
		return "", 0
	})

	c.Get("c", 1, func() (string, int) { return "c", 4 })
	assert.Equal(t, 2, c.Len())
	assert.LessOrEqual(t, c.Size(), 10)

	recomputed := false
	c.Get("b", 1, func() (string, int) {
		recomputed = true
		return "b", 4
	})
	assert.True(t, recomputed, "b was least recently used and must be gone")
}

func TestOversizedValueIsNotCached(t *testing.T) {
	c := New[string](5)
	c.Get("big", 1, func() (string, int) { return "x", 50 })
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Size())
}

func TestConcurrentGetsComputeOnce(t *testing.T) {
	c := New[int](100)

	var calls atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := c.Get("k", 7, func() (int, int) {
				calls.Add(1)
				return 42, 1
			})
			assert.Equal(t, 42, v)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}
