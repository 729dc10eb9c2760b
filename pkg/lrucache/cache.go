// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lrucache memoizes query results against a data set that only
// ever grows. Every cached entry is stamped with the revision of the data
// it was computed from (for a partition: the indexer write cursor); a hit
// requires both the key and the revision to match, so an append
// invalidates every prior result without any explicit flush call. Memory
// is bounded: least-recently-used entries fall off once the configured
// budget is exceeded.
package lrucache

import (
	"container/list"
	"sync"
)

// Cache is a size-bounded, revision-checked memoization table. The zero
// value is not usable; construct with New.
type Cache[V any] struct {
	mu        sync.Mutex
	maxMemory int
	usedSize  int
	order     *list.List // front = most recently used
	entries   map[string]*list.Element
	pending   map[string]chan struct{}
}

type entry[V any] struct {
	key   string
	rev   uint64
	value V
	size  int
}

// New returns a Cache holding at most maxMemory bytes of cached values,
// as reported by the size estimates handed to Get.
func New[V any](maxMemory int) *Cache[V] {
	if maxMemory <= 0 {
		panic("lrucache: maxMemory must be positive")
	}
	return &Cache[V]{
		maxMemory: maxMemory,
		order:     list.New(),
		entries:   map[string]*list.Element{},
		pending:   map[string]chan struct{}{},
	}
}

// Get returns the value cached under key at revision rev, computing and
// storing it via compute on a miss. An entry cached at any other revision
// counts as a miss and is replaced. Concurrent Gets for the same key
// compute once: later callers block until the first compute finishes,
// then re-check the table. compute reports the value and an estimate of
// its size in bytes.
func (c *Cache[V]) Get(key string, rev uint64, compute func() (V, int)) V {
	c.mu.Lock()
	for {
		if el, ok := c.entries[key]; ok {
			e := el.Value.(*entry[V])
			if e.rev == rev {
				c.order.MoveToFront(el)
				v := e.value
				c.mu.Unlock()
				return v
			}
			// Stale revision: the data grew underneath this result.
			c.removeLocked(el)
		}
		wait, computing := c.pending[key]
		if !computing {
			break
		}
		c.mu.Unlock()
		<-wait
		c.mu.Lock()
	}

	done := make(chan struct{})
	c.pending[key] = done
	c.mu.Unlock()

	value, size := compute()

	c.mu.Lock()
	delete(c.pending, key)
	close(done)
	c.insertLocked(&entry[V]{key: key, rev: rev, value: value, size: size})
	c.mu.Unlock()
	return value
}

// Len reports the number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Size reports the summed size estimates of all cached entries.
func (c *Cache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedSize
}

func (c *Cache[V]) insertLocked(e *entry[V]) {
	if e.size > c.maxMemory {
		return // larger than the whole budget, not worth caching
	}
	if old, ok := c.entries[e.key]; ok {
		c.removeLocked(old)
	}
	c.entries[e.key] = c.order.PushFront(e)
	c.usedSize += e.size
	for c.usedSize > c.maxMemory {
		c.removeLocked(c.order.Back())
	}
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[V])
	c.order.Remove(el)
	delete(c.entries, e.key)
	c.usedSize -= e.size
}
