// Copyright 2025 The blobwagon Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache keeps object metadata close to the wagon so repeated
// existence checks and stats do not reach the remote service.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

// DefaultTTL bounds how long a cached stat is trusted
const DefaultTTL = 30 * time.Second

// Entry is a cached stat result. Exists is false for cached misses; Info
// may be nil when only existence is known.
type Entry struct {
	Exists bool            `json:"exists"`
	Info   *sdk.ObjectInfo `json:"info,omitempty"`
}

// StatCache stores stat results by key
type StatCache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Invalidate(ctx context.Context, key string) error
}

// CacheEntry is a value with an expiry
type CacheEntry[T any] struct {
	Value     T
	ExpiresAt time.Time
}

// IsExpired reports whether the entry is past its expiry at now
func (e *CacheEntry[T]) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Stats tracks cache effectiveness
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// MemoryStatCache is a process-local StatCache with a fixed TTL
type MemoryStatCache struct {
	entries map[string]*CacheEntry[Entry]
	ttl     time.Duration
	now     func() time.Time
	stats   Stats
	mu      sync.RWMutex
}

// NewMemoryStatCache creates a cache; a non-positive ttl selects DefaultTTL
func NewMemoryStatCache(ttl time.Duration) *MemoryStatCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStatCache{
		entries: make(map[string]*CacheEntry[Entry]),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryStatCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.IsExpired(c.now()) {
		c.stats.Misses++
		return nil, false, nil
	}
	c.stats.Hits++
	v := e.Value
	return &v, true, nil
}

func (c *MemoryStatCache) Set(_ context.Context, key string, entry *Entry) error {
	if entry == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &CacheEntry[Entry]{Value: *entry, ExpiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryStatCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.stats.Evictions++
	}
	return nil
}

// Cleanup removes expired entries and returns how many were dropped
func (c *MemoryStatCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for key, e := range c.entries {
		if e.IsExpired(now) {
			delete(c.entries, key)
			evicted++
		}
	}
	c.stats.Evictions += int64(evicted)
	return evicted
}

// Stats returns a copy of the counters
func (c *MemoryStatCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Len returns the number of entries, expired or not
func (c *MemoryStatCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ StatCache = (*MemoryStatCache)(nil)
