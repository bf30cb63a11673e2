// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

// Package cache provides the insights cache: a thread-safe in-memory
// key/payload store with per-entry TTL, lazy expiry on read, prefix
// invalidation and request coalescing (see Flight).
//
// The cache is a performance layer, not a correctness dependency; callers
// must treat any miss (absent, expired, or invalidated) identically.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/meshkit/affinity/internal/metrics"
)

// Entry is an immutable cached payload with expiration. A refresh writes
// a new Entry; entries are never mutated in place.
type Entry struct {
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Cache is a thread-safe in-memory TTL cache.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	maxEntries int

	statsMu sync.Mutex
	stats   Stats

	// nowFn is replaceable in tests to simulate time passing.
	nowFn func() time.Time
}

// Stats is a snapshot of the cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	LastSweep time.Time
}

// New creates a cache. maxEntries bounds growth: a write at capacity
// first sweeps expired entries and, when all are still fresh, evicts
// the entry closest to expiry to make room.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &Cache{
		entries:    make(map[string]Entry),
		maxEntries: maxEntries,
		nowFn:      time.Now,
	}
}

// Get retrieves the payload for key. An entry past its expiry behaves
// identically to a miss and is lazily evicted.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	ns := Namespace(key)

	if !exists {
		c.recordMiss(ns)
		return nil, false
	}

	if c.nowFn().After(entry.ExpiresAt) {
		c.mu.Lock()
		// Re-check under the write lock: a fresh entry may have replaced
		// the expired one between the RUnlock and here.
		if cur, ok := c.entries[key]; ok && cur.CreatedAt.Equal(entry.CreatedAt) {
			delete(c.entries, key)
			c.recordEviction(1)
		}
		c.mu.Unlock()
		c.recordMiss(ns)
		return nil, false
	}

	c.recordHit(ns)
	return entry.Payload, true
}

// Set stores payload under key with the given TTL. A non-positive TTL is
// rejected silently; expires_at must always be after created_at.
func (c *Cache) Set(key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	now := c.nowFn()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries && c.sweepLocked(now) == 0 {
		c.evictSoonestLocked()
	}

	c.entries[key] = Entry{
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
}

// Invalidate removes the entry for key. Safe to call for absent keys.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	_, existed := c.entries[key]
	delete(c.entries, key)
	metrics.CacheEntries.Set(float64(len(c.entries)))
	c.mu.Unlock()

	if existed {
		c.recordEviction(1)
	}
}

// InvalidatePrefix removes all entries whose key starts with prefix,
// e.g. clearing every insight type for one requester after an entity
// mutation. Returns the number of entries removed.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
	c.mu.Unlock()

	if removed > 0 {
		c.recordEviction(int64(removed))
	}
	return removed
}

// Sweep removes all expired entries. Correctness does not depend on it
// (expiry is lazy on read); the janitor service calls it periodically
// for memory hygiene.
func (c *Cache) Sweep() int {
	now := c.nowFn()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

// sweepLocked removes expired entries. Must be called with mu held.
func (c *Cache) sweepLocked(now time.Time) int {
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	c.statsMu.Lock()
	c.stats.Evictions += int64(removed)
	c.stats.LastSweep = now
	c.statsMu.Unlock()

	metrics.CacheEntries.Set(float64(len(c.entries)))
	metrics.CacheEvictions.Add(float64(removed))
	return removed
}

// evictSoonestLocked removes the entry closest to expiry so a write at
// capacity never grows the map. Must be called with mu held.
func (c *Cache) evictSoonestLocked() {
	victim := ""
	found := false
	var soonest time.Time
	for key, entry := range c.entries {
		if !found || entry.ExpiresAt.Before(soonest) {
			victim = key
			soonest = entry.ExpiresAt
			found = true
		}
	}
	if !found {
		return
	}

	delete(c.entries, victim)
	c.recordEviction(1)
}

// Len returns the current number of entries, including not-yet-swept
// expired ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Cache) recordHit(ns string) {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
	metrics.CacheHits.WithLabelValues(ns).Inc()
}

func (c *Cache) recordMiss(ns string) {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
	metrics.CacheMisses.WithLabelValues(ns).Inc()
}

func (c *Cache) recordEviction(n int64) {
	c.statsMu.Lock()
	c.stats.Evictions += n
	c.statsMu.Unlock()
	metrics.CacheEvictions.Add(float64(n))
}

// Namespace extracts the key namespace (the segment before the first
// colon) for metric labels, e.g. "insight" from "insight:trend:u1" or
// "connection" from "connection:u1".
func Namespace(key string) string {
	if idx := strings.Index(key, ":"); idx > 0 {
		return key[:idx]
	}
	return key
}
