// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

// Package cache provides the process-local typed application cache.
//
// Keys are a closed sum of shapes (see keys.go) and values are stored
// as-is; the cache is safe for concurrent readers and writers and expires
// entries lazily on read plus periodically via a background cleanup loop.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Entry represents a cached item with expiration.
type Entry struct {
	Data      any
	ExpiresAt time.Time
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	LastCleanup time.Time
}

// Cache is a thread-safe in-memory cache with per-entry TTL.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	defaultTTL time.Duration

	statsMu sync.Mutex
	stats   Stats

	stop chan struct{}
}

const cleanupInterval = 5 * time.Minute

// New creates a cache with the given default TTL and starts the
// background cleanup goroutine.
func New(defaultTTL time.Duration) *Cache {
	c := &Cache{
		entries:    make(map[string]Entry),
		defaultTTL: defaultTTL,
		stats:      Stats{LastCleanup: time.Now()},
		stop:       make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	close(c.stop)
}

// GetValue retrieves the value for a typed key. Expired entries count as
// misses and are removed.
func (c *Cache) GetValue(key Key) (any, bool) {
	k := key.String()

	c.mu.RLock()
	entry, exists := c.entries[k]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		c.mu.Lock()
		delete(c.entries, k)
		c.mu.Unlock()
		c.recordMiss()
		c.recordEviction()
		return nil, false
	}
	c.recordHit()
	return entry.Data, true
}

// SetKey stores a value under a typed key with the default TTL.
func (c *Cache) SetKey(key Key, value any) {
	c.SetKeyWithTTL(key, value, c.defaultTTL)
}

// SetKeyWithTTL stores a value with an explicit TTL.
func (c *Cache) SetKeyWithTTL(key Key, value any, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key.String()] = Entry{
		Data:      value,
		ExpiresAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()
}

// ExpireKey removes a single entry.
func (c *Cache) ExpireKey(key Key) {
	c.mu.Lock()
	delete(c.entries, key.String())
	c.mu.Unlock()
}

// ExpireByDiscriminant removes every entry of a key family for one user.
// Pass an empty user id for process-wide families.
func (c *Cache) ExpireByDiscriminant(d KeyDiscriminant, userID string) int {
	prefix := prefixForDiscriminant(d, userID)
	removed := 0
	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()
	return removed
}

// ExpireWhere removes every entry whose key matches the predicate. Used
// for cross-user invalidation (e.g. every UserMetadataDetails of one
// metadata id).
func (c *Cache) ExpireWhere(pred func(key string) bool) int {
	removed := 0
	c.mu.Lock()
	for k := range c.entries {
		if pred(k) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()
	return removed
}

// Len returns the current entry count, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetStats returns a snapshot of the counters.
func (c *Cache) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) cleanup() {
	now := time.Now()
	c.mu.Lock()
	for k, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, k)
			c.recordEvictionLocked()
		}
	}
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.LastCleanup = now
	c.statsMu.Unlock()
}

func (c *Cache) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}

func (c *Cache) recordEviction() {
	c.statsMu.Lock()
	c.stats.Evictions++
	c.statsMu.Unlock()
}

// recordEvictionLocked is used from cleanup where c.mu is already held;
// stats has its own lock so this is the same as recordEviction.
func (c *Cache) recordEvictionLocked() { c.recordEviction() }
