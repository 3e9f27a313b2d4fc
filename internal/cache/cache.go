// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache provides an LRU cache for completed answers.
//
// The cache is an explicit component with a process lifetime: it is
// constructed once at startup and passed by reference into the ask
// pipeline, never reached through global state. Only context-free
// questions (those asked without a conversation) are cached, since an
// answer given mid-conversation depends on the history that preceded it.
package cache

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// ANSWER CACHE
// =============================================================================

// Entry is one cached answer. Answer holds the backend's raw text so a
// hit can be segmented exactly like a fresh completion.
type Entry struct {
	Answer     string
	TokensUsed int
	ModelUsed  string
	CachedAt   time.Time
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits       int
	Misses     int
	EntryCount int
	MaxEntries int
	HitRate    float64
}

// AnswerCache is a mutex-guarded LRU cache keyed by normalized question
// text.
type AnswerCache struct {
	mu          sync.Mutex
	entries     map[string]*Entry
	accessOrder []string // least recently used first
	maxEntries  int
	ttl         time.Duration

	hits   int
	misses int
}

// New creates an answer cache. maxEntries <= 0 defaults to 256; ttl <= 0
// means entries never expire.
func New(maxEntries int, ttl time.Duration) *AnswerCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &AnswerCache{
		entries:     make(map[string]*Entry),
		accessOrder: make([]string, 0, maxEntries),
		maxEntries:  maxEntries,
		ttl:         ttl,
	}
}

// Key normalizes a question for cache lookup: trimmed, lower-cased,
// inner whitespace collapsed.
func Key(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

// Get returns the cached entry for a question, if present and fresh.
func (c *AnswerCache) Get(question string) (*Entry, bool) {
	key := Key(question)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.ttl > 0 && time.Since(entry.CachedAt) > c.ttl {
		c.removeLocked(key)
		c.misses++
		return nil, false
	}

	c.touchLocked(key)
	c.hits++
	return entry, true
}

// Put stores an answer, evicting the least recently used entry when the
// cache is full.
func (c *AnswerCache) Put(question string, entry Entry) {
	key := Key(question)
	if key == "" {
		return
	}
	entry.CachedAt = time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = &entry
		c.touchLocked(key)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.accessOrder) > 0 {
		c.removeLocked(c.accessOrder[0])
	}

	c.entries[key] = &entry
	c.accessOrder = append(c.accessOrder, key)
}

// Clear discards all entries, keeping the hit/miss counters.
func (c *AnswerCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	c.accessOrder = c.accessOrder[:0]
}

// GetStats returns a snapshot of cache effectiveness.
func (c *AnswerCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Hits:       c.hits,
		Misses:     c.misses,
		EntryCount: len(c.entries),
		MaxEntries: c.maxEntries,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

func (c *AnswerCache) touchLocked(key string) {
	for i, k := range c.accessOrder {
		if k == key {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			break
		}
	}
	c.accessOrder = append(c.accessOrder, key)
}

func (c *AnswerCache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.accessOrder {
		if k == key {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			break
		}
	}
}
