// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestGetMiss(t *testing.T) {
	c := New(4, 0)

	if _, ok := c.Get("what is a slice"); ok {
		t.Fatal("expected miss on empty cache")
	}

	stats := c.GetStats()
	if stats.Misses != 1 || stats.Hits != 0 {
		t.Errorf("stats = %+v, want 1 miss 0 hits", stats)
	}
}

func TestPutGet(t *testing.T) {
	c := New(4, 0)
	c.Put("What is a slice?", Entry{Answer: "a view over an array", TokensUsed: 12, ModelUsed: "mock"})

	entry, ok := c.Get("What is a slice?")
	if !ok {
		t.Fatal("expected hit")
	}
	if entry.Answer != "a view over an array" {
		t.Errorf("Answer = %q", entry.Answer)
	}
	if entry.TokensUsed != 12 || entry.ModelUsed != "mock" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestKeyNormalization(t *testing.T) {
	c := New(4, 0)
	c.Put("What is   a slice?", Entry{Answer: "ans"})

	if _, ok := c.Get("  what IS a   slice?  "); !ok {
		t.Error("expected normalized lookup to hit")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(2, 0)
	c.Put("q1", Entry{Answer: "a1"})
	c.Put("q2", Entry{Answer: "a2"})

	// Touch q1 so q2 becomes the eviction candidate.
	if _, ok := c.Get("q1"); !ok {
		t.Fatal("q1 should be present")
	}

	c.Put("q3", Entry{Answer: "a3"})

	if _, ok := c.Get("q2"); ok {
		t.Error("q2 should have been evicted")
	}
	if _, ok := c.Get("q1"); !ok {
		t.Error("q1 should have survived")
	}
	if _, ok := c.Get("q3"); !ok {
		t.Error("q3 should be present")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(4, time.Millisecond)
	c.Put("q", Entry{Answer: "a"})
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("q"); ok {
		t.Error("expected entry to expire")
	}
	if c.GetStats().EntryCount != 0 {
		t.Error("expired entry should be removed")
	}
}

func TestClear(t *testing.T) {
	c := New(4, 0)
	c.Put("q", Entry{Answer: "a"})
	c.Clear()

	if _, ok := c.Get("q"); ok {
		t.Error("expected miss after Clear")
	}
	if n := c.GetStats().EntryCount; n != 0 {
		t.Errorf("EntryCount = %d after Clear", n)
	}
}

func TestHitRate(t *testing.T) {
	c := New(4, 0)
	c.Put("q", Entry{Answer: "a"})
	c.Get("q")
	c.Get("missing")

	stats := c.GetStats()
	if stats.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", stats.HitRate)
	}
}

func TestEvictionUnderFill(t *testing.T) {
	c := New(8, 0)
	for i := 0; i < 100; i++ {
		c.Put(fmt.Sprintf("question %d", i), Entry{Answer: "a"})
	}
	if n := c.GetStats().EntryCount; n != 8 {
		t.Errorf("EntryCount = %d, want 8", n)
	}
}
