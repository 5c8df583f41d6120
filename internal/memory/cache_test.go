package memory

import (
	"fmt"
	"testing"
	"time"
)

func TestSummaryCacheHitAndExpiry(t *testing.T) {
	cache := NewSummaryCache(10*time.Minute, 8)
	current := time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	cache.Set("chat-1:10", "cached summary")
	if got, ok := cache.Get("chat-1:10"); !ok || got != "cached summary" {
		t.Fatalf("expected hit, got %q ok=%v", got, ok)
	}

	current = current.Add(5 * time.Minute)
	if _, ok := cache.Get("chat-1:10"); !ok {
		t.Fatal("entry should survive within TTL")
	}

	current = current.Add(6 * time.Minute)
	if _, ok := cache.Get("chat-1:10"); ok {
		t.Fatal("entry should expire past TTL")
	}
	if cache.Len() != 0 {
		t.Fatalf("expired entry not dropped, len=%d", cache.Len())
	}
}

func TestSummaryCacheMiss(t *testing.T) {
	cache := NewSummaryCache(time.Minute, 8)
	if _, ok := cache.Get("missing"); ok {
		t.Fatal("unexpected hit")
	}
}

func TestSummaryCacheEvictsOldest(t *testing.T) {
	cache := NewSummaryCache(time.Hour, 3)
	current := time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), "value")
		current = current.Add(time.Second)
	}
	cache.Set("key-3", "value")

	if cache.Len() != 3 {
		t.Fatalf("expected bounded size 3, got %d", cache.Len())
	}
	if _, ok := cache.Get("key-0"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := cache.Get("key-3"); !ok {
		t.Fatal("newest entry should be present")
	}
}

func TestSummaryCacheReset(t *testing.T) {
	cache := NewSummaryCache(time.Minute, 8)
	cache.Set("a", "1")
	cache.Set("b", "2")
	cache.Reset()
	if cache.Len() != 0 {
		t.Fatalf("reset left %d entries", cache.Len())
	}
}
