package http

import (
	"testing"
	"time"

	"github.com/nirmalnpatel111/new-discord-bot/internal/clock"
)

func TestDedupCache_SeenWithinTTL(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	cache := newDedupCache(10*time.Minute, clk)

	if cache.Seen("m1") {
		t.Error("first sighting must not be a duplicate")
	}
	if !cache.Seen("m1") {
		t.Error("second sighting must be a duplicate")
	}
	if cache.Seen("m2") {
		t.Error("different ID must not be a duplicate")
	}
}

func TestDedupCache_ExpiresAfterTTL(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	cache := newDedupCache(10*time.Minute, clk)

	cache.Seen("m1")
	clk.Advance(11 * time.Minute)

	if cache.Seen("m1") {
		t.Error("sighting after TTL must not be a duplicate")
	}
}

func TestDedupCache_PrunesExpiredEntries(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	cache := newDedupCache(10*time.Minute, clk)

	for _, id := range []string{"a", "b", "c"} {
		cache.Seen(id)
	}
	clk.Advance(11 * time.Minute)
	cache.Seen("d")

	if got := cache.Size(); got != 1 {
		t.Errorf("expected expired entries pruned, size = %d", got)
	}
}
