package http

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/nirmalnpatel111/new-discord-bot/internal/clock"
)

// defaultDedupTTL is how long a message ID is remembered. Chat platforms
// retry webhook deliveries for a few minutes at most, so anything seen
// again after this window is treated as a new message.
const defaultDedupTTL = 10 * time.Minute

// dedupCache remembers recently seen message IDs so webhook retries do not
// start or stop sessions twice. IDs are stored as xxhash digests, which
// keeps the map compact and avoids holding raw platform IDs in memory.
type dedupCache struct {
	ttl   time.Duration
	clock clock.Clock

	mu   sync.Mutex
	seen map[uint64]time.Time
}

func newDedupCache(ttl time.Duration, clk clock.Clock) *dedupCache {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &dedupCache{
		ttl:   ttl,
		clock: clk,
		seen:  make(map[uint64]time.Time),
	}
}

// Seen records the message ID and reports whether it was already present
// within the TTL window. Expired entries are pruned on each call, which is
// cheap at webhook rates.
func (c *dedupCache) Seen(messageID string) bool {
	key := xxhash.Sum64String(messageID)
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, at := range c.seen {
		if now.Sub(at) > c.ttl {
			delete(c.seen, k)
		}
	}

	if at, ok := c.seen[key]; ok && now.Sub(at) <= c.ttl {
		return true
	}
	c.seen[key] = now
	return false
}

// Size returns the number of remembered IDs. Used by the health check.
func (c *dedupCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
