package availability

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// DefaultTTL is how long a probe or call outcome is trusted before the
// model must be re-probed.
const DefaultTTL = 300 * time.Second

// Cache is a TTL-keyed store of last-known per-model health. Entries older
// than the TTL are treated as absent. Implementations must be safe for
// concurrent readers and writers; many consensus slots probe at once.
type Cache interface {
	// Get returns (available, true) for a live entry, (_, false) when the
	// entry is absent or expired.
	Get(ctx context.Context, modelID string) (bool, bool)
	// Set records the outcome of a probe or real call.
	Set(ctx context.Context, modelID string, available bool)
}

const shardCount = 16

type entry struct {
	available bool
	checkedAt time.Time
}

type shard struct {
	mu sync.RWMutex
	m  map[string]entry
}

// MemoryCache is the in-process backend: a sharded map keyed by model id.
// Reads and writes are single-key, so per-shard locking suffices.
type MemoryCache struct {
	shards [shardCount]*shard
	ttl    time.Duration
	now    func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &MemoryCache{ttl: ttl, now: time.Now}
	for i := range c.shards {
		c.shards[i] = &shard{m: make(map[string]entry)}
	}
	return c
}

func (c *MemoryCache) shardFor(modelID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(modelID))
	return c.shards[h.Sum32()%shardCount]
}

func (c *MemoryCache) Get(_ context.Context, modelID string) (bool, bool) {
	sh := c.shardFor(modelID)
	sh.mu.RLock()
	e, ok := sh.m[modelID]
	sh.mu.RUnlock()
	if !ok {
		return false, false
	}
	if c.now().Sub(e.checkedAt) > c.ttl {
		return false, false
	}
	return e.available, true
}

func (c *MemoryCache) Set(_ context.Context, modelID string, available bool) {
	sh := c.shardFor(modelID)
	sh.mu.Lock()
	sh.m[modelID] = entry{available: available, checkedAt: c.now()}
	sh.mu.Unlock()
}
