package travel

import (
	"container/list"
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fieldroute/fieldroute/internal/geo"
)

// Store is an optional second-level backing store for cached travel times
// (Redis, Postgres). A miss is reported via ok=false, not an error.
type Store interface {
	// Get returns the cached minutes for a pair key.
	Get(ctx context.Context, key string) (minutes int, ok bool, err error)
	// Put records the minutes for a pair key. Best effort.
	Put(ctx context.Context, key string, minutes int) error
}

const cacheShards = 16

// CacheConfig holds configuration for the caching estimator.
type CacheConfig struct {
	// Inner is the estimator consulted on a miss (required).
	Inner Estimator

	// Capacity is the total number of cached pairs across all shards.
	// Default: 100_000.
	Capacity int

	// Store is an optional second-level store consulted between the
	// in-memory cache and the inner estimator.
	Store Store

	// Logger for cache operations.
	Logger zerolog.Logger
}

// Cache is a process-wide travel-time cache keyed by unordered point pairs.
// Lookups and writes take a per-shard lock; a hit moves the entry to the
// front of its shard's recency list. Entries are evicted LRU per shard. Cache implements Estimator and is safe for
// concurrent use across planning requests.
type Cache struct {
	inner    Estimator
	store    Store
	logger   zerolog.Logger
	capacity int

	shards [cacheShards]*cacheShard

	statsMu sync.Mutex
	hits    uint64
	misses  uint64
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	max     int
}

type cacheEntry struct {
	key     string
	minutes int
}

// NewCache creates a caching estimator around the given inner oracle.
func NewCache(cfg CacheConfig) *Cache {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 100_000
	}
	perShard := capacity / cacheShards
	if perShard < 1 {
		perShard = 1
	}

	c := &Cache{
		inner:    cfg.Inner,
		store:    cfg.Store,
		logger:   cfg.Logger,
		capacity: capacity,
	}
	for i := range c.shards {
		c.shards[i] = &cacheShard{
			entries: make(map[string]*list.Element),
			order:   list.New(),
			max:     perShard,
		}
	}
	return c
}

// Minutes implements Estimator. Pairs are cached symmetrically: the key for
// (a,b) equals the key for (b,a).
func (c *Cache) Minutes(ctx context.Context, from, to geo.Point) (int, error) {
	if from == to {
		return 0, nil
	}

	key := PairKey(from, to)
	shard := c.shardFor(key)

	shard.mu.Lock()
	if el, ok := shard.entries[key]; ok {
		shard.order.MoveToFront(el)
		minutes := el.Value.(*cacheEntry).minutes
		shard.mu.Unlock()
		c.recordHit()
		return minutes, nil
	}
	shard.mu.Unlock()
	c.recordMiss()

	if c.store != nil {
		minutes, ok, err := c.store.Get(ctx, key)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("travel store read failed")
		} else if ok {
			c.insert(shard, key, minutes)
			return minutes, nil
		}
	}

	minutes, err := c.inner.Minutes(ctx, from, to)
	if err != nil {
		return 0, err
	}

	c.insert(shard, key, minutes)
	if c.store != nil {
		if err := c.store.Put(ctx, key, minutes); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("travel store write failed")
		}
	}
	return minutes, nil
}

// Name implements Estimator.
func (c *Cache) Name() string { return c.inner.Name() + "+cache" }

// Len returns the number of cached pairs.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) insert(shard *cacheShard, key string, minutes int) {
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if el, ok := shard.entries[key]; ok {
		shard.order.MoveToFront(el)
		el.Value.(*cacheEntry).minutes = minutes
		return
	}

	shard.entries[key] = shard.order.PushFront(&cacheEntry{key: key, minutes: minutes})
	for shard.order.Len() > shard.max {
		oldest := shard.order.Back()
		if oldest == nil {
			break
		}
		shard.order.Remove(oldest)
		delete(shard.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *Cache) shardFor(key string) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%cacheShards]
}

func (c *Cache) recordHit() {
	c.statsMu.Lock()
	c.hits++
	c.statsMu.Unlock()
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.misses++
	c.statsMu.Unlock()
}

// PairKey returns the canonical cache key for an unordered point pair.
// Coordinates are rounded to 6 decimal places (~0.1 m), and the pair is
// ordered so that (a,b) and (b,a) share a key.
func PairKey(a, b geo.Point) string {
	if b.Lat < a.Lat || (b.Lat == a.Lat && b.Lon < a.Lon) {
		a, b = b, a
	}
	return fmt.Sprintf("%.6f,%.6f|%.6f,%.6f", a.Lat, a.Lon, b.Lat, b.Lon)
}
