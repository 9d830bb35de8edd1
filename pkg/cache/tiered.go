package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// Cache is the two-operation contract every component consults at a stage
// boundary: get(key) -> payload|absent and put(key, payload, ttl), plus
// batch variants, prefix invalidation, and statistics. Errors never
// propagate out of get/put — callers always get a usable zero value.
type Cache struct {
	distributed           DistributedStore
	local                 *entryCache
	compressionThreshold  int

	hits                atomic.Int64
	misses              atomic.Int64
	errors              atomic.Int64
	memoryFallbacks     atomic.Int64
	compressions        atomic.Int64
	hitLatencyNanos     atomic.Int64
	hitLatencyCount     atomic.Int64
	missLatencyNanos    atomic.Int64
	missLatencyCount    atomic.Int64
}

// Options configures a new Cache.
type Options struct {
	// Distributed is the primary tier. If nil, every operation falls back
	// to the in-process tier immediately (equivalent to "distributed
	// backend unavailable", logged once by the caller).
	Distributed DistributedStore

	// LocalCapacity bounds the in-process tier (default DefaultLRUCapacity).
	LocalCapacity int

	// CompressionThreshold is the payload size above which entries are
	// compressed (default DefaultCompressionThreshold).
	CompressionThreshold int
}

// New builds a two-tier Cache from Options.
func New(opts Options) *Cache {
	threshold := opts.CompressionThreshold
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}

	return &Cache{
		distributed:          opts.Distributed,
		local:                newEntryCache(opts.LocalCapacity),
		compressionThreshold: threshold,
	}
}

// Get looks up key, trying the distributed tier first and falling back to
// the in-process tier on miss or failure. Cache errors never propagate: a
// failed read returns absent.
func (c *Cache) Get(ctx context.Context, key Key) ([]byte, bool) {
	start := time.Now()
	k := key.String()

	if c.distributed != nil {
		stored, found, err := c.distributed.Get(ctx, k)
		if err != nil {
			c.errors.Add(1)
			c.memoryFallbacks.Add(1)
		} else if found {
			payload, decodeErr := decodeCompressed(stored)
			if decodeErr != nil {
				c.errors.Add(1)
			} else {
				c.recordHit(start)

				return payload, true
			}
		}
	}

	if stored, ok := c.local.get(k, time.Now()); ok {
		payload, decodeErr := decodeCompressed(stored)
		if decodeErr != nil {
			c.errors.Add(1)
		} else {
			c.recordHit(start)

			return payload, true
		}
	}

	c.recordMiss(start)

	return nil, false
}

// Put stores payload under key with ttl. Every write attempts the
// distributed tier; on failure the in-process tier alone holds it. A
// failed write is counted, never returned as an error to the caller (cache
// errors are never fatal to the pipeline).
func (c *Cache) Put(ctx context.Context, key Key, payload []byte, ttl time.Duration) {
	k := key.String()

	stored, compressed, err := maybeCompress(payload, c.compressionThreshold)
	if err != nil {
		c.errors.Add(1)

		return
	}

	if compressed {
		c.compressions.Add(1)
	}

	if c.distributed != nil {
		if putErr := c.distributed.Put(ctx, k, stored, ttl); putErr == nil {
			return
		}

		c.errors.Add(1)
		c.memoryFallbacks.Add(1)
	}

	c.local.put(k, stored, ttl, time.Now())
}

// GetMulti is the batch variant of Get.
func (c *Cache) GetMulti(ctx context.Context, keys []Key) map[string][]byte {
	results := make(map[string][]byte, len(keys))

	for _, key := range keys {
		if payload, ok := c.Get(ctx, key); ok {
			results[key.String()] = payload
		}
	}

	return results
}

// PutMulti is the batch variant of Put; every entry shares ttl.
func (c *Cache) PutMulti(ctx context.Context, entries map[Key][]byte, ttl time.Duration) {
	for key, payload := range entries {
		c.Put(ctx, key, payload, ttl)
	}
}

// InvalidateRepo deletes every key whose normalized-repo segment matches
// repoURL, across both tiers.
func (c *Cache) InvalidateRepo(ctx context.Context, repoURL string) int {
	prefix := PrefixForRepo(repoURL)

	removed := c.local.invalidatePrefix(prefix)

	if c.distributed != nil {
		n, err := c.distributed.InvalidatePrefix(ctx, prefix)
		if err != nil {
			c.errors.Add(1)
		} else {
			removed += n
		}
	}

	return removed
}

// GetTyped unmarshals a JSON payload into dst, returning false if absent or
// undeserializable.
func GetTyped[T any](ctx context.Context, c *Cache, key Key, dst *T) bool {
	payload, ok := c.Get(ctx, key)
	if !ok {
		return false
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return false
	}

	return true
}

// PutTyped marshals value as JSON and stores it under key.
func PutTyped[T any](ctx context.Context, c *Cache, key Key, value T, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal payload: %w", err)
	}

	c.Put(ctx, key, payload, ttl)

	return nil
}

// CacheHits returns the overall (both-tier) hit count, satisfying the
// observability package's CacheStatsProvider interface structurally.
func (c *Cache) CacheHits() int64 { return c.hits.Load() }

// CacheMisses returns the overall (both-tier) miss count.
func (c *Cache) CacheMisses() int64 { return c.misses.Load() }

// LocalTierStats exposes the in-process tier's own hit/miss counters,
// separate from the combined counters CacheHits/CacheMisses report.
type LocalTierStats struct {
	c *Cache
}

// LocalStats returns a view onto c's in-process tier counters.
func (c *Cache) LocalStats() LocalTierStats { return LocalTierStats{c: c} }

// CacheHits implements observability.CacheStatsProvider for the local tier.
func (l LocalTierStats) CacheHits() int64 { return l.c.local.stats().Hits }

// CacheMisses implements observability.CacheStatsProvider for the local tier.
func (l LocalTierStats) CacheMisses() int64 { return l.c.local.stats().Misses }

func (c *Cache) recordHit(start time.Time) {
	c.hits.Add(1)
	c.hitLatencyNanos.Add(time.Since(start).Nanoseconds())
	c.hitLatencyCount.Add(1)
}

func (c *Cache) recordMiss(start time.Time) {
	c.misses.Add(1)
	c.missLatencyNanos.Add(time.Since(start).Nanoseconds())
	c.missLatencyCount.Add(1)
}

// OverallStats reports hit/miss/error/compression/fallback counters across
// both tiers, plus the in-process tier's own stats.
type OverallStats struct {
	Hits               int64
	Misses             int64
	Errors             int64
	MemoryFallbacks    int64
	Compressions       int64
	AvgHitLatency      time.Duration
	AvgMissLatency     time.Duration
	Local              Stats
}

// Stats reports cumulative cache statistics.
func (c *Cache) Stats() OverallStats {
	stats := OverallStats{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Errors:          c.errors.Load(),
		MemoryFallbacks: c.memoryFallbacks.Load(),
		Compressions:    c.compressions.Load(),
		Local:           c.local.stats(),
	}

	if n := c.hitLatencyCount.Load(); n > 0 {
		stats.AvgHitLatency = time.Duration(c.hitLatencyNanos.Load() / n)
	}

	if n := c.missLatencyCount.Load(); n > 0 {
		stats.AvgMissLatency = time.Duration(c.missLatencyNanos.Load() / n)
	}

	return stats
}

// HitRate returns the overall hit rate across both tiers, in [0, 1].
func (s OverallStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}
