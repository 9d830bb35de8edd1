package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultLRUCapacity is the default maximum entry count for the in-process
// tier.
const DefaultLRUCapacity = 100

// entryCache is the in-process fallback tier: a bounded, TTL-aware cache
// keyed by the string form of a Key. Eviction is by insertion timestamp
// (oldest inserted entry evicted first) rather than by access recency,
// matching the spec's "LRU eviction by insertion timestamp" wording — this
// keeps a hit in get free of list-splicing under concurrent load (only an
// expired entry is unlinked on read).
//
// Structurally this is the teacher's LRUBlobCache (pkg/cache/lru.go),
// generalized from gitlib.Hash-keyed blobs to string-keyed, TTL-stamped
// byte payloads, with the size-aware eviction-cost sampling dropped in
// favor of straightforward insertion-order eviction.
type entryCache struct {
	mu       sync.Mutex
	entries  map[string]*lruEntry
	head     *lruEntry // oldest inserted
	tail     *lruEntry // newest inserted
	capacity int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// lruEntry is a doubly-linked list node in insertion order.
type lruEntry struct {
	key        string
	payload    []byte
	expiresAt  time.Time
	prev, next *lruEntry
}

// newEntryCache creates an in-process cache bounded to capacity entries.
// capacity <= 0 uses DefaultLRUCapacity.
func newEntryCache(capacity int) *entryCache {
	if capacity <= 0 {
		capacity = DefaultLRUCapacity
	}

	return &entryCache{
		entries:  make(map[string]*lruEntry),
		capacity: capacity,
	}
}

// get returns the payload for key if present and not expired as of now.
func (c *entryCache) get(key string, now time.Time) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)

		return nil, false
	}

	if now.After(entry.expiresAt) {
		c.removeLocked(entry)
		c.misses.Add(1)

		return nil, false
	}

	c.hits.Add(1)

	return entry.payload, true
}

// put inserts or replaces the payload for key with the given TTL, evicting
// the oldest entry if the cache is at capacity.
func (c *entryCache) put(key string, payload []byte, ttl time.Duration, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.removeLocked(existing)
	}

	for len(c.entries) >= c.capacity && c.head != nil {
		victim := c.head
		c.removeLocked(victim)
		c.evictions.Add(1)
	}

	entry := &lruEntry{
		key:       key,
		payload:   payload,
		expiresAt: now.Add(ttl),
	}

	c.entries[key] = entry
	c.appendLocked(entry)
}

// invalidatePrefix removes every entry whose key starts with prefix,
// returning the count removed.
func (c *entryCache) invalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0

	for k, entry := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			c.removeLocked(entry)

			removed++
		}
	}

	return removed
}

func (c *entryCache) appendLocked(entry *lruEntry) {
	entry.prev = c.tail
	entry.next = nil

	if c.tail != nil {
		c.tail.next = entry
	}

	c.tail = entry

	if c.head == nil {
		c.head = entry
	}
}

func (c *entryCache) removeLocked(entry *lruEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}

	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}

	delete(c.entries, entry.key)
}

// Stats reports the in-process tier's hit/miss/eviction counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

// HitRate returns the hit rate in [0, 1].
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

func (c *entryCache) stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   len(c.entries),
	}
}
