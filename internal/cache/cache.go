// Package cache provides in-process TTL+LRU caches.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a size-bounded LRU whose entries also expire after ttl. Expired
// entries are purged lazily on Get and in bulk by ClearExpired.
type Cache[V any] struct {
	name     string
	ttl      time.Duration
	capacity int
	lru      *lru.Cache[string, entry[V]]
	now      func() time.Time

	// mu makes the staleness check and removal atomic with respect to Set,
	// so a purge never drops an entry written after the check.
	mu sync.Mutex

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a Cache holding at most maxSize entries.
func New[V any](name string, ttl time.Duration, maxSize int) *Cache[V] {
	if maxSize < 1 {
		maxSize = 1
	}
	l, err := lru.New[string, entry[V]](maxSize)
	if err != nil {
		// Only returned for a non-positive size, which is guarded above.
		panic(err)
	}
	return &Cache[V]{
		name:     name,
		ttl:      ttl,
		capacity: maxSize,
		lru:      l,
		now:      time.Now,
	}
}

// Get returns the value for key. A stale entry is removed and reported as a
// miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.lru.Remove(key)
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru.Add(key, entry[V]{value: value, storedAt: c.now()}) {
		c.evictions.Add(1)
	}
}

// ClearExpired removes every stale entry and returns how many were removed.
func (c *Cache[V]) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if ok && now.Sub(e.storedAt) >= c.ttl {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, including stale ones not yet purged.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() domain.CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := domain.CacheStats{
		Name:      c.name,
		Size:      c.lru.Len(),
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// QuoteCache adapts a Cache of quotes to domain.QuoteCache.
type QuoteCache struct {
	*Cache[domain.Quote]
}

// NewQuoteCache creates an in-process quote cache.
func NewQuoteCache(ttl time.Duration, maxSize int) *QuoteCache {
	return &QuoteCache{Cache: New[domain.Quote]("quote", ttl, maxSize)}
}

// Get implements domain.QuoteCache.
func (q *QuoteCache) Get(_ context.Context, key string) (domain.Quote, bool) {
	return q.Cache.Get(key)
}

// Set implements domain.QuoteCache.
func (q *QuoteCache) Set(_ context.Context, key string, v domain.Quote) {
	q.Cache.Set(key, v)
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
