package redis

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// QuoteCache implements domain.QuoteCache with Redis string keys that expire
// after ttl. Redis handles both expiry and memory bounds, so there is no
// local sweep.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(key string) string {
	return "quote:" + key
}

// Get returns the cached quote. Redis errors are treated as misses so a
// flaky cache never blocks quoting.
func (qc *QuoteCache) Get(ctx context.Context, key string) (domain.Quote, bool) {
	raw, err := qc.rdb.Get(ctx, quoteKey(key)).Bytes()
	if err != nil {
		// redis.Nil is the common case; other errors degrade to a miss.
		qc.misses.Add(1)
		return domain.Quote{}, false
	}

	var q domain.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		qc.misses.Add(1)
		return domain.Quote{}, false
	}
	qc.hits.Add(1)
	return q, true
}

// Set stores the quote with the configured TTL. Failures are ignored.
func (qc *QuoteCache) Set(ctx context.Context, key string, q domain.Quote) {
	raw, err := json.Marshal(q)
	if err != nil {
		return
	}
	_ = qc.rdb.Set(ctx, quoteKey(key), raw, qc.ttl).Err()
}

// Stats returns hit and miss counters for this process.
func (qc *QuoteCache) Stats() domain.CacheStats {
	hits, misses := qc.hits.Load(), qc.misses.Load()
	s := domain.CacheStats{Name: "quote", Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
