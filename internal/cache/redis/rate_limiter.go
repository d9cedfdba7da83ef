package redis

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

//go:embed scripts/token_bucket.lua
var tokenBucketLua string

// minWait bounds how often a blocked caller re-runs the script.
const minWait = 10 * time.Millisecond

// BucketLimit is a rate/burst pair for one key.
type BucketLimit struct {
	Rate  float64
	Burst int
}

// TokenBucket implements domain.RateLimiter with a token bucket per key held
// in a Redis hash, so every engine process sharing the Redis instance draws
// from the same budget.
type TokenBucket struct {
	rdb      *redis.Client
	script   *redis.Script
	limits   map[string]BucketLimit
	fallback BucketLimit

	mu    sync.Mutex
	stats map[string]*domain.LimiterStats
}

// NewTokenBucket creates a TokenBucket backed by the given Client. Keys not
// present in limits use limits["default"].
func NewTokenBucket(c *Client, limits map[string]BucketLimit) *TokenBucket {
	fallback, ok := limits["default"]
	if !ok {
		fallback = BucketLimit{Rate: 5, Burst: 10}
	}
	return &TokenBucket{
		rdb:      c.Underlying(),
		script:   redis.NewScript(tokenBucketLua),
		limits:   limits,
		fallback: fallback,
		stats:    make(map[string]*domain.LimiterStats),
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

func (tb *TokenBucket) limitFor(key string) (string, BucketLimit) {
	if l, ok := tb.limits[key]; ok {
		return key, l
	}
	return "default", tb.fallback
}

// take runs the bucket script once. It returns zero when the tokens were
// debited, otherwise the time until they should be available.
func (tb *TokenBucket) take(ctx context.Context, key string, lim BucketLimit, n int) (time.Duration, error) {
	result, err := tb.script.Run(
		ctx,
		tb.rdb,
		[]string{rateLimitKey(key)},
		lim.Rate,
		lim.Burst,
		time.Now().UnixMicro(),
		n,
	).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("redis: rate limit take %s: %w", key, err)
	}
	if len(result) < 2 {
		return 0, fmt.Errorf("redis: rate limit take %s: unexpected result length %d", key, len(result))
	}
	if result[0] == 1 {
		return 0, nil
	}
	return max(time.Duration(result[1])*time.Microsecond, minWait), nil
}

// Acquire blocks until n tokens are available for key, honouring ctx.
func (tb *TokenBucket) Acquire(ctx context.Context, key string, n int) error {
	if n <= 0 {
		return nil
	}
	key, lim := tb.limitFor(key)
	start := time.Now()
	waited := false

	for {
		wait, err := tb.take(ctx, key, lim, n)
		if err != nil {
			return err
		}
		if wait == 0 {
			tb.record(key, waited, time.Since(start))
			return nil
		}
		waited = true

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

func (tb *TokenBucket) record(key string, waited bool, d time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	s, ok := tb.stats[key]
	if !ok {
		s = &domain.LimiterStats{Key: key}
		tb.stats[key] = s
	}
	s.Requests++
	if waited {
		s.Waits++
		s.TotalWait += d
		s.AverageWait = s.TotalWait / time.Duration(s.Waits)
	}
}

// Stats returns this process's view of limiter usage, sorted by key.
func (tb *TokenBucket) Stats() []domain.LimiterStats {
	tb.mu.Lock()
	out := make([]domain.LimiterStats, 0, len(tb.stats))
	for _, s := range tb.stats {
		out = append(out, *s)
	}
	tb.mu.Unlock()

	slices.SortFunc(out, func(a, b domain.LimiterStats) int { return strings.Compare(a.Key, b.Key) })
	return out
}

// Compile-time interface check.
var _ domain.RateLimiter = (*TokenBucket)(nil)
