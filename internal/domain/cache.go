package domain

import (
	"context"
	"time"
)

// QuoteCache stores recent quotes keyed by source and mint.
type QuoteCache interface {
	Get(ctx context.Context, key string) (Quote, bool)
	Set(ctx context.Context, key string, q Quote)
}

// RateLimiter blocks callers until n tokens are available for key.
type RateLimiter interface {
	Acquire(ctx context.Context, key string, n int) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub for engine events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LimiterStats is a snapshot of one rate limiter's counters.
type LimiterStats struct {
	Key         string        `json:"key"`
	Requests    int64         `json:"requests"`
	Waits       int64         `json:"waits"`
	TotalWait   time.Duration `json:"total_wait"`
	AverageWait time.Duration `json:"average_wait"`
}

// CacheStats is a snapshot of one cache's counters.
type CacheStats struct {
	Name      string  `json:"name"`
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}
