// Package ratelimit provides in-process token-bucket rate limiters keyed by
// outbound call source.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// TokenBucket refills continuously at rate tokens per second up to burst.
// Acquire reserves tokens under the mutex and sleeps outside it, so waiters
// are served in the order they reserved.
type TokenBucket struct {
	key   string
	rate  float64
	burst float64
	now   func() time.Time

	mu        sync.Mutex
	tokens    float64
	last      time.Time
	requests  int64
	waits     int64
	totalWait time.Duration
}

// NewTokenBucket creates a bucket that starts full.
func NewTokenBucket(key string, rate float64, burst int) *TokenBucket {
	return newTokenBucket(key, rate, burst, time.Now)
}

func newTokenBucket(key string, rate float64, burst int, now func() time.Time) *TokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		key:    key,
		rate:   rate,
		burst:  float64(burst),
		now:    now,
		tokens: float64(burst),
		last:   now(),
	}
}

// Acquire blocks until n tokens are available. There is no timeout; the only
// early return is ctx cancellation, which gives the reservation back.
func (b *TokenBucket) Acquire(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	wait := b.reserve(n)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		b.mu.Lock()
		b.tokens = math.Min(b.burst, b.tokens+float64(n))
		b.mu.Unlock()
		return fmt.Errorf("ratelimit: acquire %s: %w", b.key, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (b *TokenBucket) reserve(n int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = math.Min(b.burst, b.tokens+elapsed*b.rate)
		b.last = now
	}

	b.tokens -= float64(n)
	b.requests++
	if b.tokens >= 0 {
		return 0
	}

	wait := time.Duration(-b.tokens / b.rate * float64(time.Second))
	b.waits++
	b.totalWait += wait
	return wait
}

// Stats returns a snapshot of the bucket's counters.
func (b *TokenBucket) Stats() domain.LimiterStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := domain.LimiterStats{
		Key:       b.key,
		Requests:  b.requests,
		Waits:     b.waits,
		TotalWait: b.totalWait,
	}
	if b.waits > 0 {
		s.AverageWait = b.totalWait / time.Duration(b.waits)
	}
	return s
}
