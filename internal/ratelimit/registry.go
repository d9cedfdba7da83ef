package ratelimit

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// DefaultKey is the bucket used for keys without explicit limits.
const DefaultKey = "default"

// Limit is a rate/burst pair.
type Limit struct {
	Rate  float64
	Burst int
}

// Registry hands out one TokenBucket per key. Keys without a configured
// limit share the DefaultKey bucket.
type Registry struct {
	limits map[string]Limit

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// NewRegistry creates a Registry. limits should contain DefaultKey; if it
// does not, unknown keys fall back to 5/s with a burst of 10.
func NewRegistry(limits map[string]Limit) *Registry {
	return &Registry{
		limits:  limits,
		buckets: make(map[string]*TokenBucket),
	}
}

// Bucket returns the bucket for key, creating it on first use.
func (r *Registry) Bucket(key string) *TokenBucket {
	if _, ok := r.limits[key]; !ok {
		key = DefaultKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buckets[key]; ok {
		return b
	}
	lim, ok := r.limits[key]
	if !ok {
		lim = Limit{Rate: 5, Burst: 10}
	}
	b := NewTokenBucket(key, lim.Rate, lim.Burst)
	r.buckets[key] = b
	return b
}

// Acquire implements domain.RateLimiter.
func (r *Registry) Acquire(ctx context.Context, key string, n int) error {
	return r.Bucket(key).Acquire(ctx, n)
}

// Stats returns counters for every bucket created so far, sorted by key.
func (r *Registry) Stats() []domain.LimiterStats {
	r.mu.Lock()
	buckets := make([]*TokenBucket, 0, len(r.buckets))
	for _, b := range r.buckets {
		buckets = append(buckets, b)
	}
	r.mu.Unlock()

	out := make([]domain.LimiterStats, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.Stats())
	}
	slices.SortFunc(out, func(a, b domain.LimiterStats) int { return strings.Compare(a.Key, b.Key) })
	return out
}

var _ domain.RateLimiter = (*Registry)(nil)
