package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_BurstThenWait(t *testing.T) {
	b := NewTokenBucket("test", 2, 3)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		require.NoError(t, b.Acquire(ctx, 1))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond, "burst acquisitions should not block")

	start = time.Now()
	require.NoError(t, b.Acquire(ctx, 1))
	waited := time.Since(start)
	assert.GreaterOrEqual(t, waited, 450*time.Millisecond)
	assert.Less(t, waited, 800*time.Millisecond)

	stats := b.Stats()
	assert.Equal(t, int64(4), stats.Requests)
	assert.Equal(t, int64(1), stats.Waits)
}

func TestTokenBucket_RefillCappedAtBurst(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	b := newTokenBucket("test", 10, 2, clock)

	assert.Zero(t, b.reserve(2))
	now = now.Add(10 * time.Second)
	assert.Zero(t, b.reserve(2))
	// Only burst tokens accumulated despite the long idle period.
	assert.Equal(t, 100*time.Millisecond, b.reserve(1))
}

func TestTokenBucket_ReservationsQueueInOrder(t *testing.T) {
	now := time.Unix(0, 0)
	b := newTokenBucket("test", 1, 1, func() time.Time { return now })

	assert.Zero(t, b.reserve(1))
	assert.Equal(t, time.Second, b.reserve(1))
	assert.Equal(t, 2*time.Second, b.reserve(1))
}

func TestTokenBucket_CancelReturnsTokens(t *testing.T) {
	b := NewTokenBucket("test", 0.5, 1)
	require.NoError(t, b.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Acquire(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	b.mu.Lock()
	tokens := b.tokens
	b.mu.Unlock()
	assert.GreaterOrEqual(t, tokens, 0.0)
}

func TestRegistry_FallsBackToDefault(t *testing.T) {
	r := NewRegistry(map[string]Limit{
		"jupiter":  {Rate: 10, Burst: 20},
		DefaultKey: {Rate: 1, Burst: 1},
	})

	assert.Same(t, r.Bucket("orca"), r.Bucket("meteora"))
	assert.NotSame(t, r.Bucket("jupiter"), r.Bucket("orca"))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Acquire(context.Background(), "jupiter", 1)
		}()
	}
	wg.Wait()

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, DefaultKey, stats[0].Key)
	assert.Equal(t, "jupiter", stats[1].Key)
	assert.Equal(t, int64(5), stats[1].Requests)
}
