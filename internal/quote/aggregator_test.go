package quote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/cache"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/ratelimit"
	"github.com/alanyoungcy/arbengine/internal/venue"
)

type stubSource struct {
	id        domain.SourceID
	price     string
	liquidity int64
	err       error
	delay     time.Duration
	calls     atomic.Int32
}

func (s *stubSource) ID() domain.SourceID { return s.id }

func (s *stubSource) FetchQuote(ctx context.Context, asset domain.Asset) (domain.Quote, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return domain.Quote{}, s.err
	}
	return domain.Quote{
		Source:    s.id,
		Symbol:    asset.Symbol,
		Mint:      asset.Mint,
		Price:     decimal.RequireFromString(s.price),
		Liquidity: decimal.NewFromInt(s.liquidity),
		FetchedAt: time.Now(),
	}, nil
}

var testAsset = domain.Asset{Symbol: "WIF", Mint: "wif-mint", Decimals: 6, MinLiquidity: decimal.NewFromInt(10_000)}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newAggregator(sources ...domain.PriceSource) *Aggregator {
	limiter := ratelimit.NewRegistry(map[string]ratelimit.Limit{ratelimit.DefaultKey: {Rate: 1000, Burst: 1000}})
	return NewAggregator(sources, cache.NewQuoteCache(time.Minute, 100), limiter, discard())
}

func TestGetQuote_CachesAndBypasses(t *testing.T) {
	src := &stubSource{id: domain.SourceJupiter, price: "2.5", liquidity: 50_000}
	agg := newAggregator(src)
	ctx := context.Background()

	q, ok := agg.GetQuote(ctx, domain.SourceJupiter, testAsset)
	require.True(t, ok)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("2.5")))

	_, ok = agg.GetQuote(ctx, domain.SourceJupiter, testAsset)
	require.True(t, ok)
	assert.Equal(t, int32(1), src.calls.Load(), "second read served from cache")

	_, ok = agg.Fresh(ctx, domain.SourceJupiter, testAsset)
	require.True(t, ok)
	assert.Equal(t, int32(2), src.calls.Load(), "fresh always hits the venue")
}

func TestGetQuote_DegradesToAbsent(t *testing.T) {
	failing := &stubSource{id: domain.SourceRaydium, err: errors.New("timeout")}
	shallow := &stubSource{id: domain.SourceOrca, price: "2.4", liquidity: 500}
	agg := newAggregator(failing, shallow)
	ctx := context.Background()

	_, ok := agg.GetQuote(ctx, domain.SourceRaydium, testAsset)
	assert.False(t, ok)

	_, ok = agg.GetQuote(ctx, domain.SourceOrca, testAsset)
	assert.False(t, ok, "liquidity below floor")

	_, ok = agg.GetQuote(ctx, domain.SourceMeteora, testAsset)
	assert.False(t, ok, "unconfigured source")
}

func TestFetchAll_ConcurrentAndOrdered(t *testing.T) {
	a := &stubSource{id: domain.SourceJupiter, price: "1.00", liquidity: 50_000, delay: 100 * time.Millisecond}
	b := &stubSource{id: domain.SourceRaydium, err: errors.New("down"), delay: 100 * time.Millisecond}
	c := &stubSource{id: domain.SourceOrca, price: "1.02", liquidity: 50_000, delay: 100 * time.Millisecond}
	agg := newAggregator(a, b, c)

	start := time.Now()
	quotes := agg.FetchAll(context.Background(), testAsset)
	assert.Less(t, time.Since(start), 250*time.Millisecond, "sources fetched concurrently")

	require.Len(t, quotes, 2)
	assert.Equal(t, domain.SourceJupiter, quotes[0].Source)
	assert.Equal(t, domain.SourceOrca, quotes[1].Source)
	assert.Equal(t, []domain.SourceID{domain.SourceJupiter, domain.SourceRaydium, domain.SourceOrca}, agg.Sources())
}

// dexScreenerServer serves one raydium USDC pool for testAsset at a price the
// test can move.
type dexScreenerServer struct {
	*httptest.Server
	mu    sync.Mutex
	price string
	calls atomic.Int32
}

func newDexScreenerServer(t *testing.T, price string) *dexScreenerServer {
	t.Helper()
	s := &dexScreenerServer{price: price}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.mu.Lock()
		p := s.price
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"pairs":[{"chainId":"solana","dexId":"raydium","pairAddress":"pool-1",`+
			`"baseToken":{"address":%q,"symbol":"WIF"},"quoteToken":{"symbol":"USDC"},`+
			`"priceUsd":%q,"liquidity":{"usd":250000}}]}`, testAsset.Mint, p)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *dexScreenerServer) setPrice(p string) {
	s.mu.Lock()
	s.price = p
	s.mu.Unlock()
}

func TestFresh_BypassesDexScreenerPairsCache(t *testing.T) {
	srv := newDexScreenerServer(t, "1.00")
	pairs := cache.New[[]venue.Pair]("pairs", time.Minute, 10)
	dex := venue.NewDexScreener(venue.DexScreenerConfig{BaseURL: srv.URL, UserAgent: "arbengine-test"}, pairs, nil)
	agg := newAggregator(venue.NewDexSource(domain.SourceRaydium, "raydium", dex))
	ctx := context.Background()

	q, ok := agg.GetQuote(ctx, domain.SourceRaydium, testAsset)
	require.True(t, ok)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("1.00")))
	assert.EqualValues(t, 1, srv.calls.Load())

	srv.setPrice("0.90")

	q, ok = agg.Fresh(ctx, domain.SourceRaydium, testAsset)
	require.True(t, ok)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("0.9")), "fresh quote served stale price %s", q.Price)
	assert.EqualValues(t, 2, srv.calls.Load())

	// The fresh listing replaced both caches.
	q, ok = agg.GetQuote(ctx, domain.SourceRaydium, testAsset)
	require.True(t, ok)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("0.9")))
	cached, ok := pairs.Get(testAsset.Mint)
	require.True(t, ok)
	assert.Equal(t, "0.90", cached[0].PriceUSD)
	assert.EqualValues(t, 2, srv.calls.Load())
}
