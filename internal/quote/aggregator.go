// Package quote aggregates rate-limited, cached price quotes across venues.
package quote

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Aggregator fetches canonical quotes from every configured price source.
// Failures never propagate: an unavailable source is simply absent.
type Aggregator struct {
	sources []domain.PriceSource
	byID    map[domain.SourceID]domain.PriceSource
	cache   domain.QuoteCache
	limiter domain.RateLimiter
	logger  *slog.Logger
}

// NewAggregator creates an Aggregator. Source order is preserved in FetchAll
// results.
func NewAggregator(sources []domain.PriceSource, cache domain.QuoteCache, limiter domain.RateLimiter, logger *slog.Logger) *Aggregator {
	byID := make(map[domain.SourceID]domain.PriceSource, len(sources))
	for _, s := range sources {
		byID[s.ID()] = s
	}
	return &Aggregator{
		sources: sources,
		byID:    byID,
		cache:   cache,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "quote_aggregator")),
	}
}

// Sources returns the configured source IDs in order.
func (a *Aggregator) Sources() []domain.SourceID {
	ids := make([]domain.SourceID, len(a.sources))
	for i, s := range a.sources {
		ids[i] = s.ID()
	}
	return ids
}

func cacheKey(source domain.SourceID, mint string) string {
	return string(source) + ":" + mint
}

// GetQuote returns a quote for asset on source, served from cache when a
// fresh entry exists.
func (a *Aggregator) GetQuote(ctx context.Context, source domain.SourceID, asset domain.Asset) (domain.Quote, bool) {
	if q, ok := a.cache.Get(ctx, cacheKey(source, asset.Mint)); ok {
		return a.checkLiquidity(q, asset)
	}
	return a.fetch(ctx, source, asset, false)
}

// Fresh bypasses every cache on the way to the venue, including a source's
// own upstream cache. The result still refreshes the caches.
func (a *Aggregator) Fresh(ctx context.Context, source domain.SourceID, asset domain.Asset) (domain.Quote, bool) {
	return a.fetch(ctx, source, asset, true)
}

// FetchAll queries every source concurrently and returns the successful
// quotes in source order.
func (a *Aggregator) FetchAll(ctx context.Context, asset domain.Asset) []domain.Quote {
	results := make([]domain.Quote, len(a.sources))
	found := make([]bool, len(a.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		g.Go(func() error {
			results[i], found[i] = a.GetQuote(gctx, src.ID(), asset)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.Quote, 0, len(results))
	for i, q := range results {
		if found[i] {
			out = append(out, q)
		}
	}
	return out
}

func (a *Aggregator) fetch(ctx context.Context, source domain.SourceID, asset domain.Asset, fresh bool) (domain.Quote, bool) {
	src, ok := a.byID[source]
	if !ok {
		return domain.Quote{}, false
	}

	if err := a.limiter.Acquire(ctx, string(source), 1); err != nil {
		a.logger.DebugContext(ctx, "quote_aggregator: rate limiter wait aborted",
			slog.String("source", string(source)),
			slog.String("error", err.Error()),
		)
		return domain.Quote{}, false
	}

	var q domain.Quote
	var err error
	if fs, ok := src.(domain.FreshPriceSource); ok && fresh {
		q, err = fs.FetchFreshQuote(ctx, asset)
	} else {
		q, err = src.FetchQuote(ctx, asset)
	}
	if err != nil {
		a.logger.DebugContext(ctx, "quote_aggregator: source unavailable",
			slog.String("source", string(source)),
			slog.String("asset", asset.Symbol),
			slog.String("error", err.Error()),
		)
		return domain.Quote{}, false
	}

	a.cache.Set(ctx, cacheKey(source, asset.Mint), q)
	return a.checkLiquidity(q, asset)
}

func (a *Aggregator) checkLiquidity(q domain.Quote, asset domain.Asset) (domain.Quote, bool) {
	if q.Liquidity.LessThan(asset.MinLiquidity) {
		a.logger.Debug("quote_aggregator: liquidity below floor",
			slog.String("source", string(q.Source)),
			slog.String("asset", asset.Symbol),
			slog.String("liquidity", q.Liquidity.String()),
		)
		return domain.Quote{}, false
	}
	return q, true
}
