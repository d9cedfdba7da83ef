// Package scanner detects and sizes cross-venue price discrepancies.
package scanner

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// QuoteSource returns every available quote for an asset.
type QuoteSource interface {
	FetchAll(ctx context.Context, asset domain.Asset) []domain.Quote
}

// BalanceSource reports the spendable quote-currency balance.
type BalanceSource interface {
	QuoteBalance(ctx context.Context) (decimal.Decimal, error)
}

// Recorder persists opportunities as soon as they are created.
type Recorder interface {
	RecordOpportunity(ctx context.Context, opp domain.Opportunity) error
}

// Scanner turns quotes into at most one sized Opportunity per asset.
type Scanner struct {
	quotes   QuoteSource
	balance  BalanceSource
	recorder Recorder
	params   Params
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Scanner.
func New(quotes QuoteSource, balance BalanceSource, recorder Recorder, params Params, logger *slog.Logger) *Scanner {
	return &Scanner{
		quotes:   quotes,
		balance:  balance,
		recorder: recorder,
		params:   params,
		logger:   logger.With(slog.String("component", "scanner")),
		now:      time.Now,
	}
}

// Params returns the thresholds the scanner was built with.
func (s *Scanner) Params() Params { return s.params }

// Scan lazily evaluates assets in order, yielding each opportunity as soon as
// it is found and persisted. A cycle-level failure (balance unavailable, or
// no quotes at all for any asset) is yielded as an error and ends the
// sequence. The returned sequence can be ranged over more than once; each
// range performs a new scan.
func (s *Scanner) Scan(ctx context.Context, assets []domain.Asset) iter.Seq2[domain.Opportunity, error] {
	return func(yield func(domain.Opportunity, error) bool) {
		balance, err := s.balance.QuoteBalance(ctx)
		if err != nil {
			yield(domain.Opportunity{}, fmt.Errorf("scanner: quote balance: %w", err))
			return
		}

		quoted := 0
		for _, asset := range assets {
			quotes := s.quotes.FetchAll(ctx, asset)
			if len(quotes) > 0 {
				quoted++
			}
			if len(quotes) < 2 {
				continue
			}

			opp, ok := s.Evaluate(asset, quotes, balance, s.now())
			if !ok {
				continue
			}

			if err := s.recorder.RecordOpportunity(ctx, opp); err != nil {
				s.logger.WarnContext(ctx, "scanner: persist opportunity failed",
					slog.String("id", opp.ID),
					slog.String("error", err.Error()),
				)
			}
			if !yield(opp, nil) {
				return
			}
		}

		if len(assets) > 0 && quoted == 0 {
			yield(domain.Opportunity{}, domain.ErrNoQuotes)
		}
	}
}

// Evaluate picks the widest qualifying spread among quotes and sizes it.
func (s *Scanner) Evaluate(asset domain.Asset, quotes []domain.Quote, balance decimal.Decimal, now time.Time) (domain.Opportunity, bool) {
	buy, sell, diff, ok := BestPair(quotes, s.params.MinPriceDiffPct)
	if !ok {
		return domain.Opportunity{}, false
	}

	maxNotional := s.params.MaxNotional(balance, buy.Liquidity, sell.Liquidity, asset.MaxPosition)
	est, ok := s.params.Size(buy.Price, sell.Price, balance, maxNotional)
	if !ok {
		s.logger.Debug("scanner: spread found but no profitable size",
			slog.String("asset", asset.Symbol),
			slog.String("buy", string(buy.Source)),
			slog.String("sell", string(sell.Source)),
			slog.String("diff_pct", diff.StringFixed(3)),
			slog.String("max_notional", maxNotional.StringFixed(2)),
		)
		return domain.Opportunity{}, false
	}

	opp := domain.Opportunity{
		ID:           uuid.New().String(),
		Symbol:       asset.Symbol,
		Mint:         asset.Mint,
		BuySource:    buy.Source,
		SellSource:   sell.Source,
		BuyPrice:     buy.Price,
		SellPrice:    sell.Price,
		Size:         est.Size,
		ExpectedNet:  est.Net.Round(6),
		PriceImpact:  est.CombinedImpact,
		DiscoveredAt: now,
		ExpiresAt:    now.Add(s.params.Validity),
	}

	s.logger.Info("scanner: opportunity found",
		slog.String("id", opp.ID),
		slog.String("asset", opp.Symbol),
		slog.String("buy", string(opp.BuySource)),
		slog.String("sell", string(opp.SellSource)),
		slog.String("diff_pct", diff.StringFixed(3)),
		slog.String("size", opp.Size.String()),
		slog.String("expected_net", opp.ExpectedNet.StringFixed(4)),
	)
	return opp, true
}

// BestPair compares every unordered pair of quotes and returns the lower- and
// higher-priced quote of the pair with the largest percentage difference at
// or above minDiffPct. Ties keep the earliest pair.
func BestPair(quotes []domain.Quote, minDiffPct decimal.Decimal) (buy, sell domain.Quote, diffPct decimal.Decimal, ok bool) {
	for i := 0; i < len(quotes); i++ {
		for j := i + 1; j < len(quotes); j++ {
			a, b := quotes[i], quotes[j]
			if !a.Price.IsPositive() || !b.Price.IsPositive() {
				continue
			}
			lo, hi := a, b
			if b.Price.LessThan(a.Price) {
				lo, hi = b, a
			}
			diff := hi.Price.Sub(lo.Price).Div(lo.Price).Mul(hundred)
			if diff.LessThan(minDiffPct) || !diff.IsPositive() {
				continue
			}
			if !ok || diff.GreaterThan(diffPct) {
				buy, sell, diffPct, ok = lo, hi, diff, true
			}
		}
	}
	return buy, sell, diffPct, ok
}
