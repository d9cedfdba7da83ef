package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// PriceLookup returns a possibly cached quote for an asset.
type PriceLookup interface {
	GetQuote(ctx context.Context, source domain.SourceID, asset domain.Asset) (domain.Quote, bool)
}

// RebalanceConfig controls when and how token holdings are sold back into
// the quote currency.
type RebalanceConfig struct {
	MinQuoteBalanceUSD decimal.Decimal
	TargetUSD          decimal.Decimal
	MinValueUSD        decimal.Decimal
}

// RebalanceResult summarizes one rebalance pass.
type RebalanceResult struct {
	Sold      int
	Failed    int
	Recovered decimal.Decimal
}

// Rebalance sells half of each tracked holding worth more than MinValueUSD
// until the quote balance would reach TargetUSD. It runs under the execution
// lock and does nothing while the quote balance is above
// MinQuoteBalanceUSD.
func (o *Orchestrator) Rebalance(ctx context.Context, prices PriceLookup, cfg RebalanceConfig) (RebalanceResult, error) {
	var out RebalanceResult

	release, err := o.lock.Acquire(ctx)
	if err != nil {
		return out, err
	}
	defer release()
	ctx = context.WithoutCancel(ctx)

	balance, err := o.balances.QuoteBalance(ctx)
	if err != nil {
		return out, fmt.Errorf("executor: rebalance: %w", err)
	}
	if balance.GreaterThanOrEqual(cfg.MinQuoteBalanceUSD) {
		return out, nil
	}

	holdings, err := o.balances.Holdings(ctx)
	if err != nil {
		return out, fmt.Errorf("executor: rebalance: %w", err)
	}
	byMint := make(map[string]domain.Asset, len(o.assets))
	for _, a := range o.assets {
		byMint[a.Mint] = a
	}

	o.logger.InfoContext(ctx, "executor: rebalancing",
		slog.String("quote_balance", balance.StringFixed(2)),
		slog.Int("holdings", len(holdings)),
	)

	for _, h := range holdings {
		if balance.GreaterThanOrEqual(cfg.TargetUSD) {
			break
		}
		asset, ok := byMint[h.Mint]
		if !ok {
			continue
		}
		q, ok := prices.GetQuote(ctx, domain.SourceJupiter, asset)
		if !ok {
			o.logger.DebugContext(ctx, "executor: no price for holding", slog.String("symbol", asset.Symbol))
			continue
		}
		value := decimal.NewFromUint64(h.Amount).Shift(-h.Decimals).Mul(q.Price)
		if value.LessThanOrEqual(cfg.MinValueUSD) {
			continue
		}

		l := leg{
			name:        "rebalance",
			inputMint:   h.Mint,
			outputMint:  o.cfg.QuoteMint,
			amount:      h.Amount / 2,
			slippageBps: o.cfg.SellSlippageBps,
			venue:       domain.SourceJupiter,
		}
		signed, _, err := o.buildSigned(ctx, l)
		if err == nil {
			_, _, err = o.submit(ctx, l, signed)
		}
		if err != nil {
			out.Failed++
			o.logger.WarnContext(ctx, "executor: rebalance sell failed",
				slog.String("symbol", asset.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}

		half := value.Div(decimal.NewFromInt(2))
		balance = balance.Add(half)
		out.Sold++
		out.Recovered = out.Recovered.Add(half)
		o.logger.InfoContext(ctx, "executor: rebalance sell confirmed",
			slog.String("symbol", asset.Symbol),
			slog.String("value", half.StringFixed(2)),
		)
	}
	return out, nil
}
