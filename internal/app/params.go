package app

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/cache/redis"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
	"github.com/alanyoungcy/arbengine/internal/executor"
	"github.com/alanyoungcy/arbengine/internal/ratelimit"
	"github.com/alanyoungcy/arbengine/internal/scanner"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func assetsFromConfig(cfg *config.Config) []domain.Asset {
	out := make([]domain.Asset, 0, len(cfg.Assets))
	for _, a := range cfg.Assets {
		out = append(out, domain.Asset{
			Symbol:       a.Symbol,
			Mint:         a.Mint,
			Decimals:     a.Decimals,
			MinLiquidity: dec(a.MinLiquidity),
			MaxPosition:  dec(a.MaxPosition),
		})
	}
	return out
}

func scannerParams(cfg *config.Config) scanner.Params {
	s := cfg.Scanner
	bands := make([]scanner.ImpactBand, 0, len(s.ImpactBands))
	for _, b := range s.ImpactBands {
		bands = append(bands, scanner.ImpactBand{MaxNotional: dec(b.MaxNotional), Impact: dec(b.Impact)})
	}
	return scanner.Params{
		MinPriceDiffPct:   dec(s.MinPriceDiffPct),
		MinProfitUSD:      dec(s.MinProfitUSD),
		MinMarginPct:      dec(s.MinMarginPct),
		MinPositionUSD:    dec(s.MinPositionUSD),
		MaxPositionUSD:    dec(s.MaxPositionUSD),
		MaxPriceImpact:    dec(s.MaxPriceImpact),
		BalanceFraction:   dec(s.BalanceFraction),
		LiquidityFraction: dec(s.LiquidityFraction),
		SwapFeeRate:       dec(s.SwapFeeRate),
		GasEstimateSOL:    dec(s.GasEstimateSOL),
		FeeAssetPriceUSD:  dec(cfg.Chain.FeeAssetPriceUSD),
		ImpactBands:       bands,
		ImpactLinearRate:  dec(s.ImpactLinearRate),
		ImpactLinearUnit:  dec(s.ImpactLinearUnit),
		Validity:          s.Validity.Duration,
	}
}

func executorConfig(cfg *config.Config) executor.Config {
	e, b := cfg.Execution, cfg.Bundle
	return executor.Config{
		QuoteMint:             cfg.Chain.QuoteMint,
		QuoteDecimals:         cfg.Chain.QuoteDecimals,
		MinRequiredSpreadPct:  dec(e.MinRequiredSpreadPct),
		MinMarginPct:          dec(e.MinMarginPct),
		MinFeeBalanceSOL:      dec(e.MinFeeBalanceSOL),
		BuySlippageBps:        e.BuySlippageBps,
		SellSlippageBps:       e.SellSlippageBps,
		PriorityFeeLamports:   e.PriorityFeeLamports,
		ConfirmRetries:        e.ConfirmRetries,
		ConfirmInterval:       e.ConfirmInterval.Duration,
		SettleDelay:           e.SettleDelay.Duration,
		GasPerTxSOL:           dec(e.GasPerTxSOL),
		FeeAssetPriceUSD:      dec(cfg.Chain.FeeAssetPriceUSD),
		AssumedFailureLossUSD: dec(e.AssumedFailureLossUSD),
		AssumedFailureGasSOL:  dec(e.AssumedFailureGasSOL),
		Bundle: executor.BundleConfig{
			MinProfitUSD:   dec(b.MinProfitUSD),
			TipFraction:    dec(b.TipFraction),
			MinTipLamports: b.MinTipLamports,
			MaxTipLamports: b.MaxTipLamports,
			Timeout:        b.Timeout.Duration,
			PollInterval:   b.PollInterval.Duration,
		},
	}
}

func engineConfig(cfg *config.Config) engine.Config {
	e := cfg.Engine
	ec := engine.Config{
		Mode:                   cfg.Mode,
		ScanInterval:           e.ScanInterval.Duration,
		MaxIdleInterval:        e.MaxIdleInterval.Duration,
		IdleBackoff:            e.IdleBackoff,
		MaxConsecutiveFailures: e.MaxConsecutiveFailures,
		Cooldown:               e.Cooldown.Duration,
		HealthInterval:         e.HealthInterval.Duration,
		Rebalance: executor.RebalanceConfig{
			MinQuoteBalanceUSD: dec(e.MinQuoteBalanceUSD),
			TargetUSD:          dec(e.RebalanceTargetUSD),
			MinValueUSD:        dec(e.RebalanceMinValueUSD),
		},
	}
	if cfg.Archive.Enabled {
		ec.ArchiveInterval = cfg.Archive.Interval.Duration
		ec.Retention = time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour
	}
	return ec
}

func localLimits(cfg *config.Config) map[string]ratelimit.Limit {
	out := make(map[string]ratelimit.Limit, len(cfg.RateLimits))
	for k, v := range cfg.RateLimits {
		out[k] = ratelimit.Limit{Rate: v.Rate, Burst: v.Burst}
	}
	return out
}

func redisLimits(cfg *config.Config) map[string]redis.BucketLimit {
	out := make(map[string]redis.BucketLimit, len(cfg.RateLimits))
	for k, v := range cfg.RateLimits {
		out[k] = redis.BucketLimit{Rate: v.Rate, Burst: v.Burst}
	}
	return out
}
