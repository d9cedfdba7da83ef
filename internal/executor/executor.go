// Package executor turns a detected opportunity into a settled two-leg trade.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/scanner"
	"github.com/alanyoungcy/arbengine/internal/venue"
)

// Quoter fetches a quote that bypasses the cache.
type Quoter interface {
	Fresh(ctx context.Context, source domain.SourceID, asset domain.Asset) (domain.Quote, bool)
}

// RiskGate is the daily-loss gate consulted before and after each trade.
type RiskGate interface {
	BeforeExecute() bool
	RecordLoss(ctx context.Context, amount decimal.Decimal)
}

// Balances reports wallet balances.
type Balances interface {
	QuoteBalance(ctx context.Context) (decimal.Decimal, error)
	FeeBalance(ctx context.Context) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, mint string) (uint64, error)
	Holdings(ctx context.Context) ([]domain.Holding, error)
}

// SwapBuilder returns unsigned swap transactions for a venue.
type SwapBuilder interface {
	BuildSwap(ctx context.Context, req venue.SwapRequest) (venue.SwapTx, error)
}

// Signer signs serialized transactions with the wallet key.
type Signer interface {
	PublicKey() string
	SignTransaction(tx []byte) ([]byte, error)
}

// TxSender submits transactions and waits for confirmation.
type TxSender interface {
	SendTransaction(ctx context.Context, tx []byte) (string, error)
	WaitForConfirmation(ctx context.Context, sig string, attempts int, interval time.Duration) error
}

// BundleSender submits atomic bundles.
type BundleSender interface {
	SendBundle(ctx context.Context, txs [][]byte) (string, error)
	WaitForBundle(ctx context.Context, id string, timeout, interval time.Duration) (domain.BundleStatus, error)
}

// TradeRecorder persists a settled trade and fans it out.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, rec domain.TradeRecord) error
}

// Config holds execution thresholds. Money values are in the quote currency
// unless the name says SOL.
type Config struct {
	QuoteMint     string
	QuoteDecimals int32

	MinRequiredSpreadPct decimal.Decimal
	MinMarginPct         decimal.Decimal
	MinFeeBalanceSOL     decimal.Decimal
	BuySlippageBps       int
	SellSlippageBps      int
	PriorityFeeLamports  int64
	ConfirmRetries       int
	ConfirmInterval      time.Duration
	SettleDelay          time.Duration
	GasPerTxSOL          decimal.Decimal
	FeeAssetPriceUSD     decimal.Decimal

	AssumedFailureLossUSD decimal.Decimal
	AssumedFailureGasSOL  decimal.Decimal

	Bundle BundleConfig
}

// BundleConfig holds the atomic path parameters.
type BundleConfig struct {
	MinProfitUSD   decimal.Decimal
	TipFraction    decimal.Decimal
	MinTipLamports int64
	MaxTipLamports int64
	Timeout        time.Duration
	PollInterval   time.Duration
}

// DefaultConfig returns the production execution thresholds.
func DefaultConfig() Config {
	d := decimal.RequireFromString
	return Config{
		QuoteDecimals:         6,
		MinRequiredSpreadPct:  d("1.2"),
		MinMarginPct:          d("1.0"),
		MinFeeBalanceSOL:      d("0.1"),
		BuySlippageBps:        50,
		SellSlippageBps:       200,
		PriorityFeeLamports:   10_000,
		ConfirmRetries:        15,
		ConfirmInterval:       500 * time.Millisecond,
		SettleDelay:           2 * time.Second,
		GasPerTxSOL:           d("0.00001"),
		FeeAssetPriceUSD:      d("150"),
		AssumedFailureLossUSD: d("10"),
		AssumedFailureGasSOL:  d("0.005"),
		Bundle: BundleConfig{
			MinProfitUSD:   d("50"),
			TipFraction:    d("0.15"),
			MinTipLamports: 10_000,
			MaxTipLamports: 1_000_000,
			Timeout:        30 * time.Second,
			PollInterval:   time.Second,
		},
	}
}

// Stats counts execution outcomes since start.
type Stats struct {
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
	Partials  int64 `json:"partials"`
	Failures  int64 `json:"failures"`
	Rejected  int64 `json:"rejected"`
}

// Orchestrator runs the execution state machine:
// Validate, RiskCheck, Lock, Reverify, SizeConfirm, Execute, Settle.
type Orchestrator struct {
	cfg      Config
	params   scanner.Params
	assets   map[string]domain.Asset
	quotes   Quoter
	risk     RiskGate
	balances Balances
	swaps    SwapBuilder
	signer   Signer
	txs      TxSender
	bundles  BundleSender
	recorder TradeRecorder
	lock     ExecutionLock
	dedup    *Dedup
	logger   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	attempts, successes, partials, failures, rejected atomic.Int64
}

// Deps groups the orchestrator's collaborators. Bundles may be nil, which
// disables the atomic path.
type Deps struct {
	Quotes   Quoter
	Risk     RiskGate
	Balances Balances
	Swaps    SwapBuilder
	Signer   Signer
	Txs      TxSender
	Bundles  BundleSender
	Recorder TradeRecorder
	Lock     ExecutionLock
}

// New creates an Orchestrator for the given assets. params must be the
// scanner's so reverification uses the same estimator.
func New(cfg Config, params scanner.Params, assets []domain.Asset, deps Deps, logger *slog.Logger) *Orchestrator {
	bySymbol := make(map[string]domain.Asset, len(assets))
	for _, a := range assets {
		bySymbol[a.Symbol] = a
	}
	lock := deps.Lock
	if lock == nil {
		lock = NewMemoryLock()
	}
	return &Orchestrator{
		cfg:      cfg,
		params:   params,
		assets:   bySymbol,
		quotes:   deps.Quotes,
		risk:     deps.Risk,
		balances: deps.Balances,
		swaps:    deps.Swaps,
		signer:   deps.Signer,
		txs:      deps.Txs,
		bundles:  deps.Bundles,
		recorder: deps.Recorder,
		lock:     lock,
		dedup:    NewDedup(10 * time.Minute),
		logger:   logger.With(slog.String("component", "executor")),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Stats returns a snapshot of the outcome counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Attempts:  o.attempts.Load(),
		Successes: o.successes.Load(),
		Partials:  o.partials.Load(),
		Failures:  o.failures.Load(),
		Rejected:  o.rejected.Load(),
	}
}

// CleanupDedup forgets opportunity IDs older than the dedup window.
func (o *Orchestrator) CleanupDedup() int { return o.dedup.Cleanup() }

// Execute runs opp through the state machine and always returns a result;
// failures are described by the result, never returned as errors. Results
// rejected before the lock is taken are not persisted.
func (o *Orchestrator) Execute(ctx context.Context, opp domain.Opportunity) domain.TradeResult {
	start := o.now()
	log := o.logger.With(
		slog.String("opp_id", opp.ID),
		slog.String("symbol", opp.Symbol),
		slog.String("buy", string(opp.BuySource)),
		slog.String("sell", string(opp.SellSource)),
	)

	if !opp.IsValid(start) {
		return o.reject(ctx, log, opp, start, domain.ErrExpired)
	}
	if !o.risk.BeforeExecute() {
		return o.reject(ctx, log, opp, start, domain.ErrRiskLimit)
	}
	asset, ok := o.assets[opp.Symbol]
	if !ok {
		return o.reject(ctx, log, opp, start, fmt.Errorf("unknown asset %q", opp.Symbol))
	}

	release, err := o.lock.Acquire(ctx)
	if err != nil {
		return o.reject(ctx, log, opp, start, err)
	}
	defer release()

	// From here on the trade may commit capital; shutdown waits for it.
	ctx = context.WithoutCancel(ctx)

	if !opp.IsValid(o.now()) {
		return o.reject(ctx, log, opp, start, domain.ErrExpired)
	}
	if o.dedup.IsDuplicate(opp.ID) {
		return o.reject(ctx, log, opp, start, errors.New("opportunity already attempted"))
	}

	o.attempts.Add(1)
	log.InfoContext(ctx, "executor: executing opportunity",
		slog.String("size", opp.Size.StringFixed(2)),
		slog.String("expected", opp.ExpectedNet.StringFixed(2)),
	)

	res := o.run(ctx, log, opp, asset)
	res.OpportunityID = opp.ID
	res.ExecutedAt = o.now()
	res.Duration = res.ExecutedAt.Sub(start)

	o.settle(ctx, log, opp, res)
	return res
}

// run executes the post-lock steps and converts panics into fatal results.
func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, opp domain.Opportunity, asset domain.Asset) (res domain.TradeResult) {
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "executor: panic during execution", slog.Any("panic", r))
			res = o.fatal(domain.ExecPathNone, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := o.reverify(ctx, opp, asset); err != nil {
		return o.abort(domain.ExecPathNone, err)
	}
	initialQuote, err := o.confirmSize(ctx, opp)
	if err != nil {
		return o.abort(domain.ExecPathNone, err)
	}

	if o.useAtomic(opp) {
		return o.executeAtomic(ctx, log, opp, asset)
	}
	return o.executeSequential(ctx, log, opp, asset, initialQuote)
}

// reverify re-quotes both legs and recomputes spread and margin.
func (o *Orchestrator) reverify(ctx context.Context, opp domain.Opportunity, asset domain.Asset) error {
	buy, ok := o.quotes.Fresh(ctx, opp.BuySource, asset)
	if !ok {
		return fmt.Errorf("reverify: %w: %s", domain.ErrNoQuotes, opp.BuySource)
	}
	sell, ok := o.quotes.Fresh(ctx, opp.SellSource, asset)
	if !ok {
		return fmt.Errorf("reverify: %w: %s", domain.ErrNoQuotes, opp.SellSource)
	}
	if !buy.Price.IsPositive() {
		return fmt.Errorf("reverify: %w: non-positive buy price", domain.ErrStaleSpread)
	}

	spread := sell.Price.Sub(buy.Price).Div(buy.Price).Mul(decimal.NewFromInt(100))
	if spread.LessThan(o.cfg.MinRequiredSpreadPct) {
		return fmt.Errorf("reverify: %w: spread %s%% below %s%%",
			domain.ErrStaleSpread, spread.StringFixed(3), o.cfg.MinRequiredSpreadPct.String())
	}
	est := o.params.Estimate(buy.Price, sell.Price, opp.Size)
	if est.MarginPct.LessThan(o.cfg.MinMarginPct) {
		return fmt.Errorf("reverify: %w: margin %s%% below %s%%",
			domain.ErrStaleSpread, est.MarginPct.StringFixed(3), o.cfg.MinMarginPct.String())
	}
	return nil
}

// confirmSize checks the fee and quote balances and returns the quote
// balance before trading.
func (o *Orchestrator) confirmSize(ctx context.Context, opp domain.Opportunity) (decimal.Decimal, error) {
	fee, err := o.balances.FeeBalance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("size confirm: %w", err)
	}
	if fee.LessThan(o.cfg.MinFeeBalanceSOL) {
		return decimal.Zero, fmt.Errorf("size confirm: %w: %s SOL below %s SOL",
			domain.ErrInsufficientBalance, fee.String(), o.cfg.MinFeeBalanceSOL.String())
	}
	quote, err := o.balances.QuoteBalance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("size confirm: %w", err)
	}
	if quote.LessThan(opp.Size) {
		return decimal.Zero, fmt.Errorf("size confirm: %w: %s USDC below size %s",
			domain.ErrInsufficientBalance, quote.StringFixed(2), opp.Size.StringFixed(2))
	}
	return quote, nil
}

func (o *Orchestrator) useAtomic(opp domain.Opportunity) bool {
	return o.bundles != nil && opp.ExpectedNet.GreaterThan(o.cfg.Bundle.MinProfitUSD)
}

// settle persists the result and feeds losses to the risk gate.
func (o *Orchestrator) settle(ctx context.Context, log *slog.Logger, opp domain.Opportunity, res domain.TradeResult) {
	switch {
	case res.Success:
		o.successes.Add(1)
	case res.Partial:
		o.partials.Add(1)
	default:
		o.failures.Add(1)
	}

	attrs := []any{
		slog.Bool("success", res.Success),
		slog.Bool("partial", res.Partial),
		slog.String("path", string(res.Path)),
		slog.Duration("duration", res.Duration),
	}
	if res.RealizedPnL != nil {
		attrs = append(attrs, slog.String("realized", res.RealizedPnL.StringFixed(4)))
	}
	if res.Error != "" {
		attrs = append(attrs, slog.String("error", res.Error))
	}
	if res.Success {
		log.InfoContext(ctx, "executor: trade settled", attrs...)
	} else {
		log.WarnContext(ctx, "executor: trade failed", attrs...)
	}

	opp.Executed = true
	if o.recorder != nil {
		if err := o.recorder.RecordTrade(ctx, domain.TradeRecord{Opportunity: opp, Result: res}); err != nil {
			log.ErrorContext(ctx, "executor: record trade failed", slog.String("error", err.Error()))
		}
	}
	if loss := res.Loss(); loss.IsPositive() {
		o.risk.RecordLoss(ctx, loss)
	}
}

func (o *Orchestrator) reject(ctx context.Context, log *slog.Logger, opp domain.Opportunity, start time.Time, err error) domain.TradeResult {
	o.rejected.Add(1)
	log.InfoContext(ctx, "executor: opportunity rejected", slog.String("reason", err.Error()))
	now := o.now()
	return domain.TradeResult{
		OpportunityID: opp.ID,
		Error:         err.Error(),
		ExecutedAt:    now,
		Duration:      now.Sub(start),
	}
}

// abort is a failure before any capital was committed.
func (o *Orchestrator) abort(path domain.ExecPath, err error) domain.TradeResult {
	return domain.TradeResult{Path: path, Error: err.Error()}
}

// partial is a failure after the buy leg confirmed.
func (o *Orchestrator) partial(path domain.ExecPath, buyRef string, err error, size decimal.Decimal) domain.TradeResult {
	loss := decimal.Min(o.cfg.AssumedFailureLossUSD, size).Neg()
	return domain.TradeResult{
		Path:         path,
		Partial:      true,
		BuyRef:       buyRef,
		RealizedPnL:  &loss,
		Error:        err.Error(),
		CostIncurred: o.cfg.GasPerTxSOL.Mul(decimal.NewFromInt(2)),
	}
}

// fatal is any other failure after capital may have been committed.
func (o *Orchestrator) fatal(path domain.ExecPath, err error) domain.TradeResult {
	loss := o.cfg.AssumedFailureLossUSD.Neg()
	return domain.TradeResult{
		Path:         path,
		RealizedPnL:  &loss,
		Error:        err.Error(),
		CostIncurred: o.cfg.AssumedFailureGasSOL,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
