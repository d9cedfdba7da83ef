// Package engine drives the scan and execute cycle together with the
// periodic health and archival ticks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/executor"
)

// Scanner yields the opportunities found in one pass over the assets.
type Scanner interface {
	Scan(ctx context.Context, assets []domain.Asset) iter.Seq2[domain.Opportunity, error]
}

// Executor runs opportunities and keeps the quote balance topped up.
type Executor interface {
	Execute(ctx context.Context, opp domain.Opportunity) domain.TradeResult
	Rebalance(ctx context.Context, prices executor.PriceLookup, cfg executor.RebalanceConfig) (executor.RebalanceResult, error)
	CleanupDedup() int
}

// BalanceSource reports the spendable quote balance.
type BalanceSource interface {
	QuoteBalance(ctx context.Context) (decimal.Decimal, error)
}

// DayRoller resets daily risk counters at the UTC date boundary.
type DayRoller interface {
	RollDay(now time.Time) bool
}

// BlockHeighter is the chain probe used by the health tick.
type BlockHeighter interface {
	BlockHeight(ctx context.Context) (uint64, error)
}

// Expirer is a cache that can drop its stale entries in bulk.
type Expirer interface {
	ClearExpired() int
}

// ArchiveRunner moves aged records to cold storage.
type ArchiveRunner interface {
	Run(ctx context.Context, retention time.Duration) error
}

// Config holds the loop timings.
type Config struct {
	Mode                   string
	ScanInterval           time.Duration
	MaxIdleInterval        time.Duration
	IdleBackoff            float64
	MaxConsecutiveFailures int
	Cooldown               time.Duration
	HealthInterval         time.Duration
	ArchiveInterval        time.Duration
	Retention              time.Duration
	Rebalance              executor.RebalanceConfig
}

// Deps are the engine's collaborators. Executor is nil in scan mode, and
// Chain, Archiver and Prices may be nil when not configured.
type Deps struct {
	Assets   []domain.Asset
	Scanner  Scanner
	Executor Executor
	Balance  BalanceSource
	Prices   executor.PriceLookup
	Risk     DayRoller
	Chain    BlockHeighter
	Caches   []Expirer
	Archiver ArchiveRunner

	// StatsLog, when set, is called on every health tick to log counters.
	StatsLog func(ctx context.Context)
}

// Engine runs the monitor loop, the health tick and the archive tick.
type Engine struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) bool
	now    func() time.Time

	startedAt     time.Time
	running       atomic.Bool
	cycles        atomic.Int64
	failedCycles  atomic.Int64
	opportunities atomic.Int64
	executions    atomic.Int64
}

// New creates an Engine.
func New(cfg Config, deps Deps, logger *slog.Logger) *Engine {
	if cfg.IdleBackoff < 1 {
		cfg.IdleBackoff = 1
	}
	if cfg.MaxIdleInterval < cfg.ScanInterval {
		cfg.MaxIdleInterval = cfg.ScanInterval
	}
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "engine")),
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

// Run starts every loop in one errgroup and blocks until ctx is cancelled or
// a loop fails.
func (e *Engine) Run(ctx context.Context) error {
	e.startedAt = e.now()
	e.running.Store(true)
	defer e.running.Store(false)

	e.logger.InfoContext(ctx, "engine: starting",
		slog.String("mode", e.cfg.Mode),
		slog.Int("assets", len(e.deps.Assets)),
		slog.Duration("scan_interval", e.cfg.ScanInterval),
		slog.Bool("execution", e.deps.Executor != nil),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.monitor(ctx)
	})
	if e.cfg.HealthInterval > 0 {
		g.Go(func() error {
			e.tick(ctx, e.cfg.HealthInterval, e.healthTick)
			return nil
		})
	}
	if e.deps.Archiver != nil && e.cfg.ArchiveInterval > 0 {
		g.Go(func() error {
			e.tick(ctx, e.cfg.ArchiveInterval, e.archiveTick)
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error("engine: stopped with error", slog.String("error", err.Error()))
		return err
	}
	e.logger.Info("engine: stopped cleanly", slog.Int64("cycles", e.cycles.Load()))
	return nil
}

// Status implements the status provider used by the API.
func (e *Engine) Status() domain.EngineStatus {
	var uptime int64
	if e.running.Load() {
		uptime = int64(e.now().Sub(e.startedAt).Seconds())
	}
	return domain.EngineStatus{
		Mode:             e.cfg.Mode,
		Running:          e.running.Load(),
		UptimeSeconds:    uptime,
		Cycles:           e.cycles.Load(),
		FailedCycles:     e.failedCycles.Load(),
		OpportunityCount: e.opportunities.Load(),
		Executions:       e.executions.Load(),
	}
}

// monitor scans, executes the best opportunity and sleeps. Consecutive
// failed cycles beyond the limit pause scanning for the cooldown; cycles
// that find nothing stretch the interval up to MaxIdleInterval.
func (e *Engine) monitor(ctx context.Context) error {
	interval := e.cfg.ScanInterval
	failures := 0

	for ctx.Err() == nil {
		found, err := e.cycle(ctx)
		switch {
		case errors.Is(err, errSkipCycle):
			if !e.sleep(ctx, e.cfg.Cooldown) {
				return nil
			}
			continue
		case err != nil:
			failures++
			e.failedCycles.Add(1)
			e.logger.ErrorContext(ctx, "engine: cycle failed",
				slog.Int("consecutive_failures", failures),
				slog.String("error", err.Error()),
			)
			if failures > e.cfg.MaxConsecutiveFailures {
				e.logger.WarnContext(ctx, "engine: too many consecutive failures, pausing",
					slog.Duration("cooldown", e.cfg.Cooldown),
				)
				failures = 0
				if !e.sleep(ctx, e.cfg.Cooldown) {
					return nil
				}
			}
		default:
			failures = 0
		}

		if found > 0 {
			interval = e.cfg.ScanInterval
		} else {
			interval = nextIdleInterval(interval, e.cfg.IdleBackoff, e.cfg.MaxIdleInterval)
		}
		if !e.sleep(ctx, interval) {
			return nil
		}
	}
	return nil
}

var errSkipCycle = errors.New("engine: skip cycle")

// cycle runs one scan. The scan itself and any execution run detached from
// ctx so shutdown never interrupts them halfway.
func (e *Engine) cycle(ctx context.Context) (int, error) {
	n := e.cycles.Add(1)
	work := context.WithoutCancel(ctx)

	var opps []domain.Opportunity
	for opp, err := range e.deps.Scanner.Scan(work, e.deps.Assets) {
		if err != nil {
			return len(opps), fmt.Errorf("engine: scan: %w", err)
		}
		opps = append(opps, opp)
	}
	e.opportunities.Add(int64(len(opps)))

	if len(opps) == 0 {
		e.logger.DebugContext(ctx, "engine: no opportunities", slog.Int64("cycle", n))
		return 0, nil
	}
	e.logger.InfoContext(ctx, "engine: opportunities found",
		slog.Int64("cycle", n),
		slog.Int("count", len(opps)),
	)
	if e.deps.Executor == nil {
		return len(opps), nil
	}

	if ok := e.ensureQuoteBalance(work); !ok {
		return len(opps), errSkipCycle
	}

	best := slices.MaxFunc(opps, func(a, b domain.Opportunity) int {
		return a.ExpectedNet.Cmp(b.ExpectedNet)
	})
	res := e.deps.Executor.Execute(work, best)
	e.executions.Add(1)
	e.logger.InfoContext(ctx, "engine: execution finished",
		slog.String("id", best.ID),
		slog.String("symbol", best.Symbol),
		slog.Bool("success", res.Success),
		slog.Bool("partial", res.Partial),
		slog.String("error", res.Error),
	)
	return len(opps), nil
}

// ensureQuoteBalance rebalances when the quote balance is below the trading
// minimum. It reports false when the cycle should be skipped.
func (e *Engine) ensureQuoteBalance(ctx context.Context) bool {
	if e.deps.Balance == nil || e.deps.Prices == nil || e.cfg.Rebalance.MinQuoteBalanceUSD.IsZero() {
		return true
	}
	balance, err := e.deps.Balance.QuoteBalance(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "engine: quote balance unavailable", slog.String("error", err.Error()))
		return true
	}
	if balance.GreaterThanOrEqual(e.cfg.Rebalance.MinQuoteBalanceUSD) {
		return true
	}

	e.logger.InfoContext(ctx, "engine: low quote balance, rebalancing",
		slog.String("balance", balance.StringFixed(2)),
	)
	res, err := e.deps.Executor.Rebalance(ctx, e.deps.Prices, e.cfg.Rebalance)
	if err != nil || res.Sold == 0 {
		attrs := []any{slog.Int("failed", res.Failed)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		e.logger.WarnContext(ctx, "engine: could not rebalance, skipping cycle", attrs...)
		return false
	}
	e.logger.InfoContext(ctx, "engine: rebalanced",
		slog.Int("sold", res.Sold),
		slog.String("recovered", res.Recovered.StringFixed(2)),
	)
	return true
}

func (e *Engine) healthTick(ctx context.Context) {
	if e.deps.Risk != nil && e.deps.Risk.RollDay(e.now()) {
		e.logger.InfoContext(ctx, "engine: daily risk counters reset")
	}

	expired := 0
	for _, c := range e.deps.Caches {
		expired += c.ClearExpired()
	}

	attrs := []any{
		slog.Int("expired_cache_entries", expired),
		slog.Int64("cycles", e.cycles.Load()),
		slog.Int64("failed_cycles", e.failedCycles.Load()),
	}
	if e.deps.Executor != nil {
		attrs = append(attrs, slog.Int("dedup_removed", e.deps.Executor.CleanupDedup()))
	}
	if e.deps.Chain != nil {
		height, err := e.deps.Chain.BlockHeight(ctx)
		if err != nil {
			e.logger.WarnContext(ctx, "engine: rpc health check failed", slog.String("error", err.Error()))
		} else {
			attrs = append(attrs, slog.Uint64("block_height", height))
		}
	}
	e.logger.InfoContext(ctx, "engine: health", attrs...)

	if e.deps.StatsLog != nil {
		e.deps.StatsLog(ctx)
	}
}

func (e *Engine) archiveTick(ctx context.Context) {
	if err := e.deps.Archiver.Run(ctx, e.cfg.Retention); err != nil {
		e.logger.ErrorContext(ctx, "engine: archive run failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) tick(ctx context.Context, every time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func nextIdleInterval(cur time.Duration, factor float64, ceiling time.Duration) time.Duration {
	next := time.Duration(float64(cur) * factor)
	return min(next, ceiling)
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
