package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbengine/internal/bundle"
	"github.com/alanyoungcy/arbengine/internal/chain"
	"github.com/alanyoungcy/arbengine/internal/crypto"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
	"github.com/alanyoungcy/arbengine/internal/executor"
	"github.com/alanyoungcy/arbengine/internal/quote"
	"github.com/alanyoungcy/arbengine/internal/scanner"
	"github.com/alanyoungcy/arbengine/internal/server"
	"github.com/alanyoungcy/arbengine/internal/server/handler"
	"github.com/alanyoungcy/arbengine/internal/server/ws"
	"github.com/alanyoungcy/arbengine/internal/service"
	"github.com/alanyoungcy/arbengine/internal/venue"
)

const (
	executionLockKey = "arbengine:execution"
	apiLimiterKey    = "api"
	shutdownTimeout  = 10 * time.Second
)

// TradeMode scans, executes and serves the API.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	return a.runEngine(ctx, deps, true)
}

// ScanMode is the dry run: opportunities are detected against a paper
// balance and persisted, but nothing is executed.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	return a.runEngine(ctx, deps, false)
}

// ServerMode only serves the API over the configured stores.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting server mode")

	risk := a.newRiskManager(ctx, deps)
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil, risk)
	return g.Wait()
}

func (a *App) runEngine(ctx context.Context, deps *Dependencies, trade bool) error {
	cfg := a.cfg
	assets := assetsFromConfig(cfg)
	params := scannerParams(cfg)

	jup := venue.NewJupiter(venue.JupiterConfig{
		BaseURL:       cfg.Venues.JupiterURL,
		QuoteMint:     cfg.Chain.QuoteMint,
		QuoteDecimals: cfg.Chain.QuoteDecimals,
		SlippageBps:   cfg.Venues.QuoteSlippage,
		Timeout:       cfg.Venues.Timeout.Duration,
	})
	dex := venue.NewDexScreener(venue.DexScreenerConfig{
		BaseURL:   cfg.Venues.DexScreenerURL,
		UserAgent: cfg.Venues.UserAgent,
		Timeout:   cfg.Venues.Timeout.Duration,
	}, deps.PairsCache, deps.Limiter)
	sources, err := venue.Sources(cfg.Venues.Enabled, jup, dex)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	agg := quote.NewAggregator(sources, deps.QuoteCache, deps.Limiter, a.logger)

	rpc, err := chain.NewClient(ctx, cfg.Chain.RPCURL, cfg.Chain.Timeout.Duration, deps.DecimalsCache, deps.Limiter, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.closers = append(a.closers, rpc.Close)
	a.checkTokenDecimals(ctx, rpc, assets)

	risk := a.newRiskManager(ctx, deps)
	oppSvc := service.NewOpportunityService(deps.Opportunities, deps.SignalBus, deps.Audit, deps.Notifier,
		cfg.Execution.NotifyOpportunities, a.logger)
	tradeSvc := service.NewTradeService(deps.Trades, deps.SignalBus, deps.Audit, deps.Notifier, a.logger)

	engDeps := engine.Deps{
		Assets: assets,
		Prices: agg,
		Risk:   risk,
		Chain:  rpc,
		Caches: deps.Expirers,
	}
	if deps.Archiver != nil {
		engDeps.Archiver = deps.Archiver
	}

	var orch *executor.Orchestrator
	var balance scanner.BalanceSource = service.PaperBalance{Amount: dec(cfg.Scanner.PaperBalanceUSD)}
	if trade {
		var wallet *service.BalanceService
		orch, wallet, err = a.buildExecutor(ctx, deps, rpc, jup, agg, risk, tradeSvc, assets, params)
		if err != nil {
			return err
		}
		engDeps.Executor = orch
		engDeps.Balance = wallet
		balance = wallet
	}
	engDeps.Scanner = scanner.New(agg, balance, oppSvc, params, a.logger)
	engDeps.StatsLog = a.statsLogger(deps, orch)

	eng := engine.New(engineConfig(cfg), engDeps, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps, eng, risk)
	return g.Wait()
}

func (a *App) buildExecutor(
	ctx context.Context,
	deps *Dependencies,
	rpc *chain.Client,
	jup *venue.Jupiter,
	agg *quote.Aggregator,
	risk *service.RiskManager,
	recorder executor.TradeRecorder,
	assets []domain.Asset,
	params scanner.Params,
) (*executor.Orchestrator, *service.BalanceService, error) {
	cfg := a.cfg

	seed, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("app: load wallet key: %w", err)
	}
	wallet, err := chain.NewWallet(seed)
	if err != nil {
		return nil, nil, fmt.Errorf("app: %w", err)
	}
	balances := service.NewBalanceService(rpc, wallet.PublicKey(), cfg.Chain.QuoteMint, cfg.Chain.QuoteDecimals)

	if q, err := balances.QuoteBalance(ctx); err == nil {
		a.logger.InfoContext(ctx, "app: wallet ready",
			slog.String("wallet", wallet.PublicKey()),
			slog.String("quote_balance", q.StringFixed(2)),
		)
	} else {
		a.logger.WarnContext(ctx, "app: starting balance unavailable", slog.String("error", err.Error()))
	}

	execDeps := executor.Deps{
		Quotes:   agg,
		Risk:     risk,
		Balances: balances,
		Swaps:    jup,
		Signer:   wallet,
		Txs:      rpc,
		Recorder: recorder,
	}
	if cfg.Bundle.Enabled {
		bc, err := bundle.NewClient(ctx, cfg.Bundle.BlockEngineURL, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, bc.Close)
		execDeps.Bundles = bc
	}
	if cfg.Execution.LockBackend == "redis" && deps.Locks != nil {
		execDeps.Lock = executor.NewDistributedLock(deps.Locks, executionLockKey, cfg.Execution.LockTTL.Duration)
	}

	return executor.New(executorConfig(cfg), params, assets, execDeps, a.logger), balances, nil
}

// newRiskManager builds the risk manager and re-seeds today's loss from the
// trade store so a restart cannot reset the daily limit.
func (a *App) newRiskManager(ctx context.Context, deps *Dependencies) *service.RiskManager {
	risk := service.NewRiskManager(dec(a.cfg.Risk.MaxDailyLossUSD), deps.SignalBus, deps.Notifier, a.logger)
	if err := risk.Restore(ctx, deps.Trades); err != nil {
		a.logger.WarnContext(ctx, "app: restore daily loss failed", slog.String("error", err.Error()))
	}
	return risk
}

// checkTokenDecimals warns when an asset's configured decimals disagree with
// the mint. Lookup failures are not fatal.
func (a *App) checkTokenDecimals(ctx context.Context, rpc *chain.Client, assets []domain.Asset) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	for _, asset := range assets {
		onChain, err := rpc.TokenDecimals(ctx, asset.Mint)
		if err != nil {
			a.logger.WarnContext(ctx, "app: token decimals lookup failed",
				slog.String("symbol", asset.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		if onChain != asset.Decimals {
			a.logger.WarnContext(ctx, "app: configured decimals differ from mint",
				slog.String("symbol", asset.Symbol),
				slog.Int("configured", int(asset.Decimals)),
				slog.Int("mint", int(onChain)),
			)
		}
	}
}

func (a *App) statsLogger(deps *Dependencies, orch *executor.Orchestrator) func(context.Context) {
	return func(ctx context.Context) {
		for _, s := range deps.LimiterStats() {
			a.logger.DebugContext(ctx, "app: limiter stats",
				slog.String("key", s.Key),
				slog.Int64("requests", s.Requests),
				slog.Int64("waits", s.Waits),
				slog.Duration("avg_wait", s.AverageWait),
			)
		}
		for _, s := range deps.CacheStats() {
			a.logger.DebugContext(ctx, "app: cache stats",
				slog.String("name", s.Name),
				slog.Int("size", s.Size),
				slog.Float64("hit_rate", s.HitRate),
			)
		}
		if deps.Redis != nil {
			total, idle, timeouts := deps.Redis.PoolStats()
			a.logger.DebugContext(ctx, "app: redis pool",
				slog.Any("total_conns", total),
				slog.Any("idle_conns", idle),
				slog.Any("timeouts", timeouts),
			)
		}
		if orch != nil {
			st := orch.Stats()
			a.logger.InfoContext(ctx, "app: execution stats",
				slog.Int64("attempts", st.Attempts),
				slog.Int64("successes", st.Successes),
				slog.Int64("partials", st.Partials),
				slog.Int64("failures", st.Failures),
				slog.Int64("rejected", st.Rejected),
			)
		}
	}
}

// startHTTPServer adds the API server, its websocket hub and the shutdown
// watcher to g. status may be nil.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	status *engine.Engine,
	risk *service.RiskManager,
) {
	if !a.cfg.Server.Enabled {
		return
	}

	var sp handler.StatusProvider
	var hubStatus ws.StatusProvider
	if status != nil {
		sp, hubStatus = status, status
	}

	hub := ws.NewHub(deps.SignalBus, hubStatus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		Limiter:      deps.Limiter,
		RateLimitKey: apiLimiterKey,
	}, server.Handlers{
		Health:        handler.NewHealthHandler(sp, deps.Checks, a.logger),
		Opportunities: handler.NewOpportunityHandler(deps.Opportunities, a.logger),
		Trades:        handler.NewTradeHandler(deps.Trades, a.logger),
		Risk:          handler.NewRiskHandler(risk),
		Stats: handler.NewStatsHandler(handler.StatsSources{
			Limiters: deps.LimiterStats,
			Caches:   deps.CacheStats,
		}),
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
