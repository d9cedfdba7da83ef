package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/arbengine/internal/blob/s3"
	"github.com/alanyoungcy/arbengine/internal/cache"
	"github.com/alanyoungcy/arbengine/internal/cache/redis"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
	"github.com/alanyoungcy/arbengine/internal/eventbus"
	"github.com/alanyoungcy/arbengine/internal/notify"
	"github.com/alanyoungcy/arbengine/internal/ratelimit"
	"github.com/alanyoungcy/arbengine/internal/server/handler"
	"github.com/alanyoungcy/arbengine/internal/store/postgres"
	"github.com/alanyoungcy/arbengine/internal/store/sqlite"
	"github.com/alanyoungcy/arbengine/internal/venue"
)

// Dependencies bundles the infrastructure every mode shares. It is built by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Opportunities domain.OpportunityStore
	Trades        domain.TradeStore
	Audit         domain.AuditStore

	// Caches, limiter and event fan-out. Redis and Locks are nil without Redis.
	QuoteCache domain.QuoteCache
	Limiter    domain.RateLimiter
	SignalBus  domain.SignalBus
	Redis      *redis.Client
	Locks      *redis.LockManager

	// Per-mint DexScreener listings and token decimals, shared by venues and
	// the chain client.
	PairsCache    *cache.Cache[[]venue.Pair]
	DecimalsCache *cache.Cache[int32]

	// Archiver is nil unless archival is enabled.
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier

	// Introspection for the health tick and the API.
	LimiterStats func() []domain.LimiterStats
	CacheStats   func() []domain.CacheStats
	Expirers     []engine.Expirer
	Checks       map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Pinger)}

	// --- Storage ---
	switch cfg.Storage.Backend {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Opportunities, deps.Trades, deps.Audit = pg.Opportunities(), pg.Trades(), pg.Audit()
		deps.Checks["postgres"] = pg
	default:
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.Opportunities, deps.Trades, deps.Audit = db.Opportunities(), db.Trades(), db.Audit()
		deps.Checks["sqlite"] = db
	}

	// --- Caches, limiter, bus ---
	pairs := cache.New[[]venue.Pair]("pairs", cfg.Cache.Pairs.TTL.Duration, cfg.Cache.Pairs.MaxSize)
	decimals := cache.New[int32]("token_info", cfg.Cache.TokenInfo.TTL.Duration, cfg.Cache.TokenInfo.MaxSize)
	deps.PairsCache, deps.DecimalsCache = pairs, decimals
	deps.Expirers = []engine.Expirer{pairs, decimals}
	cacheStats := []func() domain.CacheStats{pairs.Stats, decimals.Stats}

	useRedis := cfg.Redis.Enabled || cfg.Cache.Backend == "redis" || cfg.Execution.LockBackend == "redis"
	if useRedis {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })
		deps.Checks["redis"] = rc
		deps.Redis = rc

		limiter := redis.NewTokenBucket(rc, redisLimits(cfg))
		deps.Limiter, deps.LimiterStats = limiter, limiter.Stats
		deps.SignalBus = redis.NewSignalBus(rc)
		deps.Locks = redis.NewLockManager(rc)

		if cfg.Cache.Backend == "redis" {
			qc := redis.NewQuoteCache(rc, cfg.Cache.Quote.TTL.Duration)
			deps.QuoteCache = qc
			cacheStats = append(cacheStats, qc.Stats)
		}
	} else {
		limiter := ratelimit.NewRegistry(localLimits(cfg))
		deps.Limiter, deps.LimiterStats = limiter, limiter.Stats
		deps.SignalBus = eventbus.NewLocal()
	}
	if deps.QuoteCache == nil {
		qc := cache.NewQuoteCache(cfg.Cache.Quote.TTL.Duration, cfg.Cache.Quote.MaxSize)
		deps.QuoteCache = qc
		deps.Expirers = append(deps.Expirers, qc)
		cacheStats = append(cacheStats, qc.Stats)
	}
	deps.CacheStats = func() []domain.CacheStats {
		out := make([]domain.CacheStats, 0, len(cacheStats))
		for _, s := range cacheStats {
			out = append(out, s())
		}
		return out
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Archive ---
	if cfg.Archive.Enabled {
		s3c, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3c), deps.Opportunities, deps.Trades, deps.Audit, logger)
		deps.Checks["s3"] = pingerFunc(s3c.Health)
	}

	return deps, cleanup, nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
