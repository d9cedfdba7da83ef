// Package config defines the top-level configuration for the arbitrage engine
// and provides validation helpers.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBENGINE_* environment variables.
type Config struct {
	Wallet     WalletConfig               `toml:"wallet"`
	Chain      ChainConfig                `toml:"chain"`
	Venues     VenuesConfig               `toml:"venues"`
	Assets     []AssetConfig              `toml:"assets"`
	RateLimits map[string]RateLimitConfig `toml:"rate_limits"`
	Cache      CacheConfig                `toml:"cache"`
	Scanner    ScannerConfig              `toml:"scanner"`
	Execution  ExecutionConfig            `toml:"execution"`
	Bundle     BundleConfig               `toml:"bundle"`
	Risk       RiskConfig                 `toml:"risk"`
	Engine     EngineConfig               `toml:"engine"`
	Storage    StorageConfig              `toml:"storage"`
	Postgres   PostgresConfig             `toml:"postgres"`
	SQLite     SQLiteConfig               `toml:"sqlite"`
	Redis      RedisConfig                `toml:"redis"`
	S3         S3Config                   `toml:"s3"`
	Archive    ArchiveConfig              `toml:"archive"`
	Server     ServerConfig               `toml:"server"`
	Notify     NotifyConfig               `toml:"notify"`
	Mode       string                     `toml:"mode"`
	LogLevel   string                     `toml:"log_level"`
}

// WalletConfig holds Solana wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds Solana RPC endpoints and currency parameters.
type ChainConfig struct {
	RPCURL        string `toml:"rpc_url"`
	QuoteMint     string `toml:"quote_mint"`
	QuoteDecimals int32  `toml:"quote_decimals"`
	// FeeAssetPriceUSD converts SOL-denominated gas and tips to USD.
	FeeAssetPriceUSD float64  `toml:"fee_asset_price_usd"`
	Timeout          duration `toml:"timeout"`
}

// VenuesConfig holds quote provider endpoints.
type VenuesConfig struct {
	Enabled        []string `toml:"enabled"`
	JupiterURL     string   `toml:"jupiter_url"`
	DexScreenerURL string   `toml:"dexscreener_url"`
	UserAgent      string   `toml:"user_agent"`
	Timeout        duration `toml:"timeout"`
	QuoteSlippage  int      `toml:"quote_slippage_bps"`
}

// AssetConfig describes one tracked token.
type AssetConfig struct {
	Symbol       string  `toml:"symbol"`
	Mint         string  `toml:"mint"`
	Decimals     int32   `toml:"decimals"`
	MinLiquidity float64 `toml:"min_liquidity"`
	MaxPosition  float64 `toml:"max_position"`
}

// RateLimitConfig is a token bucket: Rate tokens per second, Burst capacity.
type RateLimitConfig struct {
	Rate  float64 `toml:"rate"`
	Burst int     `toml:"burst"`
}

// CacheSizing holds TTL and capacity for one cache instance.
type CacheSizing struct {
	TTL     duration `toml:"ttl"`
	MaxSize int      `toml:"max_size"`
}

// CacheConfig holds quote cache parameters. Backend is "memory" or "redis".
type CacheConfig struct {
	Backend   string      `toml:"backend"`
	Quote     CacheSizing `toml:"quote"`
	Pairs     CacheSizing `toml:"pairs"`
	TokenInfo CacheSizing `toml:"token_info"`
}

// ImpactBand maps notionals up to MaxNotional to a flat per-leg impact.
type ImpactBand struct {
	MaxNotional float64 `toml:"max_notional"`
	Impact      float64 `toml:"impact"`
}

// ScannerConfig holds opportunity detection and sizing parameters.
type ScannerConfig struct {
	MinPriceDiffPct   float64      `toml:"min_price_diff_pct"`
	MinProfitUSD      float64      `toml:"min_profit_usd"`
	MinMarginPct      float64      `toml:"min_margin_pct"`
	MinPositionUSD    float64      `toml:"min_position_usd"`
	MaxPositionUSD    float64      `toml:"max_position_usd"`
	MaxPriceImpact    float64      `toml:"max_price_impact"`
	BalanceFraction   float64      `toml:"balance_fraction"`
	LiquidityFraction float64      `toml:"liquidity_fraction"`
	SwapFeeRate       float64      `toml:"swap_fee_rate"`
	GasEstimateSOL    float64      `toml:"gas_estimate_sol"`
	ImpactBands       []ImpactBand `toml:"impact_bands"`
	// ImpactLinearRate is applied per ImpactLinearUnit of notional above the
	// last flat band.
	ImpactLinearRate float64  `toml:"impact_linear_rate"`
	ImpactLinearUnit float64  `toml:"impact_linear_unit"`
	Validity         duration `toml:"validity"`
	PaperBalanceUSD  float64  `toml:"paper_balance_usd"`
}

// ExecutionConfig holds execution orchestrator parameters.
type ExecutionConfig struct {
	MinRequiredSpreadPct  float64  `toml:"min_required_spread_pct"`
	MinMarginPct          float64  `toml:"min_margin_pct"`
	MinFeeBalanceSOL      float64  `toml:"min_fee_balance_sol"`
	BuySlippageBps        int      `toml:"buy_slippage_bps"`
	SellSlippageBps       int      `toml:"sell_slippage_bps"`
	PriorityFeeLamports   int64    `toml:"priority_fee_lamports"`
	ConfirmRetries        int      `toml:"confirm_retries"`
	ConfirmInterval       duration `toml:"confirm_interval"`
	SettleDelay           duration `toml:"settle_delay"`
	GasPerTxSOL           float64  `toml:"gas_per_tx_sol"`
	AssumedFailureLossUSD float64  `toml:"assumed_failure_loss_usd"`
	AssumedFailureGasSOL  float64  `toml:"assumed_failure_gas_sol"`
	LockBackend           string   `toml:"lock_backend"`
	LockTTL               duration `toml:"lock_ttl"`
	NotifyOpportunities   bool     `toml:"notify_opportunities"`
}

// BundleConfig holds atomic bundle relay parameters.
type BundleConfig struct {
	Enabled        bool     `toml:"enabled"`
	BlockEngineURL string   `toml:"block_engine_url"`
	MinProfitUSD   float64  `toml:"min_profit_usd"`
	TipFraction    float64  `toml:"tip_fraction"`
	MinTipLamports int64    `toml:"min_tip_lamports"`
	MaxTipLamports int64    `toml:"max_tip_lamports"`
	Timeout        duration `toml:"timeout"`
	PollInterval   duration `toml:"poll_interval"`
}

// RiskConfig holds risk limits.
type RiskConfig struct {
	MaxDailyLossUSD float64 `toml:"max_daily_loss_usd"`
}

// EngineConfig holds monitor loop parameters.
type EngineConfig struct {
	ScanInterval           duration `toml:"scan_interval"`
	MaxIdleInterval        duration `toml:"max_idle_interval"`
	IdleBackoff            float64  `toml:"idle_backoff"`
	MaxConsecutiveFailures int      `toml:"max_consecutive_failures"`
	Cooldown               duration `toml:"cooldown"`
	HealthInterval         duration `toml:"health_interval"`
	MinQuoteBalanceUSD     float64  `toml:"min_quote_balance_usd"`
	RebalanceTargetUSD     float64  `toml:"rebalance_target_usd"`
	RebalanceMinValueUSD   float64  `toml:"rebalance_min_value_usd"`
}

// StorageConfig selects the persistence backend: "sqlite" or "postgres".
type StorageConfig struct {
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls retention of opportunity and trade history.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:           "https://api.mainnet-beta.solana.com",
			QuoteMint:        "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			QuoteDecimals:    6,
			FeeAssetPriceUSD: 150,
			Timeout:          duration{10 * time.Second},
		},
		Venues: VenuesConfig{
			Enabled:        []string{"jupiter", "raydium", "orca"},
			JupiterURL:     "https://quote-api.jup.ag/v6",
			DexScreenerURL: "https://api.dexscreener.com",
			UserAgent:      "ArbitrageBot/2.0",
			Timeout:        duration{5 * time.Second},
			QuoteSlippage:  50,
		},
		RateLimits: map[string]RateLimitConfig{
			"jupiter":     {Rate: 10, Burst: 20},
			"raydium":     {Rate: 5, Burst: 10},
			"orca":        {Rate: 5, Burst: 10},
			"meteora":     {Rate: 5, Burst: 10},
			"dexscreener": {Rate: 3, Burst: 5},
			"rpc":         {Rate: 40, Burst: 50},
			"transaction": {Rate: 5, Burst: 10},
			"default":     {Rate: 5, Burst: 10},
			"api":         {Rate: 20, Burst: 40},
		},
		Cache: CacheConfig{
			Backend:   "memory",
			Quote:     CacheSizing{TTL: duration{5 * time.Second}, MaxSize: 200},
			Pairs:     CacheSizing{TTL: duration{3 * time.Second}, MaxSize: 500},
			TokenInfo: CacheSizing{TTL: duration{300 * time.Second}, MaxSize: 100},
		},
		Scanner: ScannerConfig{
			MinPriceDiffPct:   0.7,
			MinProfitUSD:      10,
			MinMarginPct:      1.0,
			MinPositionUSD:    10,
			MaxPositionUSD:    5000,
			MaxPriceImpact:    0.01,
			BalanceFraction:   0.5,
			LiquidityFraction: 0.1,
			SwapFeeRate:       0.0025,
			GasEstimateSOL:    0.00003,
			ImpactBands: []ImpactBand{
				{MaxNotional: 100, Impact: 0.0001},
				{MaxNotional: 1000, Impact: 0.0005},
			},
			ImpactLinearRate: 0.001,
			ImpactLinearUnit: 10000,
			Validity:         duration{10 * time.Second},
			PaperBalanceUSD:  1000,
		},
		Execution: ExecutionConfig{
			MinRequiredSpreadPct:  1.2,
			MinMarginPct:          1.0,
			MinFeeBalanceSOL:      0.1,
			BuySlippageBps:        100,
			SellSlippageBps:       200,
			PriorityFeeLamports:   10000,
			ConfirmRetries:        15,
			ConfirmInterval:       duration{500 * time.Millisecond},
			SettleDelay:           duration{time.Second},
			GasPerTxSOL:           0.00001,
			AssumedFailureLossUSD: 10,
			AssumedFailureGasSOL:  0.005,
			LockBackend:           "memory",
			LockTTL:               duration{2 * time.Minute},
		},
		Bundle: BundleConfig{
			Enabled:        false,
			BlockEngineURL: "https://mainnet.block-engine.jito.wtf",
			MinProfitUSD:   50,
			TipFraction:    0.15,
			MinTipLamports: 10_000,
			MaxTipLamports: 1_000_000,
			Timeout:        duration{30 * time.Second},
			PollInterval:   duration{time.Second},
		},
		Risk: RiskConfig{
			MaxDailyLossUSD: 100,
		},
		Engine: EngineConfig{
			ScanInterval:           duration{5 * time.Second},
			MaxIdleInterval:        duration{30 * time.Second},
			IdleBackoff:            1.5,
			MaxConsecutiveFailures: 5,
			Cooldown:               duration{30 * time.Second},
			HealthInterval:         duration{60 * time.Second},
			MinQuoteBalanceUSD:     10,
			RebalanceTargetUSD:     20,
			RebalanceMinValueUSD:   5,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{
			Path: "arbitrage.db",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbengine-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 30,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_executed", "trade_failed", "daily_loss_limit", "error"},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":  true,
	"scan":   true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var knownVenues = []string{"jupiter", "raydium", "orca", "meteora"}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, scan, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet is only needed when trades are signed.
	if c.Mode == "trade" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode trade")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.QuoteMint == "" {
		errs = append(errs, "chain: quote_mint must not be empty")
	}
	if c.Chain.FeeAssetPriceUSD <= 0 {
		errs = append(errs, "chain: fee_asset_price_usd must be > 0")
	}

	if len(c.Venues.Enabled) < 2 {
		errs = append(errs, "venues: at least two enabled venues are required")
	}
	for _, v := range c.Venues.Enabled {
		if !slices.Contains(knownVenues, v) {
			errs = append(errs, fmt.Sprintf("venues: unknown venue %q", v))
		}
	}

	if c.Mode != "server" && len(c.Assets) == 0 {
		errs = append(errs, "assets: at least one asset must be configured")
	}
	for i, a := range c.Assets {
		if a.Symbol == "" || a.Mint == "" {
			errs = append(errs, fmt.Sprintf("assets[%d]: symbol and mint are required", i))
		}
		if a.Decimals < 0 || a.Decimals > 18 {
			errs = append(errs, fmt.Sprintf("assets[%d]: decimals must be 0-18, got %d", i, a.Decimals))
		}
	}

	for key, rl := range c.RateLimits {
		if rl.Rate <= 0 || rl.Burst < 1 {
			errs = append(errs, fmt.Sprintf("rate_limits.%s: rate must be > 0 and burst >= 1", key))
		}
	}

	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: memory, redis)", c.Cache.Backend))
	}
	if c.Cache.Quote.MaxSize < 1 || c.Cache.Pairs.MaxSize < 1 || c.Cache.TokenInfo.MaxSize < 1 {
		errs = append(errs, "cache: max_size must be >= 1")
	}

	if c.Scanner.MinPriceDiffPct <= 0 {
		errs = append(errs, "scanner: min_price_diff_pct must be > 0")
	}
	if c.Scanner.MaxPriceImpact <= 0 {
		errs = append(errs, "scanner: max_price_impact must be > 0")
	}
	if c.Scanner.MaxPositionUSD <= 0 {
		errs = append(errs, "scanner: max_position_usd must be > 0")
	}
	for i := 1; i < len(c.Scanner.ImpactBands); i++ {
		prev, cur := c.Scanner.ImpactBands[i-1], c.Scanner.ImpactBands[i]
		if cur.MaxNotional <= prev.MaxNotional || cur.Impact < prev.Impact {
			errs = append(errs, "scanner: impact_bands must be ascending in max_notional and impact")
			break
		}
	}
	if c.Scanner.ImpactLinearUnit <= 0 {
		errs = append(errs, "scanner: impact_linear_unit must be > 0")
	}

	if c.Execution.ConfirmRetries < 1 {
		errs = append(errs, "execution: confirm_retries must be >= 1")
	}
	if c.Execution.LockBackend != "memory" && c.Execution.LockBackend != "redis" {
		errs = append(errs, fmt.Sprintf("execution: unknown lock_backend %q (valid: memory, redis)", c.Execution.LockBackend))
	}

	if c.Bundle.Enabled {
		if c.Bundle.BlockEngineURL == "" {
			errs = append(errs, "bundle: block_engine_url must not be empty when enabled")
		}
		if c.Bundle.MinTipLamports > c.Bundle.MaxTipLamports {
			errs = append(errs, "bundle: min_tip_lamports must not exceed max_tip_lamports")
		}
	}

	if c.Risk.MaxDailyLossUSD <= 0 {
		errs = append(errs, "risk: max_daily_loss_usd must be > 0")
	}

	if c.Engine.ScanInterval.Duration <= 0 {
		errs = append(errs, "engine: scan_interval must be > 0")
	}
	if c.Engine.IdleBackoff < 1 {
		errs = append(errs, "engine: idle_backoff must be >= 1")
	}

	switch c.Storage.Backend {
	case "sqlite":
		if c.SQLite.Path == "" {
			errs = append(errs, "sqlite: path must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: sqlite, postgres)", c.Storage.Backend))
	}

	needsRedis := c.Cache.Backend == "redis" || c.Execution.LockBackend == "redis"
	if needsRedis && !c.Redis.Enabled {
		errs = append(errs, "redis: must be enabled when cache or lock backend is redis")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
