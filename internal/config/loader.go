package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBENGINE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). Secrets are expected to arrive this way rather than via the file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "ARBENGINE_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "ARBENGINE_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "ARBENGINE_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "ARBENGINE_CHAIN_RPC_URL")
	setStr(&cfg.Chain.QuoteMint, "ARBENGINE_CHAIN_QUOTE_MINT")
	setFloat64(&cfg.Chain.FeeAssetPriceUSD, "ARBENGINE_CHAIN_FEE_ASSET_PRICE_USD")
	setDuration(&cfg.Chain.Timeout, "ARBENGINE_CHAIN_TIMEOUT")

	// ── Venues ──
	setStringSlice(&cfg.Venues.Enabled, "ARBENGINE_VENUES_ENABLED")
	setStr(&cfg.Venues.JupiterURL, "ARBENGINE_VENUES_JUPITER_URL")
	setStr(&cfg.Venues.DexScreenerURL, "ARBENGINE_VENUES_DEXSCREENER_URL")
	setDuration(&cfg.Venues.Timeout, "ARBENGINE_VENUES_TIMEOUT")

	// ── Cache ──
	setStr(&cfg.Cache.Backend, "ARBENGINE_CACHE_BACKEND")

	// ── Scanner ──
	setFloat64(&cfg.Scanner.MinPriceDiffPct, "ARBENGINE_SCANNER_MIN_PRICE_DIFF_PCT")
	setFloat64(&cfg.Scanner.MinProfitUSD, "ARBENGINE_SCANNER_MIN_PROFIT_USD")
	setFloat64(&cfg.Scanner.MinMarginPct, "ARBENGINE_SCANNER_MIN_MARGIN_PCT")
	setFloat64(&cfg.Scanner.MaxPositionUSD, "ARBENGINE_SCANNER_MAX_POSITION_USD")
	setFloat64(&cfg.Scanner.MaxPriceImpact, "ARBENGINE_SCANNER_MAX_PRICE_IMPACT")
	setFloat64(&cfg.Scanner.PaperBalanceUSD, "ARBENGINE_SCANNER_PAPER_BALANCE_USD")

	// ── Execution ──
	setFloat64(&cfg.Execution.MinRequiredSpreadPct, "ARBENGINE_EXECUTION_MIN_REQUIRED_SPREAD_PCT")
	setInt64(&cfg.Execution.PriorityFeeLamports, "ARBENGINE_EXECUTION_PRIORITY_FEE_LAMPORTS")
	setStr(&cfg.Execution.LockBackend, "ARBENGINE_EXECUTION_LOCK_BACKEND")

	// ── Bundle ──
	setBool(&cfg.Bundle.Enabled, "ARBENGINE_BUNDLE_ENABLED")
	setStr(&cfg.Bundle.BlockEngineURL, "ARBENGINE_BUNDLE_BLOCK_ENGINE_URL")
	setFloat64(&cfg.Bundle.MinProfitUSD, "ARBENGINE_BUNDLE_MIN_PROFIT_USD")
	setInt64(&cfg.Bundle.MinTipLamports, "ARBENGINE_BUNDLE_MIN_TIP_LAMPORTS")
	setInt64(&cfg.Bundle.MaxTipLamports, "ARBENGINE_BUNDLE_MAX_TIP_LAMPORTS")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxDailyLossUSD, "ARBENGINE_RISK_MAX_DAILY_LOSS_USD")

	// ── Engine ──
	setDuration(&cfg.Engine.ScanInterval, "ARBENGINE_ENGINE_SCAN_INTERVAL")
	setInt(&cfg.Engine.MaxConsecutiveFailures, "ARBENGINE_ENGINE_MAX_CONSECUTIVE_FAILURES")
	setDuration(&cfg.Engine.Cooldown, "ARBENGINE_ENGINE_COOLDOWN")

	// ── Storage ──
	setStr(&cfg.Storage.Backend, "ARBENGINE_STORAGE_BACKEND")
	setStr(&cfg.SQLite.Path, "ARBENGINE_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBENGINE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBENGINE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBENGINE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBENGINE_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "ARBENGINE_REDIS_TLS_ENABLED")

	// ── S3 / Archive ──
	setStr(&cfg.S3.Endpoint, "ARBENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "ARBENGINE_S3_FORCE_PATH_STYLE")
	setBool(&cfg.Archive.Enabled, "ARBENGINE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "ARBENGINE_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBENGINE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "ARBENGINE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBENGINE_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBENGINE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBENGINE_MODE")
	setStr(&cfg.LogLevel, "ARBENGINE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
