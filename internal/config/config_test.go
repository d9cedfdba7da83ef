package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
mode = "trade"
log_level = "debug"

[wallet]
private_key = "file-secret"

[venues]
enabled = ["jupiter", "raydium"]

[[assets]]
symbol = "BONK"
mint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
decimals = 5
min_liquidity = 10000

[[assets]]
symbol = "WIF"
mint = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
decimals = 6
min_liquidity = 50000
max_position = 250

[rate_limits.jupiter]
rate = 2
burst = 4

[scanner]
min_profit_usd = 2.5
validity = "15s"

[[scanner.impact_bands]]
max_notional = 200
impact = 0.0002

[engine]
scan_interval = "3s"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "trade", cfg.Mode)
	assert.Equal(t, []string{"jupiter", "raydium"}, cfg.Venues.Enabled)
	require.Len(t, cfg.Assets, 2)
	assert.Equal(t, int32(5), cfg.Assets[0].Decimals)
	assert.Equal(t, 250.0, cfg.Assets[1].MaxPosition)

	assert.Equal(t, RateLimitConfig{Rate: 2, Burst: 4}, cfg.RateLimits["jupiter"])
	// Untouched defaults survive the merge.
	assert.Equal(t, RateLimitConfig{Rate: 40, Burst: 50}, cfg.RateLimits["rpc"])

	assert.Equal(t, 2.5, cfg.Scanner.MinProfitUSD)
	assert.Equal(t, 15*time.Second, cfg.Scanner.Validity.Duration)
	assert.Equal(t, []ImpactBand{{MaxNotional: 200, Impact: 0.0002}}, cfg.Scanner.ImpactBands)
	assert.Equal(t, 0.7, cfg.Scanner.MinPriceDiffPct)
	assert.Equal(t, 3*time.Second, cfg.Engine.ScanInterval.Duration)

	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ARBENGINE_WALLET_PRIVATE_KEY", "env-secret")
	t.Setenv("ARBENGINE_RISK_MAX_DAILY_LOSS_USD", "42.5")
	t.Setenv("ARBENGINE_ENGINE_COOLDOWN", "1m")
	t.Setenv("ARBENGINE_VENUES_ENABLED", "jupiter, orca ,")
	t.Setenv("ARBENGINE_BUNDLE_ENABLED", "true")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Wallet.PrivateKey)
	assert.Equal(t, 42.5, cfg.Risk.MaxDailyLossUSD)
	assert.Equal(t, time.Minute, cfg.Engine.Cooldown.Duration)
	assert.Equal(t, []string{"jupiter", "orca"}, cfg.Venues.Enabled)
	assert.True(t, cfg.Bundle.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Venues.Enabled = []string{"jupiter"}
	cfg.Cache.Backend = "redis"
	cfg.Scanner.ImpactBands = []ImpactBand{{MaxNotional: 1000, Impact: 0.0005}, {MaxNotional: 100, Impact: 0.0001}}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "wallet: either private_key or encrypted_key_path")
	assert.Contains(t, msg, "venues: at least two enabled venues")
	assert.Contains(t, msg, "assets: at least one asset")
	assert.Contains(t, msg, "redis: must be enabled")
	assert.Contains(t, msg, "impact_bands must be ascending")
}

func TestValidate_DefaultsServerMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "secret"
	cfg.Postgres.Password = "pw"
	cfg.Notify.Events = []string{"trade_failed"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Empty(t, out.Wallet.KeyPassword)

	out.Notify.Events[0] = "mutated"
	out.RateLimits["jupiter"] = RateLimitConfig{Rate: 1, Burst: 1}
	assert.Equal(t, "trade_failed", cfg.Notify.Events[0])
	assert.Equal(t, 10.0, cfg.RateLimits["jupiter"].Rate)
	assert.Equal(t, "secret", cfg.Wallet.PrivateKey)
}
