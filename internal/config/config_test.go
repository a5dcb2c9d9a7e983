package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
vault:
  principal_asset: USDC
  loss_tolerance: "0.0025"
  deposit_fee_bps: 10
  escape_hatch_delay: 48h
oracle:
  max_staleness: 30s
  feeds:
    - key: USDC
      url: https://prices.example.com
      feed_id: usdc-usd
      asset_decimals: 6
      max_feed_age: 1m
    - key: ETH
      source: chart
      symbol: ETH-USD
      asset_decimals: 18
    - key: USDT
      source: static
      static_price: "0.9995"
      asset_decimals: 6
telegram:
  bot_token: abc
  chat_id: "42"
`

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "HTTPS_PROXY", "VAULT_LOSS_TOLERANCE",
		"ORACLE_API_KEY", "SQLITE_PATH", "STATE_FILE", "METRICS_LISTEN", "API_TOKEN",
	} {
		t.Setenv(k, "")
	}
}

func write(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(write(t, sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	bps, err := cfg.LossToleranceBps()
	require.NoError(t, err)
	assert.Equal(t, uint64(25), bps)
	assert.Equal(t, uint64(10), cfg.Vault.DepositFeeBps)
	assert.Equal(t, 48*time.Hour, cfg.Vault.EscapeHatchDelay)
	assert.Equal(t, 24*time.Hour, cfg.Vault.EpochDuration)
	assert.Equal(t, 30*time.Second, cfg.Oracle.MaxStaleness)

	require.Len(t, cfg.Oracle.Feeds, 3)
	usdc := cfg.Oracle.Feeds[0]
	assert.Equal(t, SourceHTTP, usdc.Source)
	assert.Equal(t, time.Minute, usdc.MaxFeedAge)
	eth := cfg.Oracle.Feeds[1]
	assert.Equal(t, "ETH", eth.FeedID)
	assert.Equal(t, uint8(8), eth.FeedDecimals)
	assert.Equal(t, 5*time.Minute, eth.MaxFeedAge)

	raw, err := cfg.Oracle.Feeds[2].StaticRaw()
	require.NoError(t, err)
	assert.Equal(t, "99950000", raw.String())

	assert.Equal(t, "data/vault_state.json", cfg.StateFile)
	assert.Equal(t, ":9102", cfg.Metrics.Listen)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("VAULT_LOSS_TOLERANCE", "0.01")
	t.Setenv("ORACLE_API_KEY", "secret")
	t.Setenv("STATE_FILE", "/tmp/state.json")
	t.Setenv("API_TOKEN", "s3cret")

	cfg, err := Load(write(t, sample))
	require.NoError(t, err)
	bps, err := cfg.LossToleranceBps()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bps)
	assert.Equal(t, "secret", cfg.Oracle.Feeds[0].APIKey)
	assert.Empty(t, cfg.Oracle.Feeds[1].APIKey)
	assert.Equal(t, "/tmp/state.json", cfg.StateFile)
	assert.Equal(t, "s3cret", cfg.API.Token)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "USDC", cfg.Vault.PrincipalAsset)
	assert.Equal(t, "0.001", cfg.Vault.LossTolerance)
	assert.ErrorContains(t, cfg.Validate(), "oracle.feeds is required")
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cases := map[string]func(*Config){
		"telegram half set":   func(c *Config) { c.Telegram.ChatID = "" },
		"tolerance above one": func(c *Config) { c.Vault.LossTolerance = "1.5" },
		"tolerance garbage":   func(c *Config) { c.Vault.LossTolerance = "ten" },
		"tolerance sub bps":   func(c *Config) { c.Vault.LossTolerance = "0.00005" },
		"fee cap":             func(c *Config) { c.Vault.WithdrawFeeBps = 501 },
		"duplicate feed":      func(c *Config) { c.Oracle.Feeds[1].Key = "USDC" },
		"http without url":    func(c *Config) { c.Oracle.Feeds[0].URL = "" },
		"chart without sym":   func(c *Config) { c.Oracle.Feeds[1].Symbol = "" },
		"bad static price":    func(c *Config) { c.Oracle.Feeds[2].StaticPrice = "-1" },
		"unknown source":      func(c *Config) { c.Oracle.Feeds[2].Source = "ws" },
		"principal unpriced":  func(c *Config) { c.Vault.PrincipalAsset = "DAI" },
	}
	path := write(t, sample)
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(path)
			require.NoError(t, err)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
