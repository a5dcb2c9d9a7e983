package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Feed sources.
const (
	SourceHTTP   = "http"
	SourceChart  = "chart"
	SourceStatic = "static"
)

// Feed configures one oracle asset and the feed that prices it.
type Feed struct {
	Key           string        `yaml:"key"`
	Source        string        `yaml:"source"`
	FeedID        string        `yaml:"feed_id"`
	URL           string        `yaml:"url"`
	APIKey        string        `yaml:"api_key"`
	Symbol        string        `yaml:"symbol"`
	AssetDecimals uint8         `yaml:"asset_decimals"`
	FeedDecimals  uint8         `yaml:"feed_decimals"`
	MaxFeedAge    time.Duration `yaml:"max_feed_age"`
	StaticPrice   string        `yaml:"static_price"`
}

// Config holds all application configuration.
type Config struct {
	Vault struct {
		ID                     string        `yaml:"id"`
		PrincipalAsset         string        `yaml:"principal_asset"`
		LossTolerance          string        `yaml:"loss_tolerance"`
		EpochDuration          time.Duration `yaml:"epoch_duration"`
		DepositFeeBps          uint64        `yaml:"deposit_fee_bps"`
		WithdrawFeeBps         uint64        `yaml:"withdraw_fee_bps"`
		LockingTimeForWithdraw time.Duration `yaml:"locking_time_for_withdraw"`
		LockingTimeForCancel   time.Duration `yaml:"locking_time_for_cancel"`
		EscapeHatchDelay       time.Duration `yaml:"escape_hatch_delay"`
		MaxOperationDuration   time.Duration `yaml:"max_operation_duration"`
	} `yaml:"vault"`
	Oracle struct {
		MaxStaleness time.Duration `yaml:"max_staleness"`
		Feeds        []Feed        `yaml:"feeds"`
	} `yaml:"oracle"`
	Adaptor struct {
		SlippageBps uint64 `yaml:"slippage_bps"`
	} `yaml:"adaptor"`
	Schedule struct {
		OracleCron   string `yaml:"oracle_cron"`
		WatchdogCron string `yaml:"watchdog_cron"`
		ReportCron   string `yaml:"report_cron"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	StateFile string `yaml:"state_file"`
	Metrics   struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
	API struct {
		Token string `yaml:"token"`
	} `yaml:"api"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("VAULT_LOSS_TOLERANCE"); v != "" {
		cfg.Vault.LossTolerance = v
	}
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		for i := range cfg.Oracle.Feeds {
			if cfg.Oracle.Feeds[i].Source == SourceHTTP && cfg.Oracle.Feeds[i].APIKey == "" {
				cfg.Oracle.Feeds[i].APIKey = v
			}
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("STATE_FILE"); v != "" {
		cfg.StateFile = v
	}
	if v := os.Getenv("METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.API.Token = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Vault.PrincipalAsset == "" {
		c.Vault.PrincipalAsset = "USDC"
	}
	if c.Vault.LossTolerance == "" {
		c.Vault.LossTolerance = "0.001"
	}
	if c.Vault.EpochDuration == 0 {
		c.Vault.EpochDuration = 24 * time.Hour
	}
	if c.Vault.LockingTimeForWithdraw == 0 {
		c.Vault.LockingTimeForWithdraw = 12 * time.Hour
	}
	if c.Vault.LockingTimeForCancel == 0 {
		c.Vault.LockingTimeForCancel = 5 * time.Minute
	}
	if c.Vault.EscapeHatchDelay == 0 {
		c.Vault.EscapeHatchDelay = 72 * time.Hour
	}
	if c.Vault.MaxOperationDuration == 0 {
		c.Vault.MaxOperationDuration = time.Hour
	}
	if c.Oracle.MaxStaleness == 0 {
		c.Oracle.MaxStaleness = time.Minute
	}
	for i := range c.Oracle.Feeds {
		f := &c.Oracle.Feeds[i]
		if f.Source == "" {
			f.Source = SourceHTTP
		}
		if f.FeedID == "" {
			f.FeedID = f.Key
		}
		if f.MaxFeedAge == 0 {
			f.MaxFeedAge = 5 * time.Minute
		}
		if f.FeedDecimals == 0 && f.Source != SourceHTTP {
			f.FeedDecimals = 8
		}
	}
	if c.Adaptor.SlippageBps == 0 {
		c.Adaptor.SlippageBps = 100
	}
	if c.Schedule.OracleCron == "" {
		c.Schedule.OracleCron = "*/30 * * * * *"
	}
	if c.Schedule.WatchdogCron == "" {
		c.Schedule.WatchdogCron = "0 */5 * * * *"
	}
	if c.Schedule.ReportCron == "" {
		c.Schedule.ReportCron = "0 0 9 * * *"
	}
	if c.StateFile == "" {
		c.StateFile = "data/vault_state.json"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/yield_vault.db"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9102"
	}
}

// LossToleranceBps converts the loss tolerance ratio to basis points. The
// ratio must be a whole number of basis points.
func (c *Config) LossToleranceBps() (uint64, error) {
	d, err := decimal.NewFromString(c.Vault.LossTolerance)
	if err != nil {
		return 0, fmt.Errorf("vault.loss_tolerance: %w", err)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return 0, fmt.Errorf("vault.loss_tolerance must be between 0 and 1, got %s", c.Vault.LossTolerance)
	}
	bps := d.Shift(4)
	if !bps.Equal(bps.Truncate(0)) {
		return 0, fmt.Errorf("vault.loss_tolerance %s is not a whole number of basis points", c.Vault.LossTolerance)
	}
	return uint64(bps.IntPart()), nil
}

// StaticRaw parses a static feed's price into an integer with FeedDecimals
// places.
func (f Feed) StaticRaw() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(f.StaticPrice)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("oracle feed %s: static_price: %w", f.Key, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("oracle feed %s: static_price must not be negative", f.Key)
	}
	return d.Shift(int32(f.FeedDecimals)).Truncate(0), nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if _, err := c.LossToleranceBps(); err != nil {
		return err
	}
	if c.Vault.DepositFeeBps > 500 || c.Vault.WithdrawFeeBps > 500 {
		return fmt.Errorf("vault fees are capped at 500 bps")
	}
	if len(c.Oracle.Feeds) == 0 {
		return fmt.Errorf("oracle.feeds is required")
	}

	seen := make(map[string]bool, len(c.Oracle.Feeds))
	for _, f := range c.Oracle.Feeds {
		if f.Key == "" {
			return fmt.Errorf("oracle feed key is required")
		}
		if seen[f.Key] {
			return fmt.Errorf("oracle feed %s listed twice", f.Key)
		}
		seen[f.Key] = true
		switch f.Source {
		case SourceHTTP:
			if f.URL == "" {
				return fmt.Errorf("oracle feed %s: url is required", f.Key)
			}
		case SourceChart:
			if f.Symbol == "" {
				return fmt.Errorf("oracle feed %s: symbol is required", f.Key)
			}
		case SourceStatic:
			if _, err := f.StaticRaw(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("oracle feed %s: unknown source %q", f.Key, f.Source)
		}
	}
	if !seen[c.Vault.PrincipalAsset] {
		return fmt.Errorf("vault.principal_asset %s has no oracle feed", c.Vault.PrincipalAsset)
	}
	return nil
}
