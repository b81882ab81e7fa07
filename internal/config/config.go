// Package config defines the top-level configuration for the oracle engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ORACLEBOT_* environment
// variables.
type Config struct {
	Oracle     OracleConfig     `toml:"oracle"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Providers  ProvidersConfig  `toml:"providers"`
	Automation AutomationConfig `toml:"automation"`
	Archive    ArchiveConfig    `toml:"archive"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// OracleConfig holds signing parameters for published snapshots.
type OracleConfig struct {
	// SigningSecret is the shared HMAC secret. The engine refuses to start
	// without one; unsigned oracle data must never be published.
	SigningSecret string `toml:"signing_secret"`
	// Publisher is recorded on automation-published snapshots.
	Publisher string `toml:"publisher"`
}

// DatabaseConfig holds PostgreSQL connection parameters. Either a full DSN
// or the discrete fields may be used.
type DatabaseConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the snapshot
// archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ProvidersConfig groups the upstream data source settings. A provider with
// no credential where one is required simply stays disabled; that is never a
// startup error.
type ProvidersConfig struct {
	CoinGecko  CoinGeckoConfig  `toml:"coingecko"`
	Binance    BinanceConfig    `toml:"binance"`
	SportsDB   SportsDBConfig   `toml:"sportsdb"`
	Sportmonks SportmonksConfig `toml:"sportmonks"`
	Gamma      GammaConfig      `toml:"gamma"`
}

// CoinGeckoConfig holds CoinGecko API settings. No credential is required.
type CoinGeckoConfig struct {
	Enabled bool     `toml:"enabled"`
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// BinanceConfig holds Binance public API settings. No credential is
// required.
type BinanceConfig struct {
	Enabled bool     `toml:"enabled"`
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// SportsDBConfig holds TheSportsDB API settings. The provider is enabled
// only when an API key is present.
type SportsDBConfig struct {
	APIKey  string   `toml:"api_key"`
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// SportmonksConfig holds Sportmonks API settings. The provider is enabled
// only when an API token is present.
type SportmonksConfig struct {
	APIToken string   `toml:"api_token"`
	BaseURL  string   `toml:"base_url"`
	Timeout  duration `toml:"timeout"`
}

// GammaConfig holds the Polymarket Gamma volume feed settings.
type GammaConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// AutomationConfig groups the two scheduler configurations.
type AutomationConfig struct {
	Crypto CryptoAutomationConfig `toml:"crypto"`
	Sports SportsAutomationConfig `toml:"sports"`
}

// CryptoAutomationConfig drives the daily-high market scheduler.
type CryptoAutomationConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	HorizonDays   int      `toml:"horizon_days"`
	DisputeWindow duration `toml:"dispute_window"`
	Liquidity     float64  `toml:"liquidity"`
}

// SportsAutomationConfig drives the fixture market scheduler.
type SportsAutomationConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	LookaheadDays int      `toml:"lookahead_days"`
	DisputeWindow duration `toml:"dispute_window"`
	Liquidity     float64  `toml:"liquidity"`
}

// ArchiveConfig drives the snapshot cold-storage exporter.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
	// Prune deletes exported snapshots from Postgres after upload. The
	// snapshot log stays append-only unless this is set explicitly.
	Prune bool `toml:"prune"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "15m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Oracle: OracleConfig{
			Publisher: "oraclebot",
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "oraclebot-data",
			ForcePathStyle: true,
		},
		Providers: ProvidersConfig{
			CoinGecko: CoinGeckoConfig{
				Enabled: true,
				BaseURL: "https://api.coingecko.com/api/v3",
				Timeout: duration{10 * time.Second},
			},
			Binance: BinanceConfig{
				Enabled: true,
				BaseURL: "https://api.binance.com",
				Timeout: duration{10 * time.Second},
			},
			SportsDB: SportsDBConfig{
				BaseURL: "https://www.thesportsdb.com/api/v1/json",
				Timeout: duration{8 * time.Second},
			},
			Sportmonks: SportmonksConfig{
				BaseURL: "https://api.sportmonks.com/v3/football",
				Timeout: duration{8 * time.Second},
			},
			Gamma: GammaConfig{
				BaseURL: "https://gamma-api.polymarket.com",
				Timeout: duration{10 * time.Second},
			},
		},
		Automation: AutomationConfig{
			Crypto: CryptoAutomationConfig{
				Enabled:       true,
				Interval:      duration{15 * time.Minute},
				HorizonDays:   2,
				DisputeWindow: duration{6 * time.Hour},
				Liquidity:     1600,
			},
			Sports: SportsAutomationConfig{
				Enabled:       true,
				Interval:      duration{30 * time.Minute},
				LookaheadDays: 14,
				DisputeWindow: duration{6 * time.Hour},
				Liquidity:     1800,
			},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Cron:          "0 3 * * *",
			Prune:         false,
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "market_settled", "cycle_error"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// normalize repairs override values that would break the schedulers. A bad
// interval or horizon from the environment falls back to the default rather
// than stopping the engine.
func (c *Config) normalize() {
	def := Defaults()
	if c.Automation.Crypto.Interval.Duration <= 0 {
		c.Automation.Crypto.Interval = def.Automation.Crypto.Interval
	}
	if c.Automation.Sports.Interval.Duration <= 0 {
		c.Automation.Sports.Interval = def.Automation.Sports.Interval
	}
	if c.Automation.Crypto.HorizonDays <= 0 {
		c.Automation.Crypto.HorizonDays = def.Automation.Crypto.HorizonDays
	}
	if c.Automation.Sports.LookaheadDays <= 0 {
		c.Automation.Sports.LookaheadDays = def.Automation.Sports.LookaheadDays
	}
	if c.Automation.Crypto.DisputeWindow.Duration <= 0 {
		c.Automation.Crypto.DisputeWindow = def.Automation.Crypto.DisputeWindow
	}
	if c.Automation.Sports.DisputeWindow.Duration <= 0 {
		c.Automation.Sports.DisputeWindow = def.Automation.Sports.DisputeWindow
	}
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Oracle — the signing secret is the one credential the engine cannot
	// run without.
	if strings.TrimSpace(c.Oracle.SigningSecret) == "" {
		errs = append(errs, "oracle: signing_secret must be set")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Archive needs a bucket only when it is actually on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if strings.TrimSpace(c.Archive.Cron) == "" {
			errs = append(errs, "archive: cron must not be empty")
		}
	}

	// Notify — Telegram needs both halves of the credential.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
