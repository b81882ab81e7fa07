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
// built-in defaults, applies ORACLEBOT_* environment variable overrides, and
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
	cfg.normalize()

	return &cfg, nil
}

// applyEnvOverrides reads well-known ORACLEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file. Values that fail to parse are ignored, leaving the
// file/default value in place.
func applyEnvOverrides(cfg *Config) {
	// ── Oracle ──
	setStr(&cfg.Oracle.SigningSecret, "ORACLEBOT_ORACLE_SIGNING_SECRET")
	setStr(&cfg.Oracle.SigningSecret, "ORACLEBOT_SIGNING_SECRET") // compatibility alias
	setStr(&cfg.Oracle.Publisher, "ORACLEBOT_ORACLE_PUBLISHER")

	// ── Database ──
	setStr(&cfg.Database.DSN, "ORACLEBOT_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "ORACLEBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "ORACLEBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "ORACLEBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "ORACLEBOT_DATABASE_NAME")
	setStr(&cfg.Database.User, "ORACLEBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "ORACLEBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "ORACLEBOT_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "ORACLEBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "ORACLEBOT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "ORACLEBOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ORACLEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ORACLEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ORACLEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ORACLEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ORACLEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ORACLEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ORACLEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ORACLEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ORACLEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ORACLEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ORACLEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ORACLEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ORACLEBOT_S3_FORCE_PATH_STYLE")

	// ── Providers ──
	setBool(&cfg.Providers.CoinGecko.Enabled, "ORACLEBOT_COINGECKO_ENABLED")
	setStr(&cfg.Providers.CoinGecko.BaseURL, "ORACLEBOT_COINGECKO_BASE_URL")
	setDuration(&cfg.Providers.CoinGecko.Timeout, "ORACLEBOT_COINGECKO_TIMEOUT")
	setBool(&cfg.Providers.Binance.Enabled, "ORACLEBOT_BINANCE_ENABLED")
	setStr(&cfg.Providers.Binance.BaseURL, "ORACLEBOT_BINANCE_BASE_URL")
	setDuration(&cfg.Providers.Binance.Timeout, "ORACLEBOT_BINANCE_TIMEOUT")
	setStr(&cfg.Providers.SportsDB.APIKey, "ORACLEBOT_SPORTSDB_API_KEY")
	setStr(&cfg.Providers.SportsDB.BaseURL, "ORACLEBOT_SPORTSDB_BASE_URL")
	setDuration(&cfg.Providers.SportsDB.Timeout, "ORACLEBOT_SPORTSDB_TIMEOUT")
	setStr(&cfg.Providers.Sportmonks.APIToken, "ORACLEBOT_SPORTMONKS_API_TOKEN")
	setStr(&cfg.Providers.Sportmonks.BaseURL, "ORACLEBOT_SPORTMONKS_BASE_URL")
	setDuration(&cfg.Providers.Sportmonks.Timeout, "ORACLEBOT_SPORTMONKS_TIMEOUT")
	setStr(&cfg.Providers.Gamma.BaseURL, "ORACLEBOT_GAMMA_BASE_URL")
	setDuration(&cfg.Providers.Gamma.Timeout, "ORACLEBOT_GAMMA_TIMEOUT")

	// ── Automation ──
	setBool(&cfg.Automation.Crypto.Enabled, "ORACLEBOT_AUTOMATION_CRYPTO_ENABLED")
	setDuration(&cfg.Automation.Crypto.Interval, "ORACLEBOT_AUTOMATION_CRYPTO_INTERVAL")
	setDurationMs(&cfg.Automation.Crypto.Interval, "ORACLEBOT_AUTOMATION_CRYPTO_INTERVAL_MS")
	setInt(&cfg.Automation.Crypto.HorizonDays, "ORACLEBOT_AUTOMATION_CRYPTO_HORIZON_DAYS")
	setDuration(&cfg.Automation.Crypto.DisputeWindow, "ORACLEBOT_AUTOMATION_CRYPTO_DISPUTE_WINDOW")
	setFloat64(&cfg.Automation.Crypto.Liquidity, "ORACLEBOT_AUTOMATION_CRYPTO_LIQUIDITY")
	setBool(&cfg.Automation.Sports.Enabled, "ORACLEBOT_AUTOMATION_SPORTS_ENABLED")
	setDuration(&cfg.Automation.Sports.Interval, "ORACLEBOT_AUTOMATION_SPORTS_INTERVAL")
	setDurationMs(&cfg.Automation.Sports.Interval, "ORACLEBOT_AUTOMATION_SPORTS_INTERVAL_MS")
	setInt(&cfg.Automation.Sports.LookaheadDays, "ORACLEBOT_AUTOMATION_SPORTS_LOOKAHEAD_DAYS")
	setDuration(&cfg.Automation.Sports.DisputeWindow, "ORACLEBOT_AUTOMATION_SPORTS_DISPUTE_WINDOW")
	setFloat64(&cfg.Automation.Sports.Liquidity, "ORACLEBOT_AUTOMATION_SPORTS_LIQUIDITY")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ORACLEBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "ORACLEBOT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "ORACLEBOT_ARCHIVE_CRON")
	setBool(&cfg.Archive.Prune, "ORACLEBOT_ARCHIVE_PRUNE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ORACLEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ORACLEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ORACLEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ORACLEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "ORACLEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses cleanly.
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

// setDurationMs accepts a bare millisecond count, kept for parity with
// deployments that configure intervals numerically.
func setDurationMs(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			dst.Duration = time.Duration(n) * time.Millisecond
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
