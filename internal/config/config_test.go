package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[oracle]
signing_secret = "s3cret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Automation.Crypto.Interval.Duration)
	assert.Equal(t, 30*time.Minute, cfg.Automation.Sports.Interval.Duration)
	assert.Equal(t, 2, cfg.Automation.Crypto.HorizonDays)
	assert.Equal(t, 6*time.Hour, cfg.Automation.Crypto.DisputeWindow.Duration)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[oracle]
signing_secret = "s3cret"
`)

	t.Setenv("ORACLEBOT_AUTOMATION_CRYPTO_INTERVAL", "5m")
	t.Setenv("ORACLEBOT_SPORTSDB_API_KEY", "key-123")
	t.Setenv("ORACLEBOT_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Automation.Crypto.Interval.Duration)
	assert.Equal(t, "key-123", cfg.Providers.SportsDB.APIKey)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadBadIntervalFallsBackToDefault(t *testing.T) {
	path := writeConfig(t, `
[oracle]
signing_secret = "s3cret"
`)

	t.Setenv("ORACLEBOT_AUTOMATION_CRYPTO_INTERVAL", "soon")
	t.Setenv("ORACLEBOT_AUTOMATION_SPORTS_INTERVAL_MS", "-200")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Unparseable and non-positive overrides are ignored, not fatal.
	assert.Equal(t, 15*time.Minute, cfg.Automation.Crypto.Interval.Duration)
	assert.Equal(t, 30*time.Minute, cfg.Automation.Sports.Interval.Duration)
}

func TestLoadIntervalMsOverride(t *testing.T) {
	path := writeConfig(t, `
[oracle]
signing_secret = "s3cret"
`)

	t.Setenv("ORACLEBOT_AUTOMATION_SPORTS_INTERVAL_MS", "60000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Automation.Sports.Interval.Duration)
}

func TestValidateRequiresSigningSecret(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing_secret")

	cfg.Oracle.SigningSecret = "s3cret"
	require.NoError(t, cfg.Validate())
}

func TestValidateTelegramPairing(t *testing.T) {
	cfg := Defaults()
	cfg.Oracle.SigningSecret = "s3cret"
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram_chat_id")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Oracle.SigningSecret = "s3cret"
	cfg.Database.Password = "hunter2"
	cfg.Providers.Sportmonks.APIToken = "tok"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Oracle.SigningSecret)
	assert.Equal(t, "***", red.Database.Password)
	assert.Equal(t, "***", red.Providers.Sportmonks.APIToken)
	// Original is untouched.
	assert.Equal(t, "s3cret", cfg.Oracle.SigningSecret)
}
