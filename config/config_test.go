package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/psyhub")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	for _, botID := range BotIDs {
		suffix := strings.ToUpper(botID)
		t.Setenv("TELEGRAM_TOKEN_"+suffix, "123:token-"+botID)
		t.Setenv("TELEGRAM_SECRET_"+suffix, "secret-"+botID)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "psyhub-gateway", cfg.App.Name)
	assert.False(t, cfg.App.Debug)
	assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)
	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.BaseURL)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Oracle.RequestTimeout)
	assert.Equal(t, "123:token-pro", cfg.Telegram.Bots[BotPro].Token)
	assert.Equal(t, "secret-screen", cfg.Telegram.Bots[BotScreen].WebhookSecret)
}

func TestLoad_PublicBaseURLTrailingSlashTrimmed(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PUBLIC_BASE_URL", "https://gw.example.com/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://gw.example.com", cfg.App.PublicBaseURL)
}

func TestLoad_MissingRequiredFails(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TELEGRAM_SECRET_SIMULATOR", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "TELEGRAM_SECRET_SIMULATOR is required")
}

func TestLoad_RejectsShortOracleTimeout(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ORACLE_REQUEST_TIMEOUT", "5s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORACLE_REQUEST_TIMEOUT")
}

func TestLoad_MalformedEnvFallsBackToDefault(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HTTP_PORT", "not-a-number")
	t.Setenv("APP_DEBUG", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.False(t, cfg.App.Debug)
}

func TestMigrationURL(t *testing.T) {
	c := &Config{Database: DatabaseConfig{URL: "pooled", DirectURL: "direct"}}
	assert.Equal(t, "direct", c.MigrationURL())

	c.Database.DirectURL = ""
	assert.Equal(t, "pooled", c.MigrationURL())
}

func TestIsToolBot(t *testing.T) {
	for _, id := range ToolBotIDs {
		assert.True(t, IsToolBot(id), id)
	}
	assert.False(t, IsToolBot(BotPro))
	assert.False(t, IsToolBot("unknown"))
}
