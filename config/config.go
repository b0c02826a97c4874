// Package config loads gateway configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Bot identifiers served by the gateway. Webhook paths, dedup rows, and FSM
// rows are all keyed by these.
const (
	BotPro              = "pro"
	BotScreen           = "screen"
	BotInterpretator    = "interpretator"
	BotConceptualizator = "conceptualizator"
	BotSimulator        = "simulator"
)

// BotIDs lists every bot in webhook-registration order.
var BotIDs = []string{BotPro, BotScreen, BotInterpretator, BotConceptualizator, BotSimulator}

// ToolBotIDs lists the tool services reachable through link tokens.
var ToolBotIDs = []string{BotScreen, BotInterpretator, BotConceptualizator, BotSimulator}

// Config holds all application configuration.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Telegram TelegramConfig
	Oracle   OracleConfig
	HTTP     HTTPConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name    string
	Debug   bool
	Version string

	// PublicBaseURL is the externally reachable base URL used for webhook
	// registration (e.g. "https://gateway.example.com").
	PublicBaseURL string

	// SentryDSN is the optional telemetry DSN. Empty disables it.
	SentryDSN string

	// Graceful shutdown timeout.
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the pooled connection string used by the application.
	URL string

	// DirectURL is the unpooled connection string used for migrations.
	// Falls back to URL when empty.
	DirectURL string

	MaxConns     int32
	MinConns     int32
	QueryTimeout time.Duration
}

// RedisConfig holds optional Redis settings (webhook rate limiting only;
// persistent state lives in PostgreSQL).
type RedisConfig struct {
	URL     string
	Enabled bool
}

// BotCredentials pairs a bot token with its webhook transport secret.
type BotCredentials struct {
	Token         string
	WebhookSecret string
}

// TelegramConfig holds per-bot Telegram settings.
type TelegramConfig struct {
	// Bots maps bot_id to its credentials.
	Bots map[string]BotCredentials

	// BaseURL is the Telegram Bot API base URL.
	BaseURL string

	// SendTimeout bounds each outbound Bot API call.
	SendTimeout time.Duration
}

// OracleConfig holds AI oracle settings.
type OracleConfig struct {
	APIKey string

	// FastModel serves router/stop decisions; StrongModel serves
	// constructor, report, and interpretation calls.
	FastModel   string
	StrongModel string

	// RequestTimeout bounds each oracle call. At least 30s.
	RequestTimeout time.Duration
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:            getEnv("APP_NAME", "psyhub-gateway"),
			Debug:           getEnvBool("APP_DEBUG", false),
			Version:         getEnv("APP_VERSION", "0.1.0"),
			PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
			SentryDSN:       getEnv("SENTRY_DSN", ""),
			ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", ""),
			DirectURL:    getEnv("DATABASE_DIRECT_URL", ""),
			MaxConns:     int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns:     int32(getEnvInt("DB_MIN_CONNS", 2)),
			QueryTimeout: getEnvDuration("DB_QUERY_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:     getEnv("REDIS_URL", ""),
			Enabled: getEnvBool("REDIS_ENABLED", false),
		},
		Telegram: TelegramConfig{
			Bots:        loadBotCredentials(),
			BaseURL:     getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
			SendTimeout: getEnvDuration("TELEGRAM_SEND_TIMEOUT", 30*time.Second),
		},
		Oracle: OracleConfig{
			APIKey:         getEnv("ANTHROPIC_API_KEY", ""),
			FastModel:      getEnv("ORACLE_FAST_MODEL", "claude-3-5-haiku-latest"),
			StrongModel:    getEnv("ORACLE_STRONG_MODEL", "claude-sonnet-4-20250514"),
			RequestTimeout: getEnvDuration("ORACLE_REQUEST_TIMEOUT", 60*time.Second),
		},
		HTTP: HTTPConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnvInt("HTTP_PORT", 8080),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadBotCredentials reads the five token/secret pairs.
// Env names: TELEGRAM_TOKEN_PRO, TELEGRAM_SECRET_PRO, etc.
func loadBotCredentials() map[string]BotCredentials {
	bots := make(map[string]BotCredentials, len(BotIDs))
	for _, botID := range BotIDs {
		suffix := strings.ToUpper(botID)
		bots[botID] = BotCredentials{
			Token:         getEnv("TELEGRAM_TOKEN_"+suffix, ""),
			WebhookSecret: getEnv("TELEGRAM_SECRET_"+suffix, ""),
		}
	}
	return bots
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Oracle.APIKey == "" {
		errs = append(errs, "ANTHROPIC_API_KEY is required")
	}
	for _, botID := range BotIDs {
		creds := c.Telegram.Bots[botID]
		if creds.Token == "" {
			errs = append(errs, fmt.Sprintf("TELEGRAM_TOKEN_%s is required", strings.ToUpper(botID)))
		}
		if creds.WebhookSecret == "" {
			errs = append(errs, fmt.Sprintf("TELEGRAM_SECRET_%s is required", strings.ToUpper(botID)))
		}
	}
	if c.Oracle.RequestTimeout < 30*time.Second {
		errs = append(errs, "ORACLE_REQUEST_TIMEOUT must be at least 30s")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// MigrationURL returns the connection string to use for migrations.
func (c *Config) MigrationURL() string {
	if c.Database.DirectURL != "" {
		return c.Database.DirectURL
	}
	return c.Database.URL
}

// IsToolBot reports whether botID is a tool service (not the front office).
func IsToolBot(botID string) bool {
	for _, id := range ToolBotIDs {
		if id == botID {
			return true
		}
	}
	return false
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
