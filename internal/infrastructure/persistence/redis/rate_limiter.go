// Package redis implements the optional per-chat rate limiter. The gateway
// stays fully functional without Redis; when REDIS_ENABLED is off the
// dispatcher gets a no-op limiter. Persistent state never lives here.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the limiter settings.
type Config struct {
	// URL is the Redis connection URL (redis://...).
	URL string

	// Limit is how many updates one chat may send per Window.
	Limit int

	// Window is the fixed counting window.
	Window time.Duration
}

// DefaultConfig returns a limit generous enough for normal conversation.
func DefaultConfig() Config {
	return Config{
		Limit:  20,
		Window: 10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// Limiter answers whether a (bot, chat) pair may be processed right now.
type Limiter interface {
	// Allow reports whether the update should be processed. Errors from the
	// backing store are swallowed and logged; availability wins over limits.
	Allow(ctx context.Context, botID string, chatID int64) bool
}

// RateLimiter is a fixed-window counter per (bot, chat) pair.
type RateLimiter struct {
	client *redis.Client
	cfg    Config
	log    *logger.Logger
}

// NewRateLimiter connects to Redis and verifies the connection.
func NewRateLimiter(ctx context.Context, cfg Config, log *logger.Logger) (*RateLimiter, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RateLimiter{client: client, cfg: cfg, log: log}, nil
}

// Allow counts the update against the chat's current window.
func (l *RateLimiter) Allow(ctx context.Context, botID string, chatID int64) bool {
	key := fmt.Sprintf("ratelimit:%s:%d", botID, chatID)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Warn("rate limiter unavailable, allowing update",
			logger.BotID(botID), logger.ChatID(chatID), logger.Err(err))
		return true
	}

	return incr.Val() <= int64(l.cfg.Limit)
}

// Close releases the client.
func (l *RateLimiter) Close() error {
	return l.client.Close()
}

// NoopLimiter allows everything. Used when Redis is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string, int64) bool { return true }
