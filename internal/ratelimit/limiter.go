// Package ratelimit throttles requests per client with an in-memory token
// bucket or a sliding window kept in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// DefaultKeyPrefix prefixes the Redis keys of the sliding window
const DefaultKeyPrefix = "weft:ratelimit:"

// Decision is the outcome of one Allow call
type Decision struct {
	// Limit is the number of requests allowed per window
	Limit int
	// Remaining is what is left after this request
	Remaining int
	// ResetAt is when the client is back at the full limit
	ResetAt time.Time
	Allowed bool
}

// Limiter decides whether the client identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Close() error
}

// Config selects and sizes a limiter
type Config struct {
	Store    string
	Requests int
	Window   time.Duration
	// SweepInterval drops idle memory buckets; zero disables the sweep
	SweepInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// DefaultConfig allows 100 requests per minute from memory
func DefaultConfig() Config {
	return Config{
		Store:         StoreMemory,
		Requests:      100,
		Window:        time.Minute,
		SweepInterval: 5 * time.Minute,
		RedisAddr:     "localhost:6379",
		KeyPrefix:     DefaultKeyPrefix,
	}
}

// New builds the limiter named by cfg.Store
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Limiter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Requests <= 0 {
		return nil, fmt.Errorf("ratelimit: requests must be positive, got %d", cfg.Requests)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive, got %s", cfg.Window)
	}

	switch cfg.Store {
	case StoreMemory, "":
		logger.Info("rate limiting from memory",
			zap.Int("requests", cfg.Requests),
			zap.Duration("window", cfg.Window))
		return NewTokenBucket(cfg.Requests, cfg.Window, cfg.SweepInterval), nil

	case StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ratelimit: connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("rate limiting from redis",
			zap.String("addr", cfg.RedisAddr),
			zap.Int("requests", cfg.Requests),
			zap.Duration("window", cfg.Window))
		l := NewRedisLimiter(client, cfg.Requests, cfg.Window, cfg.KeyPrefix)
		l.owned = true
		return l, nil

	default:
		return nil, fmt.Errorf("ratelimit: unknown store %q", cfg.Store)
	}
}
