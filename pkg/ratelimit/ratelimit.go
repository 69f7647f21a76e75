package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const DefaultKeyPrefix = "ratelimit:"

type Logger interface {
	Error(msg string, args ...any)
}

// RateLimiter allows at most N requests per key in each window.
type RateLimiter interface {
	GetLimitDetails() (int, time.Duration)
	IsLimited(ctx context.Context, key string) (bool, error)
	Close() error
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// Redis switches to the shared sliding-window limiter when non-nil.
	Redis *redis.Client
	// KeyPrefix namespaces Redis keys; defaults to DefaultKeyPrefix.
	KeyPrefix string
	Logger    Logger
}

func NewRateLimiter(config *RateLimitConfig) RateLimiter {
	if config.Redis != nil {
		return NewRedisRateLimiter(config.Redis, config.Requests, config.Window, config.KeyPrefix, config.Logger)
	}
	return NewInMemoryRateLimiter(config.Requests, config.Window)
}
