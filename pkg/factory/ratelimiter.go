package factory

import (
	"fmt"
	"time"

	"github.com/akeren/go-waitlist/pkg/ratelimit"
	"github.com/go-redis/redis/v8"
)

// RateLimiterFactory builds named limiters that share one backing store.
// Each name gets its own key namespace so limits never bleed into each other.
type RateLimiterFactory interface {
	CreateRateLimiter(name string, requests int, window time.Duration) ratelimit.RateLimiter
	Distributed() bool
}

type DefaultRateLimiterFactory struct {
	redis  *redis.Client
	logger ratelimit.Logger
}

// NewDefaultRateLimiterFactory returns a factory producing Redis limiters when
// client is non-nil and in-memory limiters otherwise.
func NewDefaultRateLimiterFactory(client *redis.Client, logger ratelimit.Logger) *DefaultRateLimiterFactory {
	return &DefaultRateLimiterFactory{redis: client, logger: logger}
}

func (f *DefaultRateLimiterFactory) CreateRateLimiter(name string, requests int, window time.Duration) ratelimit.RateLimiter {
	return ratelimit.NewRateLimiter(&ratelimit.RateLimitConfig{
		Requests:  requests,
		Window:    window,
		Redis:     f.redis,
		KeyPrefix: fmt.Sprintf("%s%s:", ratelimit.DefaultKeyPrefix, name),
		Logger:    f.logger,
	})
}

func (f *DefaultRateLimiterFactory) Distributed() bool {
	return f.redis != nil
}
