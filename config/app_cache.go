package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akeren/go-waitlist/internal/log"
	pkgredis "github.com/akeren/go-waitlist/pkg/redis"
	"github.com/caarlos0/env/v11"
	"github.com/go-redis/redis/v8"
)

// ErrCacheNotConfigured is returned by NewCache when REDIS_HOST is empty.
var ErrCacheNotConfigured = errors.New("cache host is not configured")

// Cache backs the stats summary cache, the Redis rate limiter and, through
// GetRedisClient, the mailing-list job queue.
type Cache interface {
	// Get returns ("", nil) when a key is not found.
	Get(ctx context.Context, key string) (string, error)
	// Set uses ttl=0 for no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisClientProvider is implemented by caches that expose their go-redis client.
type RedisClientProvider interface {
	GetClient() *redis.Client
}

type CacheConfig struct {
	Host        string        `env:"REDIS_HOST"`
	Port        string        `env:"REDIS_PORT" envDefault:"6379"`
	Password    string        `env:"REDIS_PASSWORD"`
	DB          int           `env:"REDIS_DB" envDefault:"0"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
}

func LoadCacheConfig() (*CacheConfig, error) {
	var cfg CacheConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse redis env: %w", err)
	}
	return &cfg, nil
}

func (cc *CacheConfig) IsConfigured() bool {
	return cc != nil && cc.Host != ""
}

func (cc *CacheConfig) NewCache(logger *log.Logger) (Cache, error) {
	if !cc.IsConfigured() {
		return nil, ErrCacheNotConfigured
	}

	cache, err := pkgredis.NewRedisCache(&pkgredis.Config{
		Host:        cc.Host,
		Port:        cc.Port,
		Password:    cc.Password,
		DB:          cc.DB,
		DialTimeout: cc.DialTimeout,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Redis connected", "addr", cc.Host+":"+cc.Port, "db", cc.DB)
	return cache, nil
}

// NewCacheOrNil lets the API run without Redis: rate limiting falls back to
// memory and stats are computed on every request.
func (cc *CacheConfig) NewCacheOrNil(logger *log.Logger) Cache {
	if !cc.IsConfigured() {
		logger.Info("Redis is not configured; proceeding without external cache")
		return nil
	}

	cache, err := cc.NewCache(logger)
	if err != nil {
		logger.Error("Failed to connect to Redis; proceeding without external cache", "error", err)
		return nil
	}

	return cache
}

func GetRedisClient(cache Cache) *redis.Client {
	if provider, ok := cache.(RedisClientProvider); ok {
		return provider.GetClient()
	}

	return nil
}

func CloseCache(cache Cache, logger *log.Logger) error {
	if cache == nil {
		return nil
	}

	if err := cache.Close(); err != nil {
		logger.Error("Failed to close Redis connection", "error", err)
		return err
	}

	logger.Info("Redis connection closed")
	return nil
}
