package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const evictEvery = time.Minute

// InMemoryRateLimiter keeps a token bucket per key. Limits are per process.
type InMemoryRateLimiter struct {
	requests int
	window   time.Duration
	every    rate.Limit

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastEvict time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewInMemoryRateLimiter(requests int, window time.Duration) *InMemoryRateLimiter {
	requests = max(requests, 1)
	if window <= 0 {
		window = time.Minute
	}

	return &InMemoryRateLimiter{
		requests:  requests,
		window:    window,
		every:     rate.Every(window / time.Duration(requests)),
		buckets:   make(map[string]*bucket),
		lastEvict: time.Now(),
		now:       time.Now,
	}
}

func (r *InMemoryRateLimiter) IsLimited(_ context.Context, key string) (bool, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.every, r.requests)}
		r.buckets[key] = b
	}
	b.lastSeen = now

	if now.Sub(r.lastEvict) >= evictEvery {
		r.evictIdle(now)
	}

	return !b.limiter.AllowN(now, 1), nil
}

// evictIdle drops buckets untouched for two windows; they would be full again anyway.
func (r *InMemoryRateLimiter) evictIdle(now time.Time) {
	cutoff := now.Add(-2 * r.window)
	for key, b := range r.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(r.buckets, key)
		}
	}
	r.lastEvict = now
}

func (r *InMemoryRateLimiter) GetLimitDetails() (int, time.Duration) {
	return r.requests, r.window
}

func (r *InMemoryRateLimiter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buckets)
	return nil
}
