package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRateLimiter_IsPerKey(t *testing.T) {
	ctx := context.Background()
	limiter := NewInMemoryRateLimiter(1, time.Second)

	limited, err := limiter.IsLimited(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, limited)

	limited, err = limiter.IsLimited(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, limited, "second immediate request for client-a is over the limit")

	limited, err = limiter.IsLimited(ctx, "client-b")
	require.NoError(t, err)
	assert.False(t, limited, "client-b has its own bucket")
}

func TestInMemoryRateLimiter_AllowsBurstUpToLimit(t *testing.T) {
	ctx := context.Background()
	limiter := NewInMemoryRateLimiter(3, time.Minute)

	for i := range 3 {
		limited, err := limiter.IsLimited(ctx, "signup")
		require.NoError(t, err)
		assert.False(t, limited, "request %d", i+1)
	}

	limited, err := limiter.IsLimited(ctx, "signup")
	require.NoError(t, err)
	assert.True(t, limited)
}

func TestInMemoryRateLimiter_RefillsOverWindow(t *testing.T) {
	now := time.Now()
	limiter := NewInMemoryRateLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	for range 2 {
		_, _ = limiter.IsLimited(context.Background(), "k")
	}
	limited, _ := limiter.IsLimited(context.Background(), "k")
	require.True(t, limited)

	now = now.Add(30 * time.Second)
	limited, _ = limiter.IsLimited(context.Background(), "k")
	assert.False(t, limited, "one token refills every window/requests")
}

func TestInMemoryRateLimiter_EvictsIdleKeys(t *testing.T) {
	now := time.Now()
	limiter := NewInMemoryRateLimiter(1, time.Second)
	limiter.now = func() time.Time { return now }

	_, _ = limiter.IsLimited(context.Background(), "idle")
	now = now.Add(2 * time.Minute)
	_, _ = limiter.IsLimited(context.Background(), "active")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.buckets, "idle")
	assert.Contains(t, limiter.buckets, "active")
}

func TestNewRateLimiter_FallsBackToInMemory(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{Requests: 5, Window: time.Minute})

	_, ok := limiter.(*InMemoryRateLimiter)
	assert.True(t, ok)

	requests, window := limiter.GetLimitDetails()
	assert.Equal(t, 5, requests)
	assert.Equal(t, time.Minute, window)
}

func TestRedisRateLimiter_KeyPrefix(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, 1, time.Minute, "", nil)
	assert.Equal(t, "ratelimit:1.2.3.4", limiter.key("1.2.3.4"))
	assert.Equal(t, "ratelimit:1.2.3.4", limiter.key("ratelimit:1.2.3.4"))

	limiter = NewRedisRateLimiter(nil, 1, time.Minute, "ratelimit:waitlist_signup:", nil)
	assert.Equal(t, "ratelimit:waitlist_signup:1.2.3.4", limiter.key("1.2.3.4"))
}
