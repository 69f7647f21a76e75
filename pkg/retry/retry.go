package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"time"
)

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter in [0,1] randomises that fraction of each delay.
	Jitter float64

	// Retryable decides whether a failed attempt is worth repeating.
	// Nil retries network timeouts only.
	Retryable func(error) bool
}

func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// Backoff retries a call with exponentially growing delays.
type Backoff struct {
	cfg Config
}

// New applies DefaultConfig when cfg is nil.
func New(cfg *Config) *Backoff {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	if c.Retryable == nil {
		c.Retryable = isNetworkTimeout
	}
	c.Jitter = min(max(c.Jitter, 0), 1)

	return &Backoff{cfg: c}
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. Exhaustion is reported as *ExhaustedError.
func (b *Backoff) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return err
			}
			return &ExhaustedError{Attempts: attempt - 1, Last: lastErr}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !b.cfg.Retryable(lastErr) {
			return lastErr
		}
		if attempt >= b.cfg.MaxAttempts {
			return &ExhaustedError{Attempts: attempt, Last: lastErr}
		}

		timer := time.NewTimer(b.jittered(b.Delay(attempt)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return &ExhaustedError{Attempts: attempt, Last: lastErr}
		case <-timer.C:
		}
	}
}

// Delay is the un-jittered wait after the given 1-based attempt.
func (b *Backoff) Delay(attempt int) time.Duration {
	d := float64(b.cfg.BaseDelay) * math.Pow(b.cfg.Multiplier, float64(attempt-1))
	if b.cfg.MaxDelay > 0 && d > float64(b.cfg.MaxDelay) {
		d = float64(b.cfg.MaxDelay)
	}
	return time.Duration(d)
}

func (b *Backoff) jittered(d time.Duration) time.Duration {
	if b.cfg.Jitter == 0 || d <= 0 {
		return d
	}
	spread := float64(d) * b.cfg.Jitter
	return time.Duration(float64(d) - spread + rand.Float64()*spread)
}

func isNetworkTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ExhaustedError is returned when every allowed attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}
