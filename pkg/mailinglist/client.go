package mailinglist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akeren/go-waitlist/pkg/circuitbreaker"
	"github.com/akeren/go-waitlist/pkg/retry"
)

// Contact is what the mailing-list provider learns about a new signup.
type Contact struct {
	Email        string `json:"email"`
	ReferralCode string `json:"referral_code"`
}

// Syncer pushes a contact to the external mailing list.
type Syncer interface {
	Subscribe(ctx context.Context, contact Contact) error
}

type ClientConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration

	Retry   *retry.Config
	Breaker *circuitbreaker.Config
}

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mailing list: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether repeating the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Client is the HTTP Syncer. Calls go through a circuit breaker wrapped in a
// retry policy so a failing provider is not hammered.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	retry      *retry.Backoff
	breaker    *circuitbreaker.Breaker
}

func NewClient(cfg ClientConfig) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("mailing list: url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	if retryCfg.Retryable == nil {
		retryCfg.Retryable = IsTemporary
	}

	breakerCfg := cfg.Breaker
	if breakerCfg == nil {
		breakerCfg = circuitbreaker.DefaultConfig()
	}
	if breakerCfg.IsFailure == nil {
		breakerCfg.IsFailure = IsTemporary
	}

	return &Client{
		url:        url,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry.New(retryCfg),
		breaker:    circuitbreaker.New(breakerCfg),
	}, nil
}

func (c *Client) Subscribe(ctx context.Context, contact Contact) error {
	body, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("mailing list: marshal contact: %w", err)
	}

	return c.retry.Do(ctx, func(ctx context.Context) error {
		return c.breaker.Call(func() error {
			return c.post(ctx, body)
		})
	})
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() circuitbreaker.CircuitState {
	return c.breaker.State()
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mailing list: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mailing list: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

// IsTemporary classifies Subscribe failures: transport errors, 5xx and 429 are
// temporary; other statuses and an open circuit are not.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}

	return true
}
