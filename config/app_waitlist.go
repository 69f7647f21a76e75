package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	MailingListModeAuto  = "auto"
	MailingListModeAsync = "async"
	MailingListModeQueue = "queue"
	MailingListModeOff   = "off"
)

type WaitlistConfig struct {
	MaxCodeAttempts int  `env:"WAITLIST_MAX_CODE_ATTEMPTS" envDefault:"5"`
	RequireCategory bool `env:"WAITLIST_REQUIRE_CATEGORY" envDefault:"false"`

	SignupRateLimit  int           `env:"WAITLIST_SIGNUP_RATE_LIMIT" envDefault:"30"`
	SignupRateWindow time.Duration `env:"WAITLIST_SIGNUP_RATE_WINDOW" envDefault:"1m"`

	// StatsCacheTTL of 0 disables stats caching.
	StatsCacheTTL time.Duration `env:"STATS_CACHE_TTL" envDefault:"30s"`

	MailingList MailingListConfig `envPrefix:"MAILING_LIST_"`
}

type MailingListConfig struct {
	URL     string        `env:"URL"`
	APIKey  string        `env:"API_KEY"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`

	// Mode selects delivery: async (in-process workers), queue (Redis, drained
	// by cmd/worker), off, or auto (async when URL is set, otherwise off).
	Mode string `env:"MODE" envDefault:"auto"`

	Queue       string `env:"QUEUE" envDefault:"waitlist:mailing_list"`
	DeadLetter  string `env:"DLQ"`
	MaxAttempts int    `env:"MAX_ATTEMPTS" envDefault:"5"`

	Workers int `env:"WORKERS" envDefault:"2"`
	Buffer  int `env:"BUFFER" envDefault:"256"`
}

func LoadWaitlistConfig() (*WaitlistConfig, error) {
	var cfg WaitlistConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse waitlist env: %w", err)
	}

	cfg.MailingList.Mode = strings.ToLower(strings.TrimSpace(cfg.MailingList.Mode))
	cfg.MailingList.URL = strings.TrimSpace(cfg.MailingList.URL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *WaitlistConfig) Validate() error {
	var errs []error

	if c.MaxCodeAttempts < 1 {
		errs = append(errs, fmt.Errorf("WAITLIST_MAX_CODE_ATTEMPTS must be >= 1, got %d", c.MaxCodeAttempts))
	}
	if c.SignupRateLimit < 1 {
		errs = append(errs, fmt.Errorf("WAITLIST_SIGNUP_RATE_LIMIT must be >= 1, got %d", c.SignupRateLimit))
	}
	if c.SignupRateWindow <= 0 {
		errs = append(errs, errors.New("WAITLIST_SIGNUP_RATE_WINDOW must be positive"))
	}
	if c.StatsCacheTTL < 0 {
		errs = append(errs, errors.New("STATS_CACHE_TTL must not be negative"))
	}

	ml := c.MailingList
	switch ml.Mode {
	case MailingListModeAuto, MailingListModeOff, MailingListModeQueue:
	case MailingListModeAsync:
		if ml.URL == "" {
			errs = append(errs, errors.New("MAILING_LIST_URL is required when MAILING_LIST_MODE=async"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAILING_LIST_MODE %q is not one of auto, async, queue, off", ml.Mode))
	}
	if ml.Workers < 1 {
		errs = append(errs, errors.New("MAILING_LIST_WORKERS must be >= 1"))
	}
	if ml.Buffer < 1 {
		errs = append(errs, errors.New("MAILING_LIST_BUFFER must be >= 1"))
	}
	if ml.MaxAttempts < 1 {
		errs = append(errs, errors.New("MAILING_LIST_MAX_ATTEMPTS must be >= 1"))
	}

	return errors.Join(errs...)
}

// EffectiveMode resolves auto to a concrete delivery mode.
func (c MailingListConfig) EffectiveMode() string {
	if c.Mode != MailingListModeAuto {
		return c.Mode
	}
	if c.URL == "" {
		return MailingListModeOff
	}
	return MailingListModeAsync
}
