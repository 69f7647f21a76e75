package config

import (
	"errors"
	"fmt"

	"github.com/akeren/go-waitlist/internal/log"
	"github.com/akeren/go-waitlist/pkg/circuitbreaker"
	"github.com/akeren/go-waitlist/pkg/mailinglist"
	"github.com/akeren/go-waitlist/pkg/queue"
	"github.com/go-redis/redis/v8"
)

var ErrQueueRequiresRedis = errors.New("MAILING_LIST_MODE=queue requires REDIS_HOST")

// NewMailingListClient builds the HTTP client and logs breaker transitions.
func NewMailingListClient(cfg MailingListConfig, logger *log.Logger) (*mailinglist.Client, error) {
	breaker := circuitbreaker.DefaultConfig()
	breaker.OnStateChange = func(from, to circuitbreaker.CircuitState) {
		logger.Warn("Mailing list circuit changed state", "from", from.String(), "to", to.String())
	}

	return mailinglist.NewClient(mailinglist.ClientConfig{
		URL:     cfg.URL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
		Breaker: breaker,
	})
}

func NewMailingListQueue(client *redis.Client, cfg MailingListConfig, logger *log.Logger) (*queue.Queue, error) {
	if client == nil {
		return nil, ErrQueueRequiresRedis
	}

	return queue.New(client, queue.Config{
		Name:        cfg.Queue,
		DeadLetter:  cfg.DeadLetter,
		MaxAttempts: cfg.MaxAttempts,
	}, logger)
}

// NewNotifier picks the mailing-list delivery for the API process.
func NewNotifier(cfg MailingListConfig, cache Cache, logger *log.Logger) (mailinglist.Notifier, error) {
	mode := cfg.EffectiveMode()

	switch mode {
	case MailingListModeOff:
		logger.Info("Mailing list sync disabled")
		return mailinglist.NoopNotifier{}, nil

	case MailingListModeQueue:
		q, err := NewMailingListQueue(GetRedisClient(cache), cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Mailing list sync via Redis queue", "queue", cfg.Queue)
		return mailinglist.NewQueueNotifier(q, logger), nil

	case MailingListModeAsync:
		client, err := NewMailingListClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Mailing list sync in-process", "workers", cfg.Workers, "buffer", cfg.Buffer)
		return mailinglist.NewAsyncNotifier(client, logger, mailinglist.AsyncOptions{
			Workers: cfg.Workers,
			Buffer:  cfg.Buffer,
			Timeout: 2 * cfg.Timeout,
		}), nil
	}

	return nil, fmt.Errorf("unsupported mailing list mode %q", mode)
}
