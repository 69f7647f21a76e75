package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akeren/go-waitlist/config"
	"github.com/akeren/go-waitlist/internal/log"
	"github.com/akeren/go-waitlist/internal/worker"
)

func main() {
	logger := log.NewLoggerWithJSONOutput()

	if err := run(logger); err != nil {
		logger.Error("Mailing list worker failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(logger *log.Logger) error {
	config.InitializeEnvFile(logger)

	waitlistConfig, err := config.LoadWaitlistConfig()
	if err != nil {
		return err
	}
	mailingList := waitlistConfig.MailingList

	tracingShutdown, err := config.SetupTracing(logger, config.TracingComponentWorker)
	if err != nil {
		return err
	}
	defer func() {
		if tracingShutdown == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingShutdown(ctx); err != nil {
			logger.Error("Failed to shutdown tracer provider", "error", err)
		}
	}()

	cacheConfig, err := config.LoadCacheConfig()
	if err != nil {
		return err
	}
	cache, err := cacheConfig.NewCache(logger)
	if err != nil {
		return err
	}
	defer config.CloseCache(cache, logger)

	q, err := config.NewMailingListQueue(config.GetRedisClient(cache), mailingList, logger)
	if err != nil {
		return err
	}

	client, err := config.NewMailingListClient(mailingList, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := worker.NewMailingListWorker(q, client, logger, worker.Config{
		JobTimeout: 2 * mailingList.Timeout,
	})

	logger.Info("Mailing list worker consuming", "queue", mailingList.Queue, "max_attempts", mailingList.MaxAttempts)
	return w.Run(ctx)
}
