package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/akeren/go-waitlist/config"
	"github.com/akeren/go-waitlist/domain"
	"github.com/akeren/go-waitlist/internal/log"
)

const shutdownGracePeriod = 30 * time.Second

func main() {
	logger := log.NewLoggerWithJSONOutput()
	logger.Info("Waitlist server initializing")

	if err := run(logger, autoMigrateRequested(os.Args[1:])); err != nil {
		logger.Error("Waitlist server stopped with error", "error", err.Error())
		os.Exit(1)
	}
}

func autoMigrateRequested(args []string) bool {
	return slices.ContainsFunc(args, func(arg string) bool {
		arg = strings.ToLower(arg)
		return arg == "--auto-migrate" || arg == "-m"
	})
}

func run(logger *log.Logger, autoMigrate bool) error {
	appConfig, err := config.LoadApplicationConfiguration(logger, autoMigrate)
	if err != nil {
		return err
	}
	defer appConfig.Cleanup()

	domain.SetupCoreDomain(appConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- appConfig.RouterService.RunHTTPServer()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
		return errors.New("http server exited unexpectedly")
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, draining connections", "grace_period", shutdownGracePeriod.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if err := appConfig.RouterService.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("Waitlist server shut down gracefully")
	return nil
}
