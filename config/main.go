package config

import (
	"context"
	"fmt"
	"time"

	"github.com/akeren/go-waitlist/config/router"
	"github.com/akeren/go-waitlist/internal/log"
	"github.com/akeren/go-waitlist/internal/models"
	"github.com/akeren/go-waitlist/pkg/constants"
	"github.com/akeren/go-waitlist/pkg/mailinglist"
	"github.com/caarlos0/env/v11"
	"gorm.io/gorm"
)

type ApplicationConfig struct {
	DB              *gorm.DB
	RouterService   *router.RouterService
	Logger          *log.Logger
	Cache           Cache
	Config          *AppConfig
	Waitlist        *WaitlistConfig
	Notifier        mailinglist.Notifier
	TracingShutdown func(context.Context) error
}

type AppConfig struct {
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
}

func NewAppConfig() (*AppConfig, error) {
	config := &AppConfig{
		RateLimitRequests: constants.DefaultRateLimitRequests,
		RateLimitWindow:   constants.DefaultRateLimitWindow,
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse app env: %w", err)
	}

	if config.RateLimitRequests <= 0 {
		config.RateLimitRequests = constants.DefaultRateLimitRequests
	}
	if config.RateLimitWindow <= 0 {
		config.RateLimitWindow = constants.DefaultRateLimitWindow
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = router.DefaultTimeoutDuration
	}

	return config, nil
}

func (ac *ApplicationConfig) Cleanup() {
	if ac.Notifier != nil {
		if err := ac.Notifier.Close(); err != nil {
			ac.Logger.Error("Failed to close mailing list notifier", "error", err)
		}
	}

	if ac.TracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ac.TracingShutdown(ctx); err != nil {
			ac.Logger.Error("Failed to shutdown tracer provider", "error", err)
		}
	}

	if ac.DB != nil {
		CloseDatabase(ac.DB, ac.Logger)
	}

	if ac.RouterService != nil {
		ac.RouterService.Cleanup()
	}

	if ac.Cache != nil {
		CloseCache(ac.Cache, ac.Logger)
	}

	ac.Logger.Info("Application cleanup completed")
}

func LoadApplicationConfiguration(logger *log.Logger, autoMigrate bool) (*ApplicationConfig, error) {
	InitializeEnvFile(logger)

	if autoMigrate {
		appEnv := GetAppEnv()
		if err := ValidateAutoMigrateAllowed(appEnv); err != nil {
			return nil, err
		}
		if appEnv == "" {
			logger.Warn("APP_ENV not set; allowing --auto-migrate as development")
		}
	}

	waitlistConfig, err := LoadWaitlistConfig()
	if err != nil {
		return nil, err
	}

	tracingShutdown, err := SetupTracing(logger, TracingComponentAPI)
	if err != nil {
		return nil, err
	}

	db, err := NewDatabase(logger, nil)
	if err != nil {
		return nil, err
	}

	if autoMigrate {
		if err := AutoMigrate(logger, db, models.ModelRegistry...); err != nil {
			return nil, err
		}
	}

	appConfig, err := NewAppConfig()
	if err != nil {
		return nil, err
	}
	cacheConfig, err := LoadCacheConfig()
	if err != nil {
		return nil, err
	}
	cache := cacheConfig.NewCacheOrNil(logger)

	notifier, err := NewNotifier(waitlistConfig.MailingList, cache, logger)
	if err != nil {
		return nil, err
	}

	routerService := router.CreateRouterService(logger, cache, &router.RouterConfig{
		RateLimitRequests: appConfig.RateLimitRequests,
		RateLimitWindow:   appConfig.RateLimitWindow,
		RequestTimeout:    appConfig.RequestTimeout,
	})

	logger.Info("Application configuration loaded successfully")

	return &ApplicationConfig{
		DB:              db,
		RouterService:   routerService,
		Logger:          logger,
		Cache:           cache,
		Config:          appConfig,
		Waitlist:        waitlistConfig,
		Notifier:        notifier,
		TracingShutdown: tracingShutdown,
	}, nil
}
