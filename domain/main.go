package domain

import (
	"github.com/akeren/go-waitlist/config"
	"github.com/akeren/go-waitlist/domain/monitoring"
	"github.com/akeren/go-waitlist/domain/stats"
	"github.com/akeren/go-waitlist/domain/waitlist"
)

func SetupCoreDomain(appConfig *config.ApplicationConfig) {
	settings := appConfig.Waitlist

	appConfig.RouterService.MountController(
		monitoring.NewMonitoringControllerFactory(appConfig.DB, appConfig.Logger, appConfig.Cache, appConfig.Notifier).CreateController(),
	)

	appConfig.RouterService.MountController(
		waitlist.NewWaitlistServiceFactory(appConfig.DB, appConfig.Logger, appConfig.Notifier, waitlist.Settings{
			MaxCodeAttempts:  settings.MaxCodeAttempts,
			RequireCategory:  settings.RequireCategory,
			SignupRateLimit:  settings.SignupRateLimit,
			SignupRateWindow: settings.SignupRateWindow,
		}).CreateController(),
	)

	appConfig.RouterService.MountController(
		stats.NewStatsServiceFactory(appConfig.DB, appConfig.Logger, appConfig.Cache, settings.StatsCacheTTL).CreateController(),
	)
}
