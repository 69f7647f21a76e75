package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/akeren/go-waitlist/config/router"
	"github.com/akeren/go-waitlist/internal/log"
	"github.com/akeren/go-waitlist/pkg/mailinglist"
	"gorm.io/gorm"
)

const (
	monitoringLimiterName       = "monitoring"
	monitoringRequestsPerMinute = 10
	healthCheckTimeout          = 2 * time.Second
)

type Cache interface {
	Ping(ctx context.Context) error
}

type HealthStatus struct {
	Database    int `json:"database"`     // 1 = healthy, 0 = unhealthy
	Cache       int `json:"cache"`        // 1 = healthy, 0 = unhealthy/not configured
	MailingList int `json:"mailing_list"` // 1 = healthy or disabled, 0 = circuit open/queue unreachable
	Uptime      int `json:"uptime"`       // uptime in seconds
}

type MonitoringController struct {
	db        *gorm.DB
	logger    *log.Logger
	cache     Cache
	notifier  mailinglist.Notifier
	startTime time.Time
}

func NewMonitoringController(db *gorm.DB, logger *log.Logger, cache Cache, notifier mailinglist.Notifier) *router.RESTController {
	ctrl := &MonitoringController{
		db:        db,
		logger:    logger,
		cache:     cache,
		notifier:  notifier,
		startTime: time.Now(),
	}

	return router.NewRESTController(
		"MonitoringController",
		"/",
		func(routerService *router.RouterService, controller *router.RESTController) {
			monitoringRateLimiter := routerService.RateLimiterFactory().CreateRateLimiter(
				monitoringLimiterName,
				monitoringRequestsPerMinute,
				time.Minute,
			)

			routerService.AddGetHandler(controller, monitoringRateLimiter, "", func(c *router.RequestContext) *router.ServiceResult {
				return ctrl.monitor(c)
			})

			routerService.AddGetHandler(controller, monitoringRateLimiter, "health", func(c *router.RequestContext) *router.ServiceResult {
				return ctrl.healthCheck(routerService, c)
			})
		},
	)
}

func (ctrl *MonitoringController) healthCheck(
	routerService *router.RouterService,
	c *router.RequestContext,
) *router.ServiceResult {
	logger := routerService.GetLogger(c)
	logger.Debug("Health check endpoint called")

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	healthStatus := ctrl.performHealthChecks(ctx, logger)

	if healthStatus.Database == 0 {
		return router.ErrorResult(http.StatusServiceUnavailable, "waitlist health check failed", healthStatus)
	}

	return router.OKResult(healthStatus, "waitlist health check completed")
}

func (ctrl *MonitoringController) monitor(
	c *router.RequestContext,
) *router.ServiceResult {
	return router.OKResult("Monitoring endpoint is operational.", "Monitoring successful")
}

func (ctrl *MonitoringController) performHealthChecks(ctx context.Context, logger *log.Logger) HealthStatus {
	status := HealthStatus{
		Uptime: int(time.Since(ctrl.startTime).Seconds()),
	}

	checkDatabaseConnectivity(ctx, ctrl, &status, logger)

	checkCacheConnectivity(ctx, ctrl, &status, logger)

	checkMailingList(ctx, ctrl, &status, logger)

	return status
}

func checkCacheConnectivity(ctx context.Context, ctrl *MonitoringController, status *HealthStatus, logger *log.Logger) {
	if ctrl.cache == nil {
		status.Cache = 0
		logger.Debug("Cache not configured, cache health check skipped")
		return
	}

	if err := ctrl.cache.Ping(ctx); err != nil {
		status.Cache = 0
		logger.Error("Cache health check failed", "error", err)
		return
	}
	status.Cache = 1
}

func checkDatabaseConnectivity(ctx context.Context, ctrl *MonitoringController, status *HealthStatus, logger *log.Logger) {
	if err := ctrl.pingDatabase(ctx); err != nil {
		status.Database = 0
		logger.Error("Database health check failed", "error", err)
		return
	}
	status.Database = 1
}

// checkMailingList reports the provider circuit for in-process delivery and
// queue reachability for queued delivery. A disabled sync counts as healthy.
func checkMailingList(ctx context.Context, ctrl *MonitoringController, status *HealthStatus, logger *log.Logger) {
	checker, ok := ctrl.notifier.(mailinglist.HealthChecker)
	if !ok {
		status.MailingList = 1
		return
	}

	if err := checker.Health(ctx); err != nil {
		status.MailingList = 0
		logger.Warn("Mailing list health check failed", "error", err)
		return
	}
	status.MailingList = 1
}

func (ctrl *MonitoringController) pingDatabase(ctx context.Context) error {
	sqlDB, err := ctrl.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}
