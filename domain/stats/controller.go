package stats

import (
	"time"

	"github.com/akeren/go-waitlist/config/router"
)

const (
	statsLimiterName = "waitlist_stats"
	statsRateLimit   = 60
)

func NewStatsController(factory StatsServiceFactory) *router.RESTController {
	return router.NewVersionedRESTController(
		"StatsController",
		"v1",
		"/waitlist",
		func(rs *router.RouterService, c *router.RESTController) {
			service := factory.CreateService()
			// Each miss scans the whole ledger.
			limiter := rs.RateLimiterFactory().CreateRateLimiter(statsLimiterName, statsRateLimit, time.Minute)

			rs.AddGetHandler(c, limiter, "stats", summaryHandler(service))
		},
	)
}

func summaryHandler(service StatsService) router.HandlerFunction {
	return func(ctx *router.RequestContext) *router.ServiceResult {
		summary := service.Summarize(ctx.Request.Context(), time.Now().UTC())

		return router.OKResult(summary, "Waitlist stats retrieved successfully")
	}
}
