package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/akeren/go-waitlist/internal/log"
	apperrors "github.com/akeren/go-waitlist/pkg/errors"
	"github.com/akeren/go-waitlist/pkg/factory"
	"github.com/akeren/go-waitlist/pkg/ratelimit"
	"github.com/akeren/go-waitlist/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	DefaultTimeoutDuration = 30 * time.Second
)

type Cache interface {
	Ping(ctx context.Context) error
}

type RedisClientProvider interface {
	GetClient() *redis.Client
}

type RouterService struct {
	engine   *gin.Engine
	server   *http.Server
	logger   *log.Logger
	settings HTTPSettings

	rateLimiter       ratelimit.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration
	requestTimeout    time.Duration
	limiterFactory    factory.RateLimiterFactory
	registry          *prometheus.Registry
	metrics           *httpMetrics

	handlerToControllerMap map[string]*RESTController
	rateLimitOverrides     map[string]ratelimit.RateLimiter
}

type RouterConfig struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RequestTimeout    time.Duration

	// HTTP overrides the environment-derived settings when non-nil.
	HTTP *HTTPSettings
}

func CreateRouterService(logger *log.Logger, cache Cache, routerConfig *RouterConfig) *RouterService {
	settings := resolveHTTPSettings(logger, routerConfig)

	if settings.GinMode != "" {
		gin.SetMode(settings.GinMode)
	}

	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())

	if utils.IsTracingEnabled() {
		ginRouter.Use(otelgin.Middleware(utils.OTelServiceName()))
		logger.Info("Tracing middleware enabled")
	}

	// Gin trusts every proxy by default, which would let clients pick their own
	// rate-limit key through X-Forwarded-For.
	trustedProxies := parseTrustedProxies(settings.TrustedProxies)
	if err := ginRouter.SetTrustedProxies(trustedProxies); err != nil {
		logger.Error("Invalid TRUSTED_PROXIES; disabling trusted proxies", "error", err)
		_ = ginRouter.SetTrustedProxies(nil)
	}

	requestTimeout := routerConfig.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultTimeoutDuration
	}

	rs := &RouterService{
		engine:                 ginRouter,
		logger:                 logger,
		settings:               settings,
		rateLimitRequests:      routerConfig.RateLimitRequests,
		rateLimitWindow:        routerConfig.RateLimitWindow,
		requestTimeout:         requestTimeout,
		registry:               prometheus.NewRegistry(),
		rateLimitOverrides:     make(map[string]ratelimit.RateLimiter),
		handlerToControllerMap: make(map[string]*RESTController),
	}

	rs.initRateLimiting(redisClientFrom(logger, cache))
	rs.mountMetrics()

	ginRouter.Use(
		rs.securityHeadersMiddleware(),
		rs.maxBodySizeMiddleware(),
		rs.corsMiddleware(),
		rs.rateLimitMiddleware(),
		rs.timeoutMiddleware(),
		rs.correlationIDMiddleware(),
		rs.loggerInjectionMiddleware(),
		rs.requestLoggingMiddleware(),
	)

	ginRouter.HandleMethodNotAllowed = true
	ginRouter.RedirectTrailingSlash = true

	ginRouter.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, NotFoundResult("Route not found").ToJSON())
	})
	ginRouter.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, ErrorResult(apperrors.StatusMethodNotAllowed, "Method not allowed", nil).ToJSON())
	})

	// Handlers run on the request goroutine; the server timeouts bound them.
	rs.server = &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           ginRouter,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       requestTimeout,
		WriteTimeout:      requestTimeout,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("Router service initialized",
		"port", settings.Port,
		"trusted_proxies", len(trustedProxies),
		"cors_origins", len(settings.CORSAllowedOrigins),
		"metrics", settings.MetricsEnabled,
	)
	return rs
}

func resolveHTTPSettings(logger *log.Logger, routerConfig *RouterConfig) HTTPSettings {
	if routerConfig.HTTP != nil {
		return *routerConfig.HTTP
	}

	settings, err := LoadHTTPSettings()
	if err != nil {
		logger.Error("Invalid HTTP settings; using defaults", "error", err)
	}
	return settings
}

// redisClientFrom returns the cache's Redis client if it answers a ping.
func redisClientFrom(logger *log.Logger, cache Cache) *redis.Client {
	provider, ok := cache.(RedisClientProvider)
	if !ok {
		return nil
	}

	client := provider.GetClient()
	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable for rate limiting, falling back to in-memory", "error", err)
		return nil
	}
	return client
}

func (routerService *RouterService) initRateLimiting(redisClient *redis.Client) {
	routerService.limiterFactory = factory.NewDefaultRateLimiterFactory(redisClient, routerService.logger)
	routerService.rateLimiter = routerService.limiterFactory.CreateRateLimiter(
		"global",
		routerService.rateLimitRequests,
		routerService.rateLimitWindow,
	)

	routerService.logger.Info("Rate limiting initialized",
		"distributed", routerService.limiterFactory.Distributed(),
		"requests", routerService.rateLimitRequests,
		"window", routerService.rateLimitWindow.String(),
	)
}

// RateLimiterFactory builds per-route limiters on the same store as the global limiter.
func (routerService *RouterService) RateLimiterFactory() factory.RateLimiterFactory {
	return routerService.limiterFactory
}

// MetricsRegisterer is where domains register their collectors. When metrics
// are disabled the registry is still valid but never exposed.
func (routerService *RouterService) MetricsRegisterer() prometheus.Registerer {
	return routerService.registry
}

func (routerService *RouterService) GetEngine() *gin.Engine {
	return routerService.engine
}

func (routerService *RouterService) GetLogger(c *RequestContext) *log.Logger {
	return routerService.logger.WithCorrelationID(c.Request.Context())
}

func (routerService *RouterService) Cleanup() {
	closed := map[ratelimit.RateLimiter]bool{}
	limiters := []ratelimit.RateLimiter{routerService.rateLimiter}
	for _, limiter := range routerService.rateLimitOverrides {
		limiters = append(limiters, limiter)
	}

	for _, limiter := range limiters {
		if limiter == nil || closed[limiter] {
			continue
		}
		closed[limiter] = true
		if err := limiter.Close(); err != nil {
			routerService.logger.Error("Failed to close rate limiter", "error", err)
		}
	}
	routerService.logger.Info("Router service cleanup completed")
}

func (routerService *RouterService) MountController(controller *RESTController) {
	controller.prepare(routerService, controller)

	routerService.logger.Info("Controller mounted",
		"name", controller.name,
		"path", controller.mountPoint,
		"version", controller.version,
		"handlers", controller.handlerCount,
	)
}

func (routerService *RouterService) RunHTTPServer() error {
	routerService.logger.Info("Starting HTTP server", "addr", routerService.server.Addr)

	if err := routerService.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

func (routerService *RouterService) Shutdown(ctx context.Context) error {
	routerService.logger.Info("Shutting down HTTP server gracefully")
	return routerService.server.Shutdown(ctx)
}
