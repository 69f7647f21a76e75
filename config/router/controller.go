package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/akeren/go-waitlist/pkg/ratelimit"
)

func NewRESTController(name, mountPoint string, prepare func(*RouterService, *RESTController)) *RESTController {
	return &RESTController{
		name:       name,
		mountPoint: cleanPath(mountPoint),
		prepare:    prepare,
	}
}

// NewVersionedRESTController mounts the controller under /<version>/<mountPoint>.
func NewVersionedRESTController(name, version, mountPoint string, prepare func(*RouterService, *RESTController)) *RESTController {
	return &RESTController{
		name:       name,
		mountPoint: cleanPath(version + "/" + mountPoint),
		version:    version,
		prepare:    prepare,
	}
}

// cleanPath returns p with a single leading slash, no doubled slashes and
// no trailing slash (except for the root).
func cleanPath(p string) string {
	p = "/" + p
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func routeKey(method, path string) string {
	return method + " " + path
}

// register records path+method for controller and its optional limiter.
// Two controllers claiming the same route is a wiring bug and panics at startup.
func (routerService *RouterService) register(controller *RESTController, method, path string, limiter ratelimit.RateLimiter) {
	key := routeKey(method, path)

	if other, taken := routerService.handlerToControllerMap[key]; taken {
		panic(fmt.Sprintf("route %s is already registered by controller %q", key, other.name))
	}
	routerService.handlerToControllerMap[key] = controller

	if limiter != nil {
		routerService.rateLimitOverrides[key] = limiter
	}
}

func createHandler(handler HandlerFunction) MiddlewareFunc {
	return func(c *RequestContext) {
		result := handler(c)
		if result == nil {
			c.JSON(http.StatusInternalServerError, InternalServerErrorResult("Handler returned no result").ToJSON())
			return
		}

		if result.StatusCode == http.StatusServiceUnavailable {
			c.Header("Retry-After", "1")
		}
		c.JSON(result.StatusCode, result.ToJSON())
	}
}

func (routerService *RouterService) addHandler(
	method string,
	controller *RESTController,
	limiter ratelimit.RateLimiter,
	path string,
	handler HandlerFunction,
	middlewares []MiddlewareFunc,
) {
	fullPath := cleanPath(controller.mountPoint + "/" + path)

	routerService.register(controller, method, fullPath, limiter)
	routerService.engine.Handle(method, fullPath, append(middlewares, createHandler(handler))...)
	controller.handlerCount++

	routerService.logger.Debug("Handler registered", "controller", controller.name, "method", method, "path", fullPath)
}

// AddPostHandler registers a POST route. A nil limiter means the global limiter.
func (routerService *RouterService) AddPostHandler(
	controller *RESTController,
	limiter ratelimit.RateLimiter,
	path string,
	handler HandlerFunction,
	middlewares ...MiddlewareFunc,
) {
	routerService.addHandler(http.MethodPost, controller, limiter, path, handler, middlewares)
}

// AddGetHandler registers a GET route. A nil limiter means the global limiter.
func (routerService *RouterService) AddGetHandler(
	controller *RESTController,
	limiter ratelimit.RateLimiter,
	path string,
	handler HandlerFunction,
	middlewares ...MiddlewareFunc,
) {
	routerService.addHandler(http.MethodGet, controller, limiter, path, handler, middlewares)
}
