package router

import (
	"github.com/gin-gonic/gin"
)

type RequestContext = gin.Context

type MiddlewareFunc = gin.HandlerFunc

// ServiceResult is what every handler returns; it is rendered as the
// {code, data, message} envelope with StatusCode as the HTTP status.
type ServiceResult struct {
	StatusCode int    `json:"code"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
}

func (result *ServiceResult) ToJSON() gin.H {
	return gin.H{"code": result.StatusCode, "data": result.Data, "message": result.Message}
}

type RateLimitResponse struct {
	Limit      int    `json:"limit"`
	Window     string `json:"window"`
	RetryAfter string `json:"retry_after"`
}

type HandlerFunction func(*RequestContext) *ServiceResult

// RESTController groups handlers under one mount point. prepare runs once,
// when the controller is mounted, and registers the handlers.
type RESTController struct {
	name         string
	mountPoint   string
	version      string
	handlerCount int
	prepare      func(*RouterService, *RESTController)
}
