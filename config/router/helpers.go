package router

import (
	"net/http"

	"github.com/akeren/go-waitlist/internal/log"
	apperrors "github.com/akeren/go-waitlist/pkg/errors"
)

func GetLogger(ctx *RequestContext) *log.Logger {
	if logger := ctx.Request.Context().Value(log.LoggerKeyForContext); logger != nil {
		if l, ok := logger.(*log.Logger); ok {
			return l
		}
	}

	baseLogger := log.NewLoggerWithJSONOutput()
	return baseLogger.WithCorrelationID(ctx.Request.Context())
}

// BindJSON decodes the request body into req. A non-nil result is the 400
// response to return as-is.
func BindJSON(ctx *RequestContext, req any) *ServiceResult {
	if err := ctx.ShouldBindJSON(req); err != nil {
		GetLogger(ctx).Warn("Failed to bind request", "error", err)

		validationErrors := apperrors.FormatValidationErrors(err, req)
		if len(validationErrors) > 0 {
			return BadRequestResult("Invalid request payload", validationErrors)
		}

		return BadRequestResult("Invalid request body", nil)
	}

	return nil
}

// BindQuery is BindJSON for query strings.
func BindQuery(ctx *RequestContext, req any) *ServiceResult {
	if err := ctx.ShouldBindQuery(req); err != nil {
		GetLogger(ctx).Warn("Failed to bind query", "error", err)

		validationErrors := apperrors.FormatValidationErrors(err, req)
		if len(validationErrors) > 0 {
			return BadRequestResult("Invalid query parameters", validationErrors)
		}

		return BadRequestResult("Invalid query parameters", nil)
	}

	return nil
}

func OKResult(data any, message string) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusOK,
		Data:       data,
		Message:    message,
	}
}

func CreatedResult(data any, resourceName string) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusCreated,
		Data:       data,
		Message:    resourceName + " created successfully",
	}
}

func TooManyRequestsResult(data RateLimitResponse) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusTooManyRequests,
		Data:       data,
		Message:    "Too Many Requests",
	}
}

func BadRequestResult(message string, payload any) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusBadRequest,
		Data:       payload,
		Message:    message,
	}
}

func NotFoundResult(message string) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusNotFound,
		Data:       nil,
		Message:    message,
	}
}

func InternalServerErrorResult(message string) *ServiceResult {
	return &ServiceResult{
		StatusCode: http.StatusInternalServerError,
		Data:       nil,
		Message:    message,
	}
}

func ErrorResult(statusCode int, message string, data any) *ServiceResult {
	return &ServiceResult{
		StatusCode: statusCode,
		Data:       data,
		Message:    message,
	}
}

// ErrorResultFromError maps an application error to its HTTP status and public message.
func ErrorResultFromError(err error, data any) *ServiceResult {
	return ErrorResult(
		apperrors.HTTPStatusCode(err),
		apperrors.GetHumanReadableMessage(err),
		data,
	)
}
