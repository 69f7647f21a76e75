package errors

import (
	"errors"
)

const genericErrorMessage = "An unexpected error occurred"

var statusByType = map[string]int{
	ErrorTypeNotFound:           StatusNotFound,
	ErrorTypeInvalidRequest:     StatusBadRequest,
	ErrorTypeConflict:           StatusConflict,
	ErrorTypeTooManyRequests:    StatusTooManyRequests,
	ErrorTypeRequestTimeout:     StatusRequestTimeout,
	ErrorTypeServiceUnavailable: StatusServiceUnavailable,
}

// HTTPStatusCode maps err to a response status; anything unclassified is a 500.
func HTTPStatusCode(err error) int {
	if status, ok := statusByType[GetErrorType(err)]; ok {
		return status
	}
	return StatusInternalServerError
}

// GetHumanReadableMessage never returns text from a non-AppError, since
// driver errors can carry SQL and connection details.
func GetHumanReadableMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return genericErrorMessage
}
