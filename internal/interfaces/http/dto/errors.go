package dto

import (
	"net/http"

	"github.com/orchard/backend/internal/domain/shared"
)

// Transport-only error codes. Domain codes live in the shared package.
const (
	// ErrCodeInternal is used for errors that carry no domain code
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	shared.CodeNotFound:          http.StatusNotFound,
	shared.CodePermissionDenied:  http.StatusForbidden,
	shared.CodeInvalidParameter:  http.StatusBadRequest,
	shared.CodeUnsupportedFormat: http.StatusUnsupportedMediaType,
	shared.CodeUnauthorized:      http.StatusUnauthorized,
	shared.CodeRenderError:       http.StatusInternalServerError,
	shared.CodeComputeError:      http.StatusInternalServerError,

	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsServerError reports whether code maps to a 5xx status
func IsServerError(code string) bool {
	return GetHTTPStatus(code) >= http.StatusInternalServerError
}
