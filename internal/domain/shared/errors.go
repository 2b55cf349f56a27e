package shared

import (
	"errors"
	"fmt"
)

// Error codes shared by every layer. HTTP status mapping lives in the dto package.
const (
	CodeNotFound          = "NOT_FOUND"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeInvalidParameter  = "INVALID_PARAMETER"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeRenderError       = "RENDER_ERROR"
	CodeComputeError      = "COMPUTE_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DomainError with the same code, so
// errors.Is(err, ErrNotFound) matches any NOT_FOUND error.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error carrying an underlying cause
func WrapDomainError(code, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common domain errors
var (
	ErrNotFound          = NewDomainError(CodeNotFound, "Resource not found")
	ErrPermissionDenied  = NewDomainError(CodePermissionDenied, "Access to this resource is forbidden")
	ErrInvalidParameter  = NewDomainError(CodeInvalidParameter, "Invalid parameter provided")
	ErrUnsupportedFormat = NewDomainError(CodeUnsupportedFormat, "Unsupported export format")
	ErrRenderError       = NewDomainError(CodeRenderError, "Failed to render report")
	ErrComputeError      = NewDomainError(CodeComputeError, "Failed to compute report")
	ErrUnauthorized      = NewDomainError(CodeUnauthorized, "Authentication required")
)

var sentinels = map[string]*DomainError{
	CodeNotFound:          ErrNotFound,
	CodePermissionDenied:  ErrPermissionDenied,
	CodeInvalidParameter:  ErrInvalidParameter,
	CodeUnsupportedFormat: ErrUnsupportedFormat,
	CodeRenderError:       ErrRenderError,
	CodeComputeError:      ErrComputeError,
	CodeUnauthorized:      ErrUnauthorized,
}

// ErrorMessage returns the generic message for a code, safe to show to clients
func ErrorMessage(code string) string {
	if e, ok := sentinels[code]; ok {
		return e.Message
	}
	return "An unexpected error occurred"
}

// NotFoundf builds a NOT_FOUND error with a formatted message
func NotFoundf(format string, args ...any) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf(format, args...))
}

// PermissionDeniedf builds a PERMISSION_DENIED error with a formatted message
func PermissionDeniedf(format string, args ...any) *DomainError {
	return NewDomainError(CodePermissionDenied, fmt.Sprintf(format, args...))
}

// InvalidParameterf builds an INVALID_PARAMETER error with a formatted message
func InvalidParameterf(format string, args ...any) *DomainError {
	return NewDomainError(CodeInvalidParameter, fmt.Sprintf(format, args...))
}

// ErrorCode returns the domain error code of err, or "" when err is not a DomainError
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsClientError reports whether err is caused by the caller's request and must
// not be retried.
func IsClientError(err error) bool {
	switch ErrorCode(err) {
	case CodeNotFound, CodePermissionDenied, CodeInvalidParameter, CodeUnsupportedFormat, CodeUnauthorized:
		return true
	default:
		return false
	}
}
