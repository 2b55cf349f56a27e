package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orchard/backend/internal/domain/identity"
	"github.com/orchard/backend/internal/domain/shared"
	"github.com/orchard/backend/internal/interfaces/http/dto"
	"github.com/orchard/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error sends an error response, deriving the status code from the error code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	middleware.SetErrorCode(c, code)
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 response with an INVALID_PARAMETER code
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, shared.CodeInvalidParameter, message)
}

// HandleError converts domain errors to HTTP responses. Errors without a
// domain code never leak their message.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		message := domainErr.Message
		if dto.IsServerError(domainErr.Code) {
			// the cause stays in the logs
			message = shared.ErrorMessage(domainErr.Code)
		}
		h.Error(c, domainErr.Code, message)
		return
	}

	h.Error(c, dto.ErrCodeInternal, "An unexpected error occurred")
}

// caller returns the authenticated caller or writes a 401
func (h *BaseHandler) caller(c *gin.Context) (identity.Caller, bool) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		h.Error(c, shared.CodeUnauthorized, "Authentication required")
		return identity.Caller{}, false
	}
	return caller, true
}
