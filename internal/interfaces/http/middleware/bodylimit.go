package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orchard/backend/internal/interfaces/http/dto"
)

// BodyLimit rejects declared bodies over maxBytes with 413 and caps streamed
// bodies so reads past the limit fail.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			abortWithError(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Request body is too large")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
