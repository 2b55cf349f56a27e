package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/orchard/backend/internal/domain/shared"
	"github.com/orchard/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "wrapped domain error keeps its message",
			err:        fmt.Errorf("load scope: %w", shared.NotFoundf("season 42 not found")),
			wantStatus: http.StatusNotFound,
			wantCode:   shared.CodeNotFound,
			wantMsg:    "season 42 not found",
		},
		{
			name:       "unsupported format",
			err:        shared.ErrUnsupportedFormat,
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   shared.CodeUnsupportedFormat,
			wantMsg:    "Unsupported export format",
		},
		{
			name:       "server side domain error is generic",
			err:        shared.WrapDomainError(shared.CodeComputeError, "decode amount", errors.New("bad numeric")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   shared.CodeComputeError,
			wantMsg:    "Failed to compute report",
		},
		{
			name:       "plain error",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
			wantMsg:    "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Set(logger.GinRequestIDKey, "req-7")

			h := &BaseHandler{}
			h.HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeResponse(t, rec)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
			assert.Equal(t, "req-7", resp.Error.RequestID)
			// the full error is kept for the request logger
			require.Len(t, c.Errors, 1)
			assert.ErrorIs(t, c.Errors[0].Err, tt.err)
		})
	}
}

func TestBaseHandler_HandleErrorNil(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	(&BaseHandler{}).HandleError(c, nil)

	assert.Empty(t, rec.Body.String())
	assert.Empty(t, c.Errors)
}
