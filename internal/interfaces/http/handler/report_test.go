package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	reportapp "github.com/orchard/backend/internal/application/report"
	"github.com/orchard/backend/internal/domain/identity"
	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/domain/shared"
	"github.com/orchard/backend/internal/interfaces/http/dto"
	"github.com/orchard/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockReportService is a mock implementation of ReportService
type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) GetReport(ctx context.Context, caller identity.Caller, req reportapp.Request) (*reportapp.Result, error) {
	args := m.Called(ctx, caller, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reportapp.Result), args.Error(1)
}

func (m *MockReportService) Export(ctx context.Context, caller identity.Caller, req reportapp.Request, format report.Format) (*reportapp.ExportResult, error) {
	args := m.Called(ctx, caller, req, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reportapp.ExportResult), args.Error(1)
}

func (m *MockReportService) Invalidate(ctx context.Context, caller identity.Caller, reportType report.ReportType) (string, error) {
	args := m.Called(ctx, caller, reportType)
	return args.String(0), args.Error(1)
}

var (
	testOwner = identity.NewCaller(uuid.MustParse("8f14e45f-ceea-4e7a-9f1b-2a0c4b6d8e10"), identity.RoleOwner)
	testAdmin = identity.NewCaller(uuid.MustParse("c9f0f895-fb98-4b91-8a35-1c1e7f0d2a33"), identity.RoleAdministrator)
)

// setupReportRouter mounts the handler behind a stand-in for the JWT middleware
func setupReportRouter(svc ReportService, caller *identity.Caller) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(func(c *gin.Context) {
		if caller != nil {
			c.Set(middleware.JWTCallerKey, *caller)
		}
		c.Next()
	})
	NewReportHandler(svc).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func perform(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func samplePayload() *report.Payload {
	p := report.NewPayload()
	p.KPIs = append(p.KPIs, report.KPI{Label: "Total invested", Value: "350.31", Unit: "USD"})
	return p
}

func TestReportHandler_GetReport(t *testing.T) {
	id := uuid.New()

	t.Run("plural path and date range", func(t *testing.T) {
		svc := new(MockReportService)
		router := setupReportRouter(svc, &testOwner)

		from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
		svc.On("GetReport", mock.Anything, testOwner, mock.MatchedBy(func(req reportapp.Request) bool {
			return req.Type == report.ReportTypeOrchard &&
				req.ID == id &&
				req.DateRange.From != nil && req.DateRange.From.Equal(from) &&
				req.DateRange.To != nil && req.DateRange.To.Equal(to) &&
				req.ForceRefresh
		})).Return(&reportapp.Result{
			Key:     "report_abc",
			Type:    "orchard",
			Version: "v1",
			Payload: samplePayload(),
		}, nil)

		rec := perform(router, http.MethodGet,
			fmt.Sprintf("/api/v1/reports/orchards/%s?from=2024-06-01&to=2024-06-30&refresh=true", id))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeResponse(t, rec)
		assert.True(t, resp.Success)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "report_abc", data["key"])
		assert.Equal(t, "v1", data["version"])
		svc.AssertExpectations(t)
	})

	t.Run("singular path without filters", func(t *testing.T) {
		svc := new(MockReportService)
		router := setupReportRouter(svc, &testOwner)

		svc.On("GetReport", mock.Anything, testOwner, reportapp.Request{
			Type: report.ReportTypeHarvest,
			ID:   id,
		}).Return(&reportapp.Result{Key: "report_h", Payload: samplePayload()}, nil)

		rec := perform(router, http.MethodGet, "/api/v1/reports/harvest/"+id.String())

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("service errors map to status codes", func(t *testing.T) {
		tests := []struct {
			err        error
			wantStatus int
			wantCode   string
			wantMsg    string
		}{
			{shared.NotFoundf("harvest %s not found", id), http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("harvest %s not found", id)},
			{shared.PermissionDeniedf("outside your orchards"), http.StatusForbidden, "PERMISSION_DENIED", "outside your orchards"},
			{shared.InvalidParameterf("date range start is after its end"), http.StatusBadRequest, "INVALID_PARAMETER", "date range start is after its end"},
			{shared.WrapDomainError(shared.CodeComputeError, "aggregate", errors.New("pq: corrupt row")), http.StatusInternalServerError, "COMPUTE_ERROR", "Failed to compute report"},
			{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"},
		}
		for _, tt := range tests {
			t.Run(tt.wantCode, func(t *testing.T) {
				svc := new(MockReportService)
				router := setupReportRouter(svc, &testOwner)
				svc.On("GetReport", mock.Anything, testOwner, mock.Anything).Return(nil, tt.err)

				rec := perform(router, http.MethodGet, "/api/v1/reports/seasons/"+id.String())

				assert.Equal(t, tt.wantStatus, rec.Code)
				resp := decodeResponse(t, rec)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantCode, resp.Error.Code)
				assert.Equal(t, tt.wantMsg, resp.Error.Message)
				assert.NotEmpty(t, resp.Error.RequestID)
			})
		}
	})

	t.Run("rejected before the service", func(t *testing.T) {
		tests := []struct {
			name       string
			path       string
			wantStatus int
		}{
			{"unknown type", "/api/v1/reports/invoices/" + id.String(), http.StatusBadRequest},
			{"malformed id", "/api/v1/reports/harvests/not-a-uuid", http.StatusBadRequest},
			{"malformed date", "/api/v1/reports/orchards/" + id.String() + "?from=06/01/2024", http.StatusBadRequest},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := new(MockReportService)
				router := setupReportRouter(svc, &testOwner)

				rec := perform(router, http.MethodGet, tt.path)

				assert.Equal(t, tt.wantStatus, rec.Code)
				assert.Equal(t, "INVALID_PARAMETER", decodeResponse(t, rec).Error.Code)
				svc.AssertNotCalled(t, "GetReport", mock.Anything, mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		svc := new(MockReportService)
		router := setupReportRouter(svc, nil)

		rec := perform(router, http.MethodGet, "/api/v1/reports/harvests/"+id.String())

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "UNAUTHORIZED", decodeResponse(t, rec).Error.Code)
		svc.AssertNotCalled(t, "GetReport", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestReportHandler_ExportReport(t *testing.T) {
	id := uuid.New()

	t.Run("streams the artifact", func(t *testing.T) {
		svc := new(MockReportService)
		router := setupReportRouter(svc, &testOwner)

		svc.On("Export", mock.Anything, testOwner, reportapp.Request{
			Type: report.ReportTypeSeason,
			ID:   id,
		}, report.FormatSpreadsheet).Return(&reportapp.ExportResult{
			Result: &reportapp.Result{Key: "report_abc", Payload: samplePayload()},
			Artifact: &report.Artifact{
				Format:      report.FormatSpreadsheet,
				ContentType: "text/csv; charset=utf-8",
				Extension:   "csv",
				Data:        []byte("KPI,Value,Unit\r\n"),
			},
		}, nil)

		rec := perform(router, http.MethodGet, "/api/v1/reports/seasons/"+id.String()+"/export?format=Spreadsheet")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="report_abc.csv"`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, "report_abc", rec.Header().Get("X-Report-Key"))
		assert.Equal(t, "KPI,Value,Unit\r\n", rec.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("unsupported format", func(t *testing.T) {
		for _, query := range []string{"?format=xlsx", ""} {
			svc := new(MockReportService)
			router := setupReportRouter(svc, &testOwner)

			rec := perform(router, http.MethodGet, "/api/v1/reports/seasons/"+id.String()+"/export"+query)

			assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
			assert.Equal(t, "UNSUPPORTED_FORMAT", decodeResponse(t, rec).Error.Code)
			svc.AssertNotCalled(t, "Export", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		}
	})

	t.Run("render failure hides the cause", func(t *testing.T) {
		svc := new(MockReportService)
		router := setupReportRouter(svc, &testOwner)
		svc.On("Export", mock.Anything, testOwner, mock.Anything, report.FormatDocument).
			Return(nil, shared.WrapDomainError(shared.CodeRenderError, "convert to pdf", errors.New("chrome crashed")))

		rec := perform(router, http.MethodGet, "/api/v1/reports/harvests/"+id.String()+"/export?format=document")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		resp := decodeResponse(t, rec)
		assert.Equal(t, "RENDER_ERROR", resp.Error.Code)
		assert.NotContains(t, resp.Error.Message, "chrome")
	})
}

func TestReportHandler_Invalidate(t *testing.T) {
	t.Run("administrator", func(t *testing.T) {
		svc := new(MockReportService)
		router := setupReportRouter(svc, &testAdmin)
		svc.On("Invalidate", mock.Anything, testAdmin, report.ReportTypeHarvest).Return("v1.1", nil)

		rec := perform(router, http.MethodPost, "/api/v1/reports/harvests/invalidate")

		require.Equal(t, http.StatusOK, rec.Code)
		data := decodeResponse(t, rec).Data.(map[string]any)
		assert.Equal(t, "harvest", data["type"])
		assert.Equal(t, "v1.1", data["version"])
	})

	t.Run("owner is denied", func(t *testing.T) {
		svc := new(MockReportService)
		router := setupReportRouter(svc, &testOwner)
		svc.On("Invalidate", mock.Anything, testOwner, report.ReportTypeOrchard).
			Return("", shared.PermissionDeniedf("only administrators may invalidate reports"))

		rec := perform(router, http.MethodPost, "/api/v1/reports/orchards/invalidate")

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "PERMISSION_DENIED", decodeResponse(t, rec).Error.Code)
	})

	t.Run("unknown type", func(t *testing.T) {
		svc := new(MockReportService)
		router := setupReportRouter(svc, &testAdmin)

		rec := perform(router, http.MethodPost, "/api/v1/reports/everything/invalidate")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything, mock.Anything)
	})
}
