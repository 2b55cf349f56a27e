package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	reportapp "github.com/orchard/backend/internal/application/report"
	"github.com/orchard/backend/internal/domain/farm"
	"github.com/orchard/backend/internal/domain/identity"
	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/interfaces/http/dto"
)

// ReportService is the application service behind the report endpoints
type ReportService interface {
	GetReport(ctx context.Context, caller identity.Caller, req reportapp.Request) (*reportapp.Result, error)
	Export(ctx context.Context, caller identity.Caller, req reportapp.Request, format report.Format) (*reportapp.ExportResult, error)
	Invalidate(ctx context.Context, caller identity.Caller, reportType report.ReportType) (string, error)
}

// ReportHandler handles report-related API endpoints
type ReportHandler struct {
	BaseHandler
	service ReportService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(service ReportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// RegisterRoutes registers all report routes. :type accepts harvests,
// seasons and orchards (singular forms too).
func (h *ReportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	reports := rg.Group("/reports")
	reports.GET("/:type/:id", h.GetReport)
	reports.GET("/:type/:id/export", h.ExportReport)
	reports.POST("/:type/invalidate", h.Invalidate)
}

// GetReport godoc
// @Summary      Get a report
// @Description  Returns the cached or freshly computed report payload
// @Tags         reports
// @Produce      json
// @Param        type path string true "harvests, seasons or orchards"
// @Param        id path string true "Scope ID"
// @Param        from query string false "Start date (YYYY-MM-DD), orchard reports only"
// @Param        to query string false "End date (YYYY-MM-DD), orchard reports only"
// @Param        refresh query bool false "Bypass the cache"
// @Router       /reports/{type}/{id} [get]
func (h *ReportHandler) GetReport(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var query dto.ReportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	req, err := buildRequest(c, query)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.service.GetReport(c.Request.Context(), caller, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ExportReport godoc
// @Summary      Export a report
// @Description  Renders the cached report payload as a document or spreadsheet
// @Tags         reports
// @Produce      text/html,text/csv,application/pdf
// @Param        type path string true "harvests, seasons or orchards"
// @Param        id path string true "Scope ID"
// @Param        format query string true "document or spreadsheet"
// @Router       /reports/{type}/{id}/export [get]
func (h *ReportHandler) ExportReport(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	format, err := report.ParseFormat(query.Format)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	req, err := buildRequest(c, query.ReportQuery)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	exported, err := h.service.Export(c.Request.Context(), caller, req, format)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	artifact := exported.Artifact
	filename := exported.Result.Key + "." + artifact.Extension
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("X-Report-Key", exported.Result.Key)
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

// Invalidate godoc
// @Summary      Invalidate cached reports
// @Description  Bumps the schema version of a report type. Administrators only.
// @Tags         reports
// @Produce      json
// @Param        type path string true "harvests, seasons or orchards"
// @Router       /reports/{type}/invalidate [post]
func (h *ReportHandler) Invalidate(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	reportType, err := report.ParseReportType(c.Param("type"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	version, err := h.service.Invalidate(c.Request.Context(), caller, reportType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.InvalidateResponse{Type: reportType.String(), Version: version})
}

// buildRequest turns path and query parameters into a service request
func buildRequest(c *gin.Context, query dto.ReportQuery) (reportapp.Request, error) {
	reportType, err := report.ParseReportType(c.Param("type"))
	if err != nil {
		return reportapp.Request{}, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return reportapp.Request{}, invalidID(reportType, c.Param("id"))
	}

	var dateRange farm.DateRange
	if dateRange.From, err = parseDate(query.From); err != nil {
		return reportapp.Request{}, err
	}
	if dateRange.To, err = parseDate(query.To); err != nil {
		return reportapp.Request{}, err
	}

	return reportapp.Request{
		Type:         reportType,
		ID:           id,
		DateRange:    dateRange,
		ForceRefresh: query.Refresh,
	}, nil
}
