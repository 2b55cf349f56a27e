package report

import (
	"context"

	"github.com/google/uuid"
	"github.com/orchard/backend/internal/domain/farm"
	"github.com/orchard/backend/internal/domain/identity"
	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/domain/shared"
	"github.com/orchard/backend/internal/infrastructure/logger"
	"github.com/orchard/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Request identifies one report
type Request struct {
	Type         report.ReportType
	ID           uuid.UUID
	DateRange    farm.DateRange // orchard reports only
	ForceRefresh bool
}

// Result is a computed or cached report
type Result struct {
	Key     string          `json:"key"`
	Type    string          `json:"type"`
	Version string          `json:"version"`
	Payload *report.Payload `json:"payload"`
}

// ExportResult is a rendered report together with the payload it came from
type ExportResult struct {
	Result   *Result
	Artifact *report.Artifact
}

// ReportService orchestrates access control, key building, caching and
// computation. It is the only path from a caller to a payload.
type ReportService struct {
	gate                *AccessGate
	aggregator          *Aggregator
	cache               report.Cache
	versions            report.VersionSource
	exporter            report.Exporter
	forceRefreshEnabled bool
	logger              *zap.Logger
}

// ServiceOption configures a ReportService
type ServiceOption func(*ReportService)

// WithExporter sets the export pipeline
func WithExporter(exporter report.Exporter) ServiceOption {
	return func(s *ReportService) {
		s.exporter = exporter
	}
}

// WithForceRefreshEnabled controls whether callers may bypass the cache
func WithForceRefreshEnabled(enabled bool) ServiceOption {
	return func(s *ReportService) {
		s.forceRefreshEnabled = enabled
	}
}

// WithServiceLogger sets the logger
func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(s *ReportService) {
		s.logger = logger
	}
}

// NewReportService creates a new ReportService
func NewReportService(
	gate *AccessGate,
	aggregator *Aggregator,
	cache report.Cache,
	versions report.VersionSource,
	opts ...ServiceOption,
) *ReportService {
	s := &ReportService{
		gate:                gate,
		aggregator:          aggregator,
		cache:               cache,
		versions:            versions,
		forceRefreshEnabled: true,
		logger:              zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ===================== Report Operations =====================

// GetReport authorizes the caller, then serves the report from cache or
// computes it.
func (s *ReportService) GetReport(ctx context.Context, caller identity.Caller, req Request) (*Result, error) {
	ctx, span := telemetry.StartReportSpan(ctx, "get", req.Type,
		telemetry.SpanAttrScopeID.String(req.ID.String()),
	)
	defer span.End()

	result, err := s.getReport(ctx, caller, req)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logFailure(ctx, "Failed to get report", caller, req, err)
		return nil, err
	}
	span.SetAttributes(telemetry.SpanAttrReportKey.String(result.Key))
	return result, nil
}

func (s *ReportService) getReport(ctx context.Context, caller identity.Caller, req Request) (*Result, error) {
	params, err := requestParams(req)
	if err != nil {
		return nil, err
	}

	if err := s.gate.Authorize(ctx, caller, Scope{Type: req.Type, ID: req.ID}); err != nil {
		return nil, err
	}

	version, err := s.versions.Version(ctx, req.Type)
	if err != nil {
		return nil, shared.WrapDomainError(shared.CodeComputeError, "failed to resolve schema version", err)
	}

	force := req.ForceRefresh && s.forceRefreshEnabled
	payload, key, err := s.cache.GetOrCompute(ctx, req.Type, params, version, force, s.computeFunc(req))
	if err != nil {
		return nil, err
	}

	return &Result{
		Key:     key.String(),
		Type:    req.Type.String(),
		Version: version,
		Payload: payload,
	}, nil
}

// computeFunc binds a request to the aggregator. The returned function only
// captures scope ids, never the caller.
func (s *ReportService) computeFunc(req Request) report.ComputeFunc {
	return func(ctx context.Context) (*report.Payload, error) {
		switch req.Type {
		case report.ReportTypeHarvest:
			return s.aggregator.ComputeHarvestReport(ctx, req.ID)
		case report.ReportTypeSeason:
			return s.aggregator.ComputeSeasonReport(ctx, req.ID)
		case report.ReportTypeOrchard:
			return s.aggregator.ComputeOrchardReport(ctx, req.ID, req.DateRange)
		default:
			return nil, shared.InvalidParameterf("unknown report type %q", req.Type)
		}
	}
}

// Export renders the cached payload for req. The payload comes from the same
// cache entry GetReport serves, so the export always agrees with the JSON.
func (s *ReportService) Export(ctx context.Context, caller identity.Caller, req Request, format report.Format) (*ExportResult, error) {
	ctx, span := telemetry.StartReportSpan(ctx, "export", req.Type,
		telemetry.SpanAttrExportFormat.String(string(format)),
	)
	defer span.End()

	if s.exporter == nil {
		err := shared.NewDomainError(shared.CodeUnsupportedFormat, "report export is not configured")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !format.IsValid() {
		_, err := report.ParseFormat(string(format))
		telemetry.RecordError(span, err)
		return nil, err
	}

	result, err := s.GetReport(ctx, caller, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	artifact, err := s.exporter.Render(ctx, result.Payload, format)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logFailure(ctx, "Failed to render report", caller, req, err)
		return nil, err
	}

	s.logger.Info("Report exported",
		zap.String("key", result.Key),
		zap.String("format", string(format)),
		zap.Int("bytes", len(artifact.Data)),
	)
	return &ExportResult{Result: result, Artifact: artifact}, nil
}

// Invalidate bumps the schema version of a report type so every cached entry
// of that type becomes unreachable. Administrators only.
func (s *ReportService) Invalidate(ctx context.Context, caller identity.Caller, reportType report.ReportType) (string, error) {
	if !caller.IsAdministrator() {
		return "", shared.PermissionDeniedf("only administrators may invalidate reports")
	}
	if !reportType.IsValid() {
		return "", shared.InvalidParameterf("unknown report type %q", reportType)
	}

	version, err := s.versions.Bump(ctx, reportType)
	if err != nil {
		return "", shared.WrapDomainError(shared.CodeComputeError, "failed to bump schema version", err)
	}

	s.logger.Info("Report cache invalidated",
		zap.String("report_type", reportType.String()),
		zap.String("version", version),
		zap.String("user_id", caller.UserID.String()),
	)
	return version, nil
}

// WarmOrchard recomputes the unbounded orchard report as the system caller
// and stores it, replacing any cached entry.
func (s *ReportService) WarmOrchard(ctx context.Context, orchardID uuid.UUID) error {
	_, err := s.GetReport(ctx, identity.SystemCaller(), Request{
		Type:         report.ReportTypeOrchard,
		ID:           orchardID,
		ForceRefresh: true,
	})
	return err
}

// requestParams builds the canonical key parameters for a request
func requestParams(req Request) (report.Params, error) {
	if !req.Type.IsValid() {
		return report.Params{}, shared.InvalidParameterf("unknown report type %q", req.Type)
	}
	if req.ID == uuid.Nil {
		return report.Params{}, shared.InvalidParameterf("%s id is required", req.Type)
	}
	if !req.DateRange.IsZero() && req.Type != report.ReportTypeOrchard {
		return report.Params{}, shared.InvalidParameterf("date range is only supported for orchard reports")
	}
	if !req.DateRange.Validate() {
		return report.Params{}, shared.InvalidParameterf("date range start is after its end")
	}

	values := map[string]any{
		req.Type.String() + "_id": req.ID,
	}
	if req.DateRange.From != nil {
		values["from"] = *req.DateRange.From
	}
	if req.DateRange.To != nil {
		values["to"] = *req.DateRange.To
	}
	return report.NewParams(values)
}

func (s *ReportService) logFailure(ctx context.Context, msg string, caller identity.Caller, req Request, err error) {
	fields := []zap.Field{
		zap.String("report_type", req.Type.String()),
		zap.String("scope_id", req.ID.String()),
		zap.String("user_id", caller.UserID.String()),
		zap.Error(err),
	}
	log := logger.For(ctx, s.logger)
	if shared.IsClientError(err) {
		log.Debug(msg, fields...)
		return
	}
	log.Error(msg, fields...)
}
