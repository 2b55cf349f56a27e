package telemetry

import (
	"context"

	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of report spans
const TracerName = "orchard-reports"

// Span attribute keys for report spans
const (
	SpanAttrReportType   = attribute.Key("report.type")
	SpanAttrScopeID      = attribute.Key("report.scope_id")
	SpanAttrReportKey    = attribute.Key("report.key")
	SpanAttrExportFormat = attribute.Key("report.export_format")
	SpanAttrErrorCode    = attribute.Key("error.code")
)

// StartReportSpan starts an internal span named "report.<op>" tagged with the
// report type. The caller ends the span.
//
//	ctx, span := telemetry.StartReportSpan(ctx, "get", req.Type)
//	defer span.End()
func StartReportSpan(ctx context.Context, op string, reportType report.ReportType, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, SpanAttrReportType.String(reportType.String()))
	return otel.Tracer(TracerName).Start(ctx, "report."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// RecordError attaches err to the span with its domain error code. Only
// server-side failures mark the span as errored; a denied or malformed
// request is a normal outcome for the engine.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	if code := shared.ErrorCode(err); code != "" {
		span.SetAttributes(SpanAttrErrorCode.String(code))
	}
	if !shared.IsClientError(err) {
		span.SetStatus(codes.Error, err.Error())
	}
}
