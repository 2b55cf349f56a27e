package telemetry

import (
	"context"
	"time"

	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const reportMeterName = "orchard-reports/report"

// ReportMetrics records report cache lookups, computations and exports.
// It satisfies cache.Metrics.
type ReportMetrics struct {
	lookups         *Counter
	computeDuration *Histogram
	computeErrors   *Counter
	exports         *Counter
}

// NewReportMetrics registers the report instruments on meter
func NewReportMetrics(meter metric.Meter) (*ReportMetrics, error) {
	lookups, err := NewCounter(meter, "report_cache_lookups_total",
		"Report cache lookups by outcome (hit, miss, forced)", "{lookup}")
	if err != nil {
		return nil, err
	}
	computeDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "report_compute_duration_seconds",
		Description: "Time spent computing a report payload",
		Unit:        "s",
		Boundaries:  ComputeDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	computeErrors, err := NewCounter(meter, "report_compute_errors_total",
		"Report computations that failed", "{error}")
	if err != nil {
		return nil, err
	}
	exports, err := NewCounter(meter, "report_exports_total",
		"Rendered report exports by format and result", "{export}")
	if err != nil {
		return nil, err
	}
	return &ReportMetrics{
		lookups:         lookups,
		computeDuration: computeDuration,
		computeErrors:   computeErrors,
		exports:         exports,
	}, nil
}

// NewReportMetricsFromProvider is NewReportMetrics on the provider's report meter
func NewReportMetricsFromProvider(mp *MeterProvider) (*ReportMetrics, error) {
	return NewReportMetrics(mp.Meter(reportMeterName))
}

// RecordLookup counts one cache lookup
func (m *ReportMetrics) RecordLookup(ctx context.Context, reportType report.ReportType, outcome string) {
	m.lookups.Inc(ctx, AttrReportType.String(reportType.String()), AttrCacheOutcome.String(outcome))
}

// RecordCompute records one computation and, on failure, its error code
func (m *ReportMetrics) RecordCompute(ctx context.Context, reportType report.ReportType, duration time.Duration, err error) {
	typeAttr := AttrReportType.String(reportType.String())
	m.computeDuration.RecordDuration(ctx, duration, typeAttr, resultAttr(err))
	if err != nil {
		m.computeErrors.Inc(ctx, typeAttr, AttrErrorCode.String(errorCode(err)))
	}
}

// RecordExport counts one export attempt
func (m *ReportMetrics) RecordExport(ctx context.Context, format report.Format, err error) {
	m.exports.Inc(ctx, AttrExportFormat.String(string(format)), resultAttr(err))
}

func resultAttr(err error) attribute.KeyValue {
	if err != nil {
		return AttrResult.String("error")
	}
	return AttrResult.String("success")
}

func errorCode(err error) string {
	if code := shared.ErrorCode(err); code != "" {
		return code
	}
	return "UNKNOWN"
}
