package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()

	mp, err := NewMeterProvider(ctx, MetricsConfig{Enabled: false, ServiceName: "test"}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.Nil(t, mp.Handler())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestNewMeterProvider_NoneExporter(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), MetricsConfig{Enabled: true, Exporter: ExporterNone}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
}

func TestNewMeterProvider_UnknownExporter(t *testing.T) {
	_, err := NewMeterProvider(context.Background(), MetricsConfig{Enabled: true, Exporter: "carrier-pigeon"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestMeterProvider_PrometheusHandler(t *testing.T) {
	ctx := context.Background()
	prev := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	mp, err := NewMeterProvider(ctx, MetricsConfig{
		Enabled:     true,
		Exporter:    ExporterPrometheus,
		ServiceName: "orchard-reports-test",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	assert.True(t, mp.IsEnabled())
	require.NotNil(t, mp.Handler())

	metrics, err := NewReportMetricsFromProvider(mp)
	require.NoError(t, err)
	metrics.RecordLookup(ctx, "harvest", "hit")

	rec := httptest.NewRecorder()
	mp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "report_cache_lookups_total")
	assert.Contains(t, string(body), `cache_outcome="hit"`)
}
