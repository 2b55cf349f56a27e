package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewTracerProvider_Stdout(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tp, err := NewTracerProvider(context.Background(), Config{
		Enabled:       true,
		Exporter:      ExporterStdout,
		ServiceName:   "orchard-reports-test",
		SamplingRatio: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, tp.IsEnabled())
	assert.Same(t, tp.sdk, otel.GetTracerProvider())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewTracerProvider_UnknownExporter(t *testing.T) {
	_, err := NewTracerProvider(context.Background(), Config{Enabled: true, Exporter: "jaeger-thrift"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jaeger-thrift")
}

func TestRatioSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), ratioSampler(1).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), ratioSampler(2).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), ratioSampler(0).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.25).Description(), ratioSampler(0.25).Description())
}
