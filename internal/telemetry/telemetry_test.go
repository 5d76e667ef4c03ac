package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/dwsmith1983/queuegate/pkg/types"
)

func TestSetup_NilConfigIsNoop(t *testing.T) {
	p, err := Setup(context.Background(), nil, "", false)
	require.NoError(t, err)
	assert.IsType(t, noop.MeterProvider{}, p.MeterProvider)
	assert.IsType(t, tracenoop.TracerProvider{}, p.TracerProvider)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetup_NoneExporters(t *testing.T) {
	p, err := Setup(context.Background(), &types.TelemetryConfig{
		MetricExporter: types.ExporterNone,
		TraceExporter:  types.ExporterNone,
	}, "1.0.0", false)
	require.NoError(t, err)
	assert.IsType(t, noop.MeterProvider{}, p.MeterProvider)
}

func TestSetup_OTLPMetrics(t *testing.T) {
	// The gRPC exporter connects lazily, so no collector is needed.
	p, err := Setup(context.Background(), &types.TelemetryConfig{
		MetricExporter: types.ExporterOTLPGRPC,
		Endpoint:       "localhost:4317",
		Insecure:       true,
	}, "1.0.0", false)
	require.NoError(t, err)
	_, ok := p.MeterProvider.(*sdkmetric.MeterProvider)
	assert.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = p.Shutdown(ctx)
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), &types.TelemetryConfig{MetricExporter: "statsd"}, "", false)
	assert.ErrorContains(t, err, "unknown metric exporter")

	_, err = Setup(context.Background(), &types.TelemetryConfig{TraceExporter: "zipkin"}, "", false)
	assert.ErrorContains(t, err, "unknown trace exporter")
}

func TestNewResource_ServiceName(t *testing.T) {
	res, err := newResource(&types.TelemetryConfig{}, "2.0")
	require.NoError(t, err)

	v, ok := res.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "queuegate", v.AsString())

	res, err = newResource(&types.TelemetryConfig{ServiceName: "gate-prod"}, "")
	require.NoError(t, err)
	v, _ = res.Set().Value("service.name")
	assert.Equal(t, "gate-prod", v.AsString())
}
