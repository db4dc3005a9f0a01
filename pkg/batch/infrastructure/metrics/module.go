package metrics

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
)

// NewTelemetryProvider builds Telemetry and shuts it down with the application.
func NewTelemetryProvider(lc fx.Lifecycle, cfg *config.Config) (*Telemetry, error) {
	t, err := NewTelemetry(context.Background(), cfg.Citibike.Observability)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: t.Shutdown})
	return t, nil
}

// NewMetricRecorderProvider combines Prometheus and OTel recording.
func NewMetricRecorderProvider(prom *PrometheusRecorder, t *Telemetry) (metrics.MetricRecorder, error) {
	otelRecorder, err := NewOpenTelemetryRecorder(t.MeterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, err
	}
	return NewCompositeRecorder(prom, otelRecorder), nil
}

// NewTracerProvider adapts the OTel tracer provider to metrics.Tracer.
func NewTracerProvider(t *Telemetry) metrics.Tracer {
	return NewOpenTelemetryTracer(t.TracerProvider)
}

// Module is an Fx module that provides the MetricRecorder, the Tracer and the
// PrometheusRecorder itself (for the scrape endpoint and Pushgateway).
var Module = fx.Options(
	fx.Provide(NewPrometheusRecorder),
	fx.Provide(NewTelemetryProvider),
	fx.Provide(NewMetricRecorderProvider),
	fx.Provide(NewTracerProvider),
)
