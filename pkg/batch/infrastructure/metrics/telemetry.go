package metrics

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	logger "github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

const instrumentationName = "github.com/tigerroll/citibike"

// Telemetry owns the OTel providers. Without an OTLP endpoint both providers
// are built without exporters, so spans and measurements stay in process.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

// NewTelemetry builds the providers for cfg.
func NewTelemetry(ctx context.Context, cfg config.ObservabilityConfig, extra ...sdktrace.TracerProviderOption) (*Telemetry, error) {
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		spanExporter, err := newSpanExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		metricExporter, err := newMetricExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(spanExporter))
		meterOpts = append(meterOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
		logger.Infof("Telemetry: exporting traces and metrics to %s over %s.", cfg.OTLPEndpoint, protocolOf(cfg))
	}
	traceOpts = append(traceOpts, extra...)

	t := &Telemetry{
		TracerProvider: sdktrace.NewTracerProvider(traceOpts...),
		MeterProvider:  sdkmetric.NewMeterProvider(meterOpts...),
	}
	otel.SetTracerProvider(t.TracerProvider)
	otel.SetMeterProvider(t.MeterProvider)
	return t, nil
}

func protocolOf(cfg config.ObservabilityConfig) string {
	if cfg.OTLPProtocol == "" {
		return "http"
	}
	return cfg.OTLPProtocol
}

func newSpanExporter(ctx context.Context, cfg config.ObservabilityConfig) (sdktrace.SpanExporter, error) {
	switch protocolOf(cfg) {
	case "http":
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
	case "grpc":
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(cfg.OTLPEndpoint))
	default:
		return nil, fmt.Errorf("unsupported otlp_protocol %q", cfg.OTLPProtocol)
	}
}

func newMetricExporter(ctx context.Context, cfg config.ObservabilityConfig) (sdkmetric.Exporter, error) {
	switch protocolOf(cfg) {
	case "http":
		return otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(cfg.OTLPEndpoint))
	case "grpc":
		return otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpointURL(cfg.OTLPEndpoint))
	default:
		return nil, fmt.Errorf("unsupported otlp_protocol %q", cfg.OTLPProtocol)
	}
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var result *multierror.Error
	if err := t.TracerProvider.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("tracer provider: %w", err))
	}
	if err := t.MeterProvider.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("meter provider: %w", err))
	}
	return result.ErrorOrNil()
}
