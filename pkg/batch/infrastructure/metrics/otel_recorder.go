package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
	logger "github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// OpenTelemetryRecorder records the same measurements as PrometheusRecorder through an OTel Meter.
type OpenTelemetryRecorder struct {
	jobDuration  otelmetric.Float64Histogram
	stepDuration otelmetric.Float64Histogram
	rows         otelmetric.Int64Counter
	operation    otelmetric.Float64Histogram
}

// NewOpenTelemetryRecorder creates the instruments on meter.
func NewOpenTelemetryRecorder(meter otelmetric.Meter) (*OpenTelemetryRecorder, error) {
	jobDuration, err := meter.Float64Histogram("citibike.job.duration",
		otelmetric.WithDescription("Duration of pipeline job executions."), otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	stepDuration, err := meter.Float64Histogram("citibike.step.duration",
		otelmetric.WithDescription("Duration of pipeline step executions."), otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	rows, err := meter.Int64Counter("citibike.rows",
		otelmetric.WithDescription("Rows staged, deleted or loaded per dataset."))
	if err != nil {
		return nil, err
	}
	operation, err := meter.Float64Histogram("citibike.operation.duration",
		otelmetric.WithDescription("Duration of remote calls and warehouse operations."), otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &OpenTelemetryRecorder{jobDuration: jobDuration, stepDuration: stepDuration, rows: rows, operation: operation}, nil
}

func (r *OpenTelemetryRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {}

func (r *OpenTelemetryRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	if execution.EndTime == nil {
		return
	}
	r.jobDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), otelmetric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	))
}

func (r *OpenTelemetryRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
}

func (r *OpenTelemetryRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime == nil {
		return
	}
	r.stepDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), otelmetric.WithAttributes(
		attribute.String("job_name", jobNameOf(execution)),
		attribute.String("step_name", execution.StepName),
		attribute.String("status", execution.Status.String()),
	))
}

func (r *OpenTelemetryRecorder) RecordRows(ctx context.Context, dataset, op string, n int64) {
	if n <= 0 {
		return
	}
	r.rows.Add(ctx, n, otelmetric.WithAttributes(attribute.String("dataset", dataset), attribute.String("op", op)))
}

func (r *OpenTelemetryRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("name", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operation.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)

// CompositeRecorder fans every measurement out to several recorders.
type CompositeRecorder struct {
	recorders []metrics.MetricRecorder
}

// NewCompositeRecorder ignores nil entries.
func NewCompositeRecorder(recorders ...metrics.MetricRecorder) *CompositeRecorder {
	c := &CompositeRecorder{}
	for _, r := range recorders {
		if r != nil {
			c.recorders = append(c.recorders, r)
		}
	}
	logger.Debugf("Metrics: CompositeRecorder created with %d recorders.", len(c.recorders))
	return c
}

func (c *CompositeRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	for _, r := range c.recorders {
		r.RecordJobStart(ctx, execution)
	}
}

func (c *CompositeRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	for _, r := range c.recorders {
		r.RecordJobEnd(ctx, execution)
	}
}

func (c *CompositeRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	for _, r := range c.recorders {
		r.RecordStepStart(ctx, execution)
	}
}

func (c *CompositeRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	for _, r := range c.recorders {
		r.RecordStepEnd(ctx, execution)
	}
}

func (c *CompositeRecorder) RecordRows(ctx context.Context, dataset, op string, n int64) {
	for _, r := range c.recorders {
		r.RecordRows(ctx, dataset, op, n)
	}
}

func (c *CompositeRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	for _, r := range c.recorders {
		r.RecordDuration(ctx, name, duration, tags)
	}
}

var _ metrics.MetricRecorder = (*CompositeRecorder)(nil)
