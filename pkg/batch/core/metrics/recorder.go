package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
)

// MetricRecorder is an abstract interface for recording metrics related to batch execution.
//
// It keeps the job and steps independent of the metrics backend (Prometheus in production, a
// no-op in tests).
type MetricRecorder interface {
	// RecordJobStart records the start of a JobExecution.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)

	// RecordJobEnd records the end of a JobExecution, including its final status.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)

	// RecordStepStart records the start of a StepExecution.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)

	// RecordStepEnd records the end of a StepExecution.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordRows records rows affected in a dataset.
	//
	// dataset: "trips" or "weather".
	// op: "staged", "deleted" or "loaded".
	RecordRows(ctx context.Context, dataset, op string, n int64)

	// RecordDuration records the execution time of a specific operation.
	//
	// name: The name of the duration to record (e.g., "archive_download", "weather_query").
	// tags: Additional attributes to associate with the duration.
	//       Example: `{"source": "open-meteo", "status": "success"}`
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
