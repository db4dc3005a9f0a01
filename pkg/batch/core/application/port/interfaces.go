// Package port defines the contracts between the batch engine and the
// components it runs: jobs, steps, tasklets and execution listeners.
package port

import (
	"context"

	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
)

// Job runs a sequence of steps for one JobExecution.
type Job interface {
	// JobName returns the logical job name.
	JobName() string
	// Run executes the job. The returned error is the first step failure, if any.
	Run(ctx context.Context, jobExecution *model.JobExecution) error
}

// JobRunner drives one JobExecution of a Job to a terminal status and persists it.
type JobRunner interface {
	Run(ctx context.Context, job Job, jobExecution *model.JobExecution) error
}

// Step is a single unit of work executed within a job.
type Step interface {
	// StepName returns the logical name of the step.
	StepName() string
	// Execute runs the step and records its outcome on stepExecution.
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
	// SetMetricRecorder sets the MetricRecorder.
	SetMetricRecorder(recorder metrics.MetricRecorder)
	// SetTracer sets the Tracer.
	SetTracer(tracer metrics.Tracer)
}

// Tasklet is the business logic of a tasklet-oriented step.
type Tasklet interface {
	// Execute performs the operation. Results that downstream steps need are
	// written to stepExecution.JobExecution.ExecutionContext.
	Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error)
	// Close releases resources held by the tasklet.
	Close(ctx context.Context) error
}

// StepExecutionListener is notified around each step execution.
type StepExecutionListener interface {
	// BeforeStep is called just before a step execution starts.
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	// AfterStep is called after a step execution completes (regardless of success or failure).
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// JobExecutionListener is notified around a job execution.
type JobExecutionListener interface {
	// BeforeJob is called just before a job execution starts.
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	// AfterJob is called after a job execution completes (regardless of success or failure).
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}
