// Package usecase provides the entry points used by commands: launching a job and
// querying the run history.
package usecase

import (
	"context"

	port "github.com/tigerroll/citibike/pkg/batch/core/application/port"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
)

// JobLauncher creates a JobExecution for a job and runs it to completion.
type JobLauncher interface {
	// Launch returns the finished JobExecution together with the job's error.
	Launch(ctx context.Context, job port.Job, params model.JobParameters) (*model.JobExecution, error)
}

// JobExplorer is an interface for querying recorded executions.
type JobExplorer interface {
	// GetJobExecution retrieves a JobExecution by its ID.
	GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error)

	// GetRecentJobExecutions retrieves up to limit executions of jobName, newest first.
	GetRecentJobExecutions(ctx context.Context, jobName string, limit int) ([]*model.JobExecution, error)

	// GetLastJobExecution retrieves the newest execution of jobName, or nil when there is none.
	GetLastJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error)
}
