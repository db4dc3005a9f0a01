package usecase

import (
	"context"
	"fmt"

	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/citibike/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// SimpleJobExplorer is a simple implementation of the JobExplorer interface.
// It queries batch metadata using a JobRepository.
type SimpleJobExplorer struct {
	jobRepository repository.JobRepository
}

// Verify that SimpleJobExplorer implements the JobExplorer interface.
var _ JobExplorer = (*SimpleJobExplorer)(nil)

// NewSimpleJobExplorer creates a new instance of SimpleJobExplorer.
func NewSimpleJobExplorer(jobRepository repository.JobRepository) *SimpleJobExplorer {
	return &SimpleJobExplorer{
		jobRepository: jobRepository,
	}
}

// GetJobExecution retrieves a JobExecution by its ID.
func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	jobExecution, err := e.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve JobExecution (ID: %s)", executionID), err, false, false)
	}
	logger.Debugf("Retrieved JobExecution (ID: %s) from JobRepository.", executionID)
	return jobExecution, nil
}

// GetRecentJobExecutions retrieves up to limit executions of jobName, newest first.
func (e *SimpleJobExplorer) GetRecentJobExecutions(ctx context.Context, jobName string, limit int) ([]*model.JobExecution, error) {
	executions, err := e.jobRepository.FindRecentJobExecutions(ctx, jobName, limit)
	if err != nil {
		return nil, exception.NewBatchError("job_explorer", fmt.Sprintf("Failed to retrieve JobExecutions of '%s'", jobName), err, false, false)
	}
	logger.Debugf("Retrieved %d JobExecutions of '%s'.", len(executions), jobName)
	return executions, nil
}

// GetLastJobExecution retrieves the newest execution of jobName.
func (e *SimpleJobExplorer) GetLastJobExecution(ctx context.Context, jobName string) (*model.JobExecution, error) {
	executions, err := e.GetRecentJobExecutions(ctx, jobName, 1)
	if err != nil {
		return nil, err
	}
	if len(executions) == 0 {
		logger.Warnf("No JobExecution of '%s' found.", jobName)
		return nil, nil
	}
	return executions[0], nil
}
