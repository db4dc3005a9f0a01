package runner

import (
	"context"
	"time"

	port "github.com/tigerroll/citibike/pkg/batch/core/application/port"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/citibike/pkg/batch/core/domain/repository"
	logger "github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// SimpleJobRunner is an implementation of port.JobRunner that calls the Job's Run
// method synchronously and persists the execution before and after.
type SimpleJobRunner struct {
	jobRepository repository.JobRepository
}

// NewSimpleJobRunner creates an instance of SimpleJobRunner.
func NewSimpleJobRunner(repo repository.JobRepository) *SimpleJobRunner {
	return &SimpleJobRunner{jobRepository: repo}
}

// Run executes the job and returns its error.
func (r *SimpleJobRunner) Run(ctx context.Context, job port.Job, jobExecution *model.JobExecution) error {
	if jobExecution.Status == model.BatchStatusStarting {
		jobExecution.MarkAsStarted()
		if err := r.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
			logger.Errorf("JobRunner: Failed to update JobExecution (ID: %s) status to STARTED: %v", jobExecution.ID, err)
		}
	}

	err := job.Run(ctx, jobExecution)

	if err != nil && !jobExecution.Status.IsFinished() {
		jobExecution.MarkAsFailed(err)
	} else if err == nil && !jobExecution.Status.IsFinished() {
		jobExecution.MarkAsCompleted()
	}
	if jobExecution.EndTime == nil {
		now := time.Now()
		jobExecution.EndTime = &now
	}

	// The run outcome is not changed by a history failure. A cancelled job
	// context must not prevent the final state from being recorded.
	if updateErr := r.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); updateErr != nil {
		logger.Errorf("JobRunner: Failed to update final JobExecution (ID: %s) state: %v", jobExecution.ID, updateErr)
	}
	return err
}

var _ port.JobRunner = (*SimpleJobRunner)(nil)
