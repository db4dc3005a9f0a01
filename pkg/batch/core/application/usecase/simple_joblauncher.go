package usecase

import (
	"context"
	"fmt"

	port "github.com/tigerroll/citibike/pkg/batch/core/application/port"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/citibike/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// SimpleJobLauncher runs jobs synchronously through a JobRunner.
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository
	jobRunner     port.JobRunner
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a SimpleJobLauncher.
func NewSimpleJobLauncher(repo repository.JobRepository, runner port.JobRunner) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		jobRepository: repo,
		jobRunner:     runner,
	}
}

// Launch persists a new JobExecution and runs the job.
func (l *SimpleJobLauncher) Launch(ctx context.Context, job port.Job, jobParameters model.JobParameters) (*model.JobExecution, error) {
	const op = "SimpleJobLauncher.Launch"
	logger.Infof("Launching Job '%s'. Parameters: %s", job.JobName(), jobParameters.String())

	jobExecution := model.NewJobExecution(job.JobName(), jobParameters)
	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("Failed to persist JobExecution (ID: %s) initially: %v", jobExecution.ID, err)
		return jobExecution, exception.NewBatchError(op, fmt.Sprintf("Failed to save JobExecution for '%s'", job.JobName()), err, false, false)
	}
	logger.Debugf("Initially saved JobExecution (ID: %s) to JobRepository (Status: %s).", jobExecution.ID, jobExecution.Status)

	err := l.jobRunner.Run(ctx, job, jobExecution)
	return jobExecution, err
}
