// Package logging provides listeners that log job and step progress.
package logging

import (
	"context"
	"strings"
	"time"

	port "github.com/tigerroll/citibike/pkg/batch/core/application/port"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

const rule = "----------------------------------------"

// --- Job Execution Listener ---

type LoggingJobListener struct{}

func NewLoggingJobListener() *LoggingJobListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("%s", strings.Repeat("=", 60))
	logger.Infof("Job '%s' starting. Parameters: %s", jobExecution.JobName, jobExecution.Parameters.String())
	logger.Infof("%s", strings.Repeat("=", 60))
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("%s", strings.Repeat("=", 60))
	logger.Infof("Job '%s' %s (ExitStatus: %s) in %s.", jobExecution.JobName, jobExecution.Status,
		jobExecution.ExitStatus, jobExecution.Duration().Round(time.Millisecond))
	for _, se := range jobExecution.StepExecutions {
		logger.Infof("  - %-18s %-9s read=%d written=%d deleted=%d", se.StepName, se.Status, se.ReadCount, se.WriteCount, se.DeleteCount)
	}
	if jobExecution.Status == model.BatchStatusFailed {
		logger.Errorf("Job '%s' failed at step '%s': %s", jobExecution.JobName, jobExecution.CurrentStepName, strings.Join(jobExecution.Failures, "; "))
	}
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

// --- Step Execution Listener ---

type LoggingStepListener struct{}

func NewLoggingStepListener() *LoggingStepListener {
	return &LoggingStepListener{}
}

// BeforeStep logs a banner numbered by the step's position in the job.
func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	n := 1
	if stepExecution.JobExecution != nil {
		n = len(stepExecution.JobExecution.StepExecutions)
	}
	logger.Infof("Step %d: %s", n, stepExecution.StepName)
	logger.Infof("%s", rule)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	if stepExecution.Status == model.BatchStatusFailed {
		logger.Errorf("Step %s failed after %s: %s", stepExecution.StepName,
			stepExecution.Duration().Round(time.Millisecond), strings.Join(stepExecution.Failures, "; "))
		return
	}
	logger.Infof("Step %s %s (ExitStatus: %s) in %s.", stepExecution.StepName, stepExecution.Status,
		stepExecution.ExitStatus, stepExecution.Duration().Round(time.Millisecond))
}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)
