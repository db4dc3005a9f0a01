package runner

import (
	"context"
	"time"

	port "github.com/tigerroll/citibike/pkg/batch/core/application/port"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
	exception "github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// SimpleJob runs its steps in order and stops at the first failure.
// There are no retries and no conditional transitions.
type SimpleJob struct {
	name           string
	steps          []port.Step
	jobListeners   []port.JobExecutionListener
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

var _ port.Job = (*SimpleJob)(nil)

// NewSimpleJob creates a SimpleJob. The recorder and tracer are also handed to every step.
func NewSimpleJob(
	name string,
	steps []port.Step,
	jobListeners []port.JobExecutionListener,
	metricRecorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) *SimpleJob {
	if metricRecorder == nil {
		metricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	for _, s := range steps {
		s.SetMetricRecorder(metricRecorder)
		s.SetTracer(tracer)
	}
	return &SimpleJob{
		name:           name,
		steps:          steps,
		jobListeners:   jobListeners,
		metricRecorder: metricRecorder,
		tracer:         tracer,
	}
}

// JobName returns the job name.
func (j *SimpleJob) JobName() string {
	return j.name
}

// Steps returns the names of the steps in execution order.
func (j *SimpleJob) Steps() []string {
	names := make([]string, len(j.steps))
	for i, s := range j.steps {
		names[i] = s.StepName()
	}
	return names
}

func (j *SimpleJob) notifyBeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}
}

func (j *SimpleJob) notifyAfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	for _, l := range j.jobListeners {
		l.AfterJob(ctx, jobExecution)
	}
}

// Run executes every step once. jobExecution.CurrentStepName names the step that
// was running when Run returned, which is the failing step on error.
func (j *SimpleJob) Run(ctx context.Context, jobExecution *model.JobExecution) (err error) {
	logger.Infof("Starting Job '%s' (Execution ID: %s).", j.name, jobExecution.ID)

	if jobExecution.Status == model.BatchStatusStarting {
		jobExecution.MarkAsStarted()
	}

	ctx, finishSpan := j.tracer.StartJobSpan(ctx, jobExecution)
	defer finishSpan()

	j.metricRecorder.RecordJobStart(ctx, jobExecution)
	j.notifyBeforeJob(ctx, jobExecution)

	defer func() {
		if err != nil {
			j.tracer.RecordError(ctx, j.name, err)
			jobExecution.MarkAsFailed(err)
		} else {
			jobExecution.MarkAsCompleted()
		}
		if jobExecution.EndTime == nil {
			now := time.Now()
			jobExecution.EndTime = &now
		}
		j.notifyAfterJob(ctx, jobExecution)
		j.metricRecorder.RecordJobEnd(ctx, jobExecution)
		logger.Infof("Job '%s' (Execution ID: %s) finished with status %s in %s.",
			j.name, jobExecution.ID, jobExecution.Status, jobExecution.Duration().Round(time.Millisecond))
	}()

	for _, step := range j.steps {
		jobExecution.CurrentStepName = step.StepName()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return exception.NewBatchError(j.name, "job interrupted before step '"+step.StepName()+"'", ctxErr, false, false)
		}

		stepExecution := model.NewStepExecution(jobExecution, step.StepName())
		if stepErr := step.Execute(ctx, jobExecution, stepExecution); stepErr != nil {
			logger.Errorf("Job '%s': step '%s' failed: %v", j.name, step.StepName(), stepErr)
			return stepErr
		}
		j.tracer.RecordEvent(ctx, "step.completed", map[string]interface{}{
			"step":        step.StepName(),
			"exit_status": string(stepExecution.ExitStatus),
		})
	}
	return nil
}
