package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/citibike/pkg/batch/core/application/port"
	"github.com/tigerroll/citibike/pkg/batch/core/application/usecase"
	"github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	"github.com/tigerroll/citibike/pkg/batch/core/job/runner"
	"github.com/tigerroll/citibike/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/citibike/pkg/batch/infrastructure/repository/inmemory"
)

type funcTasklet struct {
	calls  int
	closed bool
	fn     func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error)
}

func (t *funcTasklet) Execute(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
	t.calls++
	return t.fn(ctx, se)
}

func (t *funcTasklet) Close(ctx context.Context) error {
	t.closed = true
	return nil
}

type recordingListener struct {
	events []string
}

func (l *recordingListener) BeforeStep(ctx context.Context, se *model.StepExecution) {
	l.events = append(l.events, "before:"+se.StepName)
}
func (l *recordingListener) AfterStep(ctx context.Context, se *model.StepExecution) {
	l.events = append(l.events, "after:"+se.StepName+":"+string(se.Status))
}
func (l *recordingListener) BeforeJob(ctx context.Context, je *model.JobExecution) {
	l.events = append(l.events, "beforeJob")
}
func (l *recordingListener) AfterJob(ctx context.Context, je *model.JobExecution) {
	l.events = append(l.events, "afterJob:"+string(je.Status))
}

func ok(n int64) *funcTasklet {
	return &funcTasklet{fn: func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		se.WriteCount = n
		return model.ExitStatusCompleted, nil
	}}
}

func TestSimpleJobStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	listener := &recordingListener{}

	first := ok(10)
	failing := &funcTasklet{fn: func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		return model.ExitStatusFailed, errors.New("warehouse unavailable")
	}}
	never := ok(1)

	steps := []port.Step{
		tasklet.NewTaskletStep("DeleteTrips", first, repo, []port.StepExecutionListener{listener}, nil, nil),
		tasklet.NewTaskletStep("LoadTrips", failing, repo, []port.StepExecutionListener{listener}, nil, nil),
		tasklet.NewTaskletStep("FetchWeather", never, repo, nil, nil, nil),
	}
	job := runner.NewSimpleJob("monthlyPipeline", steps, []port.JobExecutionListener{listener}, nil, nil)
	assert.Equal(t, []string{"DeleteTrips", "LoadTrips", "FetchWeather"}, job.Steps())

	launcher := usecase.NewSimpleJobLauncher(repo, runner.NewSimpleJobRunner(repo))
	je, err := launcher.Launch(ctx, job, model.JobParameters{"period": "2025-01"})
	require.Error(t, err)
	assert.EqualError(t, err, "warehouse unavailable")

	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.Equal(t, "LoadTrips", je.CurrentStepName)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, failing.calls)
	assert.Zero(t, never.calls, "steps after a failure are not run")
	assert.True(t, failing.closed)
	assert.Equal(t, []string{
		"beforeJob",
		"before:DeleteTrips", "after:DeleteTrips:COMPLETED",
		"before:LoadTrips", "after:LoadTrips:FAILED",
		"afterJob:FAILED",
	}, listener.events)

	stored, err := repo.FindJobExecutionByID(ctx, je.ID)
	require.NoError(t, err)
	require.Len(t, stored.StepExecutions, 2)
	assert.Equal(t, int64(10), stored.StepExecutions[0].WriteCount)
	assert.Equal(t, model.FailureList{"warehouse unavailable"}, stored.StepExecutions[1].Failures)
}

func TestSimpleJobCompletes(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryJobRepository()
	steps := []port.Step{
		tasklet.NewTaskletStep("Init", ok(0), repo, nil, nil, nil),
		tasklet.NewTaskletStep("RunTransform", &funcTasklet{fn: func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
			return model.ExitStatusNoOp, nil
		}}, repo, nil, nil, nil),
	}
	job := runner.NewSimpleJob("monthlyPipeline", steps, nil, nil, nil)

	je, err := usecase.NewSimpleJobLauncher(repo, runner.NewSimpleJobRunner(repo)).Launch(ctx, job, model.NewJobParameters())
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, model.ExitStatusCompleted, je.ExitStatus)
	require.NotNil(t, je.EndTime)
	assert.Equal(t, model.ExitStatusNoOp, je.StepExecutions[1].ExitStatus)

	last, err := usecase.NewSimpleJobExplorer(repo).GetLastJobExecution(ctx, "monthlyPipeline")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, je.ID, last.ID)
}

func TestSimpleJobObservesCancellationBetweenSteps(t *testing.T) {
	repo := inmemory.NewInMemoryJobRepository()
	ctx, cancel := context.WithCancel(context.Background())

	first := &funcTasklet{fn: func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		cancel()
		return model.ExitStatusCompleted, nil
	}}
	second := ok(1)
	job := runner.NewSimpleJob("monthlyPipeline", []port.Step{
		tasklet.NewTaskletStep("CheckAvailability", first, repo, nil, nil, nil),
		tasklet.NewTaskletStep("Download", second, repo, nil, nil, nil),
	}, nil, nil, nil)

	je, err := usecase.NewSimpleJobLauncher(repo, runner.NewSimpleJobRunner(repo)).Launch(ctx, job, model.NewJobParameters())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "Download", je.CurrentStepName)
	assert.Zero(t, second.calls)

	stored, err := repo.FindJobExecutionByID(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, stored.Status, "final state is recorded despite cancellation")
}
