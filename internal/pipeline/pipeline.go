// Package pipeline assembles the monthly CitiBike job and its reload and
// backfill variants on top of the sequential batch runner.
//
// Every job is a fixed sequence of tasklet steps. Steps exchange results
// through the job's execution context, and the first failing step ends the
// run. Nothing is retried.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tigerroll/citibike/internal/domain/period"
	"github.com/tigerroll/citibike/internal/loader"
	"github.com/tigerroll/citibike/internal/schema"
	"github.com/tigerroll/citibike/internal/staging"
	"github.com/tigerroll/citibike/internal/transform"
	"github.com/tigerroll/citibike/internal/warehouse"
	"github.com/tigerroll/citibike/internal/weather"
	port "github.com/tigerroll/citibike/pkg/batch/core/application/port"
	"github.com/tigerroll/citibike/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/citibike/pkg/batch/core/domain/repository"
	"github.com/tigerroll/citibike/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
	"github.com/tigerroll/citibike/pkg/batch/engine/step/tasklet"
)

const module = "pipeline"

// Availability reports whether the archive for a period exists.
type Availability interface {
	Probe(ctx context.Context, p period.Period) (bool, error)
}

// TripFetcher downloads, validates and stages the archive for a period.
type TripFetcher interface {
	Fetch(ctx context.Context, p period.Period) (*schema.Table, error)
}

// Deps are the collaborators of every job. Archiver, Inspector and Launcher may
// be nil.
type Deps struct {
	Prober        Availability
	Fetcher       TripFetcher
	Stager        *staging.Stager
	Archiver      *staging.Archiver
	Trips         *loader.TripLoader
	WeatherLoader *loader.WeatherLoader
	Weather       weather.Source
	Transform     transform.Tool
	Inspector     warehouse.Inspector

	Repository     repository.JobRepository
	Launcher       usecase.JobLauncher
	JobListeners   []port.JobExecutionListener
	StepListeners  []port.StepExecutionListener
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
}

// Pipeline builds and launches jobs.
type Pipeline struct {
	deps     Deps
	launcher usecase.JobLauncher
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	if deps.MetricRecorder == nil {
		deps.MetricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if deps.Tracer == nil {
		deps.Tracer = metrics.NewNoOpTracer()
	}
	launcher := deps.Launcher
	if launcher == nil {
		launcher = usecase.NewSimpleJobLauncher(deps.Repository, runner.NewSimpleJobRunner(deps.Repository))
	}
	return &Pipeline{deps: deps, launcher: launcher}
}

// Options control a monthly run.
type Options struct {
	SkipTransform bool
}

// Summary reports the outcome of a job.
type Summary struct {
	Period           period.Period
	TripsDeleted     int64
	TripsLoaded      int64
	WeatherDeleted   int64
	WeatherLoaded    int64
	TransformSkipped bool
	// Skipped lists the months a backfill could not fetch.
	Skipped   []string
	Elapsed   time.Duration
	Execution *model.JobExecution
}

func summarize(target period.Period, je *model.JobExecution) *Summary {
	s := &Summary{Period: target, Execution: je}
	if je == nil {
		return s
	}
	ec := je.ExecutionContext
	s.TripsDeleted, _ = ec.GetInt64(keyTripsDeleted)
	s.TripsLoaded, _ = ec.GetInt64(keyTripsLoaded)
	s.WeatherDeleted, _ = ec.GetInt64(keyWeatherDeleted)
	s.WeatherLoaded, _ = ec.GetInt64(keyWeatherLoaded)
	s.TransformSkipped, _ = ec.GetBool(keyTransformSkipped)
	if v, ok := ec.Get(keySkipped); ok {
		s.Skipped, _ = v.([]string)
	}
	s.Elapsed = je.Duration()
	return s
}

// Failure is returned when a job stops at a step.
type Failure struct {
	Period period.Period
	Step   string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("Pipeline failed for period %s at step %s: %v", f.Period, f.Step, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// FailedStep returns the step a Failure names, or "" for other errors.
func FailedStep(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Step
	}
	return ""
}

type stepDef struct {
	state   State
	tasklet port.Tasklet
}

func (p *Pipeline) launch(ctx context.Context, jobName string, target period.Period, params model.JobParameters, defs []stepDef) (*Summary, error) {
	steps := make([]port.Step, 0, len(defs))
	for _, d := range defs {
		steps = append(steps, tasklet.NewTaskletStep(string(d.state), d.tasklet, p.deps.Repository, p.deps.StepListeners, p.deps.MetricRecorder, p.deps.Tracer))
	}
	job := runner.NewSimpleJob(jobName, steps, p.deps.JobListeners, p.deps.MetricRecorder, p.deps.Tracer)

	je, err := p.launcher.Launch(ctx, job, params)
	summary := summarize(target, je)
	if err != nil {
		step := string(StateInit)
		if je != nil && je.CurrentStepName != "" {
			step = je.CurrentStepName
		}
		return summary, &Failure{Period: target, Step: step, Err: err}
	}
	return summary, nil
}

// Run executes the monthly pipeline for target.
func (p *Pipeline) Run(ctx context.Context, target period.Period, opts Options) (*Summary, error) {
	params := model.JobParameters{
		"period":         target.String(),
		"skip_transform": strconv.FormatBool(opts.SkipTransform),
	}
	return p.launch(ctx, MonthlyJobName, target, params, []stepDef{
		{StateInit, p.initStep(target)},
		{StateCheckAvailability, p.checkAvailabilityStep(target)},
		{StateDownload, p.downloadStep(target)},
		{StateDeleteTrips, p.deleteTripsStep(target)},
		{StateLoadTrips, p.loadTripsStep(target)},
		{StateFetchWeather, p.fetchWeatherStep(target)},
		{StateDeleteWeather, p.deleteWeatherStep(target)},
		{StateLoadWeather, p.loadWeatherStep(target)},
		{StateRunTransform, p.runTransformStep(opts.SkipTransform)},
	})
}

// RunForReference runs the pipeline for the month before ref.
func (p *Pipeline) RunForReference(ctx context.Context, ref time.Time, opts Options) (*Summary, error) {
	return p.Run(ctx, period.PreviousPeriod(ref), opts)
}

// Reload loads the staged files of target without any network access. An
// empty dataset reloads both.
func (p *Pipeline) Reload(ctx context.Context, target period.Period, dataset string) (*Summary, error) {
	defs := []stepDef{{StateInit, p.initStep(target)}}
	switch dataset {
	case "", "trips", "weather":
	default:
		return nil, fmt.Errorf("unknown dataset '%s' (expected trips or weather)", dataset)
	}
	if dataset == "" || dataset == "trips" {
		defs = append(defs,
			stepDef{StateReadStagedTrips, p.readStagedTripsStep(target)},
			stepDef{StateDeleteTrips, p.deleteTripsStep(target)},
			stepDef{StateLoadTrips, p.loadTripsStep(target)},
		)
	}
	if dataset == "" || dataset == "weather" {
		defs = append(defs,
			stepDef{StateReadStagedWeather, p.readStagedWeatherStep(target)},
			stepDef{StateDeleteWeather, p.deleteWeatherStep(target)},
			stepDef{StateLoadWeather, p.loadWeatherStep(target)},
		)
	}
	params := model.JobParameters{"period": target.String(), "dataset": dataset}
	return p.launch(ctx, ReloadJobName, target, params, defs)
}
