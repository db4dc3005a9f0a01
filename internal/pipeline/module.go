package pipeline

import (
	"go.uber.org/fx"

	"github.com/tigerroll/citibike/internal/loader"
	"github.com/tigerroll/citibike/internal/source/archive"
	"github.com/tigerroll/citibike/internal/staging"
	"github.com/tigerroll/citibike/internal/transform"
	"github.com/tigerroll/citibike/internal/warehouse"
	"github.com/tigerroll/citibike/internal/weather"
	port "github.com/tigerroll/citibike/pkg/batch/core/application/port"
	"github.com/tigerroll/citibike/pkg/batch/core/application/usecase"
	repository "github.com/tigerroll/citibike/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
)

// Params are the injected dependencies of the Pipeline.
type Params struct {
	fx.In
	Prober         *archive.Prober
	Fetcher        *archive.Fetcher
	Stager         *staging.Stager
	Archiver       *staging.Archiver
	Trips          *loader.TripLoader
	WeatherLoader  *loader.WeatherLoader
	Weather        weather.Source
	Transform      transform.Tool
	Inspector      warehouse.Inspector
	Repository     repository.JobRepository
	Launcher       usecase.JobLauncher          `optional:"true"`
	JobListeners   []port.JobExecutionListener  `group:"job_listeners"`
	StepListeners  []port.StepExecutionListener `group:"step_listeners"`
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
}

// NewFromParams builds the Pipeline from injected dependencies.
func NewFromParams(p Params) *Pipeline {
	return New(Deps{
		Prober:         p.Prober,
		Fetcher:        p.Fetcher,
		Stager:         p.Stager,
		Archiver:       p.Archiver,
		Trips:          p.Trips,
		WeatherLoader:  p.WeatherLoader,
		Weather:        p.Weather,
		Transform:      p.Transform,
		Inspector:      p.Inspector,
		Repository:     p.Repository,
		Launcher:       p.Launcher,
		JobListeners:   p.JobListeners,
		StepListeners:  p.StepListeners,
		MetricRecorder: p.MetricRecorder,
		Tracer:         p.Tracer,
	})
}

// Module provides the Pipeline.
var Module = fx.Options(fx.Provide(NewFromParams))
