package scheduler

import (
	"go.uber.org/fx"

	"github.com/tigerroll/citibike/internal/pipeline"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	infraMetrics "github.com/tigerroll/citibike/pkg/batch/infrastructure/metrics"
)

// Params are the dependencies of the scheduler.
type Params struct {
	fx.In
	Cfg      *config.Config
	Pipeline *pipeline.Pipeline
	Prom     *infraMetrics.PrometheusRecorder
	Options  pipeline.Options `optional:"true"`
}

// NewFromParams builds the Scheduler serving the Prometheus registry.
func NewFromParams(p Params) (*Scheduler, error) {
	return New(p.Cfg.Citibike.Schedule, p.Cfg.Location(), p.Pipeline, p.Options, p.Prom.Handler())
}

// Module provides the Scheduler.
var Module = fx.Options(
	fx.Provide(NewFromParams),
)
