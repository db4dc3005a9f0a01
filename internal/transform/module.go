package transform

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
)

// Module provides the dbt runner as the transform Tool.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		func(cfg *config.Config, recorder metrics.MetricRecorder) *DBTRunner {
			return NewDBTRunner(cfg.Citibike.Transform, nil, recorder)
		},
		fx.As(new(Tool)),
	)),
)
