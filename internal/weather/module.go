package weather

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
)

// Module provides the Open-Meteo client as the weather Source.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		func(cfg *config.Config, recorder metrics.MetricRecorder) *OpenMeteoClient {
			return NewOpenMeteoClient(cfg.Citibike.Weather, cfg.Citibike.Resilience, nil, recorder)
		},
		fx.As(new(Source)),
	)),
)
