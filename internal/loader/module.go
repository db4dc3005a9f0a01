package loader

import (
	"go.uber.org/fx"

	"github.com/tigerroll/citibike/internal/warehouse"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
)

type params struct {
	fx.In
	Cfg       *config.Config
	Warehouse warehouse.Warehouse
	Recorder  metrics.MetricRecorder
}

// Module provides the trips and weather loaders.
var Module = fx.Options(
	fx.Provide(
		func(p params) *TripLoader {
			return NewTripLoader(p.Warehouse, p.Cfg.Citibike.Warehouse.TripsTable, p.Recorder)
		},
		func(p params) *WeatherLoader {
			return NewWeatherLoader(p.Warehouse, p.Cfg.Citibike.Warehouse.WeatherTable, p.Recorder)
		},
	),
)
