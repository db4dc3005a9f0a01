package pipeline

import (
	"context"
	"fmt"

	"github.com/tigerroll/citibike/internal/domain/entity"
	"github.com/tigerroll/citibike/internal/domain/period"
	"github.com/tigerroll/citibike/internal/loader"
	"github.com/tigerroll/citibike/internal/schema"
	port "github.com/tigerroll/citibike/pkg/batch/core/application/port"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// taskletFunc adapts a function to port.Tasklet.
type taskletFunc func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error)

func (f taskletFunc) Execute(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
	return f(ctx, se)
}

func (f taskletFunc) Close(ctx context.Context) error { return nil }

var _ port.Tasklet = taskletFunc(nil)

func jobContext(se *model.StepExecution) model.ExecutionContext {
	return se.JobExecution.ExecutionContext
}

func get[T any](se *model.StepExecution, key string) (T, error) {
	var zero T
	v, ok := jobContext(se).Get(key)
	if !ok {
		return zero, exception.NewBatchErrorf(module, "step '%s' requires '%s' from an earlier step", se.StepName, key)
	}
	t, ok := v.(T)
	if !ok {
		return zero, exception.NewBatchErrorf(module, "execution context key '%s' holds %T", key, v)
	}
	return t, nil
}

func (p *Pipeline) initStep(target period.Period) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		first, last := target.Bounds()
		logger.Infof("Target period: %s (%s to %s)", target, first.Format(period.DateLayout), last.Format(period.DateLayout))
		jobContext(se).Put(keyPeriod, target)
		return model.ExitStatusCompleted, nil
	})
}

func (p *Pipeline) checkAvailabilityStep(target period.Period) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		ok, err := p.deps.Prober.Probe(ctx, target)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		if !ok {
			return model.ExitStatusFailed, exception.NewKindError(exception.KindUnavailable, module,
				fmt.Sprintf("No CitiBike data found for %s", target.Token()), nil)
		}
		logger.Infof("CitiBike data for %s is available", target)
		return model.ExitStatusCompleted, nil
	})
}

func (p *Pipeline) downloadStep(target period.Period) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		t, err := p.deps.Fetcher.Fetch(ctx, target)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		if err := p.archiveTrips(ctx, target, t); err != nil {
			return model.ExitStatusFailed, err
		}
		se.ReadCount = int64(t.Len())
		jobContext(se).Put(keyTripTable, t)
		jobContext(se).Put(keyTripsPath, p.deps.Stager.TripsPath(target))
		return model.ExitStatusCompleted, nil
	})
}

// archiveTrips writes the month's trips to the archive while the warehouse
// still holds the previous load.
func (p *Pipeline) archiveTrips(ctx context.Context, target period.Period, t *schema.Table) error {
	if p.deps.Archiver == nil {
		return nil
	}
	_, err := p.deps.Archiver.ArchiveTrips(ctx, target, loader.TripsFromTable(t))
	return err
}

// readStagedTripsStep replaces the download with the file staged by an earlier run.
func (p *Pipeline) readStagedTripsStep(target period.Period) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		t, err := p.deps.Stager.ReadTrips(target)
		if err != nil {
			return model.ExitStatusFailed, exception.NewKindError(exception.KindUnavailable, module,
				fmt.Sprintf("no staged trip file for %s", target), err)
		}
		if res := schema.Validate(t, entity.TripColumns); !res.OK {
			return model.ExitStatusFailed, res.Err()
		}
		if err := p.archiveTrips(ctx, target, t); err != nil {
			return model.ExitStatusFailed, err
		}
		se.ReadCount = int64(t.Len())
		jobContext(se).Put(keyTripTable, t)
		jobContext(se).Put(keyTripsPath, p.deps.Stager.TripsPath(target))
		logger.Infof("Read %d staged trips from %s", t.Len(), p.deps.Stager.TripsPath(target))
		return model.ExitStatusCompleted, nil
	})
}

func (p *Pipeline) deleteTripsStep(target period.Period) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		n, err := p.deps.Trips.DeleteForPeriod(ctx, target)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		se.DeleteCount = n
		jobContext(se).Put(keyTripsDeleted, n)
		return model.ExitStatusCompleted, nil
	})
}

func (p *Pipeline) loadTripsStep(target period.Period) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		t, err := get[*schema.Table](se, keyTripTable)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		trips := loader.TripsFromTable(t)
		se.ReadCount = int64(len(trips))
		n, err := p.deps.Trips.LoadIncremental(ctx, target, trips)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		se.WriteCount = n
		jobContext(se).Put(keyTripsLoaded, n)
		jobContext(se).Remove(keyTripTable)
		return model.ExitStatusCompleted, nil
	})
}

func (p *Pipeline) fetchWeatherStep(target period.Period) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		rows, err := p.deps.Weather.Query(ctx, target.DateRange())
		if err != nil {
			return model.ExitStatusFailed, err
		}
		path, err := p.deps.Stager.StageWeather(target, rows)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		if p.deps.Archiver != nil {
			if _, err := p.deps.Archiver.ArchiveWeather(ctx, target.Token(), rows); err != nil {
				return model.ExitStatusFailed, err
			}
		}
		se.ReadCount = int64(len(rows))
		jobContext(se).Put(keyWeather, rows)
		jobContext(se).Put(keyWeatherPath, path)
		return model.ExitStatusCompleted, nil
	})
}

func (p *Pipeline) readStagedWeatherStep(target period.Period) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		t, err := p.deps.Stager.ReadWeather(target)
		if err != nil {
			return model.ExitStatusFailed, exception.NewKindError(exception.KindUnavailable, module,
				fmt.Sprintf("no staged weather file for %s", target), err)
		}
		if res := schema.Validate(t, entity.WeatherColumns); !res.OK {
			return model.ExitStatusFailed, res.Err()
		}
		rows := loader.WeatherFromTable(t)
		se.ReadCount = int64(len(rows))
		jobContext(se).Put(keyWeather, rows)
		jobContext(se).Put(keyWeatherPath, p.deps.Stager.WeatherPath(target))
		return model.ExitStatusCompleted, nil
	})
}

func (p *Pipeline) deleteWeatherStep(target period.Period) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		n, err := p.deps.WeatherLoader.DeleteForPeriod(ctx, target)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		se.DeleteCount = n
		jobContext(se).Put(keyWeatherDeleted, n)
		return model.ExitStatusCompleted, nil
	})
}

func (p *Pipeline) loadWeatherStep(target period.Period) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		rows, err := get[[]entity.Weather](se, keyWeather)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		n, err := p.deps.WeatherLoader.LoadIncremental(ctx, target, rows)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		se.WriteCount = n
		jobContext(se).Put(keyWeatherLoaded, n)
		jobContext(se).Remove(keyWeather)
		return model.ExitStatusCompleted, nil
	})
}

func (p *Pipeline) runTransformStep(skip bool) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		if skip {
			logger.Infof("Skipping transform run")
			jobContext(se).Put(keyTransformSkipped, true)
			return model.ExitStatusNoOp, nil
		}
		res, err := p.deps.Transform.Run(ctx)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		jobContext(se).Put(keyTransformProject, res.Project)
		return model.ExitStatusCompleted, nil
	})
}
