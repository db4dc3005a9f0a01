package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tigerroll/citibike/internal/domain/entity"
	"github.com/tigerroll/citibike/internal/domain/period"
	"github.com/tigerroll/citibike/internal/loader"
	"github.com/tigerroll/citibike/internal/schema"
	port "github.com/tigerroll/citibike/pkg/batch/core/application/port"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// BackfillOptions select what a bulk load processes.
type BackfillOptions struct {
	From, To period.Period
	// SkipDownload reloads the files staged by earlier runs instead of fetching.
	SkipDownload bool
	TripsOnly    bool
	WeatherOnly  bool
}

// Validate checks the range and flag combination.
func (o BackfillOptions) Validate() error {
	if o.TripsOnly && o.WeatherOnly {
		return fmt.Errorf("cannot specify both --trips-only and --weather-only")
	}
	if o.To.Before(o.From) {
		return fmt.Errorf("backfill range is empty: %s is after %s", o.From, o.To)
	}
	return nil
}

// Backfill loads every month of the range. Trips are reloaded month by month;
// weather is replaced over the whole range in one delete and one append.
func (p *Pipeline) Backfill(ctx context.Context, opts BackfillOptions) (*Summary, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	r := period.Span(opts.From, opts.To)
	defs := []stepDef{{StateInit, p.initRangeStep(opts)}}
	if !opts.WeatherOnly {
		defs = append(defs, stepDef{StateBackfillTrips, p.backfillTripsStep(opts)})
	}
	if !opts.TripsOnly {
		if opts.SkipDownload {
			defs = append(defs, stepDef{StateReadStagedWeather, p.readStagedWeatherRangeStep(opts)})
		} else {
			defs = append(defs, stepDef{StateFetchWeather, p.fetchWeatherRangeStep(opts)})
		}
		defs = append(defs,
			stepDef{StateDeleteWeather, p.deleteWeatherRangeStep(r)},
			stepDef{StateLoadWeather, p.loadWeatherRangeStep(r)},
		)
	}
	defs = append(defs, stepDef{StateVerify, p.verifyStep(opts)})

	params := model.JobParameters{
		"from":          opts.From.String(),
		"to":            opts.To.String(),
		"skip_download": strconv.FormatBool(opts.SkipDownload),
		"trips_only":    strconv.FormatBool(opts.TripsOnly),
		"weather_only":  strconv.FormatBool(opts.WeatherOnly),
	}
	return p.launch(ctx, BackfillJobName, opts.From, params, defs)
}

func (p *Pipeline) initRangeStep(opts BackfillOptions) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		months := period.Range(opts.From, opts.To)
		logger.Infof("Backfill range: %s to %s (%d months)", opts.From, opts.To, len(months))
		jobContext(se).Put(keyPeriod, opts.From)
		return model.ExitStatusCompleted, nil
	})
}

// fetchFailure reports whether err only affects the month being fetched.
func fetchFailure(err error) bool {
	switch exception.KindOf(err) {
	case exception.KindUnavailable, exception.KindSchemaInvalid, exception.KindTransientFetch:
		return true
	}
	return false
}

func (p *Pipeline) backfillTripsStep(opts BackfillOptions) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		months := period.Range(opts.From, opts.To)
		if opts.SkipDownload {
			staged, err := p.deps.Stager.StagedTrips()
			if err != nil {
				return model.ExitStatusFailed, err
			}
			months = intersect(months, staged)
			logger.Infof("Loading %d staged trip files", len(months))
		}

		var skipped []string
		var deleted, loaded int64
		for i, m := range months {
			if err := ctx.Err(); err != nil {
				return model.ExitStatusFailed, err
			}
			logger.Infof("[%d/%d] %s", i+1, len(months), m)

			t, err := p.tripsFor(ctx, m, opts.SkipDownload)
			if err != nil {
				if fetchFailure(err) {
					logger.Warnf("Skipping %s: %v", m, err)
					skipped = append(skipped, m.String())
					continue
				}
				return model.ExitStatusFailed, err
			}
			trips := loader.TripsFromTable(t)
			se.ReadCount += int64(len(trips))
			if p.deps.Archiver != nil {
				if _, err := p.deps.Archiver.ArchiveTrips(ctx, m, trips); err != nil {
					return model.ExitStatusFailed, err
				}
			}
			d, n, err := p.deps.Trips.Reload(ctx, m, trips)
			if err != nil {
				return model.ExitStatusFailed, err
			}
			deleted += d
			loaded += n
		}

		se.DeleteCount = deleted
		se.WriteCount = loaded
		jobContext(se).Put(keyTripsDeleted, deleted)
		jobContext(se).Put(keyTripsLoaded, loaded)
		jobContext(se).Put(keySkipped, skipped)
		if len(skipped) > 0 {
			logger.Warnf("Backfill skipped %d months: %v", len(skipped), skipped)
		}
		return model.ExitStatusCompleted, nil
	})
}

func (p *Pipeline) tripsFor(ctx context.Context, m period.Period, staged bool) (*schema.Table, error) {
	if !staged {
		return p.deps.Fetcher.Fetch(ctx, m)
	}
	t, err := p.deps.Stager.ReadTrips(m)
	if err != nil {
		return nil, exception.NewKindError(exception.KindUnavailable, module, fmt.Sprintf("no staged trip file for %s", m), err)
	}
	if res := schema.Validate(t, entity.TripColumns); !res.OK {
		return nil, res.Err()
	}
	return t, nil
}

func intersect(months, staged []period.Period) []period.Period {
	have := make(map[period.Period]bool, len(staged))
	for _, s := range staged {
		have[s] = true
	}
	out := months[:0:0]
	for _, m := range months {
		if have[m] {
			out = append(out, m)
		}
	}
	return out
}

func (p *Pipeline) fetchWeatherRangeStep(opts BackfillOptions) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		rows, err := p.deps.Weather.Query(ctx, period.Span(opts.From, opts.To))
		if err != nil {
			return model.ExitStatusFailed, err
		}
		path, err := p.deps.Stager.StageWeatherRange(opts.From, opts.To, rows)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		if p.deps.Archiver != nil {
			if _, err := p.deps.Archiver.ArchiveWeather(ctx, opts.From.Token()+"_"+opts.To.Token(), rows); err != nil {
				return model.ExitStatusFailed, err
			}
		}
		se.ReadCount = int64(len(rows))
		jobContext(se).Put(keyWeather, rows)
		jobContext(se).Put(keyWeatherPath, path)
		return model.ExitStatusCompleted, nil
	})
}

func (p *Pipeline) readStagedWeatherRangeStep(opts BackfillOptions) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		path := p.deps.Stager.WeatherRangePath(opts.From, opts.To)
		t, err := p.deps.Stager.ReadWeatherRange(opts.From, opts.To)
		if err != nil {
			return model.ExitStatusFailed, exception.NewKindError(exception.KindUnavailable, module,
				fmt.Sprintf("no staged weather file %s", path), err)
		}
		if res := schema.Validate(t, entity.WeatherColumns); !res.OK {
			return model.ExitStatusFailed, res.Err()
		}
		rows := loader.WeatherFromTable(t)
		se.ReadCount = int64(len(rows))
		jobContext(se).Put(keyWeather, rows)
		jobContext(se).Put(keyWeatherPath, path)
		logger.Infof("Read %d staged weather rows from %s", len(rows), path)
		return model.ExitStatusCompleted, nil
	})
}

func (p *Pipeline) deleteWeatherRangeStep(r period.DateRange) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		n, err := p.deps.WeatherLoader.DeleteForRange(ctx, r)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		se.DeleteCount = n
		jobContext(se).Put(keyWeatherDeleted, n)
		return model.ExitStatusCompleted, nil
	})
}

func (p *Pipeline) loadWeatherRangeStep(r period.DateRange) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		rows, err := get[[]entity.Weather](se, keyWeather)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		n, err := p.deps.WeatherLoader.LoadRange(ctx, r, rows)
		if err != nil {
			return model.ExitStatusFailed, err
		}
		se.WriteCount = n
		jobContext(se).Put(keyWeatherLoaded, n)
		jobContext(se).Remove(keyWeather)
		return model.ExitStatusCompleted, nil
	})
}

// verifyStep compares warehouse counts over the range with what was loaded.
// Rows of months skipped by the backfill are counted as well, so a surplus
// only produces a warning.
func (p *Pipeline) verifyStep(opts BackfillOptions) port.Tasklet {
	return taskletFunc(func(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
		r := period.Span(opts.From, opts.To)
		ec := jobContext(se)
		if !opts.WeatherOnly {
			loaded, _ := ec.GetInt64(keyTripsLoaded)
			n, err := p.deps.Trips.CountRange(ctx, r)
			if err != nil {
				return model.ExitStatusFailed, err
			}
			se.ReadCount += n
			logger.Infof("Verification - trips in %s: %d (loaded %d)", r, n, loaded)
			if n != loaded {
				logger.Warnf("Trip count %d differs from loaded rows %d", n, loaded)
			}
		}
		if !opts.TripsOnly {
			loaded, _ := ec.GetInt64(keyWeatherLoaded)
			n, err := p.deps.WeatherLoader.CountRange(ctx, r)
			if err != nil {
				return model.ExitStatusFailed, err
			}
			se.ReadCount += n
			logger.Infof("Verification - weather rows in %s: %d (loaded %d)", r, n, loaded)
			if n != loaded {
				logger.Warnf("Weather count %d differs from loaded rows %d", n, loaded)
			}
			if p.deps.Inspector != nil {
				lo, hi, err := p.deps.Inspector.Extent(ctx, p.deps.WeatherLoader.Table(), "datetime")
				if err != nil {
					return model.ExitStatusFailed, err
				}
				logger.Infof("Weather date range: %s to %s", lo, hi)
			}
		}
		return model.ExitStatusCompleted, nil
	})
}
