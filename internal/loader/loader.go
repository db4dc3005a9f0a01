// Package loader implements the delete-then-append incremental load of one
// dataset into the warehouse.
//
// A load for a period first deletes every row whose date column falls inside
// the period and then appends the new rows. The two statements are not
// transactional: a failure between them leaves the period empty until the
// next successful run.
package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/citibike/internal/domain/entity"
	"github.com/tigerroll/citibike/internal/domain/period"
	"github.com/tigerroll/citibike/internal/warehouse"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// Loader loads rows of type T into one warehouse table.
type Loader[T any] struct {
	wh       warehouse.Warehouse
	dataset  entity.Dataset
	table    string
	column   string
	recorder metrics.MetricRecorder
}

// TripLoader loads trips, keyed by the date of ended_at.
type TripLoader = Loader[entity.Trip]

// WeatherLoader loads hourly weather, keyed by the date of datetime.
type WeatherLoader = Loader[entity.Weather]

// NewTripLoader creates the trips loader. An empty table defaults to "trips".
func NewTripLoader(wh warehouse.Warehouse, table string, recorder metrics.MetricRecorder) *TripLoader {
	if table == "" {
		table = entity.Trip{}.TableName()
	}
	return newLoader[entity.Trip](wh, entity.DatasetTrips, table, "ended_at", recorder)
}

// NewWeatherLoader creates the weather loader. An empty table defaults to "weather".
func NewWeatherLoader(wh warehouse.Warehouse, table string, recorder metrics.MetricRecorder) *WeatherLoader {
	if table == "" {
		table = entity.Weather{}.TableName()
	}
	return newLoader[entity.Weather](wh, entity.DatasetWeather, table, "datetime", recorder)
}

func newLoader[T any](wh warehouse.Warehouse, ds entity.Dataset, table, column string, recorder metrics.MetricRecorder) *Loader[T] {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Loader[T]{wh: wh, dataset: ds, table: table, column: column, recorder: recorder}
}

// Dataset returns the dataset this loader writes.
func (l *Loader[T]) Dataset() entity.Dataset { return l.dataset }

// Table returns the destination table.
func (l *Loader[T]) Table() string { return l.table }

// DeleteForPeriod removes every row dated within p.
func (l *Loader[T]) DeleteForPeriod(ctx context.Context, p period.Period) (int64, error) {
	return l.DeleteForRange(ctx, p.DateRange())
}

// DeleteForRange removes every row dated within r, inclusive of both ends.
func (l *Loader[T]) DeleteForRange(ctx context.Context, r period.DateRange) (int64, error) {
	start := time.Now()
	n, err := l.wh.Delete(ctx, warehouse.ForRange(l.table, l.column, r))
	if err != nil {
		return 0, err
	}
	l.recorder.RecordRows(ctx, string(l.dataset), "deleted", n)
	l.recorder.RecordDuration(ctx, "warehouse_delete", time.Since(start), map[string]string{"dataset": string(l.dataset)})
	logger.Infof("Deleted %d existing %s rows for %s", n, l.dataset, r)
	return n, nil
}

// LoadIncremental appends rows for p. It never deletes; call DeleteForPeriod first.
func (l *Loader[T]) LoadIncremental(ctx context.Context, p period.Period, rows []T) (int64, error) {
	return l.load(ctx, p.String(), rows)
}

// LoadRange appends rows covering r.
func (l *Loader[T]) LoadRange(ctx context.Context, r period.DateRange, rows []T) (int64, error) {
	return l.load(ctx, r.String(), rows)
}

func (l *Loader[T]) load(ctx context.Context, label string, rows []T) (int64, error) {
	if len(rows) == 0 {
		logger.Warnf("No %s rows to load for %s", l.dataset, label)
		return 0, nil
	}
	start := time.Now()
	n, err := l.wh.AppendRows(ctx, l.table, rows)
	if err != nil {
		return 0, err
	}
	if n != int64(len(rows)) {
		logger.Warnf("Appended %d %s rows for %s but %d were submitted", n, l.dataset, label, len(rows))
	}
	l.recorder.RecordRows(ctx, string(l.dataset), "loaded", n)
	l.recorder.RecordDuration(ctx, "warehouse_append", time.Since(start), map[string]string{"dataset": string(l.dataset)})
	logger.Infof("Loaded %d %s rows into %s for %s", n, l.dataset, l.table, label)
	return n, nil
}

// CountRange returns the number of rows dated within r.
func (l *Loader[T]) CountRange(ctx context.Context, r period.DateRange) (int64, error) {
	return l.wh.Count(ctx, warehouse.ForRange(l.table, l.column, r))
}

// Reload runs delete then append for p and returns both counts.
func (l *Loader[T]) Reload(ctx context.Context, p period.Period, rows []T) (deleted, loaded int64, err error) {
	if deleted, err = l.DeleteForPeriod(ctx, p); err != nil {
		return 0, 0, fmt.Errorf("delete %s for %s: %w", l.dataset, p, err)
	}
	if loaded, err = l.LoadIncremental(ctx, p, rows); err != nil {
		return deleted, 0, fmt.Errorf("load %s for %s: %w", l.dataset, p, err)
	}
	return deleted, loaded, nil
}
