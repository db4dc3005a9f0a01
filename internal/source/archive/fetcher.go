package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tigerroll/citibike/internal/domain/entity"
	"github.com/tigerroll/citibike/internal/domain/period"
	"github.com/tigerroll/citibike/internal/schema"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// DefaultDownloadTimeout bounds each archive download.
const DefaultDownloadTimeout = 60 * time.Second

// TripStager persists a validated trip table for offline recovery.
type TripStager interface {
	StageTrips(p period.Period, t *schema.Table) (string, error)
}

// Fetcher downloads, validates and stages the trip archive of a period.
type Fetcher struct {
	source   ArchiveSource
	locator  Locator
	stager   TripStager
	timeout  time.Duration
	recorder metrics.MetricRecorder
}

func NewFetcher(source ArchiveSource, locator Locator, stager TripStager, timeout time.Duration, recorder metrics.MetricRecorder) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Fetcher{source: source, locator: locator, stager: stager, timeout: timeout, recorder: recorder}
}

// Fetch tries each candidate in order. A 404 moves on to the next candidate;
// any other failure is returned immediately. The first archive downloaded is
// extracted, validated, projected to the trip columns and staged. Nothing is
// staged when validation fails.
func (f *Fetcher) Fetch(ctx context.Context, p period.Period) (*schema.Table, error) {
	for _, url := range f.locator.LocationsFor(p) {
		logger.Infof("Attempting download from: %s", url)
		data, err := f.download(ctx, url)
		if errors.Is(err, ErrNotFound) {
			logger.Infof("Not found: %s", url)
			continue
		}
		if err != nil {
			return nil, err
		}

		table, err := ExtractCSV(data)
		if err != nil {
			return nil, err
		}
		if err := schema.Validate(table, entity.TripColumns).Err(); err != nil {
			return nil, exception.NewKindError(exception.KindSchemaInvalid, module,
				fmt.Sprintf("schema validation failed for %s", p), err)
		}
		table, err = schema.Project(table, entity.TripColumns)
		if err != nil {
			return nil, err
		}

		path, err := f.stager.StageTrips(p, table)
		if err != nil {
			return nil, err
		}
		f.recorder.RecordRows(ctx, string(entity.DatasetTrips), "staged", int64(table.Len()))
		logger.Infof("Saved %d rows to %s", table.Len(), path)
		return table, nil
	}
	return nil, exception.NewKindError(exception.KindUnavailable, module,
		fmt.Sprintf("No CitiBike data found for %s", p.Token()), nil)
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	start := time.Now()
	data, err := f.source.Download(ctx, url)
	status := "success"
	if err != nil {
		status = "error"
	}
	f.recorder.RecordDuration(ctx, "archive_download", time.Since(start), map[string]string{"status": status})
	return data, err
}
