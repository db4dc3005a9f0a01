package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/citibike/internal/domain/entity"
	"github.com/tigerroll/citibike/internal/domain/period"
	"github.com/tigerroll/citibike/internal/loader"
	"github.com/tigerroll/citibike/internal/source/archive"
	"github.com/tigerroll/citibike/internal/staging"
	"github.com/tigerroll/citibike/internal/transform"
	"github.com/tigerroll/citibike/internal/warehouse"
	"github.com/tigerroll/citibike/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/citibike/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/citibike/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/citibike/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/citibike/pkg/batch/adapter/storage"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	"github.com/tigerroll/citibike/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/citibike/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
)

var jan2025 = period.Period{Year: 2025, Month: 1}

const tripHeader = "ride_id,rideable_type,started_at,ended_at,start_station_name,start_station_id,end_station_name,end_station_id,start_lat,start_lng,end_lat,end_lng,member_casual"

func tripCSV(header string, ids ...string) string {
	var b strings.Builder
	b.WriteString(header + "\n")
	for _, id := range ids {
		b.WriteString(id + ",classic_bike,2025-01-10 08:00:00.000,2025-01-10 08:20:00.000,W 21 St,6140.05,Broadway,6173.08,40.74,-73.99,40.75,-73.98,member\n")
	}
	return b.String()
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// archiveServer serves body for the ".zip" candidate and 404 for ".csv.zip".
func archiveServer(t *testing.T, body []byte) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".csv.zip") {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fakeWeather struct{ calls int }

func (f *fakeWeather) Query(ctx context.Context, r period.DateRange) ([]entity.Weather, error) {
	f.calls++
	var rows []entity.Weather
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		at := d.Add(12 * time.Hour)
		temp := 40.0
		rows = append(rows, entity.Weather{Datetime: &at, TemperatureF: &temp, Conditions: "Sunny"})
	}
	return rows, nil
}

type fakeTransform struct {
	calls int
	err   error
}

func (f *fakeTransform) Run(ctx context.Context) (*transform.Result, error) {
	f.calls++
	return &transform.Result{Project: "citibike"}, f.err
}

type staticResolver struct{ conn database.DBConnection }

func (r staticResolver) ResolveDBConnection(context.Context, string) (database.DBConnection, error) {
	return r.conn, nil
}

type countingWarehouse struct {
	warehouse.Warehouse
	calls int32
}

func (w *countingWarehouse) Delete(ctx context.Context, pred warehouse.Predicate) (int64, error) {
	atomic.AddInt32(&w.calls, 1)
	return w.Warehouse.Delete(ctx, pred)
}

func (w *countingWarehouse) AppendRows(ctx context.Context, table string, rows any) (int64, error) {
	atomic.AddInt32(&w.calls, 1)
	return w.Warehouse.AppendRows(ctx, table, rows)
}

type fixture struct {
	pipeline  *Pipeline
	stager    *staging.Stager
	wh        *countingWarehouse
	inspector warehouse.Inspector
	weather   *fakeWeather
	transform *fakeTransform
	resolver  staticResolver
}

func newFixture(t *testing.T, archiveURL string) *fixture {
	t.Helper()
	cfg := dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:"}
	gdb, err := gormadapter.Open(cfg, "SILENT")
	require.NoError(t, err)
	conn, err := gormadapter.NewGormDBAdapter(gdb, cfg, "warehouse")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	resolver := staticResolver{conn}
	require.NoError(t, warehouse.EnsureSchema(context.Background(), resolver, "warehouse"))

	gw := warehouse.NewGormWarehouse(resolver, "warehouse", 0)
	wh := &countingWarehouse{Warehouse: gw}
	stager := staging.NewStager(t.TempDir())
	source := archive.NewHTTPSource(nil, config.ResilienceConfig{})
	locator := archive.NewLocator(archiveURL)
	f := &fixture{
		stager:    stager,
		wh:        wh,
		inspector: gw,
		weather:   &fakeWeather{},
		transform: &fakeTransform{},
		resolver:  resolver,
	}
	f.pipeline = New(Deps{
		Prober:        archive.NewProber(source, locator, time.Second),
		Fetcher:       archive.NewFetcher(source, locator, stager, time.Second, nil),
		Stager:        stager,
		Trips:         loader.NewTripLoader(wh, "", nil),
		WeatherLoader: loader.NewWeatherLoader(wh, "", nil),
		Weather:       f.weather,
		Transform:     f.transform,
		Inspector:     gw,
		Repository:    sqlrepo.NewSQLJobRepository(resolver, "warehouse"),
	})
	return f
}

func twoChunkArchive(t *testing.T) []byte {
	return zipOf(t, map[string]string{
		"202501-citibike-tripdata_2.csv": tripCSV(tripHeader, "B1", "B2"),
		"202501-citibike-tripdata_1.csv": tripCSV(tripHeader, "A1", "A2", "A3"),
	})
}

func TestMonthlyRunEndToEnd(t *testing.T) {
	srv := archiveServer(t, twoChunkArchive(t))
	f := newFixture(t, srv.URL)
	ctx := context.Background()

	summary, err := f.pipeline.Run(ctx, jan2025, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), summary.TripsLoaded)
	assert.Equal(t, int64(31), summary.WeatherLoaded)
	assert.Zero(t, summary.TripsDeleted)
	assert.False(t, summary.TransformSkipped)
	assert.Equal(t, 1, f.transform.calls)

	staged, err := f.stager.ReadTrips(jan2025)
	require.NoError(t, err)
	assert.Equal(t, entity.TripColumns, staged.Columns)
	var ids []string
	for _, row := range staged.Rows {
		ids = append(ids, row[0])
	}
	assert.Equal(t, []string{"A1", "A2", "A3", "B1", "B2"}, ids)
	_, err = os.Stat(f.stager.WeatherPath(jan2025))
	assert.NoError(t, err)

	// A second run replaces the period instead of duplicating it.
	summary, err = f.pipeline.Run(ctx, jan2025, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), summary.TripsDeleted)
	assert.Equal(t, int64(31), summary.WeatherDeleted)
	n, err := f.wh.Count(ctx, warehouse.ForPeriod("trips", "ended_at", jan2025))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	var steps []string
	for _, se := range summary.Execution.StepExecutions {
		steps = append(steps, se.StepName)
	}
	var want []string
	for _, s := range MonthlyStates {
		want = append(want, string(s))
	}
	assert.Equal(t, want, steps)

	history, err := sqlrepo.NewSQLJobRepository(f.resolver, "warehouse").FindRecentJobExecutions(ctx, MonthlyJobName, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.BatchStatusCompleted, history[0].Status)
	assert.Equal(t, "2025-01", history[0].Parameters["period"])
}

type unreachableStorage struct{}

func (unreachableStorage) ResolveStorageConnection(context.Context, string) (storage.StorageConnection, error) {
	return nil, errors.New("gcs unreachable")
}

func TestArchiveFailureKeepsLoadedMonth(t *testing.T) {
	f := newFixture(t, archiveServer(t, twoChunkArchive(t)).URL)
	ctx := context.Background()
	_, err := f.pipeline.Run(ctx, jan2025, Options{SkipTransform: true})
	require.NoError(t, err)

	archiver, err := staging.NewArchiver(config.StagingConfig{ArchiveEnabled: true, StorageRef: "archive"}, unreachableStorage{})
	require.NoError(t, err)
	f.pipeline.deps.Archiver = archiver

	_, err = f.pipeline.Run(ctx, jan2025, Options{SkipTransform: true})
	require.Error(t, err)
	assert.ErrorContains(t, err, "gcs unreachable")
	assert.Equal(t, string(StateDownload), FailedStep(err))

	n, err := f.wh.Count(ctx, warehouse.ForPeriod("trips", "ended_at", jan2025))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestMissingColumnStopsBeforeTheWarehouse(t *testing.T) {
	header := strings.Replace(tripHeader, ",end_lat", "", 1)
	body := zipOf(t, map[string]string{"202501-citibike-tripdata.csv": "" +
		header + "\nA1,classic_bike,2025-01-10 08:00:00,2025-01-10 08:20:00,W 21 St,6140.05,Broadway,6173.08,40.74,-73.99,-73.98,member\n"})
	f := newFixture(t, archiveServer(t, body).URL)

	_, err := f.pipeline.Run(context.Background(), jan2025, Options{})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindSchemaInvalid))
	assert.Equal(t, string(StateDownload), FailedStep(err))
	assert.True(t, strings.HasPrefix(err.Error(), "Pipeline failed for period 2025-01 at step Download: "), err.Error())
	assert.Contains(t, err.Error(), "end_lat")

	_, statErr := os.Stat(f.stager.TripsPath(jan2025))
	assert.True(t, os.IsNotExist(statErr), "nothing is staged")
	assert.Zero(t, atomic.LoadInt32(&f.wh.calls), "warehouse is never called")
	assert.Zero(t, f.weather.calls)
}

func TestUnavailablePeriodFailsAtCheckAvailability(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	f := newFixture(t, srv.URL)

	_, err := f.pipeline.Run(context.Background(), jan2025, Options{})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindUnavailable))
	assert.Equal(t, string(StateCheckAvailability), FailedStep(err))
	assert.Contains(t, err.Error(), "No CitiBike data found for 202501")
	assert.Zero(t, atomic.LoadInt32(&f.wh.calls))
}

func TestSkipTransform(t *testing.T) {
	f := newFixture(t, archiveServer(t, twoChunkArchive(t)).URL)

	summary, err := f.pipeline.Run(context.Background(), jan2025, Options{SkipTransform: true})
	require.NoError(t, err)
	assert.True(t, summary.TransformSkipped)
	assert.Zero(t, f.transform.calls)
	last := summary.Execution.StepExecutions[len(summary.Execution.StepExecutions)-1]
	assert.Equal(t, string(StateRunTransform), last.StepName)
	assert.Equal(t, model.ExitStatusNoOp, last.ExitStatus)
}

func TestTransformFailureIsReportedAtRunTransform(t *testing.T) {
	f := newFixture(t, archiveServer(t, twoChunkArchive(t)).URL)
	f.transform.err = exception.NewKindError(exception.KindTransformFailed, "transform", "dbt test failed", errors.New("exit status 1"))

	summary, err := f.pipeline.Run(context.Background(), jan2025, Options{})
	require.Error(t, err)
	assert.Equal(t, string(StateRunTransform), FailedStep(err))
	assert.True(t, exception.IsKind(err, exception.KindTransformFailed))
	assert.Equal(t, int64(5), summary.TripsLoaded, "loads before the transform are kept")
}

func TestRunForReferenceTargetsPreviousMonth(t *testing.T) {
	f := newFixture(t, archiveServer(t, twoChunkArchive(t)).URL)
	summary, err := f.pipeline.RunForReference(context.Background(), time.Date(2025, 2, 10, 6, 0, 0, 0, time.UTC), Options{SkipTransform: true})
	require.NoError(t, err)
	assert.Equal(t, jan2025, summary.Period)
}

func TestReloadUsesStagedFiles(t *testing.T) {
	srv := archiveServer(t, twoChunkArchive(t))
	f := newFixture(t, srv.URL)
	ctx := context.Background()
	_, err := f.pipeline.Run(ctx, jan2025, Options{SkipTransform: true})
	require.NoError(t, err)
	srv.Close()

	summary, err := f.pipeline.Reload(ctx, jan2025, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), summary.TripsDeleted)
	assert.Equal(t, int64(5), summary.TripsLoaded)
	assert.Equal(t, int64(31), summary.WeatherLoaded)

	_, err = f.pipeline.Reload(ctx, period.Period{Year: 2024, Month: 6}, "trips")
	require.Error(t, err)
	assert.Equal(t, string(StateReadStagedTrips), FailedStep(err))

	_, err = f.pipeline.Reload(ctx, jan2025, "stations")
	assert.ErrorContains(t, err, "unknown dataset")
}

func TestBackfillSkipsUnavailableMonths(t *testing.T) {
	body := twoChunkArchive(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "202501-citibike-tripdata.zip") {
			_, _ = w.Write(body)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	f := newFixture(t, srv.URL)

	opts := BackfillOptions{From: period.Period{Year: 2024, Month: 12}, To: period.Period{Year: 2025, Month: 2}}
	summary, err := f.pipeline.Backfill(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(5), summary.TripsLoaded)
	assert.Equal(t, []string{"2024-12", "2025-02"}, summary.Skipped)
	assert.Equal(t, int64(31+31+28), summary.WeatherLoaded)
	assert.Equal(t, 1, f.weather.calls, "weather is fetched once for the whole range")

	_, err = os.Stat(f.stager.WeatherRangePath(opts.From, opts.To))
	assert.NoError(t, err)

	// Reloading from the staged files gives the same counts.
	opts.SkipDownload = true
	summary, err = f.pipeline.Backfill(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(5), summary.TripsLoaded)
	assert.Equal(t, int64(5), summary.TripsDeleted)
	assert.Equal(t, int64(90), summary.WeatherDeleted)
	assert.Equal(t, 1, f.weather.calls)
}

func TestBackfillOptionsValidate(t *testing.T) {
	assert.Error(t, BackfillOptions{From: jan2025, To: jan2025, TripsOnly: true, WeatherOnly: true}.Validate())
	assert.Error(t, BackfillOptions{From: jan2025, To: period.Period{Year: 2024, Month: 12}}.Validate())
	assert.NoError(t, BackfillOptions{From: jan2025, To: jan2025, SkipDownload: true, TripsOnly: true}.Validate())
}

func TestInMemoryHistory(t *testing.T) {
	f := newFixture(t, archiveServer(t, twoChunkArchive(t)).URL)
	repo := inmemory.NewInMemoryJobRepository()
	f.pipeline = New(Deps{
		Prober:        f.pipeline.deps.Prober,
		Fetcher:       f.pipeline.deps.Fetcher,
		Stager:        f.stager,
		Trips:         f.pipeline.deps.Trips,
		WeatherLoader: f.pipeline.deps.WeatherLoader,
		Weather:       f.weather,
		Transform:     f.transform,
		Repository:    repo,
	})
	summary, err := f.pipeline.Run(context.Background(), jan2025, Options{SkipTransform: true})
	require.NoError(t, err)
	stored, err := repo.FindJobExecutionByID(context.Background(), summary.Execution.ID)
	require.NoError(t, err)
	assert.Len(t, stored.StepExecutions, len(MonthlyStates))
}
