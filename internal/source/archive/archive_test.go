package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/citibike/internal/domain/entity"
	"github.com/tigerroll/citibike/internal/domain/period"
	"github.com/tigerroll/citibike/internal/schema"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
)

var jan2025 = period.Period{Year: 2025, Month: 1}

const tripHeader = "ride_id,rideable_type,started_at,ended_at,start_station_name,start_station_id,end_station_name,end_station_id,start_lat,start_lng,end_lat,end_lng,member_casual"

func tripCSV(header string, ids ...string) string {
	var b strings.Builder
	b.WriteString(header + "\n")
	for _, id := range ids {
		b.WriteString(id + ",classic_bike,2025-01-01 08:00:00.000,2025-01-01 08:20:00.000,W 21 St,6140.05,Broadway,6173.08,40.74,-73.99,40.75,-73.98,member\n")
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

type recordingStager struct {
	calls int
	table *schema.Table
}

func (s *recordingStager) StageTrips(p period.Period, t *schema.Table) (string, error) {
	s.calls++
	s.table = t
	return "data/raw/" + p.Token() + "-citibike-tripdata.csv", nil
}

type archiveServer struct {
	mu       sync.Mutex
	requests []string
	handler  func(w http.ResponseWriter, r *http.Request)
}

func newArchiveServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *archiveServer) {
	as := &archiveServer{handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		as.mu.Lock()
		as.requests = append(as.requests, r.Method+" "+r.URL.Path)
		as.mu.Unlock()
		as.handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, as
}

func TestLocationsFor(t *testing.T) {
	for _, p := range period.Range(period.Period{Year: 2024, Month: 1}, period.Period{Year: 2025, Month: 12}) {
		locs := NewLocator("").LocationsFor(p)
		require.Len(t, locs, 2)
		for _, l := range locs {
			assert.Contains(t, l, p.Token())
		}
	}
	assert.Equal(t, []string{
		"https://s3.amazonaws.com/tripdata/202501-citibike-tripdata.csv.zip",
		"https://s3.amazonaws.com/tripdata/202501-citibike-tripdata.zip",
	}, NewLocator(DefaultBaseURL).LocationsFor(jan2025))
}

func TestProbeFallsBackToSecondCandidate(t *testing.T) {
	srv, as := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".csv.zip") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	prober := NewProber(NewHTTPSource(srv.Client(), config.ResilienceConfig{}), NewLocator(srv.URL), time.Second)

	ok, err := prober.Probe(context.Background(), jan2025)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{
		"HEAD /202501-citibike-tripdata.csv.zip",
		"HEAD /202501-citibike-tripdata.zip",
	}, as.requests)
}

func TestProbeReturnsFalseWhenAllCandidatesMissing(t *testing.T) {
	srv, _ := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	prober := NewProber(NewHTTPSource(srv.Client(), config.ResilienceConfig{}), NewLocator(srv.URL), time.Second)

	ok, err := prober.Probe(context.Background(), jan2025)
	require.NoError(t, err)
	assert.False(t, ok)
}

type flakySource struct {
	calls int
}

func (s *flakySource) Probe(ctx context.Context, url string) (bool, error) {
	s.calls++
	if s.calls == 1 {
		return false, errors.New("dial tcp: connection refused")
	}
	return true, nil
}

func (s *flakySource) Download(ctx context.Context, url string) ([]byte, error) {
	return nil, ErrNotFound
}

func TestProbeTreatsNetworkErrorAsTryNext(t *testing.T) {
	src := &flakySource{}
	ok, err := NewProber(src, NewLocator(""), time.Second).Probe(context.Background(), jan2025)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, src.calls)
}

func TestProbeTimeoutMovesToNextCandidate(t *testing.T) {
	srv, _ := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".csv.zip") {
			time.Sleep(200 * time.Millisecond)
		}
		w.WriteHeader(http.StatusOK)
	})
	prober := NewProber(NewHTTPSource(srv.Client(), config.ResilienceConfig{}), NewLocator(srv.URL), 50*time.Millisecond)
	ok, err := prober.Probe(context.Background(), jan2025)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFetchConcatenatesChunksInSortedOrder(t *testing.T) {
	chunk1 := tripCSV(tripHeader, "A1", "A2", "A3")
	chunk2 := tripCSV(tripHeader+",extra_col", "B1,x", "B2,y")
	archive := zipOf(t, map[string]string{
		"202501-citibike-tripdata_2.csv": chunk2,
		"202501-citibike-tripdata_1.csv": chunk1,
		"README.txt":                     "not a table",
	})
	srv, as := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".csv.zip") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(archive)
	})
	stager := &recordingStager{}
	fetcher := NewFetcher(NewHTTPSource(srv.Client(), config.ResilienceConfig{}), NewLocator(srv.URL), stager, time.Second, nil)

	table, err := fetcher.Fetch(context.Background(), jan2025)
	require.Error(t, err, "chunks with different column sets are rejected")
	assert.Nil(t, table)
	assert.Equal(t, 0, stager.calls)

	chunk2 = tripCSV(tripHeader, "B1", "B2")
	archive = zipOf(t, map[string]string{
		"202501-citibike-tripdata_2.csv": chunk2,
		"202501-citibike-tripdata_1.csv": chunk1,
	})
	as.requests = nil

	table, err = fetcher.Fetch(context.Background(), jan2025)
	require.NoError(t, err)
	assert.Equal(t, 5, table.Len())
	assert.Equal(t, entity.TripColumns, table.Columns)
	var ids []string
	for _, row := range table.Rows {
		ids = append(ids, row[0])
	}
	assert.Equal(t, []string{"A1", "A2", "A3", "B1", "B2"}, ids)
	assert.Equal(t, 1, stager.calls)
	assert.Same(t, table, stager.table)
	assert.Equal(t, []string{
		"GET /202501-citibike-tripdata.csv.zip",
		"GET /202501-citibike-tripdata.zip",
	}, as.requests)
}

func TestFetchProjectsExtraColumns(t *testing.T) {
	archive := zipOf(t, map[string]string{
		"202501-citibike-tripdata.csv": tripCSV("extra_col,"+tripHeader, "x,A1"),
	})
	srv, _ := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	})
	fetcher := NewFetcher(NewHTTPSource(srv.Client(), config.ResilienceConfig{}), NewLocator(srv.URL), &recordingStager{}, time.Second, nil)

	table, err := fetcher.Fetch(context.Background(), jan2025)
	require.NoError(t, err)
	assert.Equal(t, entity.TripColumns, table.Columns)
	assert.Equal(t, "A1", table.Rows[0][0])
}

func TestFetchMissingColumnFailsBeforeStaging(t *testing.T) {
	header := strings.Replace(tripHeader, ",end_lat", "", 1)
	body := header + "\nA1,classic_bike,2025-01-01 08:00:00,2025-01-01 08:20:00,W 21 St,6140.05,Broadway,6173.08,40.74,-73.99,-73.98,member\n"
	archive := zipOf(t, map[string]string{"202501-citibike-tripdata.csv": body})
	srv, _ := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	})
	stager := &recordingStager{}
	fetcher := NewFetcher(NewHTTPSource(srv.Client(), config.ResilienceConfig{}), NewLocator(srv.URL), stager, time.Second, nil)

	_, err := fetcher.Fetch(context.Background(), jan2025)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindSchemaInvalid))
	assert.Contains(t, err.Error(), "end_lat")
	assert.Equal(t, 0, stager.calls)
}

func TestFetchFailsImmediatelyOnServerError(t *testing.T) {
	srv, as := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	fetcher := NewFetcher(NewHTTPSource(srv.Client(), config.ResilienceConfig{}), NewLocator(srv.URL), &recordingStager{}, time.Second, nil)

	_, err := fetcher.Fetch(context.Background(), jan2025)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindTransientFetch))
	assert.Len(t, as.requests, 1, "remaining candidates are not tried")
}

func TestFetchUnavailableNamesPeriod(t *testing.T) {
	srv, _ := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	fetcher := NewFetcher(NewHTTPSource(srv.Client(), config.ResilienceConfig{}), NewLocator(srv.URL), &recordingStager{}, time.Second, nil)

	_, err := fetcher.Fetch(context.Background(), jan2025)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindUnavailable))
	assert.Contains(t, err.Error(), "202501")
}

func TestExtractRejectsArchiveWithoutCSV(t *testing.T) {
	_, err := ExtractCSV(zipOf(t, map[string]string{"notes.txt": "x"}))
	assert.ErrorContains(t, err, "no CSV file found in zip archive")

	_, err = ExtractCSV([]byte("not a zip"))
	assert.True(t, exception.IsKind(err, exception.KindSchemaInvalid))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv, as := newArchiveServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	src := NewHTTPSource(srv.Client(), config.ResilienceConfig{BreakerFailureThreshold: 2, BreakerResetTimeout: time.Minute})
	for i := 0; i < 2; i++ {
		_, err := src.Download(context.Background(), srv.URL+"/x.zip")
		require.Error(t, err)
	}
	_, err := src.Download(context.Background(), srv.URL+"/x.zip")
	assert.True(t, exception.IsKind(err, exception.KindTransientFetch))
	assert.Contains(t, err.Error(), "circuit is open")
	assert.Len(t, as.requests, 2)
}
