package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/citibike/internal/domain/period"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
)

func f(v float64) *float64 { return &v }

func TestConditionsThresholds(t *testing.T) {
	cases := []struct {
		in   *float64
		want string
	}{
		{f(10), Sunny},
		{f(25), Sunny},
		{f(26), PartlyCloudy},
		{f(75), PartlyCloudy},
		{f(76), Cloudy},
		{nil, Unknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Conditions(c.in))
	}
}

const januaryBody = `{
  "latitude": 40.71, "longitude": -74.0, "timezone": "America/New_York",
  "hourly": {
    "time": ["2025-01-01T00:00", "2025-01-01T01:00", "2025-01-01T02:00"],
    "temperature_2m": [33.1, 32.8, null],
    "precipitation": [0.0, 0.2, 0.0],
    "cloudcover": [10, 80, null]
  }
}`

func newClient(t *testing.T, endpoint string, res config.ResilienceConfig) *OpenMeteoClient {
	t.Helper()
	cfg := config.NewConfig().Citibike.Weather
	cfg.Endpoint = endpoint
	cfg.Timeout = 2 * time.Second
	return NewOpenMeteoClient(cfg, res, nil, nil)
}

func TestQueryZipsHourlySeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "40.7128", q.Get("latitude"))
		assert.Equal(t, "-74.006", q.Get("longitude"))
		assert.Equal(t, "2025-01-01", q.Get("start_date"))
		assert.Equal(t, "2025-01-31", q.Get("end_date"))
		assert.Equal(t, HourlyVariables, q.Get("hourly"))
		assert.Equal(t, "fahrenheit", q.Get("temperature_unit"))
		assert.Equal(t, "America/New_York", q.Get("timezone"))
		fmt.Fprint(w, januaryBody)
	}))
	defer srv.Close()

	rows, err := newClient(t, srv.URL, config.ResilienceConfig{}).Query(context.Background(), period.Period{Year: 2025, Month: 1}.DateRange())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC), *rows[1].Datetime)
	assert.InDelta(t, 32.8, *rows[1].TemperatureF, 1e-9)
	assert.InDelta(t, 0.2, *rows[1].PrecipitationMM, 1e-9)
	assert.Equal(t, Sunny, rows[0].Conditions)
	assert.Equal(t, Cloudy, rows[1].Conditions)
	assert.Nil(t, rows[2].TemperatureF)
	assert.Equal(t, Unknown, rows[2].Conditions)
}

func TestQueryNon200IsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL, config.ResilienceConfig{}).Query(context.Background(), period.Period{Year: 2025, Month: 1}.DateRange())
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindTransientFetch))
	assert.Contains(t, err.Error(), "HTTP 429")
}

func TestQueryRejectsMismatchedSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hourly":{"time":["2025-01-01T00:00"],"temperature_2m":[],"precipitation":[0],"cloudcover":[0]}}`)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL, config.ResilienceConfig{}).Query(context.Background(), period.Period{Year: 2025, Month: 1}.DateRange())
	assert.True(t, exception.IsKind(err, exception.KindSchemaInvalid))
}

func TestQueryTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, config.ResilienceConfig{})
	c.cfg.Timeout = 50 * time.Millisecond
	_, err := c.Query(context.Background(), period.Period{Year: 2025, Month: 1}.DateRange())
	assert.True(t, exception.IsKind(err, exception.KindTransientFetch))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, config.ResilienceConfig{BreakerFailureThreshold: 2, BreakerResetTimeout: time.Hour})
	r := period.Period{Year: 2025, Month: 1}.DateRange()
	for i := 0; i < 2; i++ {
		_, err := c.Query(context.Background(), r)
		require.Error(t, err)
	}
	_, err := c.Query(context.Background(), r)
	assert.ErrorContains(t, err, "circuit is open")
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
