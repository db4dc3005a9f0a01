// Package weather fetches historical hourly weather for the pipeline's city
// from the Open-Meteo archive API.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tigerroll/citibike/internal/domain/entity"
	"github.com/tigerroll/citibike/internal/domain/period"
	"github.com/tigerroll/citibike/internal/source/archive"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

const module = "weather"

// DefaultTimeout bounds a single archive API call.
const DefaultTimeout = 60 * time.Second

// HourlyVariables are the hourly series requested from the API.
const HourlyVariables = "temperature_2m,precipitation,cloudcover"

const hourLayout = "2006-01-02T15:04"

// Source returns hourly weather rows covering a date range.
type Source interface {
	Query(ctx context.Context, r period.DateRange) ([]entity.Weather, error)
}

// archiveResponse is the subset of the Open-Meteo archive response in use.
// Series are parallel arrays indexed by hour.
type archiveResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Hourly    struct {
		Time          []string   `json:"time"`
		Temperature2M []*float64 `json:"temperature_2m"`
		Precipitation []*float64 `json:"precipitation"`
		CloudCover    []*float64 `json:"cloudcover"`
	} `json:"hourly"`
}

// OpenMeteoClient queries the Open-Meteo historical archive.
type OpenMeteoClient struct {
	cfg      config.WeatherConfig
	client   archive.HTTPClient
	breaker  *gobreaker.CircuitBreaker
	recorder metrics.MetricRecorder
}

// NewOpenMeteoClient creates a client. Zero-valued settings fall back to the defaults of config.NewConfig.
func NewOpenMeteoClient(cfg config.WeatherConfig, res config.ResilienceConfig, client archive.HTTPClient, recorder metrics.MetricRecorder) *OpenMeteoClient {
	def := config.NewConfig().Citibike.Weather
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Timezone == "" {
		cfg.Timezone = def.Timezone
	}
	if cfg.TemperatureUnit == "" {
		cfg.TemperatureUnit = def.TemperatureUnit
	}
	if cfg.Latitude == 0 && cfg.Longitude == 0 {
		cfg.Latitude, cfg.Longitude = def.Latitude, def.Longitude
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &OpenMeteoClient{
		cfg:      cfg,
		client:   client,
		breaker:  archive.NewBreaker("weather-api", res),
		recorder: recorder,
	}
}

// URL builds the archive request for r.
func (c *OpenMeteoClient) URL(r period.DateRange) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.cfg.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(c.cfg.Longitude, 'f', -1, 64))
	q.Set("start_date", r.Start.Format(period.DateLayout))
	q.Set("end_date", r.End.Format(period.DateLayout))
	q.Set("hourly", HourlyVariables)
	q.Set("temperature_unit", c.cfg.TemperatureUnit)
	q.Set("timezone", c.cfg.Timezone)
	return c.cfg.Endpoint + "?" + q.Encode()
}

// Query fetches and zips the hourly series for r. Hours are local to the
// configured timezone and returned as naive UTC values.
func (c *OpenMeteoClient) Query(ctx context.Context, r period.DateRange) ([]entity.Weather, error) {
	start := time.Now()
	logger.Infof("Fetching weather data for %s", r)

	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, c.URL(r))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, exception.NewKindError(exception.KindTransientFetch, module, "weather api circuit is open", err)
		}
		return nil, err
	}

	var resp archiveResponse
	if err := json.Unmarshal(body.([]byte), &resp); err != nil {
		return nil, exception.NewKindError(exception.KindTransientFetch, module, "failed to decode weather response", err)
	}
	rows, err := zipHourly(resp)
	if err != nil {
		return nil, err
	}
	c.recorder.RecordDuration(ctx, "weather_fetch", time.Since(start), nil)
	c.recorder.RecordRows(ctx, string(entity.DatasetWeather), "fetched", int64(len(rows)))
	logger.Infof("Fetched %d hourly weather records for %s", len(rows), r)
	return rows, nil
}

func (c *OpenMeteoClient) get(ctx context.Context, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, exception.NewKindError(exception.KindTransientFetch, module, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, exception.NewKindError(exception.KindTransientFetch, module, "weather api request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, exception.NewKindError(exception.KindTransientFetch, module,
			fmt.Sprintf("weather api returned HTTP %d: %s", resp.StatusCode, snippet), nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, exception.NewKindError(exception.KindTransientFetch, module, "failed to read weather response", err)
	}
	return body, nil
}

func zipHourly(resp archiveResponse) ([]entity.Weather, error) {
	h := resp.Hourly
	n := len(h.Time)
	if len(h.Temperature2M) != n || len(h.Precipitation) != n || len(h.CloudCover) != n {
		return nil, exception.NewKindError(exception.KindSchemaInvalid, module,
			fmt.Sprintf("hourly series lengths differ: time=%d temperature_2m=%d precipitation=%d cloudcover=%d",
				n, len(h.Temperature2M), len(h.Precipitation), len(h.CloudCover)), nil)
	}
	rows := make([]entity.Weather, 0, n)
	for i, ts := range h.Time {
		var at *time.Time
		if t, err := time.Parse(hourLayout, ts); err == nil {
			at = &t
		}
		rows = append(rows, entity.Weather{
			Datetime:        at,
			TemperatureF:    h.Temperature2M[i],
			PrecipitationMM: h.Precipitation[i],
			CloudCoverPct:   h.CloudCover[i],
			Conditions:      Conditions(h.CloudCover[i]),
		})
	}
	return rows, nil
}

var _ Source = (*OpenMeteoClient)(nil)
