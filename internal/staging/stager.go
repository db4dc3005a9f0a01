// Package staging persists fetched tables to the local staging area and,
// optionally, archives typed copies of them as Parquet objects.
package staging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/jszwec/csvutil"

	"github.com/tigerroll/citibike/internal/domain/entity"
	"github.com/tigerroll/citibike/internal/domain/period"
	"github.com/tigerroll/citibike/internal/schema"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

const module = "staging"

var stagedTripFile = regexp.MustCompile(`^(\d{4})(\d{2})-citibike-tripdata\.csv$`)

// Stager writes staging files under a data directory. Files are never removed.
type Stager struct {
	dataDir string
}

func NewStager(dataDir string) *Stager {
	return &Stager{dataDir: dataDir}
}

// TripsPath returns {data_dir}/raw/{YYYYMM}-citibike-tripdata.csv.
func (s *Stager) TripsPath(p period.Period) string {
	return filepath.Join(s.dataDir, "raw", p.Token()+"-citibike-tripdata.csv")
}

// WeatherPath returns {data_dir}/weather_{YYYYMM}.csv.
func (s *Stager) WeatherPath(p period.Period) string {
	return filepath.Join(s.dataDir, "weather_"+p.Token()+".csv")
}

// WeatherRangePath returns {data_dir}/weather_{YYYYMM}_{YYYYMM}.csv for a multi-month range.
func (s *Stager) WeatherRangePath(from, to period.Period) string {
	if from == to {
		return s.WeatherPath(from)
	}
	return filepath.Join(s.dataDir, "weather_"+from.Token()+"_"+to.Token()+".csv")
}

// StageTrips writes the projected trip table and returns its path.
func (s *Stager) StageTrips(p period.Period, t *schema.Table) (string, error) {
	var buf bytes.Buffer
	if err := schema.WriteCSV(&buf, t); err != nil {
		return "", exception.NewKindError(exception.KindUnknown, module, "failed to encode trip table", err)
	}
	path := s.TripsPath(p)
	return path, writeFile(path, buf.Bytes())
}

// StageWeather writes the weather rows of one period.
func (s *Stager) StageWeather(p period.Period, rows []entity.Weather) (string, error) {
	return s.stageWeather(s.WeatherPath(p), rows)
}

// StageWeatherRange writes the weather rows of a range of periods.
func (s *Stager) StageWeatherRange(from, to period.Period, rows []entity.Weather) (string, error) {
	return s.stageWeather(s.WeatherRangePath(from, to), rows)
}

func (s *Stager) stageWeather(path string, rows []entity.Weather) (string, error) {
	var data []byte
	if len(rows) == 0 {
		header, err := csvutil.Header(entity.Weather{}, "csv")
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if err := schema.WriteCSV(&buf, &schema.Table{Columns: header}); err != nil {
			return "", err
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = csvutil.Marshal(rows)
		if err != nil {
			return "", exception.NewKindError(exception.KindUnknown, module, "failed to encode weather rows", err)
		}
	}
	return path, writeFile(path, data)
}

// ReadTrips reads a staged trip file back into a table.
func (s *Stager) ReadTrips(p period.Period) (*schema.Table, error) {
	return readTable(s.TripsPath(p))
}

// ReadWeather reads a staged weather file back into a table.
func (s *Stager) ReadWeather(p period.Period) (*schema.Table, error) {
	return readTable(s.WeatherPath(p))
}

// ReadWeatherRange reads the staged weather file of a range.
func (s *Stager) ReadWeatherRange(from, to period.Period) (*schema.Table, error) {
	return readTable(s.WeatherRangePath(from, to))
}

// StagedTrips lists the periods that have a staged trip file, oldest first.
func (s *Stager) StagedTrips() ([]period.Period, error) {
	dir := filepath.Join(s.dataDir, "raw")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, exception.NewKindError(exception.KindUnavailable, module, fmt.Sprintf("Data directory not found: %s", dir), err)
	}
	var out []period.Period
	for _, e := range entries {
		m := stagedTripFile.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		p, err := period.Parse(m[1] + "-" + m[2])
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, exception.NewKindError(exception.KindUnavailable, module, fmt.Sprintf("No CSV files found in %s", dir), nil)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func readTable(path string) (*schema.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, exception.NewKindError(exception.KindUnavailable, module, fmt.Sprintf("staged file %s is not readable", path), err)
	}
	defer f.Close()
	return schema.ReadCSV(f)
}

// writeFile replaces path atomically so a failed write never leaves a truncated file.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return exception.NewKindError(exception.KindUnknown, module, fmt.Sprintf("failed to create %s", dir), err)
	}
	tmp, err := os.CreateTemp(dir, ".stage-*")
	if err != nil {
		return exception.NewKindError(exception.KindUnknown, module, fmt.Sprintf("failed to create temp file in %s", dir), err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return exception.NewKindError(exception.KindUnknown, module, fmt.Sprintf("failed to write %s", path), err)
	}
	if err := tmp.Close(); err != nil {
		return exception.NewKindError(exception.KindUnknown, module, fmt.Sprintf("failed to write %s", path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return exception.NewKindError(exception.KindUnknown, module, fmt.Sprintf("failed to move staged file into %s", path), err)
	}
	logger.Debugf("Staged %d bytes to %s", len(data), path)
	return nil
}
