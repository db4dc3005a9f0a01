package staging

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/citibike/internal/domain/entity"
	"github.com/tigerroll/citibike/internal/domain/period"
	storage "github.com/tigerroll/citibike/pkg/batch/adapter/storage"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

type tripRecord struct {
	RideID           *string  `parquet:"name=ride_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	RideableType     *string  `parquet:"name=rideable_type, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	StartedAt        *int64   `parquet:"name=started_at, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
	EndedAt          *int64   `parquet:"name=ended_at, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
	StartStationName *string  `parquet:"name=start_station_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	StartStationID   *string  `parquet:"name=start_station_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	EndStationName   *string  `parquet:"name=end_station_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	EndStationID     *string  `parquet:"name=end_station_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	StartLat         *float64 `parquet:"name=start_lat, type=DOUBLE, repetitiontype=OPTIONAL"`
	StartLng         *float64 `parquet:"name=start_lng, type=DOUBLE, repetitiontype=OPTIONAL"`
	EndLat           *float64 `parquet:"name=end_lat, type=DOUBLE, repetitiontype=OPTIONAL"`
	EndLng           *float64 `parquet:"name=end_lng, type=DOUBLE, repetitiontype=OPTIONAL"`
	MemberCasual     *string  `parquet:"name=member_casual, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

type weatherRecord struct {
	Datetime        *int64   `parquet:"name=datetime, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL"`
	TemperatureF    *float64 `parquet:"name=temperature_f, type=DOUBLE, repetitiontype=OPTIONAL"`
	PrecipitationMM *float64 `parquet:"name=precipitation_mm, type=DOUBLE, repetitiontype=OPTIONAL"`
	CloudCoverPct   *float64 `parquet:"name=cloud_cover_pct, type=DOUBLE, repetitiontype=OPTIONAL"`
	Conditions      string   `parquet:"name=conditions, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func millis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

func toTripRecords(rows []entity.Trip) []interface{} {
	out := make([]interface{}, len(rows))
	for i, r := range rows {
		out[i] = &tripRecord{
			RideID: r.RideID, RideableType: r.RideableType,
			StartedAt: millis(r.StartedAt), EndedAt: millis(r.EndedAt),
			StartStationName: r.StartStationName, StartStationID: r.StartStationID,
			EndStationName: r.EndStationName, EndStationID: r.EndStationID,
			StartLat: r.StartLat, StartLng: r.StartLng, EndLat: r.EndLat, EndLng: r.EndLng,
			MemberCasual: r.MemberCasual,
		}
	}
	return out
}

func toWeatherRecords(rows []entity.Weather) []interface{} {
	out := make([]interface{}, len(rows))
	for i, r := range rows {
		out[i] = &weatherRecord{
			Datetime:        millis(r.Datetime),
			TemperatureF:    r.TemperatureF,
			PrecipitationMM: r.PrecipitationMM,
			CloudCoverPct:   r.CloudCoverPct,
			Conditions:      r.Conditions,
		}
	}
	return out
}

// Archiver uploads Parquet copies of loaded rows to a storage connection.
type Archiver struct {
	resolver    storage.StorageConnectionResolver
	storageRef  string
	prefix      string
	compression parquet.CompressionCodec
}

// NewArchiver returns nil when archiving is disabled.
func NewArchiver(cfg config.StagingConfig, resolver storage.StorageConnectionResolver) (*Archiver, error) {
	if !cfg.ArchiveEnabled {
		return nil, nil
	}
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, exception.NewKindError(exception.KindConfig, module, err.Error(), nil)
	}
	if cfg.StorageRef == "" {
		return nil, exception.NewKindError(exception.KindConfig, module, "staging.storage_ref is required when archiving is enabled", nil)
	}
	return &Archiver{resolver: resolver, storageRef: cfg.StorageRef, prefix: cfg.Prefix, compression: codec}, nil
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "", "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "UNCOMPRESSED":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported parquet compression '%s'", name)
	}
}

// ObjectName returns {prefix}/{dataset}/period={YYYYMM}/part-0.parquet.
func (a *Archiver) ObjectName(dataset entity.Dataset, key string) string {
	return path.Join(a.prefix, string(dataset), "period="+key, "part-0.parquet")
}

// ArchiveTrips uploads the trip rows of p and returns the object name.
func (a *Archiver) ArchiveTrips(ctx context.Context, p period.Period, rows []entity.Trip) (string, error) {
	return a.upload(ctx, entity.DatasetTrips, p.Token(), new(tripRecord), toTripRecords(rows))
}

// ArchiveWeather uploads the weather rows under key, a period token or a "from_to" token pair.
func (a *Archiver) ArchiveWeather(ctx context.Context, key string, rows []entity.Weather) (string, error) {
	return a.upload(ctx, entity.DatasetWeather, key, new(weatherRecord), toWeatherRecords(rows))
}

func (a *Archiver) upload(ctx context.Context, dataset entity.Dataset, key string, prototype interface{}, records []interface{}) (name string, err error) {
	conn, err := a.resolver.ResolveStorageConnection(ctx, a.storageRef)
	if err != nil {
		return "", exception.NewKindError(exception.KindUnknown, module, fmt.Sprintf("failed to resolve storage '%s'", a.storageRef), err)
	}

	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, prototype, 1)
	if err != nil {
		return "", exception.NewKindError(exception.KindUnknown, module, "failed to create parquet writer", err)
	}
	pw.CompressionType = a.compression
	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			return "", exception.NewKindError(exception.KindUnknown, module, fmt.Sprintf("failed to write %s record", dataset), err)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			err = exception.NewKindError(exception.KindUnknown, module, fmt.Sprintf("parquet writer panicked: %v", r), nil)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return "", exception.NewKindError(exception.KindUnknown, module, "failed to finalize parquet file", err)
	}

	name = a.ObjectName(dataset, key)
	if err := conn.Upload(ctx, "", name, buf, "application/vnd.apache.parquet"); err != nil {
		return "", exception.NewKindError(exception.KindUnknown, module, fmt.Sprintf("failed to upload %s", name), err)
	}
	logger.Infof("Archived %d %s rows to %s:%s", len(records), dataset, a.storageRef, name)
	return name, nil
}
