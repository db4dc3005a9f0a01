package loader

import (
	"github.com/tigerroll/citibike/internal/domain/entity"
	"github.com/tigerroll/citibike/internal/schema"
)

type rowReader struct {
	idx map[string]int
	row []string
}

func newRowReader(t *schema.Table) rowReader {
	idx := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		idx[c] = i
	}
	return rowReader{idx: idx}
}

func (r rowReader) cell(col string) string {
	i, ok := r.idx[col]
	if !ok || i >= len(r.row) {
		return ""
	}
	return r.row[i]
}

// TripsFromTable types a projected trip table. Columns absent from the table
// become null.
func TripsFromTable(t *schema.Table) []entity.Trip {
	r := newRowReader(t)
	trips := make([]entity.Trip, 0, t.Len())
	for _, row := range t.Rows {
		r.row = row
		trips = append(trips, entity.Trip{
			RideID:           String(r.cell("ride_id")),
			RideableType:     String(r.cell("rideable_type")),
			StartedAt:        Timestamp(r.cell("started_at")),
			EndedAt:          Timestamp(r.cell("ended_at")),
			StartStationName: String(r.cell("start_station_name")),
			StartStationID:   String(r.cell("start_station_id")),
			EndStationName:   String(r.cell("end_station_name")),
			EndStationID:     String(r.cell("end_station_id")),
			StartLat:         Float(r.cell("start_lat")),
			StartLng:         Float(r.cell("start_lng")),
			EndLat:           Float(r.cell("end_lat")),
			EndLng:           Float(r.cell("end_lng")),
			MemberCasual:     String(r.cell("member_casual")),
		})
	}
	return trips
}

// WeatherFromTable types a staged weather table.
func WeatherFromTable(t *schema.Table) []entity.Weather {
	r := newRowReader(t)
	rows := make([]entity.Weather, 0, t.Len())
	for _, row := range t.Rows {
		r.row = row
		w := entity.Weather{
			Datetime:        Timestamp(r.cell("datetime")),
			TemperatureF:    Float(r.cell("temperature_f")),
			PrecipitationMM: Float(r.cell("precipitation_mm")),
			CloudCoverPct:   Float(r.cell("cloud_cover_pct")),
		}
		if c := String(r.cell("conditions")); c != nil {
			w.Conditions = *c
		}
		rows = append(rows, w)
	}
	return rows
}
