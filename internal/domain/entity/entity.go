// Package entity defines the typed rows loaded into the warehouse.
package entity

import "time"

// Trip is one ride of the monthly trip archive.
type Trip struct {
	RideID           *string    `gorm:"column:ride_id" csv:"ride_id"`
	RideableType     *string    `gorm:"column:rideable_type" csv:"rideable_type"`
	StartedAt        *time.Time `gorm:"column:started_at" csv:"started_at"`
	EndedAt          *time.Time `gorm:"column:ended_at" csv:"ended_at"`
	StartStationName *string    `gorm:"column:start_station_name" csv:"start_station_name"`
	StartStationID   *string    `gorm:"column:start_station_id" csv:"start_station_id"`
	EndStationName   *string    `gorm:"column:end_station_name" csv:"end_station_name"`
	EndStationID     *string    `gorm:"column:end_station_id" csv:"end_station_id"`
	StartLat         *float64   `gorm:"column:start_lat" csv:"start_lat"`
	StartLng         *float64   `gorm:"column:start_lng" csv:"start_lng"`
	EndLat           *float64   `gorm:"column:end_lat" csv:"end_lat"`
	EndLng           *float64   `gorm:"column:end_lng" csv:"end_lng"`
	MemberCasual     *string    `gorm:"column:member_casual" csv:"member_casual"`
}

// TableName specifies the default table name for Trip.
func (Trip) TableName() string {
	return "trips"
}

// TripColumns is the expected column set of the trip archive, in load order.
var TripColumns = []string{
	"ride_id",
	"rideable_type",
	"started_at",
	"ended_at",
	"start_station_name",
	"start_station_id",
	"end_station_name",
	"end_station_id",
	"start_lat",
	"start_lng",
	"end_lat",
	"end_lng",
	"member_casual",
}

// Weather is one hourly observation.
type Weather struct {
	Datetime        *time.Time `gorm:"column:datetime" csv:"datetime"`
	TemperatureF    *float64   `gorm:"column:temperature_f" csv:"temperature_f"`
	PrecipitationMM *float64   `gorm:"column:precipitation_mm" csv:"precipitation_mm"`
	CloudCoverPct   *float64   `gorm:"column:cloud_cover_pct" csv:"cloud_cover_pct"`
	Conditions      string     `gorm:"column:conditions" csv:"conditions"`
}

// TableName specifies the default table name for Weather.
func (Weather) TableName() string {
	return "weather"
}

// WeatherColumns is the column set of the weather table.
var WeatherColumns = []string{
	"datetime",
	"temperature_f",
	"precipitation_mm",
	"cloud_cover_pct",
	"conditions",
}

// Dataset names a warehouse table the pipeline loads.
type Dataset string

const (
	DatasetTrips   Dataset = "trips"
	DatasetWeather Dataset = "weather"
)
