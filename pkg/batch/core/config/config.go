// Package config provides the configuration structures for the pipeline and the
// loader that assembles them from embedded YAML, a .env file and the environment.
package config

import "time"

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelSilent LogLevel = "SILENT"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
	// SQLLevel controls gorm statement logging ("SILENT", "ERROR", "WARN", "INFO").
	SQLLevel string `yaml:"sql_level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is used to compute the reference date and by the scheduler.
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// PipelineConfig holds settings of the monthly trips pipeline.
type PipelineConfig struct {
	// DataDir is the root of the local staging area.
	DataDir string `yaml:"data_dir"`
	// ArchiveBaseURL is the prefix of the trip archive locations.
	ArchiveBaseURL  string        `yaml:"archive_base_url"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	SkipTransform   bool          `yaml:"skip_transform"`
}

// WeatherConfig holds settings for the weather archive API.
type WeatherConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Latitude        float64       `yaml:"latitude"`
	Longitude       float64       `yaml:"longitude"`
	Timezone        string        `yaml:"timezone"`
	TemperatureUnit string        `yaml:"temperature_unit"`
	Timeout         time.Duration `yaml:"timeout"`
}

// WarehouseConfig selects the warehouse connection and its tables.
type WarehouseConfig struct {
	// DBRef is the key of the connection under adapter.database.
	DBRef        string `yaml:"db_ref"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
	BatchSize    int    `yaml:"batch_size"`
	TripsTable   string `yaml:"trips_table"`
	WeatherTable string `yaml:"weather_table"`
}

// StagingConfig controls the optional Parquet archive of staged tables.
type StagingConfig struct {
	ArchiveEnabled bool `yaml:"archive_enabled"`
	// StorageRef is the key of the connection under adapter.storage.
	StorageRef  string `yaml:"storage_ref"`
	Prefix      string `yaml:"prefix"`
	Compression string `yaml:"compression"`
}

// TransformConfig describes the external transform tool invocation.
type TransformConfig struct {
	Command     string `yaml:"command"`
	ProjectDir  string `yaml:"project_dir"`
	ProfilesDir string `yaml:"profiles_dir"`
	Target      string `yaml:"target"`
}

// ScheduleConfig configures the in-process cron trigger.
type ScheduleConfig struct {
	Cron        string        `yaml:"cron"`
	Timeout     time.Duration `yaml:"timeout"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// BackfillConfig holds the default bulk range as "YYYY-MM" strings.
type BackfillConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// ObservabilityConfig holds tracing and metrics export settings.
type ObservabilityConfig struct {
	ServiceName string `yaml:"service_name"`
	// OTLPEndpoint enables trace and metric export when set (e.g. "http://collector:4318").
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	// OTLPProtocol is "http" or "grpc".
	OTLPProtocol   string `yaml:"otlp_protocol"`
	PushgatewayURL string `yaml:"pushgateway_url"`
}

// ResilienceConfig configures the circuit breakers around remote sources.
type ResilienceConfig struct {
	BreakerFailureThreshold int           `yaml:"breaker_failure_threshold"`
	BreakerResetTimeout     time.Duration `yaml:"breaker_reset_timeout"`
}

// AdapterConfig holds named connection definitions. Each entry is decoded by
// the provider of its "type".
type AdapterConfig struct {
	Database map[string]interface{} `yaml:"database"`
	Storage  map[string]interface{} `yaml:"storage"`
}

// CitibikeConfig holds everything under the "citibike" top-level key.
type CitibikeConfig struct {
	System        SystemConfig        `yaml:"system"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Weather       WeatherConfig       `yaml:"weather"`
	Warehouse     WarehouseConfig     `yaml:"warehouse"`
	Staging       StagingConfig       `yaml:"staging"`
	Transform     TransformConfig     `yaml:"transform"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Backfill      BackfillConfig      `yaml:"backfill"`
	Observability ObservabilityConfig `yaml:"observability"`
	Resilience    ResilienceConfig    `yaml:"resilience"`
	Adapter       AdapterConfig       `yaml:"adapter"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Citibike CitibikeConfig `yaml:"citibike"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Citibike: CitibikeConfig{
			System: SystemConfig{
				Timezone: "America/New_York",
				Logging:  LoggingConfig{Level: "INFO", SQLLevel: string(LogLevelSilent)},
			},
			Pipeline: PipelineConfig{
				DataDir:         "data",
				ArchiveBaseURL:  "https://s3.amazonaws.com/tripdata/",
				ProbeTimeout:    30 * time.Second,
				DownloadTimeout: 60 * time.Second,
			},
			Weather: WeatherConfig{
				Endpoint:        "https://archive-api.open-meteo.com/v1/archive",
				Latitude:        40.7128,
				Longitude:       -74.0060,
				Timezone:        "America/New_York",
				TemperatureUnit: "fahrenheit",
				Timeout:         60 * time.Second,
			},
			Warehouse: WarehouseConfig{
				DBRef:        "warehouse",
				AutoMigrate:  true,
				BatchSize:    1000,
				TripsTable:   "trips",
				WeatherTable: "weather",
			},
			Staging: StagingConfig{
				StorageRef:  "archive",
				Prefix:      "citibike",
				Compression: "SNAPPY",
			},
			Transform: TransformConfig{
				Command:    "dbt",
				ProjectDir: "dbt_citibike",
			},
			Schedule: ScheduleConfig{
				Cron:        "0 6 10 * *",
				Timeout:     2 * time.Hour,
				MetricsAddr: ":9102",
			},
			Backfill: BackfillConfig{
				From: "2024-01",
				To:   "2025-12",
			},
			Observability: ObservabilityConfig{
				ServiceName:  "citibike-pipeline",
				OTLPProtocol: "http",
			},
			Resilience: ResilienceConfig{
				BreakerFailureThreshold: 5,
				BreakerResetTimeout:     5 * time.Minute,
			},
			Adapter: AdapterConfig{
				Database: map[string]interface{}{},
				Storage:  map[string]interface{}{},
			},
		},
	}
}
