package pipeline

// State names the steps of the monthly job in execution order.
type State string

const (
	StateInit              State = "Init"
	StateCheckAvailability State = "CheckAvailability"
	StateDownload          State = "Download"
	StateDeleteTrips       State = "DeleteTrips"
	StateLoadTrips         State = "LoadTrips"
	StateFetchWeather      State = "FetchWeather"
	StateDeleteWeather     State = "DeleteWeather"
	StateLoadWeather       State = "LoadWeather"
	StateRunTransform      State = "RunTransform"
	StateDone              State = "Done"
	StateFailed            State = "Failed"

	// Steps used by reload and backfill.
	StateReadStagedTrips   State = "ReadStagedTrips"
	StateReadStagedWeather State = "ReadStagedWeather"
	StateBackfillTrips     State = "BackfillTrips"
	StateVerify            State = "Verify"
)

// MonthlyStates is the order of the monthly pipeline.
var MonthlyStates = []State{
	StateInit,
	StateCheckAvailability,
	StateDownload,
	StateDeleteTrips,
	StateLoadTrips,
	StateFetchWeather,
	StateDeleteWeather,
	StateLoadWeather,
	StateRunTransform,
}

// Job names recorded in the run history.
const (
	MonthlyJobName  = "citibikeMonthlyPipeline"
	ReloadJobName   = "citibikeReload"
	BackfillJobName = "citibikeBackfill"
)

// Job execution context keys.
const (
	keyPeriod           = "period"
	keyTripTable        = "trips.table"
	keyTrips            = "trips.rows"
	keyTripsPath        = "trips.path"
	keyTripsDeleted     = "trips.deleted"
	keyTripsLoaded      = "trips.loaded"
	keyWeather          = "weather.rows"
	keyWeatherPath      = "weather.path"
	keyWeatherDeleted   = "weather.deleted"
	keyWeatherLoaded    = "weather.loaded"
	keyTransformSkipped = "transform.skipped"
	keyTransformProject = "transform.project"
	keySkipped          = "backfill.skipped"
)
