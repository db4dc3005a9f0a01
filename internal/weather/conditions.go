package weather

// Condition labels derived from cloud cover.
const (
	Sunny        = "Sunny"
	PartlyCloudy = "Partly Cloudy"
	Cloudy       = "Cloudy"
	Unknown      = "Unknown"
)

// Conditions classifies an hourly cloud cover percentage.
func Conditions(cloudCover *float64) string {
	switch {
	case cloudCover == nil:
		return Unknown
	case *cloudCover <= 25:
		return Sunny
	case *cloudCover <= 75:
		return PartlyCloudy
	default:
		return Cloudy
	}
}
