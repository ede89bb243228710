package features

import (
	"math"
	"time"

	"github.com/yanqian/solar-forecast/internal/domain/weather"
)

// Feature names produced by the builder.
const (
	Hour             = "hour"
	Month            = "month"
	DayOfWeek        = "day_of_week"
	DayOfYear        = "day_of_year"
	IsDaylight       = "is_daylight"
	Season           = "season"
	DayLengthHours   = "day_length_hours"
	HourSin          = "hour_sin"
	HourCos          = "hour_cos"
	MonthSin         = "month_sin"
	MonthCos         = "month_cos"
	DayOfYearSin     = "day_of_year_sin"
	DayOfYearCos     = "day_of_year_cos"
	UVIndex          = "uv_index"
	TemperatureC     = "temperature_c"
	HumidityPct      = "humidity_pct"
	PressureKPa      = "pressure_kpa"
	DewPointC        = "dew_point_c"
	WindSpeedMS      = "wind_speed_ms"
	WindDirectionDeg = "wind_direction_deg"
	CloudsPct        = "clouds_pct"
	VisibilityM      = "visibility_m"
	PrecipitationMMH = "precipitation_mmh"
)

// Daylight window, local hours inclusive.
const (
	DaylightStartHour = 6
	DaylightEndHour   = 21
)

// weatherDefaults apply when no observation is available for an hour.
var weatherDefaults = map[string]float64{
	UVIndex:          1.0,
	TemperatureC:     15.0,
	HumidityPct:      50.0,
	PressureKPa:      101.3,
	DewPointC:        10.0,
	WindSpeedMS:      3.0,
	WindDirectionDeg: 180.0,
	CloudsPct:        50.0,
	VisibilityM:      10000.0,
	PrecipitationMMH: 0.0,
}

// Mean day length in hours per month for Calgary.
var dayLengths = [12]float64{8.5, 10.0, 11.8, 13.7, 15.3, 16.3, 16.0, 14.5, 12.7, 10.8, 9.1, 8.2}

const defaultDayLength = 12.0

// Vector is the numeric input for one hour, keyed by feature name.
type Vector struct {
	Values map[string]float64
	// Filled lists declared feature names that nothing produced and were set to 0.
	Filled []string
}

// Builder turns timestamps and optional observations into feature vectors.
type Builder struct {
	names    []string
	loc      *time.Location
	defaults map[string]float64
	unknown  []string
}

// NewBuilder resolves the default table for the declared feature names once, up front.
func NewBuilder(names []string, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.Local
	}
	b := &Builder{
		names:    append([]string(nil), names...),
		loc:      loc,
		defaults: make(map[string]float64, len(names)),
	}
	for _, name := range names {
		if v, ok := weatherDefaults[name]; ok {
			b.defaults[name] = v
			continue
		}
		if isCalendarFeature(name) {
			continue
		}
		b.defaults[name] = 0
		b.unknown = append(b.unknown, name)
	}
	return b
}

// Unknown reports declared names the builder cannot produce.
func (b *Builder) Unknown() []string {
	return append([]string(nil), b.unknown...)
}

// Names returns the declared feature order.
func (b *Builder) Names() []string {
	return append([]string(nil), b.names...)
}

// Build computes the vector for the hour starting at ts.
func (b *Builder) Build(ts time.Time, obs *weather.Observation) Vector {
	local := ts.In(b.loc)
	values := calendarFeatures(local)
	for name, v := range weatherDefaults {
		values[name] = v
	}
	if obs != nil {
		values[UVIndex] = obs.UVIndex
		values[TemperatureC] = obs.TemperatureC
		values[HumidityPct] = obs.HumidityPct
		values[PressureKPa] = obs.PressureKPa
		values[DewPointC] = obs.DewPointC
		values[WindSpeedMS] = obs.WindSpeedMS
		values[WindDirectionDeg] = obs.WindDirectionDeg
		values[CloudsPct] = obs.CloudsPct
		values[VisibilityM] = obs.VisibilityM
		values[PrecipitationMMH] = obs.PrecipitationMMH
	}

	var filled []string
	for _, name := range b.unknown {
		values[name] = b.defaults[name]
		filled = append(filled, name)
	}
	return Vector{Values: values, Filled: filled}
}

// IsDaylightHour reports whether a local hour falls in the production window.
func IsDaylightHour(hour int) bool {
	return hour >= DaylightStartHour && hour <= DaylightEndHour
}

// SeasonOf maps a month to 0=winter, 1=spring, 2=summer, 3=fall.
func SeasonOf(month time.Month) int {
	switch month {
	case time.December, time.January, time.February:
		return 0
	case time.March, time.April, time.May:
		return 1
	case time.June, time.July, time.August:
		return 2
	default:
		return 3
	}
}

// DayLength returns the mean day length for a month.
func DayLength(month time.Month) float64 {
	if month < time.January || month > time.December {
		return defaultDayLength
	}
	return dayLengths[month-1]
}

func calendarFeatures(t time.Time) map[string]float64 {
	hour := t.Hour()
	month := int(t.Month())
	doy := t.YearDay()

	values := make(map[string]float64, 24)
	values[Hour] = float64(hour)
	values[Month] = float64(month)
	values[DayOfWeek] = float64((int(t.Weekday()) + 6) % 7)
	values[DayOfYear] = float64(doy)
	values[IsDaylight] = boolToFloat(IsDaylightHour(hour))
	values[Season] = float64(SeasonOf(t.Month()))
	values[DayLengthHours] = DayLength(t.Month())

	values[HourSin], values[HourCos] = cyclical(float64(hour), 24)
	values[MonthSin], values[MonthCos] = cyclical(float64(month), 12)
	values[DayOfYearSin], values[DayOfYearCos] = cyclical(float64(doy), 365)
	return values
}

func cyclical(x, period float64) (float64, float64) {
	angle := 2 * math.Pi * x / period
	return math.Sin(angle), math.Cos(angle)
}

func isCalendarFeature(name string) bool {
	switch name {
	case Hour, Month, DayOfWeek, DayOfYear, IsDaylight, Season, DayLengthHours,
		HourSin, HourCos, MonthSin, MonthCos, DayOfYearSin, DayOfYearCos:
		return true
	}
	return false
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
