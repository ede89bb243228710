package weather

import (
	"sort"
	"time"
)

// Observation is one hour of provider forecast, already converted to model units.
type Observation struct {
	Time             time.Time `json:"timestamp"`
	UVIndex          float64   `json:"uv_index"`
	TemperatureC     float64   `json:"temperature_c"`
	HumidityPct      float64   `json:"humidity_pct"`
	PressureKPa      float64   `json:"pressure_kpa"`
	DewPointC        float64   `json:"dew_point_c"`
	WindSpeedMS      float64   `json:"wind_speed_ms"`
	WindDirectionDeg float64   `json:"wind_direction_deg"`
	CloudsPct        float64   `json:"clouds_pct"`
	VisibilityM      float64   `json:"visibility_m"`
	PrecipitationMMH float64   `json:"precipitation_mmh"`
	Main             string    `json:"weather_main"`
	Description      string    `json:"weather_description"`
}

// Provider-side defaults for fields missing from an hourly entry.
const (
	DefaultUVIndex          = 0.0
	DefaultTemperatureC     = 15.0
	DefaultHumidityPct      = 50.0
	DefaultPressureHPa      = 1013.0
	DefaultDewPointC        = 10.0
	DefaultWindSpeedMS      = 3.0
	DefaultWindDirectionDeg = 0.0
	DefaultCloudsPct        = 50.0
	DefaultVisibilityM      = 10000.0
	DefaultMain             = "Clear"
	DefaultDescription      = "clear sky"
)

// Forecast is the cached unit of weather data: hour-aligned observations for one location.
type Forecast struct {
	Latitude  float64       `json:"lat"`
	Longitude float64       `json:"lon"`
	FetchedAt time.Time     `json:"fetched_at"`
	Source    string        `json:"source"`
	Hours     []Observation `json:"hours"`
}

// At returns the observation whose slot is exactly the hour starting at t.
func (f *Forecast) At(t time.Time) (Observation, bool) {
	if f == nil {
		return Observation{}, false
	}
	for _, obs := range f.Hours {
		if obs.Time.Equal(t) {
			return obs, true
		}
	}
	return Observation{}, false
}

// Len reports the number of hourly observations.
func (f *Forecast) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Hours)
}

// Sort orders observations chronologically.
func (f *Forecast) Sort() {
	sort.Slice(f.Hours, func(i, j int) bool {
		return f.Hours[i].Time.Before(f.Hours[j].Time)
	})
}

// Nearest returns the observation closest to t, provided it is at most tolerance away.
// An exact slot match always wins.
func (f *Forecast) Nearest(t time.Time, tolerance time.Duration) (Observation, bool) {
	if obs, ok := f.At(t); ok {
		return obs, true
	}
	if f == nil {
		return Observation{}, false
	}
	best := -1
	var bestDiff time.Duration
	for i, obs := range f.Hours {
		diff := obs.Time.Sub(t)
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			continue
		}
		if best < 0 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	if best < 0 {
		return Observation{}, false
	}
	return f.Hours[best], true
}
