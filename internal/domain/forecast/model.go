package forecast

import (
	"time"

	"github.com/yanqian/solar-forecast/internal/domain/model"
	"github.com/yanqian/solar-forecast/internal/domain/quota"
	"github.com/yanqian/solar-forecast/internal/domain/weather"
)

// Request captures the parameters accepted by the orchestrator.
// Nil coordinates and flag fall back to the configured defaults.
type Request struct {
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	Latitude   *float64 `json:"lat,omitempty"`
	Longitude  *float64 `json:"lon,omitempty"`
	UseWeather *bool    `json:"use_weather,omitempty"`
	ForceFresh bool     `json:"force_fresh"`
}

// Record is one hourly prediction.
type Record struct {
	Timestamp   time.Time            `json:"timestamp"`
	PredictedKW float64              `json:"predicted_kw"`
	Hour        int                  `json:"hour"`
	Date        string               `json:"date"`
	IsDaylight  int                  `json:"is_daylight"`
	IsFallback  bool                 `json:"is_fallback,omitempty"`
	Weather     *weather.Observation `json:"weather,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// DateRange is an inclusive pair of calendar days.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Summary aggregates the hourly series.
type Summary struct {
	TotalKWh             float64   `json:"total_kwh"`
	PeakKW               float64   `json:"peak_kw"`
	PredictionCount      int       `json:"prediction_count"`
	ValidPredictionCount int       `json:"valid_prediction_count"`
	DateRange            DateRange `json:"date_range"`
	RequestedRange       DateRange `json:"requested_range"`
	AvgKWPerDay          float64   `json:"avg_kw_per_day"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	GeneratedAt   time.Time `json:"generated_at"`
	RunID         string    `json:"run_id"`
	IntervalHours int       `json:"interval_hours"`
	Latitude      float64   `json:"lat"`
	Longitude     float64   `json:"lon"`
	Timezone      string    `json:"timezone"`
	UseWeather    bool      `json:"use_weather"`
	ForceFresh    bool      `json:"force_fresh"`
	CacheKey      string    `json:"cache_key,omitempty"`
	WindowStart   time.Time `json:"window_start,omitzero"`
	WindowEnd     time.Time `json:"window_end,omitzero"`
}

// Weather sources reported in WeatherQuality.
const (
	SourceProvider   = "provider"
	SourceCache      = "cache"
	SourceStaleCache = "stale_cache"
	SourceNone       = "none"
)

// WeatherQuality reports whether the series used real weather data.
type WeatherQuality struct {
	Requested            bool   `json:"requested"`
	WeatherDataAvailable bool   `json:"weather_data_available"`
	Source               string `json:"source"`
	HoursWithWeather     int    `json:"hours_with_weather"`
}

// Cached annotates results served from the result cache.
type Cached struct {
	CachedAt   time.Time `json:"cached_at"`
	CacheKey   string    `json:"cache_key"`
	AgeSeconds float64   `json:"age_seconds"`
}

// Result is the response envelope. It is always well formed, also on failure.
type Result struct {
	Success        bool            `json:"success"`
	Data           []Record        `json:"data"`
	Summary        Summary         `json:"summary"`
	ModelInfo      *model.Info     `json:"model_info,omitempty"`
	APIStats       *quota.Stats    `json:"api_stats,omitempty"`
	Metadata       Metadata        `json:"metadata"`
	WeatherQuality *WeatherQuality `json:"weather_quality,omitempty"`
	Warning        string          `json:"warning,omitempty"`
	Error          string          `json:"error,omitempty"`
	ErrorCode      string          `json:"error_code,omitempty"`
	Cached         *Cached         `json:"_cached,omitempty"`
}

// Config tunes the orchestrator.
type Config struct {
	Location         *time.Location
	Horizon          time.Duration
	ProviderTimeout  time.Duration
	DefaultLatitude  float64
	DefaultLongitude float64
}

// Defaults for Calgary, where the reference array is installed.
const (
	DefaultLatitude        = 51.0447
	DefaultLongitude       = -114.0719
	DefaultHorizon         = 48 * time.Hour
	DefaultProviderTimeout = 15 * time.Second
	// MaxSlotDistance bounds how far a provider entry may sit from the hour it is used for.
	MaxSlotDistance = time.Hour
)

const noWeatherWarning = "weather data unavailable, predictions use seasonal defaults"
