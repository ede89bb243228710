package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yanqian/solar-forecast/internal/domain/weather"
)

const (
	defaultBaseURL = "https://api.openweathermap.org/data/3.0/onecall"
	defaultTimeout = 15 * time.Second
	endpointName   = "onecall"
	excludedParts  = "minutely,daily,alerts"
)

// ErrMissingAPIKey is returned when the client was built without credentials.
var ErrMissingAPIKey = errors.New("openweather api key not configured")

// Client fetches hourly forecasts from the OpenWeather One Call API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient builds an API client. A non-positive timeout falls back to 15s.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	endpoint := strings.TrimSpace(baseURL)
	if endpoint == "" {
		endpoint = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(endpoint, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// Endpoint names the API for call logging.
func (c *Client) Endpoint() string { return endpointName }

// Fetch retrieves the hourly forecast for a location.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (weather.Forecast, error) {
	if c.apiKey == "" {
		return weather.Forecast{}, ErrMissingAPIKey
	}
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	params.Set("exclude", excludedParts)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return weather.Forecast{}, fmt.Errorf("build weather request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return weather.Forecast{}, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return weather.Forecast{}, fmt.Errorf("weather request error: status=%d body=%s", resp.StatusCode, string(payload))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return weather.Forecast{}, fmt.Errorf("read weather response: %w", err)
	}

	var raw apiResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return weather.Forecast{}, fmt.Errorf("decode weather response: %w", err)
	}
	if len(raw.Hourly) == 0 {
		return weather.Forecast{}, errors.New("weather response has no hourly data")
	}

	fc := weather.Forecast{
		Latitude:  lat,
		Longitude: lon,
		FetchedAt: c.now().UTC(),
		Source:    endpointName,
		Hours:     make([]weather.Observation, 0, len(raw.Hourly)),
	}
	for _, h := range raw.Hourly {
		fc.Hours = append(fc.Hours, normalizeHour(h))
	}
	fc.Sort()
	return fc, nil
}

type apiResponse struct {
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Timezone string   `json:"timezone"`
	Hourly   []hourly `json:"hourly"`
}

// Pointer fields distinguish absent values from zeros.
type hourly struct {
	Dt         int64         `json:"dt"`
	UVI        *float64      `json:"uvi"`
	Temp       *float64      `json:"temp"`
	Humidity   *float64      `json:"humidity"`
	Pressure   *float64      `json:"pressure"`
	DewPoint   *float64      `json:"dew_point"`
	WindSpeed  *float64      `json:"wind_speed"`
	WindDeg    *float64      `json:"wind_deg"`
	Clouds     *float64      `json:"clouds"`
	Visibility *float64      `json:"visibility"`
	Rain       *precip       `json:"rain"`
	Snow       *precip       `json:"snow"`
	Weather    []description `json:"weather"`
}

type precip struct {
	OneHour float64 `json:"1h"`
}

type description struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

func normalizeHour(h hourly) weather.Observation {
	obs := weather.Observation{
		Time:             time.Unix(h.Dt, 0).UTC(),
		UVIndex:          valueOr(h.UVI, weather.DefaultUVIndex),
		TemperatureC:     valueOr(h.Temp, weather.DefaultTemperatureC),
		HumidityPct:      valueOr(h.Humidity, weather.DefaultHumidityPct),
		PressureKPa:      valueOr(h.Pressure, weather.DefaultPressureHPa) / 10,
		DewPointC:        valueOr(h.DewPoint, weather.DefaultDewPointC),
		WindSpeedMS:      valueOr(h.WindSpeed, weather.DefaultWindSpeedMS),
		WindDirectionDeg: valueOr(h.WindDeg, weather.DefaultWindDirectionDeg),
		CloudsPct:        valueOr(h.Clouds, weather.DefaultCloudsPct),
		VisibilityM:      valueOr(h.Visibility, weather.DefaultVisibilityM),
		Main:             weather.DefaultMain,
		Description:      weather.DefaultDescription,
	}
	if h.Rain != nil {
		obs.PrecipitationMMH += h.Rain.OneHour
	}
	if h.Snow != nil {
		obs.PrecipitationMMH += h.Snow.OneHour
	}
	if len(h.Weather) > 0 {
		if h.Weather[0].Main != "" {
			obs.Main = h.Weather[0].Main
		}
		if h.Weather[0].Description != "" {
			obs.Description = h.Weather[0].Description
		}
	}
	return obs
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
