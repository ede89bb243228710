package openweather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleResponse = `{
  "lat": 51.0447, "lon": -114.0719, "timezone": "America/Edmonton",
  "hourly": [
    {"dt": 1717261200, "uvi": 6.2, "temp": 21.5, "humidity": 40, "pressure": 1009, "dew_point": 7.1,
     "wind_speed": 4.6, "wind_deg": 250, "clouds": 20, "visibility": 10000,
     "rain": {"1h": 0.4}, "snow": {"1h": 0.1},
     "weather": [{"main": "Rain", "description": "light rain"}]},
    {"dt": 1717257600}
  ]
}`

func TestClientFetch(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", time.Second)
	fc, err := client.Fetch(context.Background(), 51.0447, -114.0719)
	require.NoError(t, err)

	require.Equal(t, map[string]string{
		"lat":     "51.0447",
		"lon":     "-114.0719",
		"appid":   "secret",
		"units":   "metric",
		"exclude": "minutely,daily,alerts",
	}, query)
	require.Len(t, fc.Hours, 2)

	// entries come back sorted, the sparse one first
	sparse := fc.Hours[0]
	require.Equal(t, time.Unix(1717257600, 0).UTC(), sparse.Time)
	require.Equal(t, 0.0, sparse.UVIndex)
	require.Equal(t, 15.0, sparse.TemperatureC)
	require.Equal(t, 101.3, sparse.PressureKPa)
	require.Equal(t, 10000.0, sparse.VisibilityM)
	require.Equal(t, "Clear", sparse.Main)
	require.Equal(t, "clear sky", sparse.Description)

	full := fc.Hours[1]
	require.Equal(t, 6.2, full.UVIndex)
	require.Equal(t, 100.9, full.PressureKPa)
	require.InDelta(t, 0.5, full.PrecipitationMMH, 1e-9)
	require.Equal(t, "light rain", full.Description)
	require.Equal(t, "onecall", client.Endpoint())
}

func TestClientFetchFailures(t *testing.T) {
	t.Run("non 2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"cod":401,"message":"Invalid API key"}`, http.StatusUnauthorized)
		}))
		defer srv.Close()
		_, err := NewClient(srv.URL, "bad", time.Second).Fetch(context.Background(), 1, 2)
		require.ErrorContains(t, err, "status=401")
	})

	t.Run("malformed json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"hourly": [`))
		}))
		defer srv.Close()
		_, err := NewClient(srv.URL, "key", time.Second).Fetch(context.Background(), 1, 2)
		require.ErrorContains(t, err, "decode weather response")
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(sampleResponse))
		}))
		defer srv.Close()
		_, err := NewClient(srv.URL, "key", 20*time.Millisecond).Fetch(context.Background(), 1, 2)
		require.Error(t, err)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewClient("", "", 0).Fetch(context.Background(), 1, 2)
		require.ErrorIs(t, err, ErrMissingAPIKey)
	})
}
