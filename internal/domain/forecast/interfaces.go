package forecast

import (
	"context"

	"github.com/yanqian/solar-forecast/internal/domain/cache"
	"github.com/yanqian/solar-forecast/internal/domain/model"
	"github.com/yanqian/solar-forecast/internal/domain/quota"
	"github.com/yanqian/solar-forecast/internal/domain/weather"
)

// WeatherProvider fetches hourly forecasts for a location.
type WeatherProvider interface {
	Fetch(ctx context.Context, lat, lon float64) (weather.Forecast, error)
	Endpoint() string
}

// Predictor scores feature vectors.
type Predictor interface {
	Predict(values map[string]float64) (model.Prediction, error)
	FeatureNames() []string
	Info() model.Info
}

// Limiter guards external calls with a daily budget. Reserve charges a call before it is made;
// Complete records how it went.
type Limiter interface {
	Reserve(ctx context.Context) (bool, error)
	Complete(ctx context.Context, endpoint string, success bool) error
	Stats(ctx context.Context) quota.Stats
}

// Cache is a TTL cache of JSON payloads.
type Cache interface {
	Get(ctx context.Context, key string, out any) (cache.Hit, bool)
	GetStale(ctx context.Context, key string, out any) (cache.Hit, bool)
	Put(ctx context.Context, key string, value any) error
}

// Publisher pushes freshly computed results to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, result Result) error
}

// ProviderMetrics receives provider and prediction counters. *metrics.Recorder satisfies it.
type ProviderMetrics interface {
	ProviderCall(endpoint string, success bool)
	Prediction(outcome string)
}
