package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/yanqian/solar-forecast/internal/domain/cache"
	"github.com/yanqian/solar-forecast/internal/domain/features"
	"github.com/yanqian/solar-forecast/internal/domain/model"
	"github.com/yanqian/solar-forecast/internal/domain/weather"
	apperrors "github.com/yanqian/solar-forecast/pkg/errors"
	"github.com/yanqian/solar-forecast/pkg/util"
)

// Service exposes the forecast pipeline.
type Service interface {
	Forecast(ctx context.Context, req Request) Result
	ModelInfo() (model.Info, bool)
}

// Dependencies groups the collaborators of the orchestrator. Provider, Publisher and Metrics are optional.
type Dependencies struct {
	Model        Predictor
	Provider     WeatherProvider
	Limiter      Limiter
	WeatherCache Cache
	ResultCache  Cache
	Publisher    Publisher
	Metrics      ProviderMetrics
}

type service struct {
	cfg     Config
	deps    Dependencies
	builder *features.Builder
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
	group   singleflight.Group
}

type normalized struct {
	start, end time.Time
	startDate  string
	endDate    string
	lat, lon   float64
	useWeather bool
	forceFresh bool
}

// NewService wires up the forecast orchestrator.
func NewService(cfg Config, deps Dependencies, logger *slog.Logger) Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultHorizon
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	s := &service{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "forecast.service"),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	if deps.Model != nil {
		s.builder = features.NewBuilder(deps.Model.FeatureNames(), cfg.Location)
		if unknown := s.builder.Unknown(); len(unknown) > 0 {
			s.logger.Warn("model declares features the builder cannot produce, filling with 0", "features", unknown)
		}
	}
	return s
}

func (s *service) ModelInfo() (model.Info, bool) {
	if s.deps.Model == nil {
		return model.Info{}, false
	}
	return s.deps.Model.Info(), true
}

func (s *service) Forecast(ctx context.Context, req Request) Result {
	now := s.now().In(s.cfg.Location)
	norm, err := s.normalize(req)
	if err != nil {
		return s.failure(ctx, now, req, err)
	}
	if s.deps.Model == nil {
		return s.failure(ctx, now, req, apperrors.Wrap(apperrors.CodeModel, "model not loaded", nil))
	}

	key := cache.ResultKey(norm.startDate, norm.endDate, norm.lat, norm.lon, norm.useWeather)
	if !norm.forceFresh {
		var cached Result
		if hit, ok := s.deps.ResultCache.Get(ctx, key, &cached); ok {
			s.logger.Info("forecast served from cache", "cache_key", key, "age", hit.Age.String())
			cached.Cached = &Cached{
				CachedAt:   hit.WrittenAt,
				CacheKey:   key,
				AgeSeconds: util.Round2(hit.Age.Seconds()),
			}
			return cached
		}
	}

	slots := predictionWindow(now, norm.start, norm.end, s.cfg.Horizon)
	fc, source := s.loadWeather(ctx, norm, now)

	records, withWeather := s.predictSeries(slots, fc)
	if len(records) == 0 {
		s.deps.Metrics.Prediction("fallback")
		records = []Record{fallbackRecord(now)}
	}

	info := s.modelInfo()
	stats := s.deps.Limiter.Stats(ctx)
	res := Result{
		Success:   true,
		Data:      records,
		Summary:   summarize(records, norm.startDate, norm.endDate),
		ModelInfo: &info,
		APIStats:  &stats,
		Metadata:  s.metadata(now, norm, key),
		WeatherQuality: &WeatherQuality{
			Requested:            norm.useWeather,
			WeatherDataAvailable: withWeather > 0,
			Source:               source,
			HoursWithWeather:     withWeather,
		},
	}
	if len(slots) > 0 {
		res.Metadata.WindowStart = slots[0]
		res.Metadata.WindowEnd = slots[len(slots)-1].Add(time.Hour)
	}
	if norm.useWeather && withWeather == 0 {
		res.Warning = noWeatherWarning
	}

	if err := s.deps.ResultCache.Put(ctx, key, res); err != nil {
		s.logger.Warn("result cache write failed", "cache_key", key, "error", err)
	}
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.Publish(ctx, res); err != nil {
			s.logger.Warn("publish forecast failed", "cache_key", key, "error", err)
		}
	}
	s.logger.Info("forecast computed",
		"start_date", norm.startDate,
		"end_date", norm.endDate,
		"records", len(res.Data),
		"total_kwh", res.Summary.TotalKWh,
		"weather_source", source,
	)
	return res
}

func (s *service) normalize(req Request) (normalized, error) {
	out := normalized{
		startDate:  strings.TrimSpace(req.StartDate),
		endDate:    strings.TrimSpace(req.EndDate),
		lat:        s.cfg.DefaultLatitude,
		lon:        s.cfg.DefaultLongitude,
		useWeather: true,
		forceFresh: req.ForceFresh,
	}
	if out.startDate == "" || out.endDate == "" {
		return normalized{}, apperrors.Wrap(apperrors.CodeInvalidInput, "start_date and end_date are required", nil)
	}
	var err error
	if out.start, err = util.ParseDate(out.startDate, s.cfg.Location); err != nil {
		return normalized{}, apperrors.Wrap(apperrors.CodeInvalidInput, "start_date must be formatted as YYYY-MM-DD", err)
	}
	if out.end, err = util.ParseDate(out.endDate, s.cfg.Location); err != nil {
		return normalized{}, apperrors.Wrap(apperrors.CodeInvalidInput, "end_date must be formatted as YYYY-MM-DD", err)
	}
	if out.end.Before(out.start) {
		return normalized{}, apperrors.Wrap(apperrors.CodeInvalidInput, "end_date must not be before start_date", nil)
	}
	if req.Latitude != nil {
		out.lat = *req.Latitude
	}
	if req.Longitude != nil {
		out.lon = *req.Longitude
	}
	if math.IsNaN(out.lat) || out.lat < -90 || out.lat > 90 {
		return normalized{}, apperrors.Wrap(apperrors.CodeInvalidInput, "lat must be within [-90, 90]", nil)
	}
	if math.IsNaN(out.lon) || out.lon < -180 || out.lon > 180 {
		return normalized{}, apperrors.Wrap(apperrors.CodeInvalidInput, "lon must be within [-180, 180]", nil)
	}
	if req.UseWeather != nil {
		out.useWeather = *req.UseWeather
	}
	// Canonical date strings keep cache keys stable for inputs like " 2024-06-01".
	out.startDate = util.FormatDate(out.start)
	out.endDate = util.FormatDate(out.end)
	return out, nil
}

// loadWeather walks fresh cache, quota, provider and stale cache in that order.
// Concurrent requests for the same key share one provider call.
// A nil forecast means the series runs without weather.
func (s *service) loadWeather(ctx context.Context, req normalized, now time.Time) (*weather.Forecast, string) {
	if !req.useWeather {
		return nil, SourceNone
	}
	key := cache.WeatherKey(req.lat, req.lon, req.startDate, weatherKeyEnd(now, req.end, s.cfg.Horizon))

	var fc weather.Forecast
	if !req.forceFresh {
		if _, ok := s.deps.WeatherCache.Get(ctx, key, &fc); ok {
			return &fc, SourceCache
		}
	}

	if s.deps.Provider == nil {
		s.logger.Warn("no weather provider configured")
	} else {
		fetched, err := s.fetchShared(ctx, key, req)
		if err == nil {
			return &fetched, SourceProvider
		}
		if apperrors.IsCode(err, apperrors.CodeQuota) {
			s.logger.Warn("daily weather quota exhausted, trying stale cache", "stats", s.deps.Limiter.Stats(ctx))
		} else {
			s.logger.Warn("weather provider call failed, trying stale cache", "error", err)
		}
	}

	if hit, ok := s.deps.WeatherCache.GetStale(ctx, key, &fc); ok {
		s.logger.Info("using stale weather data", "cache_key", key, "age", hit.Age.String())
		return &fc, SourceStaleCache
	}
	return nil, SourceNone
}

// fetchShared collapses concurrent fetches for the same weather key into one reserved provider call.
func (s *service) fetchShared(ctx context.Context, key string, req normalized) (weather.Forecast, error) {
	v, err, shared := s.group.Do(key, func() (any, error) {
		ok, rerr := s.deps.Limiter.Reserve(ctx)
		if rerr != nil {
			s.logger.Error("persist weather call reservation failed", "error", rerr)
		}
		if !ok {
			return weather.Forecast{}, apperrors.Wrap(apperrors.CodeQuota, "daily weather quota exhausted", nil)
		}
		fetched, err := s.fetch(ctx, req)
		if err != nil {
			return weather.Forecast{}, err
		}
		if perr := s.deps.WeatherCache.Put(ctx, key, fetched); perr != nil {
			s.logger.Warn("weather cache write failed", "cache_key", key, "error", perr)
		}
		return fetched, nil
	})
	if shared {
		s.logger.Debug("weather fetch shared with concurrent request", "cache_key", key)
	}
	if err != nil {
		return weather.Forecast{}, err
	}
	return v.(weather.Forecast), nil
}

func (s *service) fetch(ctx context.Context, req normalized) (weather.Forecast, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	endpoint := s.deps.Provider.Endpoint()
	fc, err := s.deps.Provider.Fetch(callCtx, req.lat, req.lon)
	if cerr := s.deps.Limiter.Complete(ctx, endpoint, err == nil); cerr != nil {
		s.logger.Error("record weather call failed", "error", cerr)
	}
	s.deps.Metrics.ProviderCall(endpoint, err == nil)
	if err != nil {
		return weather.Forecast{}, apperrors.Wrap(apperrors.CodeWeather, "weather provider call failed", err)
	}
	return fc, nil
}

func (s *service) predictSeries(slots []time.Time, fc *weather.Forecast) ([]Record, int) {
	records := make([]Record, 0, len(slots))
	withWeather := 0
	for _, ts := range slots {
		if !features.IsDaylightHour(ts.Hour()) {
			continue
		}
		var obs *weather.Observation
		if match, ok := fc.Nearest(ts, MaxSlotDistance); ok {
			obs = &match
			withWeather++
		}
		rec := Record{
			Timestamp:  ts,
			Hour:       ts.Hour(),
			Date:       util.FormatDate(ts),
			IsDaylight: 1,
			Weather:    obs,
		}
		kw, err := s.predictHour(ts, obs)
		if err != nil {
			s.logger.Warn("hourly prediction failed", "timestamp", ts, "error", err)
			s.deps.Metrics.Prediction("error")
			rec.Error = err.Error()
		} else {
			s.deps.Metrics.Prediction("ok")
			rec.PredictedKW = util.Round2(kw)
		}
		records = append(records, rec)
	}
	return records, withWeather
}

func (s *service) predictHour(ts time.Time, obs *weather.Observation) (kw float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prediction panic: %v", r)
		}
	}()
	vec := s.builder.Build(ts, obs)
	pred, err := s.deps.Model.Predict(vec.Values)
	if err != nil {
		return 0, err
	}
	return pred.KW, nil
}

func (s *service) modelInfo() model.Info {
	info := s.deps.Model.Info()
	info.FeatureNames = nil
	return info
}

func (s *service) metadata(now time.Time, req normalized, key string) Metadata {
	return Metadata{
		GeneratedAt:   now,
		RunID:         s.newID(),
		IntervalHours: 1,
		Latitude:      req.lat,
		Longitude:     req.lon,
		Timezone:      s.cfg.Location.String(),
		UseWeather:    req.useWeather,
		ForceFresh:    req.forceFresh,
		CacheKey:      key,
	}
}

func (s *service) failure(ctx context.Context, now time.Time, req Request, err error) Result {
	s.logger.Error("forecast failed", "start_date", req.StartDate, "end_date", req.EndDate, "error", err)
	res := Failure(err)
	res.Metadata = Metadata{
		GeneratedAt:   now,
		RunID:         s.newID(),
		IntervalHours: 1,
		Timezone:      s.cfg.Location.String(),
		ForceFresh:    req.ForceFresh,
	}
	res.Summary.RequestedRange = DateRange{Start: req.StartDate, End: req.EndDate}
	if s.deps.Limiter != nil {
		stats := s.deps.Limiter.Stats(ctx)
		res.APIStats = &stats
	}
	if s.deps.Model != nil {
		info := s.modelInfo()
		res.ModelInfo = &info
	}
	return res
}

// Failure builds the minimal result for a forecast that could not run at all.
func Failure(err error) Result {
	return Result{
		Success:   false,
		Data:      []Record{},
		Error:     err.Error(),
		ErrorCode: apperrors.CodeOf(err),
	}
}

func fallbackRecord(now time.Time) Record {
	return Record{
		Timestamp:  now,
		Hour:       now.Hour(),
		Date:       util.FormatDate(now),
		IsDaylight: boolToInt(features.IsDaylightHour(now.Hour())),
		IsFallback: true,
	}
}

type noopMetrics struct{}

func (noopMetrics) ProviderCall(string, bool) {}
func (noopMetrics) Prediction(string)         {}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
