package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/solar-forecast/internal/domain/cache"
	"github.com/yanqian/solar-forecast/internal/domain/features"
	"github.com/yanqian/solar-forecast/internal/domain/model"
	"github.com/yanqian/solar-forecast/internal/domain/quota"
	"github.com/yanqian/solar-forecast/internal/domain/weather"
	"github.com/yanqian/solar-forecast/internal/infra/quotastore"
	apperrors "github.com/yanqian/solar-forecast/pkg/errors"
	"github.com/yanqian/solar-forecast/pkg/util"
)

var calgary = time.FixedZone("MDT", -6*60*60)

type fakePredictor struct {
	mu      sync.Mutex
	kw      float64
	panicAt int
	calls   int
	hours   []int
}

func (p *fakePredictor) Predict(values map[string]float64) (model.Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	hour := int(values[features.Hour])
	p.hours = append(p.hours, hour)
	if p.panicAt > 0 && hour == p.panicAt {
		panic("tree index out of range")
	}
	return model.Prediction{KW: p.kw}, nil
}

func (p *fakePredictor) FeatureNames() []string {
	return []string{features.Hour, features.Month, features.UVIndex, features.CloudsPct}
}

func (p *fakePredictor) Info() model.Info {
	return model.Info{Name: "test-model", Type: "linear", R2Score: 0.91, FeatureCount: 4, FeatureNames: p.FeatureNames()}
}

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
	from  time.Time
}

func (p *fakeProvider) Endpoint() string { return "onecall" }

func (p *fakeProvider) Fetch(_ context.Context, lat, lon float64) (weather.Forecast, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return weather.Forecast{}, p.err
	}
	fc := weather.Forecast{Latitude: lat, Longitude: lon, Source: "test"}
	for i := 0; i < 48; i++ {
		fc.Hours = append(fc.Hours, weather.Observation{
			Time:      p.from.Add(time.Duration(i) * time.Hour).UTC(),
			UVIndex:   5,
			CloudsPct: 20,
		})
	}
	return fc, nil
}

type fakeLimiter struct {
	allow   bool
	records []bool
}

func (l *fakeLimiter) Reserve(context.Context) (bool, error) { return l.allow, nil }

func (l *fakeLimiter) Complete(_ context.Context, _ string, success bool) error {
	l.records = append(l.records, success)
	return nil
}

func (l *fakeLimiter) Stats(context.Context) quota.Stats {
	return quota.Stats{CallsToday: len(l.records), MaxCallsPerDay: 950, RemainingCalls: 950 - len(l.records)}
}

type mapStore struct {
	mu      sync.Mutex
	entries map[string]cache.Entry
}

func newMapStore() *mapStore { return &mapStore{entries: map[string]cache.Entry{}} }

func (s *mapStore) Read(_ context.Context, name, key string) (cache.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name+"/"+key]
	return e, ok, nil
}

func (s *mapStore) Write(_ context.Context, e cache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Cache+"/"+e.Key] = e
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []Result
}

func (p *recordingPublisher) Publish(_ context.Context, res Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, res)
	return nil
}

type fixture struct {
	svc       *service
	predictor *fakePredictor
	provider  *fakeProvider
	limiter   *fakeLimiter
	weather   *mapStore
	results   *mapStore
	publisher *recordingPublisher
	now       time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		predictor: &fakePredictor{kw: 1.5},
		provider:  &fakeProvider{from: time.Date(2024, 6, 1, 0, 0, 0, 0, calgary)},
		limiter:   &fakeLimiter{allow: true},
		weather:   newMapStore(),
		results:   newMapStore(),
		publisher: &recordingPublisher{},
		now:       now,
	}
	f.svc = f.build(logger, f.predictor, f.limiter)
	return f
}

func (f *fixture) build(logger *slog.Logger, predictor Predictor, limiter Limiter) *service {
	deps := Dependencies{
		Model:        predictor,
		Provider:     f.provider,
		Limiter:      limiter,
		WeatherCache: cache.New(cache.NameWeather, 0, f.weather, nil, logger),
		ResultCache:  cache.New(cache.NameResult, 0, f.results, nil, logger),
		Publisher:    f.publisher,
	}
	svc := NewService(Config{
		Location:         calgary,
		DefaultLatitude:  DefaultLatitude,
		DefaultLongitude: DefaultLongitude,
	}, deps, logger).(*service)
	svc.now = func() time.Time { return f.now }
	return svc
}

func twoDayRequest() Request {
	lat, lon, use := 51.0447, -114.0719, true
	return Request{StartDate: "2024-06-01", EndDate: "2024-06-02", Latitude: &lat, Longitude: &lon, UseWeather: &use}
}

func TestForecastRoundTripUsesCaches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 6, 1, 5, 30, 0, 0, calgary))

	first := f.svc.Forecast(ctx, twoDayRequest())
	require.True(t, first.Success)
	require.Nil(t, first.Cached)
	require.Len(t, first.Data, 32)
	require.Equal(t, 48.0, first.Summary.TotalKWh)
	require.Equal(t, 1.5, first.Summary.PeakKW)
	require.Equal(t, 24.0, first.Summary.AvgKWPerDay)
	require.Equal(t, DateRange{Start: "2024-06-01", End: "2024-06-02"}, first.Summary.DateRange)
	require.Equal(t, SourceProvider, first.WeatherQuality.Source)
	require.Equal(t, 32, first.WeatherQuality.HoursWithWeather)
	require.Empty(t, first.Warning)
	require.Equal(t, []bool{true}, f.limiter.records)
	require.Len(t, f.publisher.published, 1)

	second := f.svc.Forecast(ctx, twoDayRequest())
	require.Equal(t, 1, f.provider.calls)
	require.Equal(t, 32, f.predictor.calls)
	require.NotNil(t, second.Cached)

	key := cache.ResultKey("2024-06-01", "2024-06-02", 51.0447, -114.0719, true)
	require.Equal(t, key, second.Cached.CacheKey)
	require.Equal(t, key, first.Metadata.CacheKey)
	require.Equal(t, first.Summary.TotalKWh, second.Summary.TotalKWh)
	require.Len(t, f.publisher.published, 1)
}

func TestForecastForceFreshBypassesCaches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 6, 1, 5, 30, 0, 0, calgary))

	f.svc.Forecast(ctx, twoDayRequest())
	req := twoDayRequest()
	req.ForceFresh = true
	res := f.svc.Forecast(ctx, req)

	require.Nil(t, res.Cached)
	require.Equal(t, 2, f.provider.calls)
	require.Equal(t, 64, f.predictor.calls)
}

func TestForecastQuotaExhaustedWithoutStaleCache(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 1, 5, 30, 0, 0, calgary))
	f.limiter.allow = false

	res := f.svc.Forecast(context.Background(), twoDayRequest())
	require.True(t, res.Success)
	require.Zero(t, f.provider.calls)
	require.Empty(t, f.limiter.records)
	require.Equal(t, noWeatherWarning, res.Warning)
	require.False(t, res.WeatherQuality.WeatherDataAvailable)
	require.Equal(t, SourceNone, res.WeatherQuality.Source)
	for _, rec := range res.Data {
		require.Nil(t, rec.Weather)
	}
}

func TestForecastQuotaExhaustedUsesStaleWeather(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 1, 5, 30, 0, 0, calgary))
	f.limiter.allow = false

	stale, err := (&fakeProvider{from: time.Date(2024, 6, 1, 0, 0, 0, 0, calgary)}).Fetch(context.Background(), 51.0447, -114.0719)
	require.NoError(t, err)
	payload, err := json.Marshal(stale)
	require.NoError(t, err)
	key := cache.WeatherKey(51.0447, -114.0719, "2024-06-01", "2024-06-02")
	require.NoError(t, f.weather.Write(context.Background(), cache.Entry{
		Version:   cache.EntryVersion,
		Key:       key,
		Cache:     cache.NameWeather,
		WrittenAt: time.Now().Add(-3 * time.Hour),
		Payload:   payload,
	}))

	res := f.svc.Forecast(context.Background(), twoDayRequest())
	require.Zero(t, f.provider.calls)
	require.Equal(t, SourceStaleCache, res.WeatherQuality.Source)
	require.True(t, res.WeatherQuality.WeatherDataAvailable)
	require.Empty(t, res.Warning)
	require.NotNil(t, res.Data[0].Weather)
	require.Equal(t, 5.0, res.Data[0].Weather.UVIndex)
}

func newRealLimiter(t *testing.T, callsToday, dailyQuota int) *quota.Limiter {
	t.Helper()
	ctx := context.Background()
	store := quotastore.NewMemoryStore()
	now := time.Now().In(calgary)
	require.NoError(t, store.Save(ctx, quota.CallLog{
		Version:    quota.LogVersion,
		Today:      util.FormatDate(now),
		CallsToday: callsToday,
		LastReset:  now,
	}))
	limiter, err := quota.NewLimiter(ctx, quota.Config{DailyQuota: dailyQuota, HistoryCap: 10, Location: calgary}, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return limiter
}

func TestForecastSpentQuotaBlocksProvider(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 1, 5, 30, 0, 0, calgary))
	limiter := newRealLimiter(t, 5, 5)
	svc := f.build(slog.New(slog.NewTextHandler(io.Discard, nil)), f.predictor, limiter)

	res := svc.Forecast(context.Background(), twoDayRequest())
	require.True(t, res.Success)
	require.Zero(t, f.provider.calls)
	require.Equal(t, SourceNone, res.WeatherQuality.Source)
	require.Equal(t, 5, res.APIStats.CallsToday)
	require.Zero(t, res.APIStats.RemainingCalls)
	require.Empty(t, limiter.History())
}

func TestForecastConcurrentRequestsStayWithinQuota(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 1, 5, 30, 0, 0, calgary))
	f.provider.delay = 20 * time.Millisecond
	limiter := newRealLimiter(t, 0, 3)
	svc := f.build(slog.New(slog.NewTextHandler(io.Discard, nil)), f.predictor, limiter)

	var wg sync.WaitGroup
	results := make(chan Result, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := twoDayRequest()
			req.ForceFresh = true
			results <- svc.Forecast(context.Background(), req)
		}()
	}
	wg.Wait()
	close(results)
	for res := range results {
		require.True(t, res.Success)
	}

	stats := limiter.Stats(context.Background())
	require.LessOrEqual(t, stats.CallsToday, 3)
	require.Positive(t, f.provider.calls)
	require.Equal(t, stats.CallsToday, f.provider.calls)
	require.Len(t, limiter.History(), f.provider.calls)
}

func TestForecastProviderFailureIsRecordedAndDegrades(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 1, 5, 30, 0, 0, calgary))
	f.provider.err = errors.New("502 bad gateway")

	res := f.svc.Forecast(context.Background(), twoDayRequest())
	require.True(t, res.Success)
	require.Equal(t, 1, f.provider.calls)
	require.Equal(t, []bool{false}, f.limiter.records)
	require.Equal(t, noWeatherWarning, res.Warning)
	require.Len(t, res.Data, 32)
}

func TestForecastWithoutWeatherSkipsProvider(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 1, 5, 30, 0, 0, calgary))
	req := twoDayRequest()
	off := false
	req.UseWeather = &off

	res := f.svc.Forecast(context.Background(), req)
	require.Zero(t, f.provider.calls)
	require.Empty(t, res.Warning)
	require.False(t, res.WeatherQuality.Requested)
}

func TestForecastDaylightFilter(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 1, 0, 0, 0, 0, calgary))
	res := f.svc.Forecast(context.Background(), twoDayRequest())

	require.Len(t, res.Data, 32)
	require.Len(t, f.predictor.hours, 32)
	for _, rec := range res.Data {
		require.GreaterOrEqual(t, rec.Hour, features.DaylightStartHour)
		require.LessOrEqual(t, rec.Hour, features.DaylightEndHour)
		require.Equal(t, 1, rec.IsDaylight)
	}
	for _, h := range f.predictor.hours {
		require.True(t, features.IsDaylightHour(h))
	}
}

func TestForecastFallbackOnEmptySeries(t *testing.T) {
	now := time.Date(2024, 6, 1, 22, 10, 0, 0, calgary)
	f := newFixture(t, now)
	req := twoDayRequest()
	req.EndDate = "2024-06-01"

	res := f.svc.Forecast(context.Background(), req)
	require.True(t, res.Success)
	require.Len(t, res.Data, 1)
	require.True(t, res.Data[0].IsFallback)
	require.Equal(t, now, res.Data[0].Timestamp)
	require.Zero(t, res.Data[0].PredictedKW)
	require.Zero(t, f.predictor.calls)
	require.Zero(t, res.Summary.ValidPredictionCount)
}

func TestForecastPerHourPanicDegradesToZero(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 1, 5, 30, 0, 0, calgary))
	f.predictor.panicAt = 12

	res := f.svc.Forecast(context.Background(), twoDayRequest())
	require.True(t, res.Success)
	require.Len(t, res.Data, 32)
	require.Equal(t, 30, res.Summary.ValidPredictionCount)
	require.Equal(t, 45.0, res.Summary.TotalKWh)
	for _, rec := range res.Data {
		if rec.Hour == 12 {
			require.Zero(t, rec.PredictedKW)
			require.Contains(t, rec.Error, "prediction panic")
		}
	}
}

func TestForecastRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 1, 5, 30, 0, 0, calgary))
	cases := []Request{
		{StartDate: "2024-06-02", EndDate: "2024-06-01"},
		{StartDate: "06/01/2024", EndDate: "2024-06-01"},
		{StartDate: "", EndDate: "2024-06-01"},
		{StartDate: "2024-06-01", EndDate: "2024-06-01", Latitude: ptr(95.0)},
	}
	for _, req := range cases {
		res := f.svc.Forecast(context.Background(), req)
		require.False(t, res.Success)
		require.Equal(t, apperrors.CodeInvalidInput, res.ErrorCode)
		require.NotNil(t, res.Data)
		require.Empty(t, res.Data)
		require.NotEmpty(t, res.Error)
	}
	require.Zero(t, f.provider.calls)
}

func TestForecastWithoutModelFails(t *testing.T) {
	f := newFixture(t, time.Date(2024, 6, 1, 5, 30, 0, 0, calgary))
	svc := f.build(slog.New(slog.NewTextHandler(io.Discard, nil)), nil, f.limiter)

	res := svc.Forecast(context.Background(), twoDayRequest())
	require.False(t, res.Success)
	require.Equal(t, apperrors.CodeModel, res.ErrorCode)
	require.Nil(t, res.ModelInfo)
	_, ok := svc.ModelInfo()
	require.False(t, ok)
}

func ptr[T any](v T) *T { return &v }
