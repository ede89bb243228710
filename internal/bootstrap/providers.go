package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/solar-forecast/internal/domain/access"
	"github.com/yanqian/solar-forecast/internal/domain/cache"
	"github.com/yanqian/solar-forecast/internal/domain/forecast"
	"github.com/yanqian/solar-forecast/internal/domain/model"
	"github.com/yanqian/solar-forecast/internal/domain/quota"
	"github.com/yanqian/solar-forecast/internal/infra/cachestore"
	"github.com/yanqian/solar-forecast/internal/infra/config"
	"github.com/yanqian/solar-forecast/internal/infra/modelstore"
	"github.com/yanqian/solar-forecast/internal/infra/openweather"
	"github.com/yanqian/solar-forecast/internal/infra/publish"
	"github.com/yanqian/solar-forecast/internal/infra/quotastore"
	"github.com/yanqian/solar-forecast/pkg/metrics"
)

const quotaLogName = "openweather"

// Caches groups the two named caches used by the orchestrator.
type Caches struct {
	Weather *cache.Cache
	Result  *cache.Cache
}

// ProvideLocation resolves the forecast timezone.
func ProvideLocation(cfg *config.Config) (*time.Location, error) {
	return cfg.Location()
}

// ProvideRegistry builds the Prometheus registry with the runtime collectors attached.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideRecorder registers the forecast counters.
func ProvideRecorder(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.NewRecorder(reg)
}

// ProvideGatherer exposes the registry to the /metrics route.
func ProvideGatherer(reg *prometheus.Registry) prometheus.Gatherer {
	return reg
}

// ProvideCacheStore selects the cache backend.
func ProvideCacheStore(cfg *config.Config, logger *slog.Logger) (cache.Store, func(), error) {
	switch cfg.Cache.Backend {
	case config.BackendMemory:
		logger.Info("cache backend", "backend", config.BackendMemory)
		return cachestore.NewMemoryStore(), func() {}, nil
	case config.BackendValkey:
		client, err := newValkeyClient(cfg.Cache.Valkey.Addr)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("cache backend", "backend", config.BackendValkey, "addr", cfg.Cache.Valkey.Addr)
		return cachestore.NewValkeyStore(client, cfg.Cache.Valkey.Prefix, cfg.Cache.Retention), client.Close, nil
	default:
		store, err := cachestore.NewFileStore(cfg.Cache.Dir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("cache backend", "backend", config.BackendFile, "dir", cfg.Cache.Dir)
		return store, func() {}, nil
	}
}

// ProvideCaches builds the weather and result caches over one store.
func ProvideCaches(cfg *config.Config, store cache.Store, recorder *metrics.Recorder, logger *slog.Logger) Caches {
	return Caches{
		Weather: cache.New(cache.NameWeather, cfg.Cache.WeatherTTL, store, recorder, logger),
		Result:  cache.New(cache.NameResult, cfg.Cache.ResultTTL, store, recorder, logger),
	}
}

// ProvideQuotaStore selects where the call log is persisted.
func ProvideQuotaStore(cfg *config.Config, logger *slog.Logger) (quota.Store, func(), error) {
	switch cfg.Quota.Backend {
	case config.BackendMemory:
		logger.Warn("call log kept in memory, quota resets on restart")
		return quotastore.NewMemoryStore(), func() {}, nil
	case config.BackendSQLite:
		store, err := quotastore.NewSQLiteStore(cfg.Quota.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("call log backend", "backend", config.BackendSQLite, "path", cfg.Quota.SQLitePath)
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("close sqlite call log", "error", err)
			}
		}, nil
	case config.BackendPostgres:
		pool, err := newPostgresPool(cfg.Quota.Postgres)
		if err != nil {
			return nil, nil, err
		}
		store := quotastore.NewPostgresStore(pool, quotaLogName)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("call log backend", "backend", config.BackendPostgres)
		return store, pool.Close, nil
	default:
		store, err := quotastore.NewFileStore(cfg.Quota.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("call log backend", "backend", config.BackendFile, "path", cfg.Quota.Path)
		return store, func() {}, nil
	}
}

// ProvideLimiter loads the call log and builds the daily limiter.
func ProvideLimiter(cfg *config.Config, store quota.Store, loc *time.Location, logger *slog.Logger) (*quota.Limiter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return quota.NewLimiter(ctx, quota.Config{
		DailyQuota: cfg.Quota.DailyLimit,
		HistoryCap: cfg.Quota.HistoryCap,
		Location:   loc,
	}, store, logger)
}

// ProvideModelLoader picks the artifact source.
func ProvideModelLoader(cfg *config.Config, logger *slog.Logger) (modelstore.Loader, error) {
	if !cfg.Model.Object.Enabled {
		return modelstore.NewFileLoader(cfg.Model.Path), nil
	}
	return NewObjectLoader(cfg, logger)
}

// NewObjectLoader builds the object storage loader from config.
func NewObjectLoader(cfg *config.Config, logger *slog.Logger) (*modelstore.ObjectLoader, error) {
	obj := cfg.Model.Object
	return modelstore.NewObjectLoader(modelstore.ObjectConfig{
		Endpoint:  obj.Endpoint,
		AccessKey: obj.AccessKey,
		SecretKey: obj.SecretKey,
		Bucket:    obj.Bucket,
		Region:    obj.Region,
		Key:       obj.Key,
	}, logger)
}

// ProvideModel loads the artifact once. A failed load leaves the service running without a model;
// forecasts then fail with model_error.
func ProvideModel(loader modelstore.Loader, logger *slog.Logger) *model.Runtime {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rt, err := loader.Load(ctx)
	if err != nil {
		logger.Error("model load failed", "error", err)
		return nil
	}
	info := rt.Info()
	logger.Info("model loaded", "name", info.Name, "type", info.Type, "features", info.FeatureCount)
	return rt
}

// ProvideWeatherProvider returns nil when no API key is configured.
func ProvideWeatherProvider(cfg *config.Config, logger *slog.Logger) forecast.WeatherProvider {
	if strings.TrimSpace(cfg.Weather.APIKey) == "" {
		logger.Warn("OPENWEATHER_API_KEY not set, forecasts use cached weather or seasonal defaults")
		return nil
	}
	return openweather.NewClient(cfg.Weather.BaseURL, cfg.Weather.APIKey, cfg.Weather.Timeout)
}

// ProvidePublisher connects the enabled publishers (MQTT, ClickHouse archive). Connection
// failures are logged and the publisher is left out.
func ProvidePublisher(cfg *config.Config, logger *slog.Logger) (forecast.Publisher, func()) {
	var (
		pubs    publish.Fanout
		closers []func()
	)
	if cfg.MQTT.Enabled {
		pub, err := publish.NewMQTTPublisher(publish.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
			Retained: cfg.MQTT.Retained,
			Timeout:  cfg.MQTT.Timeout,
		}, logger)
		if err != nil {
			logger.Error("mqtt publisher disabled", "error", err)
		} else {
			pubs = append(pubs, pub)
			closers = append(closers, pub.Close)
		}
	}
	if cfg.Archive.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		archive, err := publish.NewClickHouseArchive(ctx, publish.ArchiveConfig{
			Addr:     cfg.Archive.Addr,
			Database: cfg.Archive.Database,
			Username: cfg.Archive.Username,
			Password: cfg.Archive.Password,
		}, logger)
		cancel()
		if err != nil {
			logger.Error("forecast archive disabled", "error", err)
		} else {
			pubs = append(pubs, archive)
			closers = append(closers, archive.Close)
		}
	}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	switch len(pubs) {
	case 0:
		return publish.Noop{}, cleanup
	case 1:
		return pubs[0], cleanup
	default:
		return pubs, cleanup
	}
}

// ProvideForecastService assembles the orchestrator.
func ProvideForecastService(
	cfg *config.Config,
	loc *time.Location,
	rt *model.Runtime,
	provider forecast.WeatherProvider,
	limiter *quota.Limiter,
	caches Caches,
	pub forecast.Publisher,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) forecast.Service {
	deps := forecast.Dependencies{
		Provider:     provider,
		Limiter:      limiter,
		WeatherCache: caches.Weather,
		ResultCache:  caches.Result,
		Publisher:    pub,
		Metrics:      recorder,
	}
	if rt != nil {
		deps.Model = rt
	}
	return forecast.NewService(forecast.Config{
		Location:         loc,
		Horizon:          cfg.Forecast.Horizon,
		ProviderTimeout:  cfg.Weather.Timeout,
		DefaultLatitude:  cfg.Forecast.DefaultLatitude,
		DefaultLongitude: cfg.Forecast.DefaultLongitude,
	}, deps, logger)
}

// ProvideAccessService builds the token service.
func ProvideAccessService(cfg *config.Config, logger *slog.Logger) access.Service {
	return access.NewService(access.Config{
		Secret:   cfg.Access.Secret,
		Issuer:   cfg.Access.Issuer,
		TokenTTL: cfg.Access.TokenTTL,
	}, logger)
}

func newValkeyClient(addr string) (valkey.Client, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(addr, "://") {
		opt, err = valkey.ParseURL(addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{addr}}
	}
	if err != nil {
		return nil, fmt.Errorf("parse valkey address: %w", err)
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey ping: %w", err)
	}
	return client, nil
}

func newPostgresPool(cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(strings.TrimSpace(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}
