package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/yanqian/solar-forecast/internal/bootstrap"
	"github.com/yanqian/solar-forecast/internal/domain/access"
	"github.com/yanqian/solar-forecast/internal/domain/forecast"
	"github.com/yanqian/solar-forecast/internal/domain/quota"
	"github.com/yanqian/solar-forecast/internal/infra/config"
	"github.com/yanqian/solar-forecast/internal/infra/modelstore"
	"github.com/yanqian/solar-forecast/pkg/logger"
)

// env holds the components a CLI invocation needs.
type env struct {
	loc      *time.Location
	forecast forecast.Service
	limiter  *quota.Limiter
	cleanups []func()
}

func (e *env) close() {
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewWithWriter(os.Stderr), nil
}

// loadEnv assembles the forecast pipeline. quotaOnly skips the model and caches.
func loadEnv(quotaOnly bool) (*env, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	loc, err := bootstrap.ProvideLocation(cfg)
	if err != nil {
		return nil, err
	}

	e := &env{loc: loc}
	quotaStore, cleanup, err := bootstrap.ProvideQuotaStore(cfg, log)
	if err != nil {
		return nil, err
	}
	e.cleanups = append(e.cleanups, cleanup)
	e.limiter, err = bootstrap.ProvideLimiter(cfg, quotaStore, loc, log)
	if err != nil {
		e.close()
		return nil, err
	}
	if quotaOnly {
		return e, nil
	}

	loader, err := bootstrap.ProvideModelLoader(cfg, log)
	if err != nil {
		e.close()
		return nil, err
	}
	rt := bootstrap.ProvideModel(loader, log)

	cacheStore, cleanup, err := bootstrap.ProvideCacheStore(cfg, log)
	if err != nil {
		e.close()
		return nil, err
	}
	e.cleanups = append(e.cleanups, cleanup)
	recorder := bootstrap.ProvideRecorder(bootstrap.ProvideRegistry())
	caches := bootstrap.ProvideCaches(cfg, cacheStore, recorder, log)
	pub, cleanup := bootstrap.ProvidePublisher(cfg, log)
	e.cleanups = append(e.cleanups, cleanup)

	e.forecast = bootstrap.ProvideForecastService(cfg, loc, rt, bootstrap.ProvideWeatherProvider(cfg, log), e.limiter, caches, pub, recorder, log)
	return e, nil
}

func provideAccess(cfg *config.Config, log *slog.Logger) access.Service {
	return bootstrap.ProvideAccessService(cfg, log)
}

func provideJanitor(cfg *config.Config, log *slog.Logger) (*bootstrap.Janitor, func(), error) {
	store, cleanup, err := bootstrap.ProvideCacheStore(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return bootstrap.NewJanitor(cfg, store, log), cleanup, nil
}

func provideObjectLoader(cfg *config.Config, log *slog.Logger) (*modelstore.ObjectLoader, error) {
	return bootstrap.NewObjectLoader(cfg, log)
}
