package bootstrap

import "github.com/google/wire"

// ProviderSet builds everything the HTTP service needs except the transport.
var ProviderSet = wire.NewSet(
	ProvideLocation,
	ProvideRegistry,
	ProvideRecorder,
	ProvideGatherer,
	ProvideCacheStore,
	ProvideCaches,
	ProvideQuotaStore,
	ProvideLimiter,
	ProvideModelLoader,
	ProvideModel,
	ProvideWeatherProvider,
	ProvidePublisher,
	ProvideForecastService,
	ProvideAccessService,
	NewJanitor,
	NewApp,
)
