//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/solar-forecast/internal/bootstrap"
	"github.com/yanqian/solar-forecast/internal/domain/quota"
	"github.com/yanqian/solar-forecast/internal/infra/config"
	httpiface "github.com/yanqian/solar-forecast/internal/interface/http"
	"github.com/yanqian/solar-forecast/pkg/logger"
)

func initializeApp() (*bootstrap.App, func(), error) {
	wire.Build(
		config.Load,
		logger.New,
		bootstrap.ProviderSet,
		wire.Bind(new(httpiface.QuotaReporter), new(*quota.Limiter)),
		httpiface.NewHandler,
		httpiface.NewRouter,
	)
	return nil, nil, nil
}
