//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/support-copilot/internal/bootstrap"
	"github.com/yanqian/support-copilot/internal/domain/matcher"
	"github.com/yanqian/support-copilot/internal/infra/config"
	httpiface "github.com/yanqian/support-copilot/internal/interface/http"
	"github.com/yanqian/support-copilot/pkg/logger"
)

func initializeApp() (*bootstrap.App, func(), error) {
	wire.Build(
		config.Load,
		logger.New,
		provideMatcherConfig,
		provideEmbeddingOptions,
		provideModelLoader,
		provideRecordRepository,
		provideRecordLister,
		matcher.NewLazyProvider,
		matcher.NewService,
		wire.Bind(new(matcher.EmbeddingProvider), new(*matcher.LazyProvider)),
		wire.Bind(new(httpiface.ModelStatus), new(*matcher.LazyProvider)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}
