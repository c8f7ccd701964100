//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"OptionsFlow/pkg/config"
	"OptionsFlow/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideAlertArchive,
		ProvideAlertStore,

		// Detection core
		ProvideAlertManager,
		ProvideDispatcher,
		ProvideEngine,

		// Ingestion and sinks
		ProvidePipeline,
		ProvideTradeCollector,
		ProvideKafkaTradesHandler,
		ProvideAlertArchiver,

		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
