//go:build wireinject
// +build wireinject

package di

import (
	"IPHForecast/pkg/config"
	"IPHForecast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideCache,
		ProvideLimiter,

		// Repositories
		ProvideSeriesStore,
		ProvideJournal,
		ProvidePublisher,

		// Forecasting core
		ProvideFeatureStore,
		ProvidePredictors,
		ProvideTables,
		ProvideRegistry,
		ProvideEstimator,
		ProvideClassifier,

		// Use cases
		ProvideForecastService,
		ProvideObservationProcessor,
		ProvideObservationCollector,
		ProvideKafkaConsumer,
		ProvideKafkaObservationsHandler,
		ProvideSnapshotJob,

		// Transport and application server
		ProvideForecastHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
