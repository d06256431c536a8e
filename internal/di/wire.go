//go:build wireinject
// +build wireinject

package di

import (
	"ProbDesk/pkg/config"
	"ProbDesk/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Divergence core
		ProvideCalculator,
		ProvideMergeStrategy,
		ProvideIngestor,
		ProvideClassifier,
		ProvideAggregator,
		ProvideSnapshotBook,
		ProvideHistoryTracker,

		// Sinks and infrastructure clients
		ProvideKafkaProducer,
		ProvideSnapshotArchive,
		ProvideSnapshotSink,
		ProvideAlertPublisher,
		ProvidePipeline,
		ProvideCache,

		// Use cases
		ProvideMonitor,
		ProvideDashboard,
		ProvideKafkaSamplesHandler,
		ProvideSampleCollector,
		ProvideKafkaConsumer,

		// HTTP
		ProvideRelay,
		ProvideRateLimiter,
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
