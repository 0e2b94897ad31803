//go:build wireinject
// +build wireinject

package di

import (
	"PairPulse/internal/handler/api"
	"PairPulse/internal/services/alerts"
	"PairPulse/pkg/config"
	"PairPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideAnalyticsMetrics,

		// Market data
		ProvideAggregator,
		ProvidePipeline,
		ProvideTickSource,
		ProvideBarSource,
		ProvideWarmer,

		// Analytics
		ProvideRegressionEngine,
		ProvideSpreadTracker,
		ProvideADFTester,
		ProvideCorrelationEngine,
		ProvidePairAnalytics,

		// Alerts
		alerts.NewEvaluator,
		ProvideRedis,
		ProvideAlertQueue,
		ProvideAlertStore,
		ProvideAlertPublisher,
		ProvideAlertRules,

		// Live stream
		ProvideHub,
		ProvideRecompute,

		// HTTP
		ProvideMarket,
		ProvideLimiter,
		api.NewAnalyticsHandler,
		api.NewAlertsHandler,
		api.NewMarketHandler,
		api.NewStreamHandler,
		api.NewRouter,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
