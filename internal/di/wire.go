//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	domrepo "MarketFlow/internal/domain/repository"
	internalrepo "MarketFlow/internal/repository"
	icache "MarketFlow/internal/service/cache"
	"MarketFlow/internal/service/marketdata"
	"MarketFlow/pkg/config"
	"MarketFlow/pkg/metrics"
	"MarketFlow/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		wire.Bind(new(domrepo.Metrics), new(*metrics.Recorder)),

		// Storage
		ProvideCache,
		ProvideStateStore,
		wire.Bind(new(domrepo.StateStore), new(*internalrepo.CacheStateStore)),
		ProvidePriceStore,
		ProvideTransitionJournal,
		ProvideMigrators,

		// Market data
		ProvideMarketData,
		wire.Bind(new(domrepo.MarketDataProvider), new(*marketdata.Yahoo)),
		ProvideQuoteBook,
		wire.Bind(new(domrepo.QuoteBook), new(*icache.QuoteBook)),
		ProvideQuoteCollector,

		// Delivery
		ProvideNotifiers,
		ProvideDeliveryHandler,
		ProvideReportPublisher,
		ProvideConsumer,

		// Use cases
		ProvideEngines,
		ProvideRefresher,
		ProvideEvaluator,
		ProvideScheduler,
		ProvideHistory,

		// HTTP
		ProvideHTTPHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}
