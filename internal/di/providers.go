package di

import (
	"context"
	"fmt"
	"time"

	domrepo "MarketFlow/internal/domain/repository"
	domsvc "MarketFlow/internal/domain/service"
	"MarketFlow/internal/handler/api"
	mid "MarketFlow/internal/middleware"
	internalrepo "MarketFlow/internal/repository"
	icache "MarketFlow/internal/service/cache"
	"MarketFlow/internal/service/finnhub"
	"MarketFlow/internal/service/marketdata"
	"MarketFlow/internal/service/ratelimit"
	"MarketFlow/internal/services/notify"
	"MarketFlow/internal/usecase"
	pkgcache "MarketFlow/pkg/cache"
	pkgch "MarketFlow/pkg/clickhouse"
	"MarketFlow/pkg/config"
	xhttp "MarketFlow/pkg/http"
	pkgkafka "MarketFlow/pkg/kafka"
	"MarketFlow/pkg/logger"
	"MarketFlow/pkg/metrics"
	pkgpg "MarketFlow/pkg/postgres"
	"MarketFlow/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideCache creates the key/value backend holding state, locks and cached responses.
func ProvideCache(cfg *config.Config) (pkgcache.Service, func(), error) {
	c := cfg.Cache
	var svc pkgcache.Service
	switch c.Backend {
	case "redis", "layered":
		rc, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisAddr(c.Redis.Addr),
			pkgcache.WithRedisPassword(c.Redis.Password),
			pkgcache.WithRedisDB(c.Redis.DB),
			pkgcache.WithRedisPool(c.Redis.PoolSize, 2, 5*time.Second),
			pkgcache.WithRedisPrefix(c.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = rc
		if c.Backend == "layered" {
			svc = pkgcache.NewLayeredCache(rc,
				pkgcache.WithLayeredMemorySize(c.MemoryMaxSize),
				pkgcache.WithLayeredMemoryTTL(c.MemoryTTL),
			)
		}
	default:
		svc = pkgcache.NewMemoryCache(
			pkgcache.WithMemoryMaxSize(c.MemoryMaxSize),
			pkgcache.WithMemoryCleanup(c.CleanupInterval),
		)
	}
	return svc, func() { _ = svc.Close() }, nil
}

// ProvideStateStore keeps position, latest report and cycle lock in the cache backend.
func ProvideStateStore(cfg *config.Config, svc pkgcache.Service) *internalrepo.CacheStateStore {
	return internalrepo.NewCacheStateStore(svc, cfg.Pair.Name(), cfg.Cache.ReportTTL, cfg.Cache.JournalSize)
}

// ProvidePriceStore uses ClickHouse when enabled and the cache backend otherwise.
// Schemas are applied by App.Migrate.
func ProvidePriceStore(cfg *config.Config, svc pkgcache.Service, log *logger.Logger) (domrepo.PriceStore, func(), error) {
	if !cfg.ClickHouse.Enabled {
		s := internalrepo.NewCachePriceStore(svc, cfg.Pair.Name(), 0)
		return s, func() {}, nil
	}
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithAddr(ch.Addr...),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(4, 2),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, true),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	s := internalrepo.NewCHPriceStore(client, cfg.Pair.Name(), domrepo.NormalizeInterval(cfg.MarketData.Interval), log)
	return s, func() {
		if err := s.Close(); err != nil {
			log.Warn("clickhouse close error", logger.Error(err))
		}
	}, nil
}

// ProvideTransitionJournal uses Postgres when enabled, else the capped list in the state store.
func ProvideTransitionJournal(cfg *config.Config, state *internalrepo.CacheStateStore, log *logger.Logger) (domrepo.TransitionJournal, func(), error) {
	if !cfg.Postgres.Enabled {
		return state, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := pkgpg.NewClient(ctx, cfg.Postgres.DSN,
		pkgpg.WithPool(cfg.Postgres.MaxConns, cfg.Postgres.MinConns),
		pkgpg.WithConnectTimeout(5*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres client: %w", err)
	}
	return internalrepo.NewPGTransitionJournal(client, cfg.Pair.Name(), log), client.Close, nil
}

// ProvideMigrators collects the stores that own a schema.
func ProvideMigrators(prices domrepo.PriceStore, journal domrepo.TransitionJournal) []server.Migrator {
	out := []server.Migrator{prices}
	if m, ok := journal.(server.Migrator); ok {
		out = append(out, m)
	}
	return out
}

// ProvideMarketData creates the rate-limited, breaker-guarded history client.
func ProvideMarketData(cfg *config.Config, log *logger.Logger) *marketdata.Yahoo {
	md := cfg.MarketData
	return marketdata.NewYahoo(marketdata.Config{
		BaseURL:          md.BaseURL,
		Timeout:          md.Timeout,
		Retries:          md.Retries,
		UserAgent:        md.UserAgent,
		RatePerSecond:    md.RatePerSecond,
		Burst:            md.Burst,
		BreakerRequests:  md.Breaker.MaxRequests,
		BreakerInterval:  md.Breaker.Interval,
		BreakerTimeout:   md.Breaker.Timeout,
		FailureThreshold: md.Breaker.FailureThreshold,
	}, log)
}

func ProvideQuoteBook(cfg *config.Config) *icache.QuoteBook {
	return icache.NewQuoteBook(cfg.Finnhub.QuoteTTL)
}

// ProvideNotifiers returns the enabled delivery channels, possibly none.
func ProvideNotifiers(cfg *config.Config) []domsvc.Notifier {
	n := cfg.Notify
	o := notify.Options{Timeout: n.Timeout, Retries: n.Retries}
	var out []domsvc.Notifier
	if n.Bark.Enabled {
		out = append(out, notify.NewBark(n.Bark.URL, n.Bark.Key, o))
	}
	if n.Telegram.Enabled {
		out = append(out, notify.NewTelegram(n.Telegram.BaseURL, n.Telegram.Token, n.Telegram.ChatID, o))
	}
	return out
}

func ProvideDeliveryHandler(cfg *config.Config, notifiers []domsvc.Notifier, m domrepo.Metrics, log *logger.Logger) *usecase.ReportDeliveryHandler {
	return usecase.NewReportDeliveryHandler(cfg.Kafka.ReportsTopic, notifiers, cfg.Notify.Cooldown, m, log)
}

// ProvideReportPublisher publishes to Kafka when enabled, else delivers in process.
func ProvideReportPublisher(cfg *config.Config, delivery *usecase.ReportDeliveryHandler, log *logger.Logger) (domrepo.ReportPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NewLocalPublisher(delivery), func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(5),
		pkgkafka.WithWriteTimeout(10*time.Second),
		pkgkafka.WithBatchTimeout(50*time.Millisecond),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaReportPublisher(producer, cfg.Kafka.ReportsTopic, cfg.Pair.Name()), func() {
		if err := producer.Close(); err != nil {
			log.Warn("kafka producer close error", logger.Error(err))
		}
	}, nil
}

// ProvideConsumer returns nil when Kafka is disabled.
func ProvideConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	kc := cfg.Kafka.Consumer
	c, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(kc.GroupID),
		pkgkafka.WithConsumerWorkers(kc.Workers),
		pkgkafka.WithConsumerRetry(kc.RetryMax, kc.BackoffMin, kc.BackoffMax),
		pkgkafka.WithConsumerDLQ(kc.DLQTopic),
		pkgkafka.WithConsumerFetch(1, 1<<20),
		pkgkafka.WithConsumerBufferSize(16),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return c, nil
}

func ProvideRefresher(cfg *config.Config, provider domrepo.MarketDataProvider, store domrepo.PriceStore, m domrepo.Metrics, log *logger.Logger) *usecase.BaselineRefresher {
	return usecase.NewBaselineRefresher(usecase.RefresherConfig{
		Growth:    cfg.Pair.Growth,
		Defensive: cfg.Pair.Defensive,
		Interval:  domrepo.NormalizeInterval(cfg.MarketData.Interval),
		Bars:      cfg.MarketData.Bars,
		Freshness: cfg.MarketData.FreshnessWindow,
	}, provider, store, m, log)
}

func ProvideEvaluator(
	cfg *config.Config,
	engines usecase.Engines,
	provider domrepo.MarketDataProvider,
	refresher *usecase.BaselineRefresher,
	state domrepo.StateStore,
	journal domrepo.TransitionJournal,
	publisher domrepo.ReportPublisher,
	quotes domrepo.QuoteBook,
	m domrepo.Metrics,
	log *logger.Logger,
) *usecase.CycleEvaluator {
	return usecase.NewCycleEvaluator(usecase.EvaluatorConfig{
		Pair:           cfg.Pair.Name(),
		Growth:         cfg.Pair.Growth,
		Defensive:      cfg.Pair.Defensive,
		Volatility:     cfg.Pair.Volatility,
		Extra:          extraSymbols(cfg),
		Interval:       domrepo.NormalizeInterval(cfg.MarketData.Interval),
		Bars:           cfg.MarketData.Bars,
		VolatilityBars: cfg.MarketData.VolatilityBars,
		LockTTL:        cfg.Schedule.LockTTL,
	}, engines, provider, refresher, state, journal, publisher, quotes, m, log)
}

func ProvideScheduler(cfg *config.Config, evaluator *usecase.CycleEvaluator, m domrepo.Metrics, log *logger.Logger) (*usecase.Scheduler, error) {
	s := cfg.Schedule
	cadence, err := usecase.NewCadence(s.Timezone, s.MarketHoursInterval, s.OffHoursInterval, s.WeekendInterval)
	if err != nil {
		return nil, err
	}
	return usecase.NewScheduler(evaluator, cadence, usecase.SchedulerConfig{
		RetryInterval:         s.RetryInterval,
		CycleTimeout:          s.CycleTimeout,
		OnlyDuringMarketHours: s.OnlyDuringMarketHours,
	}, m, log), nil
}

// ProvideQuoteCollector returns nil when the live feed is disabled.
func ProvideQuoteCollector(cfg *config.Config, book domrepo.QuoteBook, m domrepo.Metrics, log *logger.Logger) *usecase.QuoteCollector {
	f := cfg.Finnhub
	if !f.Enabled {
		return nil
	}
	stream := finnhub.New(finnhub.Config{
		APIKey:         f.APIKey,
		WebSocketURL:   f.WebSocketURL,
		Symbols:        f.Symbols,
		ReconnectDelay: f.ReconnectDelay,
		PingInterval:   f.PingInterval,
	}, log)
	pipe := mid.NewQuotePipeline(book, m, mid.WithMinInterval(f.MinInterval), mid.WithMaxJumpPct(f.MaxJumpPct))
	return usecase.NewQuoteCollector(stream, pipe, m, log)
}

func ProvideHistory(store domrepo.PriceStore, journal domrepo.TransitionJournal) *usecase.HistoryUseCase {
	return usecase.NewHistoryUseCase(store, journal)
}

// ProvideHTTPHandler wires the REST API with response caching and a trigger limiter.
func ProvideHTTPHandler(
	cfg *config.Config,
	log *logger.Logger,
	svc pkgcache.Service,
	state domrepo.StateStore,
	prices domrepo.PriceStore,
	history *usecase.HistoryUseCase,
	evaluator *usecase.CycleEvaluator,
) *api.MarketFlowHandler {
	h := api.NewMarketFlowHandler(log, state, history, evaluator,
		ratelimit.New(cfg.API.TriggerRate, cfg.API.TriggerBurst),
		api.HealthCheck{Name: "cache", Check: svc.Ping},
		api.HealthCheck{Name: "prices", Check: prices.Health},
	)
	h.SetCache(icache.NewServiceCache(svc, "api"), 5*time.Minute)
	return h
}

func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, h *api.MarketFlowHandler) *xhttp.Server {
	s := cfg.Server
	return xhttp.NewServer(log, []xhttp.Handler{h},
		xhttp.WithHost(s.Host),
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithSlowThreshold(s.SlowThreshold),
		xhttp.WithCORS(s.CORS, s.CORSOrigins...),
	)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	evaluator *usecase.CycleEvaluator,
	scheduler *usecase.Scheduler,
	consumer *pkgkafka.Consumer,
	delivery *usecase.ReportDeliveryHandler,
	collector *usecase.QuoteCollector,
	httpServer *xhttp.Server,
	migrators []server.Migrator,
) *server.App {
	return server.New(cfg, log, evaluator, scheduler, consumer, delivery, collector, httpServer, migrators)
}
