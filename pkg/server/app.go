package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"MarketFlow/internal/domain/models"
	"MarketFlow/internal/usecase"
	"MarketFlow/pkg/config"
	xhttp "MarketFlow/pkg/http"
	pkgkafka "MarketFlow/pkg/kafka"
	applogger "MarketFlow/pkg/logger"
)

// Migrator is a store that owns a schema.
type Migrator interface {
	Init(ctx context.Context) error
}

// App encapsulates the entire application lifecycle. Consumer and collector
// are nil when Kafka or the live feed are disabled.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	evaluator  *usecase.CycleEvaluator
	scheduler  *usecase.Scheduler
	consumer   *pkgkafka.Consumer
	delivery   pkgkafka.MessageHandler
	collector  *usecase.QuoteCollector
	httpServer *xhttp.Server
	migrators  []Migrator
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	evaluator *usecase.CycleEvaluator,
	scheduler *usecase.Scheduler,
	consumer *pkgkafka.Consumer,
	delivery pkgkafka.MessageHandler,
	collector *usecase.QuoteCollector,
	httpServer *xhttp.Server,
	migrators []Migrator,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		evaluator:  evaluator,
		scheduler:  scheduler,
		consumer:   consumer,
		delivery:   delivery,
		collector:  collector,
		httpServer: httpServer,
		migrators:  migrators,
	}
}

// Migrate applies every store schema. Statements are idempotent.
func (a *App) Migrate(ctx context.Context) error {
	for _, m := range a.migrators {
		if err := m.Init(ctx); err != nil {
			return err
		}
	}
	a.log.Info("schema ready", applogger.Int("stores", len(a.migrators)))
	return nil
}

// RunCycle evaluates once outside the scheduler.
func (a *App) RunCycle(ctx context.Context, refreshBaseline bool) (*models.CycleReport, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Schedule.CycleTimeout)
	defer cancel()
	return a.evaluator.Run(ctx, refreshBaseline)
}

// Run starts every component and blocks until interrupted or the HTTP server fails.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if a.consumer != nil && a.delivery != nil {
		a.consumer.RegisterHandler(a.delivery)
		a.consumer.WithConsumerHook(pkgkafka.TraceHook())
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.delivery.Topic()))
	}

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			// Live quotes are optional; cycles fall back to closing prices.
			a.log.Error("quote collector start error", applogger.Error(err))
		} else {
			a.log.Info("quote collector started", applogger.Strings("symbols", a.cfg.Finnhub.Symbols))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := a.scheduler.Run(ctx); err != nil {
			a.log.Error("scheduler error", applogger.Error(err))
		}
	}()

	// SIGHUP evaluates immediately instead of waiting for the next slot.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var runErr error
wait:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				a.log.Info("cycle requested", applogger.Bool("queued", a.scheduler.Trigger()))
				continue
			}
			a.log.Info("shutdown signal received", applogger.String("signal", sig.String()))
			break wait
		case err := <-a.httpServer.Err():
			a.log.Error("http server failed", applogger.Error(err))
			runErr = err
			break wait
		}
	}

	cancel()
	a.shutdown(schedDone)
	return runErr
}

// shutdown stops producers of work first, then the delivery side.
func (a *App) shutdown(schedDone <-chan struct{}) {
	a.log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	select {
	case <-schedDone:
	case <-ctx.Done():
		a.log.Warn("scheduler did not stop in time")
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
}
