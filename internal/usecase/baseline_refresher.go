package usecase

import (
	"context"
	"fmt"
	"time"

	"MarketFlow/internal/domain/models"
	drepo "MarketFlow/internal/domain/repository"
	"MarketFlow/internal/services/indicators"
	"MarketFlow/pkg/logger"
)

// BaselineRefresher keeps the stored weekly closes and the ratio samples
// derived from them no older than the freshness window.
type BaselineRefresher struct {
	provider  drepo.MarketDataProvider
	store     drepo.PriceStore
	metrics   drepo.Metrics
	log       *logger.Logger
	growth    string
	defensive string
	interval  drepo.Interval
	bars      int
	freshness time.Duration
	now       func() time.Time
}

type RefresherConfig struct {
	Growth    string
	Defensive string
	Interval  drepo.Interval
	Bars      int
	Freshness time.Duration
}

func NewBaselineRefresher(cfg RefresherConfig, provider drepo.MarketDataProvider, store drepo.PriceStore, metrics drepo.Metrics, log *logger.Logger) *BaselineRefresher {
	if log == nil {
		log = logger.Nop()
	}
	return &BaselineRefresher{
		provider:  provider,
		store:     store,
		metrics:   metrics,
		log:       log,
		growth:    cfg.Growth,
		defensive: cfg.Defensive,
		interval:  cfg.Interval,
		bars:      cfg.Bars,
		freshness: cfg.Freshness,
		now:       time.Now,
	}
}

// Refresh returns the stored ratio samples, re-fetching both legs first when
// the store is empty, stale, or force is set. If the fetch fails but older
// samples exist they are returned and the failure is only logged.
func (r *BaselineRefresher) Refresh(ctx context.Context, force bool) ([]models.RatioSample, error) {
	last, err := r.store.LastUpdated(ctx)
	if err != nil {
		r.log.Warn("price store last_updated failed", logger.Error(err))
	}
	if !force && err == nil && !last.IsZero() && r.now().Sub(last) < r.freshness {
		return r.store.LatestRatios(ctx, r.bars)
	}

	samples, ferr := r.fetch(ctx)
	if ferr == nil {
		return samples, nil
	}
	r.metrics.RecordError("baseline_refresh")
	stored, serr := r.store.LatestRatios(ctx, r.bars)
	if serr != nil || len(stored) == 0 {
		return nil, ferr
	}
	r.log.Warn("baseline refresh failed, using stored samples",
		logger.Error(ferr),
		logger.Int("samples", len(stored)),
		logger.Time("last_updated", last))
	return stored, nil
}

func (r *BaselineRefresher) fetch(ctx context.Context) ([]models.RatioSample, error) {
	start := time.Now()
	growth, err := r.provider.History(ctx, r.growth, r.interval, r.bars)
	if err != nil {
		return nil, fmt.Errorf("refresh %s: %w", r.growth, err)
	}
	defensive, err := r.provider.History(ctx, r.defensive, r.interval, r.bars)
	if err != nil {
		return nil, fmt.Errorf("refresh %s: %w", r.defensive, err)
	}
	for _, s := range []models.PriceSeries{growth, defensive} {
		if err := r.store.StoreSeries(ctx, s); err != nil {
			return nil, err
		}
	}
	samples := indicators.RatioSeries(growth, defensive)
	if err := r.store.StoreRatios(ctx, samples); err != nil {
		return nil, err
	}
	r.metrics.RecordLatency("baseline_refresh", time.Since(start).Seconds())
	r.log.Info("baseline refreshed",
		logger.String("growth", r.growth),
		logger.String("defensive", r.defensive),
		logger.Int("samples", len(samples)))
	return samples, nil
}

// StoredSeries is the fallback when a live fetch fails during a cycle.
func (r *BaselineRefresher) StoredSeries(ctx context.Context, symbol string) (models.PriceSeries, error) {
	return r.store.LatestSeries(ctx, symbol, r.bars)
}
