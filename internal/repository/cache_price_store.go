package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"MarketFlow/internal/domain/models"
	pkgcache "MarketFlow/pkg/cache"
)

// CachePriceStore keeps price and ratio history in the cache service. It is
// used when ClickHouse is disabled; each symbol's series is one key.
type CachePriceStore struct {
	svc     pkgcache.Service
	pair    string
	maxKeep int
	now     func() time.Time
	mu      sync.Mutex
}

func NewCachePriceStore(svc pkgcache.Service, pair string, maxKeep int) *CachePriceStore {
	if maxKeep <= 0 {
		maxKeep = 520
	}
	return &CachePriceStore{svc: svc, pair: pair, maxKeep: maxKeep, now: time.Now}
}

func (s *CachePriceStore) key(parts ...string) string {
	return pkgcache.Key(append([]string{"prices", s.pair}, parts...)...)
}

func (s *CachePriceStore) Init(ctx context.Context) error {
	return s.svc.Ping(ctx)
}

// StoreSeries merges points into the stored series; a repeated timestamp takes the new value.
func (s *CachePriceStore) StoreSeries(ctx context.Context, series models.PriceSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored []models.PricePoint
	if err := s.get(ctx, s.key("series", series.Symbol), &stored); err != nil {
		return err
	}
	byTS := make(map[int64]models.PricePoint, len(stored)+len(series.Points))
	for _, p := range stored {
		byTS[p.Timestamp.Unix()] = p
	}
	for _, p := range series.Points {
		byTS[p.Timestamp.Unix()] = models.PricePoint{Timestamp: p.Timestamp.UTC(), Value: p.Value}
	}
	merged := make([]models.PricePoint, 0, len(byTS))
	for _, p := range byTS {
		merged = append(merged, p)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })
	if len(merged) > s.maxKeep {
		merged = merged[len(merged)-s.maxKeep:]
	}
	if err := s.svc.Set(ctx, s.key("series", series.Symbol), merged, 0); err != nil {
		return fmt.Errorf("store series %s: %w", series.Symbol, err)
	}
	return nil
}

func (s *CachePriceStore) LatestSeries(ctx context.Context, symbol string, limit int) (models.PriceSeries, error) {
	var points []models.PricePoint
	if err := s.get(ctx, s.key("series", symbol), &points); err != nil {
		return models.PriceSeries{}, err
	}
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	return models.PriceSeries{Symbol: symbol, Points: points}, nil
}

// StoreRatios replaces the stored ratio history and stamps the update time.
func (s *CachePriceStore) StoreRatios(ctx context.Context, samples []models.RatioSample) error {
	if len(samples) > s.maxKeep {
		samples = samples[len(samples)-s.maxKeep:]
	}
	if err := s.svc.Set(ctx, s.key("ratios"), samples, 0); err != nil {
		return fmt.Errorf("store ratios: %w", err)
	}
	if err := s.svc.Set(ctx, s.key("updated_at"), s.now().UTC(), 0); err != nil {
		return fmt.Errorf("stamp ratios: %w", err)
	}
	return nil
}

func (s *CachePriceStore) LatestRatios(ctx context.Context, limit int) ([]models.RatioSample, error) {
	var samples []models.RatioSample
	if err := s.get(ctx, s.key("ratios"), &samples); err != nil {
		return nil, err
	}
	if limit > 0 && len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	return samples, nil
}

func (s *CachePriceStore) LastUpdated(ctx context.Context) (time.Time, error) {
	var t time.Time
	if err := s.get(ctx, s.key("updated_at"), &t); err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func (s *CachePriceStore) Health(ctx context.Context) error {
	return s.svc.Ping(ctx)
}

// Close is a no-op; the cache service is shared and closed by its owner.
func (s *CachePriceStore) Close() error { return nil }

// get treats a miss as an empty value.
func (s *CachePriceStore) get(ctx context.Context, key string, dest interface{}) error {
	err := s.svc.Get(ctx, key, dest)
	if err == nil || errors.Is(err, pkgcache.ErrCacheMiss) {
		return nil
	}
	return fmt.Errorf("cache get %s: %w", key, err)
}
