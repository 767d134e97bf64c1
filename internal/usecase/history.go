package usecase

import (
	"context"

	"MarketFlow/internal/domain/models"
	drepo "MarketFlow/internal/domain/repository"
)

// HistoryUseCase serves stored weekly series and ratio samples.
type HistoryUseCase struct {
	store   drepo.PriceStore
	journal drepo.TransitionJournal
}

func NewHistoryUseCase(store drepo.PriceStore, journal drepo.TransitionJournal) *HistoryUseCase {
	return &HistoryUseCase{store: store, journal: journal}
}

// Series returns up to limit stored bars for symbol, ErrNotFound when none are stored.
func (u *HistoryUseCase) Series(ctx context.Context, symbol string, limit int) (models.PriceSeries, error) {
	s, err := u.store.LatestSeries(ctx, symbol, limit)
	if err != nil {
		return models.PriceSeries{}, err
	}
	if s.Len() == 0 {
		return models.PriceSeries{}, drepo.ErrNotFound
	}
	return s, nil
}

func (u *HistoryUseCase) Ratios(ctx context.Context, limit int) ([]models.RatioSample, error) {
	return u.store.LatestRatios(ctx, limit)
}

// Transitions returns the newest journal entries first.
func (u *HistoryUseCase) Transitions(ctx context.Context, limit int) ([]models.TransitionRecord, error) {
	return u.journal.Recent(ctx, limit)
}
