package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketFlow/internal/domain/models"
	domrepo "MarketFlow/internal/domain/repository"
	pkgcache "MarketFlow/pkg/cache"
)

func newStateStore(t *testing.T, journalSize int) *CacheStateStore {
	t.Helper()
	mc := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mc.Close() })
	return NewCacheStateStore(mc, "QQQ-SPY", time.Hour, journalSize)
}

func TestCacheStateStore_PositionDefaultsToCash(t *testing.T) {
	ctx := context.Background()
	s := newStateStore(t, 10)

	st, err := s.LoadPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Cash, st.Position)

	now := time.Date(2025, 3, 7, 15, 0, 0, 0, time.UTC)
	require.NoError(t, s.SavePosition(ctx, models.PositionState{Position: models.Growth, Symbol: "QQQ", UpdatedAt: now}))

	st, err = s.LoadPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Growth, st.Position)
	assert.Equal(t, "QQQ", st.Symbol)
	assert.True(t, now.Equal(st.UpdatedAt))
}

func TestCacheStateStore_CorruptPositionIsReturnedUnchanged(t *testing.T) {
	ctx := context.Background()
	s := newStateStore(t, 10)

	require.NoError(t, s.SavePosition(ctx, models.PositionState{Position: "leveraged"}))
	st, err := s.LoadPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Position("leveraged"), st.Position)
}

func TestCacheStateStore_LatestReport(t *testing.T) {
	ctx := context.Background()
	s := newStateStore(t, 10)

	_, err := s.LatestReport(ctx)
	assert.ErrorIs(t, err, domrepo.ErrNotFound)

	require.NoError(t, s.SaveReport(ctx, &models.CycleReport{ID: "r1", Current: models.Cash, Reason: "hold"}))
	got, err := s.LatestReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, "hold", got.Reason)
}

func TestCacheStateStore_CycleLock(t *testing.T) {
	ctx := context.Background()
	s := newStateStore(t, 10)

	ok, err := s.AcquireCycleLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireCycleLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseCycleLock(ctx))
	require.NoError(t, s.ReleaseCycleLock(ctx))

	ok, err = s.AcquireCycleLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheStateStore_JournalIsCappedAndNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStateStore(t, 3)

	base := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, models.TransitionRecord{
			ID:        string(rune('a' + i)),
			From:      models.Cash,
			To:        models.Growth,
			Timestamp: base.AddDate(0, 0, 7*i),
		}))
	}

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"e", "d", "c"}, []string{recent[0].ID, recent[1].ID, recent[2].ID})

	recent, err = s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "e", recent[0].ID)
}

func TestCacheStateStore_AppendSkipsKnownIDs(t *testing.T) {
	ctx := context.Background()
	s := newStateStore(t, 10)

	rec := models.TransitionRecord{ID: "t-1", From: models.Cash, To: models.Growth}
	require.NoError(t, s.Append(ctx, rec))
	require.NoError(t, s.Append(ctx, rec, models.TransitionRecord{ID: "t-2", From: models.Growth, To: models.Cash}))

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "t-2", recent[0].ID)
	assert.Equal(t, "t-1", recent[1].ID)
}

func TestCachePriceStore_MergesAndTrims(t *testing.T) {
	ctx := context.Background()
	mc := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mc.Close() })
	s := NewCachePriceStore(mc, "QQQ-SPY", 3)

	week := func(i int) time.Time { return time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*i) }
	require.NoError(t, s.StoreSeries(ctx, models.PriceSeries{Symbol: "QQQ", Points: []models.PricePoint{
		{Timestamp: week(0), Value: 1}, {Timestamp: week(1), Value: 2},
	}}))
	require.NoError(t, s.StoreSeries(ctx, models.PriceSeries{Symbol: "QQQ", Points: []models.PricePoint{
		{Timestamp: week(1), Value: 2.5}, {Timestamp: week(2), Value: 3}, {Timestamp: week(3), Value: 4},
	}}))

	got, err := s.LatestSeries(ctx, "QQQ", 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, 3, 4}, got.Values())
	require.NoError(t, got.Validate())

	got, err = s.LatestSeries(ctx, "QQQ", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, got.Values())

	empty, err := s.LatestSeries(ctx, "SPY", 5)
	require.NoError(t, err)
	assert.Zero(t, empty.Len())

	ts, err := s.LastUpdated(ctx)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	require.NoError(t, s.StoreRatios(ctx, []models.RatioSample{{Timestamp: week(0), N: 1.1}, {Timestamp: week(1), N: 1.2}}))
	ratios, err := s.LatestRatios(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ratios, 1)
	assert.InDelta(t, 1.2, ratios[0].N, 1e-12)

	ts, err = s.LastUpdated(ctx)
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
}
