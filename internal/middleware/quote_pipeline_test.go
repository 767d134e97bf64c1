package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketFlow/internal/domain/models"
	"MarketFlow/internal/service/cache"
	"MarketFlow/pkg/metrics"
)

func newPipeline(now time.Time) (*QuotePipeline, *cache.QuoteBook) {
	book := cache.NewQuoteBook(time.Hour)
	p := NewQuotePipeline(book, metrics.Nop{}, WithMinInterval(time.Second), WithMaxJumpPct(10))
	p.now = func() time.Time { return now }
	return p, book
}

func TestQuotePipeline_AcceptsAndThrottles(t *testing.T) {
	now := time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)
	p, book := newPipeline(now)

	require.NoError(t, p.Process(&models.Quote{Symbol: "QQQ", Price: 440, Timestamp: now}))
	err := p.Process(&models.Quote{Symbol: "QQQ", Price: 441, Timestamp: now.Add(200 * time.Millisecond)})
	assert.True(t, errors.Is(err, ErrThrottled))

	require.NoError(t, p.Process(&models.Quote{Symbol: "QQQ", Price: 442, Timestamp: now.Add(2 * time.Second)}))
	q, ok := book.Latest("QQQ")
	require.True(t, ok)
	assert.Equal(t, 442.0, q.Price)
}

func TestQuotePipeline_RejectsOutliersAndGarbage(t *testing.T) {
	now := time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)
	p, book := newPipeline(now)

	require.NoError(t, p.Process(&models.Quote{Symbol: "SPY", Price: 500, Timestamp: now}))
	err := p.Process(&models.Quote{Symbol: "SPY", Price: 5, Timestamp: now.Add(time.Minute)})
	assert.True(t, errors.Is(err, ErrOutlier))

	assert.Error(t, p.Process(nil))
	assert.Error(t, p.Process(&models.Quote{Symbol: "", Price: 1, Timestamp: now}))
	assert.Error(t, p.Process(&models.Quote{Symbol: "SPY", Price: -1, Timestamp: now.Add(time.Hour)}))
	assert.Error(t, p.Process(&models.Quote{Symbol: "SPY", Price: 501, Timestamp: now.Add(24 * time.Hour)}))

	q, _ := book.Latest("SPY")
	assert.Equal(t, 500.0, q.Price)
}
