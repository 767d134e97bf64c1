package repository

import (
	"context"
	"errors"
	"time"

	"MarketFlow/internal/domain/models"
)

// ErrNotFound is returned by stores when nothing has been persisted yet.
var ErrNotFound = errors.New("not found")

// MarketDataProvider supplies ordered, deduplicated history for one symbol.
type MarketDataProvider interface {
	History(ctx context.Context, symbol string, interval Interval, limit int) (models.PriceSeries, error)
}

// MarketStream is the live trade feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// QuoteBook holds the freshest live price per symbol.
type QuoteBook interface {
	Update(q models.Quote)
	Latest(symbol string) (models.Quote, bool)
}

// PriceStore keeps weekly bars and the ratio samples derived from them.
type PriceStore interface {
	Init(ctx context.Context) error
	StoreSeries(ctx context.Context, series models.PriceSeries) error
	LatestSeries(ctx context.Context, symbol string, limit int) (models.PriceSeries, error)
	StoreRatios(ctx context.Context, samples []models.RatioSample) error
	LatestRatios(ctx context.Context, limit int) ([]models.RatioSample, error)
	LastUpdated(ctx context.Context) (time.Time, error)
	Health(ctx context.Context) error
	Close() error
}

// StateStore persists the position between cycles and guards against concurrent cycles.
type StateStore interface {
	LoadPosition(ctx context.Context) (models.PositionState, error)
	SavePosition(ctx context.Context, state models.PositionState) error
	SaveReport(ctx context.Context, report *models.CycleReport) error
	LatestReport(ctx context.Context) (*models.CycleReport, error)
	AcquireCycleLock(ctx context.Context, ttl time.Duration) (bool, error)
	ReleaseCycleLock(ctx context.Context) error
}

// TransitionJournal is the append-only audit trail of accepted transitions.
type TransitionJournal interface {
	Append(ctx context.Context, records ...models.TransitionRecord) error
	Recent(ctx context.Context, limit int) ([]models.TransitionRecord, error)
}

// ReportPublisher hands cycle reports to downstream delivery.
type ReportPublisher interface {
	Publish(ctx context.Context, report *models.CycleReport) error
	Close() error
}

type Metrics interface {
	RecordCycle(outcome string, seconds float64)
	RecordSignalError(signal string)
	RecordRatio(n, v float64)
	RecordSentiment(score float64, level string)
	RecordPosition(position string)
	RecordTransition(from, to string)
	RecordNotification(channel, status string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
