package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"MarketFlow/internal/domain/models"
	domrepo "MarketFlow/internal/domain/repository"
	pkgch "MarketFlow/pkg/clickhouse"
	applogger "MarketFlow/pkg/logger"
)

// PriceSchema creates the ClickHouse tables. ReplacingMergeTree keeps the
// newest insert per key so re-fetching a week overwrites its close.
var PriceSchema = []string{
	`CREATE TABLE IF NOT EXISTS weekly_prices (
		symbol      LowCardinality(String),
		interval    LowCardinality(String),
		ts          DateTime('UTC'),
		close       Float64,
		inserted_at DateTime('UTC') DEFAULT now()
	) ENGINE = ReplacingMergeTree(inserted_at)
	ORDER BY (symbol, interval, ts)`,
	`CREATE TABLE IF NOT EXISTS ratio_samples (
		pair        LowCardinality(String),
		ts          DateTime('UTC'),
		n           Float64,
		inserted_at DateTime('UTC') DEFAULT now()
	) ENGINE = ReplacingMergeTree(inserted_at)
	ORDER BY (pair, ts)`,
}

// CHPriceStore implements PriceStore backed by ClickHouse.
type CHPriceStore struct {
	client   *pkgch.Client
	db       *sql.DB
	pair     string
	interval domrepo.Interval
	l        *applogger.Logger
}

func NewCHPriceStore(ch *pkgch.Client, pair string, interval domrepo.Interval, l *applogger.Logger) *CHPriceStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHPriceStore{client: ch, db: ch.DB(), pair: pair, interval: interval, l: l}
}

func (s *CHPriceStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, PriceSchema)
}

func (s *CHPriceStore) StoreSeries(ctx context.Context, series models.PriceSeries) error {
	rows := make([][]any, 0, len(series.Points))
	for _, p := range series.Points {
		rows = append(rows, []any{series.Symbol, string(s.interval), p.Timestamp.UTC(), p.Value})
	}
	err := s.client.InsertBatch(ctx, "INSERT INTO weekly_prices (symbol, interval, ts, close) VALUES (?, ?, ?, ?)", rows)
	if err != nil {
		s.l.Error("clickhouse store_series error", applogger.String("symbol", series.Symbol), applogger.Error(err))
		return fmt.Errorf("store series %s: %w", series.Symbol, err)
	}
	return nil
}

func (s *CHPriceStore) LatestSeries(ctx context.Context, symbol string, limit int) (models.PriceSeries, error) {
	const q = `
		SELECT ts, close FROM weekly_prices FINAL
		WHERE symbol = ? AND interval = ?
		ORDER BY ts DESC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, symbol, string(s.interval), limit)
	if err != nil {
		s.l.Error("clickhouse latest_series query error", applogger.String("symbol", symbol), applogger.Error(err))
		return models.PriceSeries{}, fmt.Errorf("latest series %s: %w", symbol, err)
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return models.PriceSeries{}, fmt.Errorf("scan price: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return models.PriceSeries{}, fmt.Errorf("rows: %w", err)
	}
	reversePoints(points)
	return models.PriceSeries{Symbol: symbol, Points: points}, nil
}

func (s *CHPriceStore) StoreRatios(ctx context.Context, samples []models.RatioSample) error {
	rows := make([][]any, 0, len(samples))
	for _, r := range samples {
		rows = append(rows, []any{s.pair, r.Timestamp.UTC(), r.N})
	}
	if err := s.client.InsertBatch(ctx, "INSERT INTO ratio_samples (pair, ts, n) VALUES (?, ?, ?)", rows); err != nil {
		s.l.Error("clickhouse store_ratios error", applogger.String("pair", s.pair), applogger.Error(err))
		return fmt.Errorf("store ratios: %w", err)
	}
	return nil
}

func (s *CHPriceStore) LatestRatios(ctx context.Context, limit int) ([]models.RatioSample, error) {
	const q = `
		SELECT ts, n FROM ratio_samples FINAL
		WHERE pair = ?
		ORDER BY ts DESC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, s.pair, limit)
	if err != nil {
		return nil, fmt.Errorf("latest ratios: %w", err)
	}
	defer rows.Close()

	var out []models.RatioSample
	for rows.Next() {
		var r models.RatioSample
		if err := rows.Scan(&r.Timestamp, &r.N); err != nil {
			return nil, fmt.Errorf("scan ratio: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LastUpdated is the newest ratio insert; zero when nothing is stored.
func (s *CHPriceStore) LastUpdated(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `SELECT max(inserted_at) FROM ratio_samples WHERE pair = ?`, s.pair).Scan(&t)
	if err != nil {
		return time.Time{}, fmt.Errorf("last updated: %w", err)
	}
	if t.Unix() <= 0 {
		return time.Time{}, nil
	}
	return t.UTC(), nil
}

func (s *CHPriceStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *CHPriceStore) Close() error {
	return s.client.Close()
}

func reversePoints(p []models.PricePoint) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}
