package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"MarketFlow/internal/domain/models"
	applogger "MarketFlow/pkg/logger"
	pkgpg "MarketFlow/pkg/postgres"
)

// JournalSchema is the append-only audit table. Rows are never updated.
var JournalSchema = []string{
	`CREATE TABLE IF NOT EXISTS position_transitions (
		id          UUID PRIMARY KEY,
		pair        TEXT NOT NULL,
		from_state  TEXT NOT NULL,
		to_state    TEXT NOT NULL,
		symbol      TEXT NOT NULL DEFAULT '',
		trigger     TEXT NOT NULL,
		detail      TEXT NOT NULL DEFAULT '',
		ts          TIMESTAMPTZ NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (from_state = 'cash' OR to_state = 'cash')
	)`,
	`CREATE INDEX IF NOT EXISTS position_transitions_pair_ts ON position_transitions (pair, ts DESC)`,
}

// PGTransitionJournal implements TransitionJournal on PostgreSQL.
type PGTransitionJournal struct {
	client *pkgpg.Client
	pair   string
	l      *applogger.Logger
}

func NewPGTransitionJournal(client *pkgpg.Client, pair string, l *applogger.Logger) *PGTransitionJournal {
	if l == nil {
		l = applogger.Nop()
	}
	return &PGTransitionJournal{client: client, pair: pair, l: l}
}

func (j *PGTransitionJournal) Init(ctx context.Context) error {
	return j.client.InitSchema(ctx, JournalSchema)
}

// Append inserts records in one batch. Replayed IDs are ignored.
func (j *PGTransitionJournal) Append(ctx context.Context, records ...models.TransitionRecord) error {
	if len(records) == 0 {
		return nil
	}
	const q = `
		INSERT INTO position_transitions (id, pair, from_state, to_state, symbol, trigger, detail, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(q, r.ID, j.pair, string(r.From), string(r.To), r.Symbol, string(r.Trigger), r.Detail, r.Timestamp.UTC())
	}
	br := j.client.Pool().SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			j.l.Error("postgres append transition error", applogger.String("pair", j.pair), applogger.Error(err))
			return fmt.Errorf("append transitions: %w", err)
		}
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (j *PGTransitionJournal) Recent(ctx context.Context, limit int) ([]models.TransitionRecord, error) {
	const q = `
		SELECT id::text, from_state, to_state, symbol, trigger, detail, ts
		FROM position_transitions
		WHERE pair = $1
		ORDER BY ts DESC
		LIMIT $2`
	rows, err := j.client.Pool().Query(ctx, q, j.pair, limit)
	if err != nil {
		return nil, fmt.Errorf("recent transitions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TransitionRecord, error) {
		var (
			r                 models.TransitionRecord
			from, to, trigger string
		)
		if err := row.Scan(&r.ID, &from, &to, &r.Symbol, &trigger, &r.Detail, &r.Timestamp); err != nil {
			return r, err
		}
		r.From = models.Position(from)
		r.To = models.Position(to)
		r.Trigger = models.Trigger(trigger)
		r.Timestamp = r.Timestamp.UTC()
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan transitions: %w", err)
	}
	return out, nil
}
