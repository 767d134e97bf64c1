package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MarketFlow/internal/domain/models"
	domrepo "MarketFlow/internal/domain/repository"
	pkgcache "MarketFlow/pkg/cache"
)

// CacheStateStore keeps the position, the latest report and a capped transition
// journal for one pair in the cache service. The cycle lock uses TryLock so
// that two processes sharing Redis never evaluate the same pair concurrently.
type CacheStateStore struct {
	svc         pkgcache.Service
	pair        string
	reportTTL   time.Duration
	journalSize int
	mu          sync.Mutex
}

func NewCacheStateStore(svc pkgcache.Service, pair string, reportTTL time.Duration, journalSize int) *CacheStateStore {
	if journalSize <= 0 {
		journalSize = 500
	}
	return &CacheStateStore{svc: svc, pair: pair, reportTTL: reportTTL, journalSize: journalSize}
}

func (s *CacheStateStore) key(name string) string {
	return pkgcache.Key("state", s.pair, name)
}

// LoadPosition returns Cash when nothing was saved. A stored value outside the
// enumeration is returned as-is; the state machine reports it.
func (s *CacheStateStore) LoadPosition(ctx context.Context) (models.PositionState, error) {
	var st models.PositionState
	err := s.svc.Get(ctx, s.key("position"), &st)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return models.PositionState{Position: models.Cash}, nil
	}
	if err != nil {
		return models.PositionState{}, fmt.Errorf("load position: %w", err)
	}
	return st, nil
}

func (s *CacheStateStore) SavePosition(ctx context.Context, st models.PositionState) error {
	if err := s.svc.Set(ctx, s.key("position"), st, 0); err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

func (s *CacheStateStore) SaveReport(ctx context.Context, report *models.CycleReport) error {
	if err := s.svc.Set(ctx, s.key("report:latest"), report, s.reportTTL); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (s *CacheStateStore) LatestReport(ctx context.Context) (*models.CycleReport, error) {
	var r models.CycleReport
	err := s.svc.Get(ctx, s.key("report:latest"), &r)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return nil, domrepo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest report: %w", err)
	}
	return &r, nil
}

func (s *CacheStateStore) AcquireCycleLock(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := s.svc.TryLock(ctx, s.key("lock"), ttl)
	if err != nil {
		return false, fmt.Errorf("acquire cycle lock: %w", err)
	}
	return ok, nil
}

// ReleaseCycleLock tolerates a lock that already expired.
func (s *CacheStateStore) ReleaseCycleLock(ctx context.Context) error {
	err := s.svc.Unlock(ctx, s.key("lock"))
	if err != nil && !errors.Is(err, pkgcache.ErrNotLocked) {
		return fmt.Errorf("release cycle lock: %w", err)
	}
	return nil
}

// Append adds records to the journal, keeping the newest journalSize entries.
func (s *CacheStateStore) Append(ctx context.Context, records ...models.TransitionRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	journal, err := s.journal(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(journal))
	for _, r := range journal {
		seen[r.ID] = struct{}{}
	}
	for _, r := range records {
		if _, dup := seen[r.ID]; dup && r.ID != "" {
			continue
		}
		seen[r.ID] = struct{}{}
		journal = append(journal, r)
	}
	if len(journal) > s.journalSize {
		journal = journal[len(journal)-s.journalSize:]
	}
	if err := s.svc.Set(ctx, s.key("transitions"), journal, 0); err != nil {
		return fmt.Errorf("append transitions: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *CacheStateStore) Recent(ctx context.Context, limit int) ([]models.TransitionRecord, error) {
	journal, err := s.journal(ctx)
	if err != nil {
		return nil, err
	}
	n := len(journal)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.TransitionRecord, 0, n)
	for i := len(journal) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, journal[i])
	}
	return out, nil
}

func (s *CacheStateStore) journal(ctx context.Context) ([]models.TransitionRecord, error) {
	var journal []models.TransitionRecord
	err := s.svc.Get(ctx, s.key("transitions"), &journal)
	if err != nil && !errors.Is(err, pkgcache.ErrCacheMiss) {
		return nil, fmt.Errorf("read transitions: %w", err)
	}
	return journal, nil
}
