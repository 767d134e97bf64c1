package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketFlow/internal/domain/models"
	drepo "MarketFlow/internal/domain/repository"
	"MarketFlow/pkg/logger"
)

// Cadence picks the wait before the next cycle from the US equity session:
// dense while the market is open, sparse outside hours and on weekends.
// Exchange holidays are treated as trading days.
type Cadence struct {
	loc     *time.Location
	market  time.Duration
	off     time.Duration
	weekend time.Duration
}

const (
	sessionOpen  = 9*time.Hour + 30*time.Minute
	sessionClose = 16 * time.Hour
)

func NewCadence(timezone string, market, off, weekend time.Duration) (*Cadence, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Cadence{loc: loc, market: market, off: off, weekend: weekend}, nil
}

func isWeekend(d time.Weekday) bool { return d == time.Saturday || d == time.Sunday }

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond())
}

// InMarketHours reports whether t falls in 09:30-16:00 local exchange time, Monday to Friday.
func (c *Cadence) InMarketHours(t time.Time) bool {
	local := t.In(c.loc)
	if isWeekend(local.Weekday()) {
		return false
	}
	d := sinceMidnight(local)
	return d >= sessionOpen && d < sessionClose
}

// NextOpen is the next session open strictly after t.
func (c *Cadence) NextOpen(t time.Time) time.Time {
	local := t.In(c.loc)
	for i := 0; i < 8; i++ {
		open := time.Date(local.Year(), local.Month(), local.Day()+i, 9, 30, 0, 0, c.loc)
		if isWeekend(open.Weekday()) {
			continue
		}
		if open.After(local) {
			return open
		}
	}
	return local.Add(c.weekend)
}

// Next is the wait after a cycle at now. Outside hours the wait is capped so
// the first cycle of a session runs at the open.
func (c *Cadence) Next(now time.Time) time.Duration {
	if c.InMarketHours(now) {
		return c.market
	}
	wait := c.off
	if isWeekend(now.In(c.loc).Weekday()) {
		wait = c.weekend
	}
	if untilOpen := c.NextOpen(now).Sub(now); untilOpen > 0 && untilOpen < wait {
		return untilOpen
	}
	return wait
}

// CycleRunner is the evaluation the scheduler drives.
type CycleRunner interface {
	Evaluate(ctx context.Context) (*models.CycleReport, error)
}

type SchedulerConfig struct {
	RetryInterval         time.Duration
	CycleTimeout          time.Duration
	OnlyDuringMarketHours bool
}

// Scheduler loops the evaluator on the cadence. Trigger wakes it early.
type Scheduler struct {
	runner  CycleRunner
	cadence *Cadence
	cfg     SchedulerConfig
	metrics drepo.Metrics
	log     *logger.Logger
	now     func() time.Time
	wake    chan struct{}
}

func NewScheduler(runner CycleRunner, cadence *Cadence, cfg SchedulerConfig, metrics drepo.Metrics, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		runner:  runner,
		cadence: cadence,
		cfg:     cfg,
		metrics: metrics,
		log:     log,
		now:     time.Now,
		wake:    make(chan struct{}, 1),
	}
}

// Trigger requests an immediate cycle. It returns false when one is already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.wake <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run blocks until ctx is cancelled. The first cycle runs immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", logger.Bool("only_market_hours", s.cfg.OnlyDuringMarketHours))
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-timer.C:
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		wait := s.RunOnce(ctx)
		s.log.Debug("next cycle scheduled", logger.Duration("in", wait))
		timer.Reset(wait)
	}
}

// RunOnce evaluates one cycle when allowed and returns the wait before the next.
func (s *Scheduler) RunOnce(ctx context.Context) time.Duration {
	now := s.now()
	if s.cfg.OnlyDuringMarketHours && !s.cadence.InMarketHours(now) {
		s.log.Debug("outside market hours, skipping cycle")
		return s.cadence.Next(now)
	}

	cctx := ctx
	if s.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.cfg.CycleTimeout)
		defer cancel()
	}
	_, err := s.runner.Evaluate(cctx)
	switch {
	case err == nil:
		return s.cadence.Next(s.now())
	case errors.Is(err, ErrCycleInProgress):
		s.log.Info("cycle skipped, another evaluation holds the lock")
	case errors.Is(err, models.ErrInvalidStateTransition):
		s.metrics.RecordError("invalid_state")
		s.log.Error("persisted position is corrupt, manual intervention required", logger.Error(err))
	default:
		s.metrics.RecordError("cycle")
		s.log.Error("cycle failed, retrying", logger.Error(err), logger.Duration("retry_in", s.cfg.RetryInterval))
	}
	return s.cfg.RetryInterval
}
