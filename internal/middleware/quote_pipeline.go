package middleware

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"MarketFlow/internal/domain/models"
	domrepo "MarketFlow/internal/domain/repository"
)

var (
	ErrThrottled = errors.New("quote throttled")
	ErrOutlier   = errors.New("quote rejected as outlier")
)

// QuotePipeline sits between the live stream and the quote book. It validates
// quotes, throttles each symbol to one accepted quote per MinInterval and
// rejects prints that jump further than MaxJumpPct from the last accepted one.
type QuotePipeline struct {
	book       domrepo.QuoteBook
	metrics    domrepo.Metrics
	minGap     time.Duration
	maxJumpPct float64
	maxSkew    time.Duration
	now        func() time.Time

	mu   sync.Mutex
	last map[string]models.Quote
}

type PipelineOption func(*QuotePipeline)

// WithMinInterval sets the minimum gap between accepted quotes per symbol.
func WithMinInterval(d time.Duration) PipelineOption {
	return func(p *QuotePipeline) {
		if d >= 0 {
			p.minGap = d
		}
	}
}

// WithMaxJumpPct sets the outlier threshold; 0 disables the check.
func WithMaxJumpPct(pct float64) PipelineOption {
	return func(p *QuotePipeline) {
		if pct >= 0 {
			p.maxJumpPct = pct
		}
	}
}

// NewQuotePipeline creates a new pipeline.
func NewQuotePipeline(book domrepo.QuoteBook, metrics domrepo.Metrics, opts ...PipelineOption) *QuotePipeline {
	p := &QuotePipeline{
		book:       book,
		metrics:    metrics,
		minGap:     time.Second,
		maxJumpPct: 20,
		maxSkew:    time.Minute,
		now:        time.Now,
		last:       make(map[string]models.Quote),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates, throttles and forwards q to the quote book.
func (p *QuotePipeline) Process(q *models.Quote) error {
	start := p.now()
	if err := p.validate(q, start); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	p.mu.Lock()
	prev, seen := p.last[q.Symbol]
	if seen {
		if q.Timestamp.Sub(prev.Timestamp) < p.minGap {
			p.mu.Unlock()
			p.metrics.RecordError("pipeline_throttle")
			return ErrThrottled
		}
		if p.maxJumpPct > 0 && math.Abs(q.Price/prev.Price-1)*100 > p.maxJumpPct {
			p.mu.Unlock()
			p.metrics.RecordError("pipeline_outlier")
			return fmt.Errorf("%w: %s %.4f after %.4f", ErrOutlier, q.Symbol, q.Price, prev.Price)
		}
	}
	p.last[q.Symbol] = *q
	p.mu.Unlock()

	p.book.Update(*q)
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return nil
}

func (p *QuotePipeline) validate(q *models.Quote, now time.Time) error {
	if q == nil {
		return errors.New("quote nil")
	}
	if q.Symbol == "" {
		return errors.New("symbol empty")
	}
	if q.Timestamp.IsZero() || q.Timestamp.After(now.Add(p.maxSkew)) {
		return fmt.Errorf("timestamp invalid: %s", q.Timestamp)
	}
	if q.Price <= 0 || math.IsNaN(q.Price) || math.IsInf(q.Price, 0) || q.Volume < 0 {
		return fmt.Errorf("price/volume invalid: %v/%v", q.Price, q.Volume)
	}
	return nil
}
