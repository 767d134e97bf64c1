package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"MarketFlow/internal/domain/models"
	drepo "MarketFlow/internal/domain/repository"
	"MarketFlow/internal/services/crossover"
	"MarketFlow/internal/services/indicators"
	"MarketFlow/internal/services/position"
	"MarketFlow/internal/services/sentiment"
	"MarketFlow/pkg/logger"
)

// ErrCycleInProgress is returned when another evaluation holds the pair lock.
var ErrCycleInProgress = errors.New("cycle already in progress")

// EvaluatorConfig names what one cycle fetches.
type EvaluatorConfig struct {
	Pair           string
	Growth         string
	Defensive      string
	Volatility     string
	Extra          []string // hedge and trend symbols outside the pair
	Interval       drepo.Interval
	Bars           int
	VolatilityBars int
	LockTTL        time.Duration
}

// Engines bundles the pure signal components.
type Engines struct {
	Indicators *indicators.Engine
	Sentiment  *sentiment.Scorer
	Crossover  *crossover.Detector
	Position   *position.Machine
}

// CycleEvaluator runs one evaluation cycle end to end.
type CycleEvaluator struct {
	cfg       EvaluatorConfig
	engines   Engines
	provider  drepo.MarketDataProvider
	refresher *BaselineRefresher
	state     drepo.StateStore
	journal   drepo.TransitionJournal
	publisher drepo.ReportPublisher
	quotes    drepo.QuoteBook
	metrics   drepo.Metrics
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
}

func NewCycleEvaluator(
	cfg EvaluatorConfig,
	engines Engines,
	provider drepo.MarketDataProvider,
	refresher *BaselineRefresher,
	state drepo.StateStore,
	journal drepo.TransitionJournal,
	publisher drepo.ReportPublisher,
	quotes drepo.QuoteBook,
	metrics drepo.Metrics,
	log *logger.Logger,
) *CycleEvaluator {
	if log == nil {
		log = logger.Nop()
	}
	return &CycleEvaluator{
		cfg:       cfg,
		engines:   engines,
		provider:  provider,
		refresher: refresher,
		state:     state,
		journal:   journal,
		publisher: publisher,
		quotes:    quotes,
		metrics:   metrics,
		log:       log.With(logger.String("pair", cfg.Pair)),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Evaluate runs a cycle using the stored baseline when it is fresh.
func (e *CycleEvaluator) Evaluate(ctx context.Context) (*models.CycleReport, error) {
	return e.Run(ctx, false)
}

// Run executes one cycle. Signal-level failures are recorded in the report and
// the cycle still decides. A corrupted persisted position aborts the cycle.
func (e *CycleEvaluator) Run(ctx context.Context, refreshBaseline bool) (*models.CycleReport, error) {
	start := e.now()
	ok, err := e.state.AcquireCycleLock(ctx, e.cfg.LockTTL)
	if err != nil {
		e.metrics.RecordCycle("error", 0)
		return nil, err
	}
	if !ok {
		return nil, ErrCycleInProgress
	}
	defer func() {
		if err := e.state.ReleaseCycleLock(context.WithoutCancel(ctx)); err != nil {
			e.log.Warn("release cycle lock failed", logger.Error(err))
		}
	}()

	report, err := e.evaluate(ctx, start, refreshBaseline)
	elapsed := e.now().Sub(start)
	if err != nil {
		outcome := "error"
		if errors.Is(err, models.ErrInvalidStateTransition) {
			outcome = "fatal"
		}
		e.metrics.RecordCycle(outcome, elapsed.Seconds())
		e.log.Error("cycle failed", logger.Error(err), logger.Duration("elapsed", elapsed))
		return nil, err
	}
	report.Duration = elapsed

	outcome := "hold"
	switch {
	case report.Transition != nil:
		outcome = "transition"
	case report.Degraded():
		outcome = "degraded"
	}
	e.metrics.RecordCycle(outcome, elapsed.Seconds())

	if err := e.state.SaveReport(ctx, report); err != nil {
		e.metrics.RecordError("save_report")
		e.log.Error("save report failed", logger.Error(err))
	}
	if err := e.publisher.Publish(ctx, report); err != nil {
		e.metrics.RecordError("publish_report")
		e.log.Error("publish report failed", logger.String("report_id", report.ID), logger.Error(err))
	}

	e.log.Info("cycle complete",
		logger.String("report_id", report.ID),
		logger.String("position", string(report.Current)),
		logger.String("crossover", string(report.Crossover)),
		logger.String("outcome", outcome),
		logger.Int("degraded_signals", len(report.Errors)),
		logger.Duration("elapsed", elapsed))
	return report, nil
}

func (e *CycleEvaluator) evaluate(ctx context.Context, now time.Time, refreshBaseline bool) (*models.CycleReport, error) {
	st, err := e.state.LoadPosition(ctx)
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}
	if st.Position == "" {
		st.Position = models.Cash
	}

	errs := make(map[string]error)

	prior, err := e.refresher.Refresh(ctx, refreshBaseline)
	if err != nil {
		errs["baseline"] = err
	}

	series := e.fetchAll(ctx, errs)
	growth := series[e.cfg.Growth]
	defensive := series[e.cfg.Defensive]

	// Samples at or after the current bar are not prior history.
	if last, ok := growth.Last(); ok {
		prior = priorTo(prior, last.Timestamp)
	}
	priorN := models.RatioValues(prior)

	extra := make([]models.PriceSeries, 0, len(e.cfg.Extra))
	for _, sym := range e.cfg.Extra {
		if s, ok := series[sym]; ok {
			extra = append(extra, s)
		}
	}
	snap, serrs := e.engines.Indicators.Snapshot(growth, defensive, priorN, extra...)
	for k, err := range serrs {
		switch k {
		case "ratio", "baseline":
			if _, seen := errs[k]; !seen {
				errs[k] = err
			}
		default:
			errs["indicator."+k] = err
		}
	}

	signal := models.Unconfirmed
	if snap.Ratio != nil && snap.Baseline != nil {
		signal = e.engines.Crossover.Detect(e.crossoverBuffer(priorN, *snap.Ratio), *snap.Baseline)
		e.metrics.RecordRatio(*snap.Ratio, *snap.Baseline)
	}

	var reading *models.SentimentReading
	if vol, ok := series[e.cfg.Volatility]; ok {
		r, err := e.engines.Sentiment.Score(vol.Values())
		if err != nil {
			errs["sentiment"] = err
		} else {
			reading = &r
			e.metrics.RecordSentiment(r.Score, string(r.Level))
		}
	}

	decision, err := e.engines.Position.Evaluate(st.Position, position.Inputs{
		Snapshot:  snap,
		Crossover: signal,
		Sentiment: reading,
		Now:       now.UTC(),
	})
	if err != nil {
		return nil, err
	}

	report := &models.CycleReport{
		ID:           e.newID(),
		Timestamp:    now.UTC(),
		GrowthSymbol: e.cfg.Growth,
		DefSymbol:    e.cfg.Defensive,
		Previous:     st.Position,
		Current:      decision.Next,
		Symbol:       decision.Symbol,
		Snapshot:     snap,
		Sentiment:    reading,
		Crossover:    signal,
		Reason:       decision.Reason,
		Alternatives: decision.Alternatives,
	}
	if len(errs) > 0 {
		report.Errors = make(map[string]string, len(errs))
		for _, k := range sortedKeys(errs) {
			report.Errors[k] = errs[k].Error()
			e.metrics.RecordSignalError(signalName(k))
			if !models.IsRecoverable(errs[k]) {
				e.log.Warn("signal degraded", logger.String("signal", k), logger.Error(errs[k]))
			}
		}
	}

	if t := decision.Transition; t != nil {
		t.ID = e.newID()
		report.Transition = t
		prev := st
		st = models.PositionState{Position: decision.Next, Symbol: decision.Symbol, UpdatedAt: now.UTC()}
		if err := e.state.SavePosition(ctx, st); err != nil {
			return nil, fmt.Errorf("save position: %w", err)
		}
		// A journal failure reverts the state so the next cycle retries the move.
		if err := e.journal.Append(ctx, *t); err != nil {
			if rerr := e.state.SavePosition(ctx, prev); rerr != nil {
				e.log.Error("revert position", logger.Error(rerr))
			}
			return nil, fmt.Errorf("journal transition: %w", err)
		}
		e.metrics.RecordTransition(string(t.From), string(t.To))
		e.log.Info("position transition",
			logger.String("from", string(t.From)),
			logger.String("to", string(t.To)),
			logger.String("symbol", t.Symbol),
			logger.String("trigger", string(t.Trigger)),
			logger.Any("sentiment", report.Sentiment))
	} else if err := e.state.SavePosition(ctx, st); err != nil {
		return nil, fmt.Errorf("save position: %w", err)
	}
	e.metrics.RecordPosition(string(st.Position))
	return report, nil
}

// fetchAll loads every series concurrently. A failed pair leg falls back to the
// stored weekly bars; live quotes newer than the last bar are overlaid.
func (e *CycleEvaluator) fetchAll(ctx context.Context, errs map[string]error) map[string]models.PriceSeries {
	type job struct {
		symbol   string
		interval drepo.Interval
		bars     int
	}
	jobs := []job{
		{e.cfg.Growth, e.cfg.Interval, e.cfg.Bars},
		{e.cfg.Defensive, e.cfg.Interval, e.cfg.Bars},
	}
	for _, sym := range e.cfg.Extra {
		jobs = append(jobs, job{sym, e.cfg.Interval, e.cfg.Bars})
	}
	if e.cfg.Volatility != "" {
		jobs = append(jobs, job{e.cfg.Volatility, drepo.IntervalDaily, e.cfg.VolatilityBars})
	}

	results := make([]models.PriceSeries, len(jobs))
	failures := make([]error, len(jobs))
	var g errgroup.Group
	g.SetLimit(4)
	for i, j := range jobs {
		g.Go(func() error {
			s, err := e.provider.History(ctx, j.symbol, j.interval, j.bars)
			if err != nil {
				failures[i] = err
				return nil
			}
			results[i] = s
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]models.PriceSeries, len(jobs))
	for i, j := range jobs {
		s := results[i]
		if err := failures[i]; err != nil {
			errs["fetch."+j.symbol] = err
			if j.symbol != e.cfg.Growth && j.symbol != e.cfg.Defensive {
				continue
			}
			stored, serr := e.refresher.StoredSeries(ctx, j.symbol)
			if serr != nil || stored.Len() == 0 {
				out[j.symbol] = models.PriceSeries{Symbol: j.symbol}
				continue
			}
			s = stored
		}
		if e.quotes != nil {
			if q, ok := e.quotes.Latest(j.symbol); ok {
				s = s.WithLatest(models.PricePoint{Timestamp: q.Timestamp.UTC(), Value: q.Price}, j.interval.Period())
			}
		}
		out[j.symbol] = s
	}
	return out
}

// crossoverBuffer is the newest 2K prior samples followed by the current ratio,
// long enough for the detector to see the side the series came from.
func (e *CycleEvaluator) crossoverBuffer(prior []float64, current float64) []float64 {
	n := 2 * e.engines.Crossover.Config().K
	if len(prior) > n {
		prior = prior[len(prior)-n:]
	}
	buf := make([]float64, 0, len(prior)+1)
	buf = append(buf, prior...)
	return append(buf, current)
}

func priorTo(samples []models.RatioSample, t time.Time) []models.RatioSample {
	i := sort.Search(len(samples), func(i int) bool { return !samples[i].Timestamp.Before(t) })
	return samples[:i]
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// signalName keeps metric labels bounded: "indicator.QQQ.ma40" -> "indicator".
func signalName(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			return key[:i]
		}
	}
	return key
}
