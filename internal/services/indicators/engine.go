package indicators

import (
	"fmt"

	"MarketFlow/internal/domain/models"
)

// Config holds the window lengths and oscillator thresholds.
type Config struct {
	MAWindows      []int
	RSIWindow      int
	Overbought     float64
	Oversold       float64
	BaselineWindow int
}

func DefaultConfig() Config {
	return Config{
		MAWindows:      []int{10, 20, 40},
		RSIWindow:      14,
		Overbought:     70,
		Oversold:       30,
		BaselineWindow: 10,
	}
}

func (c Config) Validate() error {
	for _, w := range c.MAWindows {
		if w <= 0 {
			return fmt.Errorf("moving average window must be positive, got %d", w)
		}
	}
	if c.RSIWindow <= 0 {
		return fmt.Errorf("rsi window must be positive, got %d", c.RSIWindow)
	}
	if c.Oversold < 0 || c.Overbought > 100 || c.Oversold >= c.Overbought {
		return fmt.Errorf("oscillator thresholds must satisfy 0 <= oversold < overbought <= 100, got %v/%v", c.Oversold, c.Overbought)
	}
	if c.BaselineWindow <= 0 {
		return fmt.Errorf("baseline window must be positive, got %d", c.BaselineWindow)
	}
	return nil
}

// Engine computes indicator snapshots. It holds configuration only and is safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config { return e.cfg }

// SMA is the arithmetic mean of the last w values.
func SMA(values []float64, w int) (float64, error) {
	if w <= 0 {
		return 0, fmt.Errorf("sma: invalid window %d", w)
	}
	if len(values) < w {
		return 0, fmt.Errorf("sma(%d) over %d points: %w", w, len(values), models.ErrInsufficientData)
	}
	sum := 0.0
	for _, v := range values[len(values)-w:] {
		sum += v
	}
	return sum / float64(w), nil
}

// Ratio divides the latest value of a by the latest value of b.
func Ratio(a, b models.PriceSeries) (float64, error) {
	lastB, ok := b.Last()
	if !ok || lastB.Value == 0 {
		return 0, fmt.Errorf("ratio %s/%s: %w", a.Symbol, b.Symbol, models.ErrDivisionByZero)
	}
	lastA, ok := a.Last()
	if !ok {
		return 0, fmt.Errorf("ratio %s/%s: no %s data: %w", a.Symbol, b.Symbol, a.Symbol, models.ErrInsufficientData)
	}
	return lastA.Value / lastB.Value, nil
}

// RatioSeries pairs points with identical timestamps and divides them.
// Points whose denominator is zero are skipped.
func RatioSeries(a, b models.PriceSeries) []models.RatioSample {
	byTime := make(map[int64]float64, len(b.Points))
	for _, p := range b.Points {
		byTime[p.Timestamp.Unix()] = p.Value
	}
	out := make([]models.RatioSample, 0, len(a.Points))
	for _, p := range a.Points {
		den, ok := byTime[p.Timestamp.Unix()]
		if !ok || den == 0 {
			continue
		}
		out = append(out, models.RatioSample{Timestamp: p.Timestamp, N: p.Value / den})
	}
	return out
}

// Baseline is the mean of the trailing BaselineWindow prior ratio samples.
func (e *Engine) Baseline(prior []float64) (float64, error) {
	v, err := SMA(prior, e.cfg.BaselineWindow)
	if err != nil {
		return 0, fmt.Errorf("baseline: %w", err)
	}
	return v, nil
}

// RSI averages gains and losses of the last w deltas. A window without losses is 100.
func RSI(values []float64, w int) (float64, error) {
	if w <= 0 {
		return 0, fmt.Errorf("rsi: invalid window %d", w)
	}
	if len(values) < w+1 {
		return 0, fmt.Errorf("rsi(%d) over %d points: %w", w, len(values), models.ErrInsufficientData)
	}
	var gains, losses float64
	tail := values[len(values)-w-1:]
	for i := 1; i < len(tail); i++ {
		d := tail[i] - tail[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	avgGain := gains / float64(w)
	avgLoss := losses / float64(w)
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// Zone classifies an oscillator value against the configured thresholds.
func (e *Engine) Zone(v float64) models.OscillatorZone {
	switch {
	case v <= e.cfg.Oversold:
		return models.ZoneOversold
	case v >= e.cfg.Overbought:
		return models.ZoneOverbought
	default:
		return models.ZoneNeutral
	}
}

// Instrument computes moving averages and the oscillator for one series.
// Each failed window is recorded in Errors; the rest are still returned.
func (e *Engine) Instrument(s models.PriceSeries) (models.InstrumentIndicators, map[string]error) {
	ind := models.InstrumentIndicators{
		Symbol:         s.Symbol,
		MovingAverages: make(map[int]float64, len(e.cfg.MAWindows)),
	}
	errs := make(map[string]error)
	if last, ok := s.Last(); ok {
		ind.Last = last.Value
	}
	values := s.Values()
	for _, w := range e.cfg.MAWindows {
		ma, err := SMA(values, w)
		if err != nil {
			errs[fmt.Sprintf("ma%d", w)] = err
			continue
		}
		ind.MovingAverages[w] = ma
	}
	if rsi, err := RSI(values, e.cfg.RSIWindow); err != nil {
		errs["rsi"] = err
	} else {
		ind.Oscillator = &rsi
		ind.Zone = e.Zone(rsi)
	}
	if len(errs) > 0 {
		ind.Errors = make(map[string]string, len(errs))
		for k, err := range errs {
			ind.Errors[k] = err.Error()
		}
	}
	return ind, errs
}

// Snapshot builds the cycle bundle from the growth and defensive series and the prior
// ratio samples. Extra series (hedge instruments) only get per-instrument indicators.
// Errors are keyed by signal ("ratio", "baseline", "<symbol>.<indicator>"); whatever
// could be computed is still present in the snapshot.
func (e *Engine) Snapshot(growth, defensive models.PriceSeries, prior []float64, extra ...models.PriceSeries) (models.IndicatorSnapshot, map[string]error) {
	snap := models.IndicatorSnapshot{
		Instruments: make(map[string]models.InstrumentIndicators, 2),
	}
	errs := make(map[string]error)

	if n, err := Ratio(growth, defensive); err != nil {
		errs["ratio"] = err
	} else {
		snap.Ratio = &n
	}
	if v, err := e.Baseline(prior); err != nil {
		errs["baseline"] = err
	} else {
		snap.Baseline = &v
	}

	series := append([]models.PriceSeries{growth, defensive}, extra...)
	for _, s := range series {
		if _, seen := snap.Instruments[s.Symbol]; seen {
			continue
		}
		ind, ierrs := e.Instrument(s)
		snap.Instruments[s.Symbol] = ind
		for k, err := range ierrs {
			errs[s.Symbol+"."+k] = err
		}
	}
	return snap, errs
}
