package sentiment

import (
	"fmt"
	"math"

	"MarketFlow/internal/domain/models"
)

// Thresholds are absolute volatility index levels.
type Thresholds struct {
	ExtremeGreed float64 // at or below: complacency
	Greed        float64
	Fear         float64
	ExtremeFear  float64 // at or above: panic
}

// Config is the scoring surface.
//
// score = PercentileWeight*percentile + LevelWeight*levelScore + trend term, clamped to [0,100].
// levelScore is 10/30/50/70/90 from the absolute thresholds. The trend term is
// +TrendAdjustment while volatility is rising and -TrendAdjustment while it is falling.
type Config struct {
	MinSamples        int
	HistoryWindow     int
	PercentileWeight  float64
	LevelWeight       float64
	TrendAdjustment   float64
	TrendWindow       int
	TrendTolerancePct float64
	Thresholds        Thresholds
	Bands             [4]float64 // cut points: ExtremeGreed | Greed | Neutral | Fear | ExtremeFear
	ShortMA           int
	LongMA            int
}

func DefaultConfig() Config {
	return Config{
		MinSamples:        20,
		HistoryWindow:     252,
		PercentileWeight:  0.6,
		LevelWeight:       0.4,
		TrendAdjustment:   10,
		TrendWindow:       5,
		TrendTolerancePct: 5,
		Thresholds:        Thresholds{ExtremeGreed: 12, Greed: 15, Fear: 25, ExtremeFear: 30},
		Bands:             [4]float64{20, 40, 60, 80},
		ShortMA:           10,
		LongMA:            50,
	}
}

func (c Config) Validate() error {
	if c.MinSamples < 1 {
		return fmt.Errorf("min samples must be at least 1, got %d", c.MinSamples)
	}
	if c.HistoryWindow < c.MinSamples {
		return fmt.Errorf("history window %d is shorter than min samples %d", c.HistoryWindow, c.MinSamples)
	}
	if c.PercentileWeight < 0 || c.LevelWeight < 0 || c.TrendAdjustment < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	if c.TrendWindow < 2 {
		return fmt.Errorf("trend window must be at least 2, got %d", c.TrendWindow)
	}
	t := c.Thresholds
	if !(t.ExtremeGreed < t.Greed && t.Greed < t.Fear && t.Fear < t.ExtremeFear) {
		return fmt.Errorf("thresholds must be strictly increasing: %+v", t)
	}
	prev := 0.0
	for i, b := range c.Bands {
		if b <= prev || b >= 100 {
			return fmt.Errorf("band %d (%v) must be in (%v, 100)", i, b, prev)
		}
		prev = b
	}
	return nil
}

// Scorer turns a volatility index series into a SentimentReading.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score reads the last value of series as current and the preceding
// HistoryWindow values as its history.
func (s *Scorer) Score(series []float64) (models.SentimentReading, error) {
	if len(series) == 0 {
		return models.SentimentReading{}, fmt.Errorf("sentiment: empty series: %w", models.ErrInsufficientHistory)
	}
	current := series[len(series)-1]
	history := series[:len(series)-1]
	if len(history) > s.cfg.HistoryWindow {
		history = history[len(history)-s.cfg.HistoryWindow:]
	}
	if len(history) < s.cfg.MinSamples {
		return models.SentimentReading{}, fmt.Errorf("sentiment: %d samples, need %d: %w",
			len(history), s.cfg.MinSamples, models.ErrInsufficientHistory)
	}

	pct := Percentile(current, history)
	trend := s.Trend(series)
	score := s.Blend(pct, s.LevelScore(current), trend)

	reading := models.SentimentReading{
		Score:      score,
		Level:      s.Classify(score),
		Trend:      trend,
		Current:    current,
		Percentile: pct,
	}
	if ma, ok := mean(series, s.cfg.ShortMA); ok {
		reading.ShortMA = &ma
	}
	if ma, ok := mean(series, s.cfg.LongMA); ok {
		reading.LongMA = &ma
	}
	return reading, nil
}

// Percentile is the share of history strictly below current, scaled to [0,100].
func Percentile(current float64, history []float64) float64 {
	if len(history) == 0 {
		return 0
	}
	below := 0
	for _, v := range history {
		if v < current {
			below++
		}
	}
	return float64(below) / float64(len(history)) * 100
}

// LevelScore maps the absolute level onto 10 (complacent) .. 90 (panic).
func (s *Scorer) LevelScore(v float64) float64 {
	t := s.cfg.Thresholds
	switch {
	case v >= t.ExtremeFear:
		return 90
	case v >= t.Fear:
		return 70
	case v <= t.ExtremeGreed:
		return 10
	case v <= t.Greed:
		return 30
	default:
		return 50
	}
}

// Trend compares the first and last of the trailing TrendWindow values.
func (s *Scorer) Trend(series []float64) models.SentimentTrend {
	w := s.cfg.TrendWindow
	if len(series) < w {
		w = len(series)
	}
	if w < 2 {
		return models.TrendStable
	}
	tail := series[len(series)-w:]
	first, last := tail[0], tail[len(tail)-1]
	if first == 0 {
		return models.TrendStable
	}
	change := (last - first) / first * 100
	switch {
	case change > s.cfg.TrendTolerancePct:
		return models.TrendRising
	case change < -s.cfg.TrendTolerancePct:
		return models.TrendFalling
	default:
		return models.TrendStable
	}
}

// Blend combines the three components. Non-decreasing in percentile for fixed level and trend.
func (s *Scorer) Blend(percentile, levelScore float64, trend models.SentimentTrend) float64 {
	score := s.cfg.PercentileWeight*percentile + s.cfg.LevelWeight*levelScore
	switch trend {
	case models.TrendRising:
		score += s.cfg.TrendAdjustment
	case models.TrendFalling:
		score -= s.cfg.TrendAdjustment
	}
	return math.Max(0, math.Min(100, score))
}

// Classify maps a score to its band.
func (s *Scorer) Classify(score float64) models.SentimentLevel {
	b := s.cfg.Bands
	switch {
	case score < b[0]:
		return models.LevelExtremeGreed
	case score < b[1]:
		return models.LevelGreed
	case score < b[2]:
		return models.LevelNeutral
	case score < b[3]:
		return models.LevelFear
	default:
		return models.LevelExtremeFear
	}
}

func mean(values []float64, w int) (float64, bool) {
	if w <= 0 || len(values) < w {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-w:] {
		sum += v
	}
	return sum / float64(w), true
}
