package sentiment

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketFlow/internal/domain/models"
)

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, 0.0, Percentile(10, nil))
	assert.Equal(t, 50.0, Percentile(3, []float64{1, 2, 3, 4}))
	assert.Equal(t, 0.0, Percentile(1, []float64{1, 1, 1}))
	assert.Equal(t, 100.0, Percentile(9, []float64{1, 2, 3}))
}

func TestScore_InsufficientHistory(t *testing.T) {
	s := NewScorer(DefaultConfig())

	_, err := s.Score(nil)
	require.ErrorIs(t, err, models.ErrInsufficientHistory)

	_, err = s.Score(flat(20, 18))
	require.ErrorIs(t, err, models.ErrInsufficientHistory)

	_, err = s.Score(flat(21, 18))
	require.NoError(t, err)
}

func TestScore_MonotoneInPercentile(t *testing.T) {
	s := NewScorer(DefaultConfig())
	rng := rand.New(rand.NewSource(99))

	const size = 120
	tail := flat(5, 20) // current and trend window fixed: neutral level, stable trend

	prev := -1.0
	prevPct := -1.0
	for below := 0; below <= size; below += 4 {
		hist := make([]float64, 0, size)
		for i := 0; i < size; i++ {
			if i < below {
				hist = append(hist, 10+rng.Float64()*9.9)
			} else {
				hist = append(hist, 20+rng.Float64()*20)
			}
		}
		rng.Shuffle(len(hist), func(i, j int) { hist[i], hist[j] = hist[j], hist[i] })

		r, err := s.Score(append(hist, tail...))
		require.NoError(t, err)
		require.Equal(t, models.TrendStable, r.Trend)
		require.GreaterOrEqual(t, r.Percentile, prevPct)
		assert.GreaterOrEqual(t, r.Score, prev, "below=%d", below)
		prev, prevPct = r.Score, r.Percentile
	}
}

func TestBlend_MonotoneGrid(t *testing.T) {
	s := NewScorer(DefaultConfig())
	for _, level := range []float64{10, 30, 50, 70, 90} {
		for _, trend := range []models.SentimentTrend{models.TrendFalling, models.TrendStable, models.TrendRising} {
			prev := s.Blend(0, level, trend)
			for p := 0.5; p <= 100; p += 0.5 {
				cur := s.Blend(p, level, trend)
				require.GreaterOrEqual(t, cur, prev, "level=%v trend=%s p=%v", level, trend, p)
				require.GreaterOrEqual(t, cur, 0.0)
				require.LessOrEqual(t, cur, 100.0)
				prev = cur
			}
		}
	}
}

func TestClassify_PartitionsRange(t *testing.T) {
	s := NewScorer(DefaultConfig())
	tests := []struct {
		score float64
		want  models.SentimentLevel
	}{
		{0, models.LevelExtremeGreed},
		{19.99, models.LevelExtremeGreed},
		{20, models.LevelGreed},
		{39.9, models.LevelGreed},
		{40, models.LevelNeutral},
		{59.9, models.LevelNeutral},
		{60, models.LevelFear},
		{79.9, models.LevelFear},
		{80, models.LevelExtremeFear},
		{100, models.LevelExtremeFear},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Classify(tt.score), "score=%v", tt.score)
	}
}

func TestTrend(t *testing.T) {
	s := NewScorer(DefaultConfig())
	assert.Equal(t, models.TrendRising, s.Trend([]float64{1, 1, 20, 21, 22, 23, 25}))
	assert.Equal(t, models.TrendFalling, s.Trend([]float64{30, 28, 26, 25, 24}))
	assert.Equal(t, models.TrendStable, s.Trend([]float64{20, 20.5, 20.2, 20.9, 20.4}))
	assert.Equal(t, models.TrendStable, s.Trend([]float64{20}))
	assert.Equal(t, models.TrendStable, s.Trend([]float64{0, 1, 2, 3, 4}))
}

func TestScore_Extremes(t *testing.T) {
	s := NewScorer(DefaultConfig())

	spike := append(flat(252, 15), 20, 26, 33, 40, 45)
	r, err := s.Score(spike)
	require.NoError(t, err)
	assert.Equal(t, models.TrendRising, r.Trend)
	assert.Equal(t, 100.0, r.Score)
	assert.Equal(t, models.LevelExtremeFear, r.Level)
	assert.Equal(t, 45.0, r.Current)
	require.NotNil(t, r.ShortMA)
	require.NotNil(t, r.LongMA)

	calm := append(flat(252, 18), 15, 14, 13, 12, 11)
	r, err = s.Score(calm)
	require.NoError(t, err)
	assert.Equal(t, models.TrendFalling, r.Trend)
	assert.Equal(t, 0.0, r.Percentile)
	assert.Equal(t, models.LevelExtremeGreed, r.Level)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	c := DefaultConfig()
	c.Bands = [4]float64{20, 60, 40, 80}
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Bands = [4]float64{0, 40, 60, 80}
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Thresholds.Fear = 10
	assert.Error(t, c.Validate())
}
