package indicators

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketFlow/internal/domain/models"
)

func series(symbol string, values ...float64) models.PriceSeries {
	start := time.Date(2024, 1, 5, 21, 0, 0, 0, time.UTC)
	s := models.PriceSeries{Symbol: symbol}
	for i, v := range values {
		s.Points = append(s.Points, models.PricePoint{Timestamp: start.AddDate(0, 0, 7*i), Value: v})
	}
	return s
}

func TestSMA_MatchesMeanOfLastWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(200)
		values := make([]float64, n)
		for i := range values {
			values[i] = rng.Float64()*500 + 1
		}
		w := 1 + rng.Intn(n)

		got, err := SMA(values, w)
		require.NoError(t, err)

		want := 0.0
		for _, v := range values[n-w:] {
			want += v
		}
		want /= float64(w)
		assert.InDelta(t, want, got, 1e-9, "n=%d w=%d", n, w)
	}
}

func TestSMA_InsufficientData(t *testing.T) {
	_, err := SMA([]float64{1, 2}, 3)
	require.ErrorIs(t, err, models.ErrInsufficientData)

	_, err = SMA([]float64{1, 2}, 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrInsufficientData)
}

func TestRatio(t *testing.T) {
	n, err := Ratio(series("QQQ", 100, 110), series("SPY", 90, 100))
	require.NoError(t, err)
	assert.InDelta(t, 1.10, n, 1e-9)
}

func TestRatio_DegenerateDenominator(t *testing.T) {
	_, err := Ratio(series("QQQ", 110), series("SPY", 0))
	assert.ErrorIs(t, err, models.ErrDivisionByZero)

	_, err = Ratio(series("QQQ", 110), series("SPY"))
	assert.ErrorIs(t, err, models.ErrDivisionByZero)

	_, err = Ratio(series("QQQ"), series("SPY", 100))
	assert.ErrorIs(t, err, models.ErrInsufficientData)
}

func TestRatioSeries_AlignsOnTimestamp(t *testing.T) {
	a := series("QQQ", 110, 120, 130)
	b := series("SPY", 100, 0, 100)

	out := RatioSeries(a, b)
	require.Len(t, out, 2)
	assert.InDelta(t, 1.1, out[0].N, 1e-12)
	assert.InDelta(t, 1.3, out[1].N, 1e-12)
	assert.Equal(t, a.Points[2].Timestamp, out[1].Timestamp)
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		window int
		want   float64
	}{
		{"monotonic rise", []float64{1, 2, 3, 4, 5, 6}, 5, 100},
		{"monotonic fall", []float64{6, 5, 4, 3, 2, 1}, 5, 0},
		{"flat", []float64{3, 3, 3, 3}, 3, 50},
		{"balanced", []float64{10, 11, 10, 11, 10}, 4, 50},
		{"only tail counts", []float64{50, 1, 2, 3, 4}, 3, 100},
		{"two to one", []float64{10, 12, 11}, 2, 100 - 100/(1+2.0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RSI(tt.values, tt.window)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRSI_InsufficientData(t *testing.T) {
	_, err := RSI([]float64{1, 2, 3}, 3)
	assert.ErrorIs(t, err, models.ErrInsufficientData)
}

func TestZone(t *testing.T) {
	e := NewEngine(DefaultConfig())
	assert.Equal(t, models.ZoneOversold, e.Zone(30))
	assert.Equal(t, models.ZoneOversold, e.Zone(12))
	assert.Equal(t, models.ZoneNeutral, e.Zone(50))
	assert.Equal(t, models.ZoneOverbought, e.Zone(70))
	assert.Equal(t, models.ZoneOverbought, e.Zone(100))
}

func TestSnapshot_Complete(t *testing.T) {
	cfg := Config{MAWindows: []int{2, 3}, RSIWindow: 3, Overbought: 70, Oversold: 30, BaselineWindow: 2}
	e := NewEngine(cfg)

	snap, errs := e.Snapshot(series("QQQ", 100, 104, 108, 110), series("SPY", 100, 100, 100, 100), []float64{1.0, 1.02, 1.04})
	assert.Empty(t, errs)
	require.NotNil(t, snap.Ratio)
	require.NotNil(t, snap.Baseline)
	assert.InDelta(t, 1.10, *snap.Ratio, 1e-9)
	assert.InDelta(t, 1.03, *snap.Baseline, 1e-9)

	qqq, ok := snap.Instrument("QQQ")
	require.True(t, ok)
	assert.InDelta(t, 110, qqq.Last, 1e-9)
	ma3, ok := qqq.MA(3)
	require.True(t, ok)
	assert.InDelta(t, (104.0+108+110)/3, ma3, 1e-9)
	require.NotNil(t, qqq.Oscillator)
	assert.InDelta(t, 100, *qqq.Oscillator, 1e-9)
	assert.Equal(t, models.ZoneOverbought, qqq.Zone)

	spy, _ := snap.Instrument("SPY")
	assert.Equal(t, models.ZoneNeutral, spy.Zone)
}

func TestSnapshot_DegradesPerSignal(t *testing.T) {
	cfg := Config{MAWindows: []int{2, 40}, RSIWindow: 3, Overbought: 70, Oversold: 30, BaselineWindow: 5}
	e := NewEngine(cfg)

	snap, errs := e.Snapshot(series("QQQ", 100, 104, 108, 110), series("SPY", 100, 100, 100, 0), []float64{1.0})

	assert.ErrorIs(t, errs["ratio"], models.ErrDivisionByZero)
	assert.ErrorIs(t, errs["baseline"], models.ErrInsufficientData)
	assert.ErrorIs(t, errs["QQQ.ma40"], models.ErrInsufficientData)
	assert.Nil(t, snap.Ratio)
	assert.Nil(t, snap.Baseline)

	qqq := snap.Instruments["QQQ"]
	_, ok := qqq.MA(2)
	assert.True(t, ok)
	assert.Contains(t, qqq.Errors, "ma40")
}

func TestSnapshot_Deterministic(t *testing.T) {
	e := NewEngine(DefaultConfig())
	rng := rand.New(rand.NewSource(7))
	a := make([]float64, 60)
	b := make([]float64, 60)
	prior := make([]float64, 12)
	for i := range a {
		a[i] = 300 + rng.Float64()*50
		b[i] = 400 + rng.Float64()*50
	}
	for i := range prior {
		prior[i] = 0.7 + rng.Float64()*0.1
	}

	first, _ := e.Snapshot(series("QQQ", a...), series("SPY", b...), prior)
	second, _ := e.Snapshot(series("QQQ", a...), series("SPY", b...), prior)
	assert.Equal(t, first, second)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Oversold = 80
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MAWindows = []int{10, 0}
	assert.Error(t, bad.Validate())
}
