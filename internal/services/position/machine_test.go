package position

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketFlow/internal/domain/models"
	"MarketFlow/internal/services/crossover"
)

var now = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

func snapshot(spyLast, spyMA40 float64) models.IndicatorSnapshot {
	n, v := 1.02, 1.0
	return models.IndicatorSnapshot{
		Ratio:    &n,
		Baseline: &v,
		Instruments: map[string]models.InstrumentIndicators{
			"QQQ": {Symbol: "QQQ", Last: 480, MovingAverages: map[int]float64{40: 450}},
			"SPY": {Symbol: "SPY", Last: spyLast, MovingAverages: map[int]float64{40: spyMA40}},
		},
	}
}

func sentiment(level models.SentimentLevel) *models.SentimentReading {
	return &models.SentimentReading{Level: level, Score: 50}
}

func newMachine() *Machine {
	return NewMachine(DefaultConfig("QQQ", "SPY"))
}

func TestCashToGrowthOnConfirmedAbove(t *testing.T) {
	m := newMachine()
	d, err := m.Evaluate(models.Cash, Inputs{Snapshot: snapshot(500, 480), Crossover: models.ConfirmedAbove, Now: now})
	require.NoError(t, err)

	assert.Equal(t, models.Growth, d.Next)
	assert.Equal(t, "QQQ", d.Symbol)
	require.NotNil(t, d.Transition)
	assert.Equal(t, models.Cash, d.Transition.From)
	assert.Equal(t, models.Growth, d.Transition.To)
	assert.Equal(t, models.TriggerCrossoverUp, d.Transition.Trigger)
	assert.Equal(t, now, d.Transition.Timestamp)
}

func TestGrowthExitsToCashNeverToDefensive(t *testing.T) {
	m := newMachine()
	in := Inputs{Snapshot: snapshot(500, 480), Crossover: models.ConfirmedBelow, Now: now}

	d, err := m.Evaluate(models.Growth, in)
	require.NoError(t, err)
	assert.Equal(t, models.Cash, d.Next)
	require.NotNil(t, d.Transition)
	assert.Equal(t, models.Growth, d.Transition.From)
	assert.Equal(t, models.Cash, d.Transition.To)
	assert.Equal(t, models.TriggerCrossoverDown, d.Transition.Trigger)
	assert.NotEmpty(t, d.Alternatives)

	// the defensive entry only happens on a later cycle
	d, err = m.Evaluate(d.Next, in)
	require.NoError(t, err)
	assert.Equal(t, models.Defensive, d.Next)
	require.NotNil(t, d.Transition)
	assert.Equal(t, models.Cash, d.Transition.From)
}

func TestDefensiveEntryNeedsBothConditions(t *testing.T) {
	m := newMachine()
	tests := []struct {
		name string
		in   Inputs
		want models.Position
	}{
		{"both", Inputs{Snapshot: snapshot(500, 480), Crossover: models.ConfirmedBelow}, models.Defensive},
		{"crossover only", Inputs{Snapshot: snapshot(470, 480), Crossover: models.ConfirmedBelow}, models.Cash},
		{"trend only", Inputs{Snapshot: snapshot(500, 480), Crossover: models.Unconfirmed}, models.Cash},
		{"price on average", Inputs{Snapshot: snapshot(480, 480), Crossover: models.ConfirmedBelow}, models.Cash},
		{"average missing", Inputs{Snapshot: models.IndicatorSnapshot{}, Crossover: models.ConfirmedBelow}, models.Cash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := m.Evaluate(models.Cash, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Next)
			assert.Equal(t, tt.want != models.Cash, d.Transition != nil)
		})
	}
}

func TestDefensiveExits(t *testing.T) {
	m := newMachine()

	d, err := m.Evaluate(models.Defensive, Inputs{Snapshot: snapshot(470, 480), Crossover: models.Unconfirmed})
	require.NoError(t, err)
	assert.Equal(t, models.Cash, d.Next)
	assert.Equal(t, models.TriggerTrendBreak, d.Transition.Trigger)

	d, err = m.Evaluate(models.Defensive, Inputs{Snapshot: snapshot(500, 480), Crossover: models.ConfirmedAbove})
	require.NoError(t, err)
	assert.Equal(t, models.Cash, d.Next)
	assert.Equal(t, models.TriggerCrossoverUp, d.Transition.Trigger)

	d, err = m.Evaluate(models.Defensive, Inputs{Snapshot: models.IndicatorSnapshot{}, Crossover: models.ConfirmedBelow})
	require.NoError(t, err)
	assert.Equal(t, models.Defensive, d.Next, "unknown trend must not force an exit")
	assert.Nil(t, d.Transition)
}

func TestHoldEmitsNoRecord(t *testing.T) {
	m := newMachine()
	for _, p := range []models.Position{models.Cash, models.Growth, models.Defensive} {
		d, err := m.Evaluate(p, Inputs{Snapshot: snapshot(500, 480), Crossover: models.Unconfirmed})
		require.NoError(t, err)
		assert.Equal(t, p, d.Next)
		assert.Nil(t, d.Transition)
		assert.NotEmpty(t, d.Reason)
	}
}

func TestSentimentOverride(t *testing.T) {
	in := Inputs{Snapshot: snapshot(500, 480), Crossover: models.ConfirmedAbove, Sentiment: sentiment(models.LevelExtremeFear)}

	d, err := newMachine().Evaluate(models.Growth, in)
	require.NoError(t, err)
	assert.Equal(t, models.Cash, d.Next)
	assert.Equal(t, models.TriggerSentimentOverride, d.Transition.Trigger)

	cfg := DefaultConfig("QQQ", "SPY")
	cfg.Override.Enabled = false
	d, err = NewMachine(cfg).Evaluate(models.Growth, in)
	require.NoError(t, err)
	assert.Equal(t, models.Growth, d.Next)

	cfg = DefaultConfig("QQQ", "SPY")
	cfg.Rules[0].OverrideExempt = true
	d, err = NewMachine(cfg).Evaluate(models.Growth, in)
	require.NoError(t, err)
	assert.Equal(t, models.Growth, d.Next)

	in.Sentiment = sentiment(models.LevelFear)
	d, err = newMachine().Evaluate(models.Growth, in)
	require.NoError(t, err)
	assert.Equal(t, models.Growth, d.Next)
}

func TestOverrideBlockEntryPolicy(t *testing.T) {
	in := Inputs{Snapshot: snapshot(500, 480), Crossover: models.ConfirmedAbove, Sentiment: sentiment(models.LevelExtremeFear)}

	cfg := DefaultConfig("QQQ", "SPY")
	cfg.Override.BlockEntry = false
	d, err := NewMachine(cfg).Evaluate(models.Cash, in)
	require.NoError(t, err)
	assert.Equal(t, models.Growth, d.Next)

	cfg.Override.BlockEntry = true
	d, err = NewMachine(cfg).Evaluate(models.Cash, in)
	require.NoError(t, err)
	assert.Equal(t, models.Cash, d.Next)
	assert.Nil(t, d.Transition)
	assert.Contains(t, d.Reason, "blocked")
}

func TestDefaultOverrideDoesNotFlapBackIntoGrowth(t *testing.T) {
	m := newMachine()
	state := models.Growth
	var moves []string
	for cycle := 0; cycle < 4; cycle++ {
		d, err := m.Evaluate(state, Inputs{
			Snapshot:  snapshot(500, 480),
			Crossover: models.ConfirmedAbove,
			Sentiment: sentiment(models.LevelExtremeFear),
			Now:       now.Add(time.Duration(cycle) * 10 * time.Minute),
		})
		require.NoError(t, err)
		if d.Transition != nil {
			moves = append(moves, string(d.Transition.From)+" -> "+string(d.Transition.To))
		}
		state = d.Next
	}
	assert.Equal(t, []string{"growth -> cash"}, moves)
	assert.Equal(t, models.Cash, state)

	// Once the fear subsides the same crossover re-enters.
	d, err := m.Evaluate(state, Inputs{Snapshot: snapshot(500, 480), Crossover: models.ConfirmedAbove, Sentiment: sentiment(models.LevelFear)})
	require.NoError(t, err)
	assert.Equal(t, models.Growth, d.Next)
}

func TestInvalidPersistedState(t *testing.T) {
	_, err := newMachine().Evaluate(models.Position("QQQ"), Inputs{Crossover: models.ConfirmedAbove})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidStateTransition))

	var ist *models.InvalidStateTransitionError
	require.ErrorAs(t, err, &ist)
	assert.Equal(t, models.Position("QQQ"), ist.State)
}

func TestUnconfiguredRiskPositionHolds(t *testing.T) {
	d, err := newMachine().Evaluate(models.Hedge, Inputs{Crossover: models.ConfirmedAbove})
	require.NoError(t, err)
	assert.Equal(t, models.Hedge, d.Next)
	assert.Nil(t, d.Transition)
}

func TestRandomizedCyclesNeverJoinRiskPositions(t *testing.T) {
	cfg := DefaultConfig("QQQ", "SPY")
	cfg.Rules = append(cfg.Rules, Rule{
		Position:         models.Hedge,
		Symbol:           "SH",
		EntryOn:          models.ConfirmedBelow,
		Trend:            TrendPriceBelowMA,
		TrendSymbol:      "SPY",
		TrendWindow:      40,
		ExitOnTrendBreak: true,
		OverrideExempt:   true,
	})
	cfg.Override.BlockEntry = true
	require.NoError(t, cfg.Validate())
	m := NewMachine(cfg)

	rng := rand.New(rand.NewSource(2024))
	signals := []models.CrossoverSignal{models.ConfirmedAbove, models.ConfirmedBelow, models.Unconfirmed}
	levels := []models.SentimentLevel{models.LevelExtremeFear, models.LevelFear, models.LevelNeutral, models.LevelGreed, models.LevelExtremeGreed}

	state := models.Cash
	transitions := 0
	for cycle := 0; cycle < 20000; cycle++ {
		in := Inputs{
			Snapshot:  snapshot(440+rng.Float64()*80, 480),
			Crossover: signals[rng.Intn(len(signals))],
			Now:       now.Add(time.Duration(cycle) * time.Hour),
		}
		if rng.Intn(4) > 0 {
			in.Sentiment = sentiment(levels[rng.Intn(len(levels))])
		}
		if rng.Intn(10) == 0 {
			in.Snapshot = models.IndicatorSnapshot{}
		}

		d, err := m.Evaluate(state, in)
		require.NoError(t, err)
		if d.Transition == nil {
			require.Equal(t, state, d.Next, "cycle %d", cycle)
			continue
		}
		transitions++
		rec := d.Transition
		require.Equal(t, state, rec.From, "cycle %d", cycle)
		require.Equal(t, d.Next, rec.To, "cycle %d", cycle)
		require.NotEqual(t, rec.From, rec.To, "cycle %d", cycle)
		require.False(t, rec.From.IsRisk() && rec.To.IsRisk(), "cycle %d: %s -> %s", cycle, rec.From, rec.To)
		state = d.Next
	}
	assert.Greater(t, transitions, 100)
}

func TestRisingRatioProducesSingleEntry(t *testing.T) {
	det := crossover.NewDetector(crossover.DefaultConfig())
	m := newMachine()

	state := models.Cash
	var records []models.TransitionRecord
	var samples []float64
	for i := 0; i < 40; i++ {
		samples = append(samples, 0.9+0.0029*float64(i))
		sig := det.Detect(samples, 1.0)
		if i+1 < 38 {
			require.Equal(t, models.Unconfirmed, sig, "sample %d", i+1)
		} else {
			require.Equal(t, models.ConfirmedAbove, sig, "sample %d", i+1)
		}

		d, err := m.Evaluate(state, Inputs{Snapshot: snapshot(500, 480), Crossover: sig, Now: now.AddDate(0, 0, 7*i)})
		require.NoError(t, err)
		if d.Transition != nil {
			require.Equal(t, 38, i+1, "transition must occur where confirmation first appears")
			records = append(records, *d.Transition)
		}
		state = d.Next
	}

	require.Len(t, records, 1)
	assert.Equal(t, models.Cash, records[0].From)
	assert.Equal(t, models.Growth, records[0].To)
	assert.Equal(t, models.Growth, state)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig("QQQ", "SPY").Validate())

	cfg := DefaultConfig("QQQ", "SPY")
	cfg.Rules = append(cfg.Rules, cfg.Rules[0])
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig("QQQ", "SPY")
	cfg.Rules[0].Position = models.Cash
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig("QQQ", "SPY")
	cfg.Rules[1].TrendWindow = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig("QQQ", "SPY")
	cfg.Rules[0].EntryOn = models.Unconfirmed
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig("QQQ", "SPY")
	cfg.Override.ExitLevels = []models.SentimentLevel{"panic"}
	assert.Error(t, cfg.Validate())
}
