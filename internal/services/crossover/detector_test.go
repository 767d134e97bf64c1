package crossover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketFlow/internal/domain/models"
)

const (
	a = 1.05 // above threshold
	b = 0.95 // below threshold
)

func TestStrictAll_LevelConfirmation(t *testing.T) {
	d := NewDetector(Config{K: 3, Policy: models.PolicyStrictAll})

	tests := []struct {
		name    string
		samples []float64
		want    models.CrossoverSignal
	}{
		{"contrary newest", []float64{a, a, b}, models.Unconfirmed},
		{"all above", []float64{a, a, a}, models.ConfirmedAbove},
		{"all below", []float64{b, b, b}, models.ConfirmedBelow},
		{"contrary middle", []float64{a, b, a}, models.Unconfirmed},
		{"contrary oldest of window", []float64{a, a, a, b, a, a}, models.Unconfirmed},
		{"reset then rebuilt", []float64{a, a, a, b, a, a, a}, models.ConfirmedAbove},
		{"too short", []float64{a, a}, models.Unconfirmed},
		{"at threshold breaks run", []float64{a, a, 1.0, a, a}, models.Unconfirmed},
		{"at threshold newest", []float64{a, a, a, 1.0}, models.Unconfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(tt.samples, 1.0))
		})
	}
}

func TestStrictAll_Idempotent(t *testing.T) {
	d := NewDetector(Config{K: 3, Policy: models.PolicyStrictAll})
	seq := []float64{a, a, a}
	first := d.Detect(seq, 1.0)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, d.Detect(seq, 1.0))
	}
	assert.Equal(t, models.ConfirmedAbove, first)
}

func TestDefaultConfig_LevelConfirmationWithoutCrossing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireCrossing = false
	d := NewDetector(cfg)

	assert.Equal(t, models.ConfirmedAbove, d.Detect([]float64{a, a, a}, 1.0))
	assert.Equal(t, models.Unconfirmed, d.Detect([]float64{a, a, b}, 1.0))
	assert.Equal(t, models.ConfirmedBelow, d.Detect([]float64{b, b, b}, 1.0))

	// Shipped default: the same run needs an earlier sample on the other side.
	def := NewDetector(DefaultConfig())
	assert.Equal(t, models.Unconfirmed, def.Detect([]float64{a, a, a}, 1.0))
	assert.Equal(t, models.ConfirmedAbove, def.Detect([]float64{b, a, a, a}, 1.0))
}

func TestStrictAll_RequireCrossing(t *testing.T) {
	d := NewDetector(DefaultConfig())

	assert.Equal(t, models.Unconfirmed, d.Detect([]float64{a, a, a}, 1.0))
	assert.Equal(t, models.Unconfirmed, d.Detect([]float64{b, b, b, b, b}, 1.0))
	assert.Equal(t, models.ConfirmedAbove, d.Detect([]float64{b, a, a, a}, 1.0))
	assert.Equal(t, models.ConfirmedAbove, d.Detect([]float64{b, 1.0, a, a, a, a}, 1.0))
	assert.Equal(t, models.ConfirmedBelow, d.Detect([]float64{a, a, b, b, b}, 1.0))
	assert.Equal(t, models.Unconfirmed, d.Detect([]float64{b, a, a}, 1.0))
}

func TestStrictAll_OscillatingNeverConfirms(t *testing.T) {
	for _, k := range []int{2, 3, 5} {
		d := NewDetector(Config{K: k, Policy: models.PolicyStrictAll, RequireCrossing: true})
		var samples []float64
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				samples = append(samples, a)
			} else {
				samples = append(samples, b)
			}
			require.Equal(t, models.Unconfirmed, d.Detect(samples, 1.0), "k=%d i=%d", k, i)
		}
	}
}

func TestMajority(t *testing.T) {
	d := NewDetector(Config{K: 3, Policy: models.PolicyMajority, RequireCrossing: true})

	assert.Equal(t, models.ConfirmedAbove, d.Detect([]float64{b, a, a}, 1.0))
	assert.Equal(t, models.ConfirmedAbove, d.Detect([]float64{a, b, a}, 1.0))
	assert.Equal(t, models.Unconfirmed, d.Detect([]float64{a, a, b}, 1.0))
	assert.Equal(t, models.Unconfirmed, d.Detect([]float64{a, a, a}, 1.0))
	assert.Equal(t, models.ConfirmedBelow, d.Detect([]float64{a, a, b, a, b, b}, 1.0))
	assert.Equal(t, models.Unconfirmed, d.Detect([]float64{b, 1.0, a}, 1.0))
}

func TestMajority_EvenWindowNeedsStrictMajority(t *testing.T) {
	d := NewDetector(Config{K: 4, Policy: models.PolicyMajority})
	assert.Equal(t, models.Unconfirmed, d.Detect([]float64{b, b, a, a}, 1.0))
	assert.Equal(t, models.ConfirmedAbove, d.Detect([]float64{b, a, a, a}, 1.0))
}

func TestRisingRatioConfirmsOnceAfterCrossing(t *testing.T) {
	d := NewDetector(DefaultConfig())
	samples := make([]float64, 0, 40)
	for i := 0; i < 40; i++ {
		samples = append(samples, 0.9+0.0029*float64(i))
		got := d.Detect(samples, 1.0)
		sample := i + 1
		if sample < 38 {
			require.Equal(t, models.Unconfirmed, got, "sample %d", sample)
		} else {
			require.Equal(t, models.ConfirmedAbove, got, "sample %d", sample)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{K: 0, Policy: models.PolicyStrictAll}.Validate())
	assert.Error(t, Config{K: 3, Policy: "sometimes"}.Validate())
}
