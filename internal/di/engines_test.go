package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketFlow/internal/domain/models"
	"MarketFlow/pkg/config"
)

func mustParse(t *testing.T, yaml string) *config.Config {
	t.Helper()
	c, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return c
}

func TestProvideEngines_Defaults(t *testing.T) {
	cfg := mustParse(t, "environment: development\n")

	e, err := ProvideEngines(cfg)
	require.NoError(t, err)
	require.NotNil(t, e.Indicators)
	require.NotNil(t, e.Sentiment)
	require.NotNil(t, e.Crossover)
	require.NotNil(t, e.Position)

	assert.Equal(t, []int{10, 20, 40}, e.Indicators.Config().MAWindows)
	assert.True(t, e.Crossover.Config().RequireCrossing)
	assert.Equal(t, models.PolicyStrictAll, e.Crossover.Config().Policy)
	assert.Equal(t, "QQQ", e.Position.SymbolFor(models.Growth))
	assert.Equal(t, "SPY", e.Position.SymbolFor(models.Defensive))
	assert.Empty(t, e.Position.SymbolFor(models.Hedge))
}

func TestPositionConfig_CustomRules(t *testing.T) {
	cfg := mustParse(t, `
engine:
  position:
    rules:
      - position: growth
        symbol: QQQ
        entry_on: confirmed_above
      - position: hedge
        symbol: TLT
        entry_on: confirmed_below
        trend: above_ma
        trend_symbol: IEF
        trend_window: 20
        override_exempt: true
    override:
      enabled: false
      block_entry: true
`)

	pc := positionConfig(cfg)
	require.Len(t, pc.Rules, 2)
	assert.Equal(t, models.Hedge, pc.Rules[1].Position)
	assert.Equal(t, models.ConfirmedBelow, pc.Rules[1].EntryOn)
	assert.Equal(t, "IEF", pc.Rules[1].TrendSymbol)
	assert.True(t, pc.Rules[1].OverrideExempt)
	assert.False(t, pc.Override.Enabled)
	assert.True(t, pc.Override.BlockEntry)
	assert.Equal(t, []models.SentimentLevel{models.LevelExtremeFear}, pc.Override.ExitLevels)
	require.NoError(t, pc.Validate())

	assert.Equal(t, []string{"TLT", "IEF"}, extraSymbols(cfg))
}

func TestExtraSymbols_DefaultPairHasNone(t *testing.T) {
	cfg := mustParse(t, "environment: development\n")
	assert.Empty(t, extraSymbols(cfg))
}

func TestProvideEngines_RejectsBadSentiment(t *testing.T) {
	cfg := mustParse(t, "environment: development\n")
	cfg.Engine.Sentiment.GreedLevel = 40

	_, err := ProvideEngines(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sentiment")
}
