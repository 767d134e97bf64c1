package di

import (
	"fmt"
	"slices"

	"MarketFlow/internal/domain/models"
	"MarketFlow/internal/services/crossover"
	"MarketFlow/internal/services/indicators"
	"MarketFlow/internal/services/position"
	"MarketFlow/internal/services/sentiment"
	"MarketFlow/internal/usecase"
	"MarketFlow/pkg/config"
)

// ProvideEngines builds and validates the signal engines from config.
func ProvideEngines(cfg *config.Config) (usecase.Engines, error) {
	ic := indicators.Config{
		MAWindows:      slices.Clone(cfg.Engine.Indicators.MAWindows),
		RSIWindow:      cfg.Engine.Indicators.RSIWindow,
		Overbought:     cfg.Engine.Indicators.Overbought,
		Oversold:       cfg.Engine.Indicators.Oversold,
		BaselineWindow: cfg.Engine.Indicators.BaselineWindow,
	}
	if err := ic.Validate(); err != nil {
		return usecase.Engines{}, fmt.Errorf("indicators: %w", err)
	}

	sc, err := sentimentConfig(cfg.Engine.Sentiment)
	if err != nil {
		return usecase.Engines{}, err
	}

	cc := crossover.Config{
		K:               cfg.Engine.Crossover.K,
		Policy:          models.ConfirmationPolicy(cfg.Engine.Crossover.Policy),
		RequireCrossing: cfg.Engine.Crossover.Crossing(),
	}
	if err := cc.Validate(); err != nil {
		return usecase.Engines{}, fmt.Errorf("crossover: %w", err)
	}

	pc := positionConfig(cfg)
	if err := pc.Validate(); err != nil {
		return usecase.Engines{}, fmt.Errorf("position: %w", err)
	}

	return usecase.Engines{
		Indicators: indicators.NewEngine(ic),
		Sentiment:  sentiment.NewScorer(sc),
		Crossover:  crossover.NewDetector(cc),
		Position:   position.NewMachine(pc),
	}, nil
}

func sentimentConfig(s config.SentimentConfig) (sentiment.Config, error) {
	if len(s.Bands) != 4 {
		return sentiment.Config{}, fmt.Errorf("sentiment: need 4 bands, got %d", len(s.Bands))
	}
	sc := sentiment.Config{
		MinSamples:        s.MinSamples,
		HistoryWindow:     s.HistoryWindow,
		PercentileWeight:  s.PercentileWeight,
		LevelWeight:       s.LevelWeight,
		TrendAdjustment:   s.TrendAdjustment,
		TrendWindow:       s.TrendWindow,
		TrendTolerancePct: s.TrendTolerancePct,
		Thresholds: sentiment.Thresholds{
			ExtremeGreed: s.ExtremeGreedLevel,
			Greed:        s.GreedLevel,
			Fear:         s.FearLevel,
			ExtremeFear:  s.ExtremeFearLevel,
		},
		Bands:   [4]float64{s.Bands[0], s.Bands[1], s.Bands[2], s.Bands[3]},
		ShortMA: s.ShortMA,
		LongMA:  s.LongMA,
	}
	if err := sc.Validate(); err != nil {
		return sentiment.Config{}, fmt.Errorf("sentiment: %w", err)
	}
	return sc, nil
}

// positionConfig falls back to the classic pair rules when none are configured.
func positionConfig(cfg *config.Config) position.Config {
	pc := position.DefaultConfig(cfg.Pair.Growth, cfg.Pair.Defensive)
	if rules := cfg.Engine.Position.Rules; len(rules) > 0 {
		pc.Rules = make([]position.Rule, 0, len(rules))
		for _, r := range rules {
			pc.Rules = append(pc.Rules, position.Rule{
				Position:         models.Position(r.Position),
				Symbol:           r.Symbol,
				EntryOn:          models.CrossoverSignal(r.EntryOn),
				Trend:            position.TrendCondition(r.Trend),
				TrendSymbol:      r.TrendSymbol,
				TrendWindow:      r.TrendWindow,
				ExitOnTrendBreak: r.ExitOnTrendBreak,
				OverrideExempt:   r.OverrideExempt,
			})
		}
	}

	o := cfg.Engine.Position.Override
	pc.Override = position.OverridePolicy{Enabled: o.OverrideEnabled(), BlockEntry: o.EntryBlocked()}
	if len(o.ExitLevels) > 0 {
		pc.Override.ExitLevels = make([]models.SentimentLevel, 0, len(o.ExitLevels))
		for _, l := range o.ExitLevels {
			pc.Override.ExitLevels = append(pc.Override.ExitLevels, models.SentimentLevel(l))
		}
	}
	if len(cfg.Engine.Position.Alternatives) > 0 {
		pc.Alternatives = slices.Clone(cfg.Engine.Position.Alternatives)
	}
	return pc
}

// extraSymbols lists rule and trend instruments the pair fetch does not cover.
func extraSymbols(cfg *config.Config) []string {
	skip := []string{cfg.Pair.Growth, cfg.Pair.Defensive, cfg.Pair.Volatility}
	var out []string
	add := func(s string) {
		if s != "" && !slices.Contains(skip, s) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	for _, r := range positionConfig(cfg).Rules {
		add(r.Symbol)
		add(r.TrendSymbol)
	}
	return out
}
