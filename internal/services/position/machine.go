package position

import (
	"fmt"
	"slices"
	"time"

	"MarketFlow/internal/domain/models"
)

// TrendCondition is the secondary confirmation a rule may require.
type TrendCondition string

const (
	TrendNone         TrendCondition = ""
	TrendPriceAboveMA TrendCondition = "above_ma"
	TrendPriceBelowMA TrendCondition = "below_ma"
)

// Rule binds a risk position to its instrument and entry/exit predicates.
// The position is entered from Cash on EntryOn (plus the trend condition when set)
// and exited on the opposite confirmed crossover, on a trend break when
// ExitOnTrendBreak is set, or on a sentiment override unless OverrideExempt.
type Rule struct {
	Position         models.Position
	Symbol           string
	EntryOn          models.CrossoverSignal
	Trend            TrendCondition
	TrendSymbol      string // defaults to Symbol
	TrendWindow      int
	ExitOnTrendBreak bool
	OverrideExempt   bool
}

func (r Rule) trendSymbol() string {
	if r.TrendSymbol != "" {
		return r.TrendSymbol
	}
	return r.Symbol
}

// OverridePolicy lets extreme sentiment force exits and optionally veto entries.
type OverridePolicy struct {
	Enabled    bool
	ExitLevels []models.SentimentLevel
	BlockEntry bool
}

func (o OverridePolicy) fires(s *models.SentimentReading) bool {
	return o.Enabled && s != nil && slices.Contains(o.ExitLevels, s.Level)
}

type Config struct {
	Rules        []Rule
	Override     OverridePolicy
	Alternatives []string
}

// DefaultConfig mirrors the classic growth/defensive pair: growth on an up-cross,
// defensive on a down-cross while above its 40-bar average.
func DefaultConfig(growth, defensive string) Config {
	return Config{
		Rules: []Rule{
			{Position: models.Growth, Symbol: growth, EntryOn: models.ConfirmedAbove},
			{
				Position:         models.Defensive,
				Symbol:           defensive,
				EntryOn:          models.ConfirmedBelow,
				Trend:            TrendPriceAboveMA,
				TrendWindow:      40,
				ExitOnTrendBreak: true,
			},
		},
		Override: OverridePolicy{
			Enabled:    true,
			ExitLevels: []models.SentimentLevel{models.LevelExtremeFear},
			BlockEntry: true,
		},
		Alternatives: []string{"SH", "PSQ", "AGG", "LQD", "TLT", "GLD"},
	}
}

func (c Config) Validate() error {
	if len(c.Rules) == 0 {
		return fmt.Errorf("at least one position rule is required")
	}
	seen := make(map[models.Position]bool, len(c.Rules))
	for i, r := range c.Rules {
		if !r.Position.IsRisk() {
			return fmt.Errorf("rule %d: %q is not a risk position", i, r.Position)
		}
		if seen[r.Position] {
			return fmt.Errorf("rule %d: duplicate rule for %q", i, r.Position)
		}
		seen[r.Position] = true
		if r.Symbol == "" {
			return fmt.Errorf("rule %d: symbol is required", i)
		}
		if r.EntryOn != models.ConfirmedAbove && r.EntryOn != models.ConfirmedBelow {
			return fmt.Errorf("rule %d: entry must be %s or %s", i, models.ConfirmedAbove, models.ConfirmedBelow)
		}
		switch r.Trend {
		case TrendNone:
			if r.ExitOnTrendBreak {
				return fmt.Errorf("rule %d: trend break exit needs a trend condition", i)
			}
		case TrendPriceAboveMA, TrendPriceBelowMA:
			if r.TrendWindow <= 0 {
				return fmt.Errorf("rule %d: trend window must be positive", i)
			}
		default:
			return fmt.Errorf("rule %d: unknown trend condition %q", i, r.Trend)
		}
	}
	for _, l := range c.Override.ExitLevels {
		if !l.IsValid() {
			return fmt.Errorf("override: unknown sentiment level %q", l)
		}
	}
	return nil
}

// Inputs are everything one cycle contributes to a decision.
type Inputs struct {
	Snapshot  models.IndicatorSnapshot
	Crossover models.CrossoverSignal
	Sentiment *models.SentimentReading // nil when sentiment was degraded
	Now       time.Time
}

// Decision is the next state. Transition is nil on hold.
type Decision struct {
	Next         models.Position
	Symbol       string
	Transition   *models.TransitionRecord
	Reason       string
	Alternatives []string
}

// Machine evaluates entry and exit rules. It keeps no state between calls.
type Machine struct {
	cfg   Config
	rules map[models.Position]Rule
}

func NewMachine(cfg Config) *Machine {
	rules := make(map[models.Position]Rule, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules[r.Position] = r
	}
	return &Machine{cfg: cfg, rules: rules}
}

// SymbolFor returns the instrument bound to p, empty for Cash or unconfigured positions.
func (m *Machine) SymbolFor(p models.Position) string {
	return m.rules[p].Symbol
}

// Evaluate returns the next state for current. Exits are checked before entries and
// entries are only considered from Cash, so a transition never joins two risk positions.
// A current value outside the enumeration yields *models.InvalidStateTransitionError.
func (m *Machine) Evaluate(current models.Position, in Inputs) (Decision, error) {
	switch current {
	case models.Cash:
		return m.evaluateEntry(in), nil
	case models.Growth, models.Defensive, models.Hedge:
		return m.evaluateExit(current, in), nil
	default:
		return Decision{}, &models.InvalidStateTransitionError{State: current}
	}
}

func (m *Machine) evaluateExit(current models.Position, in Inputs) Decision {
	rule, ok := m.rules[current]
	if !ok {
		return Decision{Next: current, Reason: fmt.Sprintf("no rule configured for %s, holding", current)}
	}
	hold := Decision{Next: current, Symbol: rule.Symbol, Reason: fmt.Sprintf("holding %s", rule.Symbol)}

	var (
		trigger models.Trigger
		detail  string
	)
	switch {
	case !rule.OverrideExempt && m.cfg.Override.fires(in.Sentiment):
		trigger = models.TriggerSentimentOverride
		detail = fmt.Sprintf("sentiment %s (score %.1f)", in.Sentiment.Level, in.Sentiment.Score)
	case in.Crossover != models.Unconfirmed && in.Crossover == rule.EntryOn.Opposite():
		trigger = crossoverTrigger(in.Crossover)
		detail = "ratio " + describeCrossover(in)
	case rule.ExitOnTrendBreak:
		held, known := m.trendHolds(rule, in.Snapshot)
		if !known || held {
			return hold
		}
		trigger = models.TriggerTrendBreak
		detail = fmt.Sprintf("%s lost its %d-bar average", rule.trendSymbol(), rule.TrendWindow)
	default:
		return hold
	}

	return Decision{
		Next:         models.Cash,
		Transition:   m.record(current, models.Cash, rule.Symbol, trigger, detail, in.Now),
		Reason:       fmt.Sprintf("exit %s: %s", rule.Symbol, detail),
		Alternatives: m.cfg.Alternatives,
	}
}

func (m *Machine) evaluateEntry(in Inputs) Decision {
	blocked := m.cfg.Override.BlockEntry && m.cfg.Override.fires(in.Sentiment)
	for _, p := range models.RiskPositions {
		rule, ok := m.rules[p]
		if !ok || in.Crossover == models.Unconfirmed || in.Crossover != rule.EntryOn {
			continue
		}
		if blocked && !rule.OverrideExempt {
			continue
		}
		if rule.Trend != TrendNone {
			if held, known := m.trendHolds(rule, in.Snapshot); !known || !held {
				continue
			}
		}
		detail := "ratio " + describeCrossover(in)
		if rule.Trend != TrendNone {
			detail += fmt.Sprintf(", %s %s its %d-bar average", rule.trendSymbol(), trendWord(rule.Trend), rule.TrendWindow)
		}
		return Decision{
			Next:       rule.Position,
			Symbol:     rule.Symbol,
			Transition: m.record(models.Cash, rule.Position, rule.Symbol, crossoverTrigger(in.Crossover), detail, in.Now),
			Reason:     fmt.Sprintf("enter %s: %s", rule.Symbol, detail),
		}
	}
	reason := "no entry signal, staying in cash"
	if blocked {
		reason = fmt.Sprintf("entries blocked by %s sentiment, staying in cash", in.Sentiment.Level)
	}
	return Decision{Next: models.Cash, Reason: reason, Alternatives: m.cfg.Alternatives}
}

// trendHolds reports whether the rule's trend condition is met and whether it could be evaluated.
func (m *Machine) trendHolds(rule Rule, snap models.IndicatorSnapshot) (held, known bool) {
	ind, ok := snap.Instrument(rule.trendSymbol())
	if !ok {
		return false, false
	}
	ma, ok := ind.MA(rule.TrendWindow)
	if !ok {
		return false, false
	}
	switch rule.Trend {
	case TrendPriceAboveMA:
		return ind.Last > ma, true
	case TrendPriceBelowMA:
		return ind.Last < ma, true
	default:
		return true, true
	}
}

func (m *Machine) record(from, to models.Position, symbol string, trig models.Trigger, detail string, at time.Time) *models.TransitionRecord {
	return &models.TransitionRecord{
		From:      from,
		To:        to,
		Symbol:    symbol,
		Timestamp: at,
		Trigger:   trig,
		Detail:    detail,
	}
}

func crossoverTrigger(s models.CrossoverSignal) models.Trigger {
	if s == models.ConfirmedBelow {
		return models.TriggerCrossoverDown
	}
	return models.TriggerCrossoverUp
}

func describeCrossover(in Inputs) string {
	word := "crossed above"
	if in.Crossover == models.ConfirmedBelow {
		word = "crossed below"
	}
	if in.Snapshot.Ratio != nil && in.Snapshot.Baseline != nil {
		return fmt.Sprintf("%s baseline (N=%.4f, V=%.4f)", word, *in.Snapshot.Ratio, *in.Snapshot.Baseline)
	}
	return word + " baseline"
}

func trendWord(c TrendCondition) string {
	if c == TrendPriceBelowMA {
		return "below"
	}
	return "above"
}
