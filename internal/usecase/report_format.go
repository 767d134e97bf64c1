package usecase

import (
	"fmt"
	"sort"
	"strings"

	"MarketFlow/internal/domain/models"
)

// FormatReport renders a cycle report as a notification title and plain-text body.
func FormatReport(r *models.CycleReport) (title, body string) {
	if t := r.Transition; t != nil {
		title = fmt.Sprintf("MarketFlow: %s -> %s", positionLabel(t.From, ""), positionLabel(t.To, t.Symbol))
	} else {
		title = "MarketFlow: holding " + positionLabel(r.Current, r.Symbol)
	}

	var b strings.Builder
	b.WriteString("[Strategy]\n")
	fmt.Fprintf(&b, "Position: %s\n", positionLabel(r.Current, r.Symbol))
	fmt.Fprintf(&b, "Pair: %s / %s\n", r.GrowthSymbol, r.DefSymbol)
	if r.Snapshot.Ratio != nil {
		fmt.Fprintf(&b, "Ratio N: %.4f\n", *r.Snapshot.Ratio)
	}
	if r.Snapshot.Baseline != nil {
		fmt.Fprintf(&b, "Baseline V: %.4f\n", *r.Snapshot.Baseline)
	}
	fmt.Fprintf(&b, "Crossover: %s\n", r.Crossover)
	fmt.Fprintf(&b, "Decision: %s\n", r.Reason)
	if len(r.Alternatives) > 0 && r.Current == models.Cash {
		fmt.Fprintf(&b, "Alternatives: %s\n", strings.Join(r.Alternatives, ", "))
	}

	symbols := make([]string, 0, len(r.Snapshot.Instruments))
	for sym := range r.Snapshot.Instruments {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	if len(symbols) > 0 {
		b.WriteString("\n[Moving averages]\n")
		for _, sym := range symbols {
			ind := r.Snapshot.Instruments[sym]
			windows := make([]int, 0, len(ind.MovingAverages))
			for w := range ind.MovingAverages {
				windows = append(windows, w)
			}
			sort.Ints(windows)
			parts := make([]string, 0, len(windows)+1)
			parts = append(parts, fmt.Sprintf("last %.2f", ind.Last))
			for _, w := range windows {
				parts = append(parts, fmt.Sprintf("MA%d %.2f", w, ind.MovingAverages[w]))
			}
			fmt.Fprintf(&b, "%s: %s\n", sym, strings.Join(parts, ", "))
		}

		b.WriteString("\n[Oscillator]\n")
		for _, sym := range symbols {
			ind := r.Snapshot.Instruments[sym]
			if ind.Oscillator == nil {
				fmt.Fprintf(&b, "%s: n/a\n", sym)
				continue
			}
			fmt.Fprintf(&b, "%s: RSI %.1f (%s)\n", sym, *ind.Oscillator, ind.Zone)
		}
	}

	b.WriteString("\n[Sentiment]\n")
	if s := r.Sentiment; s != nil {
		fmt.Fprintf(&b, "Score: %.1f (%s, %s)\n", s.Score, s.Level, s.Trend)
		fmt.Fprintf(&b, "Volatility: %.2f, percentile %.0f\n", s.Current, s.Percentile)
		if s.ShortMA != nil && s.LongMA != nil {
			fmt.Fprintf(&b, "Volatility MA: short %.2f, long %.2f\n", *s.ShortMA, *s.LongMA)
		}
	} else {
		b.WriteString("unavailable this cycle\n")
	}

	if len(r.Errors) > 0 {
		keys := make([]string, 0, len(r.Errors))
		for k := range r.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n[Degraded]\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, r.Errors[k])
		}
	}
	return title, strings.TrimRight(b.String(), "\n")
}

func positionLabel(p models.Position, symbol string) string {
	label := strings.ToUpper(string(p))
	if symbol != "" && p != models.Cash {
		label += " (" + symbol + ")"
	}
	return label
}
