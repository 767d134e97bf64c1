package models

import "time"

// CycleReport is emitted once per evaluation cycle for persistence and notification.
type CycleReport struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	GrowthSymbol string            `json:"growth_symbol"`
	DefSymbol    string            `json:"defensive_symbol"`
	Previous     Position          `json:"previous"`
	Current      Position          `json:"current"`
	Symbol       string            `json:"symbol,omitempty"`
	Snapshot     IndicatorSnapshot `json:"snapshot"`
	Sentiment    *SentimentReading `json:"sentiment,omitempty"`
	Crossover    CrossoverSignal   `json:"crossover"`
	Transition   *TransitionRecord `json:"transition,omitempty"`
	Reason       string            `json:"reason"`
	Alternatives []string          `json:"alternatives,omitempty"`
	Errors       map[string]string `json:"errors,omitempty"`
	Duration     time.Duration     `json:"duration_ns"`
}

// Degraded reports whether any signal was skipped this cycle.
func (r *CycleReport) Degraded() bool { return len(r.Errors) > 0 }
