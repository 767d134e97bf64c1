package models

import "time"

// Position is the closed set of holdings the state machine may recommend.
type Position string

const (
	Cash      Position = "cash"
	Growth    Position = "growth"
	Defensive Position = "defensive"
	Hedge     Position = "hedge"
)

// RiskPositions lists every non-cash position in evaluation order.
var RiskPositions = []Position{Growth, Defensive, Hedge}

func (p Position) IsValid() bool {
	switch p {
	case Cash, Growth, Defensive, Hedge:
		return true
	}
	return false
}

// IsRisk reports whether p holds market exposure.
func (p Position) IsRisk() bool {
	switch p {
	case Growth, Defensive, Hedge:
		return true
	}
	return false
}

// Trigger names the signal that caused a transition.
type Trigger string

const (
	TriggerCrossoverUp       Trigger = "crossover_up"
	TriggerCrossoverDown     Trigger = "crossover_down"
	TriggerTrendBreak        Trigger = "trend_break"
	TriggerSentimentOverride Trigger = "sentiment_override"
)

// TransitionRecord is one accepted position change. From and To are never both risk positions.
type TransitionRecord struct {
	ID        string    `json:"id"`
	From      Position  `json:"from"`
	To        Position  `json:"to"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Trigger   Trigger   `json:"trigger"`
	Detail    string    `json:"detail,omitempty"`
}

// PositionState is what the state store keeps between cycles.
type PositionState struct {
	Position  Position  `json:"position"`
	Symbol    string    `json:"symbol,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
