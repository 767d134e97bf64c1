package models

import (
	"fmt"
	"slices"
	"time"
)

// PricePoint is one observation of an instrument or index.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// PriceSeries is the ordered history of one instrument.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// Validate checks that timestamps are strictly increasing.
func (s PriceSeries) Validate() error {
	for i := 1; i < len(s.Points); i++ {
		if !s.Points[i].Timestamp.After(s.Points[i-1].Timestamp) {
			return fmt.Errorf("series %s: point %d at %s is not after %s",
				s.Symbol, i, s.Points[i].Timestamp.Format(time.RFC3339), s.Points[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

func (s PriceSeries) Len() int { return len(s.Points) }

// Values returns the raw values in time order.
func (s PriceSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Last returns the most recent point.
func (s PriceSeries) Last() (PricePoint, bool) {
	if len(s.Points) == 0 {
		return PricePoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// WithLatest returns a copy of the series with p applied as the newest observation.
// A point newer than the last bar is appended; a point inside the last bar's period
// replaces the last value. Older points are ignored.
func (s PriceSeries) WithLatest(p PricePoint, period time.Duration) PriceSeries {
	last, ok := s.Last()
	if !ok {
		return PriceSeries{Symbol: s.Symbol, Points: []PricePoint{p}}
	}
	if !p.Timestamp.After(last.Timestamp) {
		return s
	}
	points := make([]PricePoint, len(s.Points), len(s.Points)+1)
	copy(points, s.Points)
	if period > 0 && p.Timestamp.Sub(last.Timestamp) < period {
		points[len(points)-1].Value = p.Value
	} else {
		points = append(points, p)
	}
	return PriceSeries{Symbol: s.Symbol, Points: points}
}

// Dedupe orders points by timestamp and keeps the first point of each
// timestamp. The input slice is not modified.
func (s PriceSeries) Dedupe() PriceSeries {
	if len(s.Points) < 2 {
		return s
	}
	sorted := slices.Clone(s.Points)
	slices.SortStableFunc(sorted, func(a, b PricePoint) int { return a.Timestamp.Compare(b.Timestamp) })
	out := make([]PricePoint, 0, len(sorted))
	for _, p := range sorted {
		if n := len(out); n > 0 && p.Timestamp.Equal(out[n-1].Timestamp) {
			continue
		}
		out = append(out, p)
	}
	return PriceSeries{Symbol: s.Symbol, Points: out}
}

// RatioSample is the relative strength N between the growth and defensive instruments.
type RatioSample struct {
	Timestamp time.Time `json:"timestamp"`
	N         float64   `json:"n"`
}

// RatioValues extracts N from samples in order.
func RatioValues(samples []RatioSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.N
	}
	return out
}

// Quote is a live trade print from the streaming feed.
type Quote struct {
	Symbol    string    `json:"s"`
	Price     float64   `json:"p"`
	Volume    float64   `json:"v"`
	Timestamp time.Time `json:"t"`
}
