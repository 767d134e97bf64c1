package crossover

import (
	"fmt"

	"MarketFlow/internal/domain/models"
)

type Config struct {
	K      int
	Policy models.ConfirmationPolicy
	// RequireCrossing demands that the buffer shows the series on the opposite side
	// before the confirming samples. Without it a series that never crossed still confirms.
	RequireCrossing bool
}

// DefaultConfig confirms only a genuine crossing: [above, above, above] with no
// earlier below sample stays Unconfirmed. Set RequireCrossing to false for plain
// level confirmation over the last K samples.
func DefaultConfig() Config {
	return Config{K: 3, Policy: models.PolicyStrictAll, RequireCrossing: true}
}

func (c Config) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("confirmation length must be at least 1, got %d", c.K)
	}
	if !c.Policy.IsValid() {
		return fmt.Errorf("unknown confirmation policy %q", c.Policy)
	}
	return nil
}

type side int8

const (
	sideNone side = iota
	sideAbove
	sideBelow
)

func sideOf(v, threshold float64) side {
	switch {
	case v > threshold:
		return sideAbove
	case v < threshold:
		return sideBelow
	default:
		return sideNone
	}
}

func (s side) opposite() side {
	switch s {
	case sideAbove:
		return sideBelow
	case sideBelow:
		return sideAbove
	default:
		return sideNone
	}
}

func (s side) signal() models.CrossoverSignal {
	switch s {
	case sideAbove:
		return models.ConfirmedAbove
	case sideBelow:
		return models.ConfirmedBelow
	default:
		return models.Unconfirmed
	}
}

// Detector decides whether a ratio has durably crossed its baseline.
type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

func (d *Detector) Config() Config { return d.cfg }

// Detect evaluates samples (oldest first, newest last) against threshold.
// A sample equal to the threshold sits on neither side and breaks a run.
func (d *Detector) Detect(samples []float64, threshold float64) models.CrossoverSignal {
	if len(samples) < d.cfg.K || d.cfg.K < 1 {
		return models.Unconfirmed
	}
	switch d.cfg.Policy {
	case models.PolicyMajority:
		return d.majority(samples, threshold)
	default:
		return d.strictAll(samples, threshold)
	}
}

// strictAll confirms when the trailing run on one side is at least K long.
// Any contrary sample resets the run to zero.
func (d *Detector) strictAll(samples []float64, threshold float64) models.CrossoverSignal {
	last := sideOf(samples[len(samples)-1], threshold)
	if last == sideNone {
		return models.Unconfirmed
	}
	run := 0
	for i := len(samples) - 1; i >= 0 && sideOf(samples[i], threshold) == last; i-- {
		run++
	}
	if run < d.cfg.K {
		return models.Unconfirmed
	}
	if d.cfg.RequireCrossing && !hasSide(samples[:len(samples)-run], threshold, last.opposite()) {
		return models.Unconfirmed
	}
	return last.signal()
}

// majority confirms when strictly more than half of the last K samples share a side
// and the newest sample is on that side.
func (d *Detector) majority(samples []float64, threshold float64) models.CrossoverSignal {
	window := samples[len(samples)-d.cfg.K:]
	var above, below int
	for _, v := range window {
		switch sideOf(v, threshold) {
		case sideAbove:
			above++
		case sideBelow:
			below++
		}
	}
	var s side
	switch {
	case 2*above > d.cfg.K:
		s = sideAbove
	case 2*below > d.cfg.K:
		s = sideBelow
	default:
		return models.Unconfirmed
	}
	if sideOf(window[len(window)-1], threshold) != s {
		return models.Unconfirmed
	}
	if d.cfg.RequireCrossing && !hasSide(samples, threshold, s.opposite()) {
		return models.Unconfirmed
	}
	return s.signal()
}

func hasSide(samples []float64, threshold float64, want side) bool {
	for _, v := range samples {
		if sideOf(v, threshold) == want {
			return true
		}
	}
	return false
}
