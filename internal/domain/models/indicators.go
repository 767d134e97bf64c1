package models

type OscillatorZone string

const (
	ZoneOversold   OscillatorZone = "oversold"
	ZoneNeutral    OscillatorZone = "neutral"
	ZoneOverbought OscillatorZone = "overbought"
)

// InstrumentIndicators holds the per-instrument part of a snapshot.
// Windows that could not be computed are listed in Errors instead of MovingAverages.
type InstrumentIndicators struct {
	Symbol         string            `json:"symbol"`
	Last           float64           `json:"last"`
	MovingAverages map[int]float64   `json:"moving_averages"`
	Oscillator     *float64          `json:"oscillator,omitempty"`
	Zone           OscillatorZone    `json:"zone,omitempty"`
	Errors         map[string]string `json:"errors,omitempty"`
}

// MA returns the moving average for a window when it was computed.
func (i InstrumentIndicators) MA(window int) (float64, bool) {
	v, ok := i.MovingAverages[window]
	return v, ok
}

// IndicatorSnapshot is the immutable bundle produced once per cycle.
type IndicatorSnapshot struct {
	Ratio       *float64                        `json:"ratio,omitempty"`
	Baseline    *float64                        `json:"baseline,omitempty"`
	Instruments map[string]InstrumentIndicators `json:"instruments"`
}

// Instrument returns indicators for symbol, if present.
func (s IndicatorSnapshot) Instrument(symbol string) (InstrumentIndicators, bool) {
	ind, ok := s.Instruments[symbol]
	return ind, ok
}
