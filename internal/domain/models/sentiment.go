package models

type SentimentLevel string

const (
	LevelExtremeFear  SentimentLevel = "extreme_fear"
	LevelFear         SentimentLevel = "fear"
	LevelNeutral      SentimentLevel = "neutral"
	LevelGreed        SentimentLevel = "greed"
	LevelExtremeGreed SentimentLevel = "extreme_greed"
)

func (l SentimentLevel) IsValid() bool {
	switch l {
	case LevelExtremeFear, LevelFear, LevelNeutral, LevelGreed, LevelExtremeGreed:
		return true
	}
	return false
}

type SentimentTrend string

const (
	TrendRising  SentimentTrend = "rising"
	TrendFalling SentimentTrend = "falling"
	TrendStable  SentimentTrend = "stable"
)

// SentimentReading is derived from the volatility index each cycle.
// Score is a fear score: 0 is complacent, 100 is panic.
type SentimentReading struct {
	Score      float64        `json:"score"`
	Level      SentimentLevel `json:"level"`
	Trend      SentimentTrend `json:"trend"`
	Current    float64        `json:"current"`
	Percentile float64        `json:"percentile"`
	ShortMA    *float64       `json:"short_ma,omitempty"`
	LongMA     *float64       `json:"long_ma,omitempty"`
}
