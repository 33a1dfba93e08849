package indicators

import (
	"math"

	"perp-autotrader/internal/domain"
)

// TrueRange of candle i against the previous close.
func TrueRange(prev, cur domain.Candle) float64 {
	hl := cur.High - cur.Low
	hc := math.Abs(cur.High - prev.Close)
	lc := math.Abs(cur.Low - prev.Close)

	maxVal := hl
	if hc > maxVal {
		maxVal = hc
	}
	if lc > maxVal {
		maxVal = lc
	}
	return maxVal
}

// CalculateATR is the mean true range over the trailing period candles.
// ok is false with fewer than period+1 candles.
func CalculateATR(candles []domain.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}

	sumTR := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sumTR += TrueRange(candles[i-1], candles[i])
	}
	return sumTR / float64(period), true
}
