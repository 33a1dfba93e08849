package indicators

import (
	"math"

	"perp-autotrader/internal/domain"
)

// CalculateBollingerBands computes the bands over the trailing period closes using the
// population standard deviation. ok is false with fewer than period closes.
func CalculateBollingerBands(closes []float64, period int, multiplier float64) (*domain.Bollinger, bool) {
	length := len(closes)
	if period <= 0 || length < period {
		return nil, false
	}

	window := closes[length-period:]
	ma := mean(window)

	sumSqDiff := 0.0
	for _, c := range window {
		diff := c - ma
		sumSqDiff += diff * diff
	}
	stdDev := math.Sqrt(sumSqDiff / float64(period))

	upper := ma + (multiplier * stdDev)
	lower := ma - (multiplier * stdDev)
	price := closes[length-1]

	percentB := 0.5
	if upper != lower {
		percentB = (price - lower) / (upper - lower)
	}

	bandwidth := 0.0
	if ma != 0 {
		bandwidth = (upper - lower) / ma * 100
	}

	var position domain.BandPosition
	switch {
	case price > upper:
		position = domain.BandAboveUpper
	case price < lower:
		position = domain.BandBelowLower
	case percentB > 0.8:
		position = domain.BandNearUpper
	case percentB < 0.2:
		position = domain.BandNearLower
	default:
		position = domain.BandMiddle
	}

	return &domain.Bollinger{
		Upper:     upper,
		Middle:    ma,
		Lower:     lower,
		PercentB:  percentB,
		Bandwidth: bandwidth,
		Position:  position,
	}, true
}
