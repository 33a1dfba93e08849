package indicators

import "perp-autotrader/internal/domain"

// CalculateRSI computes the Relative Strength Index from the simple mean of the trailing
// period gains and losses. ok is false with fewer than period+1 closes.
func CalculateRSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	sumGain := 0.0
	sumLoss := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			sumGain += change
		} else {
			sumLoss -= change
		}
	}

	avgGain := sumGain / float64(period)
	avgLoss := sumLoss / float64(period)
	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// RSIZone classifies an RSI reading.
func RSIZone(rsi float64) domain.RSIZone {
	switch {
	case rsi > 70:
		return domain.RSIOverbought
	case rsi < 30:
		return domain.RSIOversold
	}
	return domain.RSINeutral
}
