package indicators

import "perp-autotrader/internal/domain"

// VWAPWindow is four days of hourly candles.
const VWAPWindow = 96

// CalculateVWAP computes the volume weighted typical price over the trailing window.
// ok is false when the window carries no volume.
func CalculateVWAP(candles []domain.Candle, window int) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}
	if window > 0 && len(candles) > window {
		candles = candles[len(candles)-window:]
	}

	cumulativeTPV := 0.0
	cumulativeVol := 0.0
	for _, c := range candles {
		typicalPrice := (c.High + c.Low + c.Close) / 3.0
		cumulativeTPV += typicalPrice * c.Volume
		cumulativeVol += c.Volume
	}

	if cumulativeVol == 0 {
		return 0, false
	}
	return cumulativeTPV / cumulativeVol, true
}
