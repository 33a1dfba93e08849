package indicators

import (
	"math"
	"sort"

	"perp-autotrader/internal/domain"
)

// LevelWindow is the number of trailing candles scanned for support and resistance.
const LevelWindow = 60

// FindSupportResistance returns the count lowest distinct lows (ascending) and the count
// highest distinct highs (descending) over the trailing window. Levels are rounded to
// levelPrecision of the last close, so sub-dollar instruments keep distinct levels.
func FindSupportResistance(candles []domain.Candle, window, count int) (support, resistance []float64) {
	if len(candles) == 0 || count <= 0 {
		return nil, nil
	}
	if window > 0 && len(candles) > window {
		candles = candles[len(candles)-window:]
	}

	places := levelPrecision(candles[len(candles)-1].Close)
	lows := make(map[float64]struct{})
	highs := make(map[float64]struct{})
	for _, c := range candles {
		lows[round(c.Low, places)] = struct{}{}
		highs[round(c.High, places)] = struct{}{}
	}

	for v := range lows {
		support = append(support, v)
	}
	for v := range highs {
		resistance = append(resistance, v)
	}
	sort.Float64s(support)
	sort.Sort(sort.Reverse(sort.Float64Slice(resistance)))

	if len(support) > count {
		support = support[:count]
	}
	if len(resistance) > count {
		resistance = resistance[:count]
	}
	return support, resistance
}

// levelPrecision keeps about five significant digits, never fewer than two decimals.
func levelPrecision(price float64) int {
	if price <= 0 {
		return 2
	}
	places := 4 - int(math.Floor(math.Log10(price)))
	return min(max(places, 2), 10)
}
