package indicators

import (
	"math"

	"perp-autotrader/internal/domain"
)

const (
	rsiPeriod     = 14
	atrPeriod     = 14
	macdFast      = 12
	macdSlow      = 26
	macdSignal    = 9
	bbPeriod      = 20
	bbMultiplier  = 2.0
	levelCount    = 3
	rangeWindow   = 120
	volumeWindow  = 48
	dayCandles    = 24
	patternWindow = 20
)

// Snapshot computes every indicator for a candle series ordered oldest first.
// Indicators whose window is not met are left nil.
func Snapshot(symbol string, candles []domain.Candle) *domain.IndicatorSnapshot {
	snap := &domain.IndicatorSnapshot{
		Symbol:      symbol,
		EMASignal:   domain.SignalNeutral,
		RSIZone:     domain.RSINeutral,
		CandleCount: len(candles),
		Trend:       domain.Trend{Label: domain.TrendNeutral},
	}
	if len(candles) == 0 {
		return snap
	}

	closes := Closes(candles)
	price := closes[len(closes)-1]
	snap.Price = price

	ema50, ok50 := CalculateEMA(closes, 50)
	ema200, ok200 := CalculateEMA(closes, 200)
	if ok50 {
		snap.EMA50 = &ema50
	}
	if ok200 {
		snap.EMA200 = &ema200
	}
	if ok50 && ok200 {
		snap.EMASignal = EMASignal(ema50, ema200)
	}

	if rsi, ok := CalculateRSI(closes, rsiPeriod); ok {
		snap.RSI = &rsi
		snap.RSIZone = RSIZone(rsi)
	}
	if atr, ok := CalculateATR(candles, atrPeriod); ok {
		snap.ATR = &atr
	}
	if macd, ok := CalculateMACD(closes, macdFast, macdSlow, macdSignal); ok {
		snap.MACD = macd
	}
	if bb, ok := CalculateBollingerBands(closes, bbPeriod, bbMultiplier); ok {
		snap.Bollinger = bb
	}
	if vwap, ok := CalculateVWAP(candles, VWAPWindow); ok && vwap != 0 {
		dist := (price - vwap) / vwap * 100
		snap.VWAP = &vwap
		snap.VWAPDistancePct = &dist
	}

	snap.Support, snap.Resistance = FindSupportResistance(candles, LevelWindow, levelCount)
	snap.Candles = AnalyzeCandles(tailCandles(candles, patternWindow))
	snap.Trend = CalculateTrend(closes)

	if len(closes) >= dayCandles {
		if ref := closes[len(closes)-dayCandles]; ref != 0 {
			snap.DayChangePct = (price - ref) / ref * 100
		}
	}
	if closes[0] != 0 {
		snap.WeekChangePct = (price - closes[0]) / closes[0] * 100
	}
	snap.RangeWidthPct = RangeWidth(tailCandles(candles, rangeWindow))

	volumes := make([]float64, len(candles))
	for i, c := range candles {
		volumes[i] = c.Volume
	}
	snap.AvgVolume = mean(tail(volumes, volumeWindow))

	return snap
}

// RangeWidth is the high-low span of the candles relative to the lowest low, in percent.
func RangeWidth(candles []domain.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	hi := candles[0].High
	lo := candles[0].Low
	for _, c := range candles[1:] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	if lo <= 0 {
		return 0
	}
	return (hi - lo) / lo * 100
}

// Closes extracts the close prices.
func Closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func tail(values []float64, n int) []float64 {
	if len(values) > n {
		return values[len(values)-n:]
	}
	return values
}

func tailCandles(candles []domain.Candle, n int) []domain.Candle {
	if len(candles) > n {
		return candles[len(candles)-n:]
	}
	return candles
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
