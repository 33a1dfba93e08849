package indicators

import (
	"math"

	"perp-autotrader/internal/domain"
)

const (
	patternLookback  = 5
	patternsKept     = 3
	rejectionsKept   = 5
	rejectionFactor  = 1.5
	strongWickFactor = 2.0
)

// ClassifyCandle tags a single candle from its body-to-range and wick-to-body ratios.
func ClassifyCandle(c domain.Candle) domain.PatternKind {
	body := math.Abs(c.Close - c.Open)
	upper := c.High - math.Max(c.Open, c.Close)
	lower := math.Min(c.Open, c.Close) - c.Low
	total := c.High - c.Low

	switch {
	case body < total*0.1:
		return domain.PatternDoji
	case upper > body*2 && lower < body*0.5:
		if c.Close < c.Open {
			return domain.PatternShootingStar
		}
		return domain.PatternInvertedHammer
	case lower > body*2 && upper < body*0.5:
		if c.Close > c.Open {
			return domain.PatternHammer
		}
		return domain.PatternHangingMan
	case body > total*0.7:
		return domain.PatternMarubozu
	}
	return domain.PatternNormal
}

// AnalyzeCandles classifies the last five candles and collects wick rejection levels.
// Fewer than two candles yield an empty analysis.
func AnalyzeCandles(candles []domain.Candle) domain.CandleAnalysis {
	if len(candles) < 2 {
		return domain.CandleAnalysis{}
	}

	var (
		patterns   []domain.CandlePattern
		rejections []domain.RejectionLevel
	)

	for _, c := range tailCandles(candles, patternLookback) {
		body := math.Abs(c.Close - c.Open)
		upper := c.High - math.Max(c.Open, c.Close)
		lower := math.Min(c.Open, c.Close) - c.Low
		total := c.High - c.Low

		if upper > body*rejectionFactor {
			rejections = append(rejections, domain.RejectionLevel{
				Kind:     "RESISTANCE",
				Price:    c.High,
				Strength: wickStrength(upper, body),
			})
		}
		if lower > body*rejectionFactor {
			rejections = append(rejections, domain.RejectionLevel{
				Kind:     "SUPPORT",
				Price:    c.Low,
				Strength: wickStrength(lower, body),
			})
		}

		p := domain.CandlePattern{
			Time:    c.OpenTime,
			Pattern: ClassifyCandle(c),
			Bullish: c.Close > c.Open,
		}
		if total > 0 {
			p.BodyPct = body / total * 100
			p.UpperWickPct = upper / total * 100
			p.LowerWickPct = lower / total * 100
		}
		patterns = append(patterns, p)
	}

	var sumUpper, sumLower, sumBody float64
	for _, p := range patterns {
		sumUpper += p.UpperWickPct
		sumLower += p.LowerWickPct
		sumBody += p.BodyPct
	}
	n := float64(len(patterns))

	analysis := domain.CandleAnalysis{
		AvgUpperWickPct: round(sumUpper/n, 2),
		AvgLowerWickPct: round(sumLower/n, 2),
		BodyToWickRatio: round((sumBody/n)/((sumUpper+sumLower)/n+0.01), 2),
	}

	if len(patterns) > patternsKept {
		patterns = patterns[len(patterns)-patternsKept:]
	}
	if len(rejections) > rejectionsKept {
		rejections = rejections[len(rejections)-rejectionsKept:]
	}
	analysis.Patterns = patterns
	analysis.Rejections = rejections
	return analysis
}

func wickStrength(wick, body float64) string {
	if wick > body*strongWickFactor {
		return "STRONG"
	}
	return "MODERATE"
}
