package indicators

import "perp-autotrader/internal/domain"

// CalculateTrend compares the 24-candle mean with the 96-candle mean.
func CalculateTrend(closes []float64) domain.Trend {
	if len(closes) == 0 {
		return domain.Trend{Label: domain.TrendNeutral}
	}

	fast := mean(tail(closes, 24))
	slow := fast
	if len(closes) >= 96 {
		slow = mean(tail(closes, 96))
	}

	gap := 0.0
	if slow != 0 {
		gap = (fast - slow) / slow * 100
	}

	label := domain.TrendNeutral
	switch {
	case gap > 1.5:
		label = domain.TrendStrongBullish
	case gap > 0.3:
		label = domain.TrendBullish
	case gap < -1.5:
		label = domain.TrendStrongBearish
	case gap < -0.3:
		label = domain.TrendBearish
	}

	return domain.Trend{Label: label, MAFast: fast, MASlow: slow, GapPct: gap}
}
