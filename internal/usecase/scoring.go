package usecase

import (
	"math"

	"perp-autotrader/internal/domain"
)

// DetectMarketCondition classifies overbought/oversold state. An RSI extreme wins unless
// the EMA trend disagrees, in which case it degrades to BALANCED. Without an RSI extreme
// the 24h change is combined with funding, then with the EMA trend.
func DetectMarketCondition(changePct, funding float64, rsiZone domain.RSIZone, ema domain.Signal) domain.MarketCondition {
	switch rsiZone {
	case domain.RSIOverbought:
		if ema == domain.SignalBullish {
			return domain.ConditionBalanced
		}
		return domain.ConditionOverbought
	case domain.RSIOversold:
		if ema == domain.SignalBearish {
			return domain.ConditionBalanced
		}
		return domain.ConditionOversold
	}

	if changePct > 6 && funding > 0.01 {
		return domain.ConditionOverbought
	}
	if changePct < -6 && funding < -0.005 {
		return domain.ConditionOversold
	}

	if ema == domain.SignalBearish && changePct > 3 {
		return domain.ConditionOverbought
	}
	if ema == domain.SignalBullish && changePct < -3 {
		return domain.ConditionOversold
	}

	if math.Abs(changePct) < 1 {
		return domain.ConditionNeutral
	}
	return domain.ConditionBalanced
}

// CalculateVolatility is the 24h high-low range relative to the last price, in percent.
func CalculateVolatility(t domain.Ticker) float64 {
	if t.LastPrice <= 0 {
		return 0
	}
	return roundTo((t.HighPrice24h-t.LowPrice24h)/t.LastPrice*100, 2)
}

// CalculateLiquidity scores turnover and open interest, 0..10.
func CalculateLiquidity(t domain.Ticker) float64 {
	volumeScore := math.Min(t.Turnover24h/1e9, 1) * 5
	oiScore := math.Min(t.OpenInterestValue/1e8, 1) * 5
	return volumeScore + oiScore
}

// RecommendLeverage combines a volatility safety cap with the floor needed to reach the
// daily target on the given capital.
func RecommendLeverage(volatility, dailyTarget, capital float64, maxLeverage int) domain.LeverageRecommendation {
	var safetyCap int
	var category domain.VolatilityCategory
	switch {
	case volatility > 10:
		safetyCap, category = 2, domain.VolatilityVeryHigh
	case volatility > 5:
		safetyCap, category = 3, domain.VolatilityHigh
	case volatility > 3:
		safetyCap, category = 5, domain.VolatilityMedium
	default:
		safetyCap, category = 7, domain.VolatilityLow
	}
	if maxLeverage > 0 && safetyCap > maxLeverage {
		safetyCap = maxLeverage
	}

	floor := 1
	if capital > 0 {
		floor = max(1, int(dailyTarget/(capital*0.01)))
	}
	recommended := min(safetyCap, max(1, floor))

	return domain.LeverageRecommendation{
		Recommended:        recommended,
		SafetyCap:          safetyCap,
		TargetFloor:        floor,
		VolatilityCategory: category,
		RiskTier:           ClassifyRiskTier(volatility, recommended),
	}
}

// ClassifyRiskTier bands volatility times leverage.
func ClassifyRiskTier(volatility float64, leverage int) domain.RiskTier {
	score := volatility * float64(leverage) / 10
	switch {
	case score < 2:
		return domain.RiskMinimal
	case score < 5:
		return domain.RiskLow
	case score < 10:
		return domain.RiskMedium
	}
	return domain.RiskHigh
}

// RiskMultiplier scales the per-trade risk budget by volatility, whale flow and EMA bias.
func RiskMultiplier(a *domain.MarketAnalysis, flowThreshold float64) float64 {
	multiplier := 1.0

	if a.Volatility > 6 {
		multiplier *= 0.7
	} else if a.Volatility > 4 {
		multiplier *= 0.85
	}

	flow := a.NetFlow()
	if flow < -flowThreshold {
		multiplier *= 0.8
	} else if flow > flowThreshold {
		multiplier *= 1.1
	}

	switch a.EMASignal() {
	case domain.SignalBullish:
		multiplier *= 1.1
	case domain.SignalBearish:
		multiplier *= 0.85
	}

	return math.Max(0.4, math.Min(multiplier, 1.2))
}

// CalculateOpportunityScore ranks an analysed instrument on 0..100.
func CalculateOpportunityScore(a *domain.MarketAnalysis, flowThreshold float64) float64 {
	score := 50.0

	// Volatility: lower is safer
	if a.Volatility < 2 {
		score += 20
	} else if a.Volatility < 3 {
		score += 15
	} else if a.Volatility < 5 {
		score += 10
	} else if a.Volatility < 7 {
		score += 5
	}

	funding := math.Abs(a.Ticker.FundingRate)
	if funding < 0.001 {
		score += 15
	} else if funding < 0.005 {
		score += 10
	} else if funding < 0.01 {
		score += 5
	}

	score += a.Liquidity * 2

	switch a.Leverage.RiskTier {
	case domain.RiskMinimal:
		score += 15
	case domain.RiskLow:
		score += 10
	case domain.RiskMedium:
		score += 5
	}

	profit := a.Position.PotentialProfit
	if profit >= 5 && profit <= 10 {
		score += 10
	} else if (profit >= 3 && profit < 5) || (profit > 10 && profit <= 15) {
		score += 5
	}

	switch a.Condition {
	case domain.ConditionOverbought:
		score -= 15
	case domain.ConditionOversold:
		score += 10
	}

	switch a.EMASignal() {
	case domain.SignalBullish:
		score += 8
	case domain.SignalBearish:
		score -= 8
	}

	flow := a.NetFlow()
	if flow > flowThreshold {
		score += 7
	} else if flow < -flowThreshold {
		score -= 10
	}

	return math.Max(0, math.Min(score, 100))
}

// CalculateOrderFlow counts instruments whose indicative profit reaches 5 as long-leaning.
func CalculateOrderFlow(assets []domain.MarketAnalysis) domain.OrderFlow {
	longs := 0
	for _, a := range assets {
		if a.Position.PotentialProfit >= 5 {
			longs++
		}
	}
	shorts := len(assets) - longs

	trend := domain.FlowBalanced
	if float64(longs) > float64(shorts)*1.5 {
		trend = domain.FlowBullish
	} else if float64(shorts) > float64(longs)*1.5 {
		trend = domain.FlowBearish
	}
	return domain.OrderFlow{Longs: longs, Shorts: shorts, Trend: trend}
}

// DetermineTradeSide picks a side without advisory input. Oversold favours Long and
// overbought favours Short unless the instrument trend is strongly against it; otherwise
// the trend decides, then the market-wide flow, defaulting to Long.
func DetermineTradeSide(condition domain.MarketCondition, trend domain.TrendLabel, flow domain.FlowTrend) domain.Side {
	switch condition {
	case domain.ConditionOversold:
		if trend == domain.TrendStrongBearish {
			return domain.Short
		}
		return domain.Long
	case domain.ConditionOverbought:
		if trend == domain.TrendStrongBullish {
			return domain.Long
		}
		return domain.Short
	}

	switch {
	case trend.IsBearish():
		return domain.Short
	case trend.IsBullish():
		return domain.Long
	case flow == domain.FlowBearish:
		return domain.Short
	}
	return domain.Long
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
