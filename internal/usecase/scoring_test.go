package usecase

import (
	"testing"

	"perp-autotrader/internal/domain"
)

// ==================== Market condition ====================

func TestDetectMarketCondition(t *testing.T) {
	tests := []struct {
		name     string
		change   float64
		funding  float64
		rsi      domain.RSIZone
		ema      domain.Signal
		expected domain.MarketCondition
	}{
		{"rsi overbought", 2, 0, domain.RSIOverbought, domain.SignalNeutral, domain.ConditionOverbought},
		{"rsi overbought against bullish ema", 2, 0, domain.RSIOverbought, domain.SignalBullish, domain.ConditionBalanced},
		{"rsi oversold", -2, 0, domain.RSIOversold, domain.SignalNeutral, domain.ConditionOversold},
		{"rsi oversold against bearish ema", -2, 0, domain.RSIOversold, domain.SignalBearish, domain.ConditionBalanced},
		{"pump with hot funding", 7, 0.02, domain.RSINeutral, domain.SignalNeutral, domain.ConditionOverbought},
		{"dump with negative funding", -7, -0.01, domain.RSINeutral, domain.SignalNeutral, domain.ConditionOversold},
		{"pump without funding", 7, 0.001, domain.RSINeutral, domain.SignalNeutral, domain.ConditionBalanced},
		{"rally against bearish ema", 4, 0, domain.RSINeutral, domain.SignalBearish, domain.ConditionOverbought},
		{"drop against bullish ema", -4, 0, domain.RSINeutral, domain.SignalBullish, domain.ConditionOversold},
		{"flat", 0.5, 0, domain.RSINeutral, domain.SignalNeutral, domain.ConditionNeutral},
		{"moderate move", 2, 0, domain.RSINeutral, domain.SignalNeutral, domain.ConditionBalanced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectMarketCondition(tt.change, tt.funding, tt.rsi, tt.ema)
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestCalculateVolatility(t *testing.T) {
	got := CalculateVolatility(domain.Ticker{LastPrice: 100, HighPrice24h: 102, LowPrice24h: 98})
	if !floatEquals(got, 4, 1e-9) {
		t.Errorf("Expected volatility 4, got %v", got)
	}
	if got := CalculateVolatility(domain.Ticker{}); got != 0 {
		t.Errorf("Expected 0 without a price, got %v", got)
	}
}

// ==================== Leverage ====================

func TestRecommendLeverage(t *testing.T) {
	tests := []struct {
		name        string
		volatility  float64
		target      float64
		capital     float64
		maxLev      int
		recommended int
		cap         int
		category    domain.VolatilityCategory
	}{
		{"very high volatility", 12, 7.5, 100, 10, 2, 2, domain.VolatilityVeryHigh},
		{"high volatility", 6, 7.5, 100, 10, 3, 3, domain.VolatilityHigh},
		{"medium volatility", 4, 7.5, 100, 10, 5, 5, domain.VolatilityMedium},
		{"low volatility, floor below cap", 2, 3, 100, 10, 3, 7, domain.VolatilityLow},
		{"low volatility, floor above cap", 2, 20, 100, 10, 7, 7, domain.VolatilityLow},
		{"cap limited by max leverage", 2, 7.5, 100, 4, 4, 4, domain.VolatilityLow},
		{"tiny target floors at one", 2, 0.1, 100, 10, 1, 7, domain.VolatilityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecommendLeverage(tt.volatility, tt.target, tt.capital, tt.maxLev)
			if got.Recommended != tt.recommended {
				t.Errorf("Expected leverage %d, got %d", tt.recommended, got.Recommended)
			}
			if got.SafetyCap != tt.cap {
				t.Errorf("Expected cap %d, got %d", tt.cap, got.SafetyCap)
			}
			if got.VolatilityCategory != tt.category {
				t.Errorf("Expected category %s, got %s", tt.category, got.VolatilityCategory)
			}
			if got.Recommended < 1 || got.Recommended > tt.maxLev {
				t.Errorf("Expected leverage within 1..%d, got %d", tt.maxLev, got.Recommended)
			}
		})
	}
}

func TestClassifyRiskTier(t *testing.T) {
	tests := []struct {
		volatility float64
		leverage   int
		expected   domain.RiskTier
	}{
		{1, 5, domain.RiskMinimal},
		{4, 5, domain.RiskLow},
		{8, 10, domain.RiskMedium},
		{12, 10, domain.RiskHigh},
	}
	for _, tt := range tests {
		if got := ClassifyRiskTier(tt.volatility, tt.leverage); got != tt.expected {
			t.Errorf("Expected %s for vol=%v lev=%d, got %s", tt.expected, tt.volatility, tt.leverage, got)
		}
	}
}

// ==================== Scoring ====================

func TestRiskMultiplierBounds(t *testing.T) {
	calm := &domain.MarketAnalysis{Volatility: 1}
	if got := RiskMultiplier(calm, 100000); !floatEquals(got, 1, 1e-9) {
		t.Errorf("Expected neutral multiplier 1, got %v", got)
	}

	hot := &domain.MarketAnalysis{
		Volatility: 8,
		Flow:       &domain.WhaleFlow{NetFlow: -500000},
		Indicators: &domain.IndicatorSnapshot{EMASignal: domain.SignalBearish},
	}
	// 0.7 * 0.8 * 0.85
	if got := RiskMultiplier(hot, 100000); !floatEquals(got, 0.476, 1e-9) {
		t.Errorf("Expected multiplier 0.476, got %v", got)
	}

	strong := &domain.MarketAnalysis{
		Volatility: 1,
		Flow:       &domain.WhaleFlow{NetFlow: 500000},
		Indicators: &domain.IndicatorSnapshot{EMASignal: domain.SignalBullish},
	}
	if got := RiskMultiplier(strong, 100000); !floatEquals(got, 1.2, 1e-9) {
		t.Errorf("Expected multiplier capped at 1.2, got %v", got)
	}
}

func TestOpportunityScore(t *testing.T) {
	a := &domain.MarketAnalysis{
		Volatility: 1.5,
		Liquidity:  10,
		Ticker:     domain.Ticker{FundingRate: 0.0001},
		Leverage:   domain.LeverageRecommendation{RiskTier: domain.RiskMinimal},
		Position:   domain.SafePosition{PotentialProfit: 7},
		Condition:  domain.ConditionOversold,
	}
	if got := CalculateOpportunityScore(a, 100000); got != 100 {
		t.Errorf("Expected score clamped to 100, got %v", got)
	}

	b := &domain.MarketAnalysis{
		Volatility: 9,
		Ticker:     domain.Ticker{FundingRate: 0.02},
		Leverage:   domain.LeverageRecommendation{RiskTier: domain.RiskHigh},
		Condition:  domain.ConditionOverbought,
		Indicators: &domain.IndicatorSnapshot{EMASignal: domain.SignalBearish},
		Flow:       &domain.WhaleFlow{NetFlow: -200000},
	}
	// 50 - 15 - 8 - 10
	if got := CalculateOpportunityScore(b, 100000); !floatEquals(got, 17, 1e-9) {
		t.Errorf("Expected score 17, got %v", got)
	}
}

func TestCalculateOrderFlow(t *testing.T) {
	asset := func(profit float64) domain.MarketAnalysis {
		return domain.MarketAnalysis{Position: domain.SafePosition{PotentialProfit: profit}}
	}

	tests := []struct {
		name     string
		assets   []domain.MarketAnalysis
		expected domain.FlowTrend
	}{
		{"mostly long", []domain.MarketAnalysis{asset(6), asset(5), asset(1)}, domain.FlowBullish},
		{"mostly short", []domain.MarketAnalysis{asset(1), asset(2), asset(6)}, domain.FlowBearish},
		{"even", []domain.MarketAnalysis{asset(6), asset(1)}, domain.FlowBalanced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateOrderFlow(tt.assets); got.Trend != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got.Trend)
			}
		})
	}
}

func TestDetermineTradeSide(t *testing.T) {
	tests := []struct {
		name      string
		condition domain.MarketCondition
		trend     domain.TrendLabel
		flow      domain.FlowTrend
		expected  domain.Side
	}{
		{"oversold goes long", domain.ConditionOversold, domain.TrendNeutral, domain.FlowBalanced, domain.Long},
		{"oversold in strong downtrend", domain.ConditionOversold, domain.TrendStrongBearish, domain.FlowBalanced, domain.Short},
		{"overbought goes short", domain.ConditionOverbought, domain.TrendNeutral, domain.FlowBalanced, domain.Short},
		{"overbought in strong uptrend", domain.ConditionOverbought, domain.TrendStrongBullish, domain.FlowBalanced, domain.Long},
		{"trend decides", domain.ConditionBalanced, domain.TrendStrongBearish, domain.FlowBullish, domain.Short},
		{"flow decides", domain.ConditionNeutral, domain.TrendNeutral, domain.FlowBearish, domain.Short},
		{"defaults to long", domain.ConditionNeutral, domain.TrendNeutral, domain.FlowBalanced, domain.Long},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineTradeSide(tt.condition, tt.trend, tt.flow); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestNetProfitPct(t *testing.T) {
	if got := NetProfitPct(1, true); !floatEquals(got, 0.925, 1e-9) {
		t.Errorf("Expected maker entry net 0.925, got %v", got)
	}
	if got := NetProfitPct(1, false); !floatEquals(got, 0.89, 1e-9) {
		t.Errorf("Expected taker entry net 0.89, got %v", got)
	}
}
