package domain

import "time"

type MarketCondition string

const (
	ConditionOverbought MarketCondition = "OVERBOUGHT"
	ConditionOversold   MarketCondition = "OVERSOLD"
	ConditionBalanced   MarketCondition = "BALANCED"
	ConditionNeutral    MarketCondition = "NEUTRAL"
)

type VolatilityCategory string

const (
	VolatilityVeryHigh VolatilityCategory = "VERY_HIGH"
	VolatilityHigh     VolatilityCategory = "HIGH"
	VolatilityMedium   VolatilityCategory = "MEDIUM"
	VolatilityLow      VolatilityCategory = "LOW"
)

type RiskTier string

const (
	RiskMinimal RiskTier = "MINIMAL"
	RiskLow     RiskTier = "LOW"
	RiskMedium  RiskTier = "MEDIUM"
	RiskHigh    RiskTier = "HIGH"
)

// FlowTrend summarises how many scanned instruments lean long versus short.
type FlowTrend string

const (
	FlowBullish  FlowTrend = "BULLISH"
	FlowBearish  FlowTrend = "BEARISH"
	FlowBalanced FlowTrend = "BALANCED"
)

type OrderFlow struct {
	Longs  int       `json:"longs"`
	Shorts int       `json:"shorts"`
	Trend  FlowTrend `json:"trend"`
}

type LeverageRecommendation struct {
	Recommended        int                `json:"recommended"`
	SafetyCap          int                `json:"safetyCap"`
	TargetFloor        int                `json:"targetFloor"`
	VolatilityCategory VolatilityCategory `json:"volatilityCategory"`
	RiskTier           RiskTier           `json:"riskTier"`
}

// RiskParameters are the engine-wide limits. They are loaded once and never mutated.
type RiskParameters struct {
	MaxRiskPerTrade     float64 `yaml:"max_risk_per_trade" json:"maxRiskPerTrade" default:"0.02" validate:"gt=0,lte=0.2"`
	MaxTotalRisk        float64 `yaml:"max_total_risk" json:"maxTotalRisk" default:"0.10" validate:"gt=0,lte=1"`
	MaxLeverage         int     `yaml:"max_leverage" json:"maxLeverage" default:"10" validate:"gte=1,lte=100"`
	MinRewardRatio      float64 `yaml:"min_reward_ratio" json:"minRewardRatio" default:"1.5" validate:"gt=0"`
	MaxCorrelation      float64 `yaml:"max_correlation" json:"maxCorrelation" default:"0.9" validate:"gt=0,lte=1"`
	MaxDrawdown         float64 `yaml:"max_drawdown" json:"maxDrawdown" default:"0.20" validate:"gt=0,lte=1"`
	TrailingStopPct     float64 `yaml:"trailing_stop_pct" json:"trailingStopPct" default:"0.02" validate:"gt=0,lt=1"`
	PartialClosePct     float64 `yaml:"partial_close_pct" json:"partialClosePct" default:"0.5" validate:"gt=0,lte=1"`
	MaxDailyLoss        float64 `yaml:"max_daily_loss" json:"maxDailyLoss" default:"0.05" validate:"gt=0,lte=1"`
	MinStopDistance     float64 `yaml:"min_stop_distance" json:"minStopDistance" default:"0.005" validate:"gt=0,lt=1"`
	MaxStopDistance     float64 `yaml:"max_stop_distance" json:"maxStopDistance" default:"0.05" validate:"gt=0,lt=1"`
	DefaultTargetPct    float64 `yaml:"default_target_pct" json:"defaultTargetPct" default:"0.005" validate:"gt=0,lt=1"`
	MinRiskFraction     float64 `yaml:"min_risk_fraction" json:"minRiskFraction" default:"0.005" validate:"gte=0,lt=1"`
	ATRStopMultiplier   float64 `yaml:"atr_stop_multiplier" json:"atrStopMultiplier" default:"2" validate:"gt=0"`
	MinVolatilityFrac   float64 `yaml:"min_volatility_fraction" json:"minVolatilityFraction" default:"0.01" validate:"gt=0,lt=1"`
	LiquidationWarnPct  float64 `yaml:"liquidation_warn_pct" json:"liquidationWarnPct" default:"2" validate:"gt=0"`
	TargetNotifyRatio   float64 `yaml:"target_notify_ratio" json:"targetNotifyRatio" default:"0.8" validate:"gt=0,lte=1"`
	WhaleNotional       float64 `yaml:"whale_notional" json:"whaleNotional" default:"50000" validate:"gt=0"`
	FlowScoreThreshold  float64 `yaml:"flow_score_threshold" json:"flowScoreThreshold" default:"100000" validate:"gt=0"`
	CorrelationLookback int     `yaml:"correlation_lookback_days" json:"correlationLookbackDays" default:"30" validate:"gte=1"`
}

// DefaultRiskParameters returns the stock limits.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		MaxRiskPerTrade:     0.02,
		MaxTotalRisk:        0.10,
		MaxLeverage:         10,
		MinRewardRatio:      1.5,
		MaxCorrelation:      0.9,
		MaxDrawdown:         0.20,
		TrailingStopPct:     0.02,
		PartialClosePct:     0.5,
		MaxDailyLoss:        0.05,
		MinStopDistance:     0.005,
		MaxStopDistance:     0.05,
		DefaultTargetPct:    0.005,
		MinRiskFraction:     0.005,
		ATRStopMultiplier:   2,
		MinVolatilityFrac:   0.01,
		LiquidationWarnPct:  2,
		TargetNotifyRatio:   0.8,
		WhaleNotional:       50000,
		FlowScoreThreshold:  100000,
		CorrelationLookback: 30,
	}
}

// SafePosition is the indicative sizing shown for a scanned instrument.
type SafePosition struct {
	Entry           float64 `json:"entry"`
	StopLoss        float64 `json:"stopLoss"`
	TakeProfit      float64 `json:"takeProfit"`
	Size            float64 `json:"size"`
	Notional        float64 `json:"notional"`
	RiskAmount      float64 `json:"riskAmount"`
	PotentialProfit float64 `json:"potentialProfit"`
	Leverage        int     `json:"leverage"`
}

// MarketAnalysis is the per-instrument result of one scan.
type MarketAnalysis struct {
	Symbol         string                 `json:"symbol"`
	Ticker         Ticker                 `json:"ticker"`
	Indicators     *IndicatorSnapshot     `json:"indicators,omitempty"`
	Depth          *OrderBookDepth        `json:"depth,omitempty"`
	Flow           *WhaleFlow             `json:"flow,omitempty"`
	ChangePct      float64                `json:"changePct"`
	Volatility     float64                `json:"volatility"`
	Liquidity      float64                `json:"liquidity"`
	Condition      MarketCondition        `json:"condition"`
	Leverage       LeverageRecommendation `json:"leverage"`
	RiskMultiplier float64                `json:"riskMultiplier"`
	Position       SafePosition           `json:"position"`
	Score          float64                `json:"score"`
	AnalyzedAt     time.Time              `json:"analyzedAt"`
}

// EMASignal returns the EMA bias, neutral when indicators are missing.
func (a *MarketAnalysis) EMASignal() Signal {
	if a.Indicators == nil || a.Indicators.EMASignal == "" {
		return SignalNeutral
	}
	return a.Indicators.EMASignal
}

// NetFlow returns whale net notional, 0 when the tape was unavailable.
func (a *MarketAnalysis) NetFlow() float64 {
	if a.Flow == nil {
		return 0
	}
	return a.Flow.NetFlow
}

// ATR returns the 14-period ATR or 0 when unknown.
func (a *MarketAnalysis) ATR() float64 {
	if a.Indicators == nil || a.Indicators.ATR == nil {
		return 0
	}
	return *a.Indicators.ATR
}

// OpportunityScore ranks a candidate.
type OpportunityScore struct {
	Symbol    string          `json:"symbol"`
	Score     float64         `json:"score"`
	Condition MarketCondition `json:"condition"`
	Leverage  int             `json:"leverage"`
	RiskTier  RiskTier        `json:"riskTier"`
}

// MarketOverview is the output of one full scan.
type MarketOverview struct {
	Assets    []MarketAnalysis   `json:"assets"`
	Ranking   []OpportunityScore `json:"ranking"`
	OrderFlow OrderFlow          `json:"orderFlow"`
	ScannedAt time.Time          `json:"scannedAt"`
}

// Asset returns the analysis for symbol.
func (o *MarketOverview) Asset(symbol string) (*MarketAnalysis, bool) {
	for i := range o.Assets {
		if o.Assets[i].Symbol == symbol {
			return &o.Assets[i], true
		}
	}
	return nil, false
}

type DailyLossStatus struct {
	Date           string  `json:"date"`
	LossToday      float64 `json:"lossToday"`
	LossPct        float64 `json:"lossPct"`
	LimitReached   bool    `json:"limitReached"`
	RemainingLimit float64 `json:"remainingLimit"`
}

type PositionRisk struct {
	Symbol   string  `json:"symbol"`
	Risk     float64 `json:"risk"`
	Notional float64 `json:"notional"`
}

type TotalRisk struct {
	TotalRisk     float64        `json:"totalRisk"`
	TotalRiskPct  float64        `json:"totalRiskPct"`
	TotalNotional float64        `json:"totalNotional"`
	Drawdown      float64        `json:"drawdown"`
	Acceptable    bool           `json:"acceptable"`
	Positions     []PositionRisk `json:"positions"`
}

type CorrelationCheck struct {
	Safe           bool     `json:"safe"`
	Hedge          bool     `json:"hedge"`
	MaxCorrelation float64  `json:"maxCorrelation"`
	Warnings       []string `json:"warnings"`
}

type TradeValidation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
