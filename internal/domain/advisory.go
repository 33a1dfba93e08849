package domain

import (
	"context"
	"strings"
)

// AdvisoryCandidate is the compact view of a ranked instrument sent to the advisor.
type AdvisoryCandidate struct {
	Symbol      string          `json:"symbol"`
	Price       float64         `json:"price"`
	ChangePct   float64         `json:"change_pct"`
	Volatility  float64         `json:"volatility"`
	FundingRate float64         `json:"funding_rate"`
	Condition   MarketCondition `json:"condition"`
	Score       float64         `json:"score"`
	Leverage    int             `json:"leverage"`
	EMASignal   Signal          `json:"ema_signal"`
	Trend       TrendLabel      `json:"trend"`
	RSI         *float64        `json:"rsi,omitempty"`
	ATR         *float64        `json:"atr,omitempty"`
	Support     []float64       `json:"support,omitempty"`
	Resistance  []float64       `json:"resistance,omitempty"`
}

type AdvisoryRequest struct {
	Candidates []AdvisoryCandidate `json:"candidates"`
	Positions  []LivePosition      `json:"positions"`
	Balance    float64             `json:"balance"`
}

// TradeAdvice is the advisor's suggestion, either a pick across candidates or a plan for
// one asset. Zero prices mean "no opinion".
type TradeAdvice struct {
	Symbol      string   `json:"symbol"`
	Side        string   `json:"side"`
	Entry       float64  `json:"entry"`
	StopLoss    float64  `json:"stop_loss"`
	TakeProfit  float64  `json:"take_profit"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	MissingData []string `json:"missing_data,omitempty"`
}

// HasLevels reports whether entry, stop and target are all present.
func (a *TradeAdvice) HasLevels() bool {
	return a != nil && a.Entry > 0 && a.StopLoss > 0 && a.TakeProfit > 0
}

type ReviewSignal string

const (
	ReviewHold  ReviewSignal = "hold"
	ReviewAdd   ReviewSignal = "add"
	ReviewClose ReviewSignal = "close"
)

// ParseReviewSignal accepts any case and surrounding space.
func ParseReviewSignal(s string) (ReviewSignal, bool) {
	switch sig := ReviewSignal(strings.ToLower(strings.TrimSpace(s))); sig {
	case ReviewHold, ReviewAdd, ReviewClose:
		return sig, true
	}
	return "", false
}

// PositionReview is the advisor's opinion on an open position. It is shown to the
// operator and never acted on by the engine.
type PositionReview struct {
	Symbol        string       `json:"symbol"`
	Signal        ReviewSignal `json:"signal"`
	Justification string       `json:"justification"`
	Confidence    float64      `json:"confidence"`
	StopLoss      float64      `json:"stop_loss,omitempty"`
	TakeProfit    float64      `json:"take_profit,omitempty"`
	Invalidation  string       `json:"invalidation,omitempty"`
}

// Advisor is an optional collaborator. Its output is always validated before use and
// errors are handled by falling back to the engine's own logic.
type Advisor interface {
	SelectTrade(ctx context.Context, req AdvisoryRequest) (*TradeAdvice, error)
	PlanAsset(ctx context.Context, candidate AdvisoryCandidate, req AdvisoryRequest) (*TradeAdvice, error)
	ReviewPosition(ctx context.Context, pos LivePosition, market AdvisoryCandidate) (*PositionReview, error)
}
