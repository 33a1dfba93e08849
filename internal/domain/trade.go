package domain

import (
	"math"
	"strings"
	"time"
)

// Side is the direction of a position.
type Side string

const (
	Long  Side = "Long"
	Short Side = "Short"
)

// OrderSide maps a position side to the exchange order side that opens it.
func (s Side) OrderSide() string {
	if s == Short {
		return "Sell"
	}
	return "Buy"
}

func (s Side) Opposite() Side {
	if s == Short {
		return Long
	}
	return Short
}

// ParseSide accepts long/buy and short/sell in any case. Unknown input yields Long, false.
func ParseSide(v string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "long", "buy":
		return Long, true
	case "short", "sell":
		return Short, true
	}
	return Long, false
}

// PositionIntent is a sized, validated trade that has not been submitted yet.
type PositionIntent struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
	Quantity   float64 `json:"quantity"`
	Leverage   int     `json:"leverage"`
	RiskAmount float64 `json:"riskAmount"`
	Source     string  `json:"source"` // "advisory" or "engine"
}

// RewardRatio returns reward/risk, 0 when the risk leg is empty.
func (p PositionIntent) RewardRatio() float64 {
	risk := math.Abs(p.Entry - p.StopLoss)
	if risk == 0 {
		return 0
	}
	return math.Abs(p.TakeProfit-p.Entry) / risk
}

// LivePosition is the exchange's view of an open position.
type LivePosition struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"` // raw exchange side: "Buy", "Sell" or ""
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entryPrice"`
	MarkPrice     float64 `json:"markPrice"`
	UnrealizedPnL float64 `json:"unrealizedPnl"`
	LiqPrice      float64 `json:"liqPrice"`
	Leverage      float64 `json:"leverage"`
	TakeProfit    float64 `json:"takeProfit"`
	StopLoss      float64 `json:"stopLoss"`
	PositionIdx   int     `json:"positionIdx"`
}

const activeSizeEpsilon = 0.0001

// IsActive reports whether the position holds a non-dust size.
func (p LivePosition) IsActive() bool {
	return math.Abs(p.Size) > activeSizeEpsilon
}

// ResolveSide maps the exchange side to Long/Short. When the exchange omits the side the
// position index is used: 0 (one-way) and 1 (hedge buy slot) are read as Long, anything else
// as Short. The index fallback is unverified for one-way short positions.
func (p LivePosition) ResolveSide() Side {
	if side, ok := ParseSide(p.Side); ok {
		return side
	}
	if p.PositionIdx == 0 || p.PositionIdx == 1 {
		return Long
	}
	return Short
}

// PnLPercent is the unleveraged move from entry to mark in the position's favour.
func (p LivePosition) PnLPercent() float64 {
	if p.EntryPrice <= 0 || p.MarkPrice <= 0 {
		return 0
	}
	change := (p.MarkPrice - p.EntryPrice) / p.EntryPrice * 100
	if p.ResolveSide() == Short {
		return -change
	}
	return change
}

// HasProtection reports whether both stop and target are set on the exchange.
func (p LivePosition) HasProtection() bool {
	return p.StopLoss > 0 && p.TakeProfit > 0
}

type OrderRequest struct {
	Symbol      string
	Side        string // "Buy" or "Sell"
	Qty         float64
	ReduceOnly  bool
	OrderLinkID string
}

type OrderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

// TradeRecord is the audit row for one executed trade.
type TradeRecord struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	Quantity   float64    `json:"quantity"`
	EntryPrice float64    `json:"entryPrice"`
	StopLoss   float64    `json:"stopLoss"`
	TakeProfit float64    `json:"takeProfit"`
	Leverage   int        `json:"leverage"`
	OrderID    string     `json:"orderId"`
	Protected  bool       `json:"protected"`
	Source     string     `json:"source"`
	BotName    string     `json:"botName"`
	Status     string     `json:"status"`
	EntryTime  time.Time  `json:"entryTime"`
	ExitPrice  *float64   `json:"exitPrice,omitempty"`
	ExitTime   *time.Time `json:"exitTime,omitempty"`
	ProfitLoss *float64   `json:"profitLoss,omitempty"`
}
