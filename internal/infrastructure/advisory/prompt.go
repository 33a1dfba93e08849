package advisory

import (
	"fmt"
	"math"
	"strings"
	"time"

	"perp-autotrader/internal/domain"
)

const selectionInstructions = `Pick ONE coin from the list above and a side for a short scalp.

Rules:
- Prefer the highest score unless indicators clearly contradict it
- Avoid adding to a side that already dominates the open positions
- Avoid extreme funding against the chosen side
- Stop loss goes beyond the nearest key level, 0.5%% to 5%% from entry
- Take profit targets about 0.5%% gross or the nearest strong level
- Current session: %s

Respond in JSON:
{
  "recommended_symbol": "BTCUSDT",
  "recommended_side": "Long" or "Short",
  "entry_price": 0.0,
  "stop_loss": 0.0,
  "take_profit": 0.0,
  "confidence": 0.0,
  "reasoning": "why this coin, side and levels",
  "missing_data": []
}`

const planInstructions = `Form a trading plan in JSON:
{
  "symbol": "%s",
  "recommended_side": "Long|Short",
  "entry_price": 0.0,
  "stop_loss": 0.0,
  "take_profit": 0.0,
  "confidence": 0.0,
  "reasoning": "brief rationale"
}
Requirements:
- Use current levels and volatility
- Stop loss beyond the nearest key level
- Take profit for about 0.5%% gross or the nearest strong level in trade direction
- If data is insufficient, return null`

const reviewInstructions = `Decide HOLD, ADD or CLOSE for this position.
- HOLD: why the position is still valid, realistic stop loss and profit target, invalidation condition
- ADD: why adding is justified, new stop loss and profit target
- CLOSE: why to exit now
- Leverage above 10x is not acceptable for crypto volatility
- Current session: %s

Respond in JSON:
{
  "signal": "hold|add|close",
  "justification": "detailed rationale",
  "confidence": 0.0,
  "stop_loss": 0.0,
  "profit_target": 0.0,
  "invalidation_condition": "Price below ..."
}`

func reviewPrompt(pos domain.LivePosition, market domain.AdvisoryCandidate, now time.Time) string {
	var b strings.Builder
	mark := pos.MarkPrice
	if mark <= 0 {
		mark = market.Price
	}
	fmt.Fprintf(&b, "Position: %s %s size=%g entry=%g mark=%g pnl=%.2f USDT (%+.2f%%) leverage=%gx\n",
		pos.Symbol, pos.ResolveSide(), pos.Size, pos.EntryPrice, mark, pos.UnrealizedPnL, pos.PnLPercent(), pos.Leverage)
	if pos.LiqPrice > 0 && mark > 0 {
		fmt.Fprintf(&b, "Liquidation: %g (%.2f%% away)\n", pos.LiqPrice, math.Abs(mark-pos.LiqPrice)/mark*100)
	}
	if pos.StopLoss > 0 || pos.TakeProfit > 0 {
		fmt.Fprintf(&b, "Current stop=%g target=%g\n", pos.StopLoss, pos.TakeProfit)
	}
	b.WriteString("\nMarket:\n")
	writeCandidate(&b, market)
	b.WriteString("\n")
	fmt.Fprintf(&b, reviewInstructions, liquidityPeriod(now))
	return b.String()
}

func selectionPrompt(req domain.AdvisoryRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Balance: %.2f USDT\n", req.Balance)
	writePositions(&b, req.Positions)

	b.WriteString("\nCandidates:\n")
	for i, c := range req.Candidates {
		fmt.Fprintf(&b, "%d. ", i+1)
		writeCandidate(&b, c)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, selectionInstructions, liquidityPeriod(time.Now().UTC()))
	return b.String()
}

func planPrompt(c domain.AdvisoryCandidate, req domain.AdvisoryRequest) string {
	var b strings.Builder
	writeCandidate(&b, c)
	writePositions(&b, req.Positions)
	b.WriteString("\n")
	fmt.Fprintf(&b, planInstructions, c.Symbol)
	return b.String()
}

func writeCandidate(b *strings.Builder, c domain.AdvisoryCandidate) {
	fmt.Fprintf(b, "%s score=%.1f price=%g change24h=%.2f%% volatility=%.2f%% funding=%g condition=%s leverage=%dx\n",
		c.Symbol, c.Score, c.Price, c.ChangePct, c.Volatility, c.FundingRate, c.Condition, c.Leverage)
	fmt.Fprintf(b, "   ema=%s trend=%s", c.EMASignal, c.Trend)
	if c.RSI != nil {
		fmt.Fprintf(b, " rsi=%.1f", *c.RSI)
	}
	if c.ATR != nil {
		fmt.Fprintf(b, " atr=%g", *c.ATR)
	}
	if len(c.Support) > 0 {
		fmt.Fprintf(b, " supports=%v", firstN(c.Support, 3))
	}
	if len(c.Resistance) > 0 {
		fmt.Fprintf(b, " resistances=%v", firstN(c.Resistance, 3))
	}
	b.WriteString("\n")
}

func writePositions(b *strings.Builder, positions []domain.LivePosition) {
	if len(positions) == 0 {
		b.WriteString("Open positions: none\n")
		return
	}
	b.WriteString("Open positions:\n")
	for _, p := range positions {
		fmt.Fprintf(b, "- %s %s size=%g entry=%g pnl=%.2f\n", p.Symbol, p.Side, p.Size, p.EntryPrice, p.UnrealizedPnL)
	}
}

// liquidityPeriod labels the UTC hour by typical futures liquidity.
func liquidityPeriod(t time.Time) string {
	switch h := t.Hour(); {
	case h < 4:
		return "LOW_LIQUIDITY"
	case h >= 8 && h < 20:
		return "HIGH_LIQUIDITY"
	default:
		return "MODERATE_LIQUIDITY"
	}
}

func firstN(v []float64, n int) []float64 {
	if len(v) > n {
		return v[:n]
	}
	return v
}
