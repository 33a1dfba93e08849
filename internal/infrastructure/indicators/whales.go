package indicators

import (
	"strings"

	"perp-autotrader/internal/domain"
)

const whalesKept = 5

// AnalyzeWhaleFlow sums taker buy and sell notional and lists prints at or above threshold.
// Net flow beyond +/- threshold sets the bias.
func AnalyzeWhaleFlow(trades []domain.PublicTrade, threshold float64) domain.WhaleFlow {
	flow := domain.WhaleFlow{Bias: domain.SignalNeutral}

	for _, t := range trades {
		notional := t.Price * t.Size
		side := t.Side
		switch {
		case strings.EqualFold(side, "buy"):
			side = "Buy"
			flow.BuyNotional += notional
		case strings.EqualFold(side, "sell"):
			side = "Sell"
			flow.SellNotional += notional
		}

		if notional >= threshold {
			flow.WhaleCount++
			if len(flow.Whales) < whalesKept {
				flow.Whales = append(flow.Whales, domain.WhaleTrade{
					Side:     side,
					Price:    t.Price,
					Size:     t.Size,
					Notional: notional,
					Time:     t.Time,
				})
			}
		}
	}

	flow.NetFlow = flow.BuyNotional - flow.SellNotional
	switch {
	case flow.NetFlow > threshold:
		flow.Bias = domain.SignalBullish
	case flow.NetFlow < -threshold:
		flow.Bias = domain.SignalBearish
	}
	return flow
}
