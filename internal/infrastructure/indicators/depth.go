package indicators

import (
	"math"
	"sort"

	"perp-autotrader/internal/domain"
)

const (
	depthZonePct      = 0.01
	keyLevelShare     = 0.10
	zoneShare         = 0.05
	keyLevelsPerSide  = 3
	zoneScanLevels    = 10
	maxLiquidityZones = 5
)

// AnalyzeDepth measures order book volume within 1% of mid. fallbackPrice is used when the
// book has no usable best bid/ask. An empty book side or no price yields a zero result.
func AnalyzeDepth(book *domain.OrderBook, fallbackPrice float64) domain.OrderBookDepth {
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return domain.OrderBookDepth{Quality: domain.DepthLow}
	}

	mid := fallbackPrice
	if book.Bids[0].Price > 0 && book.Asks[0].Price > 0 {
		mid = (book.Bids[0].Price + book.Asks[0].Price) / 2
	}
	if mid <= 0 {
		return domain.OrderBookDepth{Quality: domain.DepthLow}
	}

	band := mid * depthZonePct
	bidVol := nearVolume(book.Bids, mid, band)
	askVol := nearVolume(book.Asks, mid, band)
	total := bidVol + askVol

	depth := domain.OrderBookDepth{
		MidPrice:  mid,
		BidVolume: bidVol,
		AskVolume: askVol,
	}
	if total > 0 {
		depth.Imbalance = (bidVol - askVol) / total
	}

	depth.KeyBidLevels = keyLevels(book.Bids, total*keyLevelShare)
	depth.KeyAskLevels = keyLevels(book.Asks, total*keyLevelShare)

	switch {
	case total > mid*1000:
		depth.Quality = domain.DepthHigh
	case total > mid*100:
		depth.Quality = domain.DepthMedium
	default:
		depth.Quality = domain.DepthLow
	}

	depth.LiquidityZone = append(depth.LiquidityZone, zones("bid", book.Bids, mid, total*zoneShare)...)
	depth.LiquidityZone = append(depth.LiquidityZone, zones("ask", book.Asks, mid, total*zoneShare)...)
	if len(depth.LiquidityZone) > maxLiquidityZones {
		depth.LiquidityZone = depth.LiquidityZone[:maxLiquidityZones]
	}

	return depth
}

func nearVolume(levels []domain.BookLevel, mid, band float64) float64 {
	sum := 0.0
	for _, l := range levels {
		if math.Abs(l.Price-mid) <= band {
			sum += l.Size
		}
	}
	return sum
}

func keyLevels(levels []domain.BookLevel, minSize float64) []domain.BookLevel {
	var out []domain.BookLevel
	for _, l := range levels {
		if l.Size > minSize {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Size > out[j].Size })
	if len(out) > keyLevelsPerSide {
		out = out[:keyLevelsPerSide]
	}
	return out
}

func zones(side string, levels []domain.BookLevel, mid, minSize float64) []domain.LiquidityZone {
	if len(levels) > zoneScanLevels {
		levels = levels[:zoneScanLevels]
	}
	var out []domain.LiquidityZone
	for _, l := range levels {
		if l.Size > minSize {
			out = append(out, domain.LiquidityZone{
				Side:        side,
				Price:       l.Price,
				Size:        l.Size,
				DistancePct: math.Abs((l.Price - mid) / mid * 100),
			})
		}
	}
	return out
}
