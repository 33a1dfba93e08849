package usecase

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"perp-autotrader/internal/domain"
)

const defaultQtyStep = 0.0001

// Default lot filters, replaced by exchange values once they have been fetched.
var defaultLotFilters = map[string]domain.LotFilter{
	"BTCUSDT":   {MinQty: 0.001, QtyStep: 0.001},
	"ETHUSDT":   {MinQty: 0.01, QtyStep: 0.001},
	"BNBUSDT":   {MinQty: 0.1, QtyStep: 0.01},
	"XRPUSDT":   {MinQty: 10, QtyStep: 1},
	"SOLUSDT":   {MinQty: 0.1, QtyStep: 0.01},
	"ADAUSDT":   {MinQty: 10, QtyStep: 1},
	"DOGEUSDT":  {MinQty: 100, QtyStep: 1},
	"AVAXUSDT":  {MinQty: 0.1, QtyStep: 0.1},
	"MATICUSDT": {MinQty: 10, QtyStep: 1},
	"LINKUSDT":  {MinQty: 0.1, QtyStep: 0.1},
	"TONUSDT":   {MinQty: 1, QtyStep: 0.1},
	"TRXUSDT":   {MinQty: 10, QtyStep: 1},
	"LTCUSDT":   {MinQty: 0.01, QtyStep: 0.001},
	"NEARUSDT":  {MinQty: 1, QtyStep: 0.1},
	"APTUSDT":   {MinQty: 0.1, QtyStep: 0.01},
	"OPUSDT":    {MinQty: 0.1, QtyStep: 0.01},
	"ARBUSDT":   {MinQty: 1, QtyStep: 0.1},
	"POLUSDT":   {MinQty: 10, QtyStep: 1},
	"SEIUSDT":   {MinQty: 1, QtyStep: 0.1},
	"SUIUSDT":   {MinQty: 1, QtyStep: 0.1},
}

// DefaultSymbols is the tracked instrument universe.
var DefaultSymbols = []string{
	"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT",
	"ADAUSDT", "DOGEUSDT", "AVAXUSDT", "MATICUSDT", "LINKUSDT",
	"TONUSDT", "TRXUSDT", "LTCUSDT", "NEARUSDT", "APTUSDT",
	"OPUSDT", "ARBUSDT", "POLUSDT", "SEIUSDT", "SUIUSDT",
}

// NormalizeQty floors qty to the lot step, raises it to the minimum order size and rounds
// to 6 places. Non-positive input yields 0.
func NormalizeQty(qty float64, filter domain.LotFilter) float64 {
	if qty <= 0 {
		return 0
	}
	step := filter.QtyStep
	if step <= 0 {
		step = defaultQtyStep
	}
	minQty := filter.MinQty
	if minQty <= 0 {
		minQty = step
	}

	stepDec := decimal.NewFromFloat(step)
	normalized := decimal.NewFromFloat(qty).Div(stepDec).Floor().Mul(stepDec)
	if minDec := decimal.NewFromFloat(minQty); normalized.LessThan(minDec) {
		normalized = minDec
	}
	return normalized.Round(6).InexactFloat64()
}

// LotNormalizer caches exchange lot filters with the static table as fallback.
type LotNormalizer struct {
	market domain.MarketData
	log    zerolog.Logger

	mu        sync.RWMutex
	filters   map[string]domain.LotFilter
	refreshed bool
}

func NewLotNormalizer(market domain.MarketData, log zerolog.Logger) *LotNormalizer {
	filters := make(map[string]domain.LotFilter, len(defaultLotFilters))
	for k, v := range defaultLotFilters {
		filters[k] = v
	}
	return &LotNormalizer{
		market:  market,
		log:     log.With().Str("component", "lots").Logger(),
		filters: filters,
	}
}

// RefreshOnce loads exchange filters for symbols the first time it is called.
func (l *LotNormalizer) RefreshOnce(ctx context.Context, symbols []string) {
	l.mu.RLock()
	done := l.refreshed
	l.mu.RUnlock()
	if done || l.market == nil {
		return
	}

	fetched := make(map[string]domain.LotFilter)
	for _, sym := range symbols {
		f, err := l.market.GetLotFilter(ctx, sym)
		if err != nil {
			l.log.Warn().Err(err).Str("symbol", sym).Msg("lot filter fetch failed, keeping default")
			continue
		}
		if f.MinQty <= 0 || f.QtyStep <= 0 {
			continue
		}
		fetched[sym] = *f
	}

	l.mu.Lock()
	for k, v := range fetched {
		l.filters[k] = v
	}
	l.refreshed = true
	l.mu.Unlock()
	l.log.Info().Int("symbols", len(fetched)).Msg("lot filters refreshed")
}

func (l *LotNormalizer) Filter(symbol string) domain.LotFilter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if f, ok := l.filters[symbol]; ok {
		return f
	}
	return domain.LotFilter{MinQty: defaultQtyStep, QtyStep: defaultQtyStep}
}

func (l *LotNormalizer) Normalize(symbol string, qty float64) float64 {
	return NormalizeQty(qty, l.Filter(symbol))
}
