package usecase

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

var staticCorrelations = map[string]map[string]float64{
	"BTCUSDT": {"ETHUSDT": 0.85, "SOLUSDT": 0.75, "BNBUSDT": 0.70},
	"ETHUSDT": {"BTCUSDT": 0.85, "SOLUSDT": 0.80, "BNBUSDT": 0.75},
	"SOLUSDT": {"BTCUSDT": 0.75, "ETHUSDT": 0.80, "BNBUSDT": 0.65},
	"BNBUSDT": {"BTCUSDT": 0.70, "ETHUSDT": 0.75, "SOLUSDT": 0.65},
}

// StaticCorrelations is the fallback table for the major pairs.
type StaticCorrelations struct{}

func (StaticCorrelations) Correlation(_ context.Context, a, b string) float64 {
	if v, ok := staticCorrelations[a][b]; ok {
		return v
	}
	return staticCorrelations[b][a]
}

const minCorrelationPoints = 10

type cachedCorrelation struct {
	value    float64
	computed time.Time
}

// HistoricalCorrelations computes Pearson correlation of hourly returns from stored price
// history and falls back to the static table when history is thin or unavailable.
type HistoricalCorrelations struct {
	store    domain.AuditStore
	lookback time.Duration
	ttl      time.Duration
	fallback CorrelationSource
	log      zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedCorrelation
}

func NewHistoricalCorrelations(store domain.AuditStore, lookbackDays int, log zerolog.Logger) *HistoricalCorrelations {
	return &HistoricalCorrelations{
		store:    store,
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		ttl:      time.Hour,
		fallback: StaticCorrelations{},
		log:      log.With().Str("component", "correlation").Logger(),
		now:      time.Now,
		cache:    make(map[string]cachedCorrelation),
	}
}

func (h *HistoricalCorrelations) Correlation(ctx context.Context, a, b string) float64 {
	if a == b {
		return 1
	}
	key := pairKey(a, b)
	now := h.now()

	h.mu.Lock()
	cached, ok := h.cache[key]
	h.mu.Unlock()
	if ok && now.Sub(cached.computed) < h.ttl {
		return cached.value
	}

	value, ok := h.compute(ctx, a, b, now)
	if !ok {
		return h.fallback.Correlation(ctx, a, b)
	}

	h.mu.Lock()
	h.cache[key] = cachedCorrelation{value: value, computed: now}
	h.mu.Unlock()
	return value
}

func (h *HistoricalCorrelations) compute(ctx context.Context, a, b string, now time.Time) (float64, bool) {
	if h.store == nil {
		return 0, false
	}
	since := now.Add(-h.lookback)

	seriesA, err := h.store.PriceHistory(ctx, a, since)
	if err != nil {
		h.log.Debug().Err(err).Str("symbol", a).Msg("price history unavailable")
		return 0, false
	}
	seriesB, err := h.store.PriceHistory(ctx, b, since)
	if err != nil {
		h.log.Debug().Err(err).Str("symbol", b).Msg("price history unavailable")
		return 0, false
	}

	returnsA, returnsB := alignedReturns(seriesA, seriesB)
	if len(returnsA) < minCorrelationPoints {
		return 0, false
	}
	corr, ok := Pearson(returnsA, returnsB)
	if !ok {
		return 0, false
	}
	return corr, true
}

// alignedReturns keeps the timestamps both series share and converts them to returns.
func alignedReturns(a, b []domain.PricePoint) ([]float64, []float64) {
	pricesB := make(map[int64]float64, len(b))
	for _, p := range b {
		pricesB[p.Time.Unix()] = p.Price
	}

	type pair struct {
		t      int64
		pa, pb float64
	}
	var common []pair
	for _, p := range a {
		if pb, ok := pricesB[p.Time.Unix()]; ok {
			common = append(common, pair{t: p.Time.Unix(), pa: p.Price, pb: pb})
		}
	}
	sort.Slice(common, func(i, j int) bool { return common[i].t < common[j].t })

	var ra, rb []float64
	for i := 1; i < len(common); i++ {
		prev, cur := common[i-1], common[i]
		if prev.pa == 0 || prev.pb == 0 {
			continue
		}
		ra = append(ra, (cur.pa-prev.pa)/prev.pa)
		rb = append(rb, (cur.pb-prev.pb)/prev.pb)
	}
	return ra, rb
}

// Pearson returns the correlation coefficient of two equal-length series.
func Pearson(x, y []float64) (float64, bool) {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0, false
	}

	var meanX, meanY float64
	for i := 0; i < n; i++ {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varX*varY), true
}

func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}
