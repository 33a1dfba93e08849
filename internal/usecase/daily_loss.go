package usecase

import (
	"math"
	"sync"
	"time"

	"perp-autotrader/internal/domain"
)

const dailyLossRetention = 7 * 24 * time.Hour

// DailyLossTracker is the daily-loss breaker. Losses are keyed by UTC date and the recorded
// value for a day never decreases, so once the limit is hit it stays hit until the next UTC
// day or Reset.
type DailyLossTracker struct {
	maxDailyLoss float64
	now          func() time.Time

	mu       sync.Mutex
	losses   map[string]float64
	realized map[string]float64
}

func NewDailyLossTracker(maxDailyLoss float64) *DailyLossTracker {
	return &DailyLossTracker{
		maxDailyLoss: maxDailyLoss,
		now:          time.Now,
		losses:       make(map[string]float64),
		realized:     make(map[string]float64),
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// RecordRealized adds a closed trade's P&L. Only losses count.
func (d *DailyLossTracker) RecordRealized(pnl float64, at time.Time) {
	if pnl >= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.realized[dayKey(at)] += -pnl
}

// Check folds today's realized loss, any extra realized P&L and the unrealized losses of
// open positions into today's total and reports it against capital.
func (d *DailyLossTracker) Check(capital, realizedPnL float64, positions []domain.LivePosition) domain.DailyLossStatus {
	now := d.now()
	today := dayKey(now)

	unrealizedLoss := 0.0
	for _, p := range positions {
		if p.UnrealizedPnL < 0 {
			unrealizedLoss += -p.UnrealizedPnL
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	realizedLoss := d.realized[today] + math.Abs(math.Min(realizedPnL, 0))
	total := realizedLoss + unrealizedLoss
	if total > d.losses[today] {
		d.losses[today] = total
	}
	loss := d.losses[today]

	d.prune(now)

	status := domain.DailyLossStatus{
		Date:           today,
		LossToday:      loss,
		RemainingLimit: math.Max(0, d.maxDailyLoss*capital-loss),
	}
	if capital > 0 {
		status.LossPct = loss / capital
		status.LimitReached = status.LossPct >= d.maxDailyLoss
	}
	return status
}

// Reset clears all tracked losses.
func (d *DailyLossTracker) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.losses = make(map[string]float64)
	d.realized = make(map[string]float64)
}

// Snapshot returns a copy of the tracked daily totals.
func (d *DailyLossTracker) Snapshot() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]float64, len(d.losses))
	for k, v := range d.losses {
		out[k] = v
	}
	return out
}

func (d *DailyLossTracker) prune(now time.Time) {
	cutoff := dayKey(now.Add(-dailyLossRetention))
	for k := range d.losses {
		if k < cutoff {
			delete(d.losses, k)
		}
	}
	for k := range d.realized {
		if k < cutoff {
			delete(d.realized, k)
		}
	}
}
