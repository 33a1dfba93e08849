package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

// QuarantineEntry is one symbol's cooldown as shown to operators.
type QuarantineEntry struct {
	Symbol    string        `json:"symbol"`
	LastClose time.Time     `json:"lastClose"`
	Until     time.Time     `json:"until"`
	Remaining time.Duration `json:"remaining"`
}

// QuarantineError reports a rejected entry together with the cooldown left.
type QuarantineError struct {
	Symbol    string
	Remaining time.Duration
	Until     time.Time
}

func (e *QuarantineError) Error() string {
	return fmt.Sprintf("%s in quarantine for another %d min, next entry after %s UTC",
		e.Symbol, int(e.Remaining.Minutes()), e.Until.UTC().Format("15:04"))
}

func (e *QuarantineError) Unwrap() error {
	return domain.ErrQuarantined
}

// QuarantineTracker blocks re-entry into a symbol for a cooldown after its position closes.
// The in-memory map is authoritative; the store is written through on every update.
type QuarantineTracker struct {
	store    domain.QuarantineStore
	cooldown time.Duration
	log      zerolog.Logger

	mu        sync.RWMutex
	lastClose map[string]time.Time
}

func NewQuarantineTracker(store domain.QuarantineStore, cooldown time.Duration, log zerolog.Logger) *QuarantineTracker {
	return &QuarantineTracker{
		store:     store,
		cooldown:  cooldown,
		log:       log.With().Str("component", "quarantine").Logger(),
		lastClose: make(map[string]time.Time),
	}
}

func (q *QuarantineTracker) Cooldown() time.Duration {
	return q.cooldown
}

// Load replaces the in-memory map with the persisted timestamps.
func (q *QuarantineTracker) Load(ctx context.Context) error {
	if q.store == nil {
		return nil
	}
	loaded, err := q.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	q.mu.Lock()
	for sym, at := range loaded {
		q.lastClose[sym] = at
	}
	q.mu.Unlock()
	q.log.Info().Int("symbols", len(loaded)).Msg("quarantine loaded")
	return nil
}

// Record arms the cooldown for symbol. A persistence failure is logged and tolerated.
func (q *QuarantineTracker) Record(ctx context.Context, symbol string, at time.Time) {
	q.mu.Lock()
	q.lastClose[symbol] = at
	q.mu.Unlock()

	if q.store == nil {
		return
	}
	if err := q.store.Save(ctx, symbol, at); err != nil {
		q.log.Error().Err(err).Str("symbol", symbol).Msg("quarantine persist failed, keeping in memory")
	}
}

// Remaining returns the cooldown left for symbol, 0 when it may be traded.
func (q *QuarantineTracker) Remaining(symbol string, now time.Time) time.Duration {
	q.mu.RLock()
	last, ok := q.lastClose[symbol]
	q.mu.RUnlock()
	if !ok {
		return 0
	}
	if left := q.cooldown - now.Sub(last); left > 0 {
		return left
	}
	return 0
}

// Check returns a *QuarantineError while symbol is cooling down.
func (q *QuarantineTracker) Check(symbol string, now time.Time) error {
	left := q.Remaining(symbol, now)
	if left <= 0 {
		return nil
	}
	return &QuarantineError{Symbol: symbol, Remaining: left, Until: now.Add(left)}
}

func (q *QuarantineTracker) InQuarantine(symbol string, now time.Time) bool {
	return q.Remaining(symbol, now) > 0
}

// Active lists the symbols still cooling down, soonest release first.
func (q *QuarantineTracker) Active(now time.Time) []QuarantineEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []QuarantineEntry
	for sym, last := range q.lastClose {
		left := q.cooldown - now.Sub(last)
		if left <= 0 {
			continue
		}
		out = append(out, QuarantineEntry{
			Symbol:    sym,
			LastClose: last,
			Until:     last.Add(q.cooldown),
			Remaining: left,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Remaining < out[j].Remaining })
	return out
}
