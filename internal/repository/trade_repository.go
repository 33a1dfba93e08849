package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"perp-autotrader/internal/domain"
)

type apiErrorRow struct {
	At        time.Time
	Operation string
	Symbol    string
	Message   string
}

type advisoryRow struct {
	At      time.Time
	Kind    string
	Symbol  string
	Payload []byte
}

// InMemoryAuditRepository is the audit store used when no database is configured. It
// keeps the same rows as the Postgres store and applies the same retention.
type InMemoryAuditRepository struct {
	mu        sync.RWMutex
	trades    []*domain.TradeRecord // newest last
	history   map[string][]domain.PricePoint
	apiErrors []apiErrorRow
	advisory  []advisoryRow
	now       func() time.Time
}

func NewInMemoryAuditRepository() *InMemoryAuditRepository {
	return &InMemoryAuditRepository{
		history: make(map[string][]domain.PricePoint),
		now:     time.Now,
	}
}

func (r *InMemoryAuditRepository) SaveTrade(_ context.Context, trade *domain.TradeRecord) error {
	if trade == nil {
		return errors.New("nil trade")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, t := range r.trades {
		if t.ID == trade.ID {
			cp := *trade
			r.trades[i] = &cp
			return nil
		}
	}
	cp := *trade
	if cp.Status == "" {
		cp.Status = domain.TradeStatusOpen
	}
	r.trades = append(r.trades, &cp)
	return nil
}

// UpdateTradeExit closes the most recent open trade of symbol.
func (r *InMemoryAuditRepository) UpdateTradeExit(_ context.Context, symbol string, exitPrice, pnl float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.trades) - 1; i >= 0; i-- {
		t := r.trades[i]
		if t.Symbol != symbol || t.Status != domain.TradeStatusOpen {
			continue
		}
		exit, profit, when := exitPrice, pnl, at
		t.ExitPrice = &exit
		t.ProfitLoss = &profit
		t.ExitTime = &when
		t.Status = domain.TradeStatusClosed
		return nil
	}
	return fmt.Errorf("open trade %s: %w", symbol, domain.ErrNotFound)
}

// ListTrades returns up to limit trades, newest first.
func (r *InMemoryAuditRepository) ListTrades(_ context.Context, limit int) ([]domain.TradeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.trades) {
		limit = len(r.trades)
	}
	out := make([]domain.TradeRecord, 0, limit)
	for i := len(r.trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *r.trades[i])
	}
	return out, nil
}

func (r *InMemoryAuditRepository) SaveMarketSnapshot(_ context.Context, analysis *domain.MarketAnalysis) error {
	if analysis == nil {
		return errors.New("nil analysis")
	}
	at := analysis.AnalyzedAt
	if at.IsZero() {
		at = r.now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[analysis.Symbol] = append(r.history[analysis.Symbol], domain.PricePoint{
		Symbol: analysis.Symbol,
		Time:   at,
		Price:  analysis.Ticker.LastPrice,
	})
	return nil
}

// PriceHistory averages snapshots per hour, oldest first.
func (r *InMemoryAuditRepository) PriceHistory(_ context.Context, symbol string, since time.Time) ([]domain.PricePoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type bucket struct {
		sum float64
		n   int
	}
	buckets := make(map[time.Time]*bucket)
	for _, p := range r.history[symbol] {
		if p.Time.Before(since) {
			continue
		}
		key := p.Time.Truncate(time.Hour)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.sum += p.Price
		b.n++
	}

	out := make([]domain.PricePoint, 0, len(buckets))
	for at, b := range buckets {
		out = append(out, domain.PricePoint{Symbol: symbol, Time: at, Price: b.sum / float64(b.n)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (r *InMemoryAuditRepository) SaveAdvisoryResponse(_ context.Context, kind, symbol string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advisory = append(r.advisory, advisoryRow{At: r.now(), Kind: kind, Symbol: symbol, Payload: append([]byte(nil), payload...)})
	return nil
}

func (r *InMemoryAuditRepository) SaveAPIError(_ context.Context, operation, symbol, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apiErrors = append(r.apiErrors, apiErrorRow{At: r.now(), Operation: operation, Symbol: symbol, Message: message})
	return nil
}

func (r *InMemoryAuditRepository) Rotate(_ context.Context, policy domain.RetentionPolicy) (domain.RotationStats, error) {
	var stats domain.RotationStats
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-policy.MarketHistory)
	for sym, points := range r.history {
		kept := points[:0]
		for _, p := range points {
			if p.Time.Before(cutoff) {
				stats.MarketHistory++
				continue
			}
			kept = append(kept, p)
		}
		r.history[sym] = kept
	}

	cutoff = now.Add(-policy.APIErrors)
	keptErrors := r.apiErrors[:0]
	for _, e := range r.apiErrors {
		if e.At.Before(cutoff) {
			stats.APIErrors++
			continue
		}
		keptErrors = append(keptErrors, e)
	}
	r.apiErrors = keptErrors

	cutoff = now.Add(-policy.Trades)
	keptTrades := r.trades[:0]
	for _, t := range r.trades {
		if t.Status == domain.TradeStatusClosed && t.ExitTime != nil && t.ExitTime.Before(cutoff) {
			stats.Trades++
			continue
		}
		keptTrades = append(keptTrades, t)
	}
	r.trades = keptTrades

	if extra := len(r.advisory) - policy.KeepAdvisory; policy.KeepAdvisory >= 0 && extra > 0 {
		r.advisory = append([]advisoryRow(nil), r.advisory[extra:]...)
		stats.Advisory = int64(extra)
	}
	return stats, nil
}

var _ domain.AuditStore = (*InMemoryAuditRepository)(nil)
