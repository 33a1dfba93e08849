package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"perp-autotrader/internal/domain"
)

// InMemoryQuarantineRepository keeps last close times for the life of the process only.
type InMemoryQuarantineRepository struct {
	closes map[string]time.Time
	mu     sync.RWMutex
}

func NewInMemoryQuarantineRepository() *InMemoryQuarantineRepository {
	return &InMemoryQuarantineRepository{
		closes: make(map[string]time.Time),
	}
}

func (r *InMemoryQuarantineRepository) LoadAll(context.Context) (map[string]time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]time.Time, len(r.closes))
	for k, v := range r.closes {
		out[k] = v
	}
	return out, nil
}

func (r *InMemoryQuarantineRepository) Save(_ context.Context, symbol string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes[symbol] = at
	return nil
}

type cachedAnalysis struct {
	analysis  domain.MarketAnalysis
	expiresAt time.Time
}

// InMemoryMarketCache is the process-local fallback for the Redis market cache.
type InMemoryMarketCache struct {
	entries map[string]cachedAnalysis
	mu      sync.RWMutex
	now     func() time.Time
}

func NewInMemoryMarketCache() *InMemoryMarketCache {
	return &InMemoryMarketCache{
		entries: make(map[string]cachedAnalysis),
		now:     time.Now,
	}
}

func (c *InMemoryMarketCache) Get(_ context.Context, symbol string) (*domain.MarketAnalysis, error) {
	c.mu.RLock()
	entry, ok := c.entries[symbol]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, fmt.Errorf("cached %s: %w", symbol, domain.ErrNotFound)
	}
	// copy so callers cannot mutate the cached value
	a := entry.analysis
	return &a, nil
}

func (c *InMemoryMarketCache) Set(_ context.Context, analysis *domain.MarketAnalysis, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[analysis.Symbol] = cachedAnalysis{analysis: *analysis, expiresAt: c.now().Add(ttl)}
	return nil
}

var (
	_ domain.QuarantineStore = (*InMemoryQuarantineRepository)(nil)
	_ domain.MarketCache     = (*InMemoryMarketCache)(nil)
)
