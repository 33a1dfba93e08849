package usecase

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"perp-autotrader/internal/domain"
)

const DefaultCacheTTL = 2 * time.Minute

// Housekeeper fills the market cache and audit history and rotates old audit rows.
// Both stores are optional; with neither configured every job is a no-op.
type Housekeeper struct {
	analyzer *Analyzer
	audit    domain.AuditStore
	cache    domain.MarketCache
	policy   domain.RetentionPolicy
	cacheTTL time.Duration
	metrics  domain.Metrics
	log      zerolog.Logger
}

func NewHousekeeper(analyzer *Analyzer, audit domain.AuditStore, cache domain.MarketCache, policy domain.RetentionPolicy, metrics domain.Metrics, log zerolog.Logger) *Housekeeper {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Housekeeper{
		analyzer: analyzer,
		audit:    audit,
		cache:    cache,
		policy:   policy,
		cacheTTL: DefaultCacheTTL,
		metrics:  metrics,
		log:      log.With().Str("component", "housekeeping").Logger(),
	}
}

// Collect analyses every tracked symbol, caches the result and writes a market snapshot.
// Failures are recorded as API errors and counted.
func (h *Housekeeper) Collect(ctx context.Context) (collected, failed int, err error) {
	if h.audit == nil && h.cache == nil {
		return 0, 0, nil
	}
	h.log.Info().Msg("🔄 data collection started")

	var ok, bad atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, sym := range h.analyzer.Symbols() {
		sym := sym
		g.Go(func() error {
			analysis, err := h.analyzer.AnalyzeSymbol(gctx, sym)
			if err != nil {
				bad.Add(1)
				h.metrics.RecordError("data_collection")
				if h.audit != nil {
					if werr := h.audit.SaveAPIError(gctx, "data_collection", sym, err.Error()); werr != nil {
						h.log.Debug().Err(werr).Msg("api error audit write failed")
					}
				}
				return nil
			}
			if h.cache != nil {
				if err := h.cache.Set(gctx, analysis, h.cacheTTL); err != nil {
					h.log.Debug().Err(err).Str("symbol", sym).Msg("cache write failed")
				}
			}
			if h.audit != nil {
				if err := h.audit.SaveMarketSnapshot(gctx, analysis); err != nil {
					h.log.Debug().Err(err).Str("symbol", sym).Msg("snapshot write failed")
				}
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return int(ok.Load()), int(bad.Load()), err
	}

	h.log.Info().Int64("collected", ok.Load()).Int64("errors", bad.Load()).Msg("✅ data collection finished")
	return int(ok.Load()), int(bad.Load()), nil
}

// Rotate deletes audit rows past the retention policy.
func (h *Housekeeper) Rotate(ctx context.Context) (domain.RotationStats, error) {
	if h.audit == nil {
		return domain.RotationStats{}, nil
	}
	stats, err := h.audit.Rotate(ctx, h.policy)
	if err != nil {
		return stats, err
	}
	h.log.Info().
		Int64("market_history", stats.MarketHistory).
		Int64("api_errors", stats.APIErrors).
		Int64("trades", stats.Trades).
		Int64("advisory", stats.Advisory).
		Msg("✅ audit rotation finished")
	return stats, nil
}
