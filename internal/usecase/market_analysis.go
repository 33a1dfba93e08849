package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"perp-autotrader/internal/domain"
	"perp-autotrader/internal/infrastructure/indicators"
)

type AnalyzerConfig struct {
	Symbols     []string
	Interval    string
	CandleLimit int
	BookDepth   int
	TradeLimit  int
	Capital     float64
	DailyTarget float64
	Concurrency int
}

func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		Symbols:     DefaultSymbols,
		Interval:    "60",
		CandleLimit: 240,
		BookDepth:   50,
		TradeLimit:  200,
		Capital:     100,
		DailyTarget: 7.5,
		Concurrency: 5,
	}
}

// Analyzer turns exchange market data into scored MarketAnalysis values.
type Analyzer struct {
	market  domain.MarketData
	risk    *RiskEngine
	cfg     AnalyzerConfig
	metrics domain.Metrics
	cache   domain.MarketCache
	log     zerolog.Logger
	now     func() time.Time
}

func NewAnalyzer(market domain.MarketData, risk *RiskEngine, cfg AnalyzerConfig, metrics domain.Metrics, log zerolog.Logger) *Analyzer {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Analyzer{
		market:  market,
		risk:    risk,
		cfg:     cfg,
		metrics: metrics,
		log:     log.With().Str("component", "analyzer").Logger(),
		now:     time.Now,
	}
}

// WithCache lets Cached serve recent analyses collected by the housekeeping job.
func (a *Analyzer) WithCache(cache domain.MarketCache) *Analyzer {
	a.cache = cache
	return a
}

// Cached returns the cached analysis for symbol when present, else analyses it live.
func (a *Analyzer) Cached(ctx context.Context, symbol string) (*domain.MarketAnalysis, error) {
	if a.cache != nil {
		cached, err := a.cache.Get(ctx, symbol)
		if err == nil && cached != nil {
			return cached, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			a.log.Debug().Err(err).Str("symbol", symbol).Msg("market cache read failed")
		}
	}
	return a.AnalyzeSymbol(ctx, symbol)
}

func (a *Analyzer) Symbols() []string {
	return a.cfg.Symbols
}

// AnalyzeSymbol fetches data for one instrument and scores it. Only a missing ticker is an
// error; candles, depth and the trade tape degrade to absent sections.
func (a *Analyzer) AnalyzeSymbol(ctx context.Context, symbol string) (*domain.MarketAnalysis, error) {
	ticker, err := a.market.GetTicker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	if ticker.LastPrice <= 0 {
		return nil, fmt.Errorf("ticker %s: %w", symbol, domain.ErrInsufficientData)
	}

	analysis := &domain.MarketAnalysis{
		Symbol:     symbol,
		Ticker:     *ticker,
		ChangePct:  ticker.ChangePercent(),
		Volatility: CalculateVolatility(*ticker),
		Liquidity:  CalculateLiquidity(*ticker),
		AnalyzedAt: a.now(),
	}

	candles, err := a.market.GetCandles(ctx, symbol, a.cfg.Interval, a.cfg.CandleLimit)
	if err != nil {
		a.log.Warn().Err(err).Str("symbol", symbol).Msg("candles unavailable")
	} else if len(candles) > 0 {
		analysis.Indicators = indicators.Snapshot(symbol, candles)
	}

	if book, err := a.market.GetOrderBook(ctx, symbol, a.cfg.BookDepth); err == nil {
		depth := indicators.AnalyzeDepth(book, ticker.LastPrice)
		analysis.Depth = &depth
	} else {
		a.log.Debug().Err(err).Str("symbol", symbol).Msg("order book unavailable")
	}

	params := a.risk.Params()
	if trades, err := a.market.GetRecentTrades(ctx, symbol, a.cfg.TradeLimit); err == nil {
		flow := indicators.AnalyzeWhaleFlow(trades, params.WhaleNotional)
		analysis.Flow = &flow
	} else {
		a.log.Debug().Err(err).Str("symbol", symbol).Msg("trade tape unavailable")
	}

	a.score(analysis)
	return analysis, nil
}

func (a *Analyzer) score(analysis *domain.MarketAnalysis) {
	params := a.risk.Params()
	price := analysis.Ticker.LastPrice

	rsiZone := domain.RSINeutral
	if analysis.Indicators != nil {
		rsiZone = analysis.Indicators.RSIZone
	}
	analysis.Condition = DetectMarketCondition(analysis.ChangePct, analysis.Ticker.FundingRate, rsiZone, analysis.EMASignal())
	analysis.Leverage = RecommendLeverage(analysis.Volatility, a.cfg.DailyTarget, a.cfg.Capital, params.MaxLeverage)
	analysis.RiskMultiplier = RiskMultiplier(analysis, params.FlowScoreThreshold)

	lev := analysis.Leverage.Recommended
	stop := a.risk.RecommendedStopLoss(price, domain.Long, analysis.Volatility/100, 0)
	riskAmount := a.risk.RiskAmount(a.cfg.Capital, analysis.RiskMultiplier)
	size := a.risk.PositionSize(price, stop, riskAmount, lev)
	target := a.risk.RecommendedTakeProfit(price, stop, domain.Long)

	analysis.Position = domain.SafePosition{
		Entry:           price,
		StopLoss:        stop,
		TakeProfit:      roundTo(target, 2),
		Size:            size,
		Notional:        roundTo(size*price*float64(lev), 2),
		RiskAmount:      roundTo(riskAmount, 2),
		PotentialProfit: roundTo(size*(target-price)*float64(lev), 2),
		Leverage:        lev,
	}
	analysis.Score = CalculateOpportunityScore(analysis, params.FlowScoreThreshold)
	a.metrics.RecordScore(analysis.Symbol, analysis.Score)
}

// Scan analyses every tracked symbol concurrently. Failed symbols are logged and skipped.
func (a *Analyzer) Scan(ctx context.Context) (*domain.MarketOverview, error) {
	results := make([]*domain.MarketAnalysis, len(a.cfg.Symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, sym := range a.cfg.Symbols {
		i, sym := i, sym
		g.Go(func() error {
			analysis, err := a.AnalyzeSymbol(gctx, sym)
			if err != nil {
				a.metrics.RecordError("analysis")
				a.log.Warn().Err(err).Str("symbol", sym).Msg("analysis failed")
				return nil
			}
			results[i] = analysis
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	overview := &domain.MarketOverview{ScannedAt: a.now()}
	for _, r := range results {
		if r != nil {
			overview.Assets = append(overview.Assets, *r)
		}
	}
	if len(overview.Assets) == 0 {
		return overview, fmt.Errorf("scan: %w", domain.ErrInsufficientData)
	}

	sort.SliceStable(overview.Assets, func(i, j int) bool {
		return overview.Assets[i].Score > overview.Assets[j].Score
	})
	for _, asset := range overview.Assets {
		overview.Ranking = append(overview.Ranking, domain.OpportunityScore{
			Symbol:    asset.Symbol,
			Score:     asset.Score,
			Condition: asset.Condition,
			Leverage:  asset.Leverage.Recommended,
			RiskTier:  asset.Leverage.RiskTier,
		})
	}
	overview.OrderFlow = CalculateOrderFlow(overview.Assets)
	return overview, nil
}
