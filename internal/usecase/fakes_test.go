package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

var errFake = errors.New("exchange unavailable")

// fakeExchange is an in-memory exchange. Placed orders become live positions so a
// following cycle sees them.
type fakeExchange struct {
	mu sync.Mutex

	tickers      map[string]*domain.Ticker
	candles      map[string][]domain.Candle
	positions    []domain.LivePosition
	positionsErr error
	positionWait time.Duration
	balance      float64

	leverageErr error
	orderErr    error
	// stopFailures makes the first n SetTradingStop calls fail.
	stopFailures int

	leverage  map[string]int
	orders    []domain.OrderRequest
	stops     map[string][2]float64
	stopCalls int
	cancelled []string
	closed    []domain.OrderRequest
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		tickers:  make(map[string]*domain.Ticker),
		candles:  make(map[string][]domain.Candle),
		balance:  100,
		leverage: make(map[string]int),
		stops:    make(map[string][2]float64),
	}
}

// setTicker registers a flat market: last 100, 24h range 98..102 (4% volatility).
func (f *fakeExchange) setTicker(symbol string, last float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickers[symbol] = &domain.Ticker{
		Symbol:       symbol,
		LastPrice:    last,
		HighPrice24h: last * 1.02,
		LowPrice24h:  last * 0.98,
		Turnover24h:  5e8,
		FundingRate:  0.0001,
	}
}

func (f *fakeExchange) setPositions(positions ...domain.LivePosition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = positions
}

func (f *fakeExchange) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeExchange) orderedSymbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.orders))
	for i, o := range f.orders {
		out[i] = o.Symbol
	}
	return out
}

func (f *fakeExchange) GetCandles(_ context.Context, symbol, _ string, _ int) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.candles[symbol]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeExchange) GetTicker(_ context.Context, symbol string) (*domain.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickers[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeExchange) GetOrderBook(context.Context, string, int) (*domain.OrderBook, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeExchange) GetRecentTrades(context.Context, string, int) ([]domain.PublicTrade, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeExchange) GetLotFilter(context.Context, string) (*domain.LotFilter, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeExchange) GetPositions(ctx context.Context) ([]domain.LivePosition, error) {
	if f.positionWait > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.positionWait):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.positionsErr != nil {
		return nil, f.positionsErr
	}
	return append([]domain.LivePosition(nil), f.positions...), nil
}

func (f *fakeExchange) GetBalance(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeExchange) SetLeverage(_ context.Context, symbol string, leverage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leverageErr != nil {
		return f.leverageErr
	}
	f.leverage[symbol] = leverage
	return nil
}

func (f *fakeExchange) PlaceMarketOrder(_ context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.orders = append(f.orders, req)
	price := 0.0
	if t, ok := f.tickers[req.Symbol]; ok {
		price = t.LastPrice
	}
	f.positions = append(f.positions, domain.LivePosition{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Size:       req.Qty,
		EntryPrice: price,
		MarkPrice:  price,
		Leverage:   float64(f.leverage[req.Symbol]),
	})
	return &domain.OrderResult{OrderID: fmt.Sprintf("ord-%d", len(f.orders)), OrderLinkID: req.OrderLinkID}, nil
}

func (f *fakeExchange) SetTradingStop(_ context.Context, symbol string, stopLoss, takeProfit float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.stopFailures > 0 {
		f.stopFailures--
		return errFake
	}
	f.stops[symbol] = [2]float64{stopLoss, takeProfit}
	return nil
}

func (f *fakeExchange) CancelConditionalOrders(_ context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, symbol)
	return nil
}

func (f *fakeExchange) ClosePosition(_ context.Context, pos domain.LivePosition, qty float64) (*domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	side := "Sell"
	if pos.ResolveSide() == domain.Short {
		side = "Buy"
	}
	f.closed = append(f.closed, domain.OrderRequest{Symbol: pos.Symbol, Side: side, Qty: qty, ReduceOnly: true})
	return &domain.OrderResult{OrderID: "close-" + pos.Symbol}, nil
}

type fakeQuarantineStore struct {
	mu      sync.Mutex
	saved   map[string]time.Time
	saveErr error
	loadErr error
}

func newFakeQuarantineStore() *fakeQuarantineStore {
	return &fakeQuarantineStore{saved: make(map[string]time.Time)}
}

func (s *fakeQuarantineStore) LoadAll(context.Context) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(map[string]time.Time, len(s.saved))
	for k, v := range s.saved {
		out[k] = v
	}
	return out, nil
}

func (s *fakeQuarantineStore) Save(_ context.Context, symbol string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[symbol] = at
	return nil
}

type fakeAudit struct {
	mu        sync.Mutex
	trades    []domain.TradeRecord
	exits     map[string]float64
	snapshots []string
	apiErrors []string
	advisory  []string
	history   map[string][]domain.PricePoint
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{exits: make(map[string]float64), history: make(map[string][]domain.PricePoint)}
}

func (a *fakeAudit) SaveTrade(_ context.Context, trade *domain.TradeRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trades = append(a.trades, *trade)
	return nil
}

func (a *fakeAudit) UpdateTradeExit(_ context.Context, symbol string, _, pnl float64, _ time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exits[symbol] = pnl
	return nil
}

func (a *fakeAudit) ListTrades(_ context.Context, limit int) ([]domain.TradeRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if limit > 0 && limit < len(a.trades) {
		return append([]domain.TradeRecord(nil), a.trades[:limit]...), nil
	}
	return append([]domain.TradeRecord(nil), a.trades...), nil
}

func (a *fakeAudit) SaveMarketSnapshot(_ context.Context, analysis *domain.MarketAnalysis) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots = append(a.snapshots, analysis.Symbol)
	return nil
}

func (a *fakeAudit) PriceHistory(_ context.Context, symbol string, _ time.Time) ([]domain.PricePoint, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.history[symbol]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return h, nil
}

func (a *fakeAudit) SaveAdvisoryResponse(_ context.Context, kind, symbol string, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.advisory = append(a.advisory, kind+":"+symbol)
	return nil
}

func (a *fakeAudit) SaveAPIError(_ context.Context, operation, symbol, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apiErrors = append(a.apiErrors, operation+":"+symbol)
	return nil
}

func (a *fakeAudit) Rotate(context.Context, domain.RetentionPolicy) (domain.RotationStats, error) {
	return domain.RotationStats{MarketHistory: 3}, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*domain.MarketAnalysis
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*domain.MarketAnalysis)}
}

func (c *fakeCache) Get(_ context.Context, symbol string) (*domain.MarketAnalysis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.entries[symbol]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (c *fakeCache) Set(_ context.Context, analysis *domain.MarketAnalysis, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[analysis.Symbol] = analysis
	return nil
}

type recordingSender struct {
	mu   sync.Mutex
	name string
	err  error
	sent []domain.Notification
}

func (s *recordingSender) Name() string { return s.name }

func (s *recordingSender) Send(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return s.err
}

func (s *recordingSender) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, n := range s.sent {
		out[i] = n.Kind
	}
	return out
}

type fakeAdvisor struct {
	selection *domain.TradeAdvice
	selectErr error
	plans     map[string]*domain.TradeAdvice
	reviews   map[string]*domain.PositionReview
	reviewErr error
}

func (a *fakeAdvisor) SelectTrade(context.Context, domain.AdvisoryRequest) (*domain.TradeAdvice, error) {
	if a.selectErr != nil {
		return nil, a.selectErr
	}
	if a.selection == nil {
		return nil, nil
	}
	cp := *a.selection
	return &cp, nil
}

func (a *fakeAdvisor) PlanAsset(_ context.Context, c domain.AdvisoryCandidate, _ domain.AdvisoryRequest) (*domain.TradeAdvice, error) {
	plan, ok := a.plans[c.Symbol]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *plan
	return &cp, nil
}

func (a *fakeAdvisor) ReviewPosition(_ context.Context, pos domain.LivePosition, _ domain.AdvisoryCandidate) (*domain.PositionReview, error) {
	if a.reviewErr != nil {
		return nil, a.reviewErr
	}
	review, ok := a.reviews[pos.Symbol]
	if !ok {
		return nil, nil
	}
	cp := *review
	return &cp, nil
}

// testRig wires the trading components around a fakeExchange with a silent logger and a
// protection retry policy that does not sleep.
type testRig struct {
	ex         *fakeExchange
	risk       *RiskEngine
	quarantine *QuarantineTracker
	daily      *DailyLossTracker
	lots       *LotNormalizer
	analyzer   *Analyzer
	audit      *fakeAudit
	orch       *Orchestrator
}

func newTestRig(t *testing.T, symbols ...string) *testRig {
	t.Helper()
	log := zerolog.Nop()
	ex := newFakeExchange()
	for _, s := range symbols {
		ex.setTicker(s, 100)
	}

	params := domain.DefaultRiskParameters()
	risk := NewRiskEngine(params, nil, log)
	quarantine := NewQuarantineTracker(nil, 4*time.Hour, log)
	daily := NewDailyLossTracker(params.MaxDailyLoss)
	lots := NewLotNormalizer(ex, log)

	acfg := DefaultAnalyzerConfig()
	acfg.Symbols = symbols
	acfg.Concurrency = 1
	analyzer := NewAnalyzer(ex, risk, acfg, nil, log)

	ocfg := DefaultOrchestratorConfig()
	ocfg.CycleTimeout = 5 * time.Second
	ocfg.RefreshDelay = time.Hour

	audit := newFakeAudit()
	orch := NewOrchestrator(OrchestratorDeps{
		Exchange:   ex,
		Analyzer:   analyzer,
		Risk:       risk,
		Quarantine: quarantine,
		DailyLoss:  daily,
		Lots:       lots,
		Audit:      audit,
	}, ocfg, log)
	orch.retry = RetryPolicy{MaxAttempts: 5}
	t.Cleanup(orch.StopRefreshes)

	return &testRig{
		ex:         ex,
		risk:       risk,
		quarantine: quarantine,
		daily:      daily,
		lots:       lots,
		analyzer:   analyzer,
		audit:      audit,
		orch:       orch,
	}
}

func (r *testRig) withAdvisor(a domain.Advisor) {
	r.orch.advisory = NewAdvisoryGate(a, r.audit, time.Second, zerolog.Nop())
}
