package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

const (
	MakerFee = 0.0002
	TakerFee = 0.00055
)

// NetProfitPct subtracts round-trip fees from a gross move in percent. Exits are always
// taker (stop or target fill); the entry is maker or taker.
func NetProfitPct(grossPct float64, makerEntry bool) float64 {
	entry := TakerFee
	if makerEntry {
		entry = MakerFee
	}
	return grossPct - (entry+TakerFee)*100
}

type OrchestratorConfig struct {
	MaxActivePositions int
	CycleTimeout       time.Duration
	RefreshDelay       time.Duration
	RefreshTimeout     time.Duration
	AdvisoryPoolSize   int
	Capital            float64
	BotName            string
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxActivePositions: 3,
		CycleTimeout:       25 * time.Second,
		RefreshDelay:       30 * time.Second,
		RefreshTimeout:     20 * time.Second,
		AdvisoryPoolSize:   5,
		Capital:            100,
		BotName:            "main",
	}
}

// ErrCycleRunning is returned when an entry is requested while a cycle or a manual entry is
// still in flight.
var ErrCycleRunning = errors.New("auto-trade cycle or manual entry already running")

// CycleReport is the outcome of one auto-trade cycle.
type CycleReport struct {
	Outcome  domain.CycleOutcome
	Opened   []domain.TradeRecord
	Messages []string
	Duration time.Duration
}

// Orchestrator runs the scan, filter, advisory, sizing, submit and protect cycle.
type Orchestrator struct {
	exchange   domain.Exchange
	analyzer   *Analyzer
	risk       *RiskEngine
	quarantine *QuarantineTracker
	daily      *DailyLossTracker
	lots       *LotNormalizer
	advisory   *AdvisoryGate
	audit      domain.AuditStore
	metrics    domain.Metrics
	log        zerolog.Logger
	cfg        OrchestratorConfig
	retry      RetryPolicy
	now        func() time.Time

	running atomic.Bool

	mu            sync.Mutex
	state         domain.OrchestratorState
	auto          domain.AutoTradeState
	limitNotified bool
	refreshes     map[string]*time.Timer
}

// OrchestratorDeps groups the collaborators of an Orchestrator. Advisory and Audit may be nil.
type OrchestratorDeps struct {
	Exchange   domain.Exchange
	Analyzer   *Analyzer
	Risk       *RiskEngine
	Quarantine *QuarantineTracker
	DailyLoss  *DailyLossTracker
	Lots       *LotNormalizer
	Advisory   *AdvisoryGate
	Audit      domain.AuditStore
	Metrics    domain.Metrics
}

func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig, log zerolog.Logger) *Orchestrator {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Orchestrator{
		exchange:   deps.Exchange,
		analyzer:   deps.Analyzer,
		risk:       deps.Risk,
		quarantine: deps.Quarantine,
		daily:      deps.DailyLoss,
		lots:       deps.Lots,
		advisory:   deps.Advisory,
		audit:      deps.Audit,
		metrics:    metrics,
		log:        log.With().Str("component", "orchestrator").Logger(),
		cfg:        cfg,
		retry:      ProtectionRetryPolicy(),
		now:        time.Now,
		state:      domain.StateIdle,
		auto:       domain.AutoTradeState{LastResult: domain.CycleNeverRun},
		refreshes:  make(map[string]*time.Timer),
	}
}

func (o *Orchestrator) Enable() {
	o.mu.Lock()
	o.auto.Enabled = true
	o.mu.Unlock()
	o.log.Info().Msg("auto-trade enabled")
}

// Disable only flips the flag; an in-flight cycle finishes on its own.
func (o *Orchestrator) Disable() {
	o.mu.Lock()
	o.auto.Enabled = false
	o.mu.Unlock()
	o.log.Info().Msg("auto-trade disabled")
}

func (o *Orchestrator) Enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.auto.Enabled
}

func (o *Orchestrator) AutoState() domain.AutoTradeState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.auto
}

func (o *Orchestrator) State() domain.OrchestratorState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) MaxActivePositions() int {
	return o.cfg.MaxActivePositions
}

func (o *Orchestrator) setState(s domain.OrchestratorState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// AutoCycle is the scheduled entry point: it does nothing while auto-trade is disabled.
func (o *Orchestrator) AutoCycle(ctx context.Context, responder domain.Responder) (*CycleReport, error) {
	if !o.Enabled() {
		return &CycleReport{Outcome: domain.CycleDisabled}, nil
	}
	return o.RunCycle(ctx, responder)
}

// RunCycle runs one cycle under the hard timeout. On timeout the cycle is abandoned and
// reported as CycleTimeout; it keeps the running flag until its goroutine returns, so
// cycles never overlap.
func (o *Orchestrator) RunCycle(ctx context.Context, responder domain.Responder) (*CycleReport, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}
	started := o.now()

	cycleCtx, cancel := context.WithTimeout(ctx, o.cfg.CycleTimeout)
	defer cancel()

	type result struct {
		report *CycleReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer o.running.Store(false)
		report, err := o.cycle(cycleCtx, responder)
		done <- result{report, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-cycleCtx.Done():
		select {
		case r = <-done:
		default:
			r.err = cycleCtx.Err()
		}
	}

	report, err := r.report, r.err
	if report == nil {
		report = &CycleReport{}
	}
	if err != nil {
		report.Outcome = domain.CycleError
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			report.Outcome = domain.CycleTimeout
		}
	}
	report.Duration = o.now().Sub(started)

	detail := strings.Join(report.Messages, "\n")
	switch {
	case report.Outcome == domain.CycleTimeout:
		detail = fmt.Sprintf("cycle abandoned after %s", o.cfg.CycleTimeout)
		o.log.Warn().Dur("timeout", o.cfg.CycleTimeout).Msg("⏱ auto-trade cycle timed out")
		o.reply(ctx, responder, "⏱ Auto-trade cycle timed out and was abandoned.")
	case err != nil:
		detail = err.Error()
		o.log.Error().Err(err).Msg("auto-trade cycle failed")
		o.reply(ctx, responder, "⚠️ Auto-trade cycle failed: "+err.Error())
	}

	o.mu.Lock()
	o.auto.LastRun = started
	o.auto.LastResult = report.Outcome
	o.auto.LastDetail = detail
	o.mu.Unlock()
	o.metrics.RecordCycle(string(report.Outcome), report.Duration.Seconds())

	if report.Outcome == domain.CycleTimeout {
		return report, nil
	}
	return report, err
}

func (o *Orchestrator) cycle(ctx context.Context, responder domain.Responder) (*CycleReport, error) {
	defer o.setState(domain.StateIdle)
	report := &CycleReport{}

	o.setState(domain.StateScanning)
	o.lots.RefreshOnce(ctx, o.analyzer.Symbols())

	positions, err := o.exchange.GetPositions(ctx)
	if err != nil {
		o.recordAPIError(ctx, "get_positions", "", err)
		return nil, fmt.Errorf("positions: %w", err)
	}
	active := activePositions(positions)
	o.metrics.RecordOpenPositions(len(active))

	if len(active) >= o.cfg.MaxActivePositions {
		report.Outcome = domain.CycleLimitReached
		o.log.Info().Int("active", len(active)).Int("max", o.cfg.MaxActivePositions).Msg("position limit reached, no new entry")
		if o.markLimitNotified() {
			msg := fmt.Sprintf("⏸ Limit of %d active positions reached.\nClose positions or wait for them to finish before new entries.", o.cfg.MaxActivePositions)
			report.Messages = append(report.Messages, msg)
			o.reply(ctx, responder, msg)
		}
		return report, nil
	}
	o.clearLimitNotified()

	overview, err := o.analyzer.Scan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		report.Outcome = domain.CycleNoCandidates
		o.log.Warn().Err(err).Msg("scan produced no candidates")
		return report, nil
	}

	o.setState(domain.StateFiltering)
	now := o.now()
	var eligible []domain.MarketAnalysis
	var blocked []string
	for _, asset := range overview.Assets {
		if err := o.checkEntry(asset.Symbol, active, now); err != nil {
			blocked = append(blocked, fmt.Sprintf("• %s: %v", asset.Symbol, err))
			continue
		}
		eligible = append(eligible, asset)
	}
	if len(eligible) == 0 {
		report.Outcome = domain.CycleBlocked
		if len(blocked) > 0 {
			msg := "⏸ All top symbols are cooling down or already held:\n" + strings.Join(blocked, "\n") + "\nWill retry on the next run."
			report.Messages = append(report.Messages, msg)
			o.reply(ctx, responder, msg)
		}
		return report, nil
	}

	slots := o.cfg.MaxActivePositions - len(active)
	toFill := min(slots, len(eligible))

	o.setState(domain.StateAdvisory)
	balance := o.balance(ctx)
	selection, plans := o.consultAdvisory(ctx, eligible, active, balance)

	used := make(map[string]bool)
	pick := func() (*domain.MarketAnalysis, *domain.TradeAdvice) {
		if selection != nil {
			for i := range eligible {
				if eligible[i].Symbol == selection.Symbol && !used[eligible[i].Symbol] {
					return &eligible[i], plans[eligible[i].Symbol]
				}
			}
		}
		for i := range eligible {
			if !used[eligible[i].Symbol] {
				return &eligible[i], plans[eligible[i].Symbol]
			}
		}
		return nil, nil
	}

	for i := 0; i < toFill; i++ {
		asset, plan := pick()
		if asset == nil {
			break
		}
		used[asset.Symbol] = true

		var recommendation *domain.TradeAdvice
		if selection != nil && selection.Symbol == asset.Symbol {
			recommendation = selection
		}

		trade, msg, err := o.openCandidate(ctx, asset, overview.OrderFlow.Trend, plan, recommendation, active, balance)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			o.log.Warn().Err(err).Str("symbol", asset.Symbol).Msg("candidate skipped")
			if text := candidateFailureText(err); text != "" {
				report.Messages = append(report.Messages, text)
				o.reply(ctx, responder, text)
			}
			if errors.Is(err, domain.ErrDailyLossLimit) {
				report.Outcome = domain.CycleBlocked
				break
			}
			continue
		}
		report.Opened = append(report.Opened, *trade)
		report.Messages = append(report.Messages, msg)
		o.reply(ctx, responder, msg)
		active = append(active, domain.LivePosition{
			Symbol:     trade.Symbol,
			Side:       trade.Side.OrderSide(),
			Size:       trade.Quantity,
			EntryPrice: trade.EntryPrice,
			Leverage:   float64(trade.Leverage),
		})
	}

	switch {
	case len(report.Opened) > 0:
		report.Outcome = domain.CycleOK
	case report.Outcome == "":
		report.Outcome = domain.CycleNoCandidates
	}
	return report, nil
}

// checkEntry rejects quarantined symbols, symbols already held and entries past the cap.
func (o *Orchestrator) checkEntry(symbol string, active []domain.LivePosition, now time.Time) error {
	if err := o.quarantine.Check(symbol, now); err != nil {
		return err
	}
	for _, p := range active {
		if p.Symbol == symbol {
			return fmt.Errorf("%w: %s", domain.ErrPositionExists, symbol)
		}
	}
	if len(active) >= o.cfg.MaxActivePositions {
		return fmt.Errorf("%w: %d/%d", domain.ErrPositionLimit, len(active), o.cfg.MaxActivePositions)
	}
	return nil
}

func (o *Orchestrator) consultAdvisory(ctx context.Context, eligible []domain.MarketAnalysis, positions []domain.LivePosition, balance float64) (*domain.TradeAdvice, map[string]*domain.TradeAdvice) {
	plans := make(map[string]*domain.TradeAdvice)
	if !o.advisory.Enabled() {
		return nil, plans
	}

	pool := eligible[:min(o.cfg.AdvisoryPoolSize, len(eligible))]
	req := domain.AdvisoryRequest{Positions: positions, Balance: balance}
	for i := range pool {
		req.Candidates = append(req.Candidates, toCandidate(&pool[i]))
	}

	selection, err := o.advisory.SelectTrade(ctx, req)
	if err != nil {
		o.log.Warn().Err(err).Msg("advisory selection unavailable, using own ranking")
		selection = nil
	} else {
		o.log.Info().Str("symbol", selection.Symbol).Float64("confidence", selection.Confidence).Msg("advisory recommends")
	}

	for _, c := range req.Candidates {
		if ctx.Err() != nil {
			break
		}
		plan, err := o.advisory.PlanAsset(ctx, c, req)
		if err != nil {
			o.log.Debug().Err(err).Str("symbol", c.Symbol).Msg("no advisory plan")
			continue
		}
		plans[c.Symbol] = plan
	}
	return selection, plans
}

func toCandidate(a *domain.MarketAnalysis) domain.AdvisoryCandidate {
	c := domain.AdvisoryCandidate{
		Symbol:      a.Symbol,
		Price:       a.Ticker.LastPrice,
		ChangePct:   a.ChangePct,
		Volatility:  a.Volatility,
		FundingRate: a.Ticker.FundingRate,
		Condition:   a.Condition,
		Score:       a.Score,
		Leverage:    a.Leverage.Recommended,
		EMASignal:   a.EMASignal(),
	}
	if ind := a.Indicators; ind != nil {
		c.Trend = ind.Trend.Label
		c.RSI = ind.RSI
		c.ATR = ind.ATR
		c.Support = ind.Support
		c.Resistance = ind.Resistance
	}
	return c
}

// openCandidate runs the sizing, submit and protect steps for one asset.
func (o *Orchestrator) openCandidate(ctx context.Context, asset *domain.MarketAnalysis, flow domain.FlowTrend, plan, recommendation *domain.TradeAdvice, positions []domain.LivePosition, balance float64) (*domain.TradeRecord, string, error) {
	o.setState(domain.StateSizing)
	if err := o.checkDailyLoss(balance, positions); err != nil {
		return nil, "", err
	}

	var side domain.Side
	if plan != nil {
		parsed, ok := domain.ParseSide(plan.Side)
		if !ok {
			o.log.Warn().Str("symbol", asset.Symbol).Str("side", plan.Side).Msg("unknown advisory side, using Long")
		}
		side = parsed
	} else {
		trend := domain.TrendNeutral
		if asset.Indicators != nil {
			trend = asset.Indicators.Trend.Label
		}
		side = DetermineTradeSide(asset.Condition, trend, flow)
	}

	corr := o.risk.CheckCorrelation(ctx, asset.Symbol, side, positions)
	if !corr.Safe {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrHighCorrelation, strings.Join(corr.Warnings, ", "))
	}

	intent, err := o.buildIntent(asset, side, plan, 0)
	if err != nil && plan != nil && errors.Is(err, domain.ErrInvalidIntent) {
		o.log.Warn().Err(err).Str("symbol", asset.Symbol).Float64("price", asset.Ticker.LastPrice).Msg("advisory levels rejected at live price, using engine levels")
		intent, err = o.buildIntent(asset, side, nil, 0)
	}
	if err != nil {
		return nil, "", err
	}

	trade, err := o.execute(ctx, intent)
	if err != nil {
		return nil, "", err
	}

	explain := plan
	if explain == nil {
		explain = recommendation
	}
	return trade, o.confirmation(trade, intent, explain), nil
}

// buildIntent derives stop, target and quantity around the live price, which is always the
// entry. Advisory levels are used when positive; otherwise the ATR/volatility stop and the
// default target apply. A default target that misses the reward/risk minimum is widened to
// the recommended target.
// qty > 0 overrides the risk-based size.
func (o *Orchestrator) buildIntent(asset *domain.MarketAnalysis, side domain.Side, plan *domain.TradeAdvice, qty float64) (domain.PositionIntent, error) {
	params := o.risk.Params()
	entry := asset.Ticker.LastPrice
	source := "engine"
	if plan != nil {
		source = "advisory"
	}

	volFrac := math.Max(asset.Volatility/100, 0.01)
	stop := o.risk.RecommendedStopLoss(entry, side, volFrac, asset.ATR())
	if plan != nil && plan.StopLoss > 0 {
		stop = plan.StopLoss
	}

	var target float64
	if plan != nil && plan.TakeProfit > 0 {
		target = plan.TakeProfit
	} else {
		target = o.risk.DefaultTakeProfit(entry, side)
		draft := domain.PositionIntent{Entry: entry, StopLoss: stop, TakeProfit: target}
		if draft.RewardRatio() < params.MinRewardRatio-ratioTolerance {
			target = o.risk.RecommendedTakeProfit(entry, stop, side)
		}
	}

	if err := ValidateExternalLevels(entry, stop, target, side); err != nil {
		return domain.PositionIntent{}, fmt.Errorf("%w: %v", domain.ErrInvalidIntent, err)
	}

	leverage := asset.Leverage.Recommended
	if leverage < 1 {
		leverage = 1
	}
	riskAmount := o.risk.RiskAmount(o.cfg.Capital, asset.RiskMultiplier)
	if qty <= 0 {
		qty = o.risk.PositionSize(entry, stop, riskAmount, leverage)
	}
	qty = o.lots.Normalize(asset.Symbol, qty)
	if qty <= 0 {
		return domain.PositionIntent{}, fmt.Errorf("%s: %w", asset.Symbol, domain.ErrZeroQuantity)
	}

	intent := domain.PositionIntent{
		Symbol:     asset.Symbol,
		Side:       side,
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: target,
		Quantity:   qty,
		Leverage:   leverage,
		RiskAmount: riskAmount,
		Source:     source,
	}
	if v := o.risk.ValidateTrade(intent); !v.Valid {
		return domain.PositionIntent{}, fmt.Errorf("%w: %s", domain.ErrInvalidIntent, strings.Join(v.Errors, "; "))
	}
	return intent, nil
}

// execute submits a validated intent and protects it. An entry that cannot be protected
// stays open with Protected=false.
func (o *Orchestrator) execute(ctx context.Context, intent domain.PositionIntent) (*domain.TradeRecord, error) {
	o.setState(domain.StateSubmitting)
	if err := o.exchange.SetLeverage(ctx, intent.Symbol, intent.Leverage); err != nil {
		o.recordAPIError(ctx, "set_leverage", intent.Symbol, err)
		return nil, fmt.Errorf("set leverage %s: %w", intent.Symbol, err)
	}

	o.log.Info().
		Str("symbol", intent.Symbol).
		Str("side", intent.Side.OrderSide()).
		Float64("qty", intent.Quantity).
		Float64("entry", intent.Entry).
		Float64("sl", intent.StopLoss).
		Float64("tp", intent.TakeProfit).
		Msg("placing entry order")

	linkID := uuid.NewString()
	result, err := o.exchange.PlaceMarketOrder(ctx, domain.OrderRequest{
		Symbol:      intent.Symbol,
		Side:        intent.Side.OrderSide(),
		Qty:         intent.Quantity,
		OrderLinkID: linkID,
	})
	if err != nil {
		o.recordAPIError(ctx, "place_order", intent.Symbol, err)
		return nil, fmt.Errorf("place order %s: %w", intent.Symbol, err)
	}
	o.metrics.RecordOrder(intent.Symbol, string(intent.Side))
	o.log.Info().Str("symbol", intent.Symbol).Str("order_id", result.OrderID).Msg("✅ entry order placed")

	o.ScheduleRefresh(intent.Symbol)

	o.setState(domain.StateProtecting)
	protected := o.protect(ctx, intent)

	trade := &domain.TradeRecord{
		ID:         uuid.NewString(),
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		Quantity:   intent.Quantity,
		EntryPrice: intent.Entry,
		StopLoss:   intent.StopLoss,
		TakeProfit: intent.TakeProfit,
		Leverage:   intent.Leverage,
		OrderID:    result.OrderID,
		Protected:  protected,
		Source:     intent.Source,
		BotName:    o.cfg.BotName,
		Status:     domain.TradeStatusOpen,
		EntryTime:  o.now(),
	}
	if o.audit != nil {
		if err := o.audit.SaveTrade(ctx, trade); err != nil {
			o.log.Warn().Err(err).Str("symbol", trade.Symbol).Msg("trade audit write failed")
		}
	}
	return trade, nil
}

// protect attaches stop and target with the retry policy. The result is only logged and
// flagged; the entry is never reversed.
func (o *Orchestrator) protect(ctx context.Context, intent domain.PositionIntent) bool {
	attempts, err := o.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		err := o.exchange.SetTradingStop(ctx, intent.Symbol, intent.StopLoss, intent.TakeProfit)
		if err != nil {
			o.log.Debug().Err(err).Str("symbol", intent.Symbol).Int("attempt", attempt).Msg("protection attempt failed")
		}
		return err
	})
	ok := err == nil
	o.metrics.RecordProtection(intent.Symbol, ok)
	if !ok {
		o.recordAPIError(ctx, "set_trading_stop", intent.Symbol, err)
		o.log.Error().Err(err).Str("symbol", intent.Symbol).Int("attempts", attempts).Msg("❌ position left unprotected")
		return false
	}
	o.log.Info().Str("symbol", intent.Symbol).Int("attempts", attempts).Msg("🛡 stop and target attached")
	return true
}

// ScheduleRefresh arms a one-shot re-verification of stop and target for symbol. Only one
// refresh per symbol can be pending.
func (o *Orchestrator) ScheduleRefresh(symbol string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, pending := o.refreshes[symbol]; pending {
		o.log.Debug().Str("symbol", symbol).Msg("refresh already scheduled")
		return
	}
	o.refreshes[symbol] = time.AfterFunc(o.cfg.RefreshDelay, func() {
		defer func() {
			o.mu.Lock()
			delete(o.refreshes, symbol)
			o.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RefreshTimeout)
		defer cancel()
		if err := o.Refresh(ctx, symbol); err != nil {
			o.log.Warn().Err(err).Str("symbol", symbol).Msg("delayed stop/target refresh failed")
		}
	})
}

// PendingRefreshes lists symbols with a scheduled re-verification.
func (o *Orchestrator) PendingRefreshes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.refreshes))
	for sym := range o.refreshes {
		out = append(out, sym)
	}
	return out
}

// StopRefreshes cancels every pending re-verification.
func (o *Orchestrator) StopRefreshes() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for sym, t := range o.refreshes {
		t.Stop()
		delete(o.refreshes, sym)
	}
}

// Refresh recomputes stop and target from fresh candles and re-applies them to the open
// position. A missing position is not an error.
func (o *Orchestrator) Refresh(ctx context.Context, symbol string) error {
	positions, err := o.exchange.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}
	pos, ok := findActive(positions, symbol)
	if !ok {
		o.log.Info().Str("symbol", symbol).Msg("position gone, refresh skipped")
		return nil
	}

	analysis, err := o.analyzer.AnalyzeSymbol(ctx, symbol)
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}

	side := pos.ResolveSide()
	entry := pos.EntryPrice
	if entry <= 0 {
		entry = analysis.Ticker.LastPrice
	}
	if entry <= 0 {
		return fmt.Errorf("%s: no entry price: %w", symbol, domain.ErrInsufficientData)
	}

	stop, target := o.protectionLevels(analysis, entry, side)

	if err := o.exchange.CancelConditionalOrders(ctx, symbol); err != nil {
		o.log.Warn().Err(err).Str("symbol", symbol).Msg("cancel conditional orders failed")
	}
	if err := o.exchange.SetTradingStop(ctx, symbol, stop, target); err != nil {
		if pos.HasProtection() {
			o.log.Info().Str("symbol", symbol).Msg("refresh rejected but position already protected")
			return nil
		}
		o.metrics.RecordProtection(symbol, false)
		o.recordAPIError(ctx, "refresh_trading_stop", symbol, err)
		return fmt.Errorf("set trading stop %s: %w", symbol, err)
	}
	o.metrics.RecordProtection(symbol, true)
	o.log.Info().Str("symbol", symbol).Float64("sl", stop).Float64("tp", target).Msg("stop/target refreshed")
	return nil
}

// protectionLevels is the engine's own stop and target for a position opened at entry.
func (o *Orchestrator) protectionLevels(analysis *domain.MarketAnalysis, entry float64, side domain.Side) (float64, float64) {
	volFrac := math.Max(analysis.Volatility/100, 0.01)
	stop := o.risk.RecommendedStopLoss(entry, side, volFrac, analysis.ATR())
	target := o.risk.DefaultTakeProfit(entry, side)
	draft := domain.PositionIntent{Entry: entry, StopLoss: stop, TakeProfit: target}
	if draft.RewardRatio() < o.risk.Params().MinRewardRatio-ratioTolerance {
		target = o.risk.RecommendedTakeProfit(entry, stop, side)
	}
	return stop, target
}

func (o *Orchestrator) checkDailyLoss(balance float64, positions []domain.LivePosition) error {
	status := o.daily.Check(balance, 0, positions)
	o.metrics.RecordDailyLoss(status.LossPct)
	if status.LimitReached {
		o.log.Warn().Float64("loss_pct", status.LossPct*100).Msg("daily loss limit reached")
		return fmt.Errorf("%w: %.2f%%", domain.ErrDailyLossLimit, status.LossPct*100)
	}
	return nil
}

// balance returns the wallet balance, falling back to the configured capital.
func (o *Orchestrator) balance(ctx context.Context) float64 {
	b, err := o.exchange.GetBalance(ctx)
	if err != nil || b <= 0 {
		if err != nil {
			o.log.Debug().Err(err).Msg("balance unavailable, using configured capital")
		}
		return o.cfg.Capital
	}
	return b
}

func (o *Orchestrator) markLimitNotified() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.limitNotified {
		return false
	}
	o.limitNotified = true
	return true
}

func (o *Orchestrator) clearLimitNotified() {
	o.mu.Lock()
	o.limitNotified = false
	o.mu.Unlock()
}

func (o *Orchestrator) recordAPIError(ctx context.Context, op, symbol string, err error) {
	o.metrics.RecordError(op)
	if o.audit == nil || err == nil {
		return
	}
	if werr := o.audit.SaveAPIError(context.WithoutCancel(ctx), op, symbol, err.Error()); werr != nil {
		o.log.Debug().Err(werr).Msg("api error audit write failed")
	}
}

func (o *Orchestrator) reply(ctx context.Context, responder domain.Responder, text string) {
	if responder == nil || text == "" {
		return
	}
	if err := responder.Reply(context.WithoutCancel(ctx), text); err != nil {
		o.log.Warn().Err(err).Msg("reply failed")
	}
}

func (o *Orchestrator) confirmation(trade *domain.TradeRecord, intent domain.PositionIntent, advice *domain.TradeAdvice) string {
	var grossPct float64
	if intent.Entry > 0 {
		grossPct = math.Abs(intent.TakeProfit-intent.Entry) / intent.Entry * 100
	}
	net := NetProfitPct(grossPct, true)

	direction := "LONG"
	if trade.Side == domain.Short {
		direction = "SHORT"
	}

	var b strings.Builder
	b.WriteString("✅ Auto trade executed:\n\n")
	fmt.Fprintf(&b, "Symbol: %s\n", trade.Symbol)
	fmt.Fprintf(&b, "Side: %s\n", direction)
	fmt.Fprintf(&b, "Entry: $%.2f\n", trade.EntryPrice)
	fmt.Fprintf(&b, "Size: %.6f\n", trade.Quantity)
	fmt.Fprintf(&b, "Leverage: %dx\n", trade.Leverage)
	fmt.Fprintf(&b, "Stop loss: $%.2f\n", trade.StopLoss)
	fmt.Fprintf(&b, "Take profit: $%.2f\n", trade.TakeProfit)
	fmt.Fprintf(&b, "Risk: $%.2f\n", intent.RiskAmount)
	fmt.Fprintf(&b, "💰 Net profit: %.2f%% (after fees: maker entry %.2f%% + taker exit %.3f%%)\n", net, MakerFee*100, TakerFee*100)
	if !trade.Protected {
		b.WriteString("⚠️ Stop/target could not be attached, re-check scheduled.\n")
	}
	if advice != nil {
		fmt.Fprintf(&b, "\n🤖 Advisory confidence %.0f%%\n💡 %s\n", advice.Confidence*100, advice.Reasoning)
		if len(advice.MissingData) > 0 {
			b.WriteString("\n⚠️ Advisory reports missing data:\n")
			for _, item := range advice.MissingData {
				fmt.Fprintf(&b, "  • %s\n", item)
			}
		}
	}
	fmt.Fprintf(&b, "Order ID: %s", trade.OrderID)
	return b.String()
}

// candidateFailureText is the operator-facing text for a skipped candidate, empty for
// reasons that are only logged.
func candidateFailureText(err error) string {
	switch {
	case errors.Is(err, domain.ErrDailyLossLimit):
		return "⚠️ Daily loss limit reached (" + strings.TrimPrefix(err.Error(), domain.ErrDailyLossLimit.Error()+": ") + "). Trading paused."
	case errors.Is(err, domain.ErrHighCorrelation):
		return "⚠️ " + err.Error()
	case errors.Is(err, domain.ErrZeroQuantity), errors.Is(err, domain.ErrInvalidIntent):
		return ""
	default:
		return "⚠️ Could not place trade: " + err.Error()
	}
}

func activePositions(positions []domain.LivePosition) []domain.LivePosition {
	out := make([]domain.LivePosition, 0, len(positions))
	for _, p := range positions {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

func findActive(positions []domain.LivePosition, symbol string) (domain.LivePosition, bool) {
	for _, p := range positions {
		if p.Symbol == symbol && p.IsActive() {
			return p, true
		}
	}
	return domain.LivePosition{}, false
}
