package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"perp-autotrader/internal/domain"
)

const eventTimeLayout = "02.01.2006 15:04:05"

// Monitor diffs live positions against its shadow state and reports lifecycle events.
type Monitor struct {
	exchange   domain.Exchange
	analyzer   *Analyzer
	risk       *RiskEngine
	quarantine *QuarantineTracker
	daily      *DailyLossTracker
	audit      domain.AuditStore
	advisory   *AdvisoryGate
	notifier   *Broadcaster
	metrics    domain.Metrics
	log        zerolog.Logger
	now        func() time.Time

	mu     sync.Mutex
	shadow map[string]*domain.PositionState
}

type MonitorDeps struct {
	Exchange   domain.Exchange
	Analyzer   *Analyzer
	Risk       *RiskEngine
	Quarantine *QuarantineTracker
	DailyLoss  *DailyLossTracker
	Audit      domain.AuditStore
	Advisory   *AdvisoryGate
	Notifier   *Broadcaster
	Metrics    domain.Metrics
}

func NewMonitor(deps MonitorDeps, log zerolog.Logger) *Monitor {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Monitor{
		exchange:   deps.Exchange,
		analyzer:   deps.Analyzer,
		risk:       deps.Risk,
		quarantine: deps.Quarantine,
		daily:      deps.DailyLoss,
		audit:      deps.Audit,
		advisory:   deps.Advisory,
		notifier:   deps.Notifier,
		metrics:    metrics,
		log:        log.With().Str("component", "monitor").Logger(),
		now:        time.Now,
		shadow:     make(map[string]*domain.PositionState),
	}
}

// Shadow returns a copy of the shadow state, sorted by symbol.
func (m *Monitor) Shadow() []domain.PositionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PositionState, 0, len(m.shadow))
	for _, st := range m.shadow {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Poll fetches live positions and emits opened, closed, near-liquidation and target events.
// Each event fires once per position lifetime.
func (m *Monitor) Poll(ctx context.Context) ([]domain.PositionEvent, error) {
	positions, err := m.exchange.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	now := m.now()
	params := m.risk.Params()

	active := make(map[string]domain.LivePosition)
	for _, p := range positions {
		if p.Symbol != "" && p.IsActive() {
			active[p.Symbol] = p
		}
	}
	m.metrics.RecordOpenPositions(len(active))

	var events []domain.PositionEvent
	var closed []domain.PositionState

	m.mu.Lock()
	symbols := make([]string, 0, len(active))
	for sym := range active {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		pos := active[sym]
		st, ok := m.shadow[sym]
		if !ok {
			st = &domain.PositionState{Symbol: sym}
			m.shadow[sym] = st
		}
		if !st.Open() {
			*st = domain.PositionState{Symbol: sym, OpenedAt: now}
			events = append(events, domain.PositionEvent{
				Kind:       domain.EventOpened,
				Symbol:     sym,
				Side:       pos.ResolveSide(),
				Size:       math.Abs(pos.Size),
				EntryPrice: pos.EntryPrice,
				Price:      pos.MarkPrice,
				At:         now,
			})
		}
		m.updateState(st, pos)

		if !st.NotifiedLiquidation && pos.LiqPrice > 0 && pos.MarkPrice > 0 {
			dist := math.Abs(pos.MarkPrice-pos.LiqPrice) / pos.MarkPrice * 100
			if dist < params.LiquidationWarnPct {
				st.NotifiedLiquidation = true
				events = append(events, domain.PositionEvent{
					Kind:       domain.EventNearLiquidation,
					Symbol:     sym,
					Side:       st.Side,
					Size:       st.LastSize,
					EntryPrice: st.EntryPrice,
					Price:      pos.MarkPrice,
					PnL:        pos.UnrealizedPnL,
					Detail:     dist,
					At:         now,
				})
			}
		}

		if !st.NotifiedProfit && st.TargetProfitPct > 0 {
			pnlPct := pos.PnLPercent()
			if pnlPct >= st.TargetProfitPct*params.TargetNotifyRatio {
				st.NotifiedProfit = true
				events = append(events, domain.PositionEvent{
					Kind:       domain.EventTargetReached,
					Symbol:     sym,
					Side:       st.Side,
					Size:       st.LastSize,
					EntryPrice: st.EntryPrice,
					Price:      pos.MarkPrice,
					PnL:        pos.UnrealizedPnL,
					PnLPct:     pnlPct,
					Detail:     st.TargetProfitPct,
					At:         now,
				})
			}
		}
	}

	for sym, st := range m.shadow {
		if _, still := active[sym]; st.Open() && !still {
			closed = append(closed, *st)
		}
	}
	m.mu.Unlock()

	sort.Slice(closed, func(i, j int) bool { return closed[i].Symbol < closed[j].Symbol })
	for _, st := range closed {
		events = append(events, m.processClose(ctx, st, now))
	}

	for _, ev := range events {
		m.metrics.RecordPositionEvent(string(ev.Kind))
		m.log.Info().Str("symbol", ev.Symbol).Str("event", string(ev.Kind)).Msg("position event")
		if m.notifier != nil {
			if err := m.notifier.Broadcast(ctx, eventNotification(ev)); err != nil {
				m.log.Warn().Err(err).Str("symbol", ev.Symbol).Msg("event notification incomplete")
			}
		}
	}
	return events, nil
}

// updateState copies the live values into the shadow entry. A stored target from the
// exchange takes precedence over the engine's recommended one.
func (m *Monitor) updateState(st *domain.PositionState, pos domain.LivePosition) {
	st.LastSize = math.Abs(pos.Size)
	st.Side = pos.ResolveSide()
	st.EntryPrice = pos.EntryPrice
	st.Leverage = pos.Leverage
	st.UnrealizedPnL = pos.UnrealizedPnL

	if pct := targetPct(st.EntryPrice, pos.TakeProfit, st.Side); pct > 0 {
		st.TargetProfitPct = pct
		return
	}
	if st.TargetProfitPct == 0 && st.EntryPrice > 0 {
		stop := pos.StopLoss
		if stop <= 0 {
			stop = m.risk.RecommendedStopLoss(st.EntryPrice, st.Side, m.risk.Params().MinVolatilityFrac, 0)
		}
		target := m.risk.RecommendedTakeProfit(st.EntryPrice, stop, st.Side)
		st.TargetProfitPct = targetPct(st.EntryPrice, target, st.Side)
	}
}

// processClose books a position that disappeared: exit price from the last ticker, P&L,
// audit row, daily-loss ledger and quarantine. The shadow entry is reset last.
func (m *Monitor) processClose(ctx context.Context, st domain.PositionState, now time.Time) domain.PositionEvent {
	exit := st.EntryPrice
	if ticker, err := m.exchange.GetTicker(ctx, st.Symbol); err == nil && ticker.LastPrice > 0 {
		exit = ticker.LastPrice
	} else if err != nil {
		m.log.Warn().Err(err).Str("symbol", st.Symbol).Msg("exit price unavailable, using entry")
	}

	var pnl, pnlPct float64
	if st.Side == domain.Short {
		pnl = (st.EntryPrice - exit) * st.LastSize
	} else {
		pnl = (exit - st.EntryPrice) * st.LastSize
	}
	if st.EntryPrice > 0 {
		pnlPct = (exit - st.EntryPrice) / st.EntryPrice * 100
		if st.Side == domain.Short {
			pnlPct = -pnlPct
		}
	}

	if m.audit != nil {
		if err := m.audit.UpdateTradeExit(ctx, st.Symbol, exit, pnl, now); err != nil {
			m.log.Warn().Err(err).Str("symbol", st.Symbol).Msg("trade exit audit write failed")
		}
	}
	m.daily.RecordRealized(pnl, now)
	m.quarantine.Record(ctx, st.Symbol, now)

	m.mu.Lock()
	if cur, ok := m.shadow[st.Symbol]; ok {
		*cur = domain.PositionState{Symbol: st.Symbol}
	}
	m.mu.Unlock()

	m.log.Info().Str("symbol", st.Symbol).Float64("pnl", pnl).Msg("🛑 position closed")
	return domain.PositionEvent{
		Kind:       domain.EventClosed,
		Symbol:     st.Symbol,
		Side:       st.Side,
		Size:       st.LastSize,
		EntryPrice: st.EntryPrice,
		Price:      exit,
		PnL:        pnl,
		PnLPct:     pnlPct,
		At:         now,
	}
}

// ExitPlan is the stop and target the monitor expects on a position.
type ExitPlan struct {
	Side       domain.Side
	Entry      float64
	StopLoss   float64
	TakeProfit float64
}

// exitPlan keeps the exchange levels when present and fills the gaps from the engine.
func (m *Monitor) exitPlan(analysis *domain.MarketAnalysis, pos domain.LivePosition) ExitPlan {
	plan := ExitPlan{
		Side:       pos.ResolveSide(),
		Entry:      pos.EntryPrice,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
	}
	if plan.Entry <= 0 {
		plan.Entry = analysis.Ticker.LastPrice
	}
	if plan.StopLoss <= 0 {
		volFrac := math.Max(analysis.Volatility/100, m.risk.Params().MinVolatilityFrac)
		plan.StopLoss = m.risk.RecommendedStopLoss(plan.Entry, plan.Side, volFrac, analysis.ATR())
	}
	if plan.TakeProfit <= 0 {
		plan.TakeProfit = m.risk.RecommendedTakeProfit(plan.Entry, plan.StopLoss, plan.Side)
	}
	return plan
}

// Report re-applies missing stop/target on every open position and broadcasts a status
// report. It returns the report text.
func (m *Monitor) Report(ctx context.Context) (string, error) {
	positions, err := m.exchange.GetPositions(ctx)
	if err != nil {
		return "", fmt.Errorf("positions: %w", err)
	}
	now := m.now()
	stamp := now.Format("02.01 15:04")

	var active []domain.LivePosition
	for _, p := range positions {
		if p.Symbol != "" && p.IsActive() {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Symbol < active[j].Symbol })

	if len(active) == 0 {
		text := fmt.Sprintf("⏱ Monitoring (%s)\nNo open positions, so no signals. Reports resume automatically once trades appear.", stamp)
		m.broadcast(ctx, "monitor_report", text)
		return text, nil
	}

	symbols := make([]string, len(active))
	for i, p := range active {
		symbols[i] = p.Symbol
	}
	parts := []string{
		fmt.Sprintf("⏱ Monitoring open positions (%s)", stamp),
		"Symbols: " + strings.Join(symbols, ", "),
	}

	for _, pos := range active {
		analysis, err := m.analyzer.Cached(ctx, pos.Symbol)
		if err != nil {
			m.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("report: market data unavailable")
			parts = append(parts, fmt.Sprintf("\n%s: market data unavailable.", pos.Symbol))
			continue
		}
		plan := m.exitPlan(analysis, pos)

		if pos.StopLoss <= 0 || pos.TakeProfit <= 0 {
			m.log.Info().Str("symbol", pos.Symbol).Float64("sl", plan.StopLoss).Float64("tp", plan.TakeProfit).Msg("🔄 re-applying missing stop/target")
			if err := m.exchange.SetTradingStop(ctx, pos.Symbol, plan.StopLoss, plan.TakeProfit); err != nil {
				m.metrics.RecordProtection(pos.Symbol, false)
				m.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("re-apply stop/target failed")
			} else {
				m.metrics.RecordProtection(pos.Symbol, true)
			}
		}

		m.mu.Lock()
		if st, ok := m.shadow[pos.Symbol]; ok && st.Open() {
			if pct := targetPct(plan.Entry, plan.TakeProfit, plan.Side); pct > 0 {
				st.TargetProfitPct = pct
			}
		}
		m.mu.Unlock()

		parts = append(parts, m.positionReport(pos, analysis, plan, now))
		if line := m.reviewLine(ctx, pos, analysis); line != "" {
			parts = append(parts, line)
		}
	}

	text := strings.Join(parts, "\n")
	m.broadcast(ctx, "monitor_report", text)
	return text, nil
}

// Review collects the advisor's opinion on every open position. Positions whose review
// fails validation are skipped; the error is only returned when nothing could be reviewed.
func (m *Monitor) Review(ctx context.Context) ([]domain.PositionReview, error) {
	if !m.advisory.Enabled() {
		return nil, domain.ErrAdvisoryDisabled
	}
	positions, err := m.exchange.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}

	reviews := []domain.PositionReview{}
	var lastErr error
	for _, pos := range activePositions(positions) {
		analysis, err := m.analyzer.Cached(ctx, pos.Symbol)
		if err != nil {
			lastErr = err
			continue
		}
		review, err := m.advisory.ReviewPosition(ctx, pos, toCandidate(analysis))
		if err != nil {
			m.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("position review rejected")
			lastErr = err
			continue
		}
		reviews = append(reviews, *review)
	}
	if len(reviews) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return reviews, nil
}

func (m *Monitor) reviewLine(ctx context.Context, pos domain.LivePosition, a *domain.MarketAnalysis) string {
	if !m.advisory.Enabled() {
		return ""
	}
	review, err := m.advisory.ReviewPosition(ctx, pos, toCandidate(a))
	if err != nil {
		m.log.Debug().Err(err).Str("symbol", pos.Symbol).Msg("no position review")
		return ""
	}
	line := fmt.Sprintf("• 🤖 Advisory: %s (%.0f%%) %s", strings.ToUpper(string(review.Signal)), review.Confidence*100, review.Justification)
	if review.StopLoss > 0 || review.TakeProfit > 0 {
		line += fmt.Sprintf("\n  suggested stop $%.4f / target $%.4f", review.StopLoss, review.TakeProfit)
	}
	if review.Invalidation != "" {
		line += "\n  invalid if: " + review.Invalidation
	}
	return line
}

func (m *Monitor) positionReport(pos domain.LivePosition, a *domain.MarketAnalysis, plan ExitPlan, now time.Time) string {
	mark := pos.MarkPrice
	if mark <= 0 {
		mark = a.Ticker.LastPrice
	}
	trailing := m.risk.TrailingStop(plan.Entry, mark, plan.StopLoss, plan.Side)
	partial := m.risk.ShouldPartialClose(plan.Entry, mark, plan.TakeProfit, plan.Side)

	lines := []string{
		"\n🔍 " + pos.Symbol,
		fmt.Sprintf("• %s %.6f @ $%.4f | mark $%.4f | P&L %+.2f%% ($%.2f)",
			strings.ToUpper(string(plan.Side)), math.Abs(pos.Size), plan.Entry, mark, pos.PnLPercent(), pos.UnrealizedPnL),
		fmt.Sprintf("• 24h change %.2f%% | volatility %.2f%% | funding %.4f", a.ChangePct, a.Volatility, a.Ticker.FundingRate),
	}
	if ind := a.Indicators; ind != nil {
		rsi := "n/a"
		if ind.RSI != nil {
			rsi = fmt.Sprintf("%.1f", *ind.RSI)
		}
		lines = append(lines, fmt.Sprintf("• Trend %s | EMA(50/200) %s | RSI %s", ind.Trend.Label, ind.EMASignal, rsi))
		if ind.VWAPDistancePct != nil {
			lines = append(lines, fmt.Sprintf("• VWAP distance %.2f%%", *ind.VWAPDistancePct))
		}
	}
	lines = append(lines,
		fmt.Sprintf("• Condition: %s", a.Condition),
		fmt.Sprintf("• Exit plan: target $%.4f / stop $%.4f", plan.TakeProfit, plan.StopLoss),
	)
	if trailing != plan.StopLoss {
		lines = append(lines, fmt.Sprintf("• Trailing stop suggestion: $%.4f", trailing))
	}
	if partial {
		lines = append(lines, fmt.Sprintf("• Partial close suggested (%.0f%%)", m.risk.Params().PartialClosePct*100))
	}
	if pos.LiqPrice > 0 && mark > 0 {
		lines = append(lines, fmt.Sprintf("• Liquidation $%.4f (%.2f%% away)", pos.LiqPrice, math.Abs(mark-pos.LiqPrice)/mark*100))
	}
	if a.Flow != nil {
		lines = append(lines, fmt.Sprintf("• Large players: %s (net %.0f$)", a.Flow.Bias, a.Flow.NetFlow))
	}
	if left := m.quarantine.Remaining(pos.Symbol, now); left > 0 {
		lines = append(lines, fmt.Sprintf("• ⏸ Cooldown active for another %d min", int(left.Minutes())))
	}
	return strings.Join(lines, "\n")
}

func (m *Monitor) broadcast(ctx context.Context, kind, text string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Text(ctx, kind, text); err != nil {
		m.log.Warn().Err(err).Msg("report broadcast incomplete")
	}
}

// targetPct is the favourable move from entry to target in percent, 0 when target is on
// the wrong side or missing.
func targetPct(entry, target float64, side domain.Side) float64 {
	if entry <= 0 || target <= 0 {
		return 0
	}
	pct := (target - entry) / entry * 100
	if side == domain.Short {
		pct = -pct
	}
	return math.Max(pct, 0)
}

func eventNotification(ev domain.PositionEvent) domain.Notification {
	n := domain.Notification{
		Kind: string(ev.Kind),
		Data: map[string]string{
			"symbol": ev.Symbol,
			"side":   string(ev.Side),
			"event":  string(ev.Kind),
		},
	}
	at := ev.At.Format(eventTimeLayout)
	switch ev.Kind {
	case domain.EventOpened:
		n.Title = "🚀 Position opened: " + ev.Symbol
		n.Body = fmt.Sprintf("Side: %s\nSize: %.6f\nEntry: $%.4f\nTime: %s", ev.Side, ev.Size, ev.EntryPrice, at)
	case domain.EventClosed:
		n.Title = "🛑 Position closed: " + ev.Symbol
		n.Body = fmt.Sprintf("Side: %s\nLast size: %.6f\nEntry: $%.4f\nExit: $%.4f\nP&L: $%.2f (%+.2f%%)\nTime: %s",
			ev.Side, ev.Size, ev.EntryPrice, ev.Price, ev.PnL, ev.PnLPct, at)
	case domain.EventNearLiquidation:
		n.Title = "🚨 WARNING: " + ev.Symbol + " is close to liquidation"
		n.Body = fmt.Sprintf("Price: $%.4f\nDistance to liquidation: %.2f%%\n\nConsider closing part of the position, adding margin or tightening the stop.",
			ev.Price, ev.Detail)
	case domain.EventTargetReached:
		progress := 0.0
		if ev.Detail > 0 {
			progress = ev.PnLPct / ev.Detail * 100
		}
		n.Title = "🎯 Target profit: " + ev.Symbol
		n.Body = fmt.Sprintf("Current profit: %.2f%% ($%.2f)\nTarget: %.2f%%\nProgress: %.1f%%\n\nConsider a partial close and moving the stop to breakeven.",
			ev.PnLPct, ev.PnL, ev.Detail, progress)
	}
	return n
}
