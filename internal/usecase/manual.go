package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"

	"perp-autotrader/internal/domain"
)

var ErrPartialCloseNotDue = errors.New("partial close threshold not reached")

// ManualOrder is an operator-requested entry. Zero stop/target fall back to the engine's
// own levels; zero quantity is sized by the risk engine.
type ManualOrder struct {
	Symbol     string      `json:"symbol"`
	Side       domain.Side `json:"side"`
	Qty        float64     `json:"qty"`
	StopLoss   float64     `json:"stopLoss"`
	TakeProfit float64     `json:"takeProfit"`
}

// OpenManual runs an operator entry through the same gates as the auto-trade cycle:
// quarantine, one position per symbol, the position cap, the daily-loss breaker,
// correlation and trade validation. It shares the cycle's in-flight flag, so it fails with
// ErrCycleRunning while a cycle or another manual entry is placing orders.
func (o *Orchestrator) OpenManual(ctx context.Context, order ManualOrder) (*domain.TradeRecord, string, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, "", ErrCycleRunning
	}
	defer o.running.Store(false)

	positions, err := o.exchange.GetPositions(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("positions: %w", err)
	}
	active := activePositions(positions)

	if err := o.checkEntry(order.Symbol, active, o.now()); err != nil {
		return nil, "", err
	}
	if err := o.checkDailyLoss(o.balance(ctx), active); err != nil {
		return nil, "", err
	}
	if corr := o.risk.CheckCorrelation(ctx, order.Symbol, order.Side, active); !corr.Safe {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrHighCorrelation, corr.Warnings)
	}

	analysis, err := o.analyzer.AnalyzeSymbol(ctx, order.Symbol)
	if err != nil {
		return nil, "", err
	}

	var levels *domain.TradeAdvice
	if order.StopLoss > 0 || order.TakeProfit > 0 {
		levels = &domain.TradeAdvice{Symbol: order.Symbol, Side: string(order.Side), StopLoss: order.StopLoss, TakeProfit: order.TakeProfit}
	}
	intent, err := o.buildIntent(analysis, order.Side, levels, order.Qty)
	if err != nil {
		return nil, "", err
	}
	intent.Source = "manual"

	trade, err := o.execute(ctx, intent)
	if err != nil {
		return nil, "", err
	}
	return trade, o.confirmation(trade, intent, nil), nil
}

// CloseResult lists what CloseAll closed and what failed.
type CloseResult struct {
	Closed []domain.LivePosition `json:"closed"`
	Errors []string              `json:"errors,omitempty"`
}

// CloseAll market-closes every active position and arms quarantine for each closed symbol.
func (o *Orchestrator) CloseAll(ctx context.Context) (*CloseResult, error) {
	positions, err := o.exchange.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}

	res := &CloseResult{}
	for _, p := range activePositions(positions) {
		if _, err := o.exchange.ClosePosition(ctx, p, 0); err != nil {
			o.recordAPIError(ctx, "close_position", p.Symbol, err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.Symbol, err))
			continue
		}
		o.quarantine.Record(ctx, p.Symbol, o.now())
		res.Closed = append(res.Closed, p)
		o.log.Info().Str("symbol", p.Symbol).Float64("size", p.Size).Msg("position closed by operator")
	}
	return res, nil
}

// PartialClose closes the configured share of a position once price has covered that share
// of the way to target. force skips the threshold.
func (o *Orchestrator) PartialClose(ctx context.Context, symbol string, force bool) (*domain.OrderResult, float64, error) {
	positions, err := o.exchange.GetPositions(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("positions: %w", err)
	}
	pos, ok := findActive(positions, symbol)
	if !ok {
		return nil, 0, fmt.Errorf("%s: %w", symbol, domain.ErrNotFound)
	}

	side := pos.ResolveSide()
	if !force && !o.risk.ShouldPartialClose(pos.EntryPrice, pos.MarkPrice, pos.TakeProfit, side) {
		return nil, 0, fmt.Errorf("%s: %w", symbol, ErrPartialCloseNotDue)
	}

	size := math.Abs(pos.Size)
	qty := o.lots.Normalize(symbol, size*o.risk.Params().PartialClosePct)
	if qty >= size {
		qty = 0
	}
	result, err := o.exchange.ClosePosition(ctx, pos, qty)
	if err != nil {
		o.recordAPIError(ctx, "partial_close", symbol, err)
		return nil, 0, fmt.Errorf("close %s: %w", symbol, err)
	}
	if qty == 0 {
		qty = size
	}
	o.log.Info().Str("symbol", symbol).Float64("qty", qty).Msg("partial close")
	return result, qty, nil
}

// UpdateProtection replaces stop and target on an open position. Zero keeps the current
// exchange value. Levels are checked against the mark price so a trailed stop is allowed.
func (o *Orchestrator) UpdateProtection(ctx context.Context, symbol string, stop, target float64) error {
	positions, err := o.exchange.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}
	pos, ok := findActive(positions, symbol)
	if !ok {
		return fmt.Errorf("%s: %w", symbol, domain.ErrNotFound)
	}
	if stop <= 0 {
		stop = pos.StopLoss
	}
	if target <= 0 {
		target = pos.TakeProfit
	}

	ref := pos.MarkPrice
	if ref <= 0 {
		ref = pos.EntryPrice
	}
	if err := ValidateExternalLevels(ref, stop, target, pos.ResolveSide()); err != nil {
		return fmt.Errorf("%s: %w", symbol, err)
	}
	if err := o.exchange.SetTradingStop(ctx, symbol, stop, target); err != nil {
		o.recordAPIError(ctx, "set_trading_stop", symbol, err)
		return fmt.Errorf("set trading stop %s: %w", symbol, err)
	}
	return nil
}
