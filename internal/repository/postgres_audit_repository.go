package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"perp-autotrader/internal/domain"
)

// PostgresAuditRepository stores trades, market snapshots, advisory responses and API
// errors. Every write is best effort from the caller's point of view.
type PostgresAuditRepository struct {
	pool    *pgxpool.Pool
	botName string
}

func NewPostgresAuditRepository(pool *pgxpool.Pool, botName string) *PostgresAuditRepository {
	if botName == "" {
		botName = "main"
	}
	return &PostgresAuditRepository{pool: pool, botName: botName}
}

func (r *PostgresAuditRepository) SaveTrade(ctx context.Context, trade *domain.TradeRecord) error {
	if trade == nil {
		return errors.New("nil trade")
	}
	botName := trade.BotName
	if botName == "" {
		botName = r.botName
	}
	status := trade.Status
	if status == "" {
		status = domain.TradeStatusOpen
	}

	_, err := r.pool.Exec(ctx, `
		insert into trades_history(
			id, bot_name, symbol, side, entry_time, entry_price, quantity,
			hour_utc, leverage, status, stop_loss, take_profit, order_id, protected, source
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		on conflict (id) do update set
			stop_loss = excluded.stop_loss,
			take_profit = excluded.take_profit,
			protected = excluded.protected
	`,
		trade.ID,
		botName,
		trade.Symbol,
		string(trade.Side),
		trade.EntryTime,
		trade.EntryPrice,
		trade.Quantity,
		trade.EntryTime.UTC().Hour(),
		trade.Leverage,
		status,
		positiveFloat(trade.StopLoss),
		positiveFloat(trade.TakeProfit),
		trade.OrderID,
		trade.Protected,
		trade.Source,
	)
	return err
}

// UpdateTradeExit closes the most recent open trade of symbol for this bot.
func (r *PostgresAuditRepository) UpdateTradeExit(ctx context.Context, symbol string, exitPrice, pnl float64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		update trades_history set
			exit_time = $3,
			exit_price = $4,
			pnl = $5,
			pnl_percent = case when entry_price > 0 and quantity > 0
				then $5 / (entry_price * quantity) * 100 else null end,
			status = 'closed'
		where id = (
			select id from trades_history
			where symbol = $1 and bot_name = $2 and status = 'open'
			order by entry_time desc
			limit 1
		)
	`, symbol, r.botName, at, exitPrice, pnl)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("open trade %s: %w", symbol, domain.ErrNotFound)
	}
	return nil
}

func (r *PostgresAuditRepository) ListTrades(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		select id, bot_name, symbol, side, quantity, entry_price, stop_loss, take_profit,
			leverage, order_id, protected, source, status, entry_time,
			exit_price, exit_time, pnl
		from trades_history
		where bot_name = $1
		order by entry_time desc
		limit $2
	`, r.botName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := make([]domain.TradeRecord, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

func (r *PostgresAuditRepository) SaveMarketSnapshot(ctx context.Context, analysis *domain.MarketAnalysis) error {
	if analysis == nil {
		return errors.New("nil analysis")
	}
	s := newSnapshotRow(analysis)
	_, err := r.pool.Exec(ctx, `
		insert into market_history(
			symbol, recorded_at, hour_utc, price, turnover_24h, volatility, funding_rate,
			open_interest, rsi, atr, macd, macd_signal, bb_upper, bb_middle, bb_lower,
			ema_50, ema_200, vwap, liquidity_score, opportunity_score
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		s.Symbol, s.At, s.At.UTC().Hour(), s.Price, s.Turnover, s.Volatility, s.FundingRate,
		s.OpenInterest, nullableFloat(s.RSI), nullableFloat(s.ATR), nullableFloat(s.MACD),
		nullableFloat(s.MACDSignal), nullableFloat(s.BBUpper), nullableFloat(s.BBMiddle),
		nullableFloat(s.BBLower), nullableFloat(s.EMA50), nullableFloat(s.EMA200),
		nullableFloat(s.VWAP), s.Liquidity, s.Score,
	)
	return err
}

// PriceHistory returns hourly closes since the given time, oldest first.
func (r *PostgresAuditRepository) PriceHistory(ctx context.Context, symbol string, since time.Time) ([]domain.PricePoint, error) {
	rows, err := r.pool.Query(ctx, `
		select date_trunc('hour', recorded_at) as bucket, avg(price)
		from market_history
		where symbol = $1 and recorded_at >= $2
		group by bucket
		order by bucket
	`, symbol, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.PricePoint, 0)
	for rows.Next() {
		p := domain.PricePoint{Symbol: symbol}
		if err := rows.Scan(&p.Time, &p.Price); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *PostgresAuditRepository) SaveAdvisoryResponse(ctx context.Context, kind, symbol string, payload []byte) error {
	_, err := r.pool.Exec(ctx, `
		insert into ai_responses(request_type, symbol, full_response) values ($1,$2,$3)
	`, kind, symbol, payload)
	return err
}

func (r *PostgresAuditRepository) SaveAPIError(ctx context.Context, operation, symbol, message string) error {
	_, err := r.pool.Exec(ctx, `
		insert into api_errors(api_method, symbol, error_message) values ($1,$2,$3)
	`, operation, symbol, message)
	return err
}

// Rotate applies the retention policy in one transaction.
func (r *PostgresAuditRepository) Rotate(ctx context.Context, policy domain.RetentionPolicy) (domain.RotationStats, error) {
	var stats domain.RotationStats
	now := time.Now()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `delete from market_history where recorded_at < $1`, now.Add(-policy.MarketHistory))
	if err != nil {
		return stats, fmt.Errorf("rotate market_history: %w", err)
	}
	stats.MarketHistory = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `delete from api_errors where recorded_at < $1`, now.Add(-policy.APIErrors))
	if err != nil {
		return stats, fmt.Errorf("rotate api_errors: %w", err)
	}
	stats.APIErrors = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `delete from trades_history where status = 'closed' and exit_time < $1`, now.Add(-policy.Trades))
	if err != nil {
		return stats, fmt.Errorf("rotate trades_history: %w", err)
	}
	stats.Trades = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		delete from ai_responses
		where id not in (select id from ai_responses order by recorded_at desc limit $1)
	`, policy.KeepAdvisory)
	if err != nil {
		return stats, fmt.Errorf("rotate ai_responses: %w", err)
	}
	stats.Advisory = tag.RowsAffected()

	return stats, tx.Commit(ctx)
}

// snapshotRow flattens an analysis into the market_history columns. Missing indicators
// stay nil and are stored as NULL.
type snapshotRow struct {
	Symbol       string
	At           time.Time
	Price        float64
	Turnover     float64
	Volatility   float64
	FundingRate  float64
	OpenInterest float64
	Liquidity    float64
	Score        float64
	RSI          *float64
	ATR          *float64
	MACD         *float64
	MACDSignal   *float64
	BBUpper      *float64
	BBMiddle     *float64
	BBLower      *float64
	EMA50        *float64
	EMA200       *float64
	VWAP         *float64
}

func newSnapshotRow(a *domain.MarketAnalysis) snapshotRow {
	s := snapshotRow{
		Symbol:       a.Symbol,
		At:           a.AnalyzedAt,
		Price:        a.Ticker.LastPrice,
		Turnover:     a.Ticker.Turnover24h,
		Volatility:   a.Volatility,
		FundingRate:  a.Ticker.FundingRate,
		OpenInterest: a.Ticker.OpenInterestValue,
		Liquidity:    a.Liquidity,
		Score:        a.Score,
	}
	if s.At.IsZero() {
		s.At = time.Now()
	}
	ind := a.Indicators
	if ind == nil {
		return s
	}
	s.RSI, s.ATR, s.EMA50, s.EMA200, s.VWAP = ind.RSI, ind.ATR, ind.EMA50, ind.EMA200, ind.VWAP
	if ind.MACD != nil {
		line, signal := ind.MACD.Line, ind.MACD.Signal
		s.MACD, s.MACDSignal = &line, &signal
	}
	if ind.Bollinger != nil {
		upper, middle, lower := ind.Bollinger.Upper, ind.Bollinger.Middle, ind.Bollinger.Lower
		s.BBUpper, s.BBMiddle, s.BBLower = &upper, &middle, &lower
	}
	return s
}

// Helpers

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (*domain.TradeRecord, error) {
	var t domain.TradeRecord
	var side string
	var stopLoss, takeProfit, exitPrice, pnl pgtype.Float8
	var exitTime pgtype.Timestamptz

	if err := s.Scan(
		&t.ID,
		&t.BotName,
		&t.Symbol,
		&side,
		&t.Quantity,
		&t.EntryPrice,
		&stopLoss,
		&takeProfit,
		&t.Leverage,
		&t.OrderID,
		&t.Protected,
		&t.Source,
		&t.Status,
		&t.EntryTime,
		&exitPrice,
		&exitTime,
		&pnl,
	); err != nil {
		return nil, err
	}

	t.Side = domain.Side(side)
	t.StopLoss = stopLoss.Float64
	t.TakeProfit = takeProfit.Float64
	if exitPrice.Valid {
		v := exitPrice.Float64
		t.ExitPrice = &v
	}
	if exitTime.Valid {
		v := exitTime.Time
		t.ExitTime = &v
	}
	if pnl.Valid {
		v := pnl.Float64
		t.ProfitLoss = &v
	}
	return &t, nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return pgtype.Float8{Valid: false}
	}
	return pgtype.Float8{Valid: true, Float64: *v}
}

func positiveFloat(v float64) any {
	if v <= 0 {
		return pgtype.Float8{Valid: false}
	}
	return pgtype.Float8{Valid: true, Float64: v}
}

// compile-time check
var _ domain.AuditStore = (*PostgresAuditRepository)(nil)
