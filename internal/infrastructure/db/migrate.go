package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the audit and quarantine tables. Statements are idempotent, so it runs
// on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`create table if not exists market_history (
			id bigserial primary key,
			symbol text not null,
			recorded_at timestamptz not null,
			hour_utc int not null,
			price double precision not null,
			turnover_24h double precision null,
			volatility double precision null,
			funding_rate double precision null,
			open_interest double precision null,
			rsi double precision null,
			atr double precision null,
			macd double precision null,
			macd_signal double precision null,
			bb_upper double precision null,
			bb_middle double precision null,
			bb_lower double precision null,
			ema_50 double precision null,
			ema_200 double precision null,
			vwap double precision null,
			liquidity_score double precision null,
			opportunity_score double precision null
		);`,
		`create index if not exists market_history_symbol_time_idx on market_history(symbol, recorded_at desc);`,
		`create index if not exists market_history_time_idx on market_history(recorded_at);`,
		`create table if not exists trades_history (
			id text primary key,
			bot_name text not null default 'main',
			symbol text not null,
			side text not null,
			entry_time timestamptz not null,
			exit_time timestamptz null,
			entry_price double precision not null,
			exit_price double precision null,
			quantity double precision not null,
			pnl double precision null,
			pnl_percent double precision null,
			hour_utc int not null,
			leverage int not null default 1,
			status text not null default 'open',
			stop_loss double precision null,
			take_profit double precision null,
			order_id text not null default '',
			protected boolean not null default false,
			source text not null default 'engine'
		);`,
		`create index if not exists trades_history_symbol_status_idx on trades_history(symbol, status);`,
		`create index if not exists trades_history_entry_time_idx on trades_history(entry_time desc);`,
		`create table if not exists ai_responses (
			id bigserial primary key,
			recorded_at timestamptz not null default now(),
			request_type text not null,
			symbol text not null default '',
			full_response jsonb not null
		);`,
		`create index if not exists ai_responses_time_idx on ai_responses(recorded_at desc);`,
		`create table if not exists api_errors (
			id bigserial primary key,
			recorded_at timestamptz not null default now(),
			api_method text not null,
			symbol text not null default '',
			error_message text not null
		);`,
		`create index if not exists api_errors_time_idx on api_errors(recorded_at);`,
		`create table if not exists quarantine (
			symbol text primary key,
			last_close timestamptz not null
		);`,
	}

	for i, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}
	return nil
}
