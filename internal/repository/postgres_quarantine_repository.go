package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"perp-autotrader/internal/domain"
)

// PostgresQuarantineRepository keeps one row per symbol with its last close time.
type PostgresQuarantineRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresQuarantineRepository(pool *pgxpool.Pool) *PostgresQuarantineRepository {
	return &PostgresQuarantineRepository{pool: pool}
}

func (r *PostgresQuarantineRepository) LoadAll(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.pool.Query(ctx, `select symbol, last_close from quarantine`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var symbol string
		var at time.Time
		if err := rows.Scan(&symbol, &at); err != nil {
			return nil, err
		}
		out[symbol] = at
	}
	return out, rows.Err()
}

func (r *PostgresQuarantineRepository) Save(ctx context.Context, symbol string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		insert into quarantine(symbol, last_close) values ($1,$2)
		on conflict (symbol) do update set last_close = excluded.last_close
	`, symbol, at)
	return err
}

var _ domain.QuarantineStore = (*PostgresQuarantineRepository)(nil)
