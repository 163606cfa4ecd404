// Package store hosts the persistence adapters: postgres for the audit
// trail and redis for the hot quote cache.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tgparkk/trading-bot-sub001/internal/broker"
)

// Postgres persists status transitions, trades, and daily performance.
type Postgres struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgres connects a pool and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string, log zerolog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{pool: pool, log: log}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS system_status (
			id BIGSERIAL PRIMARY KEY,
			status TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			client_id TEXT NOT NULL DEFAULT '',
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity BIGINT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			strategy TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			order_id TEXT NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS daily_performance (
			trade_date DATE PRIMARY KEY,
			trade_count INT NOT NULL,
			realized_pnl DOUBLE PRECISION NOT NULL,
			win_rate DOUBLE PRECISION NOT NULL,
			total_pnl DOUBLE PRECISION NOT NULL,
			portfolio_value DOUBLE PRECISION NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS backups (
			id BIGSERIAL PRIMARY KEY,
			trade_rows BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// UpdateSystemStatus appends a status transition row.
func (p *Postgres) UpdateSystemStatus(ctx context.Context, status, detail string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO system_status (status, detail) VALUES ($1, $2)`, status, detail)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// SaveTrade appends one executed order to the audit trail.
func (p *Postgres) SaveTrade(ctx context.Context, trade broker.TradeRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO trades (client_id, symbol, side, quantity, price, strategy, reason, order_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		trade.ClientID, trade.Symbol, trade.Side, trade.Quantity, trade.Price, trade.Strategy, trade.Reason, trade.OrderID)
	if err != nil {
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

// SavePerformance upserts the day's summary so a rerun of the close-of-market
// pass overwrites rather than duplicates.
func (p *Postgres) SavePerformance(ctx context.Context, summary broker.DailySummary) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO daily_performance (trade_date, trade_count, realized_pnl, win_rate, total_pnl, portfolio_value)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (trade_date) DO UPDATE SET
			trade_count = EXCLUDED.trade_count,
			realized_pnl = EXCLUDED.realized_pnl,
			win_rate = EXCLUDED.win_rate,
			total_pnl = EXCLUDED.total_pnl,
			portfolio_value = EXCLUDED.portfolio_value,
			recorded_at = now()`,
		summary.Date, summary.TradeCount, summary.RealizedPnL, summary.WinRate, summary.TotalPnL, summary.PortfolioValue)
	if err != nil {
		return fmt.Errorf("save performance: %w", err)
	}
	return nil
}

// Backup records an audit marker with the current trade row count.
func (p *Postgres) Backup(ctx context.Context) error {
	var rows int64
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM trades`).Scan(&rows); err != nil {
		return fmt.Errorf("backup count: %w", err)
	}
	if _, err := p.pool.Exec(ctx, `INSERT INTO backups (trade_rows) VALUES ($1)`, rows); err != nil {
		return fmt.Errorf("backup marker: %w", err)
	}
	p.log.Info().Int64("trade_rows", rows).Msg("backup recorded")
	return nil
}

// RecentTrades returns the latest trades, newest first.
func (p *Postgres) RecentTrades(ctx context.Context, limit int) ([]broker.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx,
		`SELECT client_id, symbol, side, quantity, price, strategy, reason, order_id
		 FROM trades ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent trades: %w", err)
	}
	defer rows.Close()

	var out []broker.TradeRecord
	for rows.Next() {
		var t broker.TradeRecord
		if err := rows.Scan(&t.ClientID, &t.Symbol, &t.Side, &t.Quantity, &t.Price, &t.Strategy, &t.Reason, &t.OrderID); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

var _ broker.Persistence = (*Postgres)(nil)

// NopPersistence satisfies the persistence port when no database is
// configured; every call succeeds without side effects.
type NopPersistence struct{}

func (NopPersistence) UpdateSystemStatus(ctx context.Context, status, detail string) error { return nil }
func (NopPersistence) SaveTrade(ctx context.Context, trade broker.TradeRecord) error       { return nil }
func (NopPersistence) SavePerformance(ctx context.Context, summary broker.DailySummary) error {
	return nil
}
func (NopPersistence) Backup(ctx context.Context) error { return nil }
