// Package store implements the durable persistence spec.md §6 names —
// orders, positions, accounts and an append-only executions ledger —
// against Postgres/TimescaleDB via pgx, grounded on the teacher's
// internal/data repositories and extended with the accounts and
// executions tables the teacher never persisted.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Store is the concrete settlement.Store and query-side persistence
// layer backing the core.
type Store struct {
	db     *pgxpool.Pool
	logger zerolog.Logger
}

// New wraps an existing pool.
func New(db *pgxpool.Pool, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Ping verifies the pool can still reach Postgres.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// InitSchema creates the four tables spec.md §6 names.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			id VARCHAR(50) PRIMARY KEY,
			owner_id VARCHAR(50) NOT NULL,
			kind VARCHAR(10) NOT NULL CHECK (kind IN ('demo', 'live', 'paper')),
			balance NUMERIC(30, 10) NOT NULL,
			available_balance NUMERIC(30, 10) NOT NULL,
			equity NUMERIC(30, 10) NOT NULL DEFAULT 0,
			margin NUMERIC(30, 10) NOT NULL DEFAULT 0,
			free_margin NUMERIC(30, 10) NOT NULL DEFAULT 0,
			margin_level NUMERIC(30, 10) NOT NULL DEFAULT 0,
			leverage NUMERIC(30, 10) NOT NULL DEFAULT 1,
			currency VARCHAR(10) NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(50) PRIMARY KEY,
			owner_id VARCHAR(50) NOT NULL,
			account_id VARCHAR(50) NOT NULL REFERENCES accounts(id),
			symbol VARCHAR(20) NOT NULL,
			kind VARCHAR(20) NOT NULL CHECK (kind IN ('market', 'limit', 'stop', 'stopLimit')),
			side VARCHAR(10) NOT NULL CHECK (side IN ('buy', 'sell')),
			qty NUMERIC(30, 10) NOT NULL,
			limit_price NUMERIC(30, 10),
			stop_price NUMERIC(30, 10),
			status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'open', 'partiallyFilled', 'filled', 'cancelled', 'rejected')),
			filled_qty NUMERIC(30, 10) NOT NULL DEFAULT 0,
			avg_price NUMERIC(30, 10),
			commission NUMERIC(30, 10) NOT NULL DEFAULT 0,
			reservation NUMERIC(30, 10) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			executed_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS positions (
			id VARCHAR(50) PRIMARY KEY,
			account_id VARCHAR(50) NOT NULL REFERENCES accounts(id),
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL CHECK (side IN ('buy', 'sell')),
			qty NUMERIC(30, 10) NOT NULL,
			avg_price NUMERIC(30, 10) NOT NULL,
			current_price NUMERIC(30, 10) NOT NULL DEFAULT 0,
			unrealized_pnl NUMERIC(30, 10) NOT NULL DEFAULT 0,
			realized_pnl NUMERIC(30, 10) NOT NULL DEFAULT 0,
			commission NUMERIC(30, 10) NOT NULL DEFAULT 0,
			opened_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (account_id, symbol)
		);

		CREATE TABLE IF NOT EXISTS executions (
			order_id VARCHAR(50) NOT NULL REFERENCES orders(id),
			owner_id VARCHAR(50) NOT NULL,
			account_id VARCHAR(50) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			qty NUMERIC(30, 10) NOT NULL,
			price NUMERIC(30, 10) NOT NULL,
			commission NUMERIC(30, 10) NOT NULL,
			submitted_at_ns BIGINT NOT NULL,
			executed_at_ns BIGINT NOT NULL,
			processing_latency_ns BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account_id);
		CREATE INDEX IF NOT EXISTS idx_orders_symbol_status ON orders(symbol, status);
		CREATE INDEX IF NOT EXISTS idx_executions_order ON executions(order_id);
		CREATE INDEX IF NOT EXISTS idx_executions_account ON executions(account_id, executed_at_ns DESC);
	`

	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}

	s.logger.Info().Msg("store schema initialized")
	return nil
}
