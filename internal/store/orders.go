package store

import (
	"context"
	"fmt"

	"github.com/bikeshrana/tradingd/pkg/types"
)

// SaveOrder upserts an order's current state — called from Settlement on
// every status transition, so the durable row always reflects the Book.
func (s *Store) SaveOrder(ctx context.Context, o *types.Order) error {
	query := `
		INSERT INTO orders (id, owner_id, account_id, symbol, kind, side, qty, limit_price,
			stop_price, status, filled_qty, avg_price, commission, reservation, created_at, updated_at, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			filled_qty = EXCLUDED.filled_qty,
			avg_price = EXCLUDED.avg_price,
			commission = EXCLUDED.commission,
			updated_at = EXCLUDED.updated_at,
			executed_at = EXCLUDED.executed_at
	`
	_, err := s.db.Exec(ctx, query,
		o.ID, o.OwnerID, o.AccountID, o.Symbol, o.Kind, o.Side, o.Qty, o.LimitPrice,
		o.StopPrice, o.Status, o.FilledQty, o.AvgPrice, o.Commission, o.Reservation,
		o.CreatedAt, o.UpdatedAt, o.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("store: save order %s: %w", o.ID, err)
	}
	return nil
}

// GetOrder fetches a single order by id, for the read-only query handler.
func (s *Store) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	query := `
		SELECT id, owner_id, account_id, symbol, kind, side, qty, limit_price, stop_price,
			status, filled_qty, avg_price, commission, reservation, created_at, updated_at, executed_at
		FROM orders WHERE id = $1
	`
	var o types.Order
	err := s.db.QueryRow(ctx, query, orderID).Scan(
		&o.ID, &o.OwnerID, &o.AccountID, &o.Symbol, &o.Kind, &o.Side, &o.Qty, &o.LimitPrice, &o.StopPrice,
		&o.Status, &o.FilledQty, &o.AvgPrice, &o.Commission, &o.Reservation, &o.CreatedAt, &o.UpdatedAt, &o.ExecutedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get order %s: %w", orderID, err)
	}
	return &o, nil
}

// ListOpenOrders loads every non-terminal order, used to repopulate the
// Order Book on cold boot.
func (s *Store) ListOpenOrders(ctx context.Context) ([]*types.Order, error) {
	query := `
		SELECT id, owner_id, account_id, symbol, kind, side, qty, limit_price, stop_price,
			status, filled_qty, avg_price, commission, reservation, created_at, updated_at, executed_at
		FROM orders WHERE status NOT IN ('filled', 'cancelled', 'rejected')
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list open orders: %w", err)
	}
	defer rows.Close()

	var orders []*types.Order
	for rows.Next() {
		var o types.Order
		if err := rows.Scan(
			&o.ID, &o.OwnerID, &o.AccountID, &o.Symbol, &o.Kind, &o.Side, &o.Qty, &o.LimitPrice, &o.StopPrice,
			&o.Status, &o.FilledQty, &o.AvgPrice, &o.Commission, &o.Reservation, &o.CreatedAt, &o.UpdatedAt, &o.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan open order: %w", err)
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}
