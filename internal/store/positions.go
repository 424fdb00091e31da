package store

import (
	"context"
	"fmt"

	"github.com/bikeshrana/tradingd/pkg/types"
)

// SavePosition upserts a position, unique on (account_id, symbol) per
// spec.md §3.
func (s *Store) SavePosition(ctx context.Context, p *types.Position) error {
	query := `
		INSERT INTO positions (id, account_id, symbol, side, qty, avg_price, current_price,
			unrealized_pnl, realized_pnl, commission, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (account_id, symbol) DO UPDATE SET
			side = EXCLUDED.side,
			qty = EXCLUDED.qty,
			avg_price = EXCLUDED.avg_price,
			current_price = EXCLUDED.current_price,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			realized_pnl = EXCLUDED.realized_pnl,
			commission = EXCLUDED.commission,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.Exec(ctx, query,
		p.ID, p.AccountID, p.Symbol, p.Side, p.Qty, p.AvgPrice, p.CurrentPrice,
		p.UnrealizedPnL, p.RealizedPnL, p.Commission, p.OpenedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: save position %s/%s: %w", p.AccountID, p.Symbol, err)
	}
	return nil
}

// DeletePosition removes a position once qty reaches zero.
func (s *Store) DeletePosition(ctx context.Context, accountID, symbol string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM positions WHERE account_id = $1 AND symbol = $2`, accountID, symbol)
	if err != nil {
		return fmt.Errorf("store: delete position %s/%s: %w", accountID, symbol, err)
	}
	return nil
}

// ListPositions loads every position, used to seed the in-memory index
// at startup.
func (s *Store) ListPositions(ctx context.Context) ([]*types.Position, error) {
	query := `
		SELECT id, account_id, symbol, side, qty, avg_price, current_price,
			unrealized_pnl, realized_pnl, commission, opened_at, updated_at
		FROM positions
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list positions: %w", err)
	}
	defer rows.Close()

	var positions []*types.Position
	for rows.Next() {
		var p types.Position
		if err := rows.Scan(
			&p.ID, &p.AccountID, &p.Symbol, &p.Side, &p.Qty, &p.AvgPrice, &p.CurrentPrice,
			&p.UnrealizedPnL, &p.RealizedPnL, &p.Commission, &p.OpenedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan position: %w", err)
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

// PositionsByAccount lists the positions of one account with its own
// account_id query, used by the portfolio query handler.
func (s *Store) PositionsByAccount(ctx context.Context, accountID string) ([]*types.Position, error) {
	query := `
		SELECT id, account_id, symbol, side, qty, avg_price, current_price,
			unrealized_pnl, realized_pnl, commission, opened_at, updated_at
		FROM positions WHERE account_id = $1
	`
	rows, err := s.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("store: positions by account %s: %w", accountID, err)
	}
	defer rows.Close()

	var positions []*types.Position
	for rows.Next() {
		var p types.Position
		if err := rows.Scan(
			&p.ID, &p.AccountID, &p.Symbol, &p.Side, &p.Qty, &p.AvgPrice, &p.CurrentPrice,
			&p.UnrealizedPnL, &p.RealizedPnL, &p.Commission, &p.OpenedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan position: %w", err)
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}
