package store

import (
	"context"
	"fmt"

	"github.com/bikeshrana/tradingd/pkg/types"
)

// AppendExecution inserts an immutable ExecutionRecord row. Executions
// are never updated or deleted — this table is the audit source of
// truth for every fill, per spec.md §3.
func (s *Store) AppendExecution(ctx context.Context, e *types.ExecutionRecord) error {
	query := `
		INSERT INTO executions (order_id, owner_id, account_id, symbol, side, qty, price,
			commission, submitted_at_ns, executed_at_ns, processing_latency_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.Exec(ctx, query,
		e.OrderID, e.OwnerID, e.AccountID, e.Symbol, e.Side, e.Qty, e.Price,
		e.Commission, e.SubmittedAtNs, e.ExecutedAtNs, e.ProcessingLatencyNs,
	)
	if err != nil {
		return fmt.Errorf("store: append execution for order %s: %w", e.OrderID, err)
	}
	return nil
}

// ExecutionsByOrder returns every execution for an order, oldest first.
func (s *Store) ExecutionsByOrder(ctx context.Context, orderID string) ([]*types.ExecutionRecord, error) {
	query := `
		SELECT order_id, owner_id, account_id, symbol, side, qty, price,
			commission, submitted_at_ns, executed_at_ns, processing_latency_ns
		FROM executions WHERE order_id = $1 ORDER BY executed_at_ns ASC
	`
	rows, err := s.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("store: executions by order %s: %w", orderID, err)
	}
	defer rows.Close()

	var records []*types.ExecutionRecord
	for rows.Next() {
		var e types.ExecutionRecord
		if err := rows.Scan(
			&e.OrderID, &e.OwnerID, &e.AccountID, &e.Symbol, &e.Side, &e.Qty, &e.Price,
			&e.Commission, &e.SubmittedAtNs, &e.ExecutedAtNs, &e.ProcessingLatencyNs,
		); err != nil {
			return nil, fmt.Errorf("store: scan execution: %w", err)
		}
		records = append(records, &e)
	}
	return records, rows.Err()
}
