package store

import (
	"context"
	"fmt"

	"github.com/bikeshrana/tradingd/pkg/types"
)

// SaveAccount upserts the account's balance fields — called from
// Settlement after every applied execution. Reserve and Release do not
// save; their availableBalance change reaches the store with the
// account's next save.
func (s *Store) SaveAccount(ctx context.Context, a *types.Account) error {
	query := `
		INSERT INTO accounts (id, owner_id, kind, balance, available_balance, equity, margin,
			free_margin, margin_level, leverage, currency, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			balance = EXCLUDED.balance,
			available_balance = EXCLUDED.available_balance,
			equity = EXCLUDED.equity,
			margin = EXCLUDED.margin,
			free_margin = EXCLUDED.free_margin,
			margin_level = EXCLUDED.margin_level,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.Exec(ctx, query,
		a.ID, a.OwnerID, a.Kind, a.Balance, a.AvailableBalance, a.Equity, a.Margin,
		a.FreeMargin, a.MarginLevel, a.Leverage, a.Currency, a.Active, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: save account %s: %w", a.ID, err)
	}
	return nil
}

// GetAccount fetches a single account, used at cold boot to seed
// settlement.Settlement's in-memory index.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*types.Account, error) {
	query := `
		SELECT id, owner_id, kind, balance, available_balance, equity, margin,
			free_margin, margin_level, leverage, currency, active, created_at, updated_at
		FROM accounts WHERE id = $1
	`
	var a types.Account
	err := s.db.QueryRow(ctx, query, accountID).Scan(
		&a.ID, &a.OwnerID, &a.Kind, &a.Balance, &a.AvailableBalance, &a.Equity, &a.Margin,
		&a.FreeMargin, &a.MarginLevel, &a.Leverage, &a.Currency, &a.Active, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get account %s: %w", accountID, err)
	}
	return &a, nil
}

// ListAccounts loads every account, used to seed the in-memory index at
// startup.
func (s *Store) ListAccounts(ctx context.Context) ([]*types.Account, error) {
	query := `
		SELECT id, owner_id, kind, balance, available_balance, equity, margin,
			free_margin, margin_level, leverage, currency, active, created_at, updated_at
		FROM accounts
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*types.Account
	for rows.Next() {
		var a types.Account
		if err := rows.Scan(
			&a.ID, &a.OwnerID, &a.Kind, &a.Balance, &a.AvailableBalance, &a.Equity, &a.Margin,
			&a.FreeMargin, &a.MarginLevel, &a.Leverage, &a.Currency, &a.Active, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}
