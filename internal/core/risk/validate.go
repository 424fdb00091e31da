// Package risk performs the submit-time validation spec.md §7 names:
// ownership, input shape, and buy-side reservation against the account's
// availableBalance. It intentionally does not carry the teacher's
// margin/drawdown/daily-loss engine — spec.md's scope is the matching
// core, and that machinery has no SPEC_FULL.md component to bind to.
package risk

import (
	"fmt"
	"time"

	"github.com/bikeshrana/tradingd/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReferencePricePolicy names a reservation reference-price policy. The
// Validator stores the configured value but does not consult it:
// referencePrice applies the same rule whatever the policy is.
type ReferencePricePolicy string

const (
	PolicyLimitPrice   ReferencePricePolicy = "limitPrice"
	PolicyLastTick     ReferencePricePolicy = "lastKnownTick"
	PolicyExplicit     ReferencePricePolicy = "explicit"
)

// AccountLookup resolves an account's owner and available balance; the
// event loop wires this to settlement.Settlement.Account.
type AccountLookup interface {
	Account(accountID string) (*types.Account, bool)
}

// Validator checks an incoming CreateOrder before it enters the Book.
type Validator struct {
	accounts AccountLookup
	policy   ReferencePricePolicy
	logger   zerolog.Logger
}

// New constructs a Validator against the given account lookup.
func New(accounts AccountLookup, policy ReferencePricePolicy, logger zerolog.Logger) *Validator {
	return &Validator{accounts: accounts, policy: policy, logger: logger}
}

// Validate checks ownership and input shape and, for buy orders,
// computes the reservation amount the caller must debit from
// availableBalance before the order is allowed to enter the Book. It
// does not mutate the account itself — that happens in
// settlement.Settlement.Reserve, keeping all balance mutation in one
// place per spec.md §3.
func (v *Validator) Validate(ownerID string, in types.CreateOrder, lastTick *types.Quote) (reservation decimal.Decimal, err error) {
	if in.Qty.IsZero() || in.Qty.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: qty must be positive", types.ErrValidation)
	}
	if in.Symbol == "" {
		return decimal.Zero, fmt.Errorf("%w: symbol required", types.ErrValidation)
	}
	switch in.Kind {
	case types.OrderLimit, types.OrderStopLimit:
		if in.LimitPrice == nil || in.LimitPrice.IsNegative() || in.LimitPrice.IsZero() {
			return decimal.Zero, fmt.Errorf("%w: limitPrice required for %s", types.ErrValidation, in.Kind)
		}
	}
	switch in.Kind {
	case types.OrderStop, types.OrderStopLimit:
		if in.StopPrice == nil || in.StopPrice.IsNegative() || in.StopPrice.IsZero() {
			return decimal.Zero, fmt.Errorf("%w: stopPrice required for %s", types.ErrValidation, in.Kind)
		}
	}

	account, ok := v.accounts.Account(in.AccountID)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown account", types.ErrValidation)
	}
	if account.OwnerID != ownerID {
		return decimal.Zero, fmt.Errorf("%w: account not owned by caller", types.ErrValidation)
	}
	if !account.Active {
		return decimal.Zero, fmt.Errorf("%w: account inactive", types.ErrValidation)
	}

	if in.Side != types.SideBuy {
		return decimal.Zero, nil
	}

	refPrice, err := v.referencePrice(in, lastTick)
	if err != nil {
		return decimal.Zero, err
	}
	return in.Qty.Mul(refPrice), nil
}

// referencePrice implements spec.md §9's resolved policy: limitPrice for
// limit/stopLimit orders, lastKnownTick.ask for market/stop orders,
// reject if neither is resolvable. Only buy orders reach it, since sell
// orders reserve nothing.
func (v *Validator) referencePrice(in types.CreateOrder, lastTick *types.Quote) (decimal.Decimal, error) {
	switch in.Kind {
	case types.OrderLimit, types.OrderStopLimit:
		return *in.LimitPrice, nil
	default: // market, stop
		if lastTick == nil {
			return decimal.Zero, fmt.Errorf("%w: no reference price available for %s order", types.ErrValidation, in.Kind)
		}
		return lastTick.Ask, nil
	}
}

// NewOrder builds the Order record inserted into the Book once
// validation and reservation both succeed.
func NewOrder(id, ownerID string, in types.CreateOrder, reservation decimal.Decimal) *types.Order {
	now := time.Now()
	return &types.Order{
		ID:          id,
		OwnerID:     ownerID,
		AccountID:   in.AccountID,
		Symbol:      in.Symbol,
		Kind:        in.Kind,
		Side:        in.Side,
		Qty:         in.Qty,
		LimitPrice:  in.LimitPrice,
		StopPrice:   in.StopPrice,
		Status:      types.OrderPending,
		FilledQty:   decimal.Zero,
		Commission:  decimal.Zero,
		Reservation: reservation,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
