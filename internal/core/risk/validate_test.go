package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/bikeshrana/tradingd/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type fakeAccounts struct {
	accounts map[string]*types.Account
}

func (f fakeAccounts) Account(id string) (*types.Account, bool) {
	a, ok := f.accounts[id]
	return a, ok
}

func newValidator(accounts map[string]*types.Account, policy ReferencePricePolicy) *Validator {
	return New(fakeAccounts{accounts: accounts}, policy, zerolog.Nop())
}

func testAccount() *types.Account {
	return &types.Account{
		ID:               "acc1",
		OwnerID:          "owner1",
		Active:           true,
		Balance:          decimal.NewFromInt(10000),
		AvailableBalance: decimal.NewFromInt(10000),
	}
}

func TestValidateRejectsZeroOrNegativeQty(t *testing.T) {
	t.Parallel()
	v := newValidator(map[string]*types.Account{"acc1": testAccount()}, PolicyLastTick)

	in := types.CreateOrder{AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderMarket, Side: types.SideBuy, Qty: decimal.Zero}
	_, err := v.Validate("owner1", in, nil)
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestValidateRejectsUnknownAccount(t *testing.T) {
	t.Parallel()
	v := newValidator(map[string]*types.Account{}, PolicyLastTick)

	in := types.CreateOrder{AccountID: "nope", Symbol: "EURUSD", Kind: types.OrderMarket, Side: types.SideBuy, Qty: decimal.NewFromInt(1)}
	_, err := v.Validate("owner1", in, nil)
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestValidateRejectsNonOwnerSubmission(t *testing.T) {
	t.Parallel()
	v := newValidator(map[string]*types.Account{"acc1": testAccount()}, PolicyLastTick)

	in := types.CreateOrder{AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderMarket, Side: types.SideBuy, Qty: decimal.NewFromInt(1)}
	lastTick := &types.Quote{Ask: decimal.NewFromFloat(1.10)}
	_, err := v.Validate("someone-else", in, lastTick)
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestValidateRequiresLimitPriceForLimitOrders(t *testing.T) {
	t.Parallel()
	v := newValidator(map[string]*types.Account{"acc1": testAccount()}, PolicyLastTick)

	in := types.CreateOrder{AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderLimit, Side: types.SideBuy, Qty: decimal.NewFromInt(1)}
	_, err := v.Validate("owner1", in, nil)
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for missing limitPrice", err)
	}
}

func TestValidateRequiresStopPriceForStopOrders(t *testing.T) {
	t.Parallel()
	v := newValidator(map[string]*types.Account{"acc1": testAccount()}, PolicyLastTick)

	in := types.CreateOrder{AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderStop, Side: types.SideBuy, Qty: decimal.NewFromInt(1)}
	_, err := v.Validate("owner1", in, nil)
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for missing stopPrice", err)
	}
}

func TestValidateSellOrderSkipsReservation(t *testing.T) {
	t.Parallel()
	v := newValidator(map[string]*types.Account{"acc1": testAccount()}, PolicyLastTick)

	in := types.CreateOrder{AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderMarket, Side: types.SideSell, Qty: decimal.NewFromInt(100)}
	reservation, err := v.Validate("owner1", in, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reservation.IsZero() {
		t.Errorf("sell order reservation = %s, want 0", reservation)
	}
}

func TestValidateBuyLimitReservesAgainstLimitPrice(t *testing.T) {
	t.Parallel()
	v := newValidator(map[string]*types.Account{"acc1": testAccount()}, PolicyLastTick)

	limit := decimal.NewFromFloat(1.10)
	in := types.CreateOrder{AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderLimit, Side: types.SideBuy, Qty: decimal.NewFromInt(100), LimitPrice: &limit}
	reservation, err := v.Validate("owner1", in, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := decimal.NewFromInt(100).Mul(limit)
	if !reservation.Equal(want) {
		t.Errorf("reservation = %s, want %s", reservation, want)
	}
}

func TestValidateBuyMarketRequiresLastTickForReservation(t *testing.T) {
	t.Parallel()
	v := newValidator(map[string]*types.Account{"acc1": testAccount()}, PolicyLastTick)

	in := types.CreateOrder{AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderMarket, Side: types.SideBuy, Qty: decimal.NewFromInt(100)}
	_, err := v.Validate("owner1", in, nil)
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation when no lastTick is available", err)
	}
}

func TestValidateBuyMarketReservesAgainstLastTickAsk(t *testing.T) {
	t.Parallel()
	v := newValidator(map[string]*types.Account{"acc1": testAccount()}, PolicyLastTick)

	in := types.CreateOrder{AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderMarket, Side: types.SideBuy, Qty: decimal.NewFromInt(100)}
	lastTick := &types.Quote{Ask: decimal.NewFromFloat(1.12), Timestamp: time.Now()}
	reservation, err := v.Validate("owner1", in, lastTick)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := decimal.NewFromInt(100).Mul(lastTick.Ask)
	if !reservation.Equal(want) {
		t.Errorf("reservation = %s, want %s", reservation, want)
	}
}

func TestNewOrderStartsPendingWithZeroFills(t *testing.T) {
	t.Parallel()
	limit := decimal.NewFromFloat(1.10)
	in := types.CreateOrder{AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderLimit, Side: types.SideBuy, Qty: decimal.NewFromInt(10), LimitPrice: &limit}

	o := NewOrder("order-1", "owner1", in, decimal.NewFromInt(11))
	if o.Status != types.OrderPending {
		t.Errorf("status = %s, want pending", o.Status)
	}
	if !o.FilledQty.IsZero() {
		t.Errorf("filledQty = %s, want 0", o.FilledQty)
	}
	if !o.Reservation.Equal(decimal.NewFromInt(11)) {
		t.Errorf("reservation = %s, want 11", o.Reservation)
	}
}
