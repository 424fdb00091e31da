package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bikeshrana/tradingd/internal/circuitbreaker"
	"github.com/bikeshrana/tradingd/internal/core/events"
	"github.com/bikeshrana/tradingd/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type fakeStore struct {
	mu          sync.Mutex
	saveOrderFn func(*types.Order) error
	orders      []*types.Order
	positions   []*types.Position
	executions  []*types.ExecutionRecord
	deleted     []string
}

func (f *fakeStore) SaveOrder(ctx context.Context, o *types.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveOrderFn != nil {
		if err := f.saveOrderFn(o); err != nil {
			return err
		}
	}
	cp := *o
	f.orders = append(f.orders, &cp)
	return nil
}

func (f *fakeStore) SaveAccount(ctx context.Context, a *types.Account) error { return nil }

func (f *fakeStore) SavePosition(ctx context.Context, p *types.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.positions = append(f.positions, &cp)
	return nil
}

func (f *fakeStore) DeletePosition(ctx context.Context, accountID, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, accountID+"|"+symbol)
	return nil
}

func (f *fakeStore) AppendExecution(ctx context.Context, e *types.ExecutionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions = append(f.executions, e)
	return nil
}

func newTestSettlement(store Store) *Settlement {
	cfg := DefaultConfig()
	cfg.RetryAttempts = 2
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryDeadline = time.Second
	bus := events.NewEventBus(16, zerolog.Nop())
	breakers := circuitbreaker.NewManager(zerolog.Nop())
	return New(cfg, store, bus, breakers, zerolog.Nop())
}

func seededAccount(id string, balance string) *types.Account {
	b := decimal.RequireFromString(balance)
	return &types.Account{ID: id, OwnerID: "owner1", Balance: b, AvailableBalance: b, Active: true}
}

func buyOrder(id, accountID, symbol string, qty, reservation string) *types.Order {
	return &types.Order{
		ID: id, OwnerID: "owner1", AccountID: accountID, Symbol: symbol,
		Kind: types.OrderMarket, Side: types.SideBuy,
		Qty:         decimal.RequireFromString(qty),
		FilledQty:   decimal.Zero,
		Reservation: decimal.RequireFromString(reservation),
		Status:      types.OrderPending,
	}
}

func TestApplyIdempotentOnTerminalOrder(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	s := newTestSettlement(store)
	s.LoadAccount(seededAccount("acc1", "10000"))

	o := buyOrder("o1", "acc1", "EURUSD", "10", "11.20")
	o.Status = types.OrderFilled

	rec, err := s.Apply(context.Background(), Intent{Order: o, ExecPrice: decimal.NewFromFloat(1.12), ExecQty: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Errorf("rec = %+v, want nil for already-terminal order", rec)
	}
}

func TestApplyRejectsUnknownAccount(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	s := newTestSettlement(store)

	o := buyOrder("o1", "unknown-acc", "EURUSD", "10", "11.20")
	_, err := s.Apply(context.Background(), Intent{Order: o, ExecPrice: decimal.NewFromFloat(1.12), ExecQty: decimal.NewFromInt(10)})
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if o.Status != types.OrderRejected {
		t.Errorf("status = %s, want rejected", o.Status)
	}
}

func TestApplyBuyFullFillReleasesReservationAndDeductsCost(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	s := newTestSettlement(store)
	s.LoadAccount(seededAccount("acc1", "10000"))

	o := buyOrder("o1", "acc1", "EURUSD", "10", "11.20") // reserved at limit 1.12
	if err := s.Reserve("acc1", decimal.RequireFromString("11.20")); err != nil {
		t.Fatalf("unexpected reserve error: %v", err)
	}

	rec, err := s.Apply(context.Background(), Intent{Order: o, ExecPrice: decimal.NewFromFloat(1.12), ExecQty: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected an ExecutionRecord")
	}

	acc, _ := s.Account("acc1")
	// tradeValue = 11.20, commission = 11.20*0.001 = 0.0112, cost = 11.2112
	wantBalance := decimal.NewFromInt(10000).Sub(decimal.RequireFromString("11.2112"))
	if !acc.Balance.Equal(wantBalance) {
		t.Errorf("balance = %s, want %s", acc.Balance, wantBalance)
	}
	// availableBalance started at 10000 - 11.20 (reserved) = 9988.80;
	// released = reservation(11.20)*10/10 = 11.20; then -cost(11.2112)
	wantAvailable := decimal.NewFromFloat(9988.80).Add(decimal.RequireFromString("11.20")).Sub(decimal.RequireFromString("11.2112"))
	if !acc.AvailableBalance.Equal(wantAvailable) {
		t.Errorf("availableBalance = %s, want %s", acc.AvailableBalance, wantAvailable)
	}

	if o.Status != types.OrderFilled {
		t.Errorf("status = %s, want filled", o.Status)
	}
	if !o.FilledQty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("filledQty = %s, want 10", o.FilledQty)
	}
}

func TestApplyBuyPartialFillTransitionsToPartiallyFilled(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	s := newTestSettlement(store)
	s.LoadAccount(seededAccount("acc1", "10000"))

	o := buyOrder("o1", "acc1", "EURUSD", "10", "11.20")

	_, err := s.Apply(context.Background(), Intent{Order: o, ExecPrice: decimal.NewFromFloat(1.12), ExecQty: decimal.NewFromInt(4)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != types.OrderPartiallyFilled {
		t.Errorf("status = %s, want partiallyFilled", o.Status)
	}
	if !o.FilledQty.Equal(decimal.NewFromInt(4)) {
		t.Errorf("filledQty = %s, want 4", o.FilledQty)
	}
}

func TestApplyOpensNewPositionOnFirstFill(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	s := newTestSettlement(store)
	s.LoadAccount(seededAccount("acc1", "10000"))

	o := buyOrder("o1", "acc1", "EURUSD", "10", "11.20")
	_, err := s.Apply(context.Background(), Intent{Order: o, ExecPrice: decimal.NewFromFloat(1.12), ExecQty: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos, ok := s.Position("acc1", "EURUSD")
	if !ok {
		t.Fatal("expected a position to be opened")
	}
	if !pos.Qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("position qty = %s, want 10", pos.Qty)
	}
	if pos.Side != types.SideBuy {
		t.Errorf("position side = %s, want buy", pos.Side)
	}
}

func TestApplyOppositeSideFullCloseRemovesPosition(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	s := newTestSettlement(store)
	s.LoadAccount(seededAccount("acc1", "10000"))

	buy := buyOrder("o1", "acc1", "EURUSD", "10", "11.20")
	if _, err := s.Apply(context.Background(), Intent{Order: buy, ExecPrice: decimal.NewFromFloat(1.12), ExecQty: decimal.NewFromInt(10)}); err != nil {
		t.Fatalf("unexpected error on open: %v", err)
	}

	sell := &types.Order{
		ID: "o2", OwnerID: "owner1", AccountID: "acc1", Symbol: "EURUSD",
		Kind: types.OrderMarket, Side: types.SideSell, Qty: decimal.NewFromInt(10),
		Status: types.OrderPending,
	}
	if _, err := s.Apply(context.Background(), Intent{Order: sell, ExecPrice: decimal.NewFromFloat(1.15), ExecQty: decimal.NewFromInt(10)}); err != nil {
		t.Fatalf("unexpected error on close: %v", err)
	}

	if _, ok := s.Position("acc1", "EURUSD"); ok {
		t.Error("position should be removed after an equal-and-opposite fill")
	}
}

func TestApplyRollsBackOnPersistFailure(t *testing.T) {
	t.Parallel()
	callCount := 0
	store := &fakeStore{
		saveOrderFn: func(o *types.Order) error {
			callCount++
			return errors.New("db unavailable")
		},
	}
	s := newTestSettlement(store)
	s.LoadAccount(seededAccount("acc1", "10000"))

	o := buyOrder("o1", "acc1", "EURUSD", "10", "11.20")
	_, err := s.Apply(context.Background(), Intent{Order: o, ExecPrice: decimal.NewFromFloat(1.12), ExecQty: decimal.NewFromInt(10)})
	if err == nil {
		t.Fatal("expected persist error to surface")
	}

	acc, _ := s.Account("acc1")
	if !acc.Balance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("balance = %s, want rolled back to 10000", acc.Balance)
	}
	if o.Status != types.OrderPending {
		t.Errorf("order status = %s, want rolled back to pending", o.Status)
	}
	if _, ok := s.Position("acc1", "EURUSD"); ok {
		t.Error("position should be rolled back (removed)")
	}
}

func TestReserveRejectsInsufficientBalance(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	s := newTestSettlement(store)
	s.LoadAccount(seededAccount("acc1", "100"))

	err := s.Reserve("acc1", decimal.NewFromInt(200))
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestReserveAndReleaseRoundTrip(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	s := newTestSettlement(store)
	s.LoadAccount(seededAccount("acc1", "1000"))

	if err := s.Reserve("acc1", decimal.NewFromInt(200)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	acc, _ := s.Account("acc1")
	if !acc.AvailableBalance.Equal(decimal.NewFromInt(800)) {
		t.Errorf("availableBalance after reserve = %s, want 800", acc.AvailableBalance)
	}

	s.Release("acc1", decimal.NewFromInt(200))
	if !acc.AvailableBalance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("availableBalance after release = %s, want 1000", acc.AvailableBalance)
	}
}
