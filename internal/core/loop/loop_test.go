package loop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bikeshrana/tradingd/internal/circuitbreaker"
	"github.com/bikeshrana/tradingd/internal/core/book"
	"github.com/bikeshrana/tradingd/internal/core/events"
	"github.com/bikeshrana/tradingd/internal/core/risk"
	"github.com/bikeshrana/tradingd/internal/core/settlement"
	"github.com/bikeshrana/tradingd/internal/tickcache"
	"github.com/bikeshrana/tradingd/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type stubStore struct{}

func (stubStore) SaveOrder(ctx context.Context, o *types.Order) error             { return nil }
func (stubStore) SaveAccount(ctx context.Context, a *types.Account) error         { return nil }
func (stubStore) SavePosition(ctx context.Context, p *types.Position) error       { return nil }
func (stubStore) DeletePosition(ctx context.Context, accountID, symbol string) error { return nil }
func (stubStore) AppendExecution(ctx context.Context, e *types.ExecutionRecord) error { return nil }

func newTestLoop(t *testing.T, cfg Config) (*Loop, *settlement.Settlement) {
	t.Helper()
	b := book.New()
	bus := events.NewEventBus(16, zerolog.Nop())
	breakers := circuitbreaker.NewManager(zerolog.Nop())
	settleCfg := settlement.DefaultConfig()
	settle := settlement.New(settleCfg, stubStore{}, bus, breakers, zerolog.Nop())
	validator := risk.New(settle, risk.PolicyLastTick, zerolog.Nop())
	cache := tickcache.NewMemory()
	l := New(cfg, b, settle, validator, cache, zerolog.Nop(), nil)
	return l, settle
}

func seedAccount(s *settlement.Settlement, id, balance string) {
	b := decimal.RequireFromString(balance)
	s.LoadAccount(&types.Account{ID: id, OwnerID: "owner1", Balance: b, AvailableBalance: b, Active: true})
}

func runLoop(t *testing.T, l *Loop) (context.CancelFunc, chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()
	return cancel, done
}

func TestSubmitOrderHappyPath(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	l, settle := newTestLoop(t, cfg)
	seedAccount(settle, "acc1", "10000")
	cancel, done := runLoop(t, l)
	defer func() { cancel(); <-done }()

	limit := decimal.NewFromFloat(1.10)
	ctx, timeoutCancel := context.WithTimeout(context.Background(), time.Second)
	defer timeoutCancel()

	o, err := l.SubmitOrder(ctx, "owner1", types.CreateOrder{
		AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderLimit, Side: types.SideBuy,
		Qty: decimal.NewFromInt(10), LimitPrice: &limit,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Status != types.OrderPending {
		t.Errorf("status = %s, want pending", o.Status)
	}
}

func TestSubmitOrderRejectsUnknownAccount(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	l, _ := newTestLoop(t, cfg)
	cancel, done := runLoop(t, l)
	defer func() { cancel(); <-done }()

	ctx, timeoutCancel := context.WithTimeout(context.Background(), time.Second)
	defer timeoutCancel()

	_, err := l.SubmitOrder(ctx, "owner1", types.CreateOrder{
		AccountID: "nope", Symbol: "EURUSD", Kind: types.OrderMarket, Side: types.SideSell, Qty: decimal.NewFromInt(1),
	})
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestCancelOrderHappyPath(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	l, settle := newTestLoop(t, cfg)
	seedAccount(settle, "acc1", "10000")
	cancel, done := runLoop(t, l)
	defer func() { cancel(); <-done }()

	ctx, timeoutCancel := context.WithTimeout(context.Background(), time.Second)
	defer timeoutCancel()

	o, err := l.SubmitOrder(ctx, "owner1", types.CreateOrder{
		AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderMarket, Side: types.SideSell, Qty: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("unexpected error submitting: %v", err)
	}

	if err := l.CancelOrder(ctx, "owner1", o.ID); err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
}

func TestCancelOrderRejectsNonOwner(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	l, settle := newTestLoop(t, cfg)
	seedAccount(settle, "acc1", "10000")
	cancel, done := runLoop(t, l)
	defer func() { cancel(); <-done }()

	ctx, timeoutCancel := context.WithTimeout(context.Background(), time.Second)
	defer timeoutCancel()

	o, err := l.SubmitOrder(ctx, "owner1", types.CreateOrder{
		AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderMarket, Side: types.SideSell, Qty: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("unexpected error submitting: %v", err)
	}

	if err := l.CancelOrder(ctx, "someone-else", o.ID); !errors.Is(err, types.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestCancelOrderNotFound(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	l, _ := newTestLoop(t, cfg)
	cancel, done := runLoop(t, l)
	defer func() { cancel(); <-done }()

	ctx, timeoutCancel := context.WithTimeout(context.Background(), time.Second)
	defer timeoutCancel()

	if err := l.CancelOrder(ctx, "owner1", "does-not-exist"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEnqueueReturnsErrBusyAtThreshold(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.EventChannelCapacity = 10
	cfg.BusyThreshold = 0 // an empty queue is already at the threshold
	l, _ := newTestLoop(t, cfg)
	// Run is intentionally not started, so nothing drains the channel and
	// the queue-depth check alone decides the outcome deterministically.

	ctx, timeoutCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer timeoutCancel()

	_, err := l.SubmitOrder(ctx, "owner1", types.CreateOrder{
		AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderMarket, Side: types.SideBuy, Qty: decimal.NewFromInt(1),
	})
	if !errors.Is(err, types.ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
}

func TestSubmitOrderAfterShutdownReturnsErrShutdown(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	l, _ := newTestLoop(t, cfg)
	cancel, done := runLoop(t, l)
	cancel()
	<-done

	ctx, timeoutCancel := context.WithTimeout(context.Background(), time.Second)
	defer timeoutCancel()

	_, err := l.SubmitOrder(ctx, "owner1", types.CreateOrder{
		AccountID: "acc1", Symbol: "EURUSD", Kind: types.OrderMarket, Side: types.SideBuy, Qty: decimal.NewFromInt(1),
	})
	if !errors.Is(err, types.ErrShutdown) {
		t.Fatalf("err = %v, want ErrShutdown", err)
	}
}

func TestEnqueueTickCoalescesPendingForSameSymbol(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	l, _ := newTestLoop(t, cfg)
	cancel, done := runLoop(t, l)
	defer func() { cancel(); <-done }()

	q1 := types.Quote{Symbol: "EURUSD", Bid: decimal.NewFromFloat(1.10), Ask: decimal.NewFromFloat(1.11), Last: decimal.NewFromFloat(1.105), Timestamp: time.Now()}
	q2 := types.Quote{Symbol: "EURUSD", Bid: decimal.NewFromFloat(1.12), Ask: decimal.NewFromFloat(1.13), Last: decimal.NewFromFloat(1.125), Timestamp: time.Now()}

	if err := l.EnqueueTick(q1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.EnqueueTick(q2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		if last, ok := l.LastTick("EURUSD"); ok && last.Ask.Equal(q2.Ask) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for loop to process the coalesced tick")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEnqueueTickDroppedAfterShutdown(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	l, _ := newTestLoop(t, cfg)
	cancel, done := runLoop(t, l)
	cancel()
	<-done

	q := types.Quote{Symbol: "EURUSD", Bid: decimal.NewFromFloat(1.10), Ask: decimal.NewFromFloat(1.11), Last: decimal.NewFromFloat(1.105), Timestamp: time.Now()}
	if err := l.EnqueueTick(q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := l.LastTick("EURUSD"); ok {
		t.Error("tick enqueued after shutdown should never reach lastTick")
	}
}
