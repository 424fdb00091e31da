package book

import (
	"testing"

	"github.com/bikeshrana/tradingd/pkg/types"
	"github.com/shopspring/decimal"
)

func newTestOrder(id, symbol string) *types.Order {
	return &types.Order{
		ID:     id,
		Symbol: symbol,
		Kind:   types.OrderMarket,
		Side:   types.SideBuy,
		Qty:    decimal.NewFromInt(1),
		Status: types.OrderPending,
	}
}

func TestInsertAndGetByID(t *testing.T) {
	t.Parallel()
	b := New()
	o := newTestOrder("o1", "EURUSD")
	b.Insert(o)

	got := b.GetByID("o1")
	if got != o {
		t.Fatalf("GetByID returned %+v, want %+v", got, o)
	}
	if b.Len() != 1 {
		t.Errorf("Len = %d, want 1", b.Len())
	}
}

func TestGetBySymbolPreservesInsertionOrder(t *testing.T) {
	t.Parallel()
	b := New()
	o1 := newTestOrder("o1", "EURUSD")
	o2 := newTestOrder("o2", "EURUSD")
	o3 := newTestOrder("o3", "EURUSD")
	b.Insert(o1)
	b.Insert(o2)
	b.Insert(o3)

	orders := b.GetBySymbol("EURUSD")
	if len(orders) != 3 {
		t.Fatalf("len(orders) = %d, want 3", len(orders))
	}
	if orders[0].ID != "o1" || orders[1].ID != "o2" || orders[2].ID != "o3" {
		t.Errorf("order sequence = %s,%s,%s, want o1,o2,o3", orders[0].ID, orders[1].ID, orders[2].ID)
	}
}

func TestRemoveDropsFromBothIndexes(t *testing.T) {
	t.Parallel()
	b := New()
	o1 := newTestOrder("o1", "EURUSD")
	o2 := newTestOrder("o2", "EURUSD")
	b.Insert(o1)
	b.Insert(o2)

	b.Remove("o1")

	if b.GetByID("o1") != nil {
		t.Error("GetByID(o1) should be nil after Remove")
	}
	orders := b.GetBySymbol("EURUSD")
	if len(orders) != 1 || orders[0].ID != "o2" {
		t.Errorf("GetBySymbol after remove = %v, want only o2", orders)
	}
}

func TestRemoveLastOrderForSymbolClearsEntry(t *testing.T) {
	t.Parallel()
	b := New()
	o := newTestOrder("o1", "EURUSD")
	b.Insert(o)
	b.Remove("o1")

	if orders := b.GetBySymbol("EURUSD"); len(orders) != 0 {
		t.Errorf("GetBySymbol after removing last order = %v, want empty", orders)
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d, want 0", b.Len())
	}
}

func TestRemoveUnknownOrderIsNoop(t *testing.T) {
	t.Parallel()
	b := New()
	b.Insert(newTestOrder("o1", "EURUSD"))
	b.Remove("does-not-exist")

	if b.Len() != 1 {
		t.Errorf("Len = %d, want 1 after removing unknown id", b.Len())
	}
}

func TestGetBySymbolReturnsCopyNotLiveSlice(t *testing.T) {
	t.Parallel()
	b := New()
	b.Insert(newTestOrder("o1", "EURUSD"))

	orders := b.GetBySymbol("EURUSD")
	orders[0] = nil // mutating the returned slice must not affect the Book

	if got := b.GetByID("o1"); got == nil {
		t.Error("mutating the slice returned by GetBySymbol corrupted the Book")
	}
}
