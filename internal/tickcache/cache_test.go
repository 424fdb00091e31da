package tickcache

import (
	"context"
	"testing"
	"time"

	"github.com/bikeshrana/tradingd/pkg/types"
	"github.com/shopspring/decimal"
)

func testQuote(symbol string) types.Quote {
	return types.Quote{
		Symbol: symbol,
		Bid:    decimal.NewFromFloat(1.10),
		Ask:    decimal.NewFromFloat(1.11),
		Last:   decimal.NewFromFloat(1.105),
	}
}

func TestMemorySetThenGetRoundTrips(t *testing.T) {
	t.Parallel()
	c := NewMemory()
	q := testQuote("EURUSD")

	if err := c.Set(context.Background(), q, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok, err := c.Get(context.Background(), "EURUSD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit")
	}
	if !got.Last.Equal(q.Last) {
		t.Errorf("last = %s, want %s", got.Last, q.Last)
	}
}

func TestMemoryGetMissReturnsFalse(t *testing.T) {
	t.Parallel()
	c := NewMemory()
	_, ok, err := c.Get(context.Background(), "UNKNOWN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected a miss for a symbol never set")
	}
}

func TestMemoryEntryExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	c := NewMemory()
	q := testQuote("EURUSD")

	if err := c.Set(context.Background(), q, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(context.Background(), "EURUSD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected entry to have expired")
	}
}

func TestMemorySymbolsListsOnlyLiveEntries(t *testing.T) {
	t.Parallel()
	c := NewMemory()
	if err := c.Set(context.Background(), testQuote("EURUSD"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Set(context.Background(), testQuote("GBPUSD"), time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	symbols, err := c.Symbols(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(symbols) != 1 || symbols[0] != "EURUSD" {
		t.Errorf("symbols = %v, want only the unexpired EURUSD entry", symbols)
	}
}

func TestMemorySetReplacesPriorValueForSameSymbol(t *testing.T) {
	t.Parallel()
	c := NewMemory()
	first := testQuote("EURUSD")
	second := testQuote("EURUSD")
	second.Last = decimal.NewFromFloat(1.20)

	if err := c.Set(context.Background(), first, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Set(context.Background(), second, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := c.Get(context.Background(), "EURUSD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit")
	}
	if !got.Last.Equal(second.Last) {
		t.Errorf("last = %s, want the replaced value %s", got.Last, second.Last)
	}
}
