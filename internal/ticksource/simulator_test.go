package ticksource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bikeshrana/tradingd/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type captureSink struct {
	mu    sync.Mutex
	ticks []types.Quote
}

func (c *captureSink) EnqueueTick(q types.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = append(c.ticks, q)
	return nil
}

func (c *captureSink) snapshot() []types.Quote {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Quote, len(c.ticks))
	copy(out, c.ticks)
	return out
}

func testInstrument(symbol string) Instrument {
	return Instrument{
		Symbol:       symbol,
		Class:        ClassFX,
		InitialPrice: decimal.NewFromFloat(1.10),
		Spread:       decimal.NewFromFloat(0.0002),
	}
}

func TestRunEmitsTicksSatisfyingSpreadInvariant(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	sim := New(Config{Interval: time.Millisecond, RetryBaseDelay: time.Millisecond}, []Instrument{testInstrument("EURUSD")}, sink, zerolog.Nop(), 42)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	sim.Run(ctx)

	ticks := sink.snapshot()
	if len(ticks) == 0 {
		t.Fatal("expected at least one emitted tick")
	}
	for _, q := range ticks {
		if !q.Valid() {
			t.Errorf("tick %+v violates the spread invariant", q)
		}
	}
}

func TestRunEnforcesMonotonicTimestampsPerSymbol(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	sim := New(Config{Interval: time.Millisecond, RetryBaseDelay: time.Millisecond}, []Instrument{testInstrument("EURUSD")}, sink, zerolog.Nop(), 42)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	sim.Run(ctx)

	ticks := sink.snapshot()
	for i := 1; i < len(ticks); i++ {
		if !ticks[i].Timestamp.After(ticks[i-1].Timestamp) {
			t.Fatalf("tick %d timestamp %v did not strictly advance past %v", i, ticks[i].Timestamp, ticks[i-1].Timestamp)
		}
	}
}

func TestRunStopsWhenContextCanceled(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	sim := New(Config{Interval: time.Millisecond, RetryBaseDelay: time.Millisecond}, []Instrument{testInstrument("EURUSD")}, sink, zerolog.Nop(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		sim.Run(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestSameSeedProducesDeterministicWalk(t *testing.T) {
	t.Parallel()
	runOnce := func() []types.Quote {
		sink := &captureSink{}
		sim := New(Config{Interval: time.Millisecond, RetryBaseDelay: time.Millisecond}, []Instrument{testInstrument("EURUSD")}, sink, zerolog.Nop(), 7)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		sim.Run(ctx)
		return sink.snapshot()
	}

	a := runOnce()
	b := runOnce()
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		t.Fatal("expected at least one tick to compare")
	}
	for i := 0; i < n; i++ {
		if !a[i].Last.Equal(b[i].Last) {
			t.Fatalf("tick %d last price diverged between runs with the same seed: %s vs %s", i, a[i].Last, b[i].Last)
		}
	}
}
