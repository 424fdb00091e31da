// Package ticksource implements the reference Tick Source of spec.md
// §4.1: a deterministic per-symbol random walk that feeds the Event Loop
// at high frequency and never blocks it.
package ticksource

import (
	"context"
	"math/rand"
	"time"

	"github.com/bikeshrana/tradingd/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SymbolClass sets the random-walk volatility used for a symbol, per
// spec.md §4.1.
type SymbolClass int

const (
	ClassFX SymbolClass = iota
	ClassCrypto
)

// Instrument configures one simulated symbol.
type Instrument struct {
	Symbol       string
	Class        SymbolClass
	InitialPrice decimal.Decimal
	Spread       decimal.Decimal // fixed relative spread, e.g. 0.0002
}

func (i Instrument) volatility() float64 {
	if i.Class == ClassCrypto {
		return 0.01
	}
	return 0.0001
}

// Config controls emission cadence and backoff behavior.
type Config struct {
	Interval      time.Duration // cadence per symbol; default below satisfies >=100Hz
	RetryBaseDelay time.Duration
}

// DefaultConfig emits at 200Hz (5ms), comfortably above the spec's 100Hz
// floor, with a 100ms backoff base for transient emission failures.
func DefaultConfig() Config {
	return Config{Interval: 5 * time.Millisecond, RetryBaseDelay: 100 * time.Millisecond}
}

// Sink is where the simulator delivers quotes: the Event Loop's tick
// intake. Enqueue must be non-blocking from the simulator's perspective —
// it returns an error only to let the simulator log and retry; it must
// never cause the simulator to block indefinitely.
type Sink interface {
	EnqueueTick(types.Quote) error
}

// Simulator runs one goroutine per configured instrument.
type Simulator struct {
	cfg         Config
	instruments []Instrument
	sink        Sink
	logger      zerolog.Logger
	rng         *rand.Rand
}

// New constructs a Simulator. rngSeed makes the walk reproducible across
// runs with the same seed, useful for scenario tests (spec.md §8 S1–S6).
func New(cfg Config, instruments []Instrument, sink Sink, logger zerolog.Logger, rngSeed int64) *Simulator {
	return &Simulator{
		cfg:         cfg,
		instruments: instruments,
		sink:        sink,
		logger:      logger,
		rng:         rand.New(rand.NewSource(rngSeed)),
	}
}

// Run starts the per-symbol goroutines and blocks until ctx is canceled.
func (s *Simulator) Run(ctx context.Context) {
	done := make(chan struct{}, len(s.instruments))
	for _, inst := range s.instruments {
		// Each goroutine gets its own generator, seeded in instrument
		// order from the simulator's seed, so no *rand.Rand is shared.
		rng := rand.New(rand.NewSource(s.rng.Int63()))
		go func(inst Instrument, rng *rand.Rand) {
			s.runSymbol(ctx, inst, rng)
			done <- struct{}{}
		}(inst, rng)
	}
	for range s.instruments {
		<-done
	}
}

func (s *Simulator) runSymbol(ctx context.Context, inst Instrument, rng *rand.Rand) {
	last := inst.InitialPrice
	high := inst.InitialPrice
	low := inst.InitialPrice
	open := inst.InitialPrice
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// lastTimestampNs enforces the monotonic-per-symbol contract even if
	// the wall clock is imprecise at >=100Hz cadence.
	var lastTimestampNs int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last = s.walk(rng, last, inst.volatility())
			if last.LessThanOrEqual(decimal.Zero) {
				last = inst.InitialPrice
			}
			if last.GreaterThan(high) {
				high = last
			}
			if last.LessThan(low) {
				low = last
			}

			half := last.Mul(inst.Spread).Div(decimal.NewFromInt(2))
			bid := last.Sub(half)
			ask := last.Add(half)

			now := time.Now().UnixNano()
			if now <= lastTimestampNs {
				now = lastTimestampNs + 1
			}
			lastTimestampNs = now

			change := last.Sub(open)
			changePct := decimal.Zero
			if !open.IsZero() {
				changePct = change.Div(open).Mul(decimal.NewFromInt(100))
			}

			q := types.Quote{
				Symbol:        inst.Symbol,
				Bid:           bid,
				Ask:           ask,
				Last:          last,
				Volume:        decimal.NewFromInt(rng.Int63n(1000) + 1),
				High:          high,
				Low:           low,
				Change:        change,
				ChangePercent: changePct,
				Timestamp:     time.Unix(0, now).UTC(),
			}

			if err := s.sink.EnqueueTick(q); err != nil {
				s.logger.Warn().Err(err).Str("symbol", inst.Symbol).Msg("tick emission failed, backing off")
				select {
				case <-time.After(s.cfg.RetryBaseDelay):
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// walk applies one step of a geometric random walk with the given
// per-tick volatility.
func (s *Simulator) walk(rng *rand.Rand, price decimal.Decimal, volatility float64) decimal.Decimal {
	pct := (rng.Float64()*2 - 1) * volatility
	delta := price.Mul(decimal.NewFromFloat(pct))
	return price.Add(delta)
}
