// Package loop implements the Event Loop of spec.md §4.2: the single
// consumer that serializes every mutation to the Order Book, Account
// balances and Position index. Tick, submit and cancel events arrive
// from outside; executeOrder is raised internally by the Matcher and
// settled synchronously within the same dequeue — since the Matcher
// already runs on this goroutine, a literal channel round-trip for
// executeOrder would add nothing but latency, so it is handled as a
// direct call while still measured and recorded as its own event.
package loop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bikeshrana/tradingd/internal/core/book"
	"github.com/bikeshrana/tradingd/internal/core/matcher"
	"github.com/bikeshrana/tradingd/internal/core/risk"
	"github.com/bikeshrana/tradingd/internal/core/settlement"
	"github.com/bikeshrana/tradingd/internal/tickcache"
	"github.com/bikeshrana/tradingd/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Metrics is the narrow surface the loop reports through; implemented by
// internal/metrics, kept as an interface here so this package has no
// Prometheus import.
type Metrics interface {
	ObserveEventLatency(kind string, d time.Duration)
	IncOrdersSubmitted()
	IncOrdersFilled()
	IncOrdersRejected()
	IncOrdersCancelled()
}

type noopMetrics struct{}

func (noopMetrics) ObserveEventLatency(string, time.Duration) {}
func (noopMetrics) IncOrdersSubmitted()                       {}
func (noopMetrics) IncOrdersFilled()                          {}
func (noopMetrics) IncOrdersRejected()                        {}
func (noopMetrics) IncOrdersCancelled()                       {}

// Config controls channel capacity, backpressure threshold, slow-event
// warnings and shutdown drain behavior — spec.md §6's named settings.
type Config struct {
	EventChannelCapacity int
	BusyThreshold        int // enqueue attempts fail with ErrBusy at/above this queue depth
	SlowEventThreshold   time.Duration
	ShutdownDrainTimeout time.Duration
	TickCacheTTL         time.Duration
}

// DefaultConfig matches the defaults spec.md §4.2 and §6 name.
func DefaultConfig() Config {
	return Config{
		EventChannelCapacity: 4096,
		BusyThreshold:        3800,
		SlowEventThreshold:   time.Millisecond,
		ShutdownDrainTimeout: 5 * time.Second,
		TickCacheTTL:         5 * time.Second,
	}
}

type eventKind string

const (
	kindTick   eventKind = "tick"
	kindSubmit eventKind = "submitOrder"
	kindCancel eventKind = "cancelOrder"
	kindExecute eventKind = "executeOrder"
)

type submitResult struct {
	order *types.Order
	err   error
}

type loopEvent struct {
	kind eventKind

	submittedAtNs int64

	ownerID     string
	createOrder types.CreateOrder
	orderID     string
	submitResp  chan submitResult

	cancelOrderID string
	cancelResp    chan error
}

// Loop is the single-writer event loop. All exported methods are safe to
// call from any goroutine; only Run's goroutine touches the Book,
// accounts and positions directly.
type Loop struct {
	cfg Config

	book      *book.Book
	settle    *settlement.Settlement
	validator *risk.Validator
	cache     tickcache.Cache
	logger    zerolog.Logger
	metrics   Metrics

	submitCancelCh chan loopEvent

	wake         chan struct{}
	pendingMu    sync.Mutex
	pendingTicks map[string]types.Quote

	lastTickMu sync.RWMutex
	lastTick   map[string]types.Quote

	shuttingDown atomic.Bool
	stopped      chan struct{}

	eventsProcessed   atomic.Int64
	totalProcessingNs atomic.Int64
}

// Stats is a point-in-time snapshot of event loop throughput, exposed for
// the /api/v1/performance endpoint — the Go equivalent of the original
// engine's processing_stats dict.
type Stats struct {
	EventsProcessed     int64
	AvgProcessingTimeNs int64
	QueueDepth          int
	BookSize            int
}

// Stats reports event loop throughput. Safe to call from any goroutine.
func (l *Loop) Stats() Stats {
	processed := l.eventsProcessed.Load()
	var avg int64
	if processed > 0 {
		avg = l.totalProcessingNs.Load() / processed
	}
	return Stats{
		EventsProcessed:     processed,
		AvgProcessingTimeNs: avg,
		QueueDepth:          len(l.submitCancelCh),
		BookSize:            l.book.Len(),
	}
}

func (l *Loop) recordProcessing(d time.Duration) {
	l.eventsProcessed.Add(1)
	l.totalProcessingNs.Add(d.Nanoseconds())
}

// New constructs a Loop. Pass metrics=nil to use a no-op recorder.
func New(cfg Config, b *book.Book, s *settlement.Settlement, v *risk.Validator, cache tickcache.Cache, logger zerolog.Logger, metrics Metrics) *Loop {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Loop{
		cfg:            cfg,
		book:           b,
		settle:         s,
		validator:      v,
		cache:          cache,
		logger:         logger,
		metrics:        metrics,
		submitCancelCh: make(chan loopEvent, cfg.EventChannelCapacity),
		wake:           make(chan struct{}, 1),
		pendingTicks:   make(map[string]types.Quote),
		lastTick:       make(map[string]types.Quote),
		stopped:        make(chan struct{}),
	}
}

// EnqueueTick implements ticksource.Sink. Ticks never fail with ErrBusy
// or ErrShutdown — once shutdown begins, ticks are silently dropped
// since the loop is draining and no new order evaluation should occur;
// before that, a tick for a symbol that already has one pending is
// coalesced to the latest value, per spec.md §4.2's backpressure rule.
func (l *Loop) EnqueueTick(q types.Quote) error {
	if l.shuttingDown.Load() {
		return nil
	}
	l.pendingMu.Lock()
	l.pendingTicks[q.Symbol] = q
	l.pendingMu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// SubmitOrder enqueues a submitOrder event and waits for the order to
// enter the Book (or be rejected). ctx's deadline governs both the
// enqueue attempt and the wait for a result.
func (l *Loop) SubmitOrder(ctx context.Context, ownerID string, in types.CreateOrder) (*types.Order, error) {
	ev := loopEvent{
		kind:          kindSubmit,
		submittedAtNs: time.Now().UnixNano(),
		ownerID:       ownerID,
		createOrder:   in,
		orderID:       uuid.NewString(),
		submitResp:    make(chan submitResult, 1),
	}
	if err := l.enqueue(ctx, ev); err != nil {
		return nil, err
	}
	select {
	case res := <-ev.submitResp:
		return res.order, res.err
	case <-ctx.Done():
		return nil, types.ErrTimeout
	}
}

// CancelOrder enqueues a cancelOrder event and waits for the result.
func (l *Loop) CancelOrder(ctx context.Context, ownerID, orderID string) error {
	ev := loopEvent{
		kind:          kindCancel,
		submittedAtNs: time.Now().UnixNano(),
		ownerID:       ownerID,
		cancelOrderID: orderID,
		cancelResp:    make(chan error, 1),
	}
	if err := l.enqueue(ctx, ev); err != nil {
		return err
	}
	select {
	case err := <-ev.cancelResp:
		return err
	case <-ctx.Done():
		return types.ErrTimeout
	}
}

func (l *Loop) enqueue(ctx context.Context, ev loopEvent) error {
	if l.shuttingDown.Load() {
		return types.ErrShutdown
	}
	if len(l.submitCancelCh) >= l.cfg.BusyThreshold {
		return types.ErrBusy
	}
	select {
	case l.submitCancelCh <- ev:
		return nil
	case <-ctx.Done():
		return types.ErrTimeout
	}
}

// LastTick returns the most recently processed quote for a symbol, for
// callers that want the loop's authoritative view rather than the
// (possibly stale-by-TTL) Tick Cache.
func (l *Loop) LastTick(symbol string) (types.Quote, bool) {
	l.lastTickMu.RLock()
	defer l.lastTickMu.RUnlock()
	q, ok := l.lastTick[symbol]
	return q, ok
}

// Run is the single consumer. It returns once ctx is canceled and the
// shutdown drain completes.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)

	for {
		select {
		case <-ctx.Done():
			l.shuttingDown.Store(true)
			l.drain()
			return

		case <-l.wake:
			l.drainTicks(ctx)

		case ev := <-l.submitCancelCh:
			l.handle(ctx, ev)
		}
	}
}

// Shutdown signals the loop to stop and blocks until the drain completes
// or the context expires.
func (l *Loop) Shutdown(ctx context.Context) error {
	select {
	case <-l.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) drain() {
	deadline := time.Now().Add(l.cfg.ShutdownDrainTimeout)
	for {
		if time.Now().After(deadline) {
			l.failRemaining()
			return
		}
		select {
		case ev := <-l.submitCancelCh:
			l.handle(context.Background(), ev)
		default:
			return
		}
	}
}

func (l *Loop) failRemaining() {
	for {
		select {
		case ev := <-l.submitCancelCh:
			switch ev.kind {
			case kindSubmit:
				ev.submitResp <- submitResult{err: types.ErrShutdown}
			case kindCancel:
				ev.cancelResp <- types.ErrShutdown
			}
		default:
			return
		}
	}
}

func (l *Loop) drainTicks(ctx context.Context) {
	l.pendingMu.Lock()
	ticks := l.pendingTicks
	l.pendingTicks = make(map[string]types.Quote)
	l.pendingMu.Unlock()

	for _, q := range ticks {
		l.handleTick(ctx, q)
	}
}

func (l *Loop) handle(ctx context.Context, ev loopEvent) {
	start := time.Now()
	switch ev.kind {
	case kindSubmit:
		l.handleSubmit(ctx, ev)
	case kindCancel:
		l.handleCancel(ctx, ev)
	}
	d := time.Since(start)
	l.recordProcessing(d)
	l.metrics.ObserveEventLatency(string(ev.kind), d)
	if d > l.cfg.SlowEventThreshold {
		l.logger.Warn().Str("event", string(ev.kind)).Dur("latency", d).Msg("event loop handler exceeded slow threshold")
	}
}

func (l *Loop) handleTick(ctx context.Context, q types.Quote) {
	start := time.Now()

	if !q.Valid() {
		l.logger.Warn().Str("symbol", q.Symbol).Msg("dropped quote failing spread invariant")
		return
	}

	l.lastTickMu.Lock()
	l.lastTick[q.Symbol] = q
	l.lastTickMu.Unlock()

	if err := l.cache.Set(ctx, q, l.cfg.TickCacheTTL); err != nil {
		l.logger.Warn().Err(err).Str("symbol", q.Symbol).Msg("tick cache write failed")
	}

	orders := l.book.GetBySymbol(q.Symbol)
	decisions := matcher.Evaluate(orders, q)

	d := time.Since(start)
	l.recordProcessing(d)
	l.metrics.ObserveEventLatency(string(kindTick), d)
	if d > l.cfg.SlowEventThreshold {
		l.logger.Warn().Str("event", string(kindTick)).Dur("latency", d).Msg("tick handler exceeded slow threshold")
	}

	for _, dec := range decisions {
		o := l.book.GetByID(dec.OrderID)
		if o == nil {
			continue
		}
		l.executeOrder(ctx, o, dec)
	}
}

func (l *Loop) executeOrder(ctx context.Context, o *types.Order, dec matcher.Decision) {
	start := time.Now()

	rec, err := l.settle.Apply(ctx, settlement.Intent{
		Order:         o,
		ExecPrice:     dec.Price,
		ExecQty:       dec.Qty,
		SubmittedAtNs: o.CreatedAt.UnixNano(),
	})

	d := time.Since(start)
	l.recordProcessing(d)
	l.metrics.ObserveEventLatency(string(kindExecute), d)
	if d > l.cfg.SlowEventThreshold {
		l.logger.Warn().Str("event", string(kindExecute)).Str("order_id", o.ID).Dur("latency", d).Msg("execute handler exceeded slow threshold")
	}

	if err != nil {
		l.logger.Error().Err(err).Str("order_id", o.ID).Msg("settlement failed, order left in prior state")
		if o.Status.Terminal() {
			// Apply rejected the order; terminal orders leave the Book.
			l.book.Remove(o.ID)
		}
		return
	}
	if rec == nil {
		// idempotent re-delivery of an already-terminal order
		return
	}

	l.metrics.IncOrdersFilled()
	if o.Status.Terminal() {
		l.book.Remove(o.ID)
	}
}

func (l *Loop) handleSubmit(ctx context.Context, ev loopEvent) {
	l.metrics.IncOrdersSubmitted()

	lastTick, _ := l.LastTick(ev.createOrder.Symbol)
	var lastTickPtr *types.Quote
	if lastTick.Symbol != "" {
		lastTickPtr = &lastTick
	}

	reservation, err := l.validator.Validate(ev.ownerID, ev.createOrder, lastTickPtr)
	if err != nil {
		l.metrics.IncOrdersRejected()
		ev.submitResp <- submitResult{err: err}
		return
	}

	if ev.createOrder.Side == types.SideBuy {
		if err := l.settle.Reserve(ev.createOrder.AccountID, reservation); err != nil {
			l.metrics.IncOrdersRejected()
			ev.submitResp <- submitResult{err: err}
			return
		}
	}

	o := risk.NewOrder(ev.orderID, ev.ownerID, ev.createOrder, reservation)
	l.book.Insert(o)
	ev.submitResp <- submitResult{order: o}
}

func (l *Loop) handleCancel(ctx context.Context, ev loopEvent) {
	o := l.book.GetByID(ev.cancelOrderID)
	if o == nil {
		ev.cancelResp <- types.ErrNotFound
		return
	}
	if o.OwnerID != ev.ownerID {
		ev.cancelResp <- fmt.Errorf("%w: not owner", types.ErrConflict)
		return
	}
	if o.Status.Terminal() {
		ev.cancelResp <- types.ErrConflict
		return
	}

	o.Status = types.OrderCancelled
	o.UpdatedAt = time.Now()
	l.book.Remove(o.ID)

	if o.Side == types.SideBuy {
		l.settle.Release(o.AccountID, o.Reservation.Sub(o.Reservation.Mul(o.FilledQty).Div(o.Qty)))
	}

	l.metrics.IncOrdersCancelled()
	ev.cancelResp <- nil
}
