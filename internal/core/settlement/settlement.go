// Package settlement applies an executeOrder event atomically to an
// account and a symbol position, per spec.md §4.5. It owns the
// in-memory Account and Position indexes — the only place either is
// mutated — and guards durable writes with bounded retry behind a
// circuit breaker. Outbound publish sits behind a breaker of its own
// and is tried once.
package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bikeshrana/tradingd/internal/circuitbreaker"
	"github.com/bikeshrana/tradingd/internal/core/events"
	"github.com/bikeshrana/tradingd/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Store is the durable persistence surface Settlement drives. Concrete
// implementations live in internal/store.
type Store interface {
	SaveOrder(ctx context.Context, o *types.Order) error
	SaveAccount(ctx context.Context, a *types.Account) error
	SavePosition(ctx context.Context, p *types.Position) error
	DeletePosition(ctx context.Context, accountID, symbol string) error
	AppendExecution(ctx context.Context, e *types.ExecutionRecord) error
}

// Config controls the commission rate and retry behavior.
type Config struct {
	CommissionRate decimal.Decimal
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryDeadline  time.Duration
}

// DefaultConfig matches spec.md §4.5's default commission rate of 0.001.
func DefaultConfig() Config {
	return Config{
		CommissionRate: decimal.NewFromFloat(0.001),
		RetryAttempts:  3,
		RetryBaseDelay: 50 * time.Millisecond,
		RetryDeadline:  2 * time.Second,
	}
}

// Settlement holds the in-memory Account and Position indexes and the
// durable/outbound I/O paths.
type Settlement struct {
	cfg    Config
	store  Store
	bus    *events.EventBus
	breakers *circuitbreaker.Manager
	logger zerolog.Logger

	mu        sync.RWMutex
	accounts  map[string]*types.Account
	positions map[string]*types.Position // key: accountID + "|" + symbol
}

// New constructs a Settlement with an empty index; call LoadAccount to
// seed accounts known at startup.
func New(cfg Config, store Store, bus *events.EventBus, breakers *circuitbreaker.Manager, logger zerolog.Logger) *Settlement {
	return &Settlement{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		breakers:  breakers,
		logger:    logger,
		accounts:  make(map[string]*types.Account),
		positions: make(map[string]*types.Position),
	}
}

func positionKey(accountID, symbol string) string {
	return accountID + "|" + symbol
}

// LoadAccount seeds or replaces an account in the in-memory index; used
// at startup and whenever an external actor creates an account.
func (s *Settlement) LoadAccount(a *types.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

// LoadPosition seeds a position in the in-memory index at startup.
func (s *Settlement) LoadPosition(p *types.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[positionKey(p.AccountID, p.Symbol)] = p
}

// Account returns a copy-free pointer to the account, or false if unknown.
// Callers on the loop goroutine may read/write fields directly; callers
// off the loop must not.
func (s *Settlement) Account(id string) (*types.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	return a, ok
}

// Position returns the current position for (accountID, symbol), if any.
func (s *Settlement) Position(accountID, symbol string) (*types.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[positionKey(accountID, symbol)]
	return p, ok
}

// Reserve debits amount from the account's availableBalance at submit
// time (spec.md §3, §6). Returns types.ErrValidation if the account
// cannot cover the reservation.
func (s *Settlement) Reserve(accountID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: unknown account %s", types.ErrValidation, accountID)
	}
	if a.AvailableBalance.LessThan(amount) {
		return fmt.Errorf("%w: insufficient available balance", types.ErrValidation)
	}
	a.AvailableBalance = a.AvailableBalance.Sub(amount)
	a.UpdatedAt = time.Now()
	return nil
}

// Release credits amount back to availableBalance — used on cancel. The
// fill-time release of a buy reservation happens inside applyBalance.
func (s *Settlement) Release(accountID string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return
	}
	a.AvailableBalance = a.AvailableBalance.Add(amount)
	a.UpdatedAt = time.Now()
}

// Intent is what the Matcher decided; Apply turns it into a settled
// execution.
type Intent struct {
	Order         *types.Order
	ExecPrice     decimal.Decimal
	ExecQty       decimal.Decimal
	SubmittedAtNs int64
}

// Apply performs the six-step contract of spec.md §4.5. On any
// validation-class error the order transitions to rejected and no
// balance/position mutation is observable. Transient store errors are
// retried with bounded backoff; on exhaustion the in-memory mutation is
// rolled back and an error is returned for the caller to alert on.
// Publish runs once after the durable write succeeds; a publish failure
// is not retried and does not roll the settlement back.
func (s *Settlement) Apply(ctx context.Context, in Intent) (*types.ExecutionRecord, error) {
	o := in.Order

	if o.Status.Terminal() {
		// Re-delivery of an already-applied execute event: drop
		// idempotently (spec.md §4.5 step 1, §8 property 8).
		return nil, nil
	}

	dequeueNs := time.Now().UnixNano()

	s.mu.Lock()
	account, ok := s.accounts[o.AccountID]
	if !ok {
		s.mu.Unlock()
		return nil, s.reject(ctx, o, fmt.Errorf("%w: unknown account", types.ErrValidation))
	}

	tradeValue := in.ExecQty.Mul(in.ExecPrice)
	commission := tradeValue.Mul(s.cfg.CommissionRate)

	// snapshot for rollback
	prevBalance := account.Balance
	prevAvailable := account.AvailableBalance
	key := positionKey(o.AccountID, o.Symbol)
	var prevPosition *types.Position
	if p, ok := s.positions[key]; ok {
		cp := *p
		prevPosition = &cp
	}
	prevOrder := *o

	s.applyBalance(account, o, tradeValue, commission, in.ExecQty)
	newPos := s.applyPosition(key, o, in.ExecQty, in.ExecPrice, commission)

	o.FilledQty = o.FilledQty.Add(in.ExecQty)
	weighted := weightedAvgPrice(o.AvgPrice, prevOrder.FilledQty, in.ExecPrice, in.ExecQty)
	o.AvgPrice = &weighted
	o.Commission = o.Commission.Add(commission)
	now := time.Now()
	o.ExecutedAt = &now
	o.UpdatedAt = now
	if o.FilledQty.GreaterThanOrEqual(o.Qty) {
		o.Status = types.OrderFilled
	} else {
		o.Status = types.OrderPartiallyFilled
	}
	s.mu.Unlock()

	rec := &types.ExecutionRecord{
		OrderID:             o.ID,
		OwnerID:             o.OwnerID,
		AccountID:           o.AccountID,
		Symbol:              o.Symbol,
		Side:                o.Side,
		Qty:                 in.ExecQty,
		Price:               in.ExecPrice,
		Commission:          commission,
		SubmittedAtNs:       in.SubmittedAtNs,
		ExecutedAtNs:        dequeueNs,
		ProcessingLatencyNs: time.Now().UnixNano() - dequeueNs,
	}

	if err := s.persist(ctx, o, account, newPos, rec); err != nil {
		s.rollback(account, prevBalance, prevAvailable, key, prevPosition, o, prevOrder)
		s.logger.Error().Err(err).Str("order_id", o.ID).Msg("settlement persist exhausted retries, rolled back")
		return nil, err
	}

	s.publish(ctx, rec)

	return rec, nil
}

// applyBalance implements spec.md §4.5 step 3. For a buy, the
// proportional share of the submit-time reservation covering execQty is
// released back to availableBalance before the actual trade cost is
// deducted from it, so once an order is fully settled its whole
// reservation is back and balance and availableBalance have both fallen
// by the same trade cost (commission included), whatever the gap between
// reference price and execution price.
func (s *Settlement) applyBalance(a *types.Account, o *types.Order, tradeValue, commission, execQty decimal.Decimal) {
	cost := tradeValue.Add(commission)
	if o.Side == types.SideBuy {
		a.Balance = a.Balance.Sub(cost)
		released := decimal.Zero
		if o.Qty.IsPositive() {
			released = o.Reservation.Mul(execQty).Div(o.Qty)
		}
		a.AvailableBalance = a.AvailableBalance.Add(released).Sub(cost)
	} else {
		net := tradeValue.Sub(commission)
		a.Balance = a.Balance.Add(net)
		a.AvailableBalance = a.AvailableBalance.Add(net)
	}
	a.UpdatedAt = time.Now()
}

// applyPosition implements the five-case merge/close/flip rule of
// spec.md §4.5 step 4. Caller holds s.mu.
func (s *Settlement) applyPosition(key string, o *types.Order, execQty, execPrice, commission decimal.Decimal) *types.Position {
	now := time.Now()
	existing, ok := s.positions[key]

	if !ok {
		p := &types.Position{
			ID:         newPositionID(o.AccountID, o.Symbol),
			AccountID:  o.AccountID,
			Symbol:     o.Symbol,
			Side:       o.Side,
			Qty:        execQty,
			AvgPrice:   execPrice,
			Commission: commission,
			OpenedAt:   now,
			UpdatedAt:  now,
		}
		p.Reprice(execPrice)
		s.positions[key] = p
		return p
	}

	if existing.Side == o.Side {
		newQty := existing.Qty.Add(execQty)
		existing.AvgPrice = existing.Qty.Mul(existing.AvgPrice).Add(execQty.Mul(execPrice)).Div(newQty)
		existing.Qty = newQty
		existing.Commission = existing.Commission.Add(commission)
		existing.UpdatedAt = now
		existing.Reprice(execPrice)
		return existing
	}

	// Opposite side.
	switch {
	case execQty.LessThan(existing.Qty):
		realized := existing.AvgPrice.Sub(execPrice).Mul(execQty)
		if existing.Side == types.SideBuy {
			realized = execPrice.Sub(existing.AvgPrice).Mul(execQty)
		}
		existing.Qty = existing.Qty.Sub(execQty)
		existing.RealizedPnL = existing.RealizedPnL.Add(realized)
		existing.Commission = existing.Commission.Add(commission)
		existing.UpdatedAt = now
		existing.Reprice(execPrice)
		return existing

	case execQty.Equal(existing.Qty):
		realized := existing.AvgPrice.Sub(execPrice).Mul(execQty)
		if existing.Side == types.SideBuy {
			realized = execPrice.Sub(existing.AvgPrice).Mul(execQty)
		}
		existing.RealizedPnL = existing.RealizedPnL.Add(realized)
		delete(s.positions, key)
		return nil

	default: // execQty > existing.Qty: close then flip
		closedQty := existing.Qty
		realized := existing.AvgPrice.Sub(execPrice).Mul(closedQty)
		if existing.Side == types.SideBuy {
			realized = execPrice.Sub(existing.AvgPrice).Mul(closedQty)
		}
		remaining := execQty.Sub(closedQty)
		p := &types.Position{
			ID:         newPositionID(o.AccountID, o.Symbol),
			AccountID:  o.AccountID,
			Symbol:     o.Symbol,
			Side:       o.Side,
			Qty:        remaining,
			AvgPrice:   execPrice,
			RealizedPnL: realized,
			Commission: commission,
			OpenedAt:   now,
			UpdatedAt:  now,
		}
		p.Reprice(execPrice)
		s.positions[key] = p
		return p
	}
}

func (s *Settlement) rollback(a *types.Account, balance, available decimal.Decimal, posKey string, prevPos *types.Position, o *types.Order, prevOrder types.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Balance = balance
	a.AvailableBalance = available
	if prevPos != nil {
		s.positions[posKey] = prevPos
	} else {
		delete(s.positions, posKey)
	}
	*o = prevOrder
}

// persist writes the order, account, position and execution through the
// durable store, guarded by a named circuit breaker and retried with
// bounded exponential backoff, per spec.md §7.
func (s *Settlement) persist(ctx context.Context, o *types.Order, a *types.Account, pos *types.Position, rec *types.ExecutionRecord) error {
	breaker := s.breakers.GetOrCreate("settlement.store", circuitbreaker.DefaultDatabaseConfig())

	deadline := time.Now().Add(s.cfg.RetryDeadline)
	var lastErr error
	for attempt := 0; attempt < s.cfg.RetryAttempts; attempt++ {
		if time.Now().After(deadline) {
			return fmt.Errorf("settlement persist deadline exceeded: %w", lastErr)
		}

		lastErr = breaker.Execute(func() error {
			if err := s.store.SaveOrder(ctx, o); err != nil {
				return err
			}
			if err := s.store.SaveAccount(ctx, a); err != nil {
				return err
			}
			if pos != nil {
				if err := s.store.SavePosition(ctx, pos); err != nil {
					return err
				}
			} else {
				if err := s.store.DeletePosition(ctx, o.AccountID, o.Symbol); err != nil {
					return err
				}
			}
			return s.store.AppendExecution(ctx, rec)
		})
		if lastErr == nil {
			return nil
		}

		s.logger.Warn().Err(lastErr).Int("attempt", attempt+1).Str("order_id", o.ID).Msg("settlement persist failed, retrying")
		select {
		case <-time.After(s.cfg.RetryBaseDelay * time.Duration(1<<attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// publish emits the outbound execution event, guarded by its own
// circuit breaker; publish failures never roll back a committed
// settlement (the durable write already succeeded) — they only raise an
// operator warning, matching at-most-once delivery being a non-goal.
func (s *Settlement) publish(ctx context.Context, rec *types.ExecutionRecord) {
	breaker := s.breakers.GetOrCreate("settlement.publish", circuitbreaker.DefaultExternalAPIConfig())
	err := breaker.Execute(func() error {
		evt := events.NewOrderExecutedEvent(
			rec.OrderID, rec.OwnerID, rec.AccountID, rec.Symbol, string(rec.Side),
			rec.Qty.String(), rec.Price.String(), rec.Commission.String(),
			rec.ExecutedAt(), rec.ExecutedAtNs, rec.ProcessingLatencyNs,
		)
		s.bus.Publish(ctx, evt)
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", rec.OrderID).Msg("outbound execution publish circuit open")
	}
}

// reject transitions an order to rejected with no balance/position
// mutation, per spec.md §4.5/§7.
func (s *Settlement) reject(ctx context.Context, o *types.Order, cause error) error {
	s.mu.Lock()
	o.Status = types.OrderRejected
	o.UpdatedAt = time.Now()
	s.mu.Unlock()

	if err := s.store.SaveOrder(ctx, o); err != nil {
		s.logger.Error().Err(err).Str("order_id", o.ID).Msg("failed to persist rejected order")
	}
	return cause
}

func weightedAvgPrice(prev *decimal.Decimal, prevQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if prev == nil {
		return newPrice
	}
	totalQty := prevQty.Add(newQty)
	if totalQty.IsZero() {
		return newPrice
	}
	return prevQty.Mul(*prev).Add(newQty.Mul(newPrice)).Div(totalQty)
}

func newPositionID(accountID, symbol string) string {
	return fmt.Sprintf("pos_%s_%s", accountID, symbol)
}
