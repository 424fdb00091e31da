// Package matcher implements the per-tick executability rules of
// spec.md §4.4: a pure, stateless decision over an order and the quote
// that just arrived. The Matcher never settles — it only decides and
// emits an intent; Settlement performs the mutation.
package matcher

import (
	"github.com/bikeshrana/tradingd/pkg/types"
	"github.com/shopspring/decimal"
)

// Decision is what the Matcher concluded for one order on one tick.
type Decision struct {
	OrderID string
	Price   decimal.Decimal
	Qty     decimal.Decimal
}

// Evaluate scans the symbol's live orders against the quote and returns
// one Decision per executable order, in the same insertion order the
// Book handed them in (the tie-break rule of spec.md §4.4).
//
// Evaluate also mutates orders in place for the pending->open transition
// and for stop orders crossing their trigger, since both are pure status
// advances the Matcher is allowed to make without touching balances.
func Evaluate(orders []*types.Order, q types.Quote) []Decision {
	decisions := make([]Decision, 0, len(orders))

	for _, o := range orders {
		if o.Status == types.OrderPending {
			o.Status = types.OrderOpen
		}

		executable, price := evaluateOne(o, q)
		if !executable {
			continue
		}

		decisions = append(decisions, Decision{
			OrderID: o.ID,
			Price:   price,
			Qty:     o.Remaining(),
		})
	}

	return decisions
}

// evaluateOne applies the rules of spec.md §4.4 to a single order.
func evaluateOne(o *types.Order, q types.Quote) (bool, decimal.Decimal) {
	switch o.Kind {
	case types.OrderMarket:
		if o.Side == types.SideBuy {
			return true, q.Ask
		}
		return true, q.Bid

	case types.OrderLimit:
		if o.LimitPrice == nil {
			return false, decimal.Zero
		}
		if o.Side == types.SideBuy {
			if q.Ask.LessThanOrEqual(*o.LimitPrice) {
				return true, *o.LimitPrice
			}
			return false, decimal.Zero
		}
		if q.Bid.GreaterThanOrEqual(*o.LimitPrice) {
			return true, *o.LimitPrice
		}
		return false, decimal.Zero

	case types.OrderStop:
		if o.StopPrice == nil {
			return false, decimal.Zero
		}
		if stopTriggered(o, q) {
			o.StopTriggered = true
			if o.Side == types.SideBuy {
				return true, q.Ask
			}
			return true, q.Bid
		}
		return false, decimal.Zero

	case types.OrderStopLimit:
		if o.StopPrice == nil || o.LimitPrice == nil {
			return false, decimal.Zero
		}
		if !o.StopTriggered && stopTriggered(o, q) {
			o.StopTriggered = true
		}
		if !o.StopTriggered {
			return false, decimal.Zero
		}
		// Stop has crossed; from here it behaves as a limit order with
		// the same limitPrice, per spec.md §4.4.
		if o.Side == types.SideBuy {
			if q.Ask.LessThanOrEqual(*o.LimitPrice) {
				return true, *o.LimitPrice
			}
			return false, decimal.Zero
		}
		if q.Bid.GreaterThanOrEqual(*o.LimitPrice) {
			return true, *o.LimitPrice
		}
		return false, decimal.Zero
	}

	return false, decimal.Zero
}

func stopTriggered(o *types.Order, q types.Quote) bool {
	if o.Side == types.SideBuy {
		return q.Last.GreaterThanOrEqual(*o.StopPrice)
	}
	return q.Last.LessThanOrEqual(*o.StopPrice)
}
