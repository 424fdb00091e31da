// Package types holds the data model shared by the core, the store and
// the API: quotes, accounts, orders, positions and execution records.
// All monetary and quantity fields are decimal.Decimal — floats are
// disallowed anywhere on the balance/price/qty/PnL path.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a snapshot of a symbol's current best bid/ask/last, superseding
// any previous Quote for the same symbol. Invariant: Bid <= Last <= Ask.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Bid           decimal.Decimal `json:"bid"`
	Ask           decimal.Decimal `json:"ask"`
	Last          decimal.Decimal `json:"last"`
	Volume        decimal.Decimal `json:"volume"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Valid reports whether the quote satisfies the spread invariant.
func (q Quote) Valid() bool {
	return q.Bid.LessThanOrEqual(q.Last) && q.Last.LessThanOrEqual(q.Ask) && q.Ask.GreaterThanOrEqual(q.Bid)
}

// AccountKind distinguishes demo, paper and live accounts.
type AccountKind string

const (
	AccountDemo AccountKind = "demo"
	AccountLive AccountKind = "live"
	AccountPaper AccountKind = "paper"
)

// Account is mutated only by Settlement, inside the event loop.
type Account struct {
	ID               string          `json:"id"`
	OwnerID          string          `json:"ownerId"`
	Kind             AccountKind     `json:"kind"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	Equity           decimal.Decimal `json:"equity"`
	Margin           decimal.Decimal `json:"margin"`
	FreeMargin       decimal.Decimal `json:"freeMargin"`
	MarginLevel      decimal.Decimal `json:"marginLevel"`
	Leverage         decimal.Decimal `json:"leverage"`
	Currency         string          `json:"currency"`
	Active           bool            `json:"active"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// OrderKind is the order type as named in spec.md §3.
type OrderKind string

const (
	OrderMarket    OrderKind = "market"
	OrderLimit     OrderKind = "limit"
	OrderStop      OrderKind = "stop"
	OrderStopLimit OrderKind = "stopLimit"
)

// Side is buy or sell.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the order's finite state machine position (spec.md §4.3).
type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderOpen            OrderStatus = "open"
	OrderPartiallyFilled OrderStatus = "partiallyFilled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRejected        OrderStatus = "rejected"
)

// Terminal reports whether status is one the Book removes the order for.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderRejected
}

// Order is exclusively owned by the Order Book while open; once terminal
// it belongs to the durable store only.
type Order struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	AccountID   string          `json:"accountId"`
	Symbol      string          `json:"symbol"`
	Kind        OrderKind       `json:"kind"`
	Side        Side            `json:"side"`
	Qty         decimal.Decimal `json:"qty"`
	LimitPrice  *decimal.Decimal `json:"limitPrice,omitempty"`
	StopPrice   *decimal.Decimal `json:"stopPrice,omitempty"`
	Status      OrderStatus     `json:"status"`
	FilledQty   decimal.Decimal `json:"filledQty"`
	AvgPrice    *decimal.Decimal `json:"avgPrice,omitempty"`
	Commission  decimal.Decimal `json:"commission"`
	Reservation decimal.Decimal `json:"reservation"`
	// StopTriggered latches true the first tick a stop/stopLimit order's
	// trigger crosses; a stopLimit then behaves as a limit order for
	// every subsequent tick regardless of whether last retreats.
	StopTriggered bool            `json:"stopTriggered"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	ExecutedAt  *time.Time      `json:"executedAt,omitempty"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Qty.Sub(o.FilledQty)
}

// Position tracks one (accountId, symbol) exposure; deleted when qty
// reaches zero.
type Position struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"accountId"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Qty            decimal.Decimal `json:"qty"`
	AvgPrice       decimal.Decimal `json:"avgPrice"`
	CurrentPrice   decimal.Decimal `json:"currentPrice"`
	UnrealizedPnL  decimal.Decimal `json:"unrealizedPnL"`
	RealizedPnL    decimal.Decimal `json:"realizedPnL"`
	Commission     decimal.Decimal `json:"commission"`
	OpenedAt       time.Time       `json:"openedAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Reprice recomputes UnrealizedPnL against currentPrice.
func (p *Position) Reprice(currentPrice decimal.Decimal) {
	p.CurrentPrice = currentPrice
	delta := currentPrice.Sub(p.AvgPrice).Mul(p.Qty)
	if p.Side == SideSell {
		delta = delta.Neg()
	}
	p.UnrealizedPnL = delta
}

// ExecutionRecord is the immutable, append-only audit row Settlement
// emits for every fill.
type ExecutionRecord struct {
	OrderID             string          `json:"orderId"`
	OwnerID             string          `json:"ownerId"`
	AccountID           string          `json:"accountId"`
	Symbol              string          `json:"symbol"`
	Side                Side            `json:"side"`
	Qty                 decimal.Decimal `json:"qty"`
	Price               decimal.Decimal `json:"executionPrice"`
	Commission          decimal.Decimal `json:"commission"`
	SubmittedAtNs       int64           `json:"submittedAtNs"`
	ExecutedAtNs        int64           `json:"executionTimestampNs"`
	ProcessingLatencyNs int64           `json:"processingLatencyNs"`
}

// ExecutedAt returns the execution time as a UTC time.Time for serialization.
func (e ExecutionRecord) ExecutedAt() time.Time {
	return time.Unix(0, e.ExecutedAtNs).UTC()
}

// CreateOrder is the caller-supplied shape for Submit.
type CreateOrder struct {
	AccountID  string
	Symbol     string
	Kind       OrderKind
	Side       Side
	Qty        decimal.Decimal
	LimitPrice *decimal.Decimal
	StopPrice  *decimal.Decimal
}
