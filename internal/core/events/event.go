package events

import "time"

// EventType tags an outbound event published from Settlement to external
// subscribers through the EventBus.
type EventType string

// EventTypeOrderExecuted is the only outbound event kind the core emits;
// everything upstream of Settlement (tick, submit, cancel, execute) is
// internal to the Loop and never reaches the bus.
const EventTypeOrderExecuted EventType = "trading.order.executed"

// Event is the interface the EventBus fans out.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides the common Type/Timestamp fields.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }

// OrderExecutedEvent carries exactly the payload spec.md §6 names for the
// `trading.order.executed` channel.
type OrderExecutedEvent struct {
	BaseEvent
	OrderID              string
	OwnerID              string
	AccountID            string
	Symbol               string
	Side                 string
	Qty                  string
	ExecutionPrice        string
	Commission           string
	ExecutedAt           time.Time
	ExecutionTimestampNs int64
	ProcessingLatencyNs  int64
}

// NewOrderExecutedEvent builds the outbound event from decimal string
// representations already formatted by the caller (Settlement), keeping
// this package free of a decimal dependency beyond what it re-exports.
func NewOrderExecutedEvent(orderID, ownerID, accountID, symbol, side, qty, execPrice, commission string, executedAt time.Time, execNs, latencyNs int64) *OrderExecutedEvent {
	return &OrderExecutedEvent{
		BaseEvent: BaseEvent{
			EventType: EventTypeOrderExecuted,
			EventTime: executedAt,
		},
		OrderID:              orderID,
		OwnerID:              ownerID,
		AccountID:            accountID,
		Symbol:               symbol,
		Side:                 side,
		Qty:                  qty,
		ExecutionPrice:       execPrice,
		Commission:           commission,
		ExecutedAt:           executedAt,
		ExecutionTimestampNs: execNs,
		ProcessingLatencyNs:  latencyNs,
	}
}
