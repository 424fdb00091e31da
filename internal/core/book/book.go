// Package book implements the Order Book: two indexes over live orders,
// mutated only from the event loop's single writer (spec.md §4.3).
package book

import (
	"sync"

	"github.com/bikeshrana/tradingd/pkg/types"
)

// Book indexes open orders by id and by symbol, preserving insertion
// order per symbol for the Matcher's tie-break rule. Writes happen only
// from the loop goroutine; reads from outside take the RWMutex, matching
// spec.md §5's "explicit read events or durable store" snapshot policy.
type Book struct {
	mu       sync.RWMutex
	byID     map[string]*types.Order
	bySymbol map[string][]string // ordered order IDs, insertion order
}

// New returns an empty Book.
func New() *Book {
	return &Book{
		byID:     make(map[string]*types.Order),
		bySymbol: make(map[string][]string),
	}
}

// Insert adds an order to both indexes. Only non-terminal orders belong
// in the Book; callers must not insert a terminal order.
func (b *Book) Insert(o *types.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.byID[o.ID] = o
	b.bySymbol[o.Symbol] = append(b.bySymbol[o.Symbol], o.ID)
}

// Remove drops an order from both indexes. Called when an order reaches
// a terminal status.
func (b *Book) Remove(orderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.byID[orderID]
	if !ok {
		return
	}
	delete(b.byID, orderID)

	ids := b.bySymbol[o.Symbol]
	for i, id := range ids {
		if id == orderID {
			b.bySymbol[o.Symbol] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(b.bySymbol[o.Symbol]) == 0 {
		delete(b.bySymbol, o.Symbol)
	}
}

// GetByID returns the order, or nil if it is not open.
func (b *Book) GetByID(orderID string) *types.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.byID[orderID]
}

// GetBySymbol returns the live orders on a symbol in insertion order. The
// slice is a copy of order pointers; callers must not retain it across a
// mutation of the Book.
func (b *Book) GetBySymbol(symbol string) []*types.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := b.bySymbol[symbol]
	orders := make([]*types.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := b.byID[id]; ok {
			orders = append(orders, o)
		}
	}
	return orders
}

// Len returns the number of open orders across all symbols.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}
