// Package tickcache implements the short-TTL per-symbol KV of spec.md
// §4.6: the Event Loop is the only writer, external query handlers are
// readers, and every write replaces the whole record so a reader never
// observes a half-updated Quote.
package tickcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bikeshrana/tradingd/pkg/types"
)

// Cache is the interface both the Redis-backed and in-process
// implementations satisfy, grounded on the narrow redis.Cmdable-style
// surface used by the rate-limiter example's token bucket: accept the
// smallest interface a caller needs, not a concrete client type.
type Cache interface {
	Set(ctx context.Context, q types.Quote, ttl time.Duration) error
	Get(ctx context.Context, symbol string) (types.Quote, bool, error)
	// Symbols lists every symbol currently holding a live (non-expired)
	// entry, backing the /api/v1/market-data list-all endpoint.
	Symbols(ctx context.Context) ([]string, error)
}

// Memory is an in-process Cache backed by a map, used in tests and
// single-process deployments where a Redis dependency would add
// infrastructure without a corresponding consumer. It satisfies the same
// Cache interface as the Redis-backed implementation, so callers never
// branch on which one they were given.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	quote   types.Quote
	expires time.Time
}

// NewMemory returns an empty in-process Cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Set(_ context.Context, q types.Quote, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[q.Symbol] = memoryEntry{quote: q, expires: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, symbol string) (types.Quote, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[symbol]
	if !ok || time.Now().After(e.expires) {
		return types.Quote{}, false, nil
	}
	return e.quote, true, nil
}

func (m *Memory) Symbols(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	symbols := make([]string, 0, len(m.entries))
	for symbol, e := range m.entries {
		if now.After(e.expires) {
			continue
		}
		symbols = append(symbols, symbol)
	}
	return symbols, nil
}

// quoteDTO is the JSON wire shape stored in Redis; Quote's decimal
// fields already marshal as strings via shopspring/decimal's default
// MarshalJSON, so this is a thin pass-through kept only to document the
// stored shape and to make decode errors local to this file.
type quoteDTO = types.Quote

func marshalQuote(q types.Quote) ([]byte, error) {
	return json.Marshal(quoteDTO(q))
}

func unmarshalQuote(data []byte) (types.Quote, error) {
	var q quoteDTO
	if err := json.Unmarshal(data, &q); err != nil {
		return types.Quote{}, fmt.Errorf("tickcache: decode quote: %w", err)
	}
	return types.Quote(q), nil
}
