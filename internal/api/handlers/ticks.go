package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/tradingd/internal/tickcache"
	"github.com/bikeshrana/tradingd/pkg/types"
)

// TicksHandler exposes the Tick Cache of spec.md §4.6 for read-only
// polling clients.
type TicksHandler struct {
	cache  tickcache.Cache
	logger zerolog.Logger
}

// NewTicksHandler wires the handler to the shared Tick Cache.
func NewTicksHandler(c tickcache.Cache, logger zerolog.Logger) *TicksHandler {
	return &TicksHandler{cache: c, logger: logger}
}

// GetTick handles GET /api/v1/ticks/{symbol}.
func (h *TicksHandler) GetTick(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	q, ok, err := h.cache.Get(r.Context(), symbol)
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, types.ErrNotFound)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, q)
}

// ListTicks handles GET /api/v1/market-data, returning every symbol
// currently holding a live quote — the cache-backed counterpart to the
// per-symbol GetTick.
func (h *TicksHandler) ListTicks(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.cache.Symbols(r.Context())
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	quotes := make([]types.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		q, ok, err := h.cache.Get(r.Context(), symbol)
		if err != nil || !ok {
			continue
		}
		quotes = append(quotes, q)
	}
	writeJSON(w, h.logger, http.StatusOK, quotes)
}
