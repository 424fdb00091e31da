package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/tradingd/internal/core/settlement"
	"github.com/bikeshrana/tradingd/internal/store"
	"github.com/bikeshrana/tradingd/pkg/types"
)

// PortfolioHandler exposes read-only account/position queries. The
// account and single-position lookups read Settlement's in-memory index,
// the view the Event Loop mutates; the position list reads the durable
// store.
type PortfolioHandler struct {
	settle *settlement.Settlement
	store  *store.Store
	logger zerolog.Logger
}

// NewPortfolioHandler wires the handler to the running Settlement.
func NewPortfolioHandler(s *settlement.Settlement, st *store.Store, logger zerolog.Logger) *PortfolioHandler {
	return &PortfolioHandler{settle: s, store: st, logger: logger}
}

// GetAccount handles GET /api/v1/portfolio/account/{accountId}.
func (h *PortfolioHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	a, ok := h.settle.Account(accountID)
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, types.ErrNotFound)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, a)
}

// GetPositions handles GET /api/v1/portfolio/positions?accountId=....
func (h *PortfolioHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		writeError(w, h.logger, http.StatusBadRequest, errMissingAccountID)
		return
	}
	positions, err := h.store.PositionsByAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, positions)
}

// GetPosition handles GET /api/v1/portfolio/positions/{symbol}?accountId=....
func (h *PortfolioHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	symbol := chi.URLParam(r, "symbol")
	if accountID == "" {
		writeError(w, h.logger, http.StatusBadRequest, errMissingAccountID)
		return
	}
	p, ok := h.settle.Position(accountID, symbol)
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, types.ErrNotFound)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, p)
}
