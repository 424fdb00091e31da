package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/tradingd/internal/store"
)

// HealthHandler reports basic liveness and store reachability.
type HealthHandler struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewHealthHandler wires the handler to the durable store's pool.
func NewHealthHandler(s *store.Store, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{store: s, logger: logger}
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// Handle handles GET /health.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Store: "ok"}
	if err := h.store.Ping(r.Context()); err != nil {
		resp.Store = "unreachable"
		writeJSON(w, h.logger, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
