// Package handlers implements the HTTP surface of spec.md §6: order
// submission/cancellation/query, portfolio positions and tick lookup,
// grounded on the teacher's internal/api/handlers package but rewritten
// against internal/core/loop.Loop instead of the teacher's execution
// engine.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bikeshrana/tradingd/internal/audit"
	"github.com/bikeshrana/tradingd/internal/core/loop"
	"github.com/bikeshrana/tradingd/internal/store"
	"github.com/bikeshrana/tradingd/pkg/types"
)

// OrdersHandler exposes order submission, cancellation and query.
type OrdersHandler struct {
	loop   *loop.Loop
	store  *store.Store
	audit  *audit.Logger
	logger zerolog.Logger
}

// NewOrdersHandler wires the handler to the running Event Loop.
func NewOrdersHandler(l *loop.Loop, s *store.Store, a *audit.Logger, logger zerolog.Logger) *OrdersHandler {
	return &OrdersHandler{loop: l, store: s, audit: a, logger: logger}
}

type createOrderRequest struct {
	AccountID  string           `json:"accountId"`
	Symbol     string           `json:"symbol"`
	Kind       types.OrderKind  `json:"kind"`
	Side       types.Side       `json:"side"`
	Qty        decimal.Decimal  `json:"qty"`
	LimitPrice *decimal.Decimal `json:"limitPrice,omitempty"`
	StopPrice  *decimal.Decimal `json:"stopPrice,omitempty"`
}

// CreateOrder handles POST /api/v1/orders.
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerIDFromRequest(r)
	if ownerID == "" {
		writeError(w, h.logger, http.StatusUnauthorized, errors.New("missing owner identity"))
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	in := types.CreateOrder{
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Kind:       req.Kind,
		Side:       req.Side,
		Qty:        req.Qty,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.loop.SubmitOrder(ctx, ownerID, in)
	if err != nil {
		h.audit.LogOrderRejected(r.Context(), ownerID, req.Symbol, err.Error())
		writeError(w, h.logger, statusForSubmitError(err), err)
		return
	}

	h.audit.LogOrderCreated(r.Context(), order.ID, ownerID, order.Symbol, string(order.Side), string(order.Kind))
	writeJSON(w, h.logger, http.StatusCreated, order)
}

// GetOrder handles GET /api/v1/orders/{orderId}.
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, h.logger, http.StatusNotFound, types.ErrNotFound)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, order)
}

// CancelOrder handles DELETE /api/v1/orders/{orderId}.
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerIDFromRequest(r)
	if ownerID == "" {
		writeError(w, h.logger, http.StatusUnauthorized, errors.New("missing owner identity"))
		return
	}
	orderID := chi.URLParam(r, "orderId")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.loop.CancelOrder(ctx, ownerID, orderID); err != nil {
		writeError(w, h.logger, statusForCancelError(err), err)
		return
	}

	h.audit.LogOrderCancelled(r.Context(), orderID, ownerID)
	w.WriteHeader(http.StatusNoContent)
}

// Executions handles GET /api/v1/orders/{orderId}/executions.
func (h *OrdersHandler) Executions(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	recs, err := h.store.ExecutionsByOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, recs)
}

func statusForSubmitError(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, types.ErrShutdown):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func statusForCancelError(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, types.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, types.ErrShutdown):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
