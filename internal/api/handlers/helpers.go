package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

var errMissingToken = errors.New("missing or malformed bearer token")
var errMissingAccountID = errors.New("accountId query parameter required")

// noopLogger is used by AuthMiddleware, which runs ahead of any
// per-handler logger wiring.
var noopLogger = zerolog.Nop()

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, logger zerolog.Logger, status int, err error) {
	writeJSON(w, logger, status, errorResponse{Error: err.Error()})
}
