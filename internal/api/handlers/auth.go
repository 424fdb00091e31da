package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/tradingd/internal/auth"
)

// AuthHandler issues and refreshes owner-identity tokens. There is no
// user directory in SPEC_FULL.md's scope — ownerId is an opaque caller
// identifier, not a credentialed account, so token issuance trusts
// whatever ownerId the caller names.
type AuthHandler struct {
	jwtSvc *auth.JWTService
	logger zerolog.Logger
}

// NewAuthHandler wires the handler to the JWT service.
func NewAuthHandler(jwtSvc *auth.JWTService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{jwtSvc: jwtSvc, logger: logger}
}

type issueTokenRequest struct {
	OwnerID string `json:"ownerId"`
}

// IssueToken handles POST /auth/token.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	if req.OwnerID == "" {
		writeError(w, h.logger, http.StatusBadRequest, errors.New("ownerId required"))
		return
	}

	pair, err := h.jwtSvc.GenerateTokenPair(r.Context(), req.OwnerID)
	if err != nil {
		writeError(w, h.logger, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	pair, err := h.jwtSvc.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, h.logger, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, pair)
}
