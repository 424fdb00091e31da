package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/bikeshrana/tradingd/internal/auth"
)

type ctxKey string

const ctxKeyOwnerID ctxKey = "ownerId"

// AuthMiddleware verifies the bearer token and stashes its owner id on
// the request context for handlers to read via ownerIDFromRequest.
func AuthMiddleware(jwtSvc *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if token == "" || token == header {
				writeError(w, noopLogger, http.StatusUnauthorized, errMissingToken)
				return
			}
			claims, err := jwtSvc.ValidateToken(token)
			if err != nil {
				writeError(w, noopLogger, http.StatusUnauthorized, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyOwnerID, claims.OwnerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ownerIDFromRequest(r *http.Request) string {
	v, _ := r.Context().Value(ctxKeyOwnerID).(string)
	return v
}
