package middleware

import (
	"net/http"
	"strings"

	"github.com/nimblepay/webhook-service/internal/auth"
	"github.com/nimblepay/webhook-service/internal/handler"
)

// Auth guards the admin surface. The webhook ingestion route is not behind
// this; providers authenticate with the body signature instead.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, r, handler.ErrMissingToken, "")
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, r, handler.ErrInvalidToken, "")
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				handler.RespondAppError(w, r, handler.ErrInvalidToken, "")
				return
			}

			ctx := auth.ContextWithOperatorID(r.Context(), claims.OperatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
