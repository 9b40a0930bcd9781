package middleware

import (
	"context"
	"net/http"

	"github.com/lalita/wallet/internal/handlers/render"
	"github.com/lalita/wallet/internal/handlers/userctx"
	"github.com/lalita/wallet/internal/models"
)

type authService interface {
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

// AuthMiddleware puts authenticated user to request context or responds 401 with bearer challenge
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := as.Auth(r.Context(), r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="wallet"`)
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
