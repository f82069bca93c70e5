package handlers

import (
	"net/http"

	"github.com/sauber-detailing/pos-api/internal/platform/auth"
	"github.com/sauber-detailing/pos-api/internal/services"
)

// SessionMiddleware copies the authenticated identity into the operator session read by the
// services. Requests without an identity pass through unchanged.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok || identity == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := services.WithSession(r.Context(), services.Session{
			UID:  identity.UID,
			Name: identity.DisplayName(),
			Role: string(identity.Role),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
