package middleware

import (
	"net/http"
	"strings"

	"github.com/Dan9191/plutus/internal/permit"
	"github.com/gorilla/mux"
)

// Verifier checks a permit token
type Verifier interface {
	Verify(token string) (*permit.Claims, error)
}

// AuthMiddleware requires a Bearer permit and attaches its claims to the request context
func AuthMiddleware(v Verifier) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				http.Error(w, "Missing permit", http.StatusUnauthorized)
				return
			}

			claims, err := v.Verify(token)
			if err != nil {
				http.Error(w, "Invalid permit", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(permit.WithClaims(r.Context(), claims)))
		})
	}
}
