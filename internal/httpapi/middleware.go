package httpapi

import (
	"net/http"
	"strings"

	"cpmsync/internal/security"
)

// RequireBearer rejects requests without the expected bearer token. An empty
// token disables the check.
func RequireBearer(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || !security.TokensEqual(strings.TrimPrefix(auth, "Bearer "), token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
