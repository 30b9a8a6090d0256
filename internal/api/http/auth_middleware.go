package httpapi

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// requireToken admits requests whose bearer token matches the bcrypt hash.
// An empty hash closes the route.
func (s *Server) requireToken(hash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(hash) == 0 {
				respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "route disabled: no token configured")
				return
			}
			token := extractToken(r)
			if token == "" {
				respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing token")
				return
			}
			if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
				respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}
