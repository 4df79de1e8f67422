package auth

import (
	"net/http"
	"strings"
)

// DefaultUserHeader is set by the upstream auth gateway on every request
const DefaultUserHeader = "X-User-ID"

// RequireUser resolves the caller from header and stores it on the request
// context. Requests without one are rejected by onMissing.
func RequireUser(header string, onMissing http.HandlerFunc) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultUserHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(header))
			if userID == "" {
				onMissing(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
