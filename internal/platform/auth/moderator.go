package auth

import (
	"net/http"
	"strings"
)

// RequireModerator allows request only if RequireUser already injected
// role=moderator into context.
func RequireModerator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := RoleFromContext(r.Context())
		if strings.ToLower(strings.TrimSpace(role)) != "moderator" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
