package middleware

import (
	"net/http"
	"strings"

	pkgmw "github.com/modelrelay/modelrelay/gateway/pkg/middleware"
)

// RequesterExtractor attaches the caller's user ID to the request
// context. It checks the X-User-ID header, then the userId query
// parameter. Anonymous requests stay anonymous: there is no fallback
// identity.
func RequesterExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := ""

		// Priority 1: X-User-ID header
		if h := r.Header.Get("X-User-ID"); h != "" {
			userID = strings.TrimSpace(h)
		}

		// Priority 2: userId query parameter
		if userID == "" {
			if q := r.URL.Query().Get("userId"); q != "" {
				userID = strings.TrimSpace(q)
			}
		}

		ctx := pkgmw.SetUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
