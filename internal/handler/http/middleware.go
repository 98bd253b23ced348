package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apperrors "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/errors"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/httputil"
)

// BearerAuth rejects requests that do not carry one of the configured
// tokens in an Authorization: Bearer header. An empty token list disables
// authentication, which is only sensible in local development.
func BearerAuth(tokens []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(tokens) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || !tokenAllowed(presented, tokens) {
				httputil.WriteError(w, r,
					apperrors.Unauthorized("a valid bearer token is required"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenAllowed(presented string, tokens []string) bool {
	allowed := false
	for _, token := range tokens {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
			allowed = true
		}
	}
	return allowed
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
