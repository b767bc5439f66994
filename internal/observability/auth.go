package observability

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Probes stay reachable without a key so a load balancer can poll them.
var openPaths = map[string]bool{
	"/healthz": true,
	"/version": true,
}

// RequireOperatorKey rejects requests that do not present key through
// X-API-Key or a bearer token. An empty key disables the check.
func RequireOperatorKey(key string) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(key))
	return func(next http.Handler) http.Handler {
		if len(expected) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if openPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if subtle.ConstantTimeCompare([]byte(presentedKey(r)), expected) != 1 {
				log.Printf("operator key rejected request_id=%s method=%s path=%s remote=%s",
					middleware.GetReqID(r.Context()), r.Method, r.URL.Path, r.RemoteAddr)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":    "unauthorized",
						"message": "missing or invalid operator key",
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
