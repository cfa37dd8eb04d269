package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/star/debriswatch/internal/httputil"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// streamPrefix marks routes consumed by EventSource, which cannot set
// request headers. Those accept the token as ?access_token= instead.
const streamPrefix = "/api/stream/"

// exemptPaths are always public regardless of auth configuration.
var exemptPaths = map[string]bool{
	"/":           true,
	"/healthz":    true,
	"/readyz":     true,
	"/metrics":    true,
	"/api/status": true,
}

// Middleware enforces Bearer token auth on every non-exempt path when auth is
// enabled. CORS preflight requests always pass.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	want := []byte(cfg.Token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || r.Method == http.MethodOptions || exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := requestToken(r)
			if token == "" || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="debriswatch"`)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestToken returns the bearer token presented by r, or "".
func requestToken(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, streamPrefix) {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
