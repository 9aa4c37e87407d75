// Package authmw guards staff-only routes (tree edits, calling patients)
// with a shared bearer token.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/linnemanlabs/go-core/log"
)

const bearerPrefix = "Bearer "

// Staff returns middleware that admits a request only when its
// Authorization header carries token. Tokens are compared in constant
// time. An empty token disables the check.
func Staff(token string, logger log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	expected := []byte(token)

	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, bearerPrefix) {
				reject(w, r, logger, "missing or malformed authorization header")
				return
			}
			if subtle.ConstantTimeCompare([]byte(auth[len(bearerPrefix):]), expected) != 1 {
				reject(w, r, logger, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, logger log.Logger, reason string) {
	logger.Warn(r.Context(), "staff route rejected", "reason", reason, "method", r.Method, "path", r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="erqueue"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + reason + `"}`))
}
