package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docrag/internal/logging"
)

// authMiddleware enforces "Authorization: Bearer <apiKey>" on protected
// routes. An empty apiKey disables the check; Start logs that once.
//
// Failures get 401 with a WWW-Authenticate challenge. Token values are never
// logged. The comparison is constant-time.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			log.Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="docrag"`)
			writeError(w, http.StatusUnauthorized, "authorization required")
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="docrag" error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken returns the token of a Bearer Authorization header, or "".
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
