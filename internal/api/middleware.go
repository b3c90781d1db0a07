package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// WithAuthToken guards the /api routes with a shared bearer token. An empty
// token leaves them open, which is the expected setup behind a trusted
// reverse proxy.
func (s *Server) WithAuthToken(token string) *Server {
	s.authToken = token
	return s
}

// requireAuth enforces the admin token on mutating and history routes.
// /health, /status and /metrics stay open for probes and scrapers.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			slog.Warn("Admin request without token", slog.String("path", r.URL.Path))
			s.Error(w, http.StatusUnauthorized, "missing admin token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			slog.Warn("Admin request with bad token", slog.String("path", r.URL.Path))
			s.Error(w, http.StatusForbidden, "invalid admin token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractToken pulls the token from the Authorization header or, as a
// fallback for simple curl use, the X-Auth-Token header.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if t := r.Header.Get("X-Auth-Token"); t != "" {
		return strings.TrimSpace(t)
	}
	return ""
}
