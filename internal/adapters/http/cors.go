package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"strings"
)

// Browser clients embedding previews from another host need CORS headers on
// the catalog and preview endpoints. Origins are opt-in via configuration;
// with no configured origins the middleware adds nothing.
const (
	corsAllowMethods = "GET, POST, DELETE, OPTIONS"
	corsAllowHeaders = "Accept, Content-Type, Authorization"
	corsMaxAge       = "86400"
)

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.isOriginAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			h.Set("Vary", "Origin")
		}

		// Preflight ends here regardless of origin.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) isOriginAllowed(origin string) bool {
	for _, pattern := range s.config.CORS.AllowedOrigins {
		if matchOrigin(origin, pattern) {
			return true
		}
	}
	return false
}

// matchOrigin reports whether origin satisfies pattern. A pattern is either a
// literal origin, compared whole including scheme and port, or a subdomain
// wildcard like "*.example.com". The wildcard never matches the bare apex
// domain.
func matchOrigin(origin, pattern string) bool {
	if origin == "" || pattern == "" {
		return false
	}
	if origin == pattern {
		return true
	}

	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".example.com"
		host := extractHost(origin)
		return strings.HasSuffix(host, suffix) && len(host) > len(suffix)
	}
	return false
}

// extractHost strips scheme, port and path from an origin value, leaving the
// bare hostname.
func extractHost(origin string) string {
	host := origin
	if _, after, ok := strings.Cut(host, "://"); ok {
		host = after
	}
	if before, _, ok := strings.Cut(host, ":"); ok {
		host = before
	}
	if before, _, ok := strings.Cut(host, "/"); ok {
		host = before
	}
	return host
}
