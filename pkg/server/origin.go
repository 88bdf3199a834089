package server

import (
	"net/http"
	"net/url"

	"github.com/Rheron1848/mcprt/pkg/logging"
)

var defaultAllowedOrigins = []string{
	"http://localhost",
	"https://localhost",
	"http://127.0.0.1",
	"https://127.0.0.1",
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// originAllowed accepts requests without an Origin (non-browser clients),
// allowed origins, and any port of an allowed loopback origin.
func originAllowed(allowedOrigins []string, origin string) bool {
	if origin == "" {
		return true
	}

	o, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		a, err := url.Parse(allowed)
		if err != nil || a.Port() != "" || !isLoopbackHost(a.Hostname()) {
			continue
		}
		if a.Scheme == o.Scheme && a.Hostname() == o.Hostname() {
			return true
		}
	}
	return false
}

// validateOrigin rejects cross-origin browser requests from unknown origins,
// guarding against DNS rebinding.
func (h *HTTPHandler) validateOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !originAllowed(h.opts.allowedOrigins, r.Header.Get("Origin")) {
			h.logger.Warn("Rejected request origin", logging.String("origin", r.Header.Get("Origin")))
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
