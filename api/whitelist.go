package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// Whitelist is the source IP allowlist middleware. Loopback addresses always
// pass.
type Whitelist struct {
	allowed map[string]struct{}
	logger  *slog.Logger
}

// NewWhitelist builds the allowlist from the configured addresses.
func NewWhitelist(ips []string, logger *slog.Logger) *Whitelist {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		if trimmed := strings.TrimSpace(ip); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}
	return &Whitelist{allowed: allowed, logger: logger}
}

// Middleware rejects requests from addresses outside the allowlist with 403.
func (wl *Whitelist) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !wl.allows(ip) {
			wl.logger.Warn("Rejected request from non-whitelisted IP", "ip", ip, "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "Access denied from IP")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (wl *Whitelist) allows(ip string) bool {
	if ip == "" {
		return false
	}
	if parsed := net.ParseIP(ip); parsed != nil && parsed.IsLoopback() {
		return true
	}
	_, ok := wl.allowed[ip]
	return ok
}

// clientIP resolves the request source: the first X-Forwarded-For entry, then
// X-Real-IP, then the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
