// Package gateway holds the request-time policy gates that run ahead of
// business logic: host validation and the maintenance switch.
package gateway

import (
	"net"
	"net/http"
	"strings"

	"github.com/snipvault/snipvault/internal/platform/httpx"
)

// HostGate validates the request host against an explicit allow-list. An
// empty list makes the gate a no-op so the system is usable before an
// operator configures it; that unconfigured window is a documented
// fail-open tradeoff, not an oversight.
type HostGate struct {
	allowed map[string]struct{}
}

// NewHostGate constructs a HostGate from the configured hostname list.
func NewHostGate(hosts []string) *HostGate {
	allowed := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			allowed[h] = struct{}{}
		}
	}
	return &HostGate{allowed: allowed}
}

// Middleware rejects requests whose host is not on the allow-list.
func (g *HostGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(g.allowed) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := g.allowed[requestHost(r)]; !ok {
			httpx.InvalidHost(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestHost extracts the effective hostname: the forwarded host when a
// proxy set one, otherwise the direct host header, with any port and
// trailing comma-separated values stripped.
func requestHost(r *http.Request) string {
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	if idx := strings.Index(host, ","); idx >= 0 {
		host = host[:idx]
	}
	host = strings.TrimSpace(host)
	if bare, _, err := net.SplitHostPort(host); err == nil {
		host = bare
	}
	return strings.ToLower(host)
}
