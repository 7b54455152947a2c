package shared

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP derives the client address for a request: the first entry of
// X-Forwarded-For when present, otherwise the direct connection address
// with its port stripped.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
