package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/snipvault/snipvault/internal/platform/httpx"
	"github.com/snipvault/snipvault/internal/rbac"
	"github.com/snipvault/snipvault/internal/settings"
)

// maintenanceAllowedPaths are reachable during maintenance so clients can
// discover auth configuration and administrators can log in.
var maintenanceAllowedPaths = []string{
	"/api/auth/config",
	"/api/auth/login",
}

// maintenanceAllowedPrefixes cover the OIDC entry points and API docs.
var maintenanceAllowedPrefixes = []string{
	"/api/auth/oidc",
	"/api/docs",
}

// ModeSource supplies the maintenance switch.
type ModeSource interface {
	Foundation(ctx context.Context) settings.Foundation
}

// RoleResolver resolves a request's role best-effort; failures must read as
// the unprivileged default rather than an error.
type RoleResolver interface {
	PeekRole(r *http.Request) rbac.Role
}

// MaintenanceGate rejects API traffic while maintenance mode is enabled,
// keeping a narrow escape hatch: the auth-discovery allow-list and
// credentials resolving to an administrator role.
type MaintenanceGate struct {
	Policy   ModeSource
	Resolver RoleResolver
}

// Middleware enforces the maintenance switch on API-prefixed paths.
func (g *MaintenanceGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		if !g.Policy.Foundation(r.Context()).MaintenanceEnabled {
			next.ServeHTTP(w, r)
			return
		}
		if maintenanceAllowed(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		switch g.Resolver.PeekRole(r) {
		case rbac.RoleSuperAdmin, rbac.RoleAdmin:
			next.ServeHTTP(w, r)
			return
		}
		httpx.Maintenance(w)
	})
}

func maintenanceAllowed(path string) bool {
	for _, p := range maintenanceAllowedPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range maintenanceAllowedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
