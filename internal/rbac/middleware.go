package rbac

import (
	"log/slog"
	"net/http"

	"github.com/snipvault/snipvault/internal/platform/httpx"
	"github.com/snipvault/snipvault/internal/shared"
)

// Gate wires permission enforcement for HTTP handlers.
type Gate struct {
	Logger *slog.Logger
}

// Require rejects unauthenticated requests with 401 and authenticated
// requests whose normalized role lacks the permission with 403.
func (g Gate) Require(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := shared.IdentityFromContext(r.Context())
			if ident == nil {
				httpx.Unauthenticated(w)
				return
			}
			if !HasPermission(NormalizeRole(ident.Role), perm) {
				if g.Logger != nil {
					g.Logger.Warn("permission denied",
						slog.Int64("user_id", ident.UserID),
						slog.String("permission", string(perm)))
				}
				httpx.Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny passes when the role grants at least one of the permissions.
func (g Gate) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := shared.IdentityFromContext(r.Context())
			if ident == nil {
				httpx.Unauthenticated(w)
				return
			}
			role := NormalizeRole(ident.Role)
			for _, perm := range perms {
				if HasPermission(role, perm) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if g.Logger != nil {
				g.Logger.Warn("permission denied", slog.Int64("user_id", ident.UserID))
			}
			httpx.Forbidden(w)
		})
	}
}

// AttachPermissions materializes the role's full permission list onto the
// request context once per authenticated request.
func (g Gate) AttachPermissions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := shared.IdentityFromContext(r.Context())
		if ident == nil {
			next.ServeHTTP(w, r)
			return
		}
		perms := PermissionsOf(NormalizeRole(ident.Role))
		names := make([]string, len(perms))
		for i, p := range perms {
			names[i] = string(p)
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPermissions(r.Context(), names)))
	})
}
