package rbac

import (
	"net/http"

	"github.com/snipvault/snipvault/internal/platform/httpx"
	"github.com/snipvault/snipvault/internal/shared"
)

// PermissionsHandler exposes the caller's effective permission list.
type PermissionsHandler struct{}

// Me returns the permission list materialized by AttachPermissions.
func (PermissionsHandler) Me(w http.ResponseWriter, r *http.Request) {
	ident := shared.IdentityFromContext(r.Context())
	if ident == nil {
		httpx.Unauthenticated(w)
		return
	}
	perms := shared.PermissionsFromContext(r.Context())
	if perms == nil {
		names := PermissionsOf(NormalizeRole(ident.Role))
		perms = make([]string, len(names))
		for i, p := range names {
			perms[i] = string(p)
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":        string(NormalizeRole(ident.Role)),
		"permissions": perms,
	})
}
