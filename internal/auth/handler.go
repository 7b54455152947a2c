package auth

import (
	"net/http"

	"github.com/snipvault/snipvault/internal/platform/httpx"
	"github.com/snipvault/snipvault/internal/shared"
)

// MeHandler echoes the resolved identity back to the caller.
type MeHandler struct{}

// Me returns the caller's identity.
func (MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	ident := shared.IdentityFromContext(r.Context())
	if ident == nil {
		httpx.Unauthenticated(w)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":        ident.UserID,
		"username":  ident.Username,
		"role":      ident.Role,
		"status":    ident.Status,
		"anonymous": ident.Anonymous,
	})
}
