package httpx

import (
	"errors"
	"net/http"

	"github.com/snipvault/snipvault/internal/shared"
)

// RespondError maps domain errors onto the wire contract. Every branch here
// is an expected, user-facing outcome; anything unmatched is a real failure
// and becomes a 500.
func RespondError(w http.ResponseWriter, err error) {
	var locked *shared.LockedError
	switch {
	case errors.As(err, &locked):
		Locked(w, locked.Until)
	case errors.Is(err, shared.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, "Invalid username or password")
	case errors.Is(err, shared.ErrSessionInvalidated):
		SessionInvalidated(w)
	case errors.Is(err, shared.ErrAccountPending):
		Error(w, http.StatusForbidden, "Account is pending approval")
	case errors.Is(err, shared.ErrAccountSuspended):
		Error(w, http.StatusForbidden, "Account is suspended")
	case errors.Is(err, shared.ErrRegistrationClosed):
		Error(w, http.StatusForbidden, "Registration is closed")
	case errors.Is(err, shared.ErrSelfMutation):
		Error(w, http.StatusBadRequest, "Cannot modify own account")
	case errors.Is(err, shared.ErrConfigValidation):
		Error(w, http.StatusBadRequest, "Invalid configuration value")
	case errors.Is(err, shared.ErrDuplicate):
		Error(w, http.StatusConflict, "Already exists")
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, "Not found")
	default:
		Internal(w)
	}
}
