// Package httpx provides JSON response utilities and the gateway
// rejection contract.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends a generic {"error": message} body.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

// Unauthenticated rejects a request that carries no usable credential.
func Unauthenticated(w http.ResponseWriter) {
	Error(w, http.StatusUnauthorized, "Authentication required")
}

// SessionInvalidated rejects a credential whose session version is stale.
// Distinct from Unauthenticated so clients re-login instead of retrying.
func SessionInvalidated(w http.ResponseWriter) {
	Error(w, http.StatusUnauthorized, "Session invalidated")
}

// Forbidden rejects an authenticated request lacking a permission.
func Forbidden(w http.ResponseWriter) {
	JSON(w, http.StatusForbidden, map[string]string{"message": "Insufficient permissions"})
}

// Locked rejects a login attempt inside the lockout window.
func Locked(w http.ResponseWriter, until time.Time) {
	JSON(w, http.StatusLocked, map[string]string{
		"error":       "Account is temporarily locked",
		"lockedUntil": until.UTC().Format(time.RFC3339),
	})
}

// TooManyRequests rejects a request over its scope quota.
func TooManyRequests(w http.ResponseWriter, scope string, retryAfter time.Duration) {
	secs := int(retryAfter / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	JSON(w, http.StatusTooManyRequests, map[string]string{
		"error": "Too many requests",
		"scope": scope,
	})
}

// Maintenance rejects a request while maintenance mode is enabled.
func Maintenance(w http.ResponseWriter) {
	Error(w, http.StatusServiceUnavailable, "Maintenance mode is enabled")
}

// InvalidHost rejects a request whose host header fails validation.
func InvalidHost(w http.ResponseWriter) {
	Error(w, http.StatusBadRequest, "Invalid host")
}

// Internal sends a generic internal error without leaking details.
func Internal(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "Internal server error")
}
