package shared

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicate indicates a uniqueness conflict on insert.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrRegistrationClosed occurs when registration mode is CLOSED.
	ErrRegistrationClosed = errors.New("registration is closed")
	// ErrAccountPending occurs when a PENDING account attempts to log in.
	ErrAccountPending = errors.New("account is pending approval")
	// ErrAccountSuspended occurs when a SUSPENDED account attempts to log in.
	ErrAccountSuspended = errors.New("account is suspended")
	// ErrSessionInvalidated occurs when a credential carries a stale session version.
	ErrSessionInvalidated = errors.New("session invalidated")
	// ErrSelfMutation occurs when an admin targets their own account with a
	// state change that could lock them out.
	ErrSelfMutation = errors.New("cannot modify own account")
	// ErrConfigValidation occurs when an admin submits a malformed setting value.
	ErrConfigValidation = errors.New("invalid configuration value")
)

// LockedError reports that an account is inside its lockout window.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// NewLockedError wraps the unlock timestamp into a LockedError.
func NewLockedError(until time.Time) *LockedError {
	return &LockedError{Until: until}
}
