// Package accounts owns per-user security state and the transition logic
// operating on it: lifecycle status, failed-login lockout, session
// versioning and forced password resets.
package accounts

import (
	"time"

	"github.com/snipvault/snipvault/internal/rbac"
)

// Status is the account lifecycle state. The lock flag is orthogonal: a
// locked ACTIVE user is rejected at login, not demoted.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusActive, StatusSuspended:
		return Status(raw), true
	default:
		return "", false
	}
}

// ReaderUsername names the singleton read-only identity used when the
// deployment disables individual accounts.
const ReaderUsername = "reader"

// User is an account record with its security fields.
type User struct {
	ID                  int64
	Username            string
	PasswordHash        string
	Role                rbac.Role
	Status              Status
	FailedLoginAttempts int
	LockedUntil         *time.Time
	SessionVersion      int64
	ForcePasswordReset  bool
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the account is inside its lockout window.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Response is the wire representation of a user, without secrets.
type Response struct {
	ID                  int64      `json:"id"`
	Username            string     `json:"username"`
	Role                string     `json:"role"`
	Status              string     `json:"status"`
	FailedLoginAttempts int        `json:"failedLoginAttempts"`
	LockedUntil         *time.Time `json:"lockedUntil,omitempty"`
	ForcePasswordReset  bool       `json:"forcePasswordReset"`
	LastLoginAt         *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// ToResponse strips secrets for the wire.
func (u *User) ToResponse() Response {
	return Response{
		ID:                  u.ID,
		Username:            u.Username,
		Role:                string(u.Role),
		Status:              string(u.Status),
		FailedLoginAttempts: u.FailedLoginAttempts,
		LockedUntil:         u.LockedUntil,
		ForcePasswordReset:  u.ForcePasswordReset,
		LastLoginAt:         u.LastLoginAt,
		CreatedAt:           u.CreatedAt,
	}
}
