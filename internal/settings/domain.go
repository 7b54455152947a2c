// Package settings provides cached access to durable key/value settings and
// boolean feature flags, the single source of truth for runtime-tunable
// behavior.
package settings

import (
	"strings"
	"time"
)

// Setting is a durable string-valued configuration entry.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy"`
}

// Flag is a durable boolean feature flag, namespaced independently from
// settings.
type Flag struct {
	Key         string    `json:"key"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updatedAt"`
	UpdatedBy   string    `json:"updatedBy"`
}

// Setting keys understood by the control plane.
const (
	KeyRegistrationMode       = "registration.mode"
	KeyCommunityMode          = "community.mode"
	KeyMaintenanceMode        = "maintenance.mode"
	KeyLockoutMaxAttempts     = "security.lockout.max_attempts"
	KeyLockoutDurationMinutes = "security.lockout.duration_minutes"
	KeyRateLimitWindowMS      = "security.rate_limit.window_ms"
	KeyRateLimitAuthMax       = "security.rate_limit.auth_max"
	KeyRateLimitPublicMax     = "security.rate_limit.public_max"
	KeyRateLimitGeneralMax    = "security.rate_limit.general_max"
)

// Registration modes.
const (
	RegistrationOpen     = "OPEN"
	RegistrationApproval = "APPROVAL"
	RegistrationClosed   = "CLOSED"
)

// defaults seeded into a fresh deployment.
var defaultSettings = map[string]string{
	KeyRegistrationMode:       RegistrationOpen,
	KeyCommunityMode:          "ON",
	KeyMaintenanceMode:        "OFF",
	KeyLockoutMaxAttempts:     "5",
	KeyLockoutDurationMinutes: "15",
	KeyRateLimitWindowMS:      "60000",
	KeyRateLimitAuthMax:       "10",
	KeyRateLimitPublicMax:     "60",
	KeyRateLimitGeneralMax:    "120",
}

// truthyTokens is the fixed accepted-token set for boolean settings.
var truthyTokens = map[string]struct{}{
	"1": {}, "true": {}, "on": {}, "yes": {}, "enabled": {}, "open": {},
}

// Truthy reports whether a raw setting value counts as boolean true.
func Truthy(value string) bool {
	_, ok := truthyTokens[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// NormalizeRegistrationMode maps a raw value to a known registration mode,
// falling back to OPEN.
func NormalizeRegistrationMode(value string) string {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case RegistrationApproval:
		return RegistrationApproval
	case RegistrationClosed:
		return RegistrationClosed
	default:
		return RegistrationOpen
	}
}

// Foundation bundles the settings every gateway decision needs in one read.
type Foundation struct {
	RegistrationMode   string
	CommunityEnabled   bool
	MaintenanceEnabled bool
	LockoutMaxAttempts int
	LockoutDuration    time.Duration
	RateLimitWindow    time.Duration
	AuthMax            int
	PublicMax          int
	GeneralMax         int
}
