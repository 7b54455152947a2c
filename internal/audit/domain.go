// Package audit maintains the durable, append-only record of sensitive
// actions. Writes are best-effort and never fail their triggering operation.
package audit

import (
	"net/http"
	"time"

	"github.com/snipvault/snipvault/internal/shared"
)

// Entry is one append-only audit row. ActorID is nil for unauthenticated
// events such as a failed login for an unknown username. Action is a dotted
// domain.entity.event taxonomy string, never free text.
type Entry struct {
	ID         int64          `json:"id"`
	ActorID    *int64         `json:"actorId"`
	Action     string         `json:"action"`
	TargetType string         `json:"targetType,omitempty"`
	TargetID   string         `json:"targetId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// ListEntry is an Entry with the acting username resolved when available.
type ListEntry struct {
	Entry
	ActorUsername string `json:"actorUsername,omitempty"`
}

// RequestMeta carries the client context recorded alongside an entry.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// MetaFrom derives the client address and user agent from a request.
func MetaFrom(r *http.Request) RequestMeta {
	if r == nil {
		return RequestMeta{}
	}
	return RequestMeta{IP: shared.ClientIP(r), UserAgent: r.UserAgent()}
}

// Action names recorded by the control plane.
const (
	ActionLoginSuccess       = "auth.login.success"
	ActionLoginFailed        = "auth.login.failed"
	ActionLoginLocked        = "auth.login.locked"
	ActionUserRegistered     = "auth.user.registered"
	ActionUserApprove        = "admin.user.approve"
	ActionUserSuspend        = "admin.user.suspend"
	ActionUserUnsuspend      = "admin.user.unsuspend"
	ActionUserUnlock         = "admin.user.unlock"
	ActionUserRoleChange     = "admin.user.role_change"
	ActionUserStatusChange   = "admin.user.status_change"
	ActionUserSessionsReset  = "admin.user.sessions_reset"
	ActionUserForceReset     = "admin.user.force_password_reset"
	ActionUserDelete         = "admin.user.delete"
	ActionSettingUpdate      = "settings.setting.update"
	ActionFlagUpdate         = "settings.flag.update"
)
