// Package rbac implements role-based access control as a static, in-process
// mapping from role to capability set. It performs no I/O and is safe to
// consult on every request.
package rbac

import "strings"

// Role is a closed enumeration of account roles.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleModerator  Role = "MODERATOR"
	RoleUser       Role = "USER"
	RoleReadOnly   Role = "READ_ONLY"
)

// Permission is an opaque string capability.
type Permission string

const (
	PermAuditRead       Permission = "admin.audit.read"
	PermUsersManage     Permission = "admin.users.manage"
	PermSettingsRead    Permission = "admin.settings.read"
	PermSettingsWrite   Permission = "admin.settings.write"
	PermSnippetRead     Permission = "snippet.read"
	PermSnippetWrite    Permission = "snippet.write"
	PermSnippetShare    Permission = "snippet.public.publish"
	PermSnippetModerate Permission = "snippet.moderate"
)

// allPermissions is the declared permission universe. SUPER_ADMIN is defined
// as this full set, so a new permission added here is granted to it without
// a map edit.
var allPermissions = []Permission{
	PermAuditRead,
	PermUsersManage,
	PermSettingsRead,
	PermSettingsWrite,
	PermSnippetRead,
	PermSnippetWrite,
	PermSnippetShare,
	PermSnippetModerate,
}

// rolePermissions declares every role's capability set explicitly. Nothing
// is inherited between roles; editing one set never leaks into another.
var rolePermissions = map[Role][]Permission{
	RoleSuperAdmin: allPermissions,
	RoleAdmin: {
		PermAuditRead,
		PermUsersManage,
		PermSettingsRead,
		PermSettingsWrite,
		PermSnippetRead,
		PermSnippetWrite,
		PermSnippetShare,
		PermSnippetModerate,
	},
	RoleModerator: {
		PermSnippetRead,
		PermSnippetWrite,
		PermSnippetShare,
		PermSnippetModerate,
	},
	RoleUser: {
		PermSnippetRead,
		PermSnippetWrite,
		PermSnippetShare,
	},
	RoleReadOnly: {
		PermSnippetRead,
	},
}

// NormalizeRole maps arbitrary input onto a declared role. Anything
// unrecognized falls back to USER, never to a privileged role.
func NormalizeRole(input string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(input))) {
	case RoleSuperAdmin:
		return RoleSuperAdmin
	case RoleAdmin:
		return RoleAdmin
	case RoleModerator:
		return RoleModerator
	case RoleReadOnly:
		return RoleReadOnly
	default:
		return RoleUser
	}
}

// PermissionsOf returns a copy of the role's capability set. An unrecognized
// role receives the USER set as a safety net.
func PermissionsOf(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		perms = rolePermissions[RoleUser]
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether the role grants the permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		perms = rolePermissions[RoleUser]
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// AllPermissions returns a copy of the declared permission universe.
func AllPermissions() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}
