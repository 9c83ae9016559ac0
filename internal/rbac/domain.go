package rbac

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole indicates a role token outside the closed role set.
var ErrUnknownRole = errors.New("rbac: unknown role")

// ErrUnknownPermission indicates a permission token outside the closed permission set.
var ErrUnknownPermission = errors.New("rbac: unknown permission")

// Role represents a named bundle of permissions assigned to a principal.
type Role string

// Supported roles. Banned is a terminal veto, not a level below Guest.
const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleGuest  Role = "guest"
	RoleBanned Role = "banned"
)

// Permission represents an atomic capability.
type Permission string

// Supported permissions.
const (
	PermUseBot        Permission = "use_bot"
	PermUseRag        Permission = "use_rag"
	PermViewMetrics   Permission = "view_metrics"
	PermAdminCommands Permission = "admin_commands"
)

// Roles lists every role in display order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleUser, RoleGuest, RoleBanned}
}

// AllPermissions lists every permission in display order.
func AllPermissions() []Permission {
	return []Permission{PermUseBot, PermUseRag, PermViewMetrics, PermAdminCommands}
}

// ParseRole converts a case-insensitive token into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return role, nil
}

// ParsePermission converts a case-insensitive token into a Permission.
func ParsePermission(raw string) (Permission, error) {
	perm := Permission(strings.ToLower(strings.TrimSpace(raw)))
	switch perm {
	case PermUseBot, PermUseRag, PermViewMetrics, PermAdminCommands:
		return perm, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPermission, raw)
}

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleGuest, RoleBanned:
		return true
	}
	return false
}

// Title returns the capitalised role label used in replies.
func (r Role) Title() string {
	if r == "" {
		return ""
	}
	s := string(r)
	return strings.ToUpper(s[:1]) + s[1:]
}

func (r Role) String() string { return string(r) }

func (p Permission) String() string { return string(p) }
