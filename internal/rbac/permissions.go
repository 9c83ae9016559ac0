package rbac

// Permissions returns the fixed permission set for a role. Unknown roles get nothing.
func Permissions(role Role) []Permission {
	switch role {
	case RoleAdmin:
		return []Permission{PermUseBot, PermUseRag, PermViewMetrics, PermAdminCommands}
	case RoleUser:
		return []Permission{PermUseBot, PermUseRag, PermViewMetrics}
	case RoleGuest:
		return []Permission{PermUseBot}
	case RoleBanned:
		return nil
	default:
		return nil
	}
}

// Allows reports whether role grants perm. Banned never grants anything, even if
// the table above drifts.
func Allows(role Role, perm Permission) bool {
	if role == RoleBanned {
		return false
	}
	return hasAnyPermission(Permissions(role), perm)
}

func hasAnyPermission(granted []Permission, required ...Permission) bool {
	for _, g := range granted {
		for _, r := range required {
			if g == r {
				return true
			}
		}
	}
	return false
}
