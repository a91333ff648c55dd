package approval

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r ProfileRole) bool {
	switch r {
	case RoleAdmin, RoleEstablishmentOwner, RoleFireInspector:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a ProfileRole
func ParseRole(raw string) (ProfileRole, bool) {
	role := ProfileRole(raw)
	return role, IsValidRole(role)
}

// HasDashboard reports whether the role has a dashboard route of its own.
// fire_inspector deliberately has none; the state machine routes it to a
// non-committal surface instead of guessing.
func HasDashboard(r ProfileRole) bool {
	switch r {
	case RoleAdmin, RoleEstablishmentOwner:
		return true
	default:
		return false
	}
}

// AllRoles returns all predefined roles
func AllRoles() []ProfileRole {
	return []ProfileRole{
		RoleAdmin,
		RoleEstablishmentOwner,
		RoleFireInspector,
	}
}
