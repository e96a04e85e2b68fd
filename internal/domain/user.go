package domain

// Role enumerates directory roles.
type Role string

const (
	RoleMember     Role = "member"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

// Elevated reports whether the role may act on incidences reported by others.
func (r Role) Elevated() bool {
	return r == RoleSupervisor || r == RoleAdmin
}

// Satisfies reports whether r meets the required role.
func (r Role) Satisfies(required Role) bool {
	switch required {
	case "", RoleMember:
		return true
	case RoleSupervisor:
		return r.Elevated()
	case RoleAdmin:
		return r == RoleAdmin
	default:
		return false
	}
}

// User is a directory entry used to authorize elevated actions.
type User struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Role         Role   `yaml:"role"`
	PasswordHash string `yaml:"password_hash"`
}
