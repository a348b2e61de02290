package rbac

// Role is a group membership role. Keep these stable; they are stored in group_members.role.
type Role string

const (
	RoleMember        Role = "member"
	RoleModerator     Role = "moderator"
	RoleAdministrator Role = "administrator"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleMember, RoleModerator, RoleAdministrator:
		return Role(s), true
	default:
		return "", false
	}
}

// Elevated roles are subsets of membership and need an administrator to grant.
func (r Role) Elevated() bool { return r == RoleModerator || r == RoleAdministrator }

// Roles is the set of roles one user holds in one group.
type Roles uint8

const (
	bitMember Roles = 1 << iota
	bitModerator
	bitAdministrator
)

func bit(r Role) Roles {
	switch r {
	case RoleMember:
		return bitMember
	case RoleModerator:
		return bitModerator
	case RoleAdministrator:
		return bitAdministrator
	default:
		return 0
	}
}

func RolesOf(rs ...Role) Roles {
	var out Roles
	for _, r := range rs {
		out |= bit(r)
	}
	return out
}

func (s Roles) Has(r Role) bool      { return s&bit(r) != 0 }
func (s Roles) With(r Role) Roles    { return s | bit(r) }
func (s Roles) Without(r Role) Roles { return s &^ bit(r) }
func (s Roles) Empty() bool          { return s == 0 }

// List returns the roles in a stable order: member, moderator, administrator.
func (s Roles) List() []Role {
	out := make([]Role, 0, 3)
	for _, r := range []Role{RoleMember, RoleModerator, RoleAdministrator} {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}
