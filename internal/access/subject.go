package access

import "soapbox/internal/rbac"

// Subject is the requesting actor together with a snapshot of its group roles.
// The zero value is the anonymous subject.
type Subject struct {
	UserID string
	// Groups maps group id to the roles held in that group.
	Groups map[string]rbac.Roles
}

// Anonymous returns a subject with no identity and no memberships.
func Anonymous() Subject { return Subject{} }

func (s Subject) IsAnonymous() bool { return s.UserID == "" }

// MemberOf reports whether the subject belongs to the group in any role.
// Moderators and administrators are members.
func (s Subject) MemberOf(groupID string) bool {
	if s.IsAnonymous() || groupID == "" {
		return false
	}
	return !s.Groups[groupID].Empty()
}

// AdministratorOf reports whether the subject administers the group.
func (s Subject) AdministratorOf(groupID string) bool {
	if s.IsAnonymous() || groupID == "" {
		return false
	}
	return s.Groups[groupID].Has(rbac.RoleAdministrator)
}

func (s Subject) memberOfAny(groupIDs []string) bool {
	for _, g := range groupIDs {
		if s.MemberOf(g) {
			return true
		}
	}
	return false
}
