package identity

import (
	"sort"
	"time"

	"soapbox/internal/rbac"
)

// User is a phone banker. PasswordHash is bcrypt; the plaintext is never stored.
type User struct {
	ID           string `json:"id" db:"id"`
	FullName     string `json:"full_name" db:"full_name"`
	Username     string `json:"username" db:"username"`
	PasswordHash string `json:"-" db:"password_hash"`

	// Telephony provider credentials used by the dispatch layer.
	AccountSID string `json:"account_sid,omitempty" db:"account_sid"`
	AuthToken  string `json:"-" db:"auth_token"`

	ProfileText string `json:"profile_text,omitempty" db:"profile_text"`
	City        string `json:"city,omitempty" db:"city"`
	State       string `json:"state,omitempty" db:"state"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type NewUser struct {
	FullName    string `json:"full_name"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	AccountSID  string `json:"account_sid,omitempty"`
	AuthToken   string `json:"auth_token,omitempty"`
	ProfileText string `json:"profile_text,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
}

// Group is the unit of shared ownership.
// Administrators and Moderators are always subsets of Members.
type Group struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`
	URL         string `json:"url" db:"url"`

	Administrators []string `json:"administrators"`
	Moderators     []string `json:"moderators"`
	Members        []string `json:"members"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type NewGroup struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
}

// Membership is the role table of one group, keyed by user id.
type Membership map[string]rbac.Roles

func (m Membership) Clone() Membership {
	out := make(Membership, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Count returns how many users hold role r.
func (m Membership) Count(r rbac.Role) int {
	n := 0
	for _, roles := range m {
		if roles.Has(r) {
			n++
		}
	}
	return n
}

// Users returns the sorted ids of users holding role r.
func (m Membership) Users(r rbac.Role) []string {
	out := make([]string, 0)
	for id, roles := range m {
		if roles.Has(r) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// apply copies the membership lists onto g.
func (m Membership) apply(g *Group) {
	g.Administrators = m.Users(rbac.RoleAdministrator)
	g.Moderators = m.Users(rbac.RoleModerator)
	g.Members = m.Users(rbac.RoleMember)
}
