package access

import (
	"testing"
	"time"

	"soapbox/internal/rbac"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	groupA = "g-a"
	groupB = "g-b"
)

func subject(userID string, roles map[string]rbac.Roles) Subject {
	return Subject{UserID: userID, Groups: roles}
}

var (
	owner    = subject("owner", map[string]rbac.Roles{groupA: rbac.RolesOf(rbac.RoleMember)})
	admin    = subject("admin", map[string]rbac.Roles{groupA: rbac.RolesOf(rbac.RoleMember, rbac.RoleAdministrator)})
	member   = subject("member", map[string]rbac.Roles{groupA: rbac.RolesOf(rbac.RoleMember)})
	mod      = subject("mod", map[string]rbac.Roles{groupA: rbac.RolesOf(rbac.RoleMember, rbac.RoleModerator)})
	outsider = subject("outsider", map[string]rbac.Roles{groupB: rbac.RolesOf(rbac.RoleMember)})
	anon     = Anonymous()
)

func policy(vis Visibility, active bool, sh *Sharing) Policy {
	o := NewOwnership("owner", groupA, vis, time.Unix(1700000000, 0).UTC())
	o.Active = active
	return Policy{Ownership: o, Sharing: sh}
}

func TestCheck_InactiveHiddenFromEveryoneButOwnerAndAdmin(t *testing.T) {
	for _, vis := range []Visibility{VisibilityGroup, VisibilityPublic, VisibilityPrivate} {
		p := policy(vis, false, &Sharing{ViewUsers: []string{"outsider"}, EditUsers: []string{"member"}})

		require.NoError(t, Check(owner, p, ActionView), vis)
		require.NoError(t, Check(admin, p, ActionView), vis)
		assert.ErrorIs(t, Check(owner, p, ActionEdit), ErrPermissionDenied, vis)
		assert.ErrorIs(t, Check(admin, p, ActionEdit), ErrPermissionDenied, vis)

		for _, s := range []Subject{member, mod, outsider, anon} {
			assert.ErrorIs(t, Check(s, p, ActionView), ErrNotFound, "%s %s", vis, s.UserID)
			assert.ErrorIs(t, Check(s, p, ActionEdit), ErrNotFound, "%s %s", vis, s.UserID)
		}
	}
}

func TestCheck_OwnerAndAdminAlwaysViewAndEdit(t *testing.T) {
	for _, vis := range []Visibility{VisibilityGroup, VisibilityPublic, VisibilityPrivate} {
		p := policy(vis, true, nil)
		for _, s := range []Subject{owner, admin} {
			assert.True(t, Can(s, p, ActionView))
			assert.True(t, Can(s, p, ActionEdit))
		}
	}
}

func TestCheck_PublicAnonymousViewOnly(t *testing.T) {
	p := policy(VisibilityPublic, true, &Sharing{})
	assert.NoError(t, Check(anon, p, ActionView))
	assert.ErrorIs(t, Check(anon, p, ActionEdit), ErrPermissionDenied)
	assert.NoError(t, Check(outsider, p, ActionView))
	assert.ErrorIs(t, Check(outsider, p, ActionEdit), ErrPermissionDenied)
}

func TestCheck_GroupVisibility(t *testing.T) {
	p := policy(VisibilityGroup, true, nil)
	assert.True(t, Can(member, p, ActionView))
	assert.True(t, Can(mod, p, ActionView))
	assert.False(t, Can(member, p, ActionEdit))
	assert.ErrorIs(t, Check(outsider, p, ActionView), ErrPermissionDenied)
	assert.ErrorIs(t, Check(anon, p, ActionView), ErrPermissionDenied)
}

func TestCheck_PrivateRequiresOwnerAdminOrAllowList(t *testing.T) {
	p := policy(VisibilityPrivate, true, nil)
	assert.False(t, Can(member, p, ActionView))
	assert.True(t, Can(owner, p, ActionView))

	p.Sharing = &Sharing{ViewUsers: []string{"member"}}
	assert.True(t, Can(member, p, ActionView))
	assert.False(t, Can(member, p, ActionEdit))
}

func TestCheck_AllowListsByGroup(t *testing.T) {
	p := policy(VisibilityPrivate, true, &Sharing{ViewGroups: []string{groupB}})
	assert.True(t, Can(outsider, p, ActionView))
	assert.False(t, Can(outsider, p, ActionEdit))

	p.Sharing = &Sharing{EditGroups: []string{groupB}}
	assert.True(t, Can(outsider, p, ActionEdit))
	assert.True(t, Can(outsider, p, ActionView), "edit grant implies view")
}

func TestCheck_AllowListsNeverReachAnonymous(t *testing.T) {
	p := policy(VisibilityPrivate, true, &Sharing{ViewUsers: []string{""}})
	assert.False(t, Can(anon, p, ActionView))
}

func TestCheck_AllowListRemovalIsMonotonic(t *testing.T) {
	sh := &Sharing{}
	g := Grant{Action: ActionView, Principal: PrincipalUser, PrincipalID: "member"}
	require.True(t, sh.Add(g))
	p := policy(VisibilityGroup, true, sh)
	require.True(t, Can(member, p, ActionView))

	require.True(t, sh.Remove(g))
	assert.Empty(t, sh.ViewUsers)
	assert.True(t, Can(member, p, ActionView), "group visibility still grants view")
}

func TestCanTransfer(t *testing.T) {
	o := policy(VisibilityGroup, true, nil).Ownership
	assert.True(t, CanTransfer(owner, o))
	assert.True(t, CanTransfer(admin, o))
	assert.False(t, CanTransfer(mod, o))
	assert.False(t, CanTransfer(anon, o))
}

func TestSharing_AddIsIdempotent(t *testing.T) {
	sh := Sharing{}
	g := Grant{Action: ActionEdit, Principal: PrincipalGroup, PrincipalID: groupB}
	assert.True(t, sh.Add(g))
	assert.False(t, sh.Add(g))
	assert.Equal(t, []string{groupB}, sh.EditGroups)
	assert.Len(t, sh.Grants(), 1)
	assert.False(t, sh.Remove(Grant{Action: ActionView, Principal: PrincipalGroup, PrincipalID: groupB}))
}

func TestGrantValidate(t *testing.T) {
	assert.NoError(t, Grant{Action: ActionView, Principal: PrincipalUser, PrincipalID: "u"}.Validate())
	assert.ErrorIs(t, Grant{Action: "delete", Principal: PrincipalUser, PrincipalID: "u"}.Validate(), ErrInvalidGrant)
	assert.ErrorIs(t, Grant{Action: ActionView, Principal: "robot", PrincipalID: "u"}.Validate(), ErrInvalidGrant)
	assert.ErrorIs(t, Grant{Action: ActionView, Principal: PrincipalUser}.Validate(), ErrInvalidGrant)
}
