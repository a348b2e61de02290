package campaigns

import (
	"context"
	"testing"

	"soapbox/internal/access"
	"soapbox/internal/audit"
	"soapbox/internal/identity"
	"soapbox/internal/rbac"
	"soapbox/internal/regions"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ctx     context.Context
	ids     *identity.Service
	regions *regions.Service
	audit   *audit.MemoryRepo
	svc     *Service

	group              identity.Group
	owner, admin, mate identity.User
	outsider           identity.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	ids := identity.NewService(identity.NewMemoryRepo())
	rs := regions.NewService(regions.NewMemoryRepo())
	auditRepo := audit.NewMemoryRepo()

	f := &fixture{
		ctx:     ctx,
		ids:     ids,
		regions: rs,
		audit:   auditRepo,
		svc:     NewService(NewMemoryRepo(), ids, rs, audit.NewService(auditRepo)),
	}

	user := func(name string) identity.User {
		u, err := ids.CreateUser(ctx, identity.NewUser{FullName: name, Username: name, Password: "pw"})
		require.NoError(t, err)
		return u
	}
	f.admin = user("admin")
	f.owner = user("owner")
	f.mate = user("mate")
	f.outsider = user("outsider")

	g, err := ids.CreateGroup(ctx, f.admin.ID, identity.NewGroup{Name: "Bankers", URL: "bankers"})
	require.NoError(t, err)
	for _, u := range []identity.User{f.owner, f.mate} {
		_, err = ids.AddRole(ctx, f.admin.ID, g.ID, u.ID, rbac.RoleMember)
		require.NoError(t, err)
	}
	f.group = g
	return f
}

func (f *fixture) subject(t *testing.T, u identity.User) access.Subject {
	t.Helper()
	s, err := f.ids.Subject(f.ctx, u.ID)
	require.NoError(t, err)
	return s
}

func (f *fixture) prompt(t *testing.T, text string, vis access.Visibility) Prompt {
	t.Helper()
	p, err := f.svc.CreatePrompt(f.ctx, f.subject(t, f.owner), Placement{Name: text, GroupID: f.group.ID, Visibility: vis}, PromptContent{Text: text})
	require.NoError(t, err)
	return p
}

func TestCreate_SetsOwnershipDefaults(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "Yes", "")

	assert.True(t, p.Active)
	assert.Equal(t, f.owner.ID, p.OwnerID)
	assert.Equal(t, f.group.ID, p.GroupID)
	assert.Equal(t, access.VisibilityGroup, p.Visibility)
	assert.False(t, p.UpdatedAt.IsZero())
	assert.Equal(t, KindPrompt, p.Kind)
}

func TestCreate_RequiresMembershipOfOwningGroup(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreatePrompt(f.ctx, f.subject(t, f.outsider), Placement{Name: "x", GroupID: f.group.ID}, PromptContent{Text: "x"})
	assert.ErrorIs(t, err, access.ErrPermissionDenied)

	_, err = f.svc.CreatePrompt(f.ctx, access.Anonymous(), Placement{Name: "x", GroupID: f.group.ID}, PromptContent{Text: "x"})
	assert.ErrorIs(t, err, access.ErrPermissionDenied)
}

func TestQuestion_ReferencesMustExist(t *testing.T) {
	f := newFixture(t)
	owner := f.subject(t, f.owner)
	yes := f.prompt(t, "Yes", "")
	no := f.prompt(t, "No", "")

	q, err := f.svc.CreateQuestion(f.ctx, owner, Placement{GroupID: f.group.ID}, QuestionContent{
		Text: "Will you vote?", Type: QuestionRadio, PromptIDs: []string{yes.ID, no.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{yes.ID, no.ID}, q.PromptIDs)

	_, err = f.svc.CreateQuestion(f.ctx, owner, Placement{GroupID: f.group.ID}, QuestionContent{
		Text: "Bad", Type: QuestionRadio, PromptIDs: []string{"missing"},
	})
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = f.svc.CreateQuestion(f.ctx, owner, Placement{GroupID: f.group.ID}, QuestionContent{
		Text: "Pick one", Type: QuestionDropdown,
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.CreateQuestion(f.ctx, owner, Placement{GroupID: f.group.ID}, QuestionContent{
		Text: "Anything else?", Type: QuestionLongForm,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Deactivate(f.ctx, owner, KindPrompt, no.ID))
	_, err = f.svc.CreateQuestion(f.ctx, owner, Placement{GroupID: f.group.ID}, QuestionContent{
		Text: "Again", Type: QuestionRadio, PromptIDs: []string{no.ID},
	})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestCampaign_ScriptAndRegions(t *testing.T) {
	f := newFixture(t)
	owner := f.subject(t, f.owner)

	script, err := f.svc.CreateScript(f.ctx, owner, Placement{Name: "GOTV", GroupID: f.group.ID}, ScriptContent{})
	require.NoError(t, err)
	region, err := f.regions.CreateRegion(f.ctx, regions.NewRegion{Name: "Manhattan", State: "NY"})
	require.NoError(t, err)

	c, err := f.svc.CreateCampaign(f.ctx, owner, Placement{Name: "Fall", GroupID: f.group.ID}, CampaignContent{
		ScriptID: script.ID, RegionIDs: []string{region.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, script.ID, c.ScriptID)

	_, err = f.svc.CreateCampaign(f.ctx, owner, Placement{Name: "Bad", GroupID: f.group.ID}, CampaignContent{
		ScriptID: script.ID, RegionIDs: []string{"nowhere"},
	})
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = f.svc.CreateCampaign(f.ctx, owner, Placement{Name: "Bad", GroupID: f.group.ID}, CampaignContent{
		ScriptID: script.ID, RegionIDs: []string{region.ID, region.ID},
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	got, err := f.svc.GetCampaign(f.ctx, f.subject(t, f.mate), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fall", got.Name)
}

func TestDeactivate_HidesFromOthers(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "Maybe", access.VisibilityPublic)

	mate := f.subject(t, f.mate)
	_, err := f.svc.GetPrompt(f.ctx, mate, p.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Deactivate(f.ctx, f.subject(t, f.owner), KindPrompt, p.ID))

	_, err = f.svc.GetPrompt(f.ctx, mate, p.ID)
	assert.ErrorIs(t, err, access.ErrNotFound)
	_, err = f.svc.GetPrompt(f.ctx, access.Anonymous(), p.ID)
	assert.ErrorIs(t, err, access.ErrNotFound)

	got, err := f.svc.GetPrompt(f.ctx, f.subject(t, f.admin), p.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	list, err := f.svc.ListPrompts(f.ctx, f.subject(t, f.owner), ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.UpdatePrompt(f.ctx, f.subject(t, f.owner), p.ID, "Maybe", PromptContent{Text: "Perhaps"})
	assert.ErrorIs(t, err, access.ErrPermissionDenied)

	assert.ErrorIs(t, f.svc.Restore(f.ctx, mate, KindPrompt, p.ID), access.ErrNotFound)
	require.NoError(t, f.svc.Restore(f.ctx, f.subject(t, f.admin), KindPrompt, p.ID))

	_, err = f.svc.GetPrompt(f.ctx, mate, p.ID)
	require.NoError(t, err)

	types := []audit.EventType{}
	for _, e := range f.audit.Events() {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, audit.EventTypeDeactivated)
	assert.Contains(t, types, audit.EventTypeRestored)
}

func TestUpdate_RequiresEdit(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "Yes", "")

	_, err := f.svc.UpdatePrompt(f.ctx, f.subject(t, f.mate), p.ID, "Yes", PromptContent{Text: "Yes!"})
	assert.ErrorIs(t, err, access.ErrPermissionDenied)

	got, err := f.svc.UpdatePrompt(f.ctx, f.subject(t, f.admin), p.ID, "Yes", PromptContent{Text: "Yes!"})
	require.NoError(t, err)
	assert.Equal(t, "Yes!", got.Text)
	assert.False(t, got.UpdatedAt.Before(p.UpdatedAt))
}

func TestShare_GrantsAndRevokes(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "Secret", access.VisibilityPrivate)
	owner := f.subject(t, f.owner)
	outsider := f.subject(t, f.outsider)

	_, err := f.svc.GetPrompt(f.ctx, outsider, p.ID)
	assert.ErrorIs(t, err, access.ErrPermissionDenied)

	grant := access.Grant{Action: access.ActionEdit, Principal: access.PrincipalUser, PrincipalID: f.outsider.ID}
	sh, err := f.svc.Share(f.ctx, owner, KindPrompt, p.ID, grant)
	require.NoError(t, err)
	assert.Equal(t, []string{f.outsider.ID}, sh.EditUsers)

	_, err = f.svc.UpdatePrompt(f.ctx, outsider, p.ID, "Secret", PromptContent{Text: "shared"})
	require.NoError(t, err)

	// an editor may share further
	_, err = f.svc.Share(f.ctx, outsider, KindPrompt, p.ID, access.Grant{Action: access.ActionView, Principal: access.PrincipalGroup, PrincipalID: f.group.ID})
	require.NoError(t, err)

	sh, err = f.svc.Unshare(f.ctx, owner, KindPrompt, p.ID, grant)
	require.NoError(t, err)
	assert.Empty(t, sh.EditUsers)
	assert.Equal(t, []string{f.group.ID}, sh.ViewGroups)

	_, err = f.svc.UpdatePrompt(f.ctx, outsider, p.ID, "Secret", PromptContent{Text: "again"})
	assert.ErrorIs(t, err, access.ErrPermissionDenied)
	assert.NoError(t, f.svc.Check(f.ctx, f.subject(t, f.mate), KindPrompt, p.ID, access.ActionView))
}

func TestShare_Validation(t *testing.T) {
	f := newFixture(t)
	owner := f.subject(t, f.owner)
	p := f.prompt(t, "Yes", "")

	_, err := f.svc.Share(f.ctx, owner, KindPrompt, p.ID, access.Grant{Action: access.ActionView, Principal: access.PrincipalUser, PrincipalID: "ghost"})
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = f.svc.Share(f.ctx, owner, KindPrompt, p.ID, access.Grant{Action: "delete", Principal: access.PrincipalUser, PrincipalID: f.mate.ID})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	q, err := f.svc.CreateQuestion(f.ctx, owner, Placement{GroupID: f.group.ID}, QuestionContent{Text: "Notes", Type: QuestionShortForm})
	require.NoError(t, err)
	_, err = f.svc.Share(f.ctx, owner, KindQuestion, q.ID, access.Grant{Action: access.ActionView, Principal: access.PrincipalUser, PrincipalID: f.mate.ID})
	assert.ErrorIs(t, err, ErrNotShareable)

	_, err = f.svc.Share(f.ctx, f.subject(t, f.mate), KindPrompt, p.ID, access.Grant{Action: access.ActionView, Principal: access.PrincipalUser, PrincipalID: f.outsider.ID})
	assert.ErrorIs(t, err, access.ErrPermissionDenied)
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "Yes", "")

	_, err := f.svc.Transfer(f.ctx, f.subject(t, f.mate), KindPrompt, p.ID, f.mate.ID, "")
	assert.ErrorIs(t, err, access.ErrPermissionDenied)

	_, err = f.svc.Transfer(f.ctx, f.subject(t, f.owner), KindPrompt, p.ID, f.outsider.ID, "")
	assert.ErrorIs(t, err, ErrInvalidArgument, "new owner must belong to the owning group")

	h, err := f.svc.Transfer(f.ctx, f.subject(t, f.admin), KindPrompt, p.ID, f.mate.ID, "")
	require.NoError(t, err)
	assert.Equal(t, f.mate.ID, h.OwnerID)
	assert.Equal(t, f.group.ID, h.GroupID)

	// the previous owner is now an ordinary member
	_, err = f.svc.UpdatePrompt(f.ctx, f.subject(t, f.owner), p.ID, "Yes", PromptContent{Text: "mine?"})
	assert.ErrorIs(t, err, access.ErrPermissionDenied)

	evs := f.audit.Events()
	require.NotEmpty(t, evs)
	assert.Equal(t, audit.EventTypeOwnershipTransferred, evs[len(evs)-1].Type)
}

func TestTransfer_InactiveObjectIsFrozen(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "Yes", "")
	owner := f.subject(t, f.owner)
	require.NoError(t, f.svc.Deactivate(f.ctx, owner, KindPrompt, p.ID))

	_, err := f.svc.Transfer(f.ctx, owner, KindPrompt, p.ID, f.mate.ID, "")
	assert.ErrorIs(t, err, access.ErrPermissionDenied)
	_, err = f.svc.Transfer(f.ctx, f.subject(t, f.admin), KindPrompt, p.ID, f.mate.ID, "")
	assert.ErrorIs(t, err, access.ErrPermissionDenied)
	_, err = f.svc.Transfer(f.ctx, f.subject(t, f.mate), KindPrompt, p.ID, f.mate.ID, "")
	assert.ErrorIs(t, err, access.ErrNotFound)

	got, err := f.svc.GetPrompt(f.ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, f.owner.ID, got.OwnerID)
	assert.False(t, got.Active)

	require.NoError(t, f.svc.Restore(f.ctx, owner, KindPrompt, p.ID))
	h, err := f.svc.Transfer(f.ctx, owner, KindPrompt, p.ID, f.mate.ID, "")
	require.NoError(t, err)
	assert.Equal(t, f.mate.ID, h.OwnerID)
}

func TestList_FiltersByVisibility(t *testing.T) {
	f := newFixture(t)
	f.prompt(t, "b-group", access.VisibilityGroup)
	f.prompt(t, "a-public", access.VisibilityPublic)
	f.prompt(t, "c-private", access.VisibilityPrivate)

	names := func(s access.Subject) []string {
		ps, err := f.svc.ListPrompts(f.ctx, s, ListOptions{})
		require.NoError(t, err)
		out := []string{}
		for _, p := range ps {
			out = append(out, p.Name)
		}
		return out
	}

	assert.Equal(t, []string{"a-public", "b-group", "c-private"}, names(f.subject(t, f.owner)))
	assert.Equal(t, []string{"a-public", "b-group"}, names(f.subject(t, f.mate)))
	assert.Equal(t, []string{"a-public"}, names(access.Anonymous()))
}
