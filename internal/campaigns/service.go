package campaigns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"soapbox/internal/access"
	"soapbox/internal/audit"
	"soapbox/internal/identity"
	"soapbox/internal/regions"
	"soapbox/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrInvalidArgument  = errors.New("campaigns: invalid argument")
	ErrInvalidReference = errors.New("campaigns: invalid reference")
	ErrNotShareable     = errors.New("campaigns: kind is not shareable")

	ErrObjectNotFound = fmt.Errorf("campaigns: object %w", access.ErrNotFound)
)

// Repository stores every kind in one shape. Implementations must return
// ErrObjectNotFound when (kind, id) does not exist.
type Repository interface {
	Insert(ctx context.Context, r Record) error
	Get(ctx context.Context, kind Kind, id string) (Record, error)
	// Update locks the record, passes fn a copy and stores what fn returns.
	// If fn fails nothing is written.
	Update(ctx context.Context, kind Kind, id string, fn func(Record) (Record, error)) (Record, error)
	// List returns active records ordered by name then id.
	List(ctx context.Context, kind Kind, opts ListOptions) ([]Record, error)
}

// Directory is the slice of identity the campaign service needs.
type Directory interface {
	GetUser(ctx context.Context, id string) (identity.User, error)
	GetGroup(ctx context.Context, id string) (identity.Group, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

// RegionCatalog resolves campaign target regions.
type RegionCatalog interface {
	GetRegion(ctx context.Context, id string) (regions.Region, error)
}

type Service struct {
	repo    Repository
	dir     Directory
	regions RegionCatalog
	audit   *audit.Service
	clock   func() time.Time
}

func NewService(repo Repository, dir Directory, rc RegionCatalog, a *audit.Service) *Service {
	return &Service{repo: repo, dir: dir, regions: rc, audit: a, clock: time.Now}
}

// ---- prompts ----

func (s *Service) CreatePrompt(ctx context.Context, sub access.Subject, p Placement, c PromptContent) (Prompt, error) {
	if err := s.validatePrompt(c); err != nil {
		return Prompt{}, err
	}
	r, err := s.create(ctx, sub, KindPrompt, p, c)
	if err != nil {
		return Prompt{}, err
	}
	return toPrompt(r)
}

func (s *Service) GetPrompt(ctx context.Context, sub access.Subject, id string) (Prompt, error) {
	r, err := s.load(ctx, sub, KindPrompt, id, access.ActionView)
	if err != nil {
		return Prompt{}, err
	}
	return toPrompt(r)
}

func (s *Service) UpdatePrompt(ctx context.Context, sub access.Subject, id, name string, c PromptContent) (Prompt, error) {
	if err := s.validatePrompt(c); err != nil {
		return Prompt{}, err
	}
	r, err := s.replace(ctx, sub, KindPrompt, id, name, c)
	if err != nil {
		return Prompt{}, err
	}
	return toPrompt(r)
}

func (s *Service) ListPrompts(ctx context.Context, sub access.Subject, opts ListOptions) ([]Prompt, error) {
	return list(ctx, s, sub, KindPrompt, opts, toPrompt)
}

func (s *Service) validatePrompt(c PromptContent) error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("%w: prompt text required", ErrInvalidArgument)
	}
	return nil
}

// ---- questions ----

func (s *Service) CreateQuestion(ctx context.Context, sub access.Subject, p Placement, c QuestionContent) (Question, error) {
	if err := s.validateQuestion(ctx, sub, c); err != nil {
		return Question{}, err
	}
	r, err := s.create(ctx, sub, KindQuestion, p, c)
	if err != nil {
		return Question{}, err
	}
	return toQuestion(r)
}

func (s *Service) GetQuestion(ctx context.Context, sub access.Subject, id string) (Question, error) {
	r, err := s.load(ctx, sub, KindQuestion, id, access.ActionView)
	if err != nil {
		return Question{}, err
	}
	return toQuestion(r)
}

func (s *Service) UpdateQuestion(ctx context.Context, sub access.Subject, id, name string, c QuestionContent) (Question, error) {
	if err := s.validateQuestion(ctx, sub, c); err != nil {
		return Question{}, err
	}
	r, err := s.replace(ctx, sub, KindQuestion, id, name, c)
	if err != nil {
		return Question{}, err
	}
	return toQuestion(r)
}

func (s *Service) ListQuestions(ctx context.Context, sub access.Subject, opts ListOptions) ([]Question, error) {
	return list(ctx, s, sub, KindQuestion, opts, toQuestion)
}

func (s *Service) validateQuestion(ctx context.Context, sub access.Subject, c QuestionContent) error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("%w: question text required", ErrInvalidArgument)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: question type %q", ErrInvalidArgument, c.Type)
	}
	if c.Type.Choice() && len(c.PromptIDs) == 0 {
		return fmt.Errorf("%w: %s question needs prompts", ErrInvalidArgument, c.Type)
	}
	return s.checkRefs(ctx, sub, KindPrompt, c.PromptIDs)
}

// ---- scripts ----

func (s *Service) CreateScript(ctx context.Context, sub access.Subject, p Placement, c ScriptContent) (Script, error) {
	if err := s.checkRefs(ctx, sub, KindQuestion, c.QuestionIDs); err != nil {
		return Script{}, err
	}
	r, err := s.create(ctx, sub, KindScript, p, c)
	if err != nil {
		return Script{}, err
	}
	return toScript(r)
}

func (s *Service) GetScript(ctx context.Context, sub access.Subject, id string) (Script, error) {
	r, err := s.load(ctx, sub, KindScript, id, access.ActionView)
	if err != nil {
		return Script{}, err
	}
	return toScript(r)
}

func (s *Service) UpdateScript(ctx context.Context, sub access.Subject, id, name string, c ScriptContent) (Script, error) {
	if err := s.checkRefs(ctx, sub, KindQuestion, c.QuestionIDs); err != nil {
		return Script{}, err
	}
	r, err := s.replace(ctx, sub, KindScript, id, name, c)
	if err != nil {
		return Script{}, err
	}
	return toScript(r)
}

func (s *Service) ListScripts(ctx context.Context, sub access.Subject, opts ListOptions) ([]Script, error) {
	return list(ctx, s, sub, KindScript, opts, toScript)
}

// ---- campaigns ----

func (s *Service) CreateCampaign(ctx context.Context, sub access.Subject, p Placement, c CampaignContent) (Campaign, error) {
	if err := s.validateCampaign(ctx, sub, c); err != nil {
		return Campaign{}, err
	}
	r, err := s.create(ctx, sub, KindCampaign, p, c)
	if err != nil {
		return Campaign{}, err
	}
	return toCampaign(r)
}

func (s *Service) GetCampaign(ctx context.Context, sub access.Subject, id string) (Campaign, error) {
	r, err := s.load(ctx, sub, KindCampaign, id, access.ActionView)
	if err != nil {
		return Campaign{}, err
	}
	return toCampaign(r)
}

func (s *Service) UpdateCampaign(ctx context.Context, sub access.Subject, id, name string, c CampaignContent) (Campaign, error) {
	if err := s.validateCampaign(ctx, sub, c); err != nil {
		return Campaign{}, err
	}
	r, err := s.replace(ctx, sub, KindCampaign, id, name, c)
	if err != nil {
		return Campaign{}, err
	}
	return toCampaign(r)
}

func (s *Service) ListCampaigns(ctx context.Context, sub access.Subject, opts ListOptions) ([]Campaign, error) {
	return list(ctx, s, sub, KindCampaign, opts, toCampaign)
}

func (s *Service) validateCampaign(ctx context.Context, sub access.Subject, c CampaignContent) error {
	if c.ScriptID == "" {
		return fmt.Errorf("%w: script_id required", ErrInvalidArgument)
	}
	if err := s.checkRefs(ctx, sub, KindScript, []string{c.ScriptID}); err != nil {
		return err
	}
	if err := uniqueIDs(c.RegionIDs); err != nil {
		return err
	}
	for _, id := range c.RegionIDs {
		if _, err := s.regions.GetRegion(ctx, id); err != nil {
			if errors.Is(err, access.ErrNotFound) {
				return fmt.Errorf("%w: region %s", ErrInvalidReference, id)
			}
			return err
		}
	}
	return nil
}

// ---- lifecycle shared by every kind ----

// Check reports whether sub may perform a on the object.
func (s *Service) Check(ctx context.Context, sub access.Subject, kind Kind, id string, a access.Action) error {
	_, err := s.load(ctx, sub, kind, id, a)
	return err
}

// Deactivate soft-deletes the object. Deactivating an inactive object the
// subject could restore is a no-op.
func (s *Service) Deactivate(ctx context.Context, sub access.Subject, kind Kind, id string) error {
	changed := false
	r, err := s.repo.Update(ctx, kind, id, func(r Record) (Record, error) {
		if !r.Active && access.CanRestore(sub, r.Ownership) {
			return r, nil
		}
		if err := access.Check(sub, r.AccessPolicy(), access.ActionEdit); err != nil {
			return Record{}, err
		}
		r.Active = false
		r.Touch(s.now())
		changed = true
		return r, nil
	})
	if err != nil {
		return err
	}
	if changed {
		logger.From(ctx).Info("object deactivated", "kind", kind, "id", id, "actor_id", sub.UserID)
		s.audit.Log(ctx, audit.Event{Type: audit.EventTypeDeactivated, ActorUserID: sub.UserID, ObjectKind: string(kind), ObjectID: id, GroupID: r.GroupID})
	}
	return nil
}

// Restore reactivates a soft-deleted object. Only the owner or an administrator of the owning group may.
func (s *Service) Restore(ctx context.Context, sub access.Subject, kind Kind, id string) error {
	changed := false
	r, err := s.repo.Update(ctx, kind, id, func(r Record) (Record, error) {
		if !access.CanRestore(sub, r.Ownership) {
			return Record{}, deny(r)
		}
		if r.Active {
			return r, nil
		}
		r.Active = true
		r.Touch(s.now())
		changed = true
		return r, nil
	})
	if err != nil {
		return err
	}
	if changed {
		logger.From(ctx).Info("object restored", "kind", kind, "id", id, "actor_id", sub.UserID)
		s.audit.Log(ctx, audit.Event{Type: audit.EventTypeRestored, ActorUserID: sub.UserID, ObjectKind: string(kind), ObjectID: id, GroupID: r.GroupID})
	}
	return nil
}

// Transfer reassigns ownership. An empty groupID keeps the current owning group.
// The new owner must be a member of the new owning group. Inactive objects must be
// restored first.
func (s *Service) Transfer(ctx context.Context, sub access.Subject, kind Kind, id, ownerID, groupID string) (Header, error) {
	if ownerID == "" {
		return Header{}, fmt.Errorf("%w: owner_id required", ErrInvalidArgument)
	}
	if _, err := s.dir.GetUser(ctx, ownerID); err != nil {
		return Header{}, s.refErr("user", ownerID, err)
	}

	var prev access.Ownership
	r, err := s.repo.Update(ctx, kind, id, func(r Record) (Record, error) {
		if err := transferable(sub, r.Ownership); err != nil {
			return Record{}, err
		}
		prev = r.Ownership
		target := groupID
		if target == "" {
			target = r.GroupID
		}
		ok, err := s.dir.IsMember(ctx, target, ownerID)
		if err != nil {
			return Record{}, s.refErr("group", target, err)
		}
		if !ok {
			return Record{}, fmt.Errorf("%w: new owner is not a member of group %s", ErrInvalidArgument, target)
		}
		r.OwnerID = ownerID
		r.GroupID = target
		r.Touch(s.now())
		return r, nil
	})
	if err != nil {
		return Header{}, err
	}

	logger.From(ctx).Info("ownership transferred", "kind", kind, "id", id, "owner_id", r.OwnerID, "group_id", r.GroupID)
	s.audit.Log(ctx, audit.Event{
		Type:        audit.EventTypeOwnershipTransferred,
		ActorUserID: sub.UserID,
		ObjectKind:  string(kind),
		ObjectID:    id,
		GroupID:     prev.GroupID,
		Metadata: audit.Meta(map[string]string{
			"from_owner": prev.OwnerID, "from_group": prev.GroupID,
			"to_owner": r.OwnerID, "to_group": r.GroupID,
		}),
	})
	return r.Header, nil
}

// Share adds an allow-list entry. The subject needs EDIT on the object when the change is applied.
func (s *Service) Share(ctx context.Context, sub access.Subject, kind Kind, id string, g access.Grant) (access.Sharing, error) {
	return s.changeSharing(ctx, sub, kind, id, g, true)
}

// Unshare removes an allow-list entry. Removing an absent entry is a no-op.
func (s *Service) Unshare(ctx context.Context, sub access.Subject, kind Kind, id string, g access.Grant) (access.Sharing, error) {
	return s.changeSharing(ctx, sub, kind, id, g, false)
}

func (s *Service) changeSharing(ctx context.Context, sub access.Subject, kind Kind, id string, g access.Grant, add bool) (access.Sharing, error) {
	if !kind.Shareable() {
		return access.Sharing{}, ErrNotShareable
	}
	if err := g.Validate(); err != nil {
		return access.Sharing{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if add {
		if err := s.principalExists(ctx, g); err != nil {
			return access.Sharing{}, err
		}
	}

	changed := false
	r, err := s.repo.Update(ctx, kind, id, func(r Record) (Record, error) {
		if err := access.Check(sub, r.AccessPolicy(), access.ActionEdit); err != nil {
			return Record{}, err
		}
		sh := access.Sharing{}
		if r.Sharing != nil {
			sh = r.Sharing.Clone()
		}
		if add {
			changed = sh.Add(g)
		} else {
			changed = sh.Remove(g)
		}
		if !changed {
			return r, nil
		}
		r.Sharing = &sh
		r.Touch(s.now())
		return r, nil
	})
	if err != nil {
		return access.Sharing{}, err
	}

	if changed {
		op := "unshare"
		if add {
			op = "share"
		}
		logger.From(ctx).Info("sharing changed", "kind", kind, "id", id, "op", op, "action", g.Action, "principal", g.Principal, "principal_id", g.PrincipalID)
		s.audit.Log(ctx, audit.Event{
			Type:        audit.EventTypeSharingChanged,
			ActorUserID: sub.UserID,
			ObjectKind:  string(kind),
			ObjectID:    id,
			GroupID:     r.GroupID,
			Message:     op,
			Metadata:    audit.Meta(g),
		})
	}
	if r.Sharing == nil {
		return access.Sharing{}, nil
	}
	return r.Sharing.Clone(), nil
}

func (s *Service) principalExists(ctx context.Context, g access.Grant) error {
	var err error
	switch g.Principal {
	case access.PrincipalUser:
		_, err = s.dir.GetUser(ctx, g.PrincipalID)
	case access.PrincipalGroup:
		_, err = s.dir.GetGroup(ctx, g.PrincipalID)
	}
	if err != nil {
		return s.refErr(string(g.Principal), g.PrincipalID, err)
	}
	return nil
}

// ---- internals ----

func (s *Service) now() time.Time { return s.clock().UTC() }

func (s *Service) create(ctx context.Context, sub access.Subject, kind Kind, p Placement, content any) (Record, error) {
	if sub.IsAnonymous() {
		return Record{}, access.ErrPermissionDenied
	}
	name := strings.TrimSpace(p.Name)
	if kind.Shareable() && name == "" {
		return Record{}, fmt.Errorf("%w: name required", ErrInvalidArgument)
	}
	if p.Visibility != "" && !p.Visibility.Valid() {
		return Record{}, fmt.Errorf("%w: visibility %q", ErrInvalidArgument, p.Visibility)
	}
	if p.GroupID == "" {
		return Record{}, fmt.Errorf("%w: group_id required", ErrInvalidArgument)
	}
	// Objects are created inside a group the creator belongs to.
	if !sub.MemberOf(p.GroupID) {
		return Record{}, access.ErrPermissionDenied
	}

	body, err := json.Marshal(content)
	if err != nil {
		return Record{}, fmt.Errorf("campaigns: encode %s: %w", kind, err)
	}
	r := Record{
		Header: Header{
			ID:        uuid.NewString(),
			Kind:      kind,
			Name:      name,
			Ownership: access.NewOwnership(sub.UserID, p.GroupID, p.Visibility, s.now()),
		},
		Content: body,
	}
	if kind.Shareable() {
		r.Sharing = &access.Sharing{}
	}
	if err := s.repo.Insert(ctx, r); err != nil {
		return Record{}, err
	}
	logger.From(ctx).Info("object created", "kind", kind, "id", r.ID, "owner_id", r.OwnerID, "group_id", r.GroupID)
	return r, nil
}

func (s *Service) load(ctx context.Context, sub access.Subject, kind Kind, id string, a access.Action) (Record, error) {
	if id == "" {
		return Record{}, ErrObjectNotFound
	}
	r, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		return Record{}, err
	}
	if err := access.Check(sub, r.AccessPolicy(), a); err != nil {
		return Record{}, err
	}
	return r, nil
}

// replace swaps the name and content of an object the subject may edit.
func (s *Service) replace(ctx context.Context, sub access.Subject, kind Kind, id, name string, content any) (Record, error) {
	name = strings.TrimSpace(name)
	if kind.Shareable() && name == "" {
		return Record{}, fmt.Errorf("%w: name required", ErrInvalidArgument)
	}
	body, err := json.Marshal(content)
	if err != nil {
		return Record{}, fmt.Errorf("campaigns: encode %s: %w", kind, err)
	}
	return s.repo.Update(ctx, kind, id, func(r Record) (Record, error) {
		if err := access.Check(sub, r.AccessPolicy(), access.ActionEdit); err != nil {
			return Record{}, err
		}
		r.Name = name
		r.Content = body
		r.Touch(s.now())
		return r, nil
	})
}

// checkRefs verifies that every id names an active object of kind the subject can view.
func (s *Service) checkRefs(ctx context.Context, sub access.Subject, kind Kind, ids []string) error {
	if err := uniqueIDs(ids); err != nil {
		return err
	}
	for _, id := range ids {
		r, err := s.load(ctx, sub, kind, id, access.ActionView)
		if err != nil {
			return s.refErr(string(kind), id, err)
		}
		if !r.Active {
			return fmt.Errorf("%w: %s %s is inactive", ErrInvalidReference, kind, id)
		}
	}
	return nil
}

func (s *Service) refErr(what, id string, err error) error {
	if errors.Is(err, access.ErrNotFound) || errors.Is(err, access.ErrPermissionDenied) {
		return fmt.Errorf("%w: %s %s", ErrInvalidReference, what, id)
	}
	return err
}

func list[T any](ctx context.Context, s *Service, sub access.Subject, kind Kind, opts ListOptions, conv func(Record) (T, error)) ([]T, error) {
	rows, err := s.repo.List(ctx, kind, opts)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if !access.Can(sub, r.AccessPolicy(), access.ActionView) {
			continue
		}
		v, err := conv(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// deny picks the error for a subject without rights on r: inactive objects are not disclosed.
// transferable gates an ownership change. Inactive objects are frozen: the owner
// and group administrators are denied, everyone else does not see the object.
func transferable(sub access.Subject, o access.Ownership) error {
	switch {
	case !o.Active && access.CanTransfer(sub, o):
		return access.ErrPermissionDenied
	case !o.Active:
		return access.ErrNotFound
	case !access.CanTransfer(sub, o):
		return access.ErrPermissionDenied
	}
	return nil
}

func deny(r Record) error {
	if !r.Active {
		return access.ErrNotFound
	}
	return access.ErrPermissionDenied
}

func uniqueIDs(ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty id", ErrInvalidArgument)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidArgument, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
