package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"soapbox/internal/access"
	"soapbox/internal/audit"
	"soapbox/internal/rbac"
	"soapbox/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrDuplicateUsername  = errors.New("identity: username already taken")
	ErrDuplicateURL       = errors.New("identity: group url already taken")
	ErrInvariantViolation = errors.New("identity: group must keep at least one administrator")
	ErrInvalidArgument    = errors.New("identity: invalid argument")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	ErrUserNotFound  = fmt.Errorf("identity: user %w", access.ErrNotFound)
	ErrGroupNotFound = fmt.Errorf("identity: group %w", access.ErrNotFound)
)

// Repository is the persistence contract for users, groups and memberships.
type Repository interface {
	// CreateUser fails with ErrDuplicateUsername when the username is taken.
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)

	// CreateGroup stores g and its initial membership in one unit.
	// It fails with ErrDuplicateURL when the url is taken.
	CreateGroup(ctx context.Context, g Group, m Membership) error
	GetGroup(ctx context.Context, id string) (Group, Membership, error)

	// UpdateMembership serializes membership changes per group. fn receives a copy
	// of the current membership and returns the desired one; if fn fails nothing is written.
	UpdateMembership(ctx context.Context, groupID string, now time.Time, fn func(Membership) (Membership, error)) (Group, Membership, error)

	// RolesOf returns every group role held by the user, read in one snapshot.
	RolesOf(ctx context.Context, userID string) (map[string]rbac.Roles, error)
}

// Service manages users, groups and group roles.
type Service struct {
	repo  Repository
	audit *audit.Service
	clock func() time.Time
	cost  int
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now, cost: bcrypt.DefaultCost}
}

// WithAudit records role changes to a.
func (s *Service) WithAudit(a *audit.Service) *Service {
	s.audit = a
	return s
}

func (s *Service) logRoleChange(ctx context.Context, actorID, groupID, userID string, role rbac.Role, op string) {
	s.audit.Log(ctx, audit.Event{
		Type:        audit.EventTypeRoleChanged,
		ActorUserID: actorID,
		ObjectKind:  "group",
		ObjectID:    groupID,
		GroupID:     groupID,
		Message:     op + " " + string(role),
		Metadata:    audit.Meta(map[string]string{"user_id": userID, "role": string(role), "op": op}),
	})
}

func normalizeUsername(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (s *Service) CreateUser(ctx context.Context, in NewUser) (User, error) {
	username := normalizeUsername(in.Username)
	fullName := strings.TrimSpace(in.FullName)
	if username == "" || fullName == "" || in.Password == "" {
		return User{}, ErrInvalidArgument
	}
	// bcrypt silently truncates past 72 bytes; refuse instead.
	if len(in.Password) > 72 {
		return User{}, ErrInvalidArgument
	}
	state, ok := NormalizeState(in.State)
	if !ok {
		return User{}, fmt.Errorf("%w: unknown state %q", ErrInvalidArgument, in.State)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("identity: hash password: %w", err)
	}

	now := s.clock().UTC()
	u := User{
		ID:           uuid.NewString(),
		FullName:     fullName,
		Username:     username,
		PasswordHash: string(hash),
		AccountSID:   strings.TrimSpace(in.AccountSID),
		AuthToken:    in.AuthToken,
		ProfileText:  in.ProfileText,
		City:         strings.TrimSpace(in.City),
		State:        state,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	logger.From(ctx).Info("user created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrUserNotFound
	}
	return s.repo.GetUser(ctx, id)
}

// Authenticate checks a username/password pair.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.repo.GetUserByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// CreateGroup creates a group whose creator is its first member and administrator.
func (s *Service) CreateGroup(ctx context.Context, creatorID string, in NewGroup) (Group, error) {
	name := strings.TrimSpace(in.Name)
	url := strings.TrimSpace(in.URL)
	if name == "" || url == "" {
		return Group{}, ErrInvalidArgument
	}
	if _, err := s.GetUser(ctx, creatorID); err != nil {
		return Group{}, err
	}

	now := s.clock().UTC()
	g := Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: in.Description,
		URL:         url,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m := Membership{creatorID: rbac.RolesOf(rbac.RoleMember, rbac.RoleAdministrator)}
	if err := s.repo.CreateGroup(ctx, g, m); err != nil {
		return Group{}, err
	}
	m.apply(&g)
	logger.From(ctx).Info("group created", "group_id", g.ID, "creator_id", creatorID)
	return g, nil
}

func (s *Service) GetGroup(ctx context.Context, id string) (Group, error) {
	if id == "" {
		return Group{}, ErrGroupNotFound
	}
	g, m, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return Group{}, err
	}
	m.apply(&g)
	return g, nil
}

// AddRole grants role in groupID to userID.
// Moderator and administrator grants require the actor to administer the group;
// member grants require administrator or moderator. Elevated roles imply membership.
func (s *Service) AddRole(ctx context.Context, actorID, groupID, userID string, role rbac.Role) (Group, error) {
	if _, ok := rbac.ParseRole(string(role)); !ok || actorID == "" {
		return Group{}, ErrInvalidArgument
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return Group{}, err
	}

	var changed bool
	g, m, err := s.repo.UpdateMembership(ctx, groupID, s.clock().UTC(), func(m Membership) (Membership, error) {
		actor := m[actorID]
		switch {
		case role.Elevated() && !actor.Has(rbac.RoleAdministrator):
			return nil, access.ErrPermissionDenied
		case !actor.Has(rbac.RoleAdministrator) && !actor.Has(rbac.RoleModerator):
			return nil, access.ErrPermissionDenied
		}
		next := m[userID].With(role).With(rbac.RoleMember)
		changed = next != m[userID]
		m[userID] = next
		return m, nil
	})
	if err != nil {
		return Group{}, err
	}
	m.apply(&g)
	if !changed {
		return g, nil
	}
	logger.From(ctx).Info("group role added", "group_id", groupID, "user_id", userID, "role", role, "actor_id", actorID)
	s.logRoleChange(ctx, actorID, groupID, userID, role, "add")
	return g, nil
}

// RemoveRole revokes role in groupID from userID. Removing the member role removes
// every role. The last administrator can never be removed. Revoking a role the
// user does not hold still needs permission, and is not audited.
func (s *Service) RemoveRole(ctx context.Context, actorID, groupID, userID string, role rbac.Role) (Group, error) {
	if _, ok := rbac.ParseRole(string(role)); !ok || actorID == "" || userID == "" {
		return Group{}, ErrInvalidArgument
	}

	var changed bool
	g, m, err := s.repo.UpdateMembership(ctx, groupID, s.clock().UTC(), func(m Membership) (Membership, error) {
		actor, target := m[actorID], m[userID]

		elevatedTarget := target.Has(rbac.RoleAdministrator) || target.Has(rbac.RoleModerator)
		switch {
		case actor.Has(rbac.RoleAdministrator), actorID == userID:
		case role.Elevated() || elevatedTarget:
			return nil, access.ErrPermissionDenied
		case !actor.Has(rbac.RoleModerator):
			return nil, access.ErrPermissionDenied
		}
		if !target.Has(role) {
			return m, nil
		}
		changed = true

		next := target.Without(role)
		if role == rbac.RoleMember {
			next = 0
		}
		if target.Has(rbac.RoleAdministrator) && !next.Has(rbac.RoleAdministrator) && m.Count(rbac.RoleAdministrator) <= 1 {
			return nil, ErrInvariantViolation
		}

		if next.Empty() {
			delete(m, userID)
		} else {
			m[userID] = next
		}
		return m, nil
	})
	if err != nil {
		return Group{}, err
	}
	m.apply(&g)
	if !changed {
		return g, nil
	}
	logger.From(ctx).Info("group role removed", "group_id", groupID, "user_id", userID, "role", role, "actor_id", actorID)
	s.logRoleChange(ctx, actorID, groupID, userID, role, "remove")
	return g, nil
}

// Subject builds the access-control subject for userID. An empty id is anonymous.
func (s *Service) Subject(ctx context.Context, userID string) (access.Subject, error) {
	if userID == "" {
		return access.Anonymous(), nil
	}
	roles, err := s.repo.RolesOf(ctx, userID)
	if err != nil {
		return access.Subject{}, err
	}
	logger.From(ctx).Debug("subject resolved", slog.String("user_id", userID), slog.Int("groups", len(roles)))
	return access.Subject{UserID: userID, Groups: roles}, nil
}

// IsMember reports whether userID belongs to groupID.
func (s *Service) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	_, m, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return false, err
	}
	return !m[userID].Empty(), nil
}
