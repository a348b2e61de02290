package identity

import (
	"context"
	"sync"
	"time"

	"soapbox/internal/rbac"
)

// MemoryRepo is an in-memory Repository for tests and APP_STORE=memory.
// A single mutex gives every method the same isolation the Postgres
// implementation gets from row locks.
type MemoryRepo struct {
	mu sync.Mutex

	users      map[string]User
	byUsername map[string]string

	groups  map[string]Group
	byURL   map[string]string
	members map[string]Membership
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		users:      map[string]User{},
		byUsername: map[string]string{},
		groups:     map[string]Group{},
		byURL:      map[string]string{},
		members:    map[string]Membership{},
	}
}

func (r *MemoryRepo) CreateUser(ctx context.Context, u User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUsername[u.Username]; ok {
		return ErrDuplicateUsername
	}
	r.users[u.ID] = u
	r.byUsername[u.Username] = u.ID
	return nil
}

func (r *MemoryRepo) GetUser(ctx context.Context, id string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryRepo) GetUserByUsername(ctx context.Context, username string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUsername[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.users[id], nil
}

func (r *MemoryRepo) CreateGroup(ctx context.Context, g Group, m Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byURL[g.URL]; ok {
		return ErrDuplicateURL
	}
	r.groups[g.ID] = g
	r.byURL[g.URL] = g.ID
	r.members[g.ID] = m.Clone()
	return nil
}

func (r *MemoryRepo) GetGroup(ctx context.Context, id string) (Group, Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return Group{}, nil, ErrGroupNotFound
	}
	return g, r.members[id].Clone(), nil
}

func (r *MemoryRepo) UpdateMembership(ctx context.Context, groupID string, now time.Time, fn func(Membership) (Membership, error)) (Group, Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return Group{}, nil, ErrGroupNotFound
	}
	next, err := fn(r.members[groupID].Clone())
	if err != nil {
		return Group{}, nil, err
	}
	g.UpdatedAt = now
	r.groups[groupID] = g
	r.members[groupID] = next.Clone()
	return g, next, nil
}

func (r *MemoryRepo) RolesOf(ctx context.Context, userID string) (map[string]rbac.Roles, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]rbac.Roles{}
	for gid, m := range r.members {
		if roles := m[userID]; !roles.Empty() {
			out[gid] = roles
		}
	}
	return out, nil
}
