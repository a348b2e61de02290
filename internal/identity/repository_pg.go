package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"soapbox/internal/rbac"
	"soapbox/pkg/utils"
)

// PGRepo implements Repository on Postgres (see migrations/0001_identity.up.sql).
type PGRepo struct {
	db *sql.DB
}

func NewPGRepo(db *sql.DB) *PGRepo { return &PGRepo{db: db} }

const userColumns = `id, full_name, username, password_hash, account_sid, auth_token, profile_text, city, state, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.FullName,
		&u.Username,
		&u.PasswordHash,
		&u.AccountSID,
		&u.AuthToken,
		&u.ProfileText,
		&u.City,
		&u.State,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *PGRepo) CreateUser(ctx context.Context, u User) error {
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	_, err := r.db.ExecContext(ctx, q,
		u.ID,
		u.FullName,
		u.Username,
		u.PasswordHash,
		u.AccountSID,
		u.AuthToken,
		u.ProfileText,
		u.City,
		u.State,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if _, dup := utils.UniqueViolation(err); dup {
		return ErrDuplicateUsername
	}
	return err
}

func (r *PGRepo) GetUser(ctx context.Context, id string) (User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, q, id))
}

func (r *PGRepo) GetUserByUsername(ctx context.Context, username string) (User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, q, username))
}

func (r *PGRepo) CreateGroup(ctx context.Context, g Group, m Membership) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO user_groups (id, name, description, url, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
		_, err := tx.ExecContext(ctx, q, g.ID, g.Name, g.Description, g.URL, g.CreatedAt, g.UpdatedAt)
		if _, dup := utils.UniqueViolation(err); dup {
			return ErrDuplicateURL
		}
		if err != nil {
			return err
		}
		return insertMembership(ctx, tx, g.ID, m, g.CreatedAt)
	})
}

func (r *PGRepo) GetGroup(ctx context.Context, id string) (Group, Membership, error) {
	g, err := getGroup(ctx, r.db, id, false)
	if err != nil {
		return Group{}, nil, err
	}
	m, err := loadMembership(ctx, r.db, id)
	if err != nil {
		return Group{}, nil, err
	}
	return g, m, nil
}

func (r *PGRepo) UpdateMembership(ctx context.Context, groupID string, now time.Time, fn func(Membership) (Membership, error)) (Group, Membership, error) {
	var (
		outGroup Group
		outM     Membership
	)
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// The group row lock serializes membership changes, which keeps the
		// administrator count check atomic with the removal.
		g, err := getGroup(ctx, tx, groupID, true)
		if err != nil {
			return err
		}
		cur, err := loadMembership(ctx, tx, groupID)
		if err != nil {
			return err
		}
		next, err := fn(cur.Clone())
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1`, groupID); err != nil {
			return err
		}
		if err := insertMembership(ctx, tx, groupID, next, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE user_groups SET updated_at = $2 WHERE id = $1`, groupID, now); err != nil {
			return err
		}
		g.UpdatedAt = now
		outGroup, outM = g, next
		return nil
	})
	return outGroup, outM, err
}

func (r *PGRepo) RolesOf(ctx context.Context, userID string) (map[string]rbac.Roles, error) {
	const q = `SELECT group_id, role FROM group_members WHERE user_id = $1`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]rbac.Roles{}
	for rows.Next() {
		var gid, role string
		if err := rows.Scan(&gid, &role); err != nil {
			return nil, err
		}
		if r, ok := rbac.ParseRole(role); ok {
			out[gid] = out[gid].With(r)
		}
	}
	return out, rows.Err()
}

func getGroup(ctx context.Context, q utils.Querier, id string, forUpdate bool) (Group, error) {
	query := `SELECT id, name, description, url, created_at, updated_at FROM user_groups WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var g Group
	err := q.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Name, &g.Description, &g.URL, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Group{}, ErrGroupNotFound
		}
		return Group{}, err
	}
	return g, nil
}

func loadMembership(ctx context.Context, q utils.Querier, groupID string) (Membership, error) {
	rows, err := q.QueryContext(ctx, `SELECT user_id, role FROM group_members WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := Membership{}
	for rows.Next() {
		var uid, role string
		if err := rows.Scan(&uid, &role); err != nil {
			return nil, err
		}
		if r, ok := rbac.ParseRole(role); ok {
			m[uid] = m[uid].With(r)
		}
	}
	return m, rows.Err()
}

func insertMembership(ctx context.Context, tx *sql.Tx, groupID string, m Membership, now time.Time) error {
	const q = `INSERT INTO group_members (group_id, user_id, role, created_at) VALUES ($1,$2,$3,$4)`
	for uid, roles := range m {
		for _, role := range roles.List() {
			if _, err := tx.ExecContext(ctx, q, groupID, uid, string(role), now); err != nil {
				return err
			}
		}
	}
	return nil
}
