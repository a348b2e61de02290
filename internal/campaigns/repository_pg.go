package campaigns

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"soapbox/internal/access"
	"soapbox/pkg/utils"
)

// PGRepo keeps every kind in owned_objects. Ownership columns are indexed for listing;
// sharing and content are jsonb documents.
type PGRepo struct {
	db *sql.DB
}

func NewPGRepo(db *sql.DB) *PGRepo { return &PGRepo{db: db} }

const recordColumns = `id, kind, name, active, updated_at, owner_id, group_id, visibility, sharing, content`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var (
		r       Record
		kind    string
		vis     string
		sharing []byte
		content []byte
	)
	err := row.Scan(&r.ID, &kind, &r.Name, &r.Active, &r.UpdatedAt, &r.OwnerID, &r.GroupID, &vis, &sharing, &content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrObjectNotFound
		}
		return Record{}, err
	}
	r.Kind = Kind(kind)
	r.Visibility = access.Visibility(vis)
	r.Content = content
	if sharing != nil {
		var sh access.Sharing
		if err := json.Unmarshal(sharing, &sh); err != nil {
			return Record{}, fmt.Errorf("campaigns: decode sharing %s: %w", r.ID, err)
		}
		r.Sharing = &sh
	}
	return r, nil
}

func encodeSharing(sh *access.Sharing) (any, error) {
	if sh == nil {
		return nil, nil
	}
	b, err := json.Marshal(sh)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *PGRepo) Insert(ctx context.Context, r Record) error {
	sharing, err := encodeSharing(r.Sharing)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO owned_objects (` + recordColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10::jsonb)
`
	_, err = p.db.ExecContext(ctx, q,
		r.ID,
		string(r.Kind),
		r.Name,
		r.Active,
		r.UpdatedAt,
		r.OwnerID,
		r.GroupID,
		string(r.Visibility),
		sharing,
		string(r.Content),
	)
	return err
}

func (p *PGRepo) Get(ctx context.Context, kind Kind, id string) (Record, error) {
	return getRecord(ctx, p.db, kind, id, false)
}

func getRecord(ctx context.Context, q utils.Querier, kind Kind, id string, forUpdate bool) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM owned_objects WHERE kind = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanRecord(q.QueryRowContext(ctx, query, string(kind), id))
}

func (p *PGRepo) Update(ctx context.Context, kind Kind, id string, fn func(Record) (Record, error)) (Record, error) {
	var out Record
	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		cur, err := getRecord(ctx, tx, kind, id, true)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		sharing, err := encodeSharing(next.Sharing)
		if err != nil {
			return err
		}
		const q = `
UPDATE owned_objects
SET name = $3, active = $4, updated_at = $5, owner_id = $6, group_id = $7, visibility = $8,
    sharing = $9::jsonb, content = $10::jsonb
WHERE kind = $1 AND id = $2
`
		if _, err := tx.ExecContext(ctx, q,
			string(kind),
			id,
			next.Name,
			next.Active,
			next.UpdatedAt,
			next.OwnerID,
			next.GroupID,
			string(next.Visibility),
			sharing,
			string(next.Content),
		); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func (p *PGRepo) List(ctx context.Context, kind Kind, opts ListOptions) ([]Record, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}
	const q = `
SELECT ` + recordColumns + `
FROM owned_objects
WHERE kind = $1 AND active
  AND ($2 = '' OR group_id = $2)
  AND ($3 = '' OR owner_id = $3)
ORDER BY name, id
LIMIT $4
`
	rows, err := p.db.QueryContext(ctx, q, string(kind), opts.GroupID, opts.OwnerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
