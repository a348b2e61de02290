package audit

import (
	"context"
	"database/sql"
)

// PGRepo writes to audit_events. The table has no UPDATE/DELETE grants for the app role.
type PGRepo struct {
	db *sql.DB
}

func NewPGRepo(db *sql.DB) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, actor_user_id, object_kind, object_id, group_id, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,'')::jsonb,$9)
`
	_, err := r.db.ExecContext(ctx, q, e.ID, string(e.Type), e.ActorUserID, e.ObjectKind, e.ObjectID, e.GroupID, e.Message, e.Metadata, e.CreatedAt)
	return err
}

func (r *PGRepo) ListByObject(ctx context.Context, kind, id string) ([]Event, error) {
	const q = `
SELECT id, type, actor_user_id, object_kind, object_id, group_id, message, COALESCE(metadata::text, ''), created_at
FROM audit_events
WHERE object_id = $1 AND ($2 = '' OR object_kind = $2)
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, id, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e   Event
			typ string
		)
		if err := rows.Scan(&e.ID, &typ, &e.ActorUserID, &e.ObjectKind, &e.ObjectID, &e.GroupID, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
