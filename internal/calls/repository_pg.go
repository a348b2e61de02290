package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"soapbox/internal/access"
	"soapbox/pkg/utils"
)

// PGRepo implements Repository on Postgres. States, outcomes and pooling are
// stored as their single-character codes.
type PGRepo struct {
	db *sql.DB
}

func NewPGRepo(db *sql.DB) *PGRepo { return &PGRepo{db: db} }

const numberColumns = `id, number, state, pooling, active, updated_at, owner_id, group_id, visibility`

func scanNumber(row interface{ Scan(...any) error }) (Number, error) {
	var (
		n                Number
		state, pool, vis string
	)
	err := row.Scan(&n.ID, &n.Number, &state, &pool, &n.Active, &n.UpdatedAt, &n.OwnerID, &n.GroupID, &vis)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Number{}, ErrNumberNotFound
		}
		return Number{}, err
	}
	n.State = callStateFromCode(state)
	n.Pooling = poolingFromCode(pool)
	n.Visibility = access.Visibility(vis)
	return n, nil
}

func (r *PGRepo) CreateNumber(ctx context.Context, n Number) error {
	const q = `
INSERT INTO numbers (` + numberColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := r.db.ExecContext(ctx, q,
		n.ID,
		n.Number,
		n.State.Code(),
		n.Pooling.Code(),
		n.Active,
		n.UpdatedAt,
		n.OwnerID,
		n.GroupID,
		string(n.Visibility),
	)
	if _, dup := utils.UniqueViolation(err); dup {
		return ErrDuplicateNumber
	}
	return err
}

func (r *PGRepo) GetNumber(ctx context.Context, id string) (Number, error) {
	return getNumber(ctx, r.db, id, false)
}

func getNumber(ctx context.Context, q utils.Querier, id string, forUpdate bool) (Number, error) {
	query := `SELECT ` + numberColumns + ` FROM numbers WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanNumber(q.QueryRowContext(ctx, query, id))
}

func saveNumber(ctx context.Context, q utils.Querier, n Number) error {
	const query = `
UPDATE numbers
SET state = $2, pooling = $3, active = $4, updated_at = $5, owner_id = $6, group_id = $7, visibility = $8
WHERE id = $1
`
	_, err := q.ExecContext(ctx, query,
		n.ID,
		n.State.Code(),
		n.Pooling.Code(),
		n.Active,
		n.UpdatedAt,
		n.OwnerID,
		n.GroupID,
		string(n.Visibility),
	)
	return err
}

func (r *PGRepo) UpdateNumber(ctx context.Context, id string, fn func(Number) (Number, error)) (Number, error) {
	var out Number
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		n, err := getNumber(ctx, tx, id, true)
		if err != nil {
			return err
		}
		next, err := fn(n)
		if err != nil {
			return err
		}
		if err := saveNumber(ctx, tx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func (r *PGRepo) ListNumbers(ctx context.Context, opts ListOptions) ([]Number, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}
	const q = `
SELECT ` + numberColumns + ` FROM numbers
WHERE active AND ($1 = '' OR group_id = $1)
ORDER BY number
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, opts.GroupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Number, 0)
	for rows.Next() {
		n, err := scanNumber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// checkout is a single conditional UPDATE; of concurrent callers only one matches pooling = 'I'.
func checkout(ctx context.Context, q utils.Querier, id string, now time.Time, state CallState) (Number, error) {
	const query = `
UPDATE numbers
SET pooling = 'O', updated_at = $2, state = CASE WHEN $3 = '' THEN state ELSE $3 END
WHERE id = $1 AND pooling = 'I' AND active
RETURNING ` + numberColumns
	n, err := scanNumber(q.QueryRowContext(ctx, query, id, now, state.Code()))
	if errors.Is(err, ErrNumberNotFound) {
		if _, gerr := getNumber(ctx, q, id, false); gerr != nil {
			return Number{}, gerr
		}
		return Number{}, ErrNumberUnavailable
	}
	return n, err
}

func (r *PGRepo) Checkout(ctx context.Context, id string, now time.Time) (Number, error) {
	return checkout(ctx, r.db, id, now, "")
}

func hasLiveCalls(ctx context.Context, q utils.Querier, numberID, exceptCallID string) (bool, error) {
	const query = `
SELECT EXISTS (
  SELECT 1 FROM calls
  WHERE number_id = $1 AND id <> $2 AND state IN ('Q','R','I')
)
`
	var live bool
	err := q.QueryRowContext(ctx, query, numberID, exceptCallID).Scan(&live)
	return live, err
}

func (r *PGRepo) Checkin(ctx context.Context, id string, now time.Time) (Number, error) {
	var out Number
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		n, err := getNumber(ctx, tx, id, true)
		if err != nil {
			return err
		}
		live, err := hasLiveCalls(ctx, tx, id, "")
		if err != nil {
			return err
		}
		if live {
			return ErrNumberInUse
		}
		if n.Pooling != PoolingIn {
			n.Pooling = PoolingIn
			n.Touch(now)
			if err := saveNumber(ctx, tx, n); err != nil {
				return err
			}
		}
		out = n
		return nil
	})
	return out, err
}

const callColumns = `id, campaign_id, number_id, to_number, state, duration, provider_call_id, created_by, created_at, updated_at`

func scanCall(row interface{ Scan(...any) error }) (Call, error) {
	var (
		c     Call
		state string
	)
	err := row.Scan(&c.ID, &c.CampaignID, &c.NumberID, &c.ToNumber, &state, &c.DurationSeconds, &c.ProviderCallID, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrCallNotFound
		}
		return Call{}, err
	}
	c.State = callStateFromCode(state)
	c.ResultIDs = []string{}
	return c, nil
}

func (r *PGRepo) CreateCall(ctx context.Context, c Call) (Number, error) {
	var out Number
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		n, err := checkout(ctx, tx, c.NumberID, c.CreatedAt, c.State)
		if err != nil {
			return err
		}
		const q = `
INSERT INTO calls (` + callColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
		if _, err := tx.ExecContext(ctx, q,
			c.ID,
			c.CampaignID,
			c.NumberID,
			c.ToNumber,
			c.State.Code(),
			c.DurationSeconds,
			c.ProviderCallID,
			c.CreatedBy,
			c.CreatedAt,
			c.UpdatedAt,
		); err != nil {
			return err
		}
		out = n
		return nil
	})
	return out, err
}

func resultIDs(ctx context.Context, q utils.Querier, callID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM results WHERE call_id = $1 ORDER BY recorded_at, id`, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *PGRepo) GetCall(ctx context.Context, id string) (Call, error) {
	c, err := scanCall(r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id))
	if err != nil {
		return Call{}, err
	}
	if c.ResultIDs, err = resultIDs(ctx, r.db, id); err != nil {
		return Call{}, err
	}
	return c, nil
}

func (r *PGRepo) ListCalls(ctx context.Context, campaignID string) ([]Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE campaign_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdateCall(ctx context.Context, id string, now time.Time, fn func(Call) (Call, error)) (Call, Number, error) {
	var (
		outCall Call
		outNum  Number
	)
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		c, err := scanCall(tx.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next, err := fn(c)
		if err != nil {
			return err
		}
		next.UpdatedAt = now
		const q = `UPDATE calls SET state = $2, duration = $3, provider_call_id = $4, updated_at = $5 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, q, id, next.State.Code(), next.DurationSeconds, next.ProviderCallID, now); err != nil {
			return err
		}

		n, err := getNumber(ctx, tx, next.NumberID, true)
		if err != nil {
			return err
		}
		if next.State != c.State {
			n.State = next.State
			if next.State.Terminal() {
				live, err := hasLiveCalls(ctx, tx, n.ID, id)
				if err != nil {
					return err
				}
				if !live {
					n.Pooling = PoolingIn
				}
			}
			n.Touch(now)
			if err := saveNumber(ctx, tx, n); err != nil {
				return err
			}
		}
		if next.ResultIDs, err = resultIDs(ctx, tx, id); err != nil {
			return err
		}
		outCall, outNum = next, n
		return nil
	})
	return outCall, outNum, err
}

const resultColumns = `id, active, updated_at, owner_id, group_id, visibility, outcome, campaign_id, call_id, number_id, to_number, lat, lon, question_id, answer, recorded_at`

func scanResult(row interface{ Scan(...any) error }) (Result, error) {
	var (
		res          Result
		vis, outcome string
		lat, lon     sql.NullFloat64
	)
	err := row.Scan(&res.ID, &res.Active, &res.UpdatedAt, &res.OwnerID, &res.GroupID, &vis, &outcome,
		&res.CampaignID, &res.CallID, &res.NumberID, &res.ToNumber, &lat, &lon, &res.QuestionID, &res.Answer, &res.RecordedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrResultNotFound
		}
		return Result{}, err
	}
	res.Visibility = access.Visibility(vis)
	res.Outcome = outcomeFromCode(outcome)
	if lat.Valid && lon.Valid {
		res.Location = &LatLon{Lat: lat.Float64, Lon: lon.Float64}
	}
	return res, nil
}

func (r *PGRepo) CreateResult(ctx context.Context, res Result) error {
	var lat, lon sql.NullFloat64
	if res.Location != nil {
		lat = sql.NullFloat64{Float64: res.Location.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: res.Location.Lon, Valid: true}
	}
	const q = `
INSERT INTO results (` + resultColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`
	_, err := r.db.ExecContext(ctx, q,
		res.ID,
		res.Active,
		res.UpdatedAt,
		res.OwnerID,
		res.GroupID,
		string(res.Visibility),
		res.Outcome.Code(),
		res.CampaignID,
		res.CallID,
		res.NumberID,
		res.ToNumber,
		lat,
		lon,
		res.QuestionID,
		res.Answer,
		res.RecordedAt,
	)
	return err
}

func (r *PGRepo) GetResult(ctx context.Context, id string) (Result, error) {
	return scanResult(r.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE id = $1`, id))
}

func (r *PGRepo) ListResults(ctx context.Context, campaignID string) ([]Result, error) {
	const q = `SELECT ` + resultColumns + ` FROM results WHERE campaign_id = $1 ORDER BY recorded_at, id`
	rows, err := r.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Result, 0)
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
