package regions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"soapbox/pkg/utils"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// PGRepo stores boundaries as WKB in regions.boundary (bytea).
type PGRepo struct {
	db *sql.DB
}

func NewPGRepo(db *sql.DB) *PGRepo { return &PGRepo{db: db} }

func encodeBoundary(mp orb.MultiPolygon) ([]byte, error) {
	if len(mp) == 0 {
		return nil, nil
	}
	return wkb.Marshal(mp)
}

func decodeBoundary(b []byte) (orb.MultiPolygon, error) {
	if len(b) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, err
	}
	switch v := g.(type) {
	case orb.MultiPolygon:
		return v, nil
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	default:
		return nil, fmt.Errorf("regions: unexpected boundary geometry %s", g.GeoJSONType())
	}
}

func scanRegion(row interface{ Scan(...any) error }) (Region, error) {
	var (
		r Region
		b []byte
	)
	if err := row.Scan(&r.ID, &r.Name, &r.State, &b); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Region{}, ErrRegionNotFound
		}
		return Region{}, err
	}
	mp, err := decodeBoundary(b)
	if err != nil {
		return Region{}, fmt.Errorf("regions: decode boundary %s: %w", r.ID, err)
	}
	r.Boundary = mp
	return r, nil
}

func (p *PGRepo) CreateRegion(ctx context.Context, r Region) error {
	b, err := encodeBoundary(r.Boundary)
	if err != nil {
		return err
	}
	const q = `INSERT INTO regions (id, name, state, boundary) VALUES ($1,$2,$3,$4)`
	_, err = p.db.ExecContext(ctx, q, r.ID, r.Name, r.State, b)
	return err
}

func (p *PGRepo) GetRegion(ctx context.Context, id string) (Region, error) {
	const q = `SELECT id, name, state, boundary FROM regions WHERE id = $1`
	return scanRegion(p.db.QueryRowContext(ctx, q, id))
}

func (p *PGRepo) ListRegions(ctx context.Context) ([]Region, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, state, boundary FROM regions ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Region, 0)
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PGRepo) AddRange(ctx context.Context, nr NumberRange) error {
	const q = `INSERT INTO number_ranges (id, prefix, region_id) VALUES ($1,$2,$3)`
	_, err := p.db.ExecContext(ctx, q, nr.ID, nr.Prefix, nr.RegionID)
	if _, dup := utils.UniqueViolation(err); dup {
		return ErrDuplicatePrefix
	}
	return err
}

func (p *PGRepo) ListRanges(ctx context.Context, regionID string) ([]NumberRange, error) {
	const q = `
SELECT id, prefix, region_id FROM number_ranges
WHERE ($1 = '' OR region_id = $1)
ORDER BY prefix
`
	rows, err := p.db.QueryContext(ctx, q, regionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]NumberRange, 0)
	for rows.Next() {
		var nr NumberRange
		if err := rows.Scan(&nr.ID, &nr.Prefix, &nr.RegionID); err != nil {
			return nil, err
		}
		out = append(out, nr)
	}
	return out, rows.Err()
}

// LongestPrefix relies on prefixes being digit-only, so LIKE never sees a wildcard.
func (p *PGRepo) LongestPrefix(ctx context.Context, digits string) (NumberRange, bool, error) {
	const q = `
SELECT id, prefix, region_id FROM number_ranges
WHERE $1 LIKE prefix || '%'
ORDER BY length(prefix) DESC
LIMIT 1
`
	var nr NumberRange
	err := p.db.QueryRowContext(ctx, q, digits).Scan(&nr.ID, &nr.Prefix, &nr.RegionID)
	if errors.Is(err, sql.ErrNoRows) {
		return NumberRange{}, false, nil
	}
	if err != nil {
		return NumberRange{}, false, err
	}
	return nr, true, nil
}
