package regions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const squareNYC = `{"type":"Polygon","coordinates":[[[-74.1,40.6],[-73.8,40.6],[-73.8,40.9],[-74.1,40.9],[-74.1,40.6]]]}`

func newRegion(t *testing.T, svc *Service, name, boundary string) Region {
	t.Helper()
	in := NewRegion{Name: name, State: "NY"}
	if boundary != "" {
		in.Boundary = json.RawMessage(boundary)
	}
	r, err := svc.CreateRegion(context.Background(), in)
	require.NoError(t, err)
	return r
}

func TestResolve_LongestPrefixWins(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()
	a := newRegion(t, svc, "A", "")
	b := newRegion(t, svc, "B", "")

	_, err := svc.AddRange(ctx, a.ID, "212")
	require.NoError(t, err)
	_, err = svc.AddRange(ctx, b.ID, "2125")
	require.NoError(t, err)

	got, ok, err := svc.Resolve(ctx, "2125551234")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b.ID, got.ID)

	got, ok, err = svc.Resolve(ctx, "2124441234")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a.ID, got.ID)

	_, ok, err = svc.Resolve(ctx, "3015551234")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolve_NormalizesNumber(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()
	b := newRegion(t, svc, "B", "")
	_, err := svc.AddRange(ctx, b.ID, "212-5")
	require.NoError(t, err)

	for _, n := range []string{"+1 (212) 555-1234", "12125551234", "212.555.1234"} {
		got, ok, err := svc.Resolve(ctx, n)
		require.NoError(t, err, n)
		require.True(t, ok, n)
		assert.Equal(t, b.ID, got.ID, n)
	}

	_, ok, err := svc.Resolve(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddRange_Validation(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()
	r := newRegion(t, svc, "A", "")

	_, err := svc.AddRange(ctx, r.ID, "abc")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.AddRange(ctx, "missing", "212")
	assert.ErrorIs(t, err, ErrRegionNotFound)

	_, err = svc.AddRange(ctx, r.ID, "212")
	require.NoError(t, err)
	_, err = svc.AddRange(ctx, r.ID, "212")
	assert.ErrorIs(t, err, ErrDuplicatePrefix)
}

func TestLocateAndGeocode(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()
	nyc := newRegion(t, svc, "NYC", squareNYC)
	_, err := svc.AddRange(ctx, nyc.ID, "212")
	require.NoError(t, err)

	got, ok, err := svc.Locate(ctx, orb.Point{-73.95, 40.75})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, nyc.ID, got.ID)

	_, ok, err = svc.Locate(ctx, orb.Point{-77.0, 38.9})
	require.NoError(t, err)
	assert.False(t, ok)

	pt, ok, err := svc.Geocode(ctx, "2125551234")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, -73.95, pt.Lon(), 1e-9)
	assert.InDelta(t, 40.75, pt.Lat(), 1e-9)
}

func TestCreateRegion_RejectsBadBoundary(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	_, err := svc.CreateRegion(context.Background(), NewRegion{Name: "X", Boundary: json.RawMessage(`{"type":"Point","coordinates":[1,2]}`)})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.CreateRegion(context.Background(), NewRegion{Name: "X", State: "QQ"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRegion_MarshalsBoundaryAsGeoJSON(t *testing.T) {
	mp, err := ParseBoundary(json.RawMessage(squareNYC))
	require.NoError(t, err)
	b, err := json.Marshal(Region{ID: "r1", Name: "NYC", State: "NY", Boundary: mp})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	boundary, ok := out["boundary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "MultiPolygon", boundary["type"])
}
