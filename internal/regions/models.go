package regions

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Region is a named area a destination number can be classified into.
// Boundary coordinates are lon/lat.
type Region struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	State    string           `json:"state"`
	Boundary orb.MultiPolygon `json:"-"`
}

// NumberRange maps every destination number starting with Prefix to a region.
// Prefix holds digits only; prefixes are unique.
type NumberRange struct {
	ID       string `json:"id"`
	Prefix   string `json:"prefix"`
	RegionID string `json:"region_id"`
}

type regionJSON struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	State    string            `json:"state"`
	Boundary *geojson.Geometry `json:"boundary,omitempty"`
}

// MarshalJSON renders the boundary as a GeoJSON geometry.
func (r Region) MarshalJSON() ([]byte, error) {
	out := regionJSON{ID: r.ID, Name: r.Name, State: r.State}
	if len(r.Boundary) > 0 {
		out.Boundary = geojson.NewGeometry(r.Boundary)
	}
	return json.Marshal(out)
}

// NewRegion is the create input. Boundary is a GeoJSON Polygon or MultiPolygon.
type NewRegion struct {
	Name     string          `json:"name"`
	State    string          `json:"state"`
	Boundary json.RawMessage `json:"boundary,omitempty"`
}

// ParseBoundary decodes a GeoJSON Polygon or MultiPolygon. Empty input yields no boundary.
func ParseBoundary(raw json.RawMessage) (orb.MultiPolygon, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: boundary: %w", ErrInvalidArgument, err)
	}
	switch v := g.Geometry().(type) {
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	case orb.MultiPolygon:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: boundary must be a Polygon or MultiPolygon, got %s", ErrInvalidArgument, g.Type)
	}
}
