package regions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"soapbox/internal/access"
	"soapbox/internal/identity"
	"soapbox/pkg/logger"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var (
	ErrInvalidArgument = errors.New("regions: invalid argument")
	ErrDuplicatePrefix = errors.New("regions: prefix already mapped")

	ErrRegionNotFound = fmt.Errorf("regions: region %w", access.ErrNotFound)
)

type Repository interface {
	CreateRegion(ctx context.Context, r Region) error
	GetRegion(ctx context.Context, id string) (Region, error)
	ListRegions(ctx context.Context) ([]Region, error)

	// AddRange fails with ErrDuplicatePrefix when the prefix is already mapped.
	AddRange(ctx context.Context, nr NumberRange) error
	ListRanges(ctx context.Context, regionID string) ([]NumberRange, error)
	// LongestPrefix returns the range whose prefix is the longest prefix of digits.
	LongestPrefix(ctx context.Context, digits string) (NumberRange, bool, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CreateRegion(ctx context.Context, in NewRegion) (Region, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Region{}, fmt.Errorf("%w: name required", ErrInvalidArgument)
	}
	state, ok := identity.NormalizeState(in.State)
	if !ok {
		return Region{}, fmt.Errorf("%w: unknown state %q", ErrInvalidArgument, in.State)
	}
	boundary, err := ParseBoundary(in.Boundary)
	if err != nil {
		return Region{}, err
	}

	r := Region{ID: uuid.NewString(), Name: name, State: state, Boundary: boundary}
	if err := s.repo.CreateRegion(ctx, r); err != nil {
		return Region{}, err
	}
	logger.From(ctx).Info("region created", "region_id", r.ID, "name", r.Name)
	return r, nil
}

func (s *Service) GetRegion(ctx context.Context, id string) (Region, error) {
	if id == "" {
		return Region{}, ErrRegionNotFound
	}
	return s.repo.GetRegion(ctx, id)
}

func (s *Service) ListRegions(ctx context.Context) ([]Region, error) {
	return s.repo.ListRegions(ctx)
}

// AddRange maps prefix to the region. Separators in prefix ("212-5") are ignored.
func (s *Service) AddRange(ctx context.Context, regionID, prefix string) (NumberRange, error) {
	p := digitsOnly(prefix)
	if !validPrefix(p) {
		return NumberRange{}, fmt.Errorf("%w: prefix %q", ErrInvalidArgument, prefix)
	}
	if _, err := s.GetRegion(ctx, regionID); err != nil {
		return NumberRange{}, err
	}
	nr := NumberRange{ID: uuid.NewString(), Prefix: p, RegionID: regionID}
	if err := s.repo.AddRange(ctx, nr); err != nil {
		return NumberRange{}, err
	}
	logger.From(ctx).Info("number range added", "region_id", regionID, "prefix", p)
	return nr, nil
}

func (s *Service) ListRanges(ctx context.Context, regionID string) ([]NumberRange, error) {
	return s.repo.ListRanges(ctx, regionID)
}

// Resolve classifies a destination number by longest-prefix match.
// A number no range matches resolves to (Region{}, false, nil).
func (s *Service) Resolve(ctx context.Context, number string) (Region, bool, error) {
	digits := NormalizeNumber(number)
	if digits == "" {
		return Region{}, false, nil
	}
	nr, ok, err := s.repo.LongestPrefix(ctx, digits)
	if err != nil || !ok {
		return Region{}, false, err
	}
	r, err := s.repo.GetRegion(ctx, nr.RegionID)
	if err != nil {
		return Region{}, false, err
	}
	return r, true, nil
}

// Locate returns the region whose boundary contains pt (lon/lat).
func (s *Service) Locate(ctx context.Context, pt orb.Point) (Region, bool, error) {
	all, err := s.repo.ListRegions(ctx)
	if err != nil {
		return Region{}, false, err
	}
	for _, r := range all {
		if len(r.Boundary) > 0 && planar.MultiPolygonContains(r.Boundary, pt) {
			return r, true, nil
		}
	}
	return Region{}, false, nil
}

// Geocode is a best-effort point for a destination number: the centroid of
// the region it resolves to. Regions without a boundary give no point.
func (s *Service) Geocode(ctx context.Context, number string) (orb.Point, bool, error) {
	r, ok, err := s.Resolve(ctx, number)
	if err != nil || !ok || len(r.Boundary) == 0 {
		return orb.Point{}, false, err
	}
	c, _ := planar.CentroidArea(r.Boundary)
	return c, true, nil
}
