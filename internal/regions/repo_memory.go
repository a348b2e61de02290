package regions

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Repository for tests and APP_STORE=memory.
type MemoryRepo struct {
	mu       sync.RWMutex
	regions  map[string]Region
	ranges   []NumberRange
	prefixes map[string]struct{}
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{regions: map[string]Region{}, prefixes: map[string]struct{}{}}
}

func (m *MemoryRepo) CreateRegion(ctx context.Context, r Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions[r.ID] = r
	return nil
}

func (m *MemoryRepo) GetRegion(ctx context.Context, id string) (Region, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regions[id]
	if !ok {
		return Region{}, ErrRegionNotFound
	}
	return r, nil
}

func (m *MemoryRepo) ListRegions(ctx context.Context) ([]Region, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Region, 0, len(m.regions))
	for _, r := range m.regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRepo) AddRange(ctx context.Context, nr NumberRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prefixes[nr.Prefix]; ok {
		return ErrDuplicatePrefix
	}
	m.prefixes[nr.Prefix] = struct{}{}
	m.ranges = append(m.ranges, nr)
	return nil
}

func (m *MemoryRepo) ListRanges(ctx context.Context, regionID string) ([]NumberRange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]NumberRange, 0)
	for _, nr := range m.ranges {
		if regionID == "" || nr.RegionID == regionID {
			out = append(out, nr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out, nil
}

func (m *MemoryRepo) LongestPrefix(ctx context.Context, digits string) (NumberRange, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nr, ok := longestPrefix(m.ranges, digits)
	return nr, ok, nil
}
