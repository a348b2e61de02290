package campaigns

import (
	"context"
	"sort"
	"sync"
)

type recordKey struct {
	kind Kind
	id   string
}

// MemoryRepo is an in-memory Repository for tests and APP_STORE=memory.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[recordKey]Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[recordKey]Record{}} }

func cloneRecord(r Record) Record {
	if r.Sharing != nil {
		sh := r.Sharing.Clone()
		r.Sharing = &sh
	}
	r.Content = append([]byte(nil), r.Content...)
	return r
}

func (m *MemoryRepo) Insert(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[recordKey{r.Kind, r.ID}] = cloneRecord(r)
	return nil
}

func (m *MemoryRepo) Get(ctx context.Context, kind Kind, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[recordKey{kind, id}]
	if !ok {
		return Record{}, ErrObjectNotFound
	}
	return cloneRecord(r), nil
}

func (m *MemoryRepo) Update(ctx context.Context, kind Kind, id string, fn func(Record) (Record, error)) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey{kind, id}
	r, ok := m.rows[k]
	if !ok {
		return Record{}, ErrObjectNotFound
	}
	next, err := fn(cloneRecord(r))
	if err != nil {
		return Record{}, err
	}
	m.rows[k] = cloneRecord(next)
	return next, nil
}

func (m *MemoryRepo) List(ctx context.Context, kind Kind, opts ListOptions) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0)
	for k, r := range m.rows {
		if k.kind != kind || !r.Active {
			continue
		}
		if opts.GroupID != "" && r.GroupID != opts.GroupID {
			continue
		}
		if opts.OwnerID != "" && r.OwnerID != opts.OwnerID {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
