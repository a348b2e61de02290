package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and APP_STORE=memory.
// One mutex makes each pool transition a compare-and-set.
type MemoryRepo struct {
	mu sync.Mutex

	numbers  map[string]Number
	byNumber map[string]string
	calls    map[string]Call
	results  map[string]Result
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		numbers:  map[string]Number{},
		byNumber: map[string]string{},
		calls:    map[string]Call{},
		results:  map[string]Result{},
	}
}

func cloneCall(c Call) Call {
	c.ResultIDs = append([]string{}, c.ResultIDs...)
	return c
}

func (m *MemoryRepo) CreateNumber(ctx context.Context, n Number) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byNumber[n.Number]; ok {
		return ErrDuplicateNumber
	}
	m.numbers[n.ID] = n
	m.byNumber[n.Number] = n.ID
	return nil
}

func (m *MemoryRepo) GetNumber(ctx context.Context, id string) (Number, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.numbers[id]
	if !ok {
		return Number{}, ErrNumberNotFound
	}
	return n, nil
}

func (m *MemoryRepo) UpdateNumber(ctx context.Context, id string, fn func(Number) (Number, error)) (Number, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.numbers[id]
	if !ok {
		return Number{}, ErrNumberNotFound
	}
	next, err := fn(n)
	if err != nil {
		return Number{}, err
	}
	m.numbers[id] = next
	return next, nil
}

func (m *MemoryRepo) ListNumbers(ctx context.Context, opts ListOptions) ([]Number, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Number, 0)
	for _, n := range m.numbers {
		if !n.Active || (opts.GroupID != "" && n.GroupID != opts.GroupID) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryRepo) checkoutLocked(id string, now time.Time) (Number, error) {
	n, ok := m.numbers[id]
	if !ok {
		return Number{}, ErrNumberNotFound
	}
	if !n.Active || n.Pooling != PoolingIn {
		return Number{}, ErrNumberUnavailable
	}
	n.Pooling = PoolingOut
	n.Touch(now)
	m.numbers[id] = n
	return n, nil
}

func (m *MemoryRepo) Checkout(ctx context.Context, id string, now time.Time) (Number, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkoutLocked(id, now)
}

func (m *MemoryRepo) liveCallsLocked(numberID, exceptCallID string) bool {
	for _, c := range m.calls {
		if c.NumberID == numberID && c.ID != exceptCallID && !c.State.Terminal() {
			return true
		}
	}
	return false
}

func (m *MemoryRepo) Checkin(ctx context.Context, id string, now time.Time) (Number, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.numbers[id]
	if !ok {
		return Number{}, ErrNumberNotFound
	}
	if m.liveCallsLocked(id, "") {
		return Number{}, ErrNumberInUse
	}
	if n.Pooling != PoolingIn {
		n.Pooling = PoolingIn
		n.Touch(now)
		m.numbers[id] = n
	}
	return n, nil
}

func (m *MemoryRepo) CreateCall(ctx context.Context, c Call) (Number, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.checkoutLocked(c.NumberID, c.CreatedAt)
	if err != nil {
		return Number{}, err
	}
	n.State = c.State
	m.numbers[n.ID] = n
	m.calls[c.ID] = cloneCall(c)
	return n, nil
}

func (m *MemoryRepo) GetCall(ctx context.Context, id string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return Call{}, ErrCallNotFound
	}
	return cloneCall(c), nil
}

func (m *MemoryRepo) ListCalls(ctx context.Context, campaignID string) ([]Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, 0)
	for _, c := range m.calls {
		if c.CampaignID == campaignID {
			out = append(out, cloneCall(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRepo) UpdateCall(ctx context.Context, id string, now time.Time, fn func(Call) (Call, error)) (Call, Number, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return Call{}, Number{}, ErrCallNotFound
	}
	next, err := fn(cloneCall(c))
	if err != nil {
		return Call{}, Number{}, err
	}
	changed := next.State != c.State
	next.UpdatedAt = now
	m.calls[id] = cloneCall(next)

	n := m.numbers[next.NumberID]
	if changed {
		n.State = next.State
		if next.State.Terminal() && !m.liveCallsLocked(n.ID, next.ID) {
			n.Pooling = PoolingIn
		}
		n.Touch(now)
		m.numbers[n.ID] = n
	}
	return next, n, nil
}

func (m *MemoryRepo) CreateResult(ctx context.Context, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.ID] = r
	if c, ok := m.calls[r.CallID]; ok {
		c.ResultIDs = append(c.ResultIDs, r.ID)
		m.calls[c.ID] = c
	}
	return nil
}

func (m *MemoryRepo) GetResult(ctx context.Context, id string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return Result{}, ErrResultNotFound
	}
	return r, nil
}

func (m *MemoryRepo) ListResults(ctx context.Context, campaignID string) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Result, 0)
	for _, r := range m.results {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
