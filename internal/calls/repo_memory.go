package calls

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]Call
	clock  func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[int64]Call{}, clock: time.Now}
}

// WithClock overrides the timestamp source.
func (r *MemoryRepo) WithClock(clock func() time.Time) *MemoryRepo {
	r.clock = clock
	return r
}

func (r *MemoryRepo) Create(ctx context.Context, c Call) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.CallID != "" {
		for _, row := range r.rows {
			if row.CallID == c.CallID && !row.Status.Terminal() {
				return Call{}, ErrDuplicateCallID
			}
		}
	}
	r.nextID++
	c.ID = r.nextID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.clock().UTC()
	}
	if c.CRMStatus == "" {
		c.CRMStatus = CRMStatusPending
	}
	r.rows[c.ID] = c
	return c, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) FindActiveByCallID(ctx context.Context, callID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		best  Call
		found bool
	)
	for _, c := range r.rows {
		if c.CallID != callID {
			continue
		}
		if !found || c.ID > best.ID {
			best, found = c, true
		}
	}
	if !found {
		return Call{}, ErrNotFound
	}
	return best, nil
}

func (r *MemoryRepo) List(ctx context.Context, skip, limit int) ([]ListItem, error) {
	r.mu.Lock()
	rows := r.sortedLocked()
	r.mu.Unlock()

	if skip >= len(rows) {
		return []ListItem{}, nil
	}
	rows = rows[skip:]
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([]ListItem, 0, len(rows))
	for _, c := range rows {
		out = append(out, c.ListItem())
	}
	return out, nil
}

func (r *MemoryRepo) Apply(ctx context.Context, id int64, expect Status, p Patch) (Call, error) {
	if expect == "" && p.Status != "" {
		return Call{}, fmt.Errorf("%w: status change without expected status", ErrInvalidTransition)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	if expect != "" && c.Status != expect {
		return Call{}, ErrStaleState
	}
	p.apply(&c)
	now := r.clock().UTC()
	c.UpdatedAt = &now
	r.rows[id] = c
	return c, nil
}

func (r *MemoryRepo) ListStale(ctx context.Context, statuses []Status, before time.Time) ([]Call, error) {
	want := make(map[Status]struct{}, len(statuses))
	for _, s := range statuses {
		want[s] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0)
	for _, c := range r.sortedLocked() {
		if _, ok := want[c.Status]; !ok {
			continue
		}
		if c.lastTouched().Before(before) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListOutcomes(ctx context.Context) ([]Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, 0, len(r.rows))
	for _, c := range r.rows {
		out = append(out, Outcome{Disposition: c.Disposition, CRMStatus: c.CRMStatus, Duration: c.Duration})
	}
	return out, nil
}

// sortedLocked returns rows newest first. Caller holds r.mu.
func (r *MemoryRepo) sortedLocked() []Call {
	rows := make([]Call, 0, len(r.rows))
	for _, c := range r.rows {
		rows = append(rows, c)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
	return rows
}
