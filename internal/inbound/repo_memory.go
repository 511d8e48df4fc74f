package inbound

import (
	"context"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu    sync.Mutex
	rows  []Config
	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{clock: time.Now}
}

// Insert adds a row as is, for seeding tests.
func (r *MemoryRepo) Insert(c Config) Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(c)
}

func (r *MemoryRepo) GetOrCreate(ctx context.Context, def Config) (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rows) > 0 {
		return r.rows[0], nil
	}
	return r.insertLocked(def), nil
}

func (r *MemoryRepo) Update(ctx context.Context, def Config, u Update) (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rows) == 0 {
		r.insertLocked(def)
	}
	c := r.rows[0]
	u.apply(&c)
	now := r.clock().UTC()
	c.UpdatedAt = &now
	r.rows[0] = c
	return c, nil
}

func (r *MemoryRepo) FirstActive(ctx context.Context) (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.IsActive {
			return c, nil
		}
	}
	return Config{}, ErrNotFound
}

func (r *MemoryRepo) insertLocked(c Config) Config {
	c.ID = int64(len(r.rows) + 1)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.clock().UTC()
	}
	r.rows = append(r.rows, c)
	return c
}
