package inbound

import "context"

type Repository interface {
	// GetOrCreate returns the first row, inserting def when the table is empty.
	GetOrCreate(ctx context.Context, def Config) (Config, error)
	// Update applies u to the first row (created from def if missing) atomically.
	Update(ctx context.Context, def Config, u Update) (Config, error)
	// FirstActive returns ErrNotFound when no row is active.
	FirstActive(ctx context.Context) (Config, error)
}
