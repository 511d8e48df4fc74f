package calls

import (
	"context"
	"time"
)

// Repository persists call records. Every method is its own unit of work; callers
// never share a transaction across lifecycle steps.
type Repository interface {
	// Create assigns ID and CreatedAt.
	Create(ctx context.Context, c Call) (Call, error)
	Get(ctx context.Context, id int64) (Call, error)

	// FindActiveByCallID returns the newest record with callID, terminal or not.
	FindActiveByCallID(ctx context.Context, callID string) (Call, error)

	// List returns records newest first.
	List(ctx context.Context, skip, limit int) ([]ListItem, error)

	// Apply writes p only when the stored status equals expect. It returns
	// ErrStaleState on mismatch and ErrNotFound when id is unknown. An empty
	// expect skips the status check and is only valid when p.Status is empty.
	Apply(ctx context.Context, id int64, expect Status, p Patch) (Call, error)

	// ListStale returns records in statuses whose last write (updated_at, or
	// created_at when never updated) is before the cutoff.
	ListStale(ctx context.Context, statuses []Status, before time.Time) ([]Call, error)
	ListOutcomes(ctx context.Context) ([]Outcome, error)
}
