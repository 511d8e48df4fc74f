package jobs

import (
	"context"
	"fmt"
)

// Inline runs jobs synchronously on the caller's goroutine, detached from the
// caller's cancellation. Like Queue, a job's own error is not returned to the
// submitter. Used in tests.
type Inline struct{}

func (Inline) Submit(ctx context.Context, j Job) error {
	if j.Run == nil {
		return fmt.Errorf("jobs: %q has no Run func", j.Name)
	}
	_ = j.Run(context.WithoutCancel(ctx))
	return nil
}
