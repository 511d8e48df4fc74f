package calls

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Sweeper periodically fails records stuck in INITIATING or CALLING, which is the
// only way out for calls whose provider start failed or whose webhook never came.
type Sweeper struct {
	svc   *Service
	after time.Duration
	log   *slog.Logger
	cron  *cron.Cron
}

// NewSweeper validates schedule. A zero after disables sweeping; Start and Stop
// are then no-ops.
func NewSweeper(svc *Service, schedule string, after time.Duration, log *slog.Logger) (*Sweeper, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Sweeper{svc: svc, after: after, log: log.With("component", "stale_sweeper")}
	if after <= 0 {
		return s, nil
	}
	s.cron = cron.New(cron.WithParser(cronParser))
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return nil, fmt.Errorf("stale sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	if s.cron == nil {
		s.log.Info("stale sweeper disabled")
		return
	}
	s.log.Info("stale sweeper started", "after", s.after.String())
	s.cron.Start()
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep runs one pass.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.svc.FailStale(ctx, s.after)
	if err != nil {
		s.log.Error("stale sweep failed", "err", err)
		return
	}
	if n > 0 {
		s.log.Warn("stale calls failed", "count", n)
	}
}
