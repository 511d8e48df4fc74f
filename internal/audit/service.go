package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for call events.
// It is append-only: there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByCall(ctx context.Context, callPK int64) ([]Event, error)
}

// Service records the lifecycle trail of each call. Callers treat Append as
// best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallPK <= 0 || !e.Type.Valid() {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) List(ctx context.Context, callPK int64) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if callPK <= 0 {
		return nil, ErrInvalidEvent
	}
	return s.repo.ListByCall(ctx, callPK)
}

// StatusChanged records a committed transition.
func (s *Service) StatusChanged(ctx context.Context, callPK int64, callID, from, to string) error {
	return s.Append(ctx, Event{
		CallPK:     callPK,
		CallID:     callID,
		Type:       EventTypeStatusChanged,
		FromStatus: from,
		ToStatus:   to,
	})
}

// ProviderError records a swallowed telephony failure.
func (s *Service) ProviderError(ctx context.Context, callPK int64, callID, message string) error {
	return s.Append(ctx, Event{CallPK: callPK, CallID: callID, Type: EventTypeProviderError, Message: message})
}

// StepFailed records the pipeline step that drove a call to failed.
func (s *Service) StepFailed(ctx context.Context, callPK int64, callID, step, message string) error {
	return s.Append(ctx, Event{CallPK: callPK, CallID: callID, Type: EventTypeStepFailed, Step: step, Message: message})
}
