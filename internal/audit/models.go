package audit

import "time"

// Event is an immutable record of something that happened to a call.
//
// Invariants:
// - Events are never updated or deleted.
// - call_pk is required; call_id is copied for webhook-side correlation.
// - Recording is best-effort; lifecycle steps never fail because audit did.
type Event struct {
	ID     string `json:"id" db:"id"`
	CallPK int64  `json:"call_pk" db:"call_pk"`
	CallID string `json:"call_id,omitempty" db:"call_id"`

	Type EventType `json:"type" db:"type"`

	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status,omitempty" db:"to_status"`

	// Step names the pipeline step for step_failed events.
	Step string `json:"step,omitempty" db:"step"`

	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeStatusChanged EventType = "status_changed"
	EventTypeProviderError EventType = "provider_error"
	EventTypeStepFailed    EventType = "step_failed"
)

func (t EventType) Valid() bool {
	return t == EventTypeStatusChanged || t == EventTypeProviderError || t == EventTypeStepFailed
}
