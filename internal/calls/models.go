package calls

import (
	"fmt"
	"strings"
	"time"
)

// Call is one outbound call attempt and its outcome.
//
// Invariants:
// - CallID is assigned before the row is persisted and is unique among non-terminal rows.
// - Transcript and Duration are written once, by the webhook path.
// - Disposition, Summary, FollowupMessage, CustomerInterest are written once, by the analysis step.
// - CRMStatus is only ever produced by DeriveCRMStatus.
// - FunnelAchieved stays nil unless FunnelGoal was non-empty at creation.
type Call struct {
	ID                int64   `json:"id" db:"id"`
	CallID            string  `json:"call_id" db:"call_id"`
	ProviderSessionID *string `json:"voximplant_call_id" db:"provider_session_id"`

	PhoneNumber     string `json:"phone_number" db:"phone_number"`
	Language        string `json:"language" db:"language"`
	TTSProvider     string `json:"tts_provider" db:"tts_provider"`
	Voice           string `json:"voice" db:"voice"`
	GreetingMessage string `json:"greeting_message" db:"greeting_message"`
	Prompt          string `json:"prompt" db:"prompt"`
	FunnelGoal      string `json:"funnel_goal" db:"funnel_goal"`

	// Voice shaping, provider-specific.
	Stability       *float64 `json:"stability" db:"stability"`
	Speed           *float64 `json:"speed" db:"speed"`
	SimilarityBoost *float64 `json:"similarity_boost" db:"similarity_boost"`

	Status Status `json:"status" db:"status"`

	// Duration is in seconds, known only after the transcript arrives.
	Duration   *float64 `json:"duration" db:"duration"`
	Transcript *string  `json:"transcript" db:"transcript"`

	Disposition      *Disposition `json:"disposition" db:"disposition"`
	Summary          *string      `json:"summary" db:"summary"`
	FollowupMessage  *string      `json:"followup_message" db:"followup_message"`
	CustomerInterest *string      `json:"customer_interest" db:"customer_interest"`
	FunnelAchieved   *bool        `json:"funnel_achieved" db:"funnel_achieved"`

	CRMStatus        CRMStatus `json:"crm_status" db:"crm_status"`
	TelegramLinkSent bool      `json:"telegram_link_sent" db:"telegram_link_sent"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

type Disposition string

const (
	DispositionInterested     Disposition = "interested"
	DispositionRejected       Disposition = "rejected"
	DispositionNoAnswer       Disposition = "no_answer"
	DispositionBusy           Disposition = "busy"
	DispositionWrongNumber    Disposition = "wrong_number"
	DispositionContinueInChat Disposition = "continue_in_chat"
)

func (d Disposition) Valid() bool {
	switch d {
	case DispositionInterested, DispositionRejected, DispositionNoAnswer,
		DispositionBusy, DispositionWrongNumber, DispositionContinueInChat:
		return true
	}
	return false
}

// Talked reports whether a real conversation took place.
func (d Disposition) Talked() bool {
	return d == DispositionInterested || d == DispositionRejected || d == DispositionContinueInChat
}

type CRMStatus string

const (
	CRMStatusAdded      CRMStatus = "added"
	CRMStatusPending    CRMStatus = "pending"
	CRMStatusNotCreated CRMStatus = "not_created"
)

func (s CRMStatus) Valid() bool {
	return s == CRMStatusAdded || s == CRMStatusPending || s == CRMStatusNotCreated
}

const (
	DefaultTTSProvider     = "elevenlabs"
	DefaultStability       = 0.5
	DefaultSpeed           = 1.0
	DefaultSimilarityBoost = 0.75
)

// CreateRequest is the input of Service.Begin.
type CreateRequest struct {
	PhoneNumber     string   `json:"phone_number"`
	Language        string   `json:"language"`
	TTSProvider     string   `json:"tts_provider"`
	Voice           string   `json:"voice"`
	GreetingMessage string   `json:"greeting_message"`
	Prompt          string   `json:"prompt"`
	FunnelGoal      string   `json:"funnel_goal"`
	Stability       *float64 `json:"stability"`
	Speed           *float64 `json:"speed"`
	SimilarityBoost *float64 `json:"similarity_boost"`
}

// Normalize trims input and fills provider defaults.
func (r CreateRequest) Normalize() CreateRequest {
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	r.Language = strings.TrimSpace(r.Language)
	r.TTSProvider = strings.TrimSpace(r.TTSProvider)
	r.Voice = strings.TrimSpace(r.Voice)
	r.FunnelGoal = strings.TrimSpace(r.FunnelGoal)
	if r.TTSProvider == "" {
		r.TTSProvider = DefaultTTSProvider
	}
	if r.Stability == nil {
		r.Stability = floatPtr(DefaultStability)
	}
	if r.Speed == nil {
		r.Speed = floatPtr(DefaultSpeed)
	}
	if r.SimilarityBoost == nil {
		r.SimilarityBoost = floatPtr(DefaultSimilarityBoost)
	}
	return r
}

// Validate reports every problem at once, wrapped in ErrValidation.
func (r CreateRequest) Validate() error {
	var problems []string
	if r.PhoneNumber == "" {
		problems = append(problems, "phone_number is required")
	}
	if r.Language == "" {
		problems = append(problems, "language is required")
	}
	if r.Voice == "" {
		problems = append(problems, "voice is required")
	}
	if strings.TrimSpace(r.Prompt) == "" {
		problems = append(problems, "prompt is required")
	}
	switch r.TTSProvider {
	case "", "elevenlabs", "openai", "yandex":
	default:
		problems = append(problems, "tts_provider must be one of elevenlabs, openai, yandex")
	}
	if r.Stability != nil && (*r.Stability < 0 || *r.Stability > 1) {
		problems = append(problems, "stability must be within [0,1]")
	}
	if r.SimilarityBoost != nil && (*r.SimilarityBoost < 0 || *r.SimilarityBoost > 1) {
		problems = append(problems, "similarity_boost must be within [0,1]")
	}
	if r.Speed != nil && (*r.Speed <= 0 || *r.Speed > 4) {
		problems = append(problems, "speed must be within (0,4]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// ListItem is the reduced projection returned by list endpoints.
type ListItem struct {
	ID          int64        `json:"id"`
	PhoneNumber string       `json:"phone_number"`
	Status      Status       `json:"status"`
	Disposition *Disposition `json:"disposition"`
	Duration    *float64     `json:"duration"`
	CreatedAt   time.Time    `json:"created_at"`
	CRMStatus   CRMStatus    `json:"crm_status"`
}

func (c Call) ListItem() ListItem {
	return ListItem{
		ID:          c.ID,
		PhoneNumber: c.PhoneNumber,
		Status:      c.Status,
		Disposition: c.Disposition,
		Duration:    c.Duration,
		CreatedAt:   c.CreatedAt,
		CRMStatus:   c.CRMStatus,
	}
}

// Outcome is the slice of a call that analytics reads.
type Outcome struct {
	Disposition *Disposition
	CRMStatus   CRMStatus
	Duration    *float64
}

// Patch lists the columns a single lifecycle step writes. Nil fields are left
// untouched; an empty Status keeps the current status.
type Patch struct {
	Status            Status
	ProviderSessionID *string
	Transcript        *string
	Duration          *float64
	Disposition       *Disposition
	Summary           *string
	FollowupMessage   *string
	CustomerInterest  *string
	FunnelAchieved    *bool
	CRMStatus         *CRMStatus
	TelegramLinkSent  *bool
	CompletedAt       *time.Time
}

func (c Call) lastTouched() time.Time {
	if c.UpdatedAt != nil {
		return *c.UpdatedAt
	}
	return c.CreatedAt
}

// apply copies the non-nil patch fields onto c.
func (p Patch) apply(c *Call) {
	if p.Status != "" {
		c.Status = p.Status
	}
	if p.ProviderSessionID != nil {
		c.ProviderSessionID = p.ProviderSessionID
	}
	if p.Transcript != nil {
		c.Transcript = p.Transcript
	}
	if p.Duration != nil {
		c.Duration = p.Duration
	}
	if p.Disposition != nil {
		c.Disposition = p.Disposition
	}
	if p.Summary != nil {
		c.Summary = p.Summary
	}
	if p.FollowupMessage != nil {
		c.FollowupMessage = p.FollowupMessage
	}
	if p.CustomerInterest != nil {
		c.CustomerInterest = p.CustomerInterest
	}
	if p.FunnelAchieved != nil {
		c.FunnelAchieved = p.FunnelAchieved
	}
	if p.CRMStatus != nil {
		c.CRMStatus = *p.CRMStatus
	}
	if p.TelegramLinkSent != nil {
		c.TelegramLinkSent = *p.TelegramLinkSent
	}
	if p.CompletedAt != nil {
		c.CompletedAt = p.CompletedAt
	}
}

func floatPtr(f float64) *float64 { return &f }
func strPtr(s string) *string     { return &s }
func boolPtr(b bool) *bool        { return &b }
