package inbound

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("inbound config not found")
	ErrValidation = errors.New("invalid inbound config")
)

// Config answers unsolicited inbound calls. The first row is the one edited by
// operators; the first active row is the one handed to the call scenario.
type Config struct {
	ID              int64      `json:"id" db:"id"`
	Language        string     `json:"language" db:"language"`
	Voice           string     `json:"voice" db:"voice"`
	GreetingMessage string     `json:"greeting_message" db:"greeting_message"`
	Prompt          string     `json:"prompt" db:"prompt"`
	FunnelGoal      string     `json:"funnel_goal" db:"funnel_goal"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at" db:"updated_at"`
}

const (
	DefaultLanguage        = "ru"
	DefaultVoice           = "3EuKHIEZbSzrHGNmdYsx"
	DefaultGreetingMessage = "Hello! How can I help you?"
	DefaultPrompt          = "You are a helpful assistant. Help customers with their questions."
	DefaultFunnelGoal      = "Help the customer resolve their question"
)

// Defaults is the row created on first access and served when nothing is active.
func Defaults() Config {
	return Config{
		Language:        DefaultLanguage,
		Voice:           DefaultVoice,
		GreetingMessage: DefaultGreetingMessage,
		Prompt:          DefaultPrompt,
		FunnelGoal:      DefaultFunnelGoal,
		IsActive:        true,
	}
}

// Update is a partial update; nil fields are left as they are.
type Update struct {
	Language        *string `json:"language"`
	Voice           *string `json:"voice"`
	GreetingMessage *string `json:"greeting_message"`
	Prompt          *string `json:"prompt"`
	FunnelGoal      *string `json:"funnel_goal"`
	IsActive        *bool   `json:"is_active"`
}

func (u Update) Empty() bool {
	return u.Language == nil && u.Voice == nil && u.GreetingMessage == nil &&
		u.Prompt == nil && u.FunnelGoal == nil && u.IsActive == nil
}

// Validate rejects supplied fields that would blank out a value the scenario needs.
func (u Update) Validate() error {
	var problems []string
	if u.Language != nil && strings.TrimSpace(*u.Language) == "" {
		problems = append(problems, "language must not be empty")
	}
	if u.Voice != nil && strings.TrimSpace(*u.Voice) == "" {
		problems = append(problems, "voice must not be empty")
	}
	if u.Prompt != nil && strings.TrimSpace(*u.Prompt) == "" {
		problems = append(problems, "prompt must not be empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func (u Update) apply(c *Config) {
	if u.Language != nil {
		c.Language = strings.TrimSpace(*u.Language)
	}
	if u.Voice != nil {
		c.Voice = strings.TrimSpace(*u.Voice)
	}
	if u.GreetingMessage != nil {
		c.GreetingMessage = *u.GreetingMessage
	}
	if u.Prompt != nil {
		c.Prompt = *u.Prompt
	}
	if u.FunnelGoal != nil {
		c.FunnelGoal = *u.FunnelGoal
	}
	if u.IsActive != nil {
		c.IsActive = *u.IsActive
	}
}

// ProviderConfig is what the inbound call scenario fetches before answering.
type ProviderConfig struct {
	Language          string `json:"language"`
	Voice             string `json:"voice"`
	GreetingMessage   string `json:"greeting_message"`
	Prompt            string `json:"prompt"`
	FunnelGoal        string `json:"funnel_goal"`
	ElevenLabsAPIKey  string `json:"elevenlabs_api_key"`
	ElevenLabsAgentID string `json:"elevenlabs_agent_id"`
}
