package telephony

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrRejected means the provider answered but refused to start the call.
	ErrRejected = errors.New("telephony: provider rejected request")
	// ErrProvider covers transport failures, non-2xx replies and undecodable bodies.
	ErrProvider = errors.New("telephony: provider error")
	// ErrNotConfigured is returned by gateways without credentials.
	ErrNotConfigured = errors.New("telephony: provider not configured")
)

// Gateway is the provider-agnostic outbound call surface used by the lifecycle
// controller.
//
// Rules:
// - No provider HTTP calls outside gateway implementations.
// - Business parameters travel to the call scenario as an opaque payload.
// - Implementations apply their own bounded timeouts.
type Gateway interface {
	Name() string
	StartCall(ctx context.Context, req StartCallRequest) (StartCallResult, error)

	// CallHistory is best-effort and used for diagnostics only.
	CallHistory(ctx context.Context, sessionID string) (CallHistory, error)
}

// StartCallRequest carries everything the call scenario needs.
type StartCallRequest struct {
	// CallID is the correlation id the scenario echoes back to the transcript webhook.
	CallID string

	Phone           string
	Language        string
	TTSProvider     string
	Voice           string
	GreetingMessage string
	Prompt          string
	FunnelGoal      string

	Stability       *float64
	Speed           *float64
	SimilarityBoost *float64
}

type StartCallResult struct {
	// SessionID is the provider's handle for the running scenario. It may be empty
	// when the provider accepted the request without returning one.
	SessionID string `json:"session_id"`
}

// CallHistory is the provider's record of a finished session, kept raw.
type CallHistory struct {
	SessionID  string            `json:"session_id"`
	TotalCount int               `json:"total_count"`
	Records    []json.RawMessage `json:"records"`
}
