package calls

import "context"

// AnalysisInput is everything the analysis step may look at.
type AnalysisInput struct {
	Transcript string
	Prompt     string
	FunnelGoal string
}

// Judgement is the structured outcome of one transcript.
type Judgement struct {
	Disposition      Disposition `json:"disposition"`
	Summary          string      `json:"summary"`
	FollowupMessage  string      `json:"followup_message"`
	CustomerInterest string      `json:"customer_interest"`

	// CRMStatus is only a suggestion; DeriveCRMStatus has the final say.
	// Empty when the analyzer proposed nothing recognisable.
	CRMStatus CRMStatus `json:"crm_status"`

	// FunnelAchieved is nil when no funnel goal was supplied.
	FunnelAchieved *bool `json:"funnel_achieved,omitempty"`
}

// Analyzer turns a transcript into a Judgement. Implementations never fail:
// transport or parse problems produce a documented fallback judgement instead.
type Analyzer interface {
	Analyze(ctx context.Context, in AnalysisInput) Judgement
}

// AuditLog is the subset of the audit service the controller writes to.
type AuditLog interface {
	StatusChanged(ctx context.Context, callPK int64, callID, from, to string) error
	ProviderError(ctx context.Context, callPK int64, callID, message string) error
	StepFailed(ctx context.Context, callPK int64, callID, step, message string) error
}
