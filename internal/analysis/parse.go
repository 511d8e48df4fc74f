package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"call-automation/internal/calls"
)

var ErrMalformed = errors.New("analysis: malformed model output")

// Fallback is the judgement used whenever the model cannot be reached or its
// answer cannot be used.
func Fallback() calls.Judgement {
	return calls.Judgement{
		Disposition:      calls.DispositionNoAnswer,
		Summary:          "Analysis failed",
		FollowupMessage:  "Thank you for your time.",
		CustomerInterest: "unknown",
		CRMStatus:        calls.CRMStatusNotCreated,
	}
}

type rawJudgement struct {
	Disposition      string          `json:"disposition"`
	Summary          string          `json:"summary"`
	FollowupMessage  string          `json:"followup_message"`
	CustomerInterest string          `json:"customer_interest"`
	CRMStatus        string          `json:"crm_status"`
	FunnelAchieved   json.RawMessage `json:"funnel_achieved"`
}

// stripFences removes a surrounding markdown code block, with or without a
// json language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseJudgement decodes model output. funnel_achieved is kept only when
// hasGoal; an unrecognised crm_status becomes empty.
func parseJudgement(content string, hasGoal bool) (calls.Judgement, error) {
	body := stripFences(content)
	if body == "" {
		return calls.Judgement{}, fmt.Errorf("%w: empty response", ErrMalformed)
	}

	var raw rawJudgement
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return calls.Judgement{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	d := calls.Disposition(strings.ToLower(strings.TrimSpace(raw.Disposition)))
	if !d.Valid() {
		return calls.Judgement{}, fmt.Errorf("%w: unknown disposition %q", ErrMalformed, raw.Disposition)
	}

	j := calls.Judgement{
		Disposition:      d,
		Summary:          strings.TrimSpace(raw.Summary),
		FollowupMessage:  strings.TrimSpace(raw.FollowupMessage),
		CustomerInterest: strings.TrimSpace(raw.CustomerInterest),
	}
	if crm := calls.CRMStatus(strings.ToLower(strings.TrimSpace(raw.CRMStatus))); crm.Valid() {
		j.CRMStatus = crm
	}
	if hasGoal {
		j.FunnelAchieved = parseBool(raw.FunnelAchieved)
	}
	return j, nil
}

// parseBool accepts a JSON boolean or its string spelling; anything else is nil.
func parseBool(raw json.RawMessage) *bool {
	if len(raw) == 0 {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes":
		b = true
	case "false", "no":
		b = false
	default:
		return nil
	}
	return &b
}
