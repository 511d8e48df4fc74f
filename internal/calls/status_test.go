package calls

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusInitiating, StatusCalling, true},
		{StatusCalling, StatusAnalyzing, true},
		{StatusAnalyzing, StatusPreparingFollowup, true},
		{StatusPreparingFollowup, StatusSendingSMS, true},
		{StatusSendingSMS, StatusAddingToCRM, true},
		{StatusAddingToCRM, StatusCompleted, true},

		{StatusInitiating, StatusAnalyzing, false},
		{StatusCalling, StatusInitiating, false},
		{StatusAnalyzing, StatusCompleted, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusInitiating, false},
		{StatusCompleted, StatusCompleted, false},
		{"bogus", StatusFailed, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
	for _, s := range NonTerminal() {
		if !CanTransition(s, StatusFailed) {
			t.Fatalf("expected %s -> failed to be allowed", s)
		}
	}
}

func TestNonTerminalExcludesTerminal(t *testing.T) {
	ss := NonTerminal()
	if len(ss) != 6 {
		t.Fatalf("expected 6 non-terminal states, got %d", len(ss))
	}
	for _, s := range ss {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestDeriveCRMStatus(t *testing.T) {
	cases := []struct {
		d         Disposition
		suggested CRMStatus
		want      CRMStatus
	}{
		{DispositionInterested, CRMStatusNotCreated, CRMStatusAdded},
		{DispositionInterested, "", CRMStatusAdded},
		{DispositionNoAnswer, CRMStatusAdded, CRMStatusNotCreated},
		{DispositionBusy, CRMStatusPending, CRMStatusNotCreated},
		{DispositionWrongNumber, CRMStatusAdded, CRMStatusNotCreated},
		{DispositionRejected, CRMStatusNotCreated, CRMStatusNotCreated},
		{DispositionRejected, "", CRMStatusPending},
		{DispositionContinueInChat, CRMStatusAdded, CRMStatusAdded},
		{DispositionContinueInChat, "lead", CRMStatusPending},
	}
	for _, tc := range cases {
		if got := DeriveCRMStatus(tc.d, tc.suggested); got != tc.want {
			t.Fatalf("DeriveCRMStatus(%s, %q) = %s, want %s", tc.d, tc.suggested, got, tc.want)
		}
	}
}

func TestCreateRequest_NormalizeAndValidate(t *testing.T) {
	req := CreateRequest{PhoneNumber: " +7999 ", Language: "ru", Voice: "v", Prompt: "p"}.Normalize()
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if req.PhoneNumber != "+7999" || req.TTSProvider != DefaultTTSProvider {
		t.Fatalf("unexpected normalized request: %+v", req)
	}
	if *req.Stability != 0.5 || *req.Speed != 1.0 || *req.SimilarityBoost != 0.75 {
		t.Fatalf("unexpected voice defaults")
	}

	bad := 2.0
	err := CreateRequest{TTSProvider: "acme", Stability: &bad}.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
