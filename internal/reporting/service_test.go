package reporting

import (
	"context"
	"errors"
	"testing"

	"call-automation/internal/calls"
)

type stubRepo struct {
	rows []calls.Outcome
	err  error
}

func (r stubRepo) ListOutcomes(ctx context.Context) ([]calls.Outcome, error) { return r.rows, r.err }

func outcome(d calls.Disposition, crm calls.CRMStatus, dur float64) calls.Outcome {
	o := calls.Outcome{CRMStatus: crm}
	if d != "" {
		o.Disposition = &d
	}
	if dur > 0 {
		o.Duration = &dur
	}
	return o
}

func TestAnalytics_FunnelAndRates(t *testing.T) {
	rows := []calls.Outcome{
		outcome(calls.DispositionInterested, calls.CRMStatusAdded, 60),
		outcome(calls.DispositionInterested, calls.CRMStatusAdded, 30),
		outcome(calls.DispositionInterested, calls.CRMStatusPending, 0),
		outcome(calls.DispositionRejected, calls.CRMStatusNotCreated, 0),
		outcome(calls.DispositionRejected, calls.CRMStatusPending, 0),
		outcome(calls.DispositionContinueInChat, calls.CRMStatusPending, 10),
		outcome(calls.DispositionNoAnswer, calls.CRMStatusNotCreated, 0),
		outcome(calls.DispositionBusy, calls.CRMStatusNotCreated, 0),
		outcome(calls.DispositionWrongNumber, calls.CRMStatusNotCreated, 0),
		outcome("", calls.CRMStatusPending, 0),
	}
	out, err := NewService(stubRepo{rows: rows}).Analytics(context.Background())
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if out.TotalCalls != 10 || out.Funnel.Called != 10 {
		t.Fatalf("expected 10 calls, got %+v", out)
	}
	if out.Funnel.Talked != 6 || out.Funnel.Interested != 3 || out.Funnel.Lead != 2 {
		t.Fatalf("unexpected funnel: %+v", out.Funnel)
	}
	if out.TalkRate != 60.0 || out.InterestRate != 50.0 {
		t.Fatalf("unexpected rates: talk=%v interest=%v", out.TalkRate, out.InterestRate)
	}
	if out.AvgDuration != 33.33 {
		t.Fatalf("expected avg duration 33.33, got %v", out.AvgDuration)
	}
}

func TestAnalytics_Empty(t *testing.T) {
	out, err := NewService(stubRepo{}).Analytics(context.Background())
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if out != (Analytics{}) {
		t.Fatalf("expected zero analytics, got %+v", out)
	}
}

func TestAnalytics_RepoError(t *testing.T) {
	boom := errors.New("boom")
	if _, err := NewService(stubRepo{err: boom}).Analytics(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected repo error, got %v", err)
	}
}

func TestAnalytics_OverCallsMemoryRepo(t *testing.T) {
	repo := calls.NewMemoryRepo()
	if _, err := repo.Create(context.Background(), calls.Call{CallID: "a", Status: calls.StatusInitiating}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	out, err := NewService(repo).Analytics(context.Background())
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if out.TotalCalls != 1 || out.TalkRate != 0 {
		t.Fatalf("unexpected analytics: %+v", out)
	}
}
