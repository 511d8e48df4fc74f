package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"call-automation/internal/audit"
	"call-automation/internal/jobs"
	"call-automation/internal/lock"
	"call-automation/internal/telephony"
	"call-automation/pkg/logger"
)

type fakeGateway struct {
	mu      sync.Mutex
	err     error
	session string
	started []telephony.StartCallRequest
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) StartCall(ctx context.Context, req telephony.StartCallRequest) (telephony.StartCallResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started = append(g.started, req)
	if g.err != nil {
		return telephony.StartCallResult{}, g.err
	}
	return telephony.StartCallResult{SessionID: g.session}, nil
}

func (g *fakeGateway) CallHistory(ctx context.Context, sessionID string) (telephony.CallHistory, error) {
	return telephony.CallHistory{SessionID: sessionID, TotalCount: 1}, nil
}

type fakeAnalyzer struct {
	j     Judgement
	calls int
	mu    sync.Mutex
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, in AnalysisInput) Judgement {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return a.j
}

// captureJobs queues jobs without running them.
type captureJobs struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (c *captureJobs) Submit(ctx context.Context, j jobs.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.jobs = append(c.jobs, j)
	return nil
}

func (c *captureJobs) runAll(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	pending := c.jobs
	c.jobs = nil
	c.mu.Unlock()
	for _, j := range pending {
		_ = j.Run(context.Background())
	}
}

type harness struct {
	repo     *MemoryRepo
	gateway  *fakeGateway
	analyzer *fakeAnalyzer
	events   *audit.MemoryRepo
	svc      *Service
}

func newHarness(t *testing.T, sched jobs.Scheduler, j Judgement) *harness {
	t.Helper()
	h := &harness{
		repo:     NewMemoryRepo(),
		gateway:  &fakeGateway{session: "https://media.example/session/1"},
		analyzer: &fakeAnalyzer{j: j},
		events:   audit.NewMemoryRepo(),
	}
	h.svc = NewService(h.repo, h.gateway, h.analyzer, Options{
		Jobs:   sched,
		Audit:  audit.NewService(h.events),
		Logger: logger.Discard(),
	})
	return h
}

func validRequest() CreateRequest {
	return CreateRequest{
		PhoneNumber: "+79990001122",
		Language:    "ru",
		Voice:       "voice-1",
		Prompt:      "Sell the premium plan",
	}
}

func interested() Judgement {
	return Judgement{
		Disposition:      DispositionInterested,
		Summary:          "wants a demo",
		FollowupMessage:  "Here is the link",
		CustomerInterest: "high",
		CRMStatus:        CRMStatusPending,
	}
}

func eventsOfType(events []audit.Event, typ audit.EventType) []audit.Event {
	var out []audit.Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestBegin_ReachesCallingWithSession(t *testing.T) {
	h := newHarness(t, jobs.Inline{}, interested())
	ctx := context.Background()

	c, err := h.svc.Begin(ctx, validRequest())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if c.CallID == "" {
		t.Fatalf("expected generated call_id")
	}
	got, _ := h.repo.Get(ctx, c.ID)
	if got.Status != StatusCalling {
		t.Fatalf("expected calling, got %s", got.Status)
	}
	if got.ProviderSessionID == nil || *got.ProviderSessionID != h.gateway.session {
		t.Fatalf("expected provider session persisted, got %v", got.ProviderSessionID)
	}
	if got.CRMStatus != CRMStatusPending || got.TTSProvider != DefaultTTSProvider {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if len(h.gateway.started) != 1 || h.gateway.started[0].CallID != c.CallID {
		t.Fatalf("expected gateway started with call_id %s", c.CallID)
	}
}

func TestBegin_GatewayFailureStillCreates(t *testing.T) {
	h := newHarness(t, jobs.Inline{}, interested())
	h.gateway.err = telephony.ErrRejected
	ctx := context.Background()

	c, err := h.svc.Begin(ctx, validRequest())
	if err != nil {
		t.Fatalf("Begin should swallow provider errors: %v", err)
	}
	got, _ := h.repo.Get(ctx, c.ID)
	if got.Status != StatusCalling {
		t.Fatalf("expected calling, got %s", got.Status)
	}
	if got.ProviderSessionID != nil {
		t.Fatalf("expected no session")
	}
	if n := len(eventsOfType(h.events.Events(), audit.EventTypeProviderError)); n != 1 {
		t.Fatalf("expected 1 provider_error event, got %d", n)
	}
}

func TestBegin_ValidationError(t *testing.T) {
	h := newHarness(t, jobs.Inline{}, interested())
	_, err := h.svc.Begin(context.Background(), CreateRequest{Language: "ru"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if items, _ := h.repo.List(context.Background(), 0, 10); len(items) != 0 {
		t.Fatalf("expected nothing persisted")
	}
	if len(h.gateway.started) != 0 {
		t.Fatalf("gateway should not be called")
	}
}

func TestOnTranscriptReceived_UnknownCall(t *testing.T) {
	h := newHarness(t, jobs.Inline{}, interested())
	_, err := h.svc.OnTranscriptReceived(context.Background(), TranscriptDelivery{CallID: "nope"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = h.svc.OnTranscriptReceived(context.Background(), TranscriptDelivery{CallID: "  "})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPipeline_Dispositions(t *testing.T) {
	cases := []struct {
		name      string
		j         Judgement
		wantCRM   CRMStatus
		wantLink  bool
		wantTalks bool
	}{
		{"interested", interested(), CRMStatusAdded, true, true},
		{"no answer", Judgement{Disposition: DispositionNoAnswer, CRMStatus: CRMStatusAdded}, CRMStatusNotCreated, false, false},
		{"busy", Judgement{Disposition: DispositionBusy}, CRMStatusNotCreated, false, false},
		{"rejected keeps suggestion", Judgement{Disposition: DispositionRejected, CRMStatus: CRMStatusNotCreated}, CRMStatusNotCreated, false, true},
		{"chat with no suggestion", Judgement{Disposition: DispositionContinueInChat}, CRMStatusPending, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, jobs.Inline{}, tc.j)
			ctx := context.Background()
			c, err := h.svc.Begin(ctx, validRequest())
			if err != nil {
				t.Fatalf("Begin: %v", err)
			}

			if _, err := h.svc.OnTranscriptReceived(ctx, TranscriptDelivery{CallID: c.CallID, Transcript: "USER: hi", Duration: 42}); err != nil {
				t.Fatalf("OnTranscriptReceived: %v", err)
			}

			got, _ := h.repo.Get(ctx, c.ID)
			if got.Status != StatusCompleted {
				t.Fatalf("expected completed, got %s", got.Status)
			}
			if got.CRMStatus != tc.wantCRM {
				t.Fatalf("crm: got %s want %s", got.CRMStatus, tc.wantCRM)
			}
			if got.TelegramLinkSent != tc.wantLink {
				t.Fatalf("telegram_link_sent: got %v want %v", got.TelegramLinkSent, tc.wantLink)
			}
			if got.Disposition == nil || *got.Disposition != tc.j.Disposition || got.Disposition.Talked() != tc.wantTalks {
				t.Fatalf("unexpected disposition %v", got.Disposition)
			}
			if got.Transcript == nil || *got.Transcript != "USER: hi" || got.Duration == nil || *got.Duration != 42 {
				t.Fatalf("transcript/duration not persisted")
			}
			if got.CompletedAt == nil {
				t.Fatalf("expected completed_at")
			}
			if got.FunnelAchieved != nil {
				t.Fatalf("funnel_achieved must stay nil without a goal")
			}

			var path []string
			for _, e := range eventsOfType(h.events.Events(), audit.EventTypeStatusChanged) {
				path = append(path, e.ToStatus)
			}
			want := []string{"calling", "analyzing", "preparing_followup", "sending_sms", "adding_to_crm", "completed"}
			if len(path) != len(want) {
				t.Fatalf("unexpected status path %v", path)
			}
			for i := range want {
				if path[i] != want[i] {
					t.Fatalf("unexpected status path %v", path)
				}
			}
		})
	}
}

func TestPipeline_FunnelAchievedWithGoal(t *testing.T) {
	yes := true
	j := interested()
	j.FunnelAchieved = &yes
	h := newHarness(t, jobs.Inline{}, j)
	ctx := context.Background()

	req := validRequest()
	req.FunnelGoal = "book a demo"
	c, _ := h.svc.Begin(ctx, req)
	if _, err := h.svc.OnTranscriptReceived(ctx, TranscriptDelivery{CallID: c.CallID, Transcript: "x"}); err != nil {
		t.Fatalf("OnTranscriptReceived: %v", err)
	}
	got, _ := h.repo.Get(ctx, c.ID)
	if got.FunnelAchieved == nil || !*got.FunnelAchieved {
		t.Fatalf("expected funnel_achieved=true, got %v", got.FunnelAchieved)
	}

	// Without a goal an analyzer verdict is ignored.
	h2 := newHarness(t, jobs.Inline{}, j)
	c2, _ := h2.svc.Begin(ctx, validRequest())
	_, _ = h2.svc.OnTranscriptReceived(ctx, TranscriptDelivery{CallID: c2.CallID, Transcript: "x"})
	got2, _ := h2.repo.Get(ctx, c2.ID)
	if got2.FunnelAchieved != nil {
		t.Fatalf("expected nil funnel_achieved, got %v", *got2.FunnelAchieved)
	}
}

func TestOnTranscriptReceived_DuplicateRejected(t *testing.T) {
	sched := &captureJobs{}
	h := newHarness(t, sched, interested())
	ctx := context.Background()

	c, _ := h.svc.Begin(ctx, validRequest())
	sched.runAll(t)

	if _, err := h.svc.OnTranscriptReceived(ctx, TranscriptDelivery{CallID: c.CallID, Transcript: "first", Duration: 10}); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	_, err := h.svc.OnTranscriptReceived(ctx, TranscriptDelivery{CallID: c.CallID, Transcript: "second", Duration: 99})
	if !errors.Is(err, ErrTranscriptAlreadyReceived) {
		t.Fatalf("expected ErrTranscriptAlreadyReceived, got %v", err)
	}
	got, _ := h.repo.Get(ctx, c.ID)
	if got.Status != StatusAnalyzing || *got.Transcript != "first" || *got.Duration != 10 {
		t.Fatalf("duplicate mutated the record: %+v", got)
	}
	if len(sched.jobs) != 1 {
		t.Fatalf("expected exactly one pipeline job, got %d", len(sched.jobs))
	}
}

func TestOnTranscriptReceived_TerminalIsNotFound(t *testing.T) {
	h := newHarness(t, jobs.Inline{}, interested())
	ctx := context.Background()

	c, _ := h.svc.Begin(ctx, validRequest())
	_, _ = h.svc.OnTranscriptReceived(ctx, TranscriptDelivery{CallID: c.CallID, Transcript: "x"})

	_, err := h.svc.OnTranscriptReceived(ctx, TranscriptDelivery{CallID: c.CallID, Transcript: "again"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for completed call, got %v", err)
	}
}

func TestOnTranscriptReceived_InitiatingWalksThroughCalling(t *testing.T) {
	sched := &captureJobs{}
	h := newHarness(t, sched, interested())
	ctx := context.Background()

	c, _ := h.svc.Begin(ctx, validRequest())
	if got, _ := h.repo.Get(ctx, c.ID); got.Status != StatusInitiating {
		t.Fatalf("expected initiating before jobs run, got %s", got.Status)
	}

	if _, err := h.svc.OnTranscriptReceived(ctx, TranscriptDelivery{CallID: c.CallID, Transcript: "x"}); err != nil {
		t.Fatalf("OnTranscriptReceived: %v", err)
	}
	// The late mark_calling job is a no-op; the pipeline job completes the call.
	sched.runAll(t)

	got, _ := h.repo.Get(ctx, c.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	changes := eventsOfType(h.events.Events(), audit.EventTypeStatusChanged)
	if len(changes) < 2 || changes[0].FromStatus != "initiating" || changes[0].ToStatus != "calling" {
		t.Fatalf("expected initiating -> calling first, got %+v", changes)
	}
}

func TestPipeline_InvalidDispositionFails(t *testing.T) {
	h := newHarness(t, jobs.Inline{}, Judgement{Disposition: "maybe"})
	ctx := context.Background()

	c, _ := h.svc.Begin(ctx, validRequest())
	if _, err := h.svc.OnTranscriptReceived(ctx, TranscriptDelivery{CallID: c.CallID, Transcript: "x"}); err != nil {
		t.Fatalf("OnTranscriptReceived: %v", err)
	}
	got, _ := h.repo.Get(ctx, c.ID)
	if got.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	failed := eventsOfType(h.events.Events(), audit.EventTypeStepFailed)
	if len(failed) != 1 || failed[0].Step != StepAnalyze {
		t.Fatalf("expected one step_failed for analyze, got %+v", failed)
	}
}

func TestOnTranscriptReceived_ScheduleFailureFails(t *testing.T) {
	sched := &captureJobs{}
	h := newHarness(t, sched, interested())
	ctx := context.Background()

	c, _ := h.svc.Begin(ctx, validRequest())
	sched.runAll(t)
	sched.err = jobs.ErrClosed

	if _, err := h.svc.OnTranscriptReceived(ctx, TranscriptDelivery{CallID: c.CallID, Transcript: "x"}); !errors.Is(err, jobs.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	got, _ := h.repo.Get(ctx, c.ID)
	if got.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestOnTranscriptReceived_ConcurrentDeliveriesOneWinner(t *testing.T) {
	sched := &captureJobs{}
	h := newHarness(t, sched, interested())
	ctx := context.Background()

	c, _ := h.svc.Begin(ctx, validRequest())
	sched.runAll(t)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		dupes   int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.OnTranscriptReceived(ctx, TranscriptDelivery{CallID: c.CallID, Transcript: "x"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrTranscriptAlreadyReceived):
				dupes++
			default:
				t.Errorf("unexpected err: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 || dupes != n-1 {
		t.Fatalf("expected 1 winner and %d duplicates, got %d and %d", n-1, winners, dupes)
	}
	if len(sched.jobs) != 1 {
		t.Fatalf("expected one pipeline job, got %d", len(sched.jobs))
	}
}

func TestRunAnalysisPipeline_LockHeldSkips(t *testing.T) {
	sched := &captureJobs{}
	h := newHarness(t, sched, interested())
	locker := lock.NewMemory()
	h.svc.locker = locker
	ctx := context.Background()

	c, _ := h.svc.Begin(ctx, validRequest())
	sched.runAll(t)
	if _, err := h.svc.OnTranscriptReceived(ctx, TranscriptDelivery{CallID: c.CallID, Transcript: "x"}); err != nil {
		t.Fatalf("OnTranscriptReceived: %v", err)
	}

	release, ok, err := locker.TryLock(ctx, "pipeline:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected to take the lock: ok=%v err=%v", ok, err)
	}
	if err := h.svc.RunAnalysisPipeline(ctx, c.ID); err != nil {
		t.Fatalf("RunAnalysisPipeline: %v", err)
	}
	if got, _ := h.repo.Get(ctx, c.ID); got.Status != StatusAnalyzing {
		t.Fatalf("expected pipeline skipped, got %s", got.Status)
	}
	if h.analyzer.calls != 0 {
		t.Fatalf("analyzer should not run while locked")
	}

	_ = release(ctx)
	if err := h.svc.RunAnalysisPipeline(ctx, c.ID); err != nil {
		t.Fatalf("RunAnalysisPipeline: %v", err)
	}
	if got, _ := h.repo.Get(ctx, c.ID); got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}

	// A second run on a completed record is a no-op.
	if err := h.svc.RunAnalysisPipeline(ctx, c.ID); err != nil {
		t.Fatalf("RunAnalysisPipeline: %v", err)
	}
	if h.analyzer.calls != 1 {
		t.Fatalf("expected analyzer to run once, got %d", h.analyzer.calls)
	}
}

func TestFailStale(t *testing.T) {
	sched := &captureJobs{}
	h := newHarness(t, sched, interested())
	ctx := context.Background()

	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	h.repo.WithClock(func() time.Time { return now })
	h.svc.clock = func() time.Time { return now }

	old, _ := h.svc.Begin(ctx, validRequest())
	now = t0.Add(50 * time.Minute)
	fresh, _ := h.svc.Begin(ctx, validRequest())
	now = t0.Add(time.Hour)

	n, err := h.svc.FailStale(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("FailStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 stale call, got %d", n)
	}
	if got, _ := h.repo.Get(ctx, old.ID); got.Status != StatusFailed {
		t.Fatalf("expected old call failed, got %s", got.Status)
	}
	if got, _ := h.repo.Get(ctx, fresh.ID); got.Status != StatusInitiating {
		t.Fatalf("expected fresh call untouched, got %s", got.Status)
	}
	failed := eventsOfType(h.events.Events(), audit.EventTypeStepFailed)
	if len(failed) != 1 || failed[0].Step != StepStaleSweep {
		t.Fatalf("expected stale_sweep event, got %+v", failed)
	}

	if n, _ := h.svc.FailStale(ctx, 0); n != 0 {
		t.Fatalf("zero threshold must be a no-op")
	}
}

func TestFailStale_InterruptedPipeline(t *testing.T) {
	sched := &captureJobs{}
	h := newHarness(t, sched, interested())
	ctx := context.Background()

	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	h.repo.WithClock(func() time.Time { return now })
	h.svc.clock = func() time.Time { return now }

	// Created long ago but still moving: only the last write counts.
	c, _ := h.svc.Begin(ctx, validRequest())
	now = t0.Add(2 * time.Hour)
	if _, err := h.repo.Apply(ctx, c.ID, StatusInitiating, Patch{Status: StatusCalling}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := h.repo.Apply(ctx, c.ID, StatusCalling, Patch{Status: StatusAnalyzing}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := h.repo.Apply(ctx, c.ID, StatusAnalyzing, Patch{Status: StatusPreparingFollowup}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	now = t0.Add(2*time.Hour + 10*time.Minute)
	if n, _ := h.svc.FailStale(ctx, 30*time.Minute); n != 0 {
		t.Fatalf("recently written record must survive, failed %d", n)
	}

	// The process died here; nothing writes the record again.
	now = t0.Add(3 * time.Hour)
	n, err := h.svc.FailStale(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("FailStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 stale call, got %d", n)
	}
	if got, _ := h.repo.Get(ctx, c.ID); got.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestList_ClampsAndOrders(t *testing.T) {
	h := newHarness(t, jobs.Inline{}, interested())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := h.svc.Begin(ctx, validRequest()); err != nil {
			t.Fatalf("Begin: %v", err)
		}
	}

	items, err := h.svc.List(ctx, -5, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 3 || items[0].ID != 3 {
		t.Fatalf("expected newest first, got %+v", items)
	}

	items, _ = h.svc.List(ctx, 1, 1)
	if len(items) != 1 || items[0].ID != 2 {
		t.Fatalf("unexpected page: %+v", items)
	}
	items, _ = h.svc.List(ctx, 10, MaxListLimit+1)
	if len(items) != 0 {
		t.Fatalf("expected empty page past the end")
	}
}

func TestProviderHistory(t *testing.T) {
	h := newHarness(t, jobs.Inline{}, interested())
	ctx := context.Background()

	c, _ := h.svc.Begin(ctx, validRequest())
	hist, err := h.svc.ProviderHistory(ctx, c.ID)
	if err != nil {
		t.Fatalf("ProviderHistory: %v", err)
	}
	if hist.SessionID != h.gateway.session {
		t.Fatalf("unexpected session %s", hist.SessionID)
	}

	h.gateway.session = ""
	c2, _ := h.svc.Begin(ctx, validRequest())
	if _, err := h.svc.ProviderHistory(ctx, c2.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without session, got %v", err)
	}
}

func TestSweeper(t *testing.T) {
	h := newHarness(t, jobs.Inline{}, interested())

	s, err := NewSweeper(h.svc, "not a cron", 0, logger.Discard())
	if err != nil {
		t.Fatalf("disabled sweeper must not parse schedule: %v", err)
	}
	s.Start()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if _, err := NewSweeper(h.svc, "not a cron", time.Minute, logger.Discard()); err == nil {
		t.Fatalf("expected schedule error")
	}

	s, err = NewSweeper(h.svc, "*/5 * * * *", time.Minute, logger.Discard())
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	s.Start()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
