package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"call-automation/internal/jobs"
	"call-automation/internal/lock"
	"call-automation/internal/telephony"
	"call-automation/pkg/logger"

	"github.com/google/uuid"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500

	defaultLockTTL = 10 * time.Minute
	failRetries    = 3
)

// Pipeline step names, used in logs and step_failed audit events.
const (
	StepStartCall       = "start_call"
	StepMarkCalling     = "mark_calling"
	StepSchedule        = "schedule_pipeline"
	StepLock            = "acquire_lock"
	StepAnalyze         = "analyze"
	StepPrepareFollowup = "prepare_followup"
	StepSendSMS         = "send_sms"
	StepAddToCRM        = "add_to_crm"
	StepStaleSweep      = "stale_sweep"
)

// TranscriptDelivery is what the webhook hands the controller.
type TranscriptDelivery struct {
	CallID     string
	Transcript string
	Duration   float64
}

type Options struct {
	Jobs   jobs.Scheduler
	Locker lock.Locker
	Audit  AuditLog
	Logger *slog.Logger
	Clock  func() time.Time

	// StepDelay paces the post-analysis steps so pollers can render progress.
	StepDelay time.Duration
	LockTTL   time.Duration
}

// Service is the call lifecycle controller. It is the only writer of call records.
//
// Every transition is a separate compare-and-set commit; background steps run
// through the job scheduler with their own context and never share a
// transaction.
type Service struct {
	repo     Repository
	gateway  telephony.Gateway
	analyzer Analyzer

	jobs      jobs.Scheduler
	locker    lock.Locker
	audit     AuditLog
	log       *slog.Logger
	clock     func() time.Time
	stepDelay time.Duration
	lockTTL   time.Duration
}

func NewService(repo Repository, gateway telephony.Gateway, analyzer Analyzer, opts Options) *Service {
	s := &Service{
		repo:      repo,
		gateway:   gateway,
		analyzer:  analyzer,
		jobs:      opts.Jobs,
		locker:    opts.Locker,
		audit:     opts.Audit,
		log:       opts.Logger,
		clock:     opts.Clock,
		stepDelay: opts.StepDelay,
		lockTTL:   opts.LockTTL,
	}
	if s.gateway == nil {
		s.gateway = telephony.NoopGateway{}
	}
	if s.jobs == nil {
		s.jobs = jobs.Inline{}
	}
	if s.locker == nil {
		s.locker = lock.NewMemory()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	return s
}

// Begin validates req, persists a record in INITIATING, asks the gateway to
// start the call and schedules the move to CALLING. A gateway failure is
// logged and audited but does not fail the request.
func (s *Service) Begin(ctx context.Context, req CreateRequest) (Call, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return Call{}, err
	}

	c, err := s.repo.Create(ctx, Call{
		CallID:          uuid.NewString(),
		PhoneNumber:     req.PhoneNumber,
		Language:        req.Language,
		TTSProvider:     req.TTSProvider,
		Voice:           req.Voice,
		GreetingMessage: req.GreetingMessage,
		Prompt:          req.Prompt,
		FunnelGoal:      req.FunnelGoal,
		Stability:       req.Stability,
		Speed:           req.Speed,
		SimilarityBoost: req.SimilarityBoost,
		Status:          StatusInitiating,
		CRMStatus:       CRMStatusPending,
	})
	if err != nil {
		return Call{}, fmt.Errorf("create call: %w", err)
	}
	log := logger.ForCall(logger.FromOr(ctx, s.log), c.ID, c.CallID)
	log.Info("call created", "phone", c.PhoneNumber, "provider", s.gateway.Name())

	res, err := s.gateway.StartCall(ctx, telephony.StartCallRequest{
		CallID:          c.CallID,
		Phone:           c.PhoneNumber,
		Language:        c.Language,
		TTSProvider:     c.TTSProvider,
		Voice:           c.Voice,
		GreetingMessage: c.GreetingMessage,
		Prompt:          c.Prompt,
		FunnelGoal:      c.FunnelGoal,
		Stability:       c.Stability,
		Speed:           c.Speed,
		SimilarityBoost: c.SimilarityBoost,
	})
	switch {
	case err != nil:
		log.Error("telephony start failed", "step", StepStartCall, "provider", s.gateway.Name(), "err", err)
		s.auditProviderError(ctx, log, c, err)
	case res.SessionID != "":
		updated, perr := s.repo.Apply(ctx, c.ID, "", Patch{ProviderSessionID: &res.SessionID})
		if perr != nil {
			log.Error("persist provider session failed", "step", StepStartCall, "err", perr)
		} else {
			c = updated
		}
	}

	id := c.ID
	if serr := s.jobs.Submit(ctx, jobs.Job{
		Name: "mark_calling:" + strconv.FormatInt(id, 10),
		Run:  func(ctx context.Context) error { return s.MarkCalling(ctx, id) },
	}); serr != nil {
		log.Error("schedule mark calling failed", "step", StepMarkCalling, "err", serr)
	}
	return c, nil
}

// MarkCalling moves INITIATING to CALLING. A record that already advanced (the
// webhook can outrun this job) is left alone.
func (s *Service) MarkCalling(ctx context.Context, id int64) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != StatusInitiating {
		return nil
	}
	log := logger.ForCall(s.log, c.ID, c.CallID)

	_, err = s.advance(ctx, log, c, StatusCalling, Patch{})
	if err == nil || errors.Is(err, ErrStaleState) {
		return nil
	}
	s.failAfter(ctx, c.ID, StepMarkCalling, err)
	return err
}

// OnTranscriptReceived records the transcript for the in-flight call matching
// d.CallID and schedules the analysis pipeline.
//
// Unknown or terminal records give ErrNotFound. A record past CALLING gives
// ErrTranscriptAlreadyReceived. Neither case mutates anything.
func (s *Service) OnTranscriptReceived(ctx context.Context, d TranscriptDelivery) (Call, error) {
	callID := strings.TrimSpace(d.CallID)
	if callID == "" {
		return Call{}, fmt.Errorf("%w: call_id is required", ErrValidation)
	}
	if d.Duration < 0 {
		d.Duration = 0
	}

	c, err := s.repo.FindActiveByCallID(ctx, callID)
	if err != nil {
		return Call{}, err
	}
	log := logger.ForCall(logger.FromOr(ctx, s.log), c.ID, c.CallID)
	if c.Status.Terminal() {
		return Call{}, fmt.Errorf("%w: call is %s", ErrNotFound, c.Status)
	}

	// The webhook can beat the CALLING job; walk through CALLING so no state is skipped.
	if c.Status == StatusInitiating {
		next, err := s.advance(ctx, log, c, StatusCalling, Patch{})
		switch {
		case err == nil:
			c = next
		case errors.Is(err, ErrStaleState):
			if c, err = s.repo.Get(ctx, c.ID); err != nil {
				return Call{}, err
			}
			if c.Status.Terminal() {
				return Call{}, fmt.Errorf("%w: call is %s", ErrNotFound, c.Status)
			}
		default:
			return Call{}, err
		}
	}
	if c.Status != StatusCalling {
		log.Warn("duplicate transcript delivery", "status", c.Status)
		return Call{}, ErrTranscriptAlreadyReceived
	}

	transcript := d.Transcript
	duration := d.Duration
	c, err = s.advance(ctx, log, c, StatusAnalyzing, Patch{Transcript: &transcript, Duration: &duration})
	if errors.Is(err, ErrStaleState) {
		log.Warn("duplicate transcript delivery lost the race")
		return Call{}, ErrTranscriptAlreadyReceived
	}
	if err != nil {
		return Call{}, err
	}
	log.Info("transcript received", "duration", duration, "transcript_len", len(transcript))

	id := c.ID
	if serr := s.jobs.Submit(ctx, jobs.Job{
		Name: "pipeline:" + strconv.FormatInt(id, 10),
		Run:  func(ctx context.Context) error { return s.RunAnalysisPipeline(ctx, id) },
	}); serr != nil {
		log.Error("schedule pipeline failed", "step", StepSchedule, "err", serr)
		s.failAfter(ctx, id, StepSchedule, serr)
		return Call{}, fmt.Errorf("schedule pipeline: %w", serr)
	}
	return c, nil
}

// RunAnalysisPipeline drives an ANALYZING record to COMPLETED, one committed
// step at a time. The first failing step moves the record to FAILED; completed
// steps are never retried.
func (s *Service) RunAnalysisPipeline(ctx context.Context, id int64) error {
	release, ok, err := s.locker.TryLock(ctx, "pipeline:"+strconv.FormatInt(id, 10), s.lockTTL)
	if err != nil {
		s.log.Error("pipeline lock failed", "call_pk", id, "step", StepLock, "err", err)
		s.failAfter(ctx, id, StepLock, err)
		return err
	}
	if !ok {
		s.log.Info("pipeline already running elsewhere", "call_pk", id)
		return nil
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.log.Warn("pipeline lock release failed", "call_pk", id, "err", rerr)
		}
	}()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	log := logger.ForCall(s.log, c.ID, c.CallID)
	if c.Status != StatusAnalyzing {
		log.Warn("pipeline skipped", "status", c.Status)
		return nil
	}

	step, err := s.runSteps(ctx, log, c)
	if err != nil {
		log.Error("pipeline step failed", "step", step, "err", err)
		s.failAfter(ctx, c.ID, step, err)
		return fmt.Errorf("%s: %w", step, err)
	}
	log.Info("pipeline completed")
	return nil
}

func (s *Service) runSteps(ctx context.Context, log *slog.Logger, c Call) (string, error) {
	in := AnalysisInput{Prompt: c.Prompt, FunnelGoal: c.FunnelGoal}
	if c.Transcript != nil {
		in.Transcript = *c.Transcript
	}
	j := s.analyzer.Analyze(ctx, in)
	if !j.Disposition.Valid() {
		return StepAnalyze, fmt.Errorf("analyzer returned disposition %q", j.Disposition)
	}
	disposition := j.Disposition
	p := Patch{
		Disposition:      &disposition,
		Summary:          strPtr(j.Summary),
		CustomerInterest: strPtr(j.CustomerInterest),
	}
	if c.FunnelGoal != "" && j.FunnelAchieved != nil {
		p.FunnelAchieved = boolPtr(*j.FunnelAchieved)
	}
	c, err := s.advance(ctx, log, c, StatusPreparingFollowup, p)
	if err != nil {
		return StepAnalyze, err
	}
	if err := s.pace(ctx); err != nil {
		return StepPrepareFollowup, err
	}

	c, err = s.advance(ctx, log, c, StatusSendingSMS, Patch{FollowupMessage: strPtr(j.FollowupMessage)})
	if err != nil {
		return StepPrepareFollowup, err
	}
	if err := s.pace(ctx); err != nil {
		return StepSendSMS, err
	}

	sent := disposition == DispositionInterested
	c, err = s.advance(ctx, log, c, StatusAddingToCRM, Patch{TelegramLinkSent: &sent})
	if err != nil {
		return StepSendSMS, err
	}
	if err := s.pace(ctx); err != nil {
		return StepAddToCRM, err
	}

	crm := DeriveCRMStatus(disposition, j.CRMStatus)
	done := s.clock().UTC()
	if _, err = s.advance(ctx, log, c, StatusCompleted, Patch{CRMStatus: &crm, CompletedAt: &done}); err != nil {
		return StepAddToCRM, err
	}
	return "", nil
}

// Fail moves a non-terminal record to FAILED, re-reading on concurrent change.
// Terminal records are left as they are.
func (s *Service) Fail(ctx context.Context, id int64, step string, cause error) error {
	for attempt := 0; attempt < failRetries; attempt++ {
		c, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if c.Status.Terminal() {
			return nil
		}
		log := logger.ForCall(s.log, c.ID, c.CallID)
		_, err = s.advance(ctx, log, c, StatusFailed, Patch{})
		if errors.Is(err, ErrStaleState) {
			continue
		}
		if err != nil {
			return err
		}
		msg := ""
		if cause != nil {
			msg = cause.Error()
		}
		log.Error("call failed", "step", step, "err", msg)
		if s.audit != nil {
			if aerr := s.audit.StepFailed(ctx, c.ID, c.CallID, step, msg); aerr != nil {
				log.Warn("audit append failed", "err", aerr)
			}
		}
		return nil
	}
	return ErrStaleState
}

// failAfter runs Fail on a context that survives cancellation of ctx.
func (s *Service) failAfter(ctx context.Context, id int64, step string, cause error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.Fail(fctx, id, step, cause); err != nil {
		s.log.Error("mark failed did not persist", "call_pk", id, "step", step, "err", err)
	}
}

// FailStale fails non-terminal records not written since now-olderThan. This
// covers calls the provider never started, lost webhooks, and pipelines cut
// short by a restart. Each record is failed only if it is still in the
// status it was listed with.
func (s *Service) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := s.clock().UTC().Add(-olderThan)
	rows, err := s.repo.ListStale(ctx, NonTerminal(), cutoff)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, c := range rows {
		log := logger.ForCall(s.log, c.ID, c.CallID)
		if _, err := s.advance(ctx, log, c, StatusFailed, Patch{}); err != nil {
			if !errors.Is(err, ErrStaleState) {
				log.Error("stale call fail failed", "step", StepStaleSweep, "err", err)
			}
			continue
		}
		n++
		log.Warn("stale call failed", "step", StepStaleSweep, "last_update", c.lastTouched(), "was", c.Status)
		if s.audit != nil {
			if aerr := s.audit.StepFailed(ctx, c.ID, c.CallID, StepStaleSweep, "no progress in "+string(c.Status)+" since "+c.lastTouched().Format(time.RFC3339)); aerr != nil {
				log.Warn("audit append failed", "err", aerr)
			}
		}
	}
	return n, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Call, error) {
	return s.repo.Get(ctx, id)
}

// List clamps limit to [1, MaxListLimit], defaulting to DefaultListLimit.
func (s *Service) List(ctx context.Context, skip, limit int) ([]ListItem, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.repo.List(ctx, skip, limit)
}

// ProviderHistory fetches the provider's record of the call's session.
func (s *Service) ProviderHistory(ctx context.Context, id int64) (telephony.CallHistory, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return telephony.CallHistory{}, err
	}
	if c.ProviderSessionID == nil || *c.ProviderSessionID == "" {
		return telephony.CallHistory{}, fmt.Errorf("%w: call has no provider session", ErrNotFound)
	}
	return s.gateway.CallHistory(ctx, *c.ProviderSessionID)
}

// advance commits c.Status -> to together with p, guarded by the current status.
func (s *Service) advance(ctx context.Context, log *slog.Logger, c Call, to Status, p Patch) (Call, error) {
	if !CanTransition(c.Status, to) {
		return Call{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	p.Status = to
	next, err := s.repo.Apply(ctx, c.ID, c.Status, p)
	if err != nil {
		return Call{}, err
	}
	log.Debug("status changed", "from", c.Status, "to", to)
	if s.audit != nil {
		if aerr := s.audit.StatusChanged(ctx, c.ID, c.CallID, string(c.Status), string(to)); aerr != nil {
			log.Warn("audit append failed", "err", aerr)
		}
	}
	return next, nil
}

func (s *Service) auditProviderError(ctx context.Context, log *slog.Logger, c Call, cause error) {
	if s.audit == nil {
		return
	}
	if err := s.audit.ProviderError(ctx, c.ID, c.CallID, cause.Error()); err != nil {
		log.Warn("audit append failed", "err", err)
	}
}

func (s *Service) pace(ctx context.Context) error {
	if s.stepDelay <= 0 {
		return nil
	}
	t := time.NewTimer(s.stepDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
