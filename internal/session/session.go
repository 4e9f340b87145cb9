// Package session drives the session lifecycle: idempotent start, step
// submission through the 3x3 protocol machine, and the daily rollup written
// on completion. Steps never touch item state directly; every valid step is
// funnelled through the event store so replays reproduce the outcome.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/apperr"
	"github.com/mutqin/backend/internal/core"
	"github.com/mutqin/backend/internal/ingest"
	"github.com/mutqin/backend/internal/metrics"
	"github.com/mutqin/backend/internal/planner"
	"github.com/mutqin/backend/internal/protocol"
	"github.com/mutqin/backend/internal/timeutil"
)

// Store is the persistence surface for session runs and rollups.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*core.User, error)
	CreateSessionRun(ctx context.Context, run *core.SessionRun) (*core.SessionRun, error)
	GetSessionRun(ctx context.Context, id uuid.UUID) (*core.SessionRun, error)
	CompleteSessionRun(ctx context.Context, id uuid.UUID, endedAt time.Time, minutesTotal int) error
	SessionEvents(ctx context.Context, sessionRunID uuid.UUID) ([]core.ReviewEvent, error)
	SessionEventsForAyah(ctx context.Context, sessionRunID uuid.UUID, ayahID int) ([]core.ReviewEvent, error)
	CountMemorizedSince(ctx context.Context, userID uuid.UUID, cutoff time.Time) (int, error)
	UpsertDailySession(ctx context.Context, d *core.DailySession) error
}

// Planner builds the today queue snapshot consulted at start and close.
type Planner interface {
	Build(ctx context.Context, userID uuid.UUID, now time.Time) (*planner.Queue, error)
}

// Ingestor is the event store front door.
type Ingestor interface {
	Ingest(ctx context.Context, userID uuid.UUID, in ingest.Input) (ingest.Result, error)
}

// StartInput opens a session. Mode and warmup may override the planner's
// snapshot; ClientSessionID makes the call idempotent.
type StartInput struct {
	ClientSessionID *string         `json:"client_session_id" validate:"omitempty,max=128"`
	Mode            *core.QueueMode `json:"mode" validate:"omitempty,oneof=NORMAL CONSOLIDATION REVIEW_ONLY"`
	WarmupPassed    *bool           `json:"warmup_passed"`
}

// StartResult is the start payload.
type StartResult struct {
	SessionID    uuid.UUID      `json:"session_id"`
	Mode         core.QueueMode `json:"mode"`
	WarmupPassed bool           `json:"warmup_passed"`
}

// StepInput is one protocol step submission.
type StepInput struct {
	SessionID       uuid.UUID     `json:"session_id" validate:"required"`
	AyahID          int           `json:"ayah_id" validate:"required,min=1,max=6236"`
	StepType        core.StepType `json:"step_type" validate:"required,oneof=EXPOSURE GUIDED BLIND LINK"`
	AttemptNumber   int           `json:"attempt_number" validate:"required,min=1"`
	Success         bool          `json:"success"`
	ErrorsCount     int           `json:"errors_count" validate:"min=0"`
	DurationSeconds int           `json:"duration_seconds" validate:"min=0"`
	ScaffoldingUsed bool          `json:"scaffolding_used"`
	LinkedAyahID    *int          `json:"linked_ayah_id" validate:"omitempty,min=1,max=6236"`
	ErrorTags       []string      `json:"error_tags"`
}

// StepResult is returned after a valid step.
type StepResult struct {
	Recorded     bool                 `json:"recorded"`
	Deduplicated bool                 `json:"deduplicated"`
	StepStatus   protocol.StepStatus  `json:"step_status"`
	NextStep     *core.StepType       `json:"next_step,omitempty"`
	NextAttempt  *int                 `json:"next_attempt,omitempty"`
	Protocol     protocol.Progress    `json:"protocol"`
	Progress     protocol.Expectation `json:"progress"`
}

// CompleteResult is the daily aggregate returned on session close.
type CompleteResult struct {
	SessionID uuid.UUID          `json:"session_id"`
	Daily     *core.DailySession `json:"daily"`
}

// Service runs the lifecycle.
type Service struct {
	store   Store
	planner Planner
	ingest  Ingestor
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService wires the lifecycle service. metrics may be nil.
func NewService(store Store, p Planner, ing Ingestor, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, planner: p, ingest: ing, logger: logger, metrics: m, now: time.Now}
}

// WithClock overrides the service clock; tests pin it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Start opens (or idempotently re-opens) a session, snapshotting the queue
// mode and warm-up verdict. Gate-blocked users are refused.
func (s *Service) Start(ctx context.Context, userID uuid.UUID, in StartInput) (*StartResult, error) {
	now := s.now().UTC()

	q, err := s.planner.Build(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if q.Status == planner.StatusFluencyGateRequired {
		return nil, apperr.New(apperr.KindPrecondition, "fluency gate must be completed before starting a session")
	}

	mode := q.Mode
	if in.Mode != nil {
		mode = *in.Mode
	}
	warmup := q.Warmup.Passed
	if in.WarmupPassed != nil {
		warmup = *in.WarmupPassed
	}

	run, err := s.store.CreateSessionRun(ctx, &core.SessionRun{
		ID:              uuid.New(),
		UserID:          userID,
		ClientSessionID: in.ClientSessionID,
		Mode:            mode,
		WarmupPassed:    warmup,
		Status:          core.SessionActive,
		StartedAt:       now,
	})
	if err != nil {
		return nil, err
	}

	return &StartResult{SessionID: run.ID, Mode: run.Mode, WarmupPassed: run.WarmupPassed}, nil
}

// Step validates one protocol step against the session's prior events and, if
// legal, records it through the event store. The client event id is derived
// from (session, ayah, step, attempt) so retries deduplicate.
func (s *Service) Step(ctx context.Context, userID uuid.UUID, in StepInput) (*StepResult, error) {
	run, err := s.store.GetSessionRun(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if run.UserID != userID {
		return nil, apperr.NotFound("session not found")
	}
	if run.Status != core.SessionActive {
		return nil, apperr.New(apperr.KindPrecondition, "session is not active")
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	proto := protocol.For(user.ScaffoldingLevel)

	prior, err := s.store.SessionEventsForAyah(ctx, run.ID, in.AyahID)
	if err != nil {
		return nil, err
	}
	counts := protocol.CountSteps(prior)

	if err := proto.Validate(counts, in.StepType, in.AttemptNumber); err != nil {
		if s.metrics != nil {
			s.metrics.ProtocolRejections.WithLabelValues(string(user.ScaffoldingLevel)).Inc()
		}
		return nil, err
	}

	clientEventID := timeutil.StepEventID(run.ID, in.AyahID, string(in.StepType), in.AttemptNumber)
	sessionType := string(core.TierSabaq)
	tier := core.TierSabaq
	stepType := in.StepType
	result, err := s.ingest.Ingest(ctx, userID, ingest.Input{
		EventType:       core.EventReviewAttempted,
		SessionRunID:    &run.ID,
		ClientEventID:   &clientEventID,
		SessionType:     &sessionType,
		ItemAyahID:      &in.AyahID,
		Tier:            &tier,
		StepType:        &stepType,
		AttemptNumber:   &in.AttemptNumber,
		ScaffoldingUsed: in.ScaffoldingUsed,
		LinkedAyahID:    in.LinkedAyahID,
		Success:         &in.Success,
		ErrorsCount:     &in.ErrorsCount,
		DurationSeconds: &in.DurationSeconds,
		ErrorTags:       in.ErrorTags,
		OccurredAt:      s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	// Two racing submissions of the same step both validate; the derived
	// client event id lets exactly one land. Re-read so the returned
	// position reflects what is durable.
	after, err := s.store.SessionEventsForAyah(ctx, run.ID, in.AyahID)
	if err != nil {
		return nil, err
	}
	postCounts := protocol.CountSteps(after)
	exp := proto.Expected(postCounts)

	out := &StepResult{
		Recorded:     !result.Deduplicated,
		Deduplicated: result.Deduplicated,
		StepStatus:   proto.StatusAfter(postCounts, in.StepType),
		Protocol:     proto.Summarize(postCounts),
		Progress:     exp,
	}
	if !exp.Completed {
		step := exp.ExpectedStep
		attempt := exp.ExpectedAttempt
		out.NextStep = &step
		out.NextAttempt = &attempt
	}
	return out, nil
}

// Complete closes an active session and writes the daily rollup. Sessions
// already closed are rejected so clients re-read the current state.
func (s *Service) Complete(ctx context.Context, userID uuid.UUID, sessionID uuid.UUID) (*CompleteResult, error) {
	now := s.now().UTC()

	run, err := s.store.GetSessionRun(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if run.UserID != userID {
		return nil, apperr.NotFound("session not found")
	}

	// The queue snapshot at close feeds the rollup; a user who lost gate
	// clearance mid-session cannot close cleanly.
	q, err := s.planner.Build(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if q.Status == planner.StatusFluencyGateRequired {
		return nil, apperr.New(apperr.KindPrecondition, "fluency gate must be completed")
	}

	events, err := s.store.SessionEvents(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	var reviewsTotal, reviewsSuccessful, durationSum int
	for _, ev := range events {
		if ev.EventType != core.EventReviewAttempted {
			continue
		}
		reviewsTotal++
		if ev.Success != nil && *ev.Success {
			reviewsSuccessful++
		}
		if ev.DurationSeconds != nil {
			durationSum += *ev.DurationSeconds
		}
	}
	retention := 1.0
	if reviewsTotal > 0 {
		retention = float64(reviewsSuccessful) / float64(reviewsTotal)
	}
	minutes := (durationSum + 59) / 60

	newAyahs, err := s.store.CountMemorizedSince(ctx, userID, timeutil.DayStart(now))
	if err != nil {
		return nil, err
	}

	if err := s.store.CompleteSessionRun(ctx, run.ID, now, minutes); err != nil {
		return nil, err
	}

	daily := &core.DailySession{
		UserID:                 userID,
		SessionDate:            timeutil.UTCDay(now),
		Mode:                   q.Mode,
		RetentionScore:         retention,
		BacklogMinutesEstimate: q.Debt.BacklogMinutesEstimate,
		OverdueDaysMax:         q.Debt.OverdueDaysMax,
		MinutesTotal:           minutes,
		ReviewsTotal:           reviewsTotal,
		ReviewsSuccessful:      reviewsSuccessful,
		NewAyahsMemorized:      newAyahs,
		WarmupPassed:           q.Warmup.Passed,
		SabaqAllowed:           q.SabaqTask.Allowed,
	}
	if err := s.store.UpsertDailySession(ctx, daily); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SessionsCompleted.Inc()
	}
	s.logger.Info("session completed",
		zap.String("user_id", userID.String()),
		zap.String("session_id", run.ID.String()),
		zap.Int("reviews", reviewsTotal),
		zap.Float64("retention", retention))

	return &CompleteResult{SessionID: run.ID, Daily: daily}, nil
}
