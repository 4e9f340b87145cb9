// Package ingest is the write path of the event store: validate the union
// shape, append durably, then schedule reducer work. Everything downstream
// of the append is replay-safe, so a crash between append and enqueue loses
// nothing; the next event for the pair triggers a full replay anyway.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/apperr"
	"github.com/mutqin/backend/internal/core"
	"github.com/mutqin/backend/internal/metrics"
)

// Store appends one event with its in-transaction side effects, reporting
// false when the (user, client_event_id) key deduplicated the insert.
type Store interface {
	AppendEvent(ctx context.Context, ev *core.ReviewEvent) (bool, error)
}

// Enqueuer schedules reducer work for a (user, ayah) pair.
type Enqueuer interface {
	Enqueue(userID uuid.UUID, ayahID int)
}

// Input is one event submission before identity assignment.
type Input struct {
	EventType       core.EventType
	SessionRunID    *uuid.UUID
	ClientEventID   *string
	SessionType     *string
	ItemAyahID      *int
	Tier            *core.ReviewTier
	StepType        *core.StepType
	AttemptNumber   *int
	ScaffoldingUsed bool
	LinkedAyahID    *int
	FromAyahID      *int
	ToAyahID        *int
	Success         *bool
	ErrorsCount     *int
	DurationSeconds *int
	ErrorTags       []string
	OccurredAt      time.Time
}

// Result reports the ingest outcome. EventID is nil on deduplication.
type Result struct {
	Deduplicated bool       `json:"deduplicated"`
	EventID      *uuid.UUID `json:"event_id,omitempty"`
}

// Service is the event store front door.
type Service struct {
	store    Store
	enqueuer Enqueuer
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService builds the ingest service. enqueuer and metrics may be nil.
func NewService(store Store, enqueuer Enqueuer, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, enqueuer: enqueuer, logger: logger, metrics: m, now: time.Now}
}

// WithClock overrides the service clock; tests pin it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Ingest validates, appends, and schedules. Duplicate client event ids are
// reported as success with Deduplicated set and cause no side effects.
func (s *Service) Ingest(ctx context.Context, userID uuid.UUID, in Input) (Result, error) {
	if err := validate(in); err != nil {
		return Result{}, err
	}

	now := s.now().UTC()
	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}

	ev := &core.ReviewEvent{
		ID:              uuid.New(),
		UserID:          userID,
		EventType:       in.EventType,
		SessionRunID:    in.SessionRunID,
		ClientEventID:   in.ClientEventID,
		SessionType:     in.SessionType,
		ItemAyahID:      in.ItemAyahID,
		Tier:            in.Tier,
		StepType:        in.StepType,
		AttemptNumber:   in.AttemptNumber,
		ScaffoldingUsed: in.ScaffoldingUsed,
		LinkedAyahID:    in.LinkedAyahID,
		FromAyahID:      in.FromAyahID,
		ToAyahID:        in.ToAyahID,
		Success:         in.Success,
		ErrorsCount:     in.ErrorsCount,
		DurationSeconds: in.DurationSeconds,
		ErrorTags:       in.ErrorTags,
		OccurredAt:      occurred.UTC(),
		ReceivedAt:      now,
	}

	inserted, err := s.store.AppendEvent(ctx, ev)
	if err != nil {
		return Result{}, err
	}
	if !inserted {
		if s.metrics != nil {
			s.metrics.EventsDeduped.Inc()
		}
		return Result{Deduplicated: true}, nil
	}

	if s.metrics != nil {
		s.metrics.EventsIngested.WithLabelValues(string(ev.EventType)).Inc()
	}
	if ev.EventType == core.EventReviewAttempted && s.enqueuer != nil {
		s.enqueuer.Enqueue(userID, *ev.ItemAyahID)
	}

	id := ev.ID
	return Result{EventID: &id}, nil
}

func validate(in Input) error {
	switch in.EventType {
	case core.EventReviewAttempted:
		if in.ItemAyahID == nil || *in.ItemAyahID < 1 || *in.ItemAyahID > core.TotalAyahs {
			return apperr.Validation("item_ayah_id must be in [1, 6236]")
		}
		if in.Tier == nil || !validTier(*in.Tier) {
			return apperr.Validation("tier must be SABAQ, SABQI or MANZIL")
		}
		if in.Success == nil {
			return apperr.Validation("success is required")
		}
		if in.ErrorsCount == nil || *in.ErrorsCount < 0 {
			return apperr.Validation("errors_count must be >= 0")
		}
		if in.DurationSeconds == nil || *in.DurationSeconds <= 0 {
			return apperr.Validation("duration_seconds must be > 0")
		}
		if in.AttemptNumber != nil && (*in.AttemptNumber < 1 || *in.AttemptNumber > 3) {
			return apperr.Validation("attempt_number must be in [1, 3]")
		}
		if in.StepType != nil && !validStep(*in.StepType) {
			return apperr.Validation("step_type must be EXPOSURE, GUIDED, BLIND or LINK")
		}
		if in.StepType != nil && *in.StepType == core.StepLink && in.LinkedAyahID == nil {
			return apperr.Validation("linked_ayah_id is required for LINK steps")
		}
		return nil

	case core.EventTransitionAttempted:
		if in.FromAyahID == nil || in.ToAyahID == nil {
			return apperr.Validation("from_ayah_id and to_ayah_id are required")
		}
		if in.Success == nil {
			return apperr.Validation("success is required")
		}
		return nil

	default:
		return apperr.Validation("event_type must be REVIEW_ATTEMPTED or TRANSITION_ATTEMPTED")
	}
}

func validTier(t core.ReviewTier) bool {
	return t == core.TierSabaq || t == core.TierSabqi || t == core.TierManzil
}

func validStep(st core.StepType) bool {
	switch st {
	case core.StepExposure, core.StepGuided, core.StepBlind, core.StepLink:
		return true
	}
	return false
}
