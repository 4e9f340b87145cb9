package reducer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/core"
	"github.com/mutqin/backend/internal/metrics"
)

// Store executes one reduction atomically. The implementation must hand the
// fold the complete event sequence for the pair ordered by
// (occurredAt ASC, id ASC), and must serialize concurrent reductions of the
// same pair (the Postgres store takes an advisory lock inside a transaction).
type Store interface {
	ReduceItem(ctx context.Context, userID uuid.UUID, ayahID int, fold func([]core.ReviewEvent) *core.UserItemState) error
}

// Service re-derives item state from the event log.
type Service struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewService builds a reducer service. metrics may be nil in tests.
func NewService(store Store, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, metrics: m}
}

// Reduce replays the full event log for (userID, ayahID) and upserts the
// resulting state. Safe to re-run at any time: the fold is pure.
func (s *Service) Reduce(ctx context.Context, userID uuid.UUID, ayahID int) error {
	start := time.Now()
	err := s.store.ReduceItem(ctx, userID, ayahID, func(events []core.ReviewEvent) *core.UserItemState {
		return Replay(userID, ayahID, events)
	})
	if s.metrics != nil {
		s.metrics.ReducerDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.ReducerRuns.WithLabelValues("error").Inc()
		} else {
			s.metrics.ReducerRuns.WithLabelValues("ok").Inc()
		}
	}
	if err != nil {
		s.logger.Error("item reduction failed",
			zap.String("user_id", userID.String()),
			zap.Int("ayah_id", ayahID),
			zap.Error(err))
		return err
	}
	return nil
}
