package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mutqin/backend/internal/core"
)

const eventColumns = `
	id, user_id, event_type, session_run_id, client_event_id, session_type,
	item_ayah_id, tier, step_type, attempt_number, scaffolding_used,
	linked_ayah_id, from_ayah_id, to_ayah_id, success, errors_count,
	duration_seconds, occurred_at, received_at`

// AppendEvent durably inserts one event and performs its in-transaction side
// effects: bumping the session run counter and upserting the transition
// score. Returns false with no side effects when the (user, client_event_id)
// unique key already holds a row, so re-ingestion is a no-op.
func (s *Store) AppendEvent(ctx context.Context, ev *core.ReviewEvent) (bool, error) {
	inserted := false
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO review_events (
				id, user_id, event_type, session_run_id, client_event_id,
				session_type, item_ayah_id, tier, step_type, attempt_number,
				scaffolding_used, linked_ayah_id, from_ayah_id, to_ayah_id,
				success, errors_count, duration_seconds, error_tags,
				occurred_at, received_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
			ON CONFLICT (user_id, client_event_id) WHERE client_event_id IS NOT NULL
			DO NOTHING`,
			ev.ID, ev.UserID, ev.EventType, ev.SessionRunID, ev.ClientEventID,
			ev.SessionType, ev.ItemAyahID, ev.Tier, ev.StepType, ev.AttemptNumber,
			ev.ScaffoldingUsed, ev.LinkedAyahID, ev.FromAyahID, ev.ToAyahID,
			ev.Success, ev.ErrorsCount, ev.DurationSeconds, pq.Array(ev.ErrorTags),
			ev.OccurredAt, ev.ReceivedAt)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert event rows: %w", err)
		}
		if n == 0 {
			return nil // deduplicated
		}
		inserted = true

		if ev.SessionRunID != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE session_runs SET events_count = events_count + 1
				WHERE id = $1`, *ev.SessionRunID); err != nil {
				return fmt.Errorf("bump session events: %w", err)
			}
		}

		if from, to, ok := transitionPair(ev); ok {
			success := ev.Success != nil && *ev.Success
			if err := upsertTransition(ctx, tx, ev.UserID, from, to, success, ev.OccurredAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// transitionPair extracts the link the event exercises: LINK-typed review
// steps practice item→linked, transition events carry their own pair.
func transitionPair(ev *core.ReviewEvent) (from, to int, ok bool) {
	switch ev.EventType {
	case core.EventReviewAttempted:
		if ev.StepType != nil && *ev.StepType == core.StepLink &&
			ev.ItemAyahID != nil && ev.LinkedAyahID != nil {
			return *ev.ItemAyahID, *ev.LinkedAyahID, true
		}
	case core.EventTransitionAttempted:
		if ev.FromAyahID != nil && ev.ToAyahID != nil {
			return *ev.FromAyahID, *ev.ToAyahID, true
		}
	}
	return 0, 0, false
}

func upsertTransition(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, from, to int, success bool, at time.Time) error {
	successInc := 0
	if success {
		successInc = 1
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transition_scores (user_id, from_ayah_id, to_ayah_id, attempt_count, success_count, last_practiced_at)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (user_id, from_ayah_id, to_ayah_id) DO UPDATE SET
			attempt_count = transition_scores.attempt_count + 1,
			success_count = transition_scores.success_count + $4,
			last_practiced_at = GREATEST(transition_scores.last_practiced_at, EXCLUDED.last_practiced_at)`,
		userID, from, to, successInc, at)
	if err != nil {
		return fmt.Errorf("upsert transition score: %w", err)
	}
	return nil
}

// ReduceItem replays the full REVIEW_ATTEMPTED log for the pair and upserts
// the folded state, all inside one transaction holding an advisory lock on
// the (user, ayah) key so concurrent reductions serialize.
func (s *Store) ReduceItem(ctx context.Context, userID uuid.UUID, ayahID int, fold func([]core.ReviewEvent) *core.UserItemState) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1::text), $2)`, userID, ayahID); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}

		var events []core.ReviewEvent
		err := tx.SelectContext(ctx, &events, `
			SELECT `+eventColumns+`
			FROM review_events
			WHERE user_id = $1 AND item_ayah_id = $2 AND event_type = 'REVIEW_ATTEMPTED'
			ORDER BY occurred_at ASC, id ASC`, userID, ayahID)
		if err != nil {
			return fmt.Errorf("load item events: %w", err)
		}

		st := fold(events)
		if st == nil {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_item_states (
				user_id, ayah_id, status, tier, next_review_at,
				review_interval_seconds, interval_checkpoint_index, introduced_at,
				first_memorized_at, difficulty_score, total_reviews,
				successful_reviews, lapses, success_streak,
				consecutive_perfect_days, last_perfect_day,
				average_duration_seconds, last_errors_count, last_reviewed_at,
				last_event_occurred_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,now())
			ON CONFLICT (user_id, ayah_id) DO UPDATE SET
				status = EXCLUDED.status,
				tier = EXCLUDED.tier,
				next_review_at = EXCLUDED.next_review_at,
				review_interval_seconds = EXCLUDED.review_interval_seconds,
				interval_checkpoint_index = EXCLUDED.interval_checkpoint_index,
				introduced_at = EXCLUDED.introduced_at,
				first_memorized_at = EXCLUDED.first_memorized_at,
				difficulty_score = EXCLUDED.difficulty_score,
				total_reviews = EXCLUDED.total_reviews,
				successful_reviews = EXCLUDED.successful_reviews,
				lapses = EXCLUDED.lapses,
				success_streak = EXCLUDED.success_streak,
				consecutive_perfect_days = EXCLUDED.consecutive_perfect_days,
				last_perfect_day = EXCLUDED.last_perfect_day,
				average_duration_seconds = EXCLUDED.average_duration_seconds,
				last_errors_count = EXCLUDED.last_errors_count,
				last_reviewed_at = EXCLUDED.last_reviewed_at,
				last_event_occurred_at = EXCLUDED.last_event_occurred_at,
				updated_at = now()`,
			st.UserID, st.AyahID, st.Status, st.Tier, st.NextReviewAt,
			st.ReviewIntervalSeconds, st.IntervalCheckpointIndex, st.IntroducedAt,
			st.FirstMemorizedAt, st.DifficultyScore, st.TotalReviews,
			st.SuccessfulReviews, st.Lapses, st.SuccessStreak,
			st.ConsecutivePerfectDays, st.LastPerfectDay,
			st.AverageDurationSeconds, st.LastErrorsCount, st.LastReviewedAt,
			st.LastEventOccurredAt)
		if err != nil {
			return fmt.Errorf("upsert item state: %w", err)
		}
		return nil
	})
}

// ReviewEventsBetween returns the user's REVIEW_ATTEMPTED events in
// [from, to), ordered.
func (s *Store) ReviewEventsBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]core.ReviewEvent, error) {
	var events []core.ReviewEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT `+eventColumns+`
		FROM review_events
		WHERE user_id = $1 AND event_type = 'REVIEW_ATTEMPTED'
		  AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at ASC, id ASC`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("review events between: %w", err)
	}
	return events, nil
}

// SessionEvents returns every REVIEW_ATTEMPTED event recorded against a
// session run, ordered.
func (s *Store) SessionEvents(ctx context.Context, sessionRunID uuid.UUID) ([]core.ReviewEvent, error) {
	var events []core.ReviewEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT `+eventColumns+`
		FROM review_events
		WHERE session_run_id = $1 AND event_type = 'REVIEW_ATTEMPTED'
		ORDER BY occurred_at ASC, id ASC`, sessionRunID)
	if err != nil {
		return nil, fmt.Errorf("session events: %w", err)
	}
	return events, nil
}

// SessionEventsForAyah narrows SessionEvents to one ayah; the protocol
// validator derives the step multiset from it.
func (s *Store) SessionEventsForAyah(ctx context.Context, sessionRunID uuid.UUID, ayahID int) ([]core.ReviewEvent, error) {
	var events []core.ReviewEvent
	err := s.db.SelectContext(ctx, &events, `
		SELECT `+eventColumns+`
		FROM review_events
		WHERE session_run_id = $1 AND item_ayah_id = $2 AND event_type = 'REVIEW_ATTEMPTED'
		ORDER BY occurred_at ASC, id ASC`, sessionRunID, ayahID)
	if err != nil {
		return nil, fmt.Errorf("session events for ayah: %w", err)
	}
	return events, nil
}
