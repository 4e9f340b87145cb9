package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mutqin/backend/internal/core"
)

const itemColumns = `
	user_id, ayah_id, status, tier, next_review_at, review_interval_seconds,
	interval_checkpoint_index, introduced_at, first_memorized_at,
	difficulty_score, total_reviews, successful_reviews, lapses,
	success_streak, consecutive_perfect_days, last_perfect_day,
	average_duration_seconds, last_errors_count, last_reviewed_at,
	last_event_occurred_at, updated_at`

// DueItems returns all items whose next review is at or before now.
func (s *Store) DueItems(ctx context.Context, userID uuid.UUID, now time.Time) ([]core.UserItemState, error) {
	var items []core.UserItemState
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+` FROM user_item_states
		WHERE user_id = $1 AND next_review_at <= $2 AND status <> 'PAUSED'
		ORDER BY next_review_at ASC`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("due items: %w", err)
	}
	return items, nil
}

// ItemsIntroducedBetween returns items first seen in [from, to); the planner
// uses yesterday's window for warm-up evaluation.
func (s *Store) ItemsIntroducedBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]core.UserItemState, error) {
	var items []core.UserItemState
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+` FROM user_item_states
		WHERE user_id = $1 AND introduced_at >= $2 AND introduced_at < $3`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("items introduced between: %w", err)
	}
	return items, nil
}

// ActiveManzilItems returns the user's long-term tier pool, due or not.
func (s *Store) ActiveManzilItems(ctx context.Context, userID uuid.UUID) ([]core.UserItemState, error) {
	var items []core.UserItemState
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+` FROM user_item_states
		WHERE user_id = $1 AND tier = 'MANZIL' AND status <> 'PAUSED'
		ORDER BY next_review_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("active manzil items: %w", err)
	}
	return items, nil
}

// CountMemorizedSince counts items whose first memorization landed at or
// after the cutoff. The rollup uses today's UTC start.
func (s *Store) CountMemorizedSince(ctx context.Context, userID uuid.UUID, cutoff time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM user_item_states
		WHERE user_id = $1 AND first_memorized_at IS NOT NULL AND first_memorized_at >= $2`,
		userID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("count memorized since: %w", err)
	}
	return n, nil
}

// ItemStates returns every learning row for the user.
func (s *Store) ItemStates(ctx context.Context, userID uuid.UUID) ([]core.UserItemState, error) {
	var items []core.UserItemState
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+` FROM user_item_states
		WHERE user_id = $1
		ORDER BY ayah_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("item states: %w", err)
	}
	return items, nil
}
