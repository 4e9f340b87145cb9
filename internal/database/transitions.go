package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mutqin/backend/internal/core"
)

// WeakTransitions returns links with at least minAttempts attempts and a
// success rate strictly below maxRate, weakest first.
func (s *Store) WeakTransitions(ctx context.Context, userID uuid.UUID, minAttempts int, maxRate float64, limit int) ([]core.TransitionScore, error) {
	var rows []core.TransitionScore
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, from_ayah_id, to_ayah_id, attempt_count, success_count, last_practiced_at
		FROM transition_scores
		WHERE user_id = $1
		  AND attempt_count >= $2
		  AND success_count::float / attempt_count < $3
		ORDER BY success_count::float / attempt_count ASC, attempt_count DESC
		LIMIT $4`, userID, minAttempts, maxRate, limit)
	if err != nil {
		return nil, fmt.Errorf("weak transitions: %w", err)
	}
	return rows, nil
}

// StrongTransitionCount counts links at or above the rate with enough
// attempts; analytics uses it for the link_master badge.
func (s *Store) StrongTransitionCount(ctx context.Context, userID uuid.UUID, minAttempts int, minRate float64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM transition_scores
		WHERE user_id = $1
		  AND attempt_count >= $2
		  AND success_count::float / attempt_count >= $3`, userID, minAttempts, minRate)
	if err != nil {
		return 0, fmt.Errorf("strong transition count: %w", err)
	}
	return n, nil
}

// TransitionScores returns the user's full link ledger.
func (s *Store) TransitionScores(ctx context.Context, userID uuid.UUID) ([]core.TransitionScore, error) {
	var rows []core.TransitionScore
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, from_ayah_id, to_ayah_id, attempt_count, success_count, last_practiced_at
		FROM transition_scores
		WHERE user_id = $1
		ORDER BY from_ayah_id ASC, to_ayah_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("transition scores: %w", err)
	}
	return rows, nil
}
