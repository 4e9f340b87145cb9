package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mutqin/backend/internal/apperr"
	"github.com/mutqin/backend/internal/core"
)

const testColumns = `
	id, user_id, status, test_page, duration_seconds, error_count,
	fluency_score, started_at, completed_at`

// CreateFluencyTest inserts a new IN_PROGRESS test.
func (s *Store) CreateFluencyTest(ctx context.Context, t *core.FluencyGateTest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fluency_gate_tests (id, user_id, status, test_page, started_at)
		VALUES ($1, $2, 'IN_PROGRESS', $3, $4)`,
		t.ID, t.UserID, t.TestPage, t.StartedAt)
	if err != nil {
		return fmt.Errorf("create fluency test: %w", err)
	}
	return nil
}

// GetFluencyTest loads one test owned by the user.
func (s *Store) GetFluencyTest(ctx context.Context, userID, testID uuid.UUID) (*core.FluencyGateTest, error) {
	var t core.FluencyGateTest
	err := s.db.GetContext(ctx, &t, `
		SELECT `+testColumns+` FROM fluency_gate_tests
		WHERE id = $1 AND user_id = $2`, testID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("fluency test not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get fluency test: %w", err)
	}
	return &t, nil
}

// LatestFluencyTest returns the user's most recent test, nil when none.
func (s *Store) LatestFluencyTest(ctx context.Context, userID uuid.UUID) (*core.FluencyGateTest, error) {
	var t core.FluencyGateTest
	err := s.db.GetContext(ctx, &t, `
		SELECT `+testColumns+` FROM fluency_gate_tests
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest fluency test: %w", err)
	}
	return &t, nil
}

// FinishFluencyTest moves an IN_PROGRESS test to its terminal status via
// compare-and-set; a terminal test cannot be resubmitted.
func (s *Store) FinishFluencyTest(ctx context.Context, testID uuid.UUID, status core.TestStatus, durationSeconds, errorCount int, score float64, completedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fluency_gate_tests
		SET status = $2, duration_seconds = $3, error_count = $4,
		    fluency_score = $5, completed_at = $6
		WHERE id = $1 AND status = 'IN_PROGRESS'`,
		testID, status, durationSeconds, errorCount, score, completedAt)
	if err != nil {
		return fmt.Errorf("finish fluency test: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("no in-progress fluency test")
	}
	return nil
}
