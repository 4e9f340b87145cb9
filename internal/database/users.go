package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mutqin/backend/internal/apperr"
	"github.com/mutqin/backend/internal/core"
)

const userColumns = `
	id, email, time_budget_minutes, fluency_score, fluency_gate_passed,
	requires_pre_hifz, scaffolding_level, variant, daily_new_target_ayahs,
	review_ratio_target, retention_threshold, backlog_freeze_ratio,
	consolidation_retention_floor, manzil_rotation_days, avg_seconds_per_item,
	overdue_cap_seconds, prior_juz_band, goal, has_teacher, tajwid_confidence,
	created_at, updated_at`

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*core.User, error) {
	var u core.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// FindOrCreateUserByEmail provisions a first-time user on identity-provider
// login. Concurrent callers race on the email unique key; the loser re-reads.
func (s *Store) FindOrCreateUserByEmail(ctx context.Context, email string) (*core.User, error) {
	var u core.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find user by email: %w", err)
	}

	id := uuid.New()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email) VALUES ($1, $2)
		ON CONFLICT (email) DO NOTHING`, id, email)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = $1`, email); err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	return &u, nil
}

// UpdateUserParameters persists the scheduling parameters computed by
// assessment.
func (s *Store) UpdateUserParameters(ctx context.Context, u *core.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			time_budget_minutes = $2,
			fluency_score = $3,
			scaffolding_level = $4,
			variant = $5,
			daily_new_target_ayahs = $6,
			review_ratio_target = $7,
			retention_threshold = $8,
			backlog_freeze_ratio = $9,
			consolidation_retention_floor = $10,
			manzil_rotation_days = $11,
			avg_seconds_per_item = $12,
			overdue_cap_seconds = $13,
			prior_juz_band = $14,
			goal = $15,
			has_teacher = $16,
			tajwid_confidence = $17,
			updated_at = now()
		WHERE id = $1`,
		u.ID, u.TimeBudgetMinutes, u.FluencyScore, u.ScaffoldingLevel, u.Variant,
		u.DailyNewTargetAyahs, u.ReviewRatioTarget, u.RetentionThreshold,
		u.BacklogFreezeRatio, u.ConsolidationRetentionFloor, u.ManzilRotationDays,
		u.AvgSecondsPerItem, u.OverdueCapSeconds, u.PriorJuzBand, u.Goal,
		u.HasTeacher, u.TajwidConfidence)
	if err != nil {
		return fmt.Errorf("update user parameters: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// SetUserFluencyResult updates the gate outcome fields on the user.
func (s *Store) SetUserFluencyResult(ctx context.Context, userID uuid.UUID, score float64, passed bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			fluency_score = $2,
			fluency_gate_passed = $3,
			requires_pre_hifz = NOT $3,
			updated_at = now()
		WHERE id = $1`, userID, score, passed)
	if err != nil {
		return fmt.Errorf("set user fluency result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}
