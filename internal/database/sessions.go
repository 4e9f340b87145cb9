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

const sessionColumns = `
	id, user_id, client_session_id, mode, warmup_passed, status,
	started_at, ended_at, events_count, minutes_total`

// CreateSessionRun inserts a new ACTIVE run. When the client supplies a
// client_session_id that already exists for the user, the existing run is
// returned instead; session start is idempotent.
func (s *Store) CreateSessionRun(ctx context.Context, run *core.SessionRun) (*core.SessionRun, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO session_runs (id, user_id, client_session_id, mode, warmup_passed, status, started_at)
		VALUES ($1, $2, $3, $4, $5, 'ACTIVE', $6)
		ON CONFLICT (user_id, client_session_id) WHERE client_session_id IS NOT NULL
		DO NOTHING`,
		run.ID, run.UserID, run.ClientSessionID, run.Mode, run.WarmupPassed, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("create session run: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 && run.ClientSessionID != nil {
		var existing core.SessionRun
		err := s.db.GetContext(ctx, &existing, `
			SELECT `+sessionColumns+` FROM session_runs
			WHERE user_id = $1 AND client_session_id = $2`,
			run.UserID, *run.ClientSessionID)
		if err != nil {
			return nil, fmt.Errorf("reload session run: %w", err)
		}
		return &existing, nil
	}

	created := *run
	created.Status = core.SessionActive
	return &created, nil
}

// GetSessionRun loads one run.
func (s *Store) GetSessionRun(ctx context.Context, id uuid.UUID) (*core.SessionRun, error) {
	var run core.SessionRun
	err := s.db.GetContext(ctx, &run, `
		SELECT `+sessionColumns+` FROM session_runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get session run: %w", err)
	}
	return &run, nil
}

// CompleteSessionRun transitions ACTIVE to COMPLETED via compare-and-set. A
// second completion finds zero rows and reports a conflict so the client
// re-reads the current state.
func (s *Store) CompleteSessionRun(ctx context.Context, id uuid.UUID, endedAt time.Time, minutesTotal int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE session_runs
		SET status = 'COMPLETED', ended_at = $2, minutes_total = $3
		WHERE id = $1 AND status = 'ACTIVE'`, id, endedAt, minutesTotal)
	if err != nil {
		return fmt.Errorf("complete session run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindConflict, "session is not active")
	}
	return nil
}

// UpsertDailySession writes the per-day aggregate. On conflict the additive
// counters accumulate and the snapshot fields are overwritten.
func (s *Store) UpsertDailySession(ctx context.Context, d *core.DailySession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_sessions (
			user_id, session_date, mode, retention_score,
			backlog_minutes_estimate, overdue_days_max, minutes_total,
			reviews_total, reviews_successful, new_ayahs_memorized,
			warmup_passed, sabaq_allowed
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (user_id, session_date) DO UPDATE SET
			mode = EXCLUDED.mode,
			retention_score = EXCLUDED.retention_score,
			backlog_minutes_estimate = EXCLUDED.backlog_minutes_estimate,
			overdue_days_max = EXCLUDED.overdue_days_max,
			minutes_total = daily_sessions.minutes_total + EXCLUDED.minutes_total,
			reviews_total = daily_sessions.reviews_total + EXCLUDED.reviews_total,
			reviews_successful = daily_sessions.reviews_successful + EXCLUDED.reviews_successful,
			new_ayahs_memorized = EXCLUDED.new_ayahs_memorized,
			warmup_passed = EXCLUDED.warmup_passed,
			sabaq_allowed = EXCLUDED.sabaq_allowed`,
		d.UserID, d.SessionDate, d.Mode, d.RetentionScore,
		d.BacklogMinutesEstimate, d.OverdueDaysMax, d.MinutesTotal,
		d.ReviewsTotal, d.ReviewsSuccessful, d.NewAyahsMemorized,
		d.WarmupPassed, d.SabaqAllowed)
	if err != nil {
		return fmt.Errorf("upsert daily session: %w", err)
	}
	return nil
}

const dailyColumns = `
	user_id, to_char(session_date, 'YYYY-MM-DD') AS session_date, mode,
	retention_score, backlog_minutes_estimate, overdue_days_max, minutes_total,
	reviews_total, reviews_successful, new_ayahs_memorized, warmup_passed,
	sabaq_allowed`

// DailySessionsSince returns aggregates from the given day key onward,
// newest first.
func (s *Store) DailySessionsSince(ctx context.Context, userID uuid.UUID, fromDay string) ([]core.DailySession, error) {
	var days []core.DailySession
	err := s.db.SelectContext(ctx, &days, `
		SELECT `+dailyColumns+` FROM daily_sessions
		WHERE user_id = $1 AND session_date >= $2::date
		ORDER BY session_date DESC`, userID, fromDay)
	if err != nil {
		return nil, fmt.Errorf("daily sessions since: %w", err)
	}
	return days, nil
}

// DailySessionsInRange returns aggregates with fromDay <= day < toDay,
// oldest first. The calendar read model feeds on it.
func (s *Store) DailySessionsInRange(ctx context.Context, userID uuid.UUID, fromDay, toDay string) ([]core.DailySession, error) {
	var days []core.DailySession
	err := s.db.SelectContext(ctx, &days, `
		SELECT `+dailyColumns+` FROM daily_sessions
		WHERE user_id = $1 AND session_date >= $2::date AND session_date < $3::date
		ORDER BY session_date ASC`, userID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("daily sessions in range: %w", err)
	}
	return days, nil
}

// AllDailySessions returns the user's full aggregate history, oldest first.
func (s *Store) AllDailySessions(ctx context.Context, userID uuid.UUID) ([]core.DailySession, error) {
	var days []core.DailySession
	err := s.db.SelectContext(ctx, &days, `
		SELECT `+dailyColumns+` FROM daily_sessions
		WHERE user_id = $1
		ORDER BY session_date ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("all daily sessions: %w", err)
	}
	return days, nil
}
