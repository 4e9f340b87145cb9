// Package reducer computes UserItemState as a deterministic left-fold over
// the ordered REVIEW_ATTEMPTED events of one (user, ayah) pair. The fold is
// pure: replaying the same ordered sequence always yields the same row,
// which is the invariant every other component leans on.
package reducer

import (
	"time"

	"github.com/google/uuid"

	"github.com/mutqin/backend/internal/core"
	"github.com/mutqin/backend/internal/spacing"
	"github.com/mutqin/backend/internal/timeutil"
)

// manzilPerfectDays is the promotion gate: an item only holds the MANZIL tier
// after this many consecutive perfect UTC days.
const manzilPerfectDays = 7

// Replay folds ordered REVIEW_ATTEMPTED events into the item state. Events
// must belong to a single (user, ayah) pair and be sorted by
// (occurredAt ASC, id ASC); callers own the ordering. Returns nil when the
// sequence is empty: no events, no row.
func Replay(userID uuid.UUID, ayahID int, events []core.ReviewEvent) *core.UserItemState {
	if len(events) == 0 {
		return nil
	}

	st := &core.UserItemState{
		UserID:                  userID,
		AyahID:                  ayahID,
		Status:                  core.StatusLearning,
		Tier:                    core.TierSabaq,
		IntervalCheckpointIndex: 0,
		ReviewIntervalSeconds:   spacing.IntervalSeconds(0),
		IntroducedAt:            events[0].OccurredAt,
	}

	var totalDuration int64
	for _, ev := range events {
		if ev.EventType != core.EventReviewAttempted || ev.ItemAyahID == nil {
			continue
		}

		success := ev.Success != nil && *ev.Success
		errorsCount := 0
		if ev.ErrorsCount != nil {
			errorsCount = *ev.ErrorsCount
		}
		outcome := spacing.Classify(success, errorsCount)

		st.IntervalCheckpointIndex = spacing.NextIndex(st.IntervalCheckpointIndex, outcome)
		st.ReviewIntervalSeconds = spacing.IntervalSeconds(st.IntervalCheckpointIndex)
		st.NextReviewAt = ev.OccurredAt.Add(time.Duration(st.ReviewIntervalSeconds) * time.Second)
		st.DifficultyScore = spacing.UpdateDifficulty(st.DifficultyScore, outcome)

		st.TotalReviews++
		if success {
			st.SuccessfulReviews++
			st.SuccessStreak++
		} else {
			st.Lapses++
			st.SuccessStreak = 0
		}

		if ev.DurationSeconds != nil {
			totalDuration += int64(*ev.DurationSeconds)
		}
		st.AverageDurationSeconds = float64(totalDuration) / float64(st.TotalReviews)
		st.LastErrorsCount = errorsCount

		occurred := ev.OccurredAt
		st.LastReviewedAt = &occurred
		st.LastEventOccurredAt = &occurred

		if st.FirstMemorizedAt == nil && st.IntervalCheckpointIndex >= 2 {
			st.FirstMemorizedAt = &occurred
		}

		applyPerfectDayGate(st, outcome, ev.OccurredAt)
		st.Tier = effectiveTier(st)
	}

	if st.IntervalCheckpointIndex >= 2 {
		st.Status = core.StatusMemorized
	} else {
		st.Status = core.StatusLearning
	}
	return st
}

// applyPerfectDayGate maintains the consecutive-perfect-day counter. Same-day
// perfects hold the count, a one-day step increments it, any gap restarts it,
// and any imperfect attempt clears it entirely.
func applyPerfectDayGate(st *core.UserItemState, outcome spacing.Outcome, occurredAt time.Time) {
	if outcome != spacing.OutcomePerfect {
		st.ConsecutivePerfectDays = 0
		st.LastPerfectDay = nil
		return
	}

	day := timeutil.UTCDay(occurredAt)
	switch {
	case st.LastPerfectDay == nil:
		st.ConsecutivePerfectDays = 1
	case timeutil.DaysBetween(*st.LastPerfectDay, day) == 0:
		// same UTC day, count holds
	case timeutil.DaysBetween(*st.LastPerfectDay, day) == 1:
		st.ConsecutivePerfectDays++
	default:
		st.ConsecutivePerfectDays = 1
	}
	st.LastPerfectDay = &day
}

// effectiveTier applies the promotion gate on top of the checkpoint-derived
// tier: reaching the top of the ladder is not enough for MANZIL without
// seven consecutive perfect days.
func effectiveTier(st *core.UserItemState) core.ReviewTier {
	tier := spacing.TierForIndex(st.IntervalCheckpointIndex)
	if tier == core.TierManzil && st.ConsecutivePerfectDays < manzilPerfectDays {
		return core.TierSabqi
	}
	return tier
}
