package reducer

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mutqin/backend/internal/core"
)

var (
	testUser = uuid.MustParse("11111111-2222-4333-8444-555555555555")
)

func reviewEvent(ayahID int, at time.Time, success bool, errorsCount int) core.ReviewEvent {
	tier := core.TierSabaq
	duration := 30
	return core.ReviewEvent{
		ID:              uuid.New(),
		UserID:          testUser,
		EventType:       core.EventReviewAttempted,
		ItemAyahID:      &ayahID,
		Tier:            &tier,
		Success:         &success,
		ErrorsCount:     &errorsCount,
		DurationSeconds: &duration,
		OccurredAt:      at,
		ReceivedAt:      at,
	}
}

func at(day int, hour int) time.Time {
	return time.Date(2026, 2, day, hour, 0, 0, 0, time.UTC)
}

func TestReplayEmptySequence(t *testing.T) {
	assert.Nil(t, Replay(testUser, 1, nil))
}

// Eight perfect reviews across consecutive UTC days climb the full ladder and
// earn MANZIL through the promotion gate.
func TestReplayPerfectLadderClimb(t *testing.T) {
	var events []core.ReviewEvent
	for day := 1; day <= 8; day++ {
		events = append(events, reviewEvent(1, at(day, 10), true, 0))
	}

	st := Replay(testUser, 1, events)
	require.NotNil(t, st)

	assert.Equal(t, 7, st.IntervalCheckpointIndex)
	assert.Equal(t, int64(7776000), st.ReviewIntervalSeconds)
	assert.Equal(t, 8, st.ConsecutivePerfectDays)
	assert.Equal(t, core.TierManzil, st.Tier)
	assert.Equal(t, core.StatusMemorized, st.Status)
	assert.Equal(t, at(1, 10), st.IntroducedAt)
	assert.Equal(t, at(8, 10).Add(7776000*time.Second), st.NextReviewAt)

	// The checkpoint index first reaches 2 on the second event.
	require.NotNil(t, st.FirstMemorizedAt)
	assert.Equal(t, at(2, 10), *st.FirstMemorizedAt)

	assert.Equal(t, 8, st.TotalReviews)
	assert.Equal(t, 8, st.SuccessfulReviews)
	assert.Equal(t, 0, st.Lapses)
	assert.Equal(t, 8, st.SuccessStreak)
	assert.InDelta(t, 30.0, st.AverageDurationSeconds, 1e-9)
}

// A fail after three perfect reviews drops the item back to the bottom rung
// and clears the perfect-day ledger.
func TestReplayFailResetsLadder(t *testing.T) {
	events := []core.ReviewEvent{
		reviewEvent(2, at(1, 10), true, 0),
		reviewEvent(2, at(2, 10), true, 0),
		reviewEvent(2, at(3, 10), true, 0),
		reviewEvent(2, at(4, 10), false, 3),
	}

	st := Replay(testUser, 2, events)
	require.NotNil(t, st)

	assert.Equal(t, 0, st.IntervalCheckpointIndex)
	assert.Equal(t, int64(14400), st.ReviewIntervalSeconds)
	assert.Equal(t, 0, st.ConsecutivePerfectDays)
	assert.Nil(t, st.LastPerfectDay)
	assert.Equal(t, core.TierSabaq, st.Tier)
	assert.Equal(t, core.StatusLearning, st.Status)
	assert.Equal(t, 1, st.Lapses)
	assert.Equal(t, 0, st.SuccessStreak)
	assert.Equal(t, 3, st.LastErrorsCount)
}

// firstMemorizedAt survives a later lapse: once set it never moves.
func TestReplayFirstMemorizedFrozen(t *testing.T) {
	events := []core.ReviewEvent{
		reviewEvent(3, at(1, 10), true, 0),
		reviewEvent(3, at(2, 10), true, 0), // index reaches 2 here
		reviewEvent(3, at(3, 10), false, 4),
		reviewEvent(3, at(4, 10), true, 0),
		reviewEvent(3, at(5, 10), true, 0),
	}

	st := Replay(testUser, 3, events)
	require.NotNil(t, st)
	require.NotNil(t, st.FirstMemorizedAt)
	assert.Equal(t, at(2, 10), *st.FirstMemorizedAt)
}

func TestReplayPerfectDayGate(t *testing.T) {
	t.Run("same UTC day holds the count", func(t *testing.T) {
		events := []core.ReviewEvent{
			reviewEvent(4, at(1, 8), true, 0),
			reviewEvent(4, at(1, 20), true, 0),
		}
		st := Replay(testUser, 4, events)
		assert.Equal(t, 1, st.ConsecutivePerfectDays)
	})

	t.Run("a gap restarts at one", func(t *testing.T) {
		events := []core.ReviewEvent{
			reviewEvent(4, at(1, 10), true, 0),
			reviewEvent(4, at(2, 10), true, 0),
			reviewEvent(4, at(5, 10), true, 0), // two-day gap
		}
		st := Replay(testUser, 4, events)
		assert.Equal(t, 1, st.ConsecutivePerfectDays)
	})

	t.Run("minor outcome clears the ledger", func(t *testing.T) {
		events := []core.ReviewEvent{
			reviewEvent(4, at(1, 10), true, 0),
			reviewEvent(4, at(2, 10), true, 2), // success but not perfect
		}
		st := Replay(testUser, 4, events)
		assert.Equal(t, 0, st.ConsecutivePerfectDays)
		assert.Nil(t, st.LastPerfectDay)
	})
}

// Reaching the top of the ladder inside a single day cannot yield MANZIL: the
// promotion gate demotes the checkpoint-derived tier to SABQI.
func TestReplayPromotionGateDemotesToSabqi(t *testing.T) {
	var events []core.ReviewEvent
	for i := 0; i < 8; i++ {
		events = append(events, reviewEvent(5, at(1, 8).Add(time.Duration(i)*time.Hour), true, 0))
	}

	st := Replay(testUser, 5, events)
	require.NotNil(t, st)
	assert.Equal(t, 7, st.IntervalCheckpointIndex)
	assert.Equal(t, 1, st.ConsecutivePerfectDays)
	assert.Equal(t, core.TierSabqi, st.Tier, "MANZIL requires seven consecutive perfect days")
}

func TestReplayDeterministic(t *testing.T) {
	events := []core.ReviewEvent{
		reviewEvent(6, at(1, 10), true, 0),
		reviewEvent(6, at(2, 10), true, 1),
		reviewEvent(6, at(3, 10), false, 0),
		reviewEvent(6, at(4, 10), true, 0),
	}

	first := Replay(testUser, 6, events)
	second := Replay(testUser, 6, events)
	assert.Equal(t, first, second)
}

func TestReplayAverageDuration(t *testing.T) {
	e1 := reviewEvent(7, at(1, 10), true, 0)
	e2 := reviewEvent(7, at(2, 10), true, 0)
	d1, d2 := 20, 40
	e1.DurationSeconds = &d1
	e2.DurationSeconds = &d2

	st := Replay(testUser, 7, []core.ReviewEvent{e1, e2})
	assert.InDelta(t, 30.0, st.AverageDurationSeconds, 1e-9)
}
