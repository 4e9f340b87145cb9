package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/core"
)

var frozen = time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	user   *core.User
	daily  []core.DailySession
	items  []core.UserItemState
	weak   []core.TransitionScore
	strong int
}

func (f *fakeStore) GetUser(_ context.Context, _ uuid.UUID) (*core.User, error) {
	if f.user == nil {
		return &core.User{RetentionThreshold: 0.85}, nil
	}
	return f.user, nil
}

func (f *fakeStore) AllDailySessions(_ context.Context, _ uuid.UUID) ([]core.DailySession, error) {
	return f.daily, nil
}

func (f *fakeStore) DailySessionsInRange(_ context.Context, _ uuid.UUID, fromDay, toDay string) ([]core.DailySession, error) {
	var out []core.DailySession
	for _, d := range f.daily {
		if d.SessionDate >= fromDay && d.SessionDate < toDay {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) ItemStates(_ context.Context, _ uuid.UUID) ([]core.UserItemState, error) {
	return f.items, nil
}

func (f *fakeStore) WeakTransitions(_ context.Context, _ uuid.UUID, _ int, _ float64, limit int) ([]core.TransitionScore, error) {
	if len(f.weak) > limit {
		return f.weak[:limit], nil
	}
	return f.weak, nil
}

func (f *fakeStore) StrongTransitionCount(_ context.Context, _ uuid.UUID, _ int, _ float64) (int, error) {
	return f.strong, nil
}

func newTestService(store *fakeStore) *Service {
	svc := NewService(store, zap.NewNop())
	svc.WithClock(func() time.Time { return frozen })
	return svc
}

func day(date string, minutes, reviews, successful, newAyahs int) core.DailySession {
	return core.DailySession{
		SessionDate:       date,
		Mode:              core.ModeNormal,
		MinutesTotal:      minutes,
		ReviewsTotal:      reviews,
		ReviewsSuccessful: successful,
		NewAyahsMemorized: newAyahs,
		RetentionScore:    retention(reviews, successful),
	}
}

func retention(total, successful int) float64 {
	if total == 0 {
		return 1
	}
	return float64(successful) / float64(total)
}

func TestCalendarXPAndTotals(t *testing.T) {
	store := &fakeStore{daily: []core.DailySession{
		day("2026-02-10", 30, 20, 18, 2),
		day("2026-02-11", 15, 10, 10, 0),
	}}
	cal, err := newTestService(store).Calendar(context.Background(), uuid.New(), "2026-02")
	require.NoError(t, err)

	assert.Equal(t, "2026-02", cal.Month)
	assert.Len(t, cal.Days, 28)
	assert.Equal(t, 2, cal.ActiveDays)

	// 30*2 + 18 + 2*10 = 98 and 15*2 + 10 = 40.
	assert.Equal(t, 98, cal.Days[9].XP)
	assert.Equal(t, 40, cal.Days[10].XP)
	assert.Equal(t, 138, cal.TotalXP)
	assert.True(t, cal.Days[9].Active)
	assert.False(t, cal.Days[0].Active)
}

func TestCalendarIncludesLastDayOfMonth(t *testing.T) {
	store := &fakeStore{daily: []core.DailySession{
		day("2026-01-31", 20, 12, 11, 1),
	}}
	cal, err := newTestService(store).Calendar(context.Background(), uuid.New(), "2026-01")
	require.NoError(t, err)

	require.Len(t, cal.Days, 31)
	assert.True(t, cal.Days[30].Active)
	assert.Equal(t, 1, cal.ActiveDays)
	assert.Equal(t, 61, cal.TotalXP)
}

func TestCalendarDefaultsToCurrentMonth(t *testing.T) {
	cal, err := newTestService(&fakeStore{}).Calendar(context.Background(), uuid.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "2026-02", cal.Month)
}

func TestCalendarBadMonth(t *testing.T) {
	_, err := newTestService(&fakeStore{}).Calendar(context.Background(), uuid.New(), "February")
	assert.Error(t, err)
}

func TestStreaks(t *testing.T) {
	cases := []struct {
		name    string
		days    []string
		current int
		best    int
	}{
		{"empty", nil, 0, 0},
		{"single today", []string{"2026-02-11"}, 1, 1},
		{"run ending today", []string{"2026-02-09", "2026-02-10", "2026-02-11"}, 3, 3},
		{"run ending yesterday survives", []string{"2026-02-09", "2026-02-10"}, 2, 2},
		{"stale run", []string{"2026-02-01", "2026-02-02"}, 0, 2},
		{"best in past", []string{"2026-01-01", "2026-01-02", "2026-01-03", "2026-02-11"}, 1, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sessions := make([]core.DailySession, 0, len(tc.days))
			for _, d := range tc.days {
				sessions = append(sessions, core.DailySession{SessionDate: d})
			}
			current, best := streaks(sessions, "2026-02-11")
			assert.Equal(t, tc.current, current)
			assert.Equal(t, tc.best, best)
		})
	}
}

func memorizedItems(n int) []core.UserItemState {
	items := make([]core.UserItemState, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, core.UserItemState{
			AyahID: i + 1, Status: core.StatusMemorized, Tier: core.TierSabqi,
		})
	}
	return items
}

func TestAchievementsThresholds(t *testing.T) {
	store := &fakeStore{items: memorizedItems(10), strong: 50}
	store.items[0].Tier = core.TierManzil
	store.daily = []core.DailySession{day("2026-02-11", 60, 10, 10, 1)}

	earned := map[string]bool{}
	list, err := newTestService(store).Achievements(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, list, 9)
	for _, a := range list {
		earned[a.Code] = a.Earned
	}

	assert.True(t, earned["first_ayah"])
	assert.True(t, earned["ten_ayahs"])
	assert.False(t, earned["first_juz"])
	assert.False(t, earned["week_streak"])
	assert.True(t, earned["manzil_founder"])
	assert.True(t, earned["link_master"])
	assert.True(t, earned["dedicated_hour"])
}

func TestAchievementsPerfectWeek(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 7; i++ {
		store.daily = append(store.daily, day(frozen.AddDate(0, 0, -6+i).Format("2006-01-02"), 20, 10, 10, 0))
	}

	list, err := newTestService(store).Achievements(context.Background(), uuid.New())
	require.NoError(t, err)
	for _, a := range list {
		if a.Code == "perfect_week" {
			assert.True(t, a.Earned)
		}
		if a.Code == "week_streak" {
			assert.True(t, a.Earned)
		}
	}

	// One imperfect day in the middle breaks it.
	store.daily[3].ReviewsSuccessful = 9
	store.daily[3].RetentionScore = 0.9
	list, err = newTestService(store).Achievements(context.Background(), uuid.New())
	require.NoError(t, err)
	for _, a := range list {
		if a.Code == "perfect_week" {
			assert.False(t, a.Earned)
		}
	}
}

func TestProgress(t *testing.T) {
	store := &fakeStore{
		user: &core.User{RetentionThreshold: 0.85},
		items: []core.UserItemState{
			{IntervalCheckpointIndex: 0, Tier: core.TierSabaq, TotalReviews: 10, SuccessfulReviews: 9},
			{IntervalCheckpointIndex: 3, Tier: core.TierSabqi, TotalReviews: 10, SuccessfulReviews: 9},
			{IntervalCheckpointIndex: 7, Tier: core.TierManzil, TotalReviews: 10, SuccessfulReviews: 9},
		},
		strong: 4,
	}

	p, err := newTestService(store).Progress(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.InDelta(t, 0.9, p.OverallRetention, 1e-9)
	assert.Equal(t, 1, p.CheckpointDistribution[3])
	assert.Equal(t, 1, p.TierCounts[core.TierManzil])
	assert.Equal(t, 4, p.StrongTransitionCount)
	assert.Contains(t, p.Recommendation, "healthy")
}

func TestProgressRecommendations(t *testing.T) {
	empty := &fakeStore{user: &core.User{RetentionThreshold: 0.85}}
	p, err := newTestService(empty).Progress(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Contains(t, p.Recommendation, "first ayah")

	lowRetention := &fakeStore{
		user:  &core.User{RetentionThreshold: 0.85},
		items: []core.UserItemState{{TotalReviews: 10, SuccessfulReviews: 5}},
	}
	p, err = newTestService(lowRetention).Progress(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Contains(t, p.Recommendation, "consolidation")

	weakLinks := &fakeStore{
		user:  &core.User{RetentionThreshold: 0.85},
		items: []core.UserItemState{{TotalReviews: 10, SuccessfulReviews: 10}},
	}
	for i := 0; i < 6; i++ {
		weakLinks.weak = append(weakLinks.weak, core.TransitionScore{FromAyahID: i + 1, ToAyahID: i + 2})
	}
	p, err = newTestService(weakLinks).Progress(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Contains(t, p.Recommendation, "link-repair")
}

func TestStats(t *testing.T) {
	store := &fakeStore{
		user: &core.User{FluencyGatePassed: true},
		items: []core.UserItemState{
			{Status: core.StatusMemorized, TotalReviews: 12},
			{Status: core.StatusLearning, TotalReviews: 3},
		},
		daily: []core.DailySession{
			day("2026-02-10", 30, 20, 18, 2),
			day("2026-02-11", 15, 10, 10, 0),
		},
	}

	st, err := newTestService(store).Stats(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 1, st.AyahsMemorized)
	assert.Equal(t, 2, st.AyahsStarted)
	assert.Equal(t, 15, st.TotalReviews)
	assert.Equal(t, 45, st.TotalMinutes)
	assert.Equal(t, 138, st.TotalXP)
	assert.Equal(t, 2, st.CurrentStreak)
	require.NotNil(t, st.Today)
	assert.Equal(t, "2026-02-11", st.Today.SessionDate)
	assert.True(t, st.FluencyGatePassed)
}

func TestStatsEmptyHistory(t *testing.T) {
	st, err := newTestService(&fakeStore{user: &core.User{}}).Stats(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0, st.AyahsMemorized)
	assert.Nil(t, st.Today)
	assert.Equal(t, 0, st.CurrentStreak)
}
