package fluency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/apperr"
	"github.com/mutqin/backend/internal/core"
)

type fakeStore struct {
	user      *core.User
	tests     map[uuid.UUID]*core.FluencyGateTest
	memorized []int

	setScore  *float64
	setPassed *bool
}

func newFakeStore(userID uuid.UUID) *fakeStore {
	return &fakeStore{
		user:  &core.User{ID: userID, RequiresPreHifz: true},
		tests: map[uuid.UUID]*core.FluencyGateTest{},
	}
}

func (f *fakeStore) GetUser(_ context.Context, id uuid.UUID) (*core.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, apperr.NotFound("user not found")
	}
	return f.user, nil
}

func (f *fakeStore) CreateFluencyTest(_ context.Context, t *core.FluencyGateTest) error {
	f.tests[t.ID] = t
	return nil
}

func (f *fakeStore) GetFluencyTest(_ context.Context, userID, testID uuid.UUID) (*core.FluencyGateTest, error) {
	t, ok := f.tests[testID]
	if !ok || t.UserID != userID {
		return nil, apperr.NotFound("fluency test not found")
	}
	return t, nil
}

func (f *fakeStore) LatestFluencyTest(_ context.Context, userID uuid.UUID) (*core.FluencyGateTest, error) {
	var latest *core.FluencyGateTest
	for _, t := range f.tests {
		if t.UserID != userID {
			continue
		}
		if latest == nil || t.StartedAt.After(latest.StartedAt) {
			latest = t
		}
	}
	return latest, nil
}

func (f *fakeStore) FinishFluencyTest(_ context.Context, testID uuid.UUID, status core.TestStatus, durationSeconds, errorCount int, score float64, completedAt time.Time) error {
	t, ok := f.tests[testID]
	if !ok || t.Status.IsTerminal() {
		return apperr.NotFound("no in-progress fluency test")
	}
	t.Status = status
	t.DurationSeconds = &durationSeconds
	t.ErrorCount = &errorCount
	t.FluencyScore = &score
	t.CompletedAt = &completedAt
	return nil
}

func (f *fakeStore) SetUserFluencyResult(_ context.Context, userID uuid.UUID, score float64, passed bool) error {
	f.user.FluencyScore = &score
	f.user.FluencyGatePassed = passed
	f.user.RequiresPreHifz = !passed
	f.setScore = &score
	f.setPassed = &passed
	return nil
}

func (f *fakeStore) MemorizedPages(_ context.Context, _ uuid.UUID) ([]int, error) {
	return f.memorized, nil
}

type fakeCorpus struct {
	pages []int
}

func (f *fakeCorpus) Pages(_ context.Context) ([]int, error) { return f.pages, nil }

func (f *fakeCorpus) Page(_ context.Context, page int) ([]core.Ayah, error) {
	return []core.Ayah{{ID: 1, SurahNumber: 1, AyahNumber: 1, PageNumber: page}}, nil
}

func newTestService(store *fakeStore, corpus *fakeCorpus) *Service {
	svc := NewService(store, corpus, zap.NewNop(), nil)
	svc.WithClock(func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) })
	svc.WithPicker(func(n int) int { return 0 })
	return svc
}

func TestScore(t *testing.T) {
	cases := []struct {
		name     string
		duration int
		errors   int
		time     float64
		accuracy float64
	}{
		{"fast clean read", 175, 3, 50, 50},
		{"exactly three minutes", 180, 0, 50, 50},
		{"one minute over", 240, 0, 40, 50},
		{"time floor", 600, 0, 0, 50},
		{"five errors keep full accuracy", 120, 5, 50, 50},
		{"accuracy decay", 120, 9, 50, 30},
		{"accuracy floor", 120, 30, 50, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			timeScore, accuracyScore, total := Score(tc.duration, tc.errors)
			assert.Equal(t, tc.time, timeScore)
			assert.Equal(t, tc.accuracy, accuracyScore)
			assert.Equal(t, tc.time+tc.accuracy, total)
		})
	}
}

func TestStartPicksUnmemorizedPage(t *testing.T) {
	userID := uuid.New()
	store := newFakeStore(userID)
	store.memorized = []int{1, 2}
	svc := newTestService(store, &fakeCorpus{pages: []int{1, 2, 3, 4}})

	res, err := svc.Start(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Page)
	require.Len(t, res.Ayahs, 1)
	assert.Equal(t, 3, res.Ayahs[0].PageNumber)

	test, err := store.GetFluencyTest(context.Background(), userID, res.TestID)
	require.NoError(t, err)
	assert.Equal(t, core.TestInProgress, test.Status)
	assert.Equal(t, 3, test.TestPage)
}

func TestStartFallsBackWhenAllPagesMemorized(t *testing.T) {
	userID := uuid.New()
	store := newFakeStore(userID)
	store.memorized = []int{1, 2}
	svc := newTestService(store, &fakeCorpus{pages: []int{1, 2}})

	res, err := svc.Start(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
}

func TestStartUnseededCorpus(t *testing.T) {
	userID := uuid.New()
	svc := newTestService(newFakeStore(userID), &fakeCorpus{})

	_, err := svc.Start(context.Background(), userID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestSubmitPass(t *testing.T) {
	userID := uuid.New()
	store := newFakeStore(userID)
	svc := newTestService(store, &fakeCorpus{pages: []int{1}})

	started, err := svc.Start(context.Background(), userID)
	require.NoError(t, err)

	res, err := svc.Submit(context.Background(), userID, started.TestID, 175, 3)
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.TimeScore)
	assert.Equal(t, 50.0, res.AccuracyScore)
	assert.Equal(t, 100.0, res.FluencyScore)
	assert.True(t, res.Passed)

	test := store.tests[started.TestID]
	assert.Equal(t, core.TestPassed, test.Status)
	require.NotNil(t, test.CompletedAt)

	assert.True(t, store.user.FluencyGatePassed)
	assert.False(t, store.user.RequiresPreHifz)
	require.NotNil(t, store.user.FluencyScore)
	assert.Equal(t, 100.0, *store.user.FluencyScore)
}

func TestSubmitFail(t *testing.T) {
	userID := uuid.New()
	store := newFakeStore(userID)
	svc := newTestService(store, &fakeCorpus{pages: []int{1}})

	started, err := svc.Start(context.Background(), userID)
	require.NoError(t, err)

	// 360s -> time 20, 9 errors -> accuracy 30, total 50.
	res, err := svc.Submit(context.Background(), userID, started.TestID, 360, 9)
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.FluencyScore)
	assert.False(t, res.Passed)

	assert.Equal(t, core.TestFailed, store.tests[started.TestID].Status)
	assert.False(t, store.user.FluencyGatePassed)
	assert.True(t, store.user.RequiresPreHifz)
}

func TestSubmitExactThreshold(t *testing.T) {
	userID := uuid.New()
	store := newFakeStore(userID)
	svc := newTestService(store, &fakeCorpus{pages: []int{1}})

	started, err := svc.Start(context.Background(), userID)
	require.NoError(t, err)

	// 360s -> time 20, errors 5 -> accuracy 50, total 70: a pass.
	res, err := svc.Submit(context.Background(), userID, started.TestID, 360, 5)
	require.NoError(t, err)
	assert.Equal(t, 70.0, res.FluencyScore)
	assert.True(t, res.Passed)
}

func TestSubmitTerminalTest(t *testing.T) {
	userID := uuid.New()
	store := newFakeStore(userID)
	svc := newTestService(store, &fakeCorpus{pages: []int{1}})

	started, err := svc.Start(context.Background(), userID)
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), userID, started.TestID, 175, 0)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), userID, started.TestID, 175, 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSubmitValidation(t *testing.T) {
	userID := uuid.New()
	svc := newTestService(newFakeStore(userID), &fakeCorpus{pages: []int{1}})

	_, err := svc.Submit(context.Background(), userID, uuid.New(), 0, 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Submit(context.Background(), userID, uuid.New(), 60, -1)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestStatus(t *testing.T) {
	userID := uuid.New()
	store := newFakeStore(userID)
	svc := newTestService(store, &fakeCorpus{pages: []int{1}})

	status, err := svc.Status(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, status.FluencyGatePassed)
	assert.True(t, status.RequiresPreHifz)
	assert.Nil(t, status.LatestTest)

	started, err := svc.Start(context.Background(), userID)
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), userID, started.TestID, 175, 3)
	require.NoError(t, err)

	status, err = svc.Status(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, status.FluencyGatePassed)
	require.NotNil(t, status.LatestTest)
	assert.Equal(t, core.TestPassed, status.LatestTest.Status)
}
