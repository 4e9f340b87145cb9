package assessment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mutqin/backend/internal/apperr"
	"github.com/mutqin/backend/internal/core"
)

func TestComputeScaffolding(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want core.ScaffoldingLevel
	}{
		{
			"low fluency forces beginner",
			Input{TimeBudgetMinutes: 60, FluencyScore: 60, PriorJuzBand: core.JuzBandOneToFive, HasTeacher: true, TajwidConfidence: core.TajwidHigh},
			core.ScaffoldingBeginner,
		},
		{
			"no prior juz forces beginner even with high fluency",
			Input{TimeBudgetMinutes: 60, FluencyScore: 95, PriorJuzBand: core.JuzBandZero, HasTeacher: true, TajwidConfidence: core.TajwidHigh},
			core.ScaffoldingBeginner,
		},
		{
			"experienced supervised reader gets minimal",
			Input{TimeBudgetMinutes: 60, FluencyScore: 90, PriorJuzBand: core.JuzBandFivePlus, HasTeacher: true, TajwidConfidence: core.TajwidHigh},
			core.ScaffoldingMinimal,
		},
		{
			"minimal requires a teacher",
			Input{TimeBudgetMinutes: 60, FluencyScore: 90, PriorJuzBand: core.JuzBandFivePlus, HasTeacher: false, TajwidConfidence: core.TajwidHigh},
			core.ScaffoldingStandard,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.in).ScaffoldingLevel)
		})
	}
}

func TestComputeVariant(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want core.ProgramVariant
	}{
		{
			"fifteen minute budget is conservative",
			Input{TimeBudgetMinutes: 15, FluencyScore: 90, PriorJuzBand: core.JuzBandFivePlus, HasTeacher: true, TajwidConfidence: core.TajwidHigh},
			core.VariantConservative,
		},
		{
			"no teacher is conservative",
			Input{TimeBudgetMinutes: 90, FluencyScore: 90, PriorJuzBand: core.JuzBandFivePlus, HasTeacher: false, TajwidConfidence: core.TajwidHigh},
			core.VariantConservative,
		},
		{
			"low tajwid is conservative",
			Input{TimeBudgetMinutes: 90, FluencyScore: 90, PriorJuzBand: core.JuzBandFivePlus, HasTeacher: true, TajwidConfidence: core.TajwidLow},
			core.VariantConservative,
		},
		{
			"big budget with strong fluency and teacher is momentum",
			Input{TimeBudgetMinutes: 90, FluencyScore: 75, PriorJuzBand: core.JuzBandFivePlus, HasTeacher: true, TajwidConfidence: core.TajwidMedium},
			core.VariantMomentum,
		},
		{
			"middle of the road is standard",
			Input{TimeBudgetMinutes: 60, FluencyScore: 75, PriorJuzBand: core.JuzBandOneToFive, HasTeacher: true, TajwidConfidence: core.TajwidMedium},
			core.VariantStandard,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.in).Variant)
		})
	}
}

func TestComputeDailyNewTarget(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want int
	}{
		{"momentum reaches ten", Input{TimeBudgetMinutes: 90, FluencyScore: 80, PriorJuzBand: core.JuzBandFivePlus, HasTeacher: true, TajwidConfidence: core.TajwidHigh}, 10},
		{"fifteen minutes hard-caps at three", Input{TimeBudgetMinutes: 15, FluencyScore: 90, PriorJuzBand: core.JuzBandFivePlus, HasTeacher: true, TajwidConfidence: core.TajwidHigh}, 3},
		{"thirty minute budget halves toward five", Input{TimeBudgetMinutes: 30, FluencyScore: 80, PriorJuzBand: core.JuzBandOneToFive, HasTeacher: true, TajwidConfidence: core.TajwidHigh}, 5},
		{"ninety minute floor lifts conservative back to seven", Input{TimeBudgetMinutes: 90, FluencyScore: 80, PriorJuzBand: core.JuzBandFivePlus, HasTeacher: false, TajwidConfidence: core.TajwidHigh}, 7},
		{"standard keeps seven", Input{TimeBudgetMinutes: 60, FluencyScore: 80, PriorJuzBand: core.JuzBandOneToFive, HasTeacher: true, TajwidConfidence: core.TajwidHigh}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.in).DailyNewTargetAyahs)
		})
	}
}

func TestComputeThresholdsAndPace(t *testing.T) {
	conservative := Compute(Input{TimeBudgetMinutes: 15, FluencyScore: 40, PriorJuzBand: core.JuzBandZero, TajwidConfidence: core.TajwidLow})
	assert.InDelta(t, 0.88, conservative.RetentionThreshold, 1e-9)
	assert.InDelta(t, 0.80, conservative.ConsolidationRetentionFloor, 1e-9)
	assert.Equal(t, 90, conservative.AvgSecondsPerItem)
	require.NotNil(t, conservative.RecommendedMinutes)
	assert.Equal(t, 30, *conservative.RecommendedMinutes)
	assert.NotEmpty(t, conservative.Warning)

	momentum := Compute(Input{TimeBudgetMinutes: 90, FluencyScore: 80, PriorJuzBand: core.JuzBandFivePlus, HasTeacher: true, TajwidConfidence: core.TajwidHigh})
	assert.InDelta(t, 0.82, momentum.RetentionThreshold, 1e-9)
	assert.InDelta(t, 0.74, momentum.ConsolidationRetentionFloor, 1e-9)
	assert.Equal(t, 55, momentum.AvgSecondsPerItem)
	assert.Nil(t, momentum.RecommendedMinutes)

	assert.Equal(t, 70, momentum.ReviewRatioTarget)
	assert.InDelta(t, 0.8, momentum.BacklogFreezeRatio, 1e-9)
	assert.Equal(t, 30, momentum.ManzilRotationDays)
	assert.Equal(t, 172800, momentum.OverdueCapSeconds)
}

type fakeStore struct {
	user    *core.User
	updated *core.User
}

func (f *fakeStore) GetUser(ctx context.Context, id uuid.UUID) (*core.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, apperr.NotFound("user not found")
	}
	u := *f.user
	return &u, nil
}

func (f *fakeStore) UpdateUserParameters(ctx context.Context, u *core.User) error {
	f.updated = u
	return nil
}

func TestSubmitPersistsParameters(t *testing.T) {
	userID := uuid.New()
	store := &fakeStore{user: &core.User{ID: userID, RequiresPreHifz: true}}
	svc := NewService(store, nil)

	p, err := svc.Submit(context.Background(), userID, Input{
		TimeBudgetMinutes: 60,
		FluencyScore:      80,
		TajwidConfidence:  core.TajwidHigh,
		HasTeacher:        true,
		PriorJuzBand:      core.JuzBandOneToFive,
	})
	require.NoError(t, err)
	require.NotNil(t, store.updated)

	assert.Equal(t, p.Variant, store.updated.Variant)
	assert.Equal(t, p.DailyNewTargetAyahs, store.updated.DailyNewTargetAyahs)
	assert.Equal(t, 60, store.updated.TimeBudgetMinutes)
	require.NotNil(t, store.updated.FluencyScore)
	assert.InDelta(t, 80, *store.updated.FluencyScore, 1e-9)
	assert.True(t, store.updated.RequiresPreHifz, "assessment must not flip gate flags")
}

func TestSubmitRejectsBadBudget(t *testing.T) {
	svc := NewService(&fakeStore{}, nil)
	_, err := svc.Submit(context.Background(), uuid.New(), Input{TimeBudgetMinutes: 45})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
