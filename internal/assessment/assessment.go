// Package assessment computes a user's scheduling parameters from their
// self-report. The computation is a pure function; the service applies the
// result to the user row.
package assessment

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/apperr"
	"github.com/mutqin/backend/internal/core"
)

// Input is the self-report collected at onboarding.
type Input struct {
	TimeBudgetMinutes int                   `json:"time_budget_minutes" validate:"required,oneof=15 30 60 90"`
	FluencyScore      float64               `json:"fluency_score" validate:"gte=0,lte=100"`
	TajwidConfidence  core.TajwidConfidence `json:"tajwid_confidence" validate:"required,oneof=LOW MEDIUM HIGH"`
	Goal              string                `json:"goal"`
	HasTeacher        bool                  `json:"has_teacher"`
	PriorJuzBand      core.PriorJuzBand     `json:"prior_juz_band" validate:"required,oneof=ZERO ONE_TO_FIVE FIVE_PLUS"`
}

// Parameters is the full computed plan.
type Parameters struct {
	ScaffoldingLevel            core.ScaffoldingLevel `json:"scaffolding_level"`
	Variant                     core.ProgramVariant   `json:"variant"`
	DailyNewTargetAyahs         int                   `json:"daily_new_target_ayahs"`
	ReviewRatioTarget           int                   `json:"review_ratio_target"`
	RetentionThreshold          float64               `json:"retention_threshold"`
	BacklogFreezeRatio          float64               `json:"backlog_freeze_ratio"`
	ConsolidationRetentionFloor float64               `json:"consolidation_retention_floor"`
	ManzilRotationDays          int                   `json:"manzil_rotation_days"`
	AvgSecondsPerItem           int                   `json:"avg_seconds_per_item"`
	OverdueCapSeconds           int                   `json:"overdue_cap_seconds"`
	RecommendedMinutes          *int                  `json:"recommended_minutes,omitempty"`
	Warning                     string                `json:"warning,omitempty"`
}

// Compute derives the plan. Pure.
func Compute(in Input) Parameters {
	p := Parameters{
		ScaffoldingLevel:   scaffolding(in),
		Variant:            variant(in),
		ReviewRatioTarget:  70,
		BacklogFreezeRatio: 0.8,
		ManzilRotationDays: 30,
		OverdueCapSeconds:  48 * 3600,
	}

	p.DailyNewTargetAyahs = dailyNewTarget(in, p.Variant)

	switch p.Variant {
	case core.VariantConservative:
		p.RetentionThreshold = 0.88
	case core.VariantMomentum:
		p.RetentionThreshold = 0.82
	default:
		p.RetentionThreshold = 0.85
	}
	p.ConsolidationRetentionFloor = p.RetentionThreshold - 0.08
	if p.ConsolidationRetentionFloor < 0.70 {
		p.ConsolidationRetentionFloor = 0.70
	}

	switch {
	case in.FluencyScore >= 75:
		p.AvgSecondsPerItem = 55
	case in.FluencyScore >= 50:
		p.AvgSecondsPerItem = 70
	default:
		p.AvgSecondsPerItem = 90
	}

	if in.TimeBudgetMinutes == 15 {
		rec := 30
		p.RecommendedMinutes = &rec
		p.Warning = "15 minutes a day limits progress; most memorizers need at least 30 minutes to hold material"
	}
	return p
}

func scaffolding(in Input) core.ScaffoldingLevel {
	if in.FluencyScore < 75 || in.PriorJuzBand == core.JuzBandZero {
		return core.ScaffoldingBeginner
	}
	if in.FluencyScore > 85 && in.PriorJuzBand == core.JuzBandFivePlus && in.HasTeacher {
		return core.ScaffoldingMinimal
	}
	return core.ScaffoldingStandard
}

func variant(in Input) core.ProgramVariant {
	if in.TimeBudgetMinutes == 15 ||
		in.FluencyScore < 45 || in.TajwidConfidence == core.TajwidLow || !in.HasTeacher {
		return core.VariantConservative
	}
	if in.TimeBudgetMinutes >= 90 && in.FluencyScore >= 70 &&
		in.TajwidConfidence != core.TajwidLow && in.HasTeacher {
		return core.VariantMomentum
	}
	return core.VariantStandard
}

func dailyNewTarget(in Input, v core.ProgramVariant) int {
	target := 7
	switch {
	case v == core.VariantMomentum:
		target = 10
	case v == core.VariantConservative || in.TimeBudgetMinutes == 30:
		target = 5
	}
	if in.TimeBudgetMinutes >= 90 && target < 7 {
		target = 7
	}
	// 15-minute budgets hard-cap regardless of variant.
	if in.TimeBudgetMinutes == 15 {
		target = 3
	}
	return target
}

// Store persists the computed parameters.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*core.User, error)
	UpdateUserParameters(ctx context.Context, u *core.User) error
}

// Service applies assessments to users.
type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Submit validates the input, computes parameters, and persists them on the
// user. The fluency gate flags are untouched here: only gate completion may
// flip them.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, in Input) (Parameters, error) {
	switch in.TimeBudgetMinutes {
	case 15, 30, 60, 90:
	default:
		return Parameters{}, apperr.Validation("time_budget_minutes must be one of 15, 30, 60, 90")
	}
	if in.FluencyScore < 0 || in.FluencyScore > 100 {
		return Parameters{}, apperr.Validation("fluency_score must be in [0, 100]")
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Parameters{}, err
	}

	p := Compute(in)

	user.TimeBudgetMinutes = in.TimeBudgetMinutes
	score := in.FluencyScore
	user.FluencyScore = &score
	user.ScaffoldingLevel = p.ScaffoldingLevel
	user.Variant = p.Variant
	user.DailyNewTargetAyahs = p.DailyNewTargetAyahs
	user.ReviewRatioTarget = p.ReviewRatioTarget
	user.RetentionThreshold = p.RetentionThreshold
	user.BacklogFreezeRatio = p.BacklogFreezeRatio
	user.ConsolidationRetentionFloor = p.ConsolidationRetentionFloor
	user.ManzilRotationDays = p.ManzilRotationDays
	user.AvgSecondsPerItem = p.AvgSecondsPerItem
	user.OverdueCapSeconds = p.OverdueCapSeconds
	user.PriorJuzBand = in.PriorJuzBand
	user.Goal = in.Goal
	user.HasTeacher = in.HasTeacher
	user.TajwidConfidence = in.TajwidConfidence

	if err := s.store.UpdateUserParameters(ctx, user); err != nil {
		return Parameters{}, err
	}

	s.logger.Info("assessment applied",
		zap.String("user_id", userID.String()),
		zap.String("variant", string(p.Variant)),
		zap.String("scaffolding", string(p.ScaffoldingLevel)))
	return p, nil
}
