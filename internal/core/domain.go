package core

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// ENUMERATED TYPES
// ============================================================================

// ReviewTier places an item on the Sabaq/Sabqi/Manzil ladder.
type ReviewTier string

const (
	TierSabaq  ReviewTier = "SABAQ"
	TierSabqi  ReviewTier = "SABQI"
	TierManzil ReviewTier = "MANZIL"
)

// ItemStatus is the lifecycle status of a per-user ayah.
type ItemStatus string

const (
	StatusLearning  ItemStatus = "LEARNING"
	StatusMemorized ItemStatus = "MEMORIZED"
	StatusReviewing ItemStatus = "REVIEWING"
	StatusPaused    ItemStatus = "PAUSED"
)

// QueueMode is the daily planning mode.
type QueueMode string

const (
	ModeNormal        QueueMode = "NORMAL"
	ModeConsolidation QueueMode = "CONSOLIDATION"
	ModeReviewOnly    QueueMode = "REVIEW_ONLY"
)

// SessionStatus tracks one sitting.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionAbandoned SessionStatus = "ABANDONED"
)

// EventType discriminates the review event union.
type EventType string

const (
	EventReviewAttempted     EventType = "REVIEW_ATTEMPTED"
	EventTransitionAttempted EventType = "TRANSITION_ATTEMPTED"
)

// StepType is one phase of the 3x3 memorization protocol.
type StepType string

const (
	StepExposure StepType = "EXPOSURE"
	StepGuided   StepType = "GUIDED"
	StepBlind    StepType = "BLIND"
	StepLink     StepType = "LINK"
)

// ScaffoldingLevel selects the protocol variant a user follows.
type ScaffoldingLevel string

const (
	ScaffoldingBeginner ScaffoldingLevel = "BEGINNER"
	ScaffoldingStandard ScaffoldingLevel = "STANDARD"
	ScaffoldingMinimal  ScaffoldingLevel = "MINIMAL"
)

// ProgramVariant is the pacing profile assigned at assessment.
type ProgramVariant string

const (
	VariantConservative ProgramVariant = "CONSERVATIVE"
	VariantStandard     ProgramVariant = "STANDARD"
	VariantMomentum     ProgramVariant = "MOMENTUM"
)

// TestStatus is the fluency gate test lifecycle.
type TestStatus string

const (
	TestInProgress TestStatus = "IN_PROGRESS"
	TestPassed     TestStatus = "PASSED"
	TestFailed     TestStatus = "FAILED"
)

// IsTerminal reports whether the test can no longer be submitted.
func (s TestStatus) IsTerminal() bool {
	return s == TestPassed || s == TestFailed
}

// PriorJuzBand is the self-reported amount of prior memorization.
type PriorJuzBand string

const (
	JuzBandZero      PriorJuzBand = "ZERO"
	JuzBandOneToFive PriorJuzBand = "ONE_TO_FIVE"
	JuzBandFivePlus  PriorJuzBand = "FIVE_PLUS"
)

// TajwidConfidence is the self-reported tajwid comfort level.
type TajwidConfidence string

const (
	TajwidLow    TajwidConfidence = "LOW"
	TajwidMedium TajwidConfidence = "MEDIUM"
	TajwidHigh   TajwidConfidence = "HIGH"
)

// ============================================================================
// ENTITIES
// ============================================================================

// User carries identity plus every scheduling parameter the planner reads.
// Parameters are mutated only by assessment or fluency-gate completion.
type User struct {
	ID                          uuid.UUID        `db:"id" json:"id"`
	Email                       string           `db:"email" json:"email"`
	TimeBudgetMinutes           int              `db:"time_budget_minutes" json:"time_budget_minutes"`
	FluencyScore                *float64         `db:"fluency_score" json:"fluency_score"`
	FluencyGatePassed           bool             `db:"fluency_gate_passed" json:"fluency_gate_passed"`
	RequiresPreHifz             bool             `db:"requires_pre_hifz" json:"requires_pre_hifz"`
	ScaffoldingLevel            ScaffoldingLevel `db:"scaffolding_level" json:"scaffolding_level"`
	Variant                     ProgramVariant   `db:"variant" json:"variant"`
	DailyNewTargetAyahs         int              `db:"daily_new_target_ayahs" json:"daily_new_target_ayahs"`
	ReviewRatioTarget           int              `db:"review_ratio_target" json:"review_ratio_target"`
	RetentionThreshold          float64          `db:"retention_threshold" json:"retention_threshold"`
	BacklogFreezeRatio          float64          `db:"backlog_freeze_ratio" json:"backlog_freeze_ratio"`
	ConsolidationRetentionFloor float64          `db:"consolidation_retention_floor" json:"consolidation_retention_floor"`
	ManzilRotationDays          int              `db:"manzil_rotation_days" json:"manzil_rotation_days"`
	AvgSecondsPerItem           int              `db:"avg_seconds_per_item" json:"avg_seconds_per_item"`
	OverdueCapSeconds           int              `db:"overdue_cap_seconds" json:"overdue_cap_seconds"`
	PriorJuzBand                PriorJuzBand     `db:"prior_juz_band" json:"prior_juz_band"`
	Goal                        string           `db:"goal" json:"goal"`
	HasTeacher                  bool             `db:"has_teacher" json:"has_teacher"`
	TajwidConfidence            TajwidConfidence `db:"tajwid_confidence" json:"tajwid_confidence"`
	CreatedAt                   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt                   time.Time        `db:"updated_at" json:"updated_at"`
}

// Ayah is one verse of the seeded corpus. Immutable at runtime.
type Ayah struct {
	ID          int    `db:"id" json:"id"`
	SurahNumber int    `db:"surah_number" json:"surah_number"`
	AyahNumber  int    `db:"ayah_number" json:"ayah_number"`
	JuzNumber   int    `db:"juz_number" json:"juz_number"`
	PageNumber  int    `db:"page_number" json:"page_number"`
	HizbQuarter int    `db:"hizb_quarter" json:"hizb_quarter"`
	TextUthmani string `db:"text_uthmani" json:"text_uthmani"`
}

// TotalAyahs is the size of the full corpus.
const TotalAyahs = 6236

// TotalPages is the number of mushaf pages in the seeded corpus.
const TotalPages = 604

// UserItemState is the sparse per-(user, ayah) learning record. Every field is
// a pure function of the ordered REVIEW_ATTEMPTED events for the pair; rows
// exist only once the first event has been reduced.
type UserItemState struct {
	UserID                  uuid.UUID  `db:"user_id" json:"user_id"`
	AyahID                  int        `db:"ayah_id" json:"ayah_id"`
	Status                  ItemStatus `db:"status" json:"status"`
	Tier                    ReviewTier `db:"tier" json:"tier"`
	NextReviewAt            time.Time  `db:"next_review_at" json:"next_review_at"`
	ReviewIntervalSeconds   int64      `db:"review_interval_seconds" json:"review_interval_seconds"`
	IntervalCheckpointIndex int        `db:"interval_checkpoint_index" json:"interval_checkpoint_index"`
	IntroducedAt            time.Time  `db:"introduced_at" json:"introduced_at"`
	FirstMemorizedAt        *time.Time `db:"first_memorized_at" json:"first_memorized_at"`
	DifficultyScore         float64    `db:"difficulty_score" json:"difficulty_score"`
	TotalReviews            int        `db:"total_reviews" json:"total_reviews"`
	SuccessfulReviews       int        `db:"successful_reviews" json:"successful_reviews"`
	Lapses                  int        `db:"lapses" json:"lapses"`
	SuccessStreak           int        `db:"success_streak" json:"success_streak"`
	ConsecutivePerfectDays  int        `db:"consecutive_perfect_days" json:"consecutive_perfect_days"`
	LastPerfectDay          *string    `db:"last_perfect_day" json:"last_perfect_day"`
	AverageDurationSeconds  float64    `db:"average_duration_seconds" json:"average_duration_seconds"`
	LastErrorsCount         int        `db:"last_errors_count" json:"last_errors_count"`
	LastReviewedAt          *time.Time `db:"last_reviewed_at" json:"last_reviewed_at"`
	LastEventOccurredAt     *time.Time `db:"last_event_occurred_at" json:"last_event_occurred_at"`
	UpdatedAt               time.Time  `db:"updated_at" json:"updated_at"`
}

// ReviewEvent is one row of the append-only log. The union shape is
// discriminated by EventType: REVIEW_ATTEMPTED fills the item fields,
// TRANSITION_ATTEMPTED the from/to pair.
type ReviewEvent struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	UserID          uuid.UUID   `db:"user_id" json:"user_id"`
	EventType       EventType   `db:"event_type" json:"event_type"`
	SessionRunID    *uuid.UUID  `db:"session_run_id" json:"session_run_id,omitempty"`
	ClientEventID   *string     `db:"client_event_id" json:"client_event_id,omitempty"`
	SessionType     *string     `db:"session_type" json:"session_type,omitempty"`
	ItemAyahID      *int        `db:"item_ayah_id" json:"item_ayah_id,omitempty"`
	Tier            *ReviewTier `db:"tier" json:"tier,omitempty"`
	StepType        *StepType   `db:"step_type" json:"step_type,omitempty"`
	AttemptNumber   *int        `db:"attempt_number" json:"attempt_number,omitempty"`
	ScaffoldingUsed bool        `db:"scaffolding_used" json:"scaffolding_used"`
	LinkedAyahID    *int        `db:"linked_ayah_id" json:"linked_ayah_id,omitempty"`
	FromAyahID      *int        `db:"from_ayah_id" json:"from_ayah_id,omitempty"`
	ToAyahID        *int        `db:"to_ayah_id" json:"to_ayah_id,omitempty"`
	Success         *bool       `db:"success" json:"success,omitempty"`
	ErrorsCount     *int        `db:"errors_count" json:"errors_count,omitempty"`
	DurationSeconds *int        `db:"duration_seconds" json:"duration_seconds,omitempty"`
	ErrorTags       []string    `db:"-" json:"error_tags,omitempty"`
	OccurredAt      time.Time   `db:"occurred_at" json:"occurred_at"`
	ReceivedAt      time.Time   `db:"received_at" json:"received_at"`
}

// SessionRun is one user sitting.
type SessionRun struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	UserID          uuid.UUID     `db:"user_id" json:"user_id"`
	ClientSessionID *string       `db:"client_session_id" json:"client_session_id,omitempty"`
	Mode            QueueMode     `db:"mode" json:"mode"`
	WarmupPassed    bool          `db:"warmup_passed" json:"warmup_passed"`
	Status          SessionStatus `db:"status" json:"status"`
	StartedAt       time.Time     `db:"started_at" json:"started_at"`
	EndedAt         *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
	EventsCount     int           `db:"events_count" json:"events_count"`
	MinutesTotal    int           `db:"minutes_total" json:"minutes_total"`
}

// DailySession is the per-(user, UTC day) aggregate written on session close.
type DailySession struct {
	UserID                 uuid.UUID `db:"user_id" json:"user_id"`
	SessionDate            string    `db:"session_date" json:"session_date"` // YYYY-MM-DD, UTC
	Mode                   QueueMode `db:"mode" json:"mode"`
	RetentionScore         float64   `db:"retention_score" json:"retention_score"`
	BacklogMinutesEstimate int       `db:"backlog_minutes_estimate" json:"backlog_minutes_estimate"`
	OverdueDaysMax         int       `db:"overdue_days_max" json:"overdue_days_max"`
	MinutesTotal           int       `db:"minutes_total" json:"minutes_total"`
	ReviewsTotal           int       `db:"reviews_total" json:"reviews_total"`
	ReviewsSuccessful      int       `db:"reviews_successful" json:"reviews_successful"`
	NewAyahsMemorized      int       `db:"new_ayahs_memorized" json:"new_ayahs_memorized"`
	WarmupPassed           bool      `db:"warmup_passed" json:"warmup_passed"`
	SabaqAllowed           bool      `db:"sabaq_allowed" json:"sabaq_allowed"`
}

// TransitionScore tracks the strength of the from→to inter-ayah link.
type TransitionScore struct {
	UserID          uuid.UUID `db:"user_id" json:"user_id"`
	FromAyahID      int       `db:"from_ayah_id" json:"from_ayah_id"`
	ToAyahID        int       `db:"to_ayah_id" json:"to_ayah_id"`
	AttemptCount    int       `db:"attempt_count" json:"attempt_count"`
	SuccessCount    int       `db:"success_count" json:"success_count"`
	LastPracticedAt time.Time `db:"last_practiced_at" json:"last_practiced_at"`
}

// SuccessRate is successCount/attemptCount, zero before any attempt.
func (t TransitionScore) SuccessRate() float64 {
	if t.AttemptCount == 0 {
		return 0
	}
	return float64(t.SuccessCount) / float64(t.AttemptCount)
}

// Weak reports whether the link needs repair work.
func (t TransitionScore) Weak() bool {
	return t.AttemptCount >= WeakTransitionMinAttempts && t.SuccessRate() < WeakTransitionMaxRate
}

// Weak-transition thresholds shared by the planner and analytics.
const (
	WeakTransitionMinAttempts = 3
	WeakTransitionMaxRate     = 0.70
)

// FluencyGateTest is one page-read attempt at the pre-hifz gate.
type FluencyGateTest struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	UserID          uuid.UUID  `db:"user_id" json:"user_id"`
	Status          TestStatus `db:"status" json:"status"`
	TestPage        int        `db:"test_page" json:"test_page"`
	DurationSeconds *int       `db:"duration_seconds" json:"duration_seconds,omitempty"`
	ErrorCount      *int       `db:"error_count" json:"error_count,omitempty"`
	FluencyScore    *float64   `db:"fluency_score" json:"fluency_score,omitempty"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
