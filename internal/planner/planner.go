// Package planner computes the Today Queue: the per-request snapshot of what
// a user should review right now. The computation is a pure function of the
// user's parameters, item states, today's events, and the last week of daily
// rollups; nothing here caches across requests.
package planner

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/core"
	"github.com/mutqin/backend/internal/metrics"
	"github.com/mutqin/backend/internal/timeutil"
)

// Actions returned in the queue payload.
const (
	ActionStartSession        = "START_SESSION"
	ActionCompleteFluencyGate = "COMPLETE_FLUENCY_GATE"
)

// StatusFluencyGateRequired marks the payload emitted for gate-blocked users.
const StatusFluencyGateRequired = "FLUENCY_GATE_REQUIRED"

// Sabaq blocked reasons, strongest first.
const (
	BlockedWarmupFailed   = "warmup_failed"
	BlockedModeReviewOnly = "mode_review_only"
	BlockedWarmupPending  = "warmup_pending"
	BlockedNone           = "none"
)

const weakTransitionLimit = 10

// Store is the read surface the planner needs.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*core.User, error)
	DueItems(ctx context.Context, userID uuid.UUID, now time.Time) ([]core.UserItemState, error)
	ItemsIntroducedBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]core.UserItemState, error)
	ActiveManzilItems(ctx context.Context, userID uuid.UUID) ([]core.UserItemState, error)
	ReviewEventsBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]core.ReviewEvent, error)
	DailySessionsSince(ctx context.Context, userID uuid.UUID, fromDay string) ([]core.DailySession, error)
	WeakTransitions(ctx context.Context, userID uuid.UUID, minAttempts int, maxRate float64, limit int) ([]core.TransitionScore, error)
}

// Debt captures the backlog pressure at queue-build time.
type Debt struct {
	DueCount               int  `json:"due_count"`
	BacklogMinutesEstimate int  `json:"backlog_minutes_estimate"`
	OverdueDaysMax         int  `json:"overdue_days_max"`
	FreezeThresholdMinutes int  `json:"freeze_threshold_minutes"`
	Frozen                 bool `json:"frozen"`
}

// Warmup is the re-test verdict for items introduced the prior UTC day.
type Warmup struct {
	Passed        bool  `json:"passed"`
	Failed        bool  `json:"failed"`
	Pending       bool  `json:"pending"`
	PassedAyahIDs []int `json:"passed_ayah_ids"`
	FailedAyahIDs []int `json:"failed_ayah_ids"`
	PendingAyahs  []int `json:"pending_ayah_ids"`
}

// SabaqTask tells the client whether and how much new material is open today.
type SabaqTask struct {
	TargetAyahs   int    `json:"target_ayahs"`
	Allowed       bool   `json:"allowed"`
	BlockedReason string `json:"blocked_reason"`
}

// Queue is the full today-queue payload.
type Queue struct {
	Status                string                 `json:"status,omitempty"`
	Action                string                 `json:"action"`
	Mode                  core.QueueMode         `json:"mode"`
	RetentionRolling7d    float64                `json:"retention_rolling_7d"`
	Debt                  Debt                   `json:"debt"`
	Warmup                Warmup                 `json:"warmup"`
	Sabqi                 []core.UserItemState   `json:"sabqi"`
	Manzil                []core.UserItemState   `json:"manzil"`
	WeakTransitions       []core.TransitionScore `json:"weak_transitions"`
	LinkRepairRecommended bool                   `json:"link_repair_recommended"`
	SabaqTask             SabaqTask              `json:"sabaq_task"`
}

// Service builds today queues.
type Service struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewService builds the planner. metrics may be nil.
func NewService(store Store, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, metrics: m}
}

// Build computes the today queue for one user at the given instant.
func (s *Service) Build(ctx context.Context, userID uuid.UUID, now time.Time) (*Queue, error) {
	now = now.UTC()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.RequiresPreHifz || !user.FluencyGatePassed {
		return &Queue{
			Status:          StatusFluencyGateRequired,
			Action:          ActionCompleteFluencyGate,
			Mode:            core.ModeReviewOnly,
			Sabqi:           []core.UserItemState{},
			Manzil:          []core.UserItemState{},
			WeakTransitions: []core.TransitionScore{},
			SabaqTask:       SabaqTask{Allowed: false, BlockedReason: BlockedModeReviewOnly},
		}, nil
	}

	due, err := s.store.DueItems(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	debt := computeDebt(user, due, now)

	warmup, err := s.evaluateWarmup(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	retention, err := s.rollingRetention(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	mode := selectMode(debt, warmup, retention, user.RetentionThreshold)

	sabqi := make([]core.UserItemState, 0, len(due))
	dueManzil := make([]core.UserItemState, 0, len(due))
	for _, item := range due {
		if item.Tier == core.TierManzil {
			dueManzil = append(dueManzil, item)
		} else {
			sabqi = append(sabqi, item)
		}
	}
	sortByRisk(sabqi, now)

	active, err := s.store.ActiveManzilItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	manzil := rotateManzil(dueManzil, active, user.ManzilRotationDays, now)

	weak, err := s.store.WeakTransitions(ctx, userID,
		core.WeakTransitionMinAttempts, core.WeakTransitionMaxRate, weakTransitionLimit)
	if err != nil {
		return nil, err
	}

	q := &Queue{
		Action:                ActionStartSession,
		Mode:                  mode,
		RetentionRolling7d:    retention,
		Debt:                  debt,
		Warmup:                warmup,
		Sabqi:                 sabqi,
		Manzil:                manzil,
		WeakTransitions:       weak,
		LinkRepairRecommended: len(weak) > 5,
		SabaqTask:             sabaqTask(user.DailyNewTargetAyahs, mode, warmup),
	}

	if s.metrics != nil {
		s.metrics.QueueBuilds.WithLabelValues(string(mode)).Inc()
	}
	s.logger.Debug("today queue built",
		zap.String("user_id", userID.String()),
		zap.String("mode", string(mode)),
		zap.Int("due_count", debt.DueCount),
		zap.Bool("warmup_passed", warmup.Passed))

	return q, nil
}

func computeDebt(user *core.User, due []core.UserItemState, now time.Time) Debt {
	d := Debt{
		DueCount:               len(due),
		FreezeThresholdMinutes: int(math.Floor(float64(user.TimeBudgetMinutes) * user.BacklogFreezeRatio)),
	}
	d.BacklogMinutesEstimate = int(math.Ceil(float64(len(due)) * float64(user.AvgSecondsPerItem) / 60))

	var earliest time.Time
	for _, item := range due {
		if earliest.IsZero() || item.NextReviewAt.Before(earliest) {
			earliest = item.NextReviewAt
		}
	}
	if !earliest.IsZero() && !earliest.After(now) {
		d.OverdueDaysMax = timeutil.FloorDays(now.Sub(earliest))
	}

	d.Frozen = d.BacklogMinutesEstimate > d.FreezeThresholdMinutes || d.OverdueDaysMax > 2
	return d
}

// evaluateWarmup re-tests items introduced over the prior UTC day against
// today's attempts. An item passes on any success with at most one error.
func (s *Service) evaluateWarmup(ctx context.Context, userID uuid.UUID, now time.Time) (Warmup, error) {
	today := timeutil.DayStart(now)
	yesterday := today.AddDate(0, 0, -1)

	introduced, err := s.store.ItemsIntroducedBetween(ctx, userID, yesterday, today)
	if err != nil {
		return Warmup{}, err
	}
	if len(introduced) == 0 {
		return Warmup{
			Passed:        true,
			PassedAyahIDs: []int{},
			FailedAyahIDs: []int{},
			PendingAyahs:  []int{},
		}, nil
	}

	events, err := s.store.ReviewEventsBetween(ctx, userID, today, now)
	if err != nil {
		return Warmup{}, err
	}

	watch := make(map[int]bool, len(introduced))
	for _, item := range introduced {
		watch[item.AyahID] = true
	}

	attempted := make(map[int]bool)
	passed := make(map[int]bool)
	for _, ev := range events {
		if ev.EventType != core.EventReviewAttempted || ev.ItemAyahID == nil || !watch[*ev.ItemAyahID] {
			continue
		}
		attempted[*ev.ItemAyahID] = true
		if ev.Success != nil && *ev.Success && ev.ErrorsCount != nil && *ev.ErrorsCount <= 1 {
			passed[*ev.ItemAyahID] = true
		}
	}

	w := Warmup{
		PassedAyahIDs: []int{},
		FailedAyahIDs: []int{},
		PendingAyahs:  []int{},
	}
	for _, item := range introduced {
		switch {
		case passed[item.AyahID]:
			w.PassedAyahIDs = append(w.PassedAyahIDs, item.AyahID)
		case attempted[item.AyahID]:
			w.FailedAyahIDs = append(w.FailedAyahIDs, item.AyahID)
		default:
			w.PendingAyahs = append(w.PendingAyahs, item.AyahID)
		}
	}
	sort.Ints(w.PassedAyahIDs)
	sort.Ints(w.FailedAyahIDs)
	sort.Ints(w.PendingAyahs)

	w.Passed = len(w.FailedAyahIDs) == 0 && len(w.PendingAyahs) == 0
	w.Failed = len(w.FailedAyahIDs) > 0
	w.Pending = len(w.PendingAyahs) > 0
	return w, nil
}

// rollingRetention averages daily retention over the last seven UTC days and
// defaults to a perfect score when there is no history.
func (s *Service) rollingRetention(ctx context.Context, userID uuid.UUID, now time.Time) (float64, error) {
	fromDay := timeutil.UTCDay(now.AddDate(0, 0, -6))
	sessions, err := s.store.DailySessionsSince(ctx, userID, fromDay)
	if err != nil {
		return 0, err
	}
	if len(sessions) == 0 {
		return 1, nil
	}
	var sum float64
	for _, d := range sessions {
		sum += d.RetentionScore
	}
	return sum / float64(len(sessions)), nil
}

func selectMode(debt Debt, warmup Warmup, retention, threshold float64) core.QueueMode {
	if debt.Frozen || warmup.Failed {
		return core.ModeReviewOnly
	}
	if retention < threshold {
		return core.ModeConsolidation
	}
	return core.ModeNormal
}

// sortByRisk orders items most-at-risk first: larger overdue age, then more
// lapses, then higher difficulty, then more recent errors.
func sortByRisk(items []core.UserItemState, now time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		oi := now.Sub(items[i].NextReviewAt)
		oj := now.Sub(items[j].NextReviewAt)
		if oi != oj {
			return oi > oj
		}
		if items[i].Lapses != items[j].Lapses {
			return items[i].Lapses > items[j].Lapses
		}
		if items[i].DifficultyScore != items[j].DifficultyScore {
			return items[i].DifficultyScore > items[j].DifficultyScore
		}
		return items[i].LastErrorsCount > items[j].LastErrorsCount
	})
}

// rotateManzil returns the due MANZIL slice, topped up with non-due active
// items so that roughly the whole MANZIL cycles once per rotation window.
func rotateManzil(due, active []core.UserItemState, rotationDays int, now time.Time) []core.UserItemState {
	if rotationDays < 1 {
		rotationDays = 1
	}
	target := int(math.Ceil(float64(len(active)) / float64(rotationDays)))
	if target < 1 {
		target = 1
	}

	sortByRisk(due, now)
	if len(due) >= target {
		return due
	}

	inDue := make(map[int]bool, len(due))
	for _, item := range due {
		inDue[item.AyahID] = true
	}
	filler := make([]core.UserItemState, 0, len(active))
	for _, item := range active {
		if !inDue[item.AyahID] {
			filler = append(filler, item)
		}
	}
	sortByRisk(filler, now)

	out := append([]core.UserItemState{}, due...)
	for _, item := range filler {
		if len(out) >= target {
			break
		}
		out = append(out, item)
	}
	return out
}

func sabaqTask(dailyTarget int, mode core.QueueMode, warmup Warmup) SabaqTask {
	t := SabaqTask{TargetAyahs: dailyTarget, BlockedReason: BlockedNone}
	switch mode {
	case core.ModeReviewOnly:
		t.TargetAyahs = 0
	case core.ModeConsolidation:
		t.TargetAyahs = dailyTarget / 2
		if t.TargetAyahs < 1 {
			t.TargetAyahs = 1
		}
	}

	t.Allowed = mode != core.ModeReviewOnly && warmup.Passed
	switch {
	case warmup.Failed:
		t.BlockedReason = BlockedWarmupFailed
	case mode == core.ModeReviewOnly:
		t.BlockedReason = BlockedModeReviewOnly
	case warmup.Pending:
		t.BlockedReason = BlockedWarmupPending
	}
	return t
}
