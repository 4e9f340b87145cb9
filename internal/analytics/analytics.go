// Package analytics derives the read models served under /api/v1/user: the
// activity calendar, achievements, the progress view, and headline stats.
// Everything here is a pure read; missing history yields empty collections,
// never errors.
package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/apperr"
	"github.com/mutqin/backend/internal/core"
	"github.com/mutqin/backend/internal/timeutil"
)

// Store is the read surface for the analytics views.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*core.User, error)
	AllDailySessions(ctx context.Context, userID uuid.UUID) ([]core.DailySession, error)
	DailySessionsInRange(ctx context.Context, userID uuid.UUID, fromDay, toDay string) ([]core.DailySession, error)
	ItemStates(ctx context.Context, userID uuid.UUID) ([]core.UserItemState, error)
	WeakTransitions(ctx context.Context, userID uuid.UUID, minAttempts int, maxRate float64, limit int) ([]core.TransitionScore, error)
	StrongTransitionCount(ctx context.Context, userID uuid.UUID, minAttempts int, minRate float64) (int, error)
}

// Service serves the user read models.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService builds the analytics reader.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the service clock; tests pin it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// XP weights for one active day.
const (
	xpPerMinute           = 2
	xpPerSuccessfulReview = 1
	xpPerNewAyah          = 10
)

func dayXP(d core.DailySession) int {
	return d.MinutesTotal*xpPerMinute +
		d.ReviewsSuccessful*xpPerSuccessfulReview +
		d.NewAyahsMemorized*xpPerNewAyah
}

// CalendarDay is one day cell of the activity calendar.
type CalendarDay struct {
	Date              string         `json:"date"`
	Active            bool           `json:"active"`
	Mode              core.QueueMode `json:"mode,omitempty"`
	MinutesTotal      int            `json:"minutes_total"`
	ReviewsTotal      int            `json:"reviews_total"`
	ReviewsSuccessful int            `json:"reviews_successful"`
	NewAyahsMemorized int            `json:"new_ayahs_memorized"`
	XP                int            `json:"xp"`
}

// Calendar is one month of activity.
type Calendar struct {
	Month         string        `json:"month"`
	Days          []CalendarDay `json:"days"`
	ActiveDays    int           `json:"active_days"`
	TotalXP       int           `json:"total_xp"`
	CurrentStreak int           `json:"current_streak"`
	BestStreak    int           `json:"best_streak"`
}

// Calendar renders the activity calendar for one month (YYYY-MM; empty means
// the current UTC month). Streaks are computed over the full history.
func (s *Service) Calendar(ctx context.Context, userID uuid.UUID, month string) (*Calendar, error) {
	now := s.now().UTC()
	if month == "" {
		month = now.Format("2006-01")
	}
	first, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, apperr.Validation("month must be formatted YYYY-MM")
	}
	next := first.AddDate(0, 1, 0)

	// The store range is half-open, so the upper bound is the first day of
	// the following month.
	sessions, err := s.store.DailySessionsInRange(ctx, userID,
		timeutil.UTCDay(first), timeutil.UTCDay(next))
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]core.DailySession, len(sessions))
	for _, d := range sessions {
		byDay[d.SessionDate] = d
	}

	cal := &Calendar{Month: month}
	for day := first; day.Before(next); day = day.AddDate(0, 0, 1) {
		key := timeutil.UTCDay(day)
		cell := CalendarDay{Date: key}
		if d, ok := byDay[key]; ok {
			cell.Active = true
			cell.Mode = d.Mode
			cell.MinutesTotal = d.MinutesTotal
			cell.ReviewsTotal = d.ReviewsTotal
			cell.ReviewsSuccessful = d.ReviewsSuccessful
			cell.NewAyahsMemorized = d.NewAyahsMemorized
			cell.XP = dayXP(d)
			cal.ActiveDays++
			cal.TotalXP += cell.XP
		}
		cal.Days = append(cal.Days, cell)
	}

	all, err := s.store.AllDailySessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	cal.CurrentStreak, cal.BestStreak = streaks(all, timeutil.UTCDay(now))
	return cal, nil
}

// streaks walks the sorted active days and returns the run ending today (or
// yesterday, a day still in progress does not break it) plus the best run.
func streaks(sessions []core.DailySession, today string) (current, best int) {
	if len(sessions) == 0 {
		return 0, 0
	}
	days := make([]string, 0, len(sessions))
	for _, d := range sessions {
		days = append(days, d.SessionDate)
	}
	sort.Strings(days)

	run := 1
	best = 1
	for i := 1; i < len(days); i++ {
		if timeutil.DaysBetween(days[i-1], days[i]) == 1 {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}

	gap := timeutil.DaysBetween(days[len(days)-1], today)
	if gap <= 1 {
		current = run
	}
	return current, best
}

// Achievement rarities.
const (
	RarityCommon    = "COMMON"
	RarityUncommon  = "UNCOMMON"
	RarityRare      = "RARE"
	RarityEpic      = "EPIC"
	RarityLegendary = "LEGENDARY"
)

// Achievement is one badge with its earned state.
type Achievement struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Rarity      string `json:"rarity"`
	Earned      bool   `json:"earned"`
}

const (
	linkMasterStrongTransitions = 50
	dedicatedHourMinutes        = 60
	strongTransitionMinRate     = 0.90
)

// Achievements evaluates the fixed badge set against the user's history.
func (s *Service) Achievements(ctx context.Context, userID uuid.UUID) ([]Achievement, error) {
	items, err := s.store.ItemStates(ctx, userID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.AllDailySessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	strong, err := s.store.StrongTransitionCount(ctx, userID,
		core.WeakTransitionMinAttempts, strongTransitionMinRate)
	if err != nil {
		return nil, err
	}

	memorized := 0
	manzil := false
	for _, item := range items {
		if item.Status == core.StatusMemorized {
			memorized++
		}
		if item.Tier == core.TierManzil {
			manzil = true
		}
	}

	_, best := streaks(sessions, timeutil.UTCDay(s.now().UTC()))
	dedicated := false
	for _, d := range sessions {
		if d.MinutesTotal >= dedicatedHourMinutes {
			dedicated = true
			break
		}
	}

	return []Achievement{
		{Code: "first_ayah", Title: "First Ayah", Description: "Memorize your first ayah",
			Rarity: RarityCommon, Earned: memorized >= 1},
		{Code: "ten_ayahs", Title: "Ten Strong", Description: "Memorize ten ayahs",
			Rarity: RarityCommon, Earned: memorized >= 10},
		{Code: "first_juz", Title: "First Juz", Description: "Memorize a juz' worth of ayahs",
			Rarity: RarityEpic, Earned: memorized >= 148},
		{Code: "week_streak", Title: "Seven Days", Description: "Practice seven days in a row",
			Rarity: RarityUncommon, Earned: best >= 7},
		{Code: "month_streak", Title: "Thirty Days", Description: "Practice thirty days in a row",
			Rarity: RarityLegendary, Earned: best >= 30},
		{Code: "perfect_week", Title: "Perfect Week", Description: "A full week at 100% retention",
			Rarity: RarityRare, Earned: perfectWeek(sessions)},
		{Code: "manzil_founder", Title: "Manzil Founder", Description: "Promote your first ayah to Manzil",
			Rarity: RarityRare, Earned: manzil},
		{Code: "link_master", Title: "Link Master", Description: "Fifty strong ayah-to-ayah links",
			Rarity: RarityEpic, Earned: strong >= linkMasterStrongTransitions},
		{Code: "dedicated_hour", Title: "Dedicated Hour", Description: "An hour of practice in one day",
			Rarity: RarityUncommon, Earned: dedicated},
	}, nil
}

// perfectWeek looks for seven consecutive active days all at full retention.
func perfectWeek(sessions []core.DailySession) bool {
	byDay := make(map[string]core.DailySession, len(sessions))
	days := make([]string, 0, len(sessions))
	for _, d := range sessions {
		byDay[d.SessionDate] = d
		days = append(days, d.SessionDate)
	}
	sort.Strings(days)

	run := 0
	for i, day := range days {
		consecutive := i > 0 && timeutil.DaysBetween(days[i-1], day) == 1
		if byDay[day].RetentionScore >= 1 && byDay[day].ReviewsTotal > 0 {
			if consecutive && run > 0 {
				run++
			} else {
				run = 1
			}
			if run >= 7 {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// Progress is the learning-health view.
type Progress struct {
	OverallRetention       float64                 `json:"overall_retention"`
	CheckpointDistribution map[int]int             `json:"checkpoint_distribution"`
	TierCounts             map[core.ReviewTier]int `json:"tier_counts"`
	WeakTransitions        []core.TransitionScore  `json:"weak_transitions"`
	StrongTransitionCount  int                     `json:"strong_transition_count"`
	Recommendation         string                  `json:"recommendation"`
}

// Progress computes overall retention, the checkpoint-ladder distribution,
// transition health, and a one-line recommendation.
func (s *Service) Progress(ctx context.Context, userID uuid.UUID) (*Progress, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ItemStates(ctx, userID)
	if err != nil {
		return nil, err
	}
	weak, err := s.store.WeakTransitions(ctx, userID,
		core.WeakTransitionMinAttempts, core.WeakTransitionMaxRate, 10)
	if err != nil {
		return nil, err
	}
	strong, err := s.store.StrongTransitionCount(ctx, userID,
		core.WeakTransitionMinAttempts, strongTransitionMinRate)
	if err != nil {
		return nil, err
	}

	p := &Progress{
		CheckpointDistribution: map[int]int{},
		TierCounts:             map[core.ReviewTier]int{},
		WeakTransitions:        weak,
		StrongTransitionCount:  strong,
	}

	var reviews, successes int
	for _, item := range items {
		p.CheckpointDistribution[item.IntervalCheckpointIndex]++
		p.TierCounts[item.Tier]++
		reviews += item.TotalReviews
		successes += item.SuccessfulReviews
	}
	p.OverallRetention = 1
	if reviews > 0 {
		p.OverallRetention = float64(successes) / float64(reviews)
	}

	switch {
	case len(items) == 0:
		p.Recommendation = "Start with your first ayah today."
	case len(weak) > 5:
		p.Recommendation = "Several ayah links are weak. Run link-repair drills before adding new material."
	case p.OverallRetention < user.RetentionThreshold:
		p.Recommendation = "Retention is below your threshold. Favor consolidation over new ayahs this week."
	default:
		p.Recommendation = "Retention is healthy. Keep your daily Sabaq target."
	}
	return p, nil
}

// Stats is the headline numbers view.
type Stats struct {
	AyahsMemorized    int                `json:"ayahs_memorized"`
	AyahsStarted      int                `json:"ayahs_started"`
	TotalReviews      int                `json:"total_reviews"`
	TotalMinutes      int                `json:"total_minutes"`
	TotalXP           int                `json:"total_xp"`
	CurrentStreak     int                `json:"current_streak"`
	BestStreak        int                `json:"best_streak"`
	Today             *core.DailySession `json:"today,omitempty"`
	FluencyGatePassed bool               `json:"fluency_gate_passed"`
}

// Stats aggregates lifetime totals plus today's rollup.
func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ItemStates(ctx, userID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.AllDailySessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	st := &Stats{FluencyGatePassed: user.FluencyGatePassed}
	for _, item := range items {
		st.AyahsStarted++
		if item.Status == core.StatusMemorized {
			st.AyahsMemorized++
		}
		st.TotalReviews += item.TotalReviews
	}

	today := timeutil.UTCDay(s.now().UTC())
	for i, d := range sessions {
		st.TotalMinutes += d.MinutesTotal
		st.TotalXP += dayXP(d)
		if d.SessionDate == today {
			st.Today = &sessions[i]
		}
	}
	st.CurrentStreak, st.BestStreak = streaks(sessions, today)
	return st, nil
}
