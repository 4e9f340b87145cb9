// Package fluency runs the pre-hifz page-read gate. A pass is what lets a
// user into the scheduler; until then the queue planner blocks them.
package fluency

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/apperr"
	"github.com/mutqin/backend/internal/core"
	"github.com/mutqin/backend/internal/metrics"
)

// PassThreshold is the minimum combined score for a pass.
const PassThreshold = 70.0

// Score computes the combined time/accuracy score for one page read.
// Reading under three minutes earns full time marks; past that the score
// decays by one point per six seconds. Up to four errors earn full accuracy
// marks; each further error costs five points.
func Score(durationSeconds, errorCount int) (timeScore, accuracyScore, total float64) {
	if durationSeconds < 180 {
		timeScore = 50
	} else {
		timeScore = 50 - float64(durationSeconds-180)/6
		if timeScore < 0 {
			timeScore = 0
		}
	}

	if errorCount < 5 {
		accuracyScore = 50
	} else {
		accuracyScore = 50 - float64(errorCount-5)*5
		if accuracyScore < 0 {
			accuracyScore = 0
		}
	}
	return timeScore, accuracyScore, timeScore + accuracyScore
}

// Store is the persistence surface the gate needs.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*core.User, error)
	CreateFluencyTest(ctx context.Context, t *core.FluencyGateTest) error
	GetFluencyTest(ctx context.Context, userID, testID uuid.UUID) (*core.FluencyGateTest, error)
	LatestFluencyTest(ctx context.Context, userID uuid.UUID) (*core.FluencyGateTest, error)
	FinishFluencyTest(ctx context.Context, testID uuid.UUID, status core.TestStatus, durationSeconds, errorCount int, score float64, completedAt time.Time) error
	SetUserFluencyResult(ctx context.Context, userID uuid.UUID, score float64, passed bool) error
	MemorizedPages(ctx context.Context, userID uuid.UUID) ([]int, error)
}

// Corpus resolves pages and their contents.
type Corpus interface {
	Page(ctx context.Context, page int) ([]core.Ayah, error)
	Pages(ctx context.Context) ([]int, error)
}

// StartResult is the payload for a newly opened test.
type StartResult struct {
	TestID uuid.UUID   `json:"test_id"`
	Page   int         `json:"page"`
	Ayahs  []core.Ayah `json:"ayahs"`
}

// SubmitResult is the scored outcome of a submission.
type SubmitResult struct {
	TestID        uuid.UUID `json:"test_id"`
	TimeScore     float64   `json:"time_score"`
	AccuracyScore float64   `json:"accuracy_score"`
	FluencyScore  float64   `json:"fluency_score"`
	Passed        bool      `json:"passed"`
}

// StatusResult pairs the user's gate flags with their latest test.
type StatusResult struct {
	FluencyScore      *float64              `json:"fluency_score"`
	FluencyGatePassed bool                  `json:"fluency_gate_passed"`
	RequiresPreHifz   bool                  `json:"requires_pre_hifz"`
	LatestTest        *core.FluencyGateTest `json:"latest_test,omitempty"`
}

// Service runs the gate lifecycle.
type Service struct {
	store   Store
	corpus  Corpus
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	pick    func(n int) int
}

// NewService builds the gate service. metrics may be nil.
func NewService(store Store, corpus Corpus, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		corpus:  corpus,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		pick:    rand.Intn,
	}
}

// WithClock overrides the service clock; tests pin it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithPicker overrides the page picker; tests make it deterministic.
func (s *Service) WithPicker(pick func(n int) int) *Service {
	s.pick = pick
	return s
}

// Start opens a new IN_PROGRESS test on a page the user has not memorized
// (any seeded page as a fallback) and returns the page's ayahs.
func (s *Service) Start(ctx context.Context, userID uuid.UUID) (*StartResult, error) {
	pages, err := s.corpus.Pages(ctx)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, apperr.New(apperr.KindConflict, "ayah corpus is not seeded")
	}

	memorized, err := s.store.MemorizedPages(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool, len(memorized))
	for _, p := range memorized {
		seen[p] = true
	}
	candidates := make([]int, 0, len(pages))
	for _, p := range pages {
		if !seen[p] {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		candidates = pages
	}

	page := candidates[s.pick(len(candidates))]
	ayahs, err := s.corpus.Page(ctx, page)
	if err != nil {
		return nil, err
	}

	test := &core.FluencyGateTest{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    core.TestInProgress,
		TestPage:  page,
		StartedAt: s.now().UTC(),
	}
	if err := s.store.CreateFluencyTest(ctx, test); err != nil {
		return nil, err
	}

	return &StartResult{TestID: test.ID, Page: page, Ayahs: ayahs}, nil
}

// Submit scores an IN_PROGRESS test, moves it to its terminal status, and
// flips the user's gate flags. Terminal tests report not-found.
func (s *Service) Submit(ctx context.Context, userID, testID uuid.UUID, durationSeconds, errorCount int) (*SubmitResult, error) {
	if durationSeconds <= 0 {
		return nil, apperr.Validation("duration_seconds must be > 0")
	}
	if errorCount < 0 {
		return nil, apperr.Validation("error_count must be >= 0")
	}

	test, err := s.store.GetFluencyTest(ctx, userID, testID)
	if err != nil {
		return nil, err
	}
	if test.Status.IsTerminal() {
		return nil, apperr.NotFound("no in-progress fluency test")
	}

	timeScore, accuracyScore, total := Score(durationSeconds, errorCount)
	passed := total >= PassThreshold
	status := core.TestFailed
	if passed {
		status = core.TestPassed
	}

	now := s.now().UTC()
	if err := s.store.FinishFluencyTest(ctx, testID, status, durationSeconds, errorCount, total, now); err != nil {
		return nil, err
	}
	if err := s.store.SetUserFluencyResult(ctx, userID, total, passed); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		result := "failed"
		if passed {
			result = "passed"
		}
		s.metrics.FluencyTests.WithLabelValues(result).Inc()
	}
	s.logger.Info("fluency gate submitted",
		zap.String("user_id", userID.String()),
		zap.Float64("score", total),
		zap.Bool("passed", passed))

	return &SubmitResult{
		TestID:        testID,
		TimeScore:     timeScore,
		AccuracyScore: accuracyScore,
		FluencyScore:  total,
		Passed:        passed,
	}, nil
}

// Status reports the user's gate flags plus their latest test, if any.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*StatusResult, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestFluencyTest(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		FluencyScore:      user.FluencyScore,
		FluencyGatePassed: user.FluencyGatePassed,
		RequiresPreHifz:   user.RequiresPreHifz,
		LatestTest:        latest,
	}, nil
}
