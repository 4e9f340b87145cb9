// Package spacing implements the fixed checkpoint ladder and per-attempt
// outcome arithmetic. Everything here is pure; the reducer folds it over the
// event log and the planner reads its tier mapping.
package spacing

import "github.com/mutqin/backend/internal/core"

// Checkpoints is the review ladder in seconds: 4h, 8h, 1d, 3d, 7d, 14d, 30d, 90d.
var Checkpoints = [8]int64{
	4 * 3600,
	8 * 3600,
	24 * 3600,
	3 * 24 * 3600,
	7 * 24 * 3600,
	14 * 24 * 3600,
	30 * 24 * 3600,
	90 * 24 * 3600,
}

// MaxCheckpoint is the top rung of the ladder.
const MaxCheckpoint = 7

// Outcome classifies a single review attempt.
type Outcome int

const (
	OutcomeFail Outcome = iota
	OutcomeMinor
	OutcomePerfect
)

func (o Outcome) String() string {
	switch o {
	case OutcomePerfect:
		return "perfect"
	case OutcomeMinor:
		return "minor"
	default:
		return "fail"
	}
}

// Classify maps a reported attempt to an outcome. More than two errors counts
// as a fail even when the client reports success.
func Classify(success bool, errorsCount int) Outcome {
	switch {
	case !success || errorsCount > 2:
		return OutcomeFail
	case errorsCount == 0:
		return OutcomePerfect
	default:
		return OutcomeMinor
	}
}

// NextIndex advances the checkpoint index for one outcome. Perfect climbs,
// minor holds, fail drops to the bottom.
func NextIndex(index int, outcome Outcome) int {
	switch outcome {
	case OutcomePerfect:
		if index >= MaxCheckpoint {
			return MaxCheckpoint
		}
		return index + 1
	case OutcomeMinor:
		return index
	default:
		return 0
	}
}

// IntervalSeconds returns the ladder interval for an index, clamping out-of-range
// indices to the nearest rung.
func IntervalSeconds(index int) int64 {
	if index < 0 {
		index = 0
	}
	if index > MaxCheckpoint {
		index = MaxCheckpoint
	}
	return Checkpoints[index]
}

// TierForIndex maps a checkpoint index to the checkpoint-derived tier. The
// effective tier is additionally subject to the promotion gate in the reducer.
func TierForIndex(index int) core.ReviewTier {
	switch {
	case index <= 1:
		return core.TierSabaq
	case index <= 5:
		return core.TierSabqi
	default:
		return core.TierManzil
	}
}

// Difficulty EWMA deltas per outcome.
const (
	difficultyFailDelta    = 0.10
	difficultyMinorDelta   = 0.03
	difficultyPerfectDelta = -0.05
)

// UpdateDifficulty applies the EWMA delta for one outcome, clamped to [0,1].
func UpdateDifficulty(current float64, outcome Outcome) float64 {
	switch outcome {
	case OutcomeFail:
		current += difficultyFailDelta
	case OutcomeMinor:
		current += difficultyMinorDelta
	default:
		current += difficultyPerfectDelta
	}
	if current < 0 {
		return 0
	}
	if current > 1 {
		return 1
	}
	return current
}
