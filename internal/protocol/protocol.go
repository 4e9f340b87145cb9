// Package protocol implements the 3x3 step-sequence state machine that
// governs how a new ayah is drilled inside a session. The machine is pure:
// it is evaluated from the session's prior events on every submission and
// never holds state of its own.
package protocol

import (
	"fmt"

	"github.com/mutqin/backend/internal/apperr"
	"github.com/mutqin/backend/internal/core"
)

// Step is one rung of a protocol: a step type, how many attempts it takes,
// and whether the whole step may be skipped.
type Step struct {
	Type     core.StepType `json:"step_type"`
	Attempts int           `json:"attempts"`
	Optional bool          `json:"optional"`
}

// Protocol is the ordered step sequence for one scaffolding level.
type Protocol []Step

var protocols = map[core.ScaffoldingLevel]Protocol{
	core.ScaffoldingBeginner: {
		{Type: core.StepExposure, Attempts: 3},
		{Type: core.StepGuided, Attempts: 3},
		{Type: core.StepBlind, Attempts: 3},
		{Type: core.StepLink, Attempts: 3},
	},
	core.ScaffoldingStandard: {
		{Type: core.StepExposure, Attempts: 3},
		{Type: core.StepGuided, Attempts: 1},
		{Type: core.StepBlind, Attempts: 3},
		{Type: core.StepLink, Attempts: 3},
	},
	core.ScaffoldingMinimal: {
		{Type: core.StepExposure, Attempts: 3, Optional: true},
		{Type: core.StepGuided, Attempts: 3, Optional: true},
		{Type: core.StepBlind, Attempts: 3},
		{Type: core.StepLink, Attempts: 3},
	},
}

// For returns the protocol for a scaffolding level. Unknown levels get the
// STANDARD protocol.
func For(level core.ScaffoldingLevel) Protocol {
	if p, ok := protocols[level]; ok {
		return p
	}
	return protocols[core.ScaffoldingStandard]
}

// Counts is the observed attempt count per step type.
type Counts map[core.StepType]int

// CountSteps folds a session's events for one ayah into observed counts.
// Only REVIEW_ATTEMPTED events with a step type participate.
func CountSteps(events []core.ReviewEvent) Counts {
	c := Counts{}
	for _, ev := range events {
		if ev.EventType != core.EventReviewAttempted || ev.StepType == nil {
			continue
		}
		c[*ev.StepType]++
	}
	return c
}

// Expectation is the machine's verdict on where the ayah stands.
type Expectation struct {
	Completed       bool          `json:"completed"`
	ExpectedStep    core.StepType `json:"expected_step,omitempty"`
	ExpectedAttempt int           `json:"expected_attempt,omitempty"`
}

// Expected finds the first non-optional step whose observed count is short of
// its required attempts. When every mandatory step is satisfied the ayah is
// complete.
func (p Protocol) Expected(counts Counts) Expectation {
	for _, step := range p {
		if step.Optional {
			continue
		}
		observed := counts[step.Type]
		if observed < step.Attempts {
			return Expectation{ExpectedStep: step.Type, ExpectedAttempt: observed + 1}
		}
	}
	return Expectation{Completed: true}
}

func (p Protocol) step(t core.StepType) (Step, bool) {
	for _, step := range p {
		if step.Type == t {
			return step, true
		}
	}
	return Step{}, false
}

// Validate checks a submitted (step, attempt) against the observed counts.
// Optional steps are allowed only while the machine is waiting on BLIND, in
// their own attempt order. Everything else must match the expected step and
// attempt exactly.
func (p Protocol) Validate(counts Counts, stepType core.StepType, attemptNumber int) error {
	exp := p.Expected(counts)

	step, known := p.step(stepType)
	if !known {
		return rejection(p, counts, exp, fmt.Sprintf("step %s is not part of this protocol", stepType))
	}

	if exp.Completed {
		return rejection(p, counts, exp, "all steps for this ayah are already complete")
	}

	if step.Optional {
		if exp.ExpectedStep != core.StepBlind {
			return rejection(p, counts, exp, fmt.Sprintf("optional step %s is not available before mandatory work is done", stepType))
		}
		want := counts[stepType] + 1
		if attemptNumber != want || attemptNumber > step.Attempts {
			return rejection(p, counts, exp, fmt.Sprintf("optional step %s expects attempt %d", stepType, want))
		}
		return nil
	}

	if stepType != exp.ExpectedStep || attemptNumber != exp.ExpectedAttempt {
		return rejection(p, counts, exp, fmt.Sprintf("expected %s attempt %d, got %s attempt %d",
			exp.ExpectedStep, exp.ExpectedAttempt, stepType, attemptNumber))
	}
	return nil
}

// StepStatus classifies the machine's position after a valid submission.
type StepStatus string

const (
	StepInProgress StepStatus = "IN_PROGRESS"
	StepComplete   StepStatus = "STEP_COMPLETE"
	AyahComplete   StepStatus = "AYAH_COMPLETE"
)

// StatusAfter reports whether the just-submitted step finished its attempts,
// finished the whole ayah, or left the step mid-flight.
func (p Protocol) StatusAfter(counts Counts, stepType core.StepType) StepStatus {
	if p.Expected(counts).Completed {
		return AyahComplete
	}
	step, ok := p.step(stepType)
	if ok && counts[stepType] >= step.Attempts {
		return StepComplete
	}
	return StepInProgress
}

// Progress summarizes per-step observed counts for the client.
type Progress struct {
	Steps []StepProgress `json:"steps"`
}

// StepProgress is one row of the protocol summary.
type StepProgress struct {
	Type     core.StepType `json:"step_type"`
	Attempts int           `json:"attempts"`
	Observed int           `json:"observed"`
	Optional bool          `json:"optional"`
}

// Summarize renders the protocol alongside observed counts.
func (p Protocol) Summarize(counts Counts) Progress {
	out := Progress{Steps: make([]StepProgress, 0, len(p))}
	for _, step := range p {
		out.Steps = append(out.Steps, StepProgress{
			Type:     step.Type,
			Attempts: step.Attempts,
			Observed: counts[step.Type],
			Optional: step.Optional,
		})
	}
	return out
}

func rejection(p Protocol, counts Counts, exp Expectation, msg string) error {
	return apperr.New(apperr.KindProtocolViolation, msg).
		WithDetail("expected", exp).
		WithDetail("protocol", p.Summarize(counts))
}
