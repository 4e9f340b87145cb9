package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mutqin/backend/internal/apperr"
	"github.com/mutqin/backend/internal/core"
)

func counts(pairs ...any) Counts {
	c := Counts{}
	for i := 0; i < len(pairs); i += 2 {
		c[pairs[i].(core.StepType)] = pairs[i+1].(int)
	}
	return c
}

func TestExpectedWalksTheLadder(t *testing.T) {
	p := For(core.ScaffoldingStandard)

	exp := p.Expected(Counts{})
	assert.Equal(t, core.StepExposure, exp.ExpectedStep)
	assert.Equal(t, 1, exp.ExpectedAttempt)

	exp = p.Expected(counts(core.StepExposure, 2))
	assert.Equal(t, core.StepExposure, exp.ExpectedStep)
	assert.Equal(t, 3, exp.ExpectedAttempt)

	exp = p.Expected(counts(core.StepExposure, 3))
	assert.Equal(t, core.StepGuided, exp.ExpectedStep)
	assert.Equal(t, 1, exp.ExpectedAttempt)

	// STANDARD takes a single guided pass.
	exp = p.Expected(counts(core.StepExposure, 3, core.StepGuided, 1))
	assert.Equal(t, core.StepBlind, exp.ExpectedStep)

	exp = p.Expected(counts(core.StepExposure, 3, core.StepGuided, 1, core.StepBlind, 3, core.StepLink, 3))
	assert.True(t, exp.Completed)
}

func TestExpectedBeginnerNeedsThreeGuided(t *testing.T) {
	p := For(core.ScaffoldingBeginner)
	exp := p.Expected(counts(core.StepExposure, 3, core.StepGuided, 1))
	assert.Equal(t, core.StepGuided, exp.ExpectedStep)
	assert.Equal(t, 2, exp.ExpectedAttempt)
}

func TestExpectedMinimalSkipsOptionalSteps(t *testing.T) {
	p := For(core.ScaffoldingMinimal)
	exp := p.Expected(Counts{})
	assert.Equal(t, core.StepBlind, exp.ExpectedStep)
	assert.Equal(t, 1, exp.ExpectedAttempt)
}

func TestValidateFirstStepViolation(t *testing.T) {
	p := For(core.ScaffoldingStandard)

	err := p.Validate(Counts{}, core.StepLink, 1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindProtocolViolation, apperr.KindOf(err))

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	exp, ok := appErr.Detail["expected"].(Expectation)
	require.True(t, ok)
	assert.Equal(t, core.StepExposure, exp.ExpectedStep)
	assert.Equal(t, 1, exp.ExpectedAttempt)
	_, ok = appErr.Detail["protocol"].(Progress)
	assert.True(t, ok)
}

func TestValidateExactMatch(t *testing.T) {
	p := For(core.ScaffoldingStandard)

	assert.NoError(t, p.Validate(Counts{}, core.StepExposure, 1))
	assert.Error(t, p.Validate(Counts{}, core.StepExposure, 2))
	assert.NoError(t, p.Validate(counts(core.StepExposure, 2), core.StepExposure, 3))
	assert.Error(t, p.Validate(counts(core.StepExposure, 2), core.StepBlind, 1))
}

func TestValidateCompletedAyahRejects(t *testing.T) {
	p := For(core.ScaffoldingStandard)
	done := counts(core.StepExposure, 3, core.StepGuided, 1, core.StepBlind, 3, core.StepLink, 3)

	err := p.Validate(done, core.StepLink, 4)
	require.Error(t, err)
	assert.Equal(t, apperr.KindProtocolViolation, apperr.KindOf(err))
}

func TestValidateOptionalSteps(t *testing.T) {
	p := For(core.ScaffoldingMinimal)

	// Optional exposure is fine while the machine waits on BLIND.
	assert.NoError(t, p.Validate(Counts{}, core.StepExposure, 1))
	assert.NoError(t, p.Validate(counts(core.StepExposure, 1), core.StepExposure, 2))
	assert.NoError(t, p.Validate(Counts{}, core.StepGuided, 1))
	assert.NoError(t, p.Validate(Counts{}, core.StepBlind, 1))

	// Attempt numbers still run in order and stay within the cap.
	assert.Error(t, p.Validate(Counts{}, core.StepExposure, 2))
	assert.Error(t, p.Validate(counts(core.StepExposure, 3), core.StepExposure, 4))

	// Once BLIND is satisfied the machine expects LINK; optional steps close.
	afterBlind := counts(core.StepBlind, 3)
	assert.Error(t, p.Validate(afterBlind, core.StepExposure, 1))
	assert.NoError(t, p.Validate(afterBlind, core.StepLink, 1))
}

func TestValidateUnknownStep(t *testing.T) {
	p := For(core.ScaffoldingStandard)
	err := p.Validate(Counts{}, core.StepType("WARBLE"), 1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindProtocolViolation, apperr.KindOf(err))
}

func TestStatusAfter(t *testing.T) {
	p := For(core.ScaffoldingStandard)

	assert.Equal(t, StepInProgress, p.StatusAfter(counts(core.StepExposure, 1), core.StepExposure))
	assert.Equal(t, StepComplete, p.StatusAfter(counts(core.StepExposure, 3), core.StepExposure))
	done := counts(core.StepExposure, 3, core.StepGuided, 1, core.StepBlind, 3, core.StepLink, 3)
	assert.Equal(t, AyahComplete, p.StatusAfter(done, core.StepLink))
}

func TestCountSteps(t *testing.T) {
	step := core.StepExposure
	other := core.StepBlind
	events := []core.ReviewEvent{
		{EventType: core.EventReviewAttempted, StepType: &step},
		{EventType: core.EventReviewAttempted, StepType: &step},
		{EventType: core.EventReviewAttempted, StepType: &other},
		{EventType: core.EventTransitionAttempted},
	}
	c := CountSteps(events)
	assert.Equal(t, 2, c[core.StepExposure])
	assert.Equal(t, 1, c[core.StepBlind])
}

func TestSummarize(t *testing.T) {
	p := For(core.ScaffoldingMinimal)
	s := p.Summarize(counts(core.StepBlind, 2))
	require.Len(t, s.Steps, 4)
	assert.True(t, s.Steps[0].Optional)
	assert.Equal(t, 2, s.Steps[2].Observed)
}
