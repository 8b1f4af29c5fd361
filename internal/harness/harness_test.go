package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dampen/internal/ir"
)

func ptr[T any](v T) *T { return &v }

func round(at int64, match bool, expect *Expect) Step {
	return Step{
		At:     at,
		Evals:  []ir.ConditionEval{{ConditionSetIndex: 0, ConditionSetSize: 1, Match: match}},
		Expect: expect,
	}
}

func strictScenario(steps ...Step) *Scenario {
	return &Scenario{
		Name:        "strict",
		Description: "strict two",
		Source:      "host-1",
		Policies:    []PolicySpec{{Tenant: "acme", Trigger: "cpu", Type: "STRICT", EvalTrue: 2}},
		Steps:       steps,
	}
}

func TestRun_Pass(t *testing.T) {
	result, err := Run(strictScenario(
		round(1000, true, &Expect{NumTrueEvals: ptr(1), Satisfied: ptr(false)}),
		round(2000, true, &Expect{NumTrueEvals: ptr(2), Satisfied: ptr(true), Evidence: ptr(2)}),
	))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, scenarioRunID, result.RunID)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, OpRound, result.Trace[1].Op)
	assert.Equal(t, int64(2000), result.Trace[1].At)
	assert.Equal(t, "acme-cpu-FIRING", result.Trace[1].Key.String())
	assert.Equal(t, 1, result.SatisfiedCount())
}

func TestRun_ExpectMismatch(t *testing.T) {
	result, err := Run(strictScenario(
		round(1000, true, &Expect{Satisfied: ptr(true)}),
	))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "steps[0]: satisfied: expected true, got false", result.Errors[0])
}

func TestRun_ExpectError(t *testing.T) {
	result, err := Run(strictScenario(
		Step{Op: OpDeactivate, At: 1000},
		round(2000, true, &Expect{Error: string(ir.ErrCodeNotFound)}),
	))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, string(ir.ErrCodeNotFound), result.Trace[1].Error)
}

func TestRun_UnexpectedError(t *testing.T) {
	result, err := Run(strictScenario(
		Step{Op: OpDeactivate},
		round(2000, true, &Expect{Satisfied: ptr(false)}),
	))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{"steps[1]: unexpected error NOT_FOUND"}, result.Errors)
}

func TestRun_ResetAndReactivate(t *testing.T) {
	result, err := Run(strictScenario(
		round(1000, true, nil),
		round(2000, true, &Expect{Satisfied: ptr(true)}),
		Step{Op: OpReset, At: 3000},
		round(4000, true, &Expect{Satisfied: ptr(false), NumTrueEvals: ptr(1)}),
		Step{Op: OpActivate, At: 5000},
		round(6000, true, &Expect{NumTrueEvals: ptr(1), NumEvals: ptr(1)}),
	))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, OpReset, result.Trace[2].Op)
	assert.Equal(t, OpActivate, result.Trace[4].Op)
}

func TestRun_Assertions(t *testing.T) {
	s := strictScenario(
		round(1000, true, nil),
		round(2000, true, nil),
	)
	s.Assertions = []Assertion{
		{Type: AssertSatisfiedCount, Count: 1},
		{Type: AssertActiveCount, Count: 1},
		{Type: AssertFinalState, Expect: &Expect{Satisfied: ptr(true), NumEvals: ptr(2)}},
		{Type: AssertLogContains, Text: "source=host-1"},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UnknownPolicyForActivate(t *testing.T) {
	_, err := Run(strictScenario(
		Step{Op: OpActivate, Trigger: "disk"},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no policy for acme-disk-FIRING")
}

func TestResolveKey(t *testing.T) {
	defaults := ir.Key{TenantID: "acme", TriggerID: "cpu", Mode: ir.ModeFiring}

	assert.Equal(t, defaults, resolveKey(defaults, "", ""))
	assert.Equal(t, ir.Key{TenantID: "acme", TriggerID: "disk", Mode: ir.ModeFiring}, resolveKey(defaults, "disk", ""))
	assert.Equal(t, ir.Key{TenantID: "acme", TriggerID: "cpu", Mode: ir.ModeAutoResolve}, resolveKey(defaults, "", "autoresolve"))
}
