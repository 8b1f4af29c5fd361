package cli

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dampen/internal/engine"
	"github.com/roach88/dampen/internal/ir"
	"github.com/roach88/dampen/internal/store"
)

func newTestPolicySet(t *testing.T, source string) (*policySet, *engine.Lifecycle, *store.Journal) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	j, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	l := engine.NewLifecycle(engine.WithLogger(logger))
	rec, err := engine.NewRecorder(t.Context(), l, j, "policies")
	require.NoError(t, err)
	return newPolicySet(rec, logger, source), l, j
}

func strict(t *testing.T, trigger string, n int) ir.Dampening {
	t.Helper()
	d, err := ir.ForStrict("acme", trigger, ir.ModeFiring, n)
	require.NoError(t, err)
	return d
}

func trueRound(t *testing.T, l *engine.Lifecycle, key ir.Key, at int64) engine.Verdict {
	t.Helper()
	v, err := l.EvaluateAt(key, ir.MatchAll, []ir.ConditionEval{{ConditionSetIndex: 0, ConditionSetSize: 1, Match: true}}, at)
	require.NoError(t, err)
	return v
}

func TestPolicySet_InitialApply(t *testing.T) {
	p, l, _ := newTestPolicySet(t, "")
	cpu := ir.NewTrigger("acme", "cpu")
	cpu.Source = "host-1"
	mem := ir.NewTrigger("acme", "mem")
	mem.Enabled = false

	activated, deactivated, err := p.apply(
		[]ir.Dampening{strict(t, "cpu", 2), strict(t, "mem", 1), strict(t, "disk", 1)},
		[]ir.Trigger{cpu, mem},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, activated, "disk has no trigger and counts as enabled")
	assert.Equal(t, 0, deactivated)
	assert.Equal(t, 2, p.Len())

	keys := l.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, "acme-cpu-FIRING", keys[0].String())
	assert.Equal(t, "acme-disk-FIRING", keys[1].String())

	v := trueRound(t, l, cpu.DampeningKey(), 1000)
	assert.Equal(t, "host-1", v.Source)
}

func TestPolicySet_SourceOverride(t *testing.T) {
	p, l, _ := newTestPolicySet(t, "override")
	cpu := ir.NewTrigger("acme", "cpu")
	cpu.Source = "host-1"

	_, _, err := p.apply([]ir.Dampening{strict(t, "cpu", 2)}, []ir.Trigger{cpu})
	require.NoError(t, err)

	v := trueRound(t, l, cpu.DampeningKey(), 1000)
	assert.Equal(t, "override", v.Source)
}

func TestPolicySet_ReapplyKeepsUnchangedState(t *testing.T) {
	p, l, _ := newTestPolicySet(t, "")
	policies := []ir.Dampening{strict(t, "cpu", 3), strict(t, "disk", 3)}

	_, _, err := p.apply(policies, nil)
	require.NoError(t, err)
	cpuKey := policies[0].Key()
	diskKey := policies[1].Key()
	trueRound(t, l, cpuKey, 1000)
	trueRound(t, l, diskKey, 1000)

	// disk changes to STRICT 2; cpu is unchanged.
	activated, deactivated, err := p.apply([]ir.Dampening{strict(t, "cpu", 3), strict(t, "disk", 2)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, activated)
	assert.Equal(t, 0, deactivated)

	cpuState, err := l.Snapshot(cpuKey)
	require.NoError(t, err)
	assert.Equal(t, 1, cpuState.NumTrueEvals, "unchanged dampening keeps its counters")

	diskState, err := l.Snapshot(diskKey)
	require.NoError(t, err)
	assert.Equal(t, 0, diskState.NumTrueEvals, "changed dampening restarts fresh")
}

func TestPolicySet_DeactivatesRemovedAndDisabled(t *testing.T) {
	p, l, _ := newTestPolicySet(t, "")
	_, _, err := p.apply([]ir.Dampening{strict(t, "cpu", 1), strict(t, "mem", 1), strict(t, "disk", 1)}, nil)
	require.NoError(t, err)

	mem := ir.NewTrigger("acme", "mem")
	mem.Enabled = false
	activated, deactivated, err := p.apply(
		[]ir.Dampening{strict(t, "cpu", 1), strict(t, "mem", 1)},
		[]ir.Trigger{mem},
	)
	require.NoError(t, err)
	assert.Equal(t, 0, activated)
	assert.Equal(t, 2, deactivated)

	keys := l.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, "acme-cpu-FIRING", keys[0].String())
}

func TestPolicySet_ChangesAreJournaled(t *testing.T) {
	p, _, j := newTestPolicySet(t, "")
	_, _, err := p.apply([]ir.Dampening{strict(t, "cpu", 1)}, nil)
	require.NoError(t, err)
	_, _, err = p.apply([]ir.Dampening{strict(t, "cpu", 2)}, nil)
	require.NoError(t, err)
	_, _, err = p.apply(nil, nil)
	require.NoError(t, err)

	runID, err := j.LatestRun(t.Context())
	require.NoError(t, err)
	events, err := j.Events(t.Context(), runID)
	require.NoError(t, err)

	kinds := make([]store.EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []store.EventKind{store.EventActivate, store.EventActivate, store.EventDeactivate}, kinds)
	assert.Equal(t, 2, events[1].Policy.EvalTrueSetting())
}

func TestPolicySet_ReloadKeepsPoliciesOnCompileError(t *testing.T) {
	p, l, _ := newTestPolicySet(t, "")
	dir := writePolicies(t, validPolicies)

	p.reload(dir)
	require.Equal(t, 2, l.Len())

	broken := writePolicies(t, `
package policies

dampening: cpu: { tenant: "acme", trigger: "cpu", type: "STRICT", eval_true: 0 }
`)
	p.reload(broken)
	assert.Equal(t, 2, l.Len(), "active dampenings survive a failed reload")
}
