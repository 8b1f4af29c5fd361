package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dampen/internal/ir"
)

func TestMetrics_ReuseRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()

	m1 := NewMetrics(reg)
	m2 := NewMetrics(reg)

	m1.round("FIRING", OutcomeApplied)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m2.rounds.WithLabelValues("FIRING", OutcomeApplied)))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.round("FIRING", OutcomeApplied)
		m.satisfy("FIRING", "STRICT")
		m.setActive(3)
		m.setQueueLength("0", 1)
	})
}

func TestMetrics_LifecycleOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	l := newTestLifecycle(WithMetrics(m))

	d := mustDampening(t)(ir.ForStrict("tenant", "a", ir.ModeFiring, 1))
	require.NoError(t, l.Activate(d))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.active))

	_, err := l.EvaluateAt(d.Key(), ir.MatchAll, []ir.ConditionEval{ce(0, 2, true)}, 1000)
	require.NoError(t, err)
	_, err = l.EvaluateAt(d.Key(), ir.MatchAll, []ir.ConditionEval{ce(1, 2, true)}, 1100)
	require.NoError(t, err)
	_, err = l.EvaluateAt(d.Key(), ir.MatchAll, nil, 1200)
	require.Error(t, err)
	_, err = l.EvaluateAt(ir.Key{TenantID: "tenant", TriggerID: "b", Mode: ir.ModeFiring}, ir.MatchAll, nil, 1300)
	require.Error(t, err)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.rounds.WithLabelValues("FIRING", OutcomeIncomplete)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.rounds.WithLabelValues("FIRING", OutcomeApplied)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.rounds.WithLabelValues("FIRING", OutcomeInvalid)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.rounds.WithLabelValues("FIRING", OutcomeNotFound)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.satisfied.WithLabelValues("FIRING", "STRICT")))

	l.Deactivate(d.Key())
	assert.Equal(t, 0.0, promtestutil.ToFloat64(m.active))
}
