package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dampen/internal/ir"
)

const minimalScenario = `
name: minimal
description: "one round"
policies:
  - { tenant: acme, trigger: cpu, type: STRICT, eval_true: 1 }
steps:
  - at: 1000
    evals: [{ index: 0, size: 1, match: true }]
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Policies, 1)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, int64(1000), s.Steps[0].At)
	assert.Equal(t, []ir.ConditionEval{{ConditionSetIndex: 0, ConditionSetSize: 1, Match: true}}, s.Steps[0].Evals)

	d, err := s.Policies[0].Dampening()
	require.NoError(t, err)
	assert.Equal(t, "acme-cpu-FIRING", d.DampeningID())
	assert.Equal(t, ir.Strict, d.Type())
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: `
description: d
policies: [{ tenant: a, trigger: t, type: STRICT, eval_true: 1 }]
steps: [{ evals: [{ index: 0, size: 1, match: true }] }]
`,
			want: "name is required",
		},
		{
			name: "no policies",
			yaml: `
name: n
description: d
steps: [{ evals: [{ index: 0, size: 1, match: true }] }]
`,
			want: "policies list is required",
		},
		{
			name: "bad policy",
			yaml: `
name: n
description: d
policies: [{ tenant: a, trigger: t, type: STRICT, eval_true: 0 }]
steps: [{ evals: [{ index: 0, size: 1, match: true }] }]
`,
			want: "policies[0]",
		},
		{
			name: "round without evals",
			yaml: `
name: n
description: d
policies: [{ tenant: a, trigger: t, type: STRICT, eval_true: 1 }]
steps: [{ at: 1000 }]
`,
			want: "evals are required",
		},
		{
			name: "unknown op",
			yaml: `
name: n
description: d
policies: [{ tenant: a, trigger: t, type: STRICT, eval_true: 1 }]
steps: [{ op: explode }]
`,
			want: `unknown op "explode"`,
		},
		{
			name: "expect on reset",
			yaml: `
name: n
description: d
policies: [{ tenant: a, trigger: t, type: STRICT, eval_true: 1 }]
steps: [{ op: reset, expect: { satisfied: false } }]
`,
			want: "only allowed on a round",
		},
		{
			name: "bad match",
			yaml: `
name: n
description: d
policies: [{ tenant: a, trigger: t, type: STRICT, eval_true: 1 }]
steps: [{ match: MOST, evals: [{ index: 0, size: 1, match: true }] }]
`,
			want: "steps[0]",
		},
		{
			name: "unknown assertion",
			yaml: `
name: n
description: d
policies: [{ tenant: a, trigger: t, type: STRICT, eval_true: 1 }]
steps: [{ evals: [{ index: 0, size: 1, match: true }] }]
assertions: [{ type: trace_contains }]
`,
			want: "unknown assertion type",
		},
		{
			name: "log_contains without text",
			yaml: `
name: n
description: d
policies: [{ tenant: a, trigger: t, type: STRICT, eval_true: 1 }]
steps: [{ evals: [{ index: 0, size: 1, match: true }] }]
assertions: [{ type: log_contains }]
`,
			want: "text is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestPolicySpec_Defaults(t *testing.T) {
	d, err := PolicySpec{Tenant: "acme", Trigger: "cpu", Type: "relaxed_count", EvalTrue: 2, EvalTotal: 4}.Dampening()
	require.NoError(t, err)

	assert.Equal(t, ir.ModeFiring, d.TriggerMode())
	assert.Equal(t, ir.RelaxedCount, d.Type())
	assert.Equal(t, 4, d.EvalTotalSetting())
}
