package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dampen/internal/ir"
)

func compileTrigger(t *testing.T, src, name string) (ir.Trigger, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileTrigger(v.LookupPath(cue.ParsePath("trigger." + name)))
}

func TestCompileTrigger_Full(t *testing.T) {
	got, err := compileTrigger(t, `
		trigger: cpu: {
			tenant:             "acme"
			id:                 "cpu-high"
			source:             "host-1"
			mode:               "AUTORESOLVE"
			firing_match:       "ANY"
			auto_resolve_match: "ALL"
			enabled:            false
		}
	`, "cpu")
	require.NoError(t, err)

	assert.Equal(t, ir.Trigger{
		TenantID:         "acme",
		ID:               "cpu-high",
		Source:           "host-1",
		FiringMatch:      ir.MatchAny,
		AutoResolveMatch: ir.MatchAll,
		Mode:             ir.ModeAutoResolve,
		Enabled:          false,
	}, got)
}

func TestCompileTrigger_Defaults(t *testing.T) {
	got, err := compileTrigger(t, `trigger: cpu: { tenant: "acme" }`, "cpu")
	require.NoError(t, err)

	assert.Equal(t, ir.NewTrigger("acme", "cpu"), got, "id defaults to the definition name")
}

func TestCompileTrigger_Errors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing tenant", `id: "cpu"`, "tenant"},
		{"bad match", `tenant: "acme", firing_match: "MOST"`, "firing_match"},
		{"bad mode", `tenant: "acme", mode: "OFF"`, "mode"},
		{"enabled not bool", `tenant: "acme", enabled: "yes"`, "enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileTrigger(t, `trigger: cpu: { `+tt.body+` }`, "cpu")
			require.Error(t, err)

			var compileErr *CompileError
			require.True(t, errors.As(err, &compileErr))
			assert.Equal(t, tt.field, compileErr.Field)
		})
	}
}
