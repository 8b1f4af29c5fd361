package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactories(t *testing.T) {
	tests := []struct {
		name      string
		build     func() (Dampening, error)
		typ       DampeningType
		evalTrue  int
		evalTotal int
		evalTime  int64
	}{
		{"strict", func() (Dampening, error) { return ForStrict("t", "trig", ModeFiring, 3) }, Strict, 3, 3, 0},
		{"relaxed count", func() (Dampening, error) { return ForRelaxedCount("t", "trig", ModeFiring, 2, 4) }, RelaxedCount, 2, 4, 0},
		{"relaxed time", func() (Dampening, error) { return ForRelaxedTime("t", "trig", ModeFiring, 2, 1000) }, RelaxedTime, 2, 0, 1000},
		{"strict time", func() (Dampening, error) { return ForStrictTime("t", "trig", ModeFiring, 500) }, StrictTime, 0, 0, 500},
		{"strict timeout", func() (Dampening, error) { return ForStrictTimeout("t", "trig", ModeFiring, 500) }, StrictTimeout, 0, 0, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.build()
			require.NoError(t, err)
			assert.Equal(t, tt.typ, d.Type())
			assert.Equal(t, tt.evalTrue, d.EvalTrueSetting())
			assert.Equal(t, tt.evalTotal, d.EvalTotalSetting())
			assert.Equal(t, tt.evalTime, d.EvalTimeSetting())
			assert.Equal(t, "t-trig-FIRING", d.DampeningID())
			assert.NoError(t, d.Validate())
		})
	}
}

func TestFactoriesRejectInvalidSettings(t *testing.T) {
	tests := []struct {
		name  string
		build func() (Dampening, error)
	}{
		{"strict zero", func() (Dampening, error) { return ForStrict("t", "trig", ModeFiring, 0) }},
		{"relaxed count zero true", func() (Dampening, error) { return ForRelaxedCount("t", "trig", ModeFiring, 0, 4) }},
		{"relaxed count total equal", func() (Dampening, error) { return ForRelaxedCount("t", "trig", ModeFiring, 2, 2) }},
		{"relaxed count total less", func() (Dampening, error) { return ForRelaxedCount("t", "trig", ModeFiring, 3, 1) }},
		{"relaxed time zero true", func() (Dampening, error) { return ForRelaxedTime("t", "trig", ModeFiring, 0, 10) }},
		{"relaxed time zero period", func() (Dampening, error) { return ForRelaxedTime("t", "trig", ModeFiring, 1, 0) }},
		{"strict time zero period", func() (Dampening, error) { return ForStrictTime("t", "trig", ModeFiring, 0) }},
		{"strict timeout negative", func() (Dampening, error) { return ForStrictTimeout("t", "trig", ModeFiring, -5) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.build()
			require.Error(t, err)
			assert.True(t, IsInvalidArgument(err))
			assert.Equal(t, Dampening{}, d)
		})
	}
}

func TestValidateRawDampening(t *testing.T) {
	assert.NoError(t, DefaultDampening().Validate())

	bad := NewDampening("t", "trig", ModeFiring, RelaxedCount, 3, 3, 0)
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "t-trig-FIRING")

	unknownType := NewDampening("t", "trig", ModeFiring, DampeningType("SOMETIMES"), 1, 1, 0)
	assert.True(t, IsInvalidArgument(unknownType.Validate()))

	unknownMode := NewDampening("t", "trig", Mode("SAFETY"), Strict, 1, 1, 0)
	assert.True(t, IsInvalidArgument(unknownMode.Validate()))
}

func TestDefaultDampening(t *testing.T) {
	d := DefaultDampening()
	assert.Equal(t, "", d.TenantID())
	assert.Equal(t, "", d.TriggerID())
	assert.Equal(t, ModeFiring, d.TriggerMode())
	assert.Equal(t, Strict, d.Type())
	assert.Equal(t, 1, d.EvalTrueSetting())
	assert.Equal(t, 1, d.EvalTotalSetting())
	assert.Equal(t, int64(0), d.EvalTimeSetting())
	assert.Equal(t, "--FIRING", d.DampeningID())
}

func TestDampeningIDRecomputedOnChange(t *testing.T) {
	d, err := ForStrict("acme", "cpu", ModeFiring, 2)
	require.NoError(t, err)

	moved := d.WithTenantID("globex")
	assert.Equal(t, "globex-cpu-FIRING", moved.DampeningID())
	assert.Equal(t, "acme-cpu-FIRING", d.DampeningID(), "original must not change")

	assert.Equal(t, "acme-mem-FIRING", d.WithTriggerID("mem").DampeningID())
	assert.Equal(t, "acme-cpu-AUTORESOLVE", d.WithTriggerMode(ModeAutoResolve).DampeningID())
	assert.Equal(t, d.Key().String(), d.DampeningID())
}

func TestEqualAndIsSame(t *testing.T) {
	a, err := ForStrict("acme", "cpu", ModeFiring, 2)
	require.NoError(t, err)
	b, err := ForRelaxedCount("acme", "cpu", ModeFiring, 2, 5)
	require.NoError(t, err)
	c, err := ForStrict("acme", "cpu", ModeFiring, 2)
	require.NoError(t, err)

	assert.True(t, a.Equal(b), "same composite key")
	assert.False(t, a.IsSame(b), "different type and settings")
	assert.True(t, a.IsSame(c))
	assert.False(t, a.Equal(a.WithTriggerMode(ModeAutoResolve)))
}

func TestDampeningJSON(t *testing.T) {
	d, err := ForRelaxedTime("acme", "cpu", ModeAutoResolve, 2, 1000)
	require.NoError(t, err)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"dampening_id":"acme-cpu-AUTORESOLVE"`)

	var decoded Dampening
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, d.IsSame(decoded))
}

func TestDampeningJSONIgnoresSuppliedID(t *testing.T) {
	var d Dampening
	err := json.Unmarshal([]byte(`{"tenant_id":"a","trigger_id":"b","dampening_id":"forged"}`), &d)
	require.NoError(t, err)
	assert.Equal(t, "a-b-FIRING", d.DampeningID())
	assert.Equal(t, Strict, d.Type())
	assert.Equal(t, 1, d.EvalTrueSetting())
}
